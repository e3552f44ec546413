package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cuentas/internal/core"
)

const conceptColumns = `id, key, name, type, payment_frequency, posnet`

const upsertConcept = `
INSERT INTO concepts (key, name, type, payment_frequency, posnet)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    name = excluded.name,
    type = excluded.type,
    payment_frequency = excluded.payment_frequency,
    posnet = excluded.posnet
RETURNING ` + conceptColumns

func (q *Queries) UpsertConcept(ctx context.Context, c core.Concept) (core.Concept, error) {
	row := q.db.QueryRowContext(ctx, upsertConcept,
		c.Key, c.Name, string(c.Type), string(c.Frequency), boolToInt(c.Posnet))
	return scanConcept(row)
}

const getConcept = `SELECT ` + conceptColumns + ` FROM concepts WHERE id = ?`

func (q *Queries) GetConcept(ctx context.Context, id int64) (core.Concept, error) {
	c, err := scanConcept(q.db.QueryRowContext(ctx, getConcept, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Concept{}, core.ErrNotFound
	}
	return c, err
}

const getConceptByKey = `SELECT ` + conceptColumns + ` FROM concepts WHERE key = ?`

func (q *Queries) GetConceptByKey(ctx context.Context, key string) (core.Concept, error) {
	c, err := scanConcept(q.db.QueryRowContext(ctx, getConceptByKey, key))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Concept{}, core.ErrNotFound
	}
	return c, err
}

const listConcepts = `SELECT ` + conceptColumns + ` FROM concepts ORDER BY key`

func (q *Queries) ListConcepts(ctx context.Context) ([]core.Concept, error) {
	rows, err := q.db.QueryContext(ctx, listConcepts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanConcept(s scanner) (core.Concept, error) {
	var (
		c      core.Concept
		typ    string
		freq   string
		posnet int64
	)
	if err := s.Scan(&c.ID, &c.Key, &c.Name, &typ, &freq, &posnet); err != nil {
		return core.Concept{}, fmt.Errorf("scan concept: %w", err)
	}
	c.Type = core.ConceptType(typ)
	c.Frequency = core.Frequency(freq)
	c.Posnet = posnet != 0
	return c, nil
}
