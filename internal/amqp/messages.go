package amqp

import (
	"encoding/json"
	"time"

	"cuentas/internal/core"
)

// BatchProcessedMessage announces a committed daily submission. It carries
// the batch id so consumers can read the movements back from the database.
type BatchProcessedMessage struct {
	BatchID         string    `json:"batch_id"`
	Date            string    `json:"date"`
	EntregadoCents  int64     `json:"entregado_cents"`
	TotalCents      int64     `json:"total_cents"`
	DiferenciaCents int64     `json:"diferencia_cents"`
	Movements       int       `json:"movements"`
	Alerts          []string  `json:"alerts,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

func NewBatchProcessedMessage(s core.BatchSummary) *BatchProcessedMessage {
	alerts := make([]string, 0, len(s.Alerts))
	for _, a := range s.Alerts {
		alerts = append(alerts, a.String())
	}
	return &BatchProcessedMessage{
		BatchID:         s.BatchID,
		Date:            s.Date.String(),
		EntregadoCents:  s.Entregado.Cents,
		TotalCents:      s.Total.Cents,
		DiferenciaCents: s.Diferencia.Cents,
		Movements:       s.MovementsCreated,
		Alerts:          alerts,
		Timestamp:       time.Now(),
	}
}

func (m *BatchProcessedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BatchProcessedMessageFromJSON(data []byte) (*BatchProcessedMessage, error) {
	var msg BatchProcessedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
