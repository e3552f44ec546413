package core

// Alert is a non-fatal notice produced while processing a submission.
type Alert struct {
	Concept string
	Message string
}

func (a Alert) String() string {
	if a.Concept == "" {
		return a.Message
	}
	return a.Concept + ": " + a.Message
}

// BatchSummary is the outcome of one daily submission.
type BatchSummary struct {
	BatchID          string
	Date             Date
	Entregado        Money
	Total            Money
	Diferencia       Money
	MovementsCreated int
	Alerts           []Alert
}
