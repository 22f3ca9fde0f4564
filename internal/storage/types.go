package storage

import "time"

// BillSighting is one appearance of a bill in a stored run.
type BillSighting struct {
	RunStartedAt time.Time
	RunID        string
	Amount       float64
	Confidence   float64
}
