package model

import "time"

// DiscoveryStatistics summarizes one discovery run.
type DiscoveryStatistics struct {
	TotalBillsFound    int     `json:"total_bills_found"`
	EmailBillsFound    int     `json:"email_bills_found"`
	BankBillsFound     int     `json:"bank_bills_found"`
	SubscriptionsFound int     `json:"subscriptions_found"`
	DuplicatesFound    int     `json:"duplicates_found"`
	PotentialSavings   float64 `json:"potential_savings"`
}

// DiscoveryResult is everything a run hands back to its caller.
type DiscoveryResult struct {
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	RunID      string              `json:"run_id"`
	Bills      []ReconciledBill    `json:"bills"`
	Errors     []string            `json:"errors,omitempty"`
	Stats      DiscoveryStatistics `json:"stats"`
	Canceled   bool                `json:"canceled,omitempty"`
}

// ProgressStep names a stage of a discovery run.
type ProgressStep string

// Progress steps in the order a run passes through them.
const (
	StepStarting  ProgressStep = "starting"
	StepFetching  ProgressStep = "fetching"
	StepMerging   ProgressStep = "merging"
	StepEnriching ProgressStep = "enriching"
	StepComplete  ProgressStep = "complete"
)

// ProgressEvent reports run progress. Progress never decreases within a run.
type ProgressEvent struct {
	Step       ProgressStep `json:"step"`
	Message    string       `json:"message"`
	Progress   int          `json:"progress"`
	IsComplete bool         `json:"is_complete"`
}
