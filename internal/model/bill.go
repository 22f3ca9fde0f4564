// Package model defines the core domain models used throughout the application.
package model

import (
	"time"

	"github.com/Veraticus/billfinder/internal/merchant"
)

// SourceType identifies which signal source produced a candidate.
type SourceType string

const (
	// SourceEmail marks candidates extracted from scanned email.
	SourceEmail SourceType = "email"
	// SourceBank marks candidates inferred from transaction history.
	SourceBank SourceType = "bank"
)

// Priority orders source types for tie-breaking; lower wins.
// An explicit statement in an email outranks an inferred bank pattern.
func (s SourceType) Priority() int {
	switch s {
	case SourceEmail:
		return 0
	case SourceBank:
		return 1
	default:
		return 2
	}
}

// Frequency is the inferred billing cadence.
type Frequency string

// Billing cadences. The empty Frequency means the cadence is unknown.
const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Frequencies lists the cadences from shortest to longest.
var Frequencies = []Frequency{FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly}

// IntervalDays is the nominal number of days between two charges.
func (f Frequency) IntervalDays() int {
	switch f {
	case FrequencyWeekly:
		return 7
	case FrequencyMonthly:
		return 30
	case FrequencyQuarterly:
		return 90
	case FrequencyYearly:
		return 365
	default:
		return 0
	}
}

// ToleranceDays is how far an observed interval may drift from IntervalDays.
func (f Frequency) ToleranceDays() int {
	switch f {
	case FrequencyWeekly:
		return 2
	case FrequencyMonthly:
		return 5
	case FrequencyQuarterly:
		return 10
	case FrequencyYearly:
		return 20
	default:
		return 0
	}
}

// Valid reports whether f is a known, non-empty cadence.
func (f Frequency) Valid() bool {
	return f.IntervalDays() > 0
}

// SourceRef is one provenance atom: a single email or a single transaction.
type SourceRef struct {
	Date      time.Time  `json:"date"`
	Type      SourceType `json:"type"`
	ID        string     `json:"id"`
	AccountID string     `json:"account_id,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	Sender    string     `json:"sender,omitempty"`
}

// Key identifies the referenced record independent of the other fields.
func (r SourceRef) Key() string {
	return string(r.Type) + "/" + r.ID
}

// BillCandidate is a single-source, unverified detection of a possible bill.
// Candidates are created once per extracted item and never modified afterwards.
type BillCandidate struct {
	DueDate               *time.Time  `json:"due_date,omitempty"`
	ID                    string      `json:"id"`
	SourceType            SourceType  `json:"source_type"`
	MerchantNameRaw       string      `json:"merchant_name_raw"`
	NormalizedMerchantKey string      `json:"normalized_merchant_key"`
	Category              Category    `json:"category,omitempty"`
	Frequency             Frequency   `json:"frequency,omitempty"`
	ObservedDates         []time.Time `json:"observed_dates"`
	Sources               []SourceRef `json:"sources"`
	Amount                float64     `json:"amount"`
	Confidence            float64     `json:"confidence"`
}

// CanonicalKey groups candidates that likely refer to the same biller.
func (c *BillCandidate) CanonicalKey() string {
	return merchant.JoinKey(c.NormalizedMerchantKey, c.Amount)
}

// LastObserved returns the most recent observed date, or the zero time.
func (c *BillCandidate) LastObserved() time.Time {
	var last time.Time
	for _, d := range c.ObservedDates {
		if d.After(last) {
			last = d
		}
	}
	return last
}

// RecurringPattern is a periodic billing behavior inferred from a transaction series.
type RecurringPattern struct {
	NextPredictedDate time.Time   `json:"next_predicted_date"`
	MerchantKey       string      `json:"merchant_key"`
	MerchantName      string      `json:"merchant_name"`
	Frequency         Frequency   `json:"frequency"`
	Dates             []time.Time `json:"dates"`
	Amounts           []float64   `json:"amounts"`
	TransactionIDs    []string    `json:"transaction_ids"`
	AccountIDs        []string    `json:"account_ids"`
	CategoryHints     []string    `json:"category_hints,omitempty"`
	Confidence        float64     `json:"confidence"`
}

// ReconciledBill is the deduplicated record for one real-world obligation.
// Every field is derived from Candidates; enrichment returns modified copies.
type ReconciledBill struct {
	LastObserved          time.Time       `json:"last_observed"`
	DueDate               *time.Time      `json:"due_date,omitempty"`
	ID                    string          `json:"id"`
	CanonicalKey          string          `json:"canonical_key"`
	MerchantName          string          `json:"merchant_name"`
	NormalizedMerchantKey string          `json:"normalized_merchant_key"`
	Category              Category        `json:"category,omitempty"`
	Frequency             Frequency       `json:"frequency,omitempty"`
	LogoRef               string          `json:"logo_ref,omitempty"`
	SourceTypes           []SourceType    `json:"source_types"`
	Sources               []SourceRef     `json:"sources"`
	Candidates            []BillCandidate `json:"candidates"`
	Amount                float64         `json:"amount"`
	Confidence            float64         `json:"confidence"`
}

// HasSource reports whether any constituent came from the given source type.
func (b *ReconciledBill) HasSource(t SourceType) bool {
	for _, s := range b.SourceTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Corroborated reports whether independent sources agree on this bill.
func (b *ReconciledBill) Corroborated() bool {
	return len(b.SourceTypes) > 1
}

// Clone returns a deep copy of the candidate.
func (c *BillCandidate) Clone() BillCandidate {
	out := *c
	if c.DueDate != nil {
		due := *c.DueDate
		out.DueDate = &due
	}
	out.ObservedDates = append([]time.Time(nil), c.ObservedDates...)
	out.Sources = append([]SourceRef(nil), c.Sources...)
	return out
}

// Clone returns a deep copy of the bill, including its constituents.
func (b *ReconciledBill) Clone() ReconciledBill {
	out := *b
	if b.DueDate != nil {
		due := *b.DueDate
		out.DueDate = &due
	}
	out.SourceTypes = append([]SourceType(nil), b.SourceTypes...)
	out.Sources = append([]SourceRef(nil), b.Sources...)
	if b.Candidates != nil {
		out.Candidates = make([]BillCandidate, len(b.Candidates))
		for i, c := range b.Candidates {
			out.Candidates[i] = c.Clone()
		}
	}
	return out
}
