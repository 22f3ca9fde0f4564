// Package enrich fills in display and scheduling details on reconciled bills.
package enrich

import (
	"log/slog"
	"strings"

	"github.com/Veraticus/billfinder/internal/classification"
	"github.com/Veraticus/billfinder/internal/model"
)

// Enricher adds a category fallback, a logo reference and a backfilled due
// date. It never mutates its input.
type Enricher struct {
	classifier *classification.Classifier
	logger     *slog.Logger
	logos      []LogoRule
}

// New creates an enricher with the built-in logo table.
func New(classifier *classification.Classifier) *Enricher {
	return NewWithLogos(classifier, DefaultLogos())
}

// NewWithLogos creates an enricher with a custom logo table.
func NewWithLogos(classifier *classification.Classifier, logos []LogoRule) *Enricher {
	if classifier == nil {
		classifier = classification.NewDefault()
	}
	normalized := make([]LogoRule, 0, len(logos))
	for _, l := range logos {
		if l.Match == "" || l.Ref == "" {
			continue
		}
		normalized = append(normalized, LogoRule{Match: strings.ToLower(l.Match), Ref: l.Ref})
	}
	return &Enricher{
		classifier: classifier,
		logos:      normalized,
		logger:     slog.Default().With("component", "enrich"),
	}
}

// Enrich returns enriched deep copies of bills in the same order.
func (e *Enricher) Enrich(bills []model.ReconciledBill) []model.ReconciledBill {
	out := make([]model.ReconciledBill, len(bills))
	for i := range bills {
		out[i] = e.EnrichBill(&bills[i])
	}
	return out
}

// EnrichBill returns an enriched deep copy of one bill.
func (e *Enricher) EnrichBill(bill *model.ReconciledBill) model.ReconciledBill {
	b := bill.Clone()

	if !b.Category.IsSet() {
		texts := []string{b.MerchantName}
		for _, s := range b.Sources {
			if s.Subject != "" {
				texts = append(texts, s.Subject)
			}
		}
		if c := e.classifier.Classify(texts...); c.IsSet() || b.Category == "" {
			b.Category = c
		}
	}

	if b.LogoRef == "" {
		b.LogoRef = e.logoFor(&b)
	}

	if b.DueDate == nil && b.Frequency.Valid() && !b.LastObserved.IsZero() {
		due := b.LastObserved.AddDate(0, 0, b.Frequency.IntervalDays())
		b.DueDate = &due
		e.logger.Debug("backfilled due date",
			"bill", b.CanonicalKey,
			"due", due.Format("2006-01-02"))
	}

	return b
}

func (e *Enricher) logoFor(b *model.ReconciledBill) string {
	name := strings.ToLower(b.MerchantName)
	for _, l := range e.logos {
		if strings.Contains(name, l.Match) || strings.HasPrefix(b.NormalizedMerchantKey, l.Match) {
			return l.Ref
		}
	}
	return ""
}
