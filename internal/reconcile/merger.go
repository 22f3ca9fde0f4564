// Package reconcile validates bill candidates and merges the ones that refer
// to the same obligation into reconciled bills.
package reconcile

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/confidence"
	"github.com/Veraticus/billfinder/internal/merchant"
	"github.com/Veraticus/billfinder/internal/model"
)

// DefaultHighTrustThreshold is the email confidence above which the email's
// amount is preferred over every other constituent's.
const DefaultHighTrustThreshold = 85.0

// Config holds merge settings.
type Config struct {
	HighTrustThreshold float64
}

// DefaultConfig returns the default merge configuration.
func DefaultConfig() Config {
	return Config{HighTrustThreshold: DefaultHighTrustThreshold}
}

// Merger turns candidates into reconciled bills. Every output field is a pure
// function of the constituent set, so input order never matters.
type Merger struct {
	scorer *confidence.Scorer
	logger *slog.Logger
	cfg    Config
}

// New creates a merger with the default configuration.
func New(scorer *confidence.Scorer) *Merger {
	return NewWithConfig(DefaultConfig(), scorer)
}

// NewWithConfig creates a merger with a custom configuration.
func NewWithConfig(cfg Config, scorer *confidence.Scorer) *Merger {
	if scorer == nil {
		scorer = confidence.New()
	}
	return &Merger{
		scorer: scorer,
		cfg:    cfg,
		logger: slog.Default().With("component", "reconcile"),
	}
}

// Validate reports why a candidate cannot take part in a merge.
// The returned error wraps common.ErrValidation.
func (m *Merger) Validate(c model.BillCandidate) error {
	var reason string
	switch {
	case c.ID == "":
		reason = "missing id"
	case c.SourceType != model.SourceEmail && c.SourceType != model.SourceBank:
		reason = fmt.Sprintf("unknown source type %q", c.SourceType)
	case math.IsNaN(c.Amount) || math.IsInf(c.Amount, 0):
		reason = "amount is not a number"
	case c.Amount < 0:
		reason = fmt.Sprintf("negative amount %.2f", c.Amount)
	case math.IsNaN(c.Confidence) || c.Confidence < confidence.Min || c.Confidence > confidence.Max:
		reason = fmt.Sprintf("confidence %v outside [0,100]", c.Confidence)
	case c.NormalizedMerchantKey == "":
		reason = "empty merchant key"
	case len(c.Sources) == 0:
		reason = "no source references"
	default:
		return nil
	}
	return fmt.Errorf("%w: candidate %s (%s): %s", common.ErrValidation, c.ID, c.MerchantNameRaw, reason)
}

// Merge validates candidates, drops the invalid ones and merges the rest.
// Dropped candidates are returned as diagnostics.
func (m *Merger) Merge(candidates []model.BillCandidate) ([]model.ReconciledBill, []error) {
	var diagnostics []error
	singletons := make([]model.ReconciledBill, 0, len(candidates))

	for _, c := range candidates {
		if err := m.Validate(c); err != nil {
			m.logger.Warn("dropping invalid candidate", "error", err)
			diagnostics = append(diagnostics, err)
			continue
		}
		singletons = append(singletons, m.build(c.CanonicalKey(), []model.BillCandidate{c.Clone()}))
	}

	bills := m.Dedupe(singletons)

	m.logger.Debug("merge finished",
		"candidates", len(candidates),
		"dropped", len(diagnostics),
		"bills", len(bills))

	return bills, diagnostics
}

// Dedupe merges bills that share a canonical key. Constituents are unioned
// by candidate ID and each bill is rebuilt from its sorted constituent set;
// the output is sorted by canonical key. Dedupe is idempotent.
func (m *Merger) Dedupe(bills []model.ReconciledBill) []model.ReconciledBill {
	groups := make(map[string]map[string]model.BillCandidate)

	for _, b := range bills {
		key := b.CanonicalKey
		if key == "" && len(b.Candidates) > 0 {
			key = b.Candidates[0].CanonicalKey()
		}
		if key == "" {
			continue
		}

		members, ok := groups[key]
		if !ok {
			members = make(map[string]model.BillCandidate)
			groups[key] = members
		}
		for _, c := range b.Candidates {
			existing, seen := members[c.ID]
			if !seen || rankLess(c, existing) {
				members[c.ID] = c.Clone()
			}
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]model.ReconciledBill, 0, len(keys))
	for _, k := range keys {
		constituents := make([]model.BillCandidate, 0, len(groups[k]))
		for _, c := range groups[k] {
			constituents = append(constituents, c)
		}
		if len(constituents) == 0 {
			continue
		}
		out = append(out, m.build(k, constituents))
	}
	return out
}

// rankLess orders constituents: confidence descending, then email before
// bank, then candidate ID ascending.
func rankLess(a, b model.BillCandidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if pa, pb := a.SourceType.Priority(), b.SourceType.Priority(); pa != pb {
		return pa < pb
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	// Same ID with equal rank: fall back to content so duplicates resolve
	// the same way regardless of arrival order.
	if a.Amount != b.Amount {
		return a.Amount < b.Amount
	}
	return a.MerchantNameRaw < b.MerchantNameRaw
}

func (m *Merger) build(key string, constituents []model.BillCandidate) model.ReconciledBill {
	sort.Slice(constituents, func(i, j int) bool {
		return rankLess(constituents[i], constituents[j])
	})
	top := constituents[0]

	bill := model.ReconciledBill{
		ID:                    model.BillID(key),
		CanonicalKey:          key,
		NormalizedMerchantKey: top.NormalizedMerchantKey,
		Amount:                top.Amount,
		Candidates:            constituents,
	}

	for _, c := range constituents {
		if c.SourceType == model.SourceEmail && c.Confidence > m.cfg.HighTrustThreshold {
			bill.Amount = c.Amount
			break
		}
	}

	var fallbackCategory model.Category
	for _, c := range constituents {
		if bill.DueDate == nil && c.DueDate != nil {
			due := *c.DueDate
			bill.DueDate = &due
		}
		if bill.Category == "" && c.Category.IsSet() {
			bill.Category = c.Category
		}
		if fallbackCategory == "" && c.Category != "" {
			fallbackCategory = c.Category
		}
		if bill.Frequency == "" && c.Frequency != "" {
			bill.Frequency = c.Frequency
		}
		if bill.MerchantName == "" && c.MerchantNameRaw != "" {
			bill.MerchantName = merchant.Clean(c.MerchantNameRaw)
		}
		if last := c.LastObserved(); last.After(bill.LastObserved) {
			bill.LastObserved = last
		}
	}
	if bill.Category == "" {
		bill.Category = fallbackCategory
	}

	bill.SourceTypes, bill.Confidence = m.combine(constituents)
	bill.Sources = unionSources(constituents)

	return bill
}

// combine takes the strongest constituent per source type and corroborates
// across types. Several candidates from the same source type are not
// independent evidence.
func (m *Merger) combine(constituents []model.BillCandidate) ([]model.SourceType, float64) {
	best := make(map[model.SourceType]float64)
	for _, c := range constituents {
		if v, ok := best[c.SourceType]; !ok || c.Confidence > v {
			best[c.SourceType] = c.Confidence
		}
	}

	types := make([]model.SourceType, 0, len(best))
	confs := make([]float64, 0, len(best))
	for t, v := range best {
		types = append(types, t)
		confs = append(confs, v)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i].Priority() < types[j].Priority()
	})

	return types, m.scorer.Combine(confs...)
}

func unionSources(constituents []model.BillCandidate) []model.SourceRef {
	seen := make(map[string]bool)
	var refs []model.SourceRef
	for _, c := range constituents {
		for _, r := range c.Sources {
			if seen[r.Key()] {
				continue
			}
			seen[r.Key()] = true
			refs = append(refs, r)
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Type != refs[j].Type {
			return refs[i].Type.Priority() < refs[j].Type.Priority()
		}
		return refs[i].ID < refs[j].ID
	})
	return refs
}
