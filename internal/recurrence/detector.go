// Package recurrence infers periodic billing patterns from bank transaction
// history and turns the confident ones into bill candidates.
package recurrence

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Veraticus/billfinder/internal/classification"
	"github.com/Veraticus/billfinder/internal/confidence"
	"github.com/Veraticus/billfinder/internal/merchant"
	"github.com/Veraticus/billfinder/internal/model"
)

// Config holds the detector's tunable constants.
type Config struct {
	// Lookback is how far back transactions are fetched.
	Lookback time.Duration
	// MinOccurrences is the fewest charges that can form a pattern.
	MinOccurrences int
	// MinConfidence is the floor for a pattern to become a candidate.
	MinConfidence float64

	BaseConfidence     float64
	OccurrenceWeight   float64
	MaxOccurrenceBonus float64
	IntervalPenalty    float64 // per day of interval standard deviation
	MaxIntervalPenalty float64
	AmountPenalty      float64 // per unit of amount coefficient of variation
	MaxAmountPenalty   float64
	ConsistencyCredit  float64 // subtracted from the penalty; a regular series nets a bonus
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		Lookback:           365 * 24 * time.Hour,
		MinOccurrences:     2,
		MinConfidence:      70,
		BaseConfidence:     50,
		OccurrenceWeight:   5,
		MaxOccurrenceBonus: 30,
		IntervalPenalty:    3,
		MaxIntervalPenalty: 30,
		AmountPenalty:      100,
		MaxAmountPenalty:   30,
		ConsistencyCredit:  15,
	}
}

// Detector finds recurring charges. It keeps no state between calls.
type Detector struct {
	classifier *classification.Classifier
	logger     *slog.Logger
	cfg        Config
}

// New creates a detector with the default configuration.
func New(classifier *classification.Classifier) *Detector {
	return NewWithConfig(DefaultConfig(), classifier)
}

// NewWithConfig creates a detector with a custom configuration.
func NewWithConfig(cfg Config, classifier *classification.Classifier) *Detector {
	if classifier == nil {
		classifier = classification.NewDefault()
	}
	if cfg.MinOccurrences < 2 {
		cfg.MinOccurrences = 2
	}
	return &Detector{
		cfg:        cfg,
		classifier: classifier,
		logger:     slog.Default().With("component", "recurrence"),
	}
}

// Window returns the transaction range to fetch for a run starting at now.
func (d *Detector) Window(now time.Time) (time.Time, time.Time) {
	return now.Add(-d.cfg.Lookback), now
}

type group struct {
	key  string
	txns []model.Transaction
}

// DetectPatterns groups expense transactions by normalized merchant and
// returns every group whose charges fall on a regular cadence, sorted by
// merchant key. Confidence is not filtered here.
func (d *Detector) DetectPatterns(transactions []model.Transaction) []model.RecurringPattern {
	byKey := make(map[string]*group)
	for _, txn := range transactions {
		if !txn.IsExpense() || txn.Amount <= 0 || txn.Date.IsZero() {
			continue
		}
		key := merchant.Normalize(txn.Merchant())
		if key == "" {
			continue
		}
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
		}
		g.txns = append(g.txns, txn)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	patterns := make([]model.RecurringPattern, 0, len(keys))
	for _, k := range keys {
		g := byKey[k]
		if len(g.txns) < d.cfg.MinOccurrences {
			continue
		}
		if p, ok := d.analyze(g); ok {
			patterns = append(patterns, p)
		}
	}

	d.logger.Debug("recurrence detection finished",
		"transactions", len(transactions),
		"merchants", len(keys),
		"patterns", len(patterns))

	return patterns
}

func (d *Detector) analyze(g *group) (model.RecurringPattern, bool) {
	txns := g.txns
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		return txns[i].ID < txns[j].ID
	})

	deltas := make([]float64, 0, len(txns)-1)
	for i := 1; i < len(txns); i++ {
		deltas = append(deltas, daysBetween(txns[i-1].Date, txns[i].Date))
	}

	freq, ok := classifyInterval(deltas)
	if !ok {
		d.logger.Debug("irregular interval", "merchant", g.key, "deltas", deltas)
		return model.RecurringPattern{}, false
	}

	amounts := make([]float64, len(txns))
	dates := make([]time.Time, len(txns))
	ids := make([]string, len(txns))
	accountSet := make(map[string]bool)
	hintSet := make(map[string]bool)
	for i, txn := range txns {
		amounts[i] = txn.Amount
		dates[i] = txn.Date
		ids[i] = txn.ID
		if txn.AccountID != "" {
			accountSet[txn.AccountID] = true
		}
		for _, h := range txn.Category {
			hintSet[h] = true
		}
	}

	last := txns[len(txns)-1]
	return model.RecurringPattern{
		MerchantKey:       g.key,
		MerchantName:      merchant.Clean(last.Merchant()),
		Frequency:         freq,
		Dates:             dates,
		Amounts:           amounts,
		TransactionIDs:    ids,
		AccountIDs:        sortedKeys(accountSet),
		CategoryHints:     sortedKeys(hintSet),
		NextPredictedDate: last.Date.AddDate(0, 0, freq.IntervalDays()),
		Confidence:        d.score(len(txns), deltas, amounts),
	}, true
}

// classifyInterval picks the band containing the median delta and requires
// every delta to fall inside that band's tolerance.
func classifyInterval(deltas []float64) (model.Frequency, bool) {
	if len(deltas) == 0 {
		return "", false
	}

	m := median(deltas)
	for _, f := range model.Frequencies {
		if !within(m, f) {
			continue
		}
		for _, delta := range deltas {
			if !within(delta, f) {
				return "", false
			}
		}
		return f, true
	}
	return "", false
}

func within(days float64, f model.Frequency) bool {
	return math.Abs(days-float64(f.IntervalDays())) <= float64(f.ToleranceDays())
}

func (d *Detector) score(n int, deltas, amounts []float64) float64 {
	occurrence := math.Min(float64(n)*d.cfg.OccurrenceWeight, d.cfg.MaxOccurrenceBonus)

	intervalPenalty := math.Min(stddev(deltas)*d.cfg.IntervalPenalty, d.cfg.MaxIntervalPenalty)

	var amountPenalty float64
	if mean := average(amounts); mean > 0 {
		amountPenalty = math.Min(stddev(amounts)/mean*d.cfg.AmountPenalty, d.cfg.MaxAmountPenalty)
	}

	penalty := intervalPenalty + amountPenalty - d.cfg.ConsistencyCredit
	return confidence.Clamp(d.cfg.BaseConfidence + occurrence - penalty)
}

// Candidates converts patterns at or above the confidence floor into bank
// bill candidates, one source reference per contributing transaction.
func (d *Detector) Candidates(patterns []model.RecurringPattern) []model.BillCandidate {
	candidates := make([]model.BillCandidate, 0, len(patterns))
	for _, p := range patterns {
		if p.Confidence < d.cfg.MinConfidence {
			d.logger.Debug("pattern below confidence floor",
				"merchant", p.MerchantKey,
				"confidence", p.Confidence)
			continue
		}
		candidates = append(candidates, d.toCandidate(p))
	}
	return candidates
}

// FromTransactions runs detection and candidate conversion in one step.
func (d *Detector) FromTransactions(transactions []model.Transaction) []model.BillCandidate {
	return d.Candidates(d.DetectPatterns(transactions))
}

func (d *Detector) toCandidate(p model.RecurringPattern) model.BillCandidate {
	refs := make([]model.SourceRef, len(p.TransactionIDs))
	for i, id := range p.TransactionIDs {
		ref := model.SourceRef{Type: model.SourceBank, ID: id, Date: p.Dates[i]}
		if len(p.AccountIDs) == 1 {
			ref.AccountID = p.AccountIDs[0]
		}
		refs[i] = ref
	}

	category := d.classifier.Classify(p.CategoryHints...)
	if !category.IsSet() {
		category = d.classifier.Classify(p.MerchantName)
	}

	due := p.NextPredictedDate
	dates := make([]time.Time, len(p.Dates))
	copy(dates, p.Dates)

	return model.BillCandidate{
		ID:                    model.CandidateID(model.SourceBank, refs),
		SourceType:            model.SourceBank,
		MerchantNameRaw:       p.MerchantName,
		NormalizedMerchantKey: p.MerchantKey,
		Amount:                p.Amounts[len(p.Amounts)-1],
		ObservedDates:         dates,
		DueDate:               &due,
		Confidence:            p.Confidence,
		Category:              category,
		Frequency:             p.Frequency,
		Sources:               refs,
	}
}

func daysBetween(a, b time.Time) float64 {
	return math.Round(b.Sub(a).Hours() / 24)
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := average(values)
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)))
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
