package recurrence

import (
	"testing"
	"time"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func txn(id, name string, date time.Time, amount float64) model.Transaction {
	return model.Transaction{
		ID:        id,
		AccountID: "acc-1",
		Name:      name,
		Date:      date,
		Amount:    amount,
		Direction: model.DirectionExpense,
	}
}

func pgeSeries() []model.Transaction {
	return []model.Transaction{
		txn("t1", "PG&E", day(2024, 1, 15), 120),
		txn("t2", "PG&E", day(2024, 2, 14), 125),
		txn("t3", "PG&E", day(2024, 3, 16), 118),
	}
}

func TestDetectPatterns_MonthlyUtility(t *testing.T) {
	d := New(nil)

	patterns := d.DetectPatterns(pgeSeries())
	require.Len(t, patterns, 1)

	p := patterns[0]
	assert.Equal(t, "pge", p.MerchantKey)
	assert.Equal(t, model.FrequencyMonthly, p.Frequency)
	assert.Equal(t, day(2024, 4, 15), p.NextPredictedDate)
	assert.GreaterOrEqual(t, p.Confidence, 70.0)
	assert.InDelta(t, 76.07, p.Confidence, 0.01)
	assert.Equal(t, []string{"t1", "t2", "t3"}, p.TransactionIDs)
	assert.Equal(t, []string{"acc-1"}, p.AccountIDs)
	assert.Equal(t, []float64{120, 125, 118}, p.Amounts)
}

func TestDetectPatterns_SingleTransaction(t *testing.T) {
	d := New(nil)

	txns := []model.Transaction{txn("t1", "Hardware Store", day(2024, 3, 2), 54.20)}
	assert.Empty(t, d.DetectPatterns(txns))
	assert.Empty(t, d.FromTransactions(txns))
}

func TestDetectPatterns_Frequencies(t *testing.T) {
	tests := []struct {
		name     string
		dates    []time.Time
		expected model.Frequency
		found    bool
	}{
		{
			name:     "weekly",
			dates:    []time.Time{day(2024, 1, 1), day(2024, 1, 8), day(2024, 1, 15), day(2024, 1, 23)},
			expected: model.FrequencyWeekly,
			found:    true,
		},
		{
			name:     "quarterly",
			dates:    []time.Time{day(2023, 1, 10), day(2023, 4, 10), day(2023, 7, 12)},
			expected: model.FrequencyQuarterly,
			found:    true,
		},
		{
			name:     "yearly",
			dates:    []time.Time{day(2023, 5, 1), day(2024, 5, 1)},
			expected: model.FrequencyYearly,
			found:    true,
		},
		{
			name:  "median between bands",
			dates: []time.Time{day(2024, 1, 1), day(2024, 1, 31), day(2024, 3, 31)},
			found: false,
		},
		{
			name:  "one interval outside tolerance",
			dates: []time.Time{day(2024, 1, 1), day(2024, 1, 31), day(2024, 3, 1), day(2024, 4, 10)},
			found: false,
		},
		{
			name:  "same day charges",
			dates: []time.Time{day(2024, 1, 1), day(2024, 1, 1)},
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var txns []model.Transaction
			for i, date := range tt.dates {
				txns = append(txns, txn(string(rune('a'+i)), "Acme Gym", date, 30))
			}

			patterns := New(nil).DetectPatterns(txns)
			if !tt.found {
				assert.Empty(t, patterns)
				return
			}
			require.Len(t, patterns, 1)
			assert.Equal(t, tt.expected, patterns[0].Frequency)
			last := tt.dates[len(tt.dates)-1]
			assert.Equal(t, last.AddDate(0, 0, tt.expected.IntervalDays()), patterns[0].NextPredictedDate)
		})
	}
}

func TestDetectPatterns_IgnoresIncomeAndZeroAmounts(t *testing.T) {
	refund := txn("t4", "PG&E", day(2024, 4, 15), 20)
	refund.Direction = model.DirectionIncome
	zero := txn("t5", "PG&E", day(2024, 5, 15), 0)

	patterns := New(nil).DetectPatterns(append(pgeSeries(), refund, zero))
	require.Len(t, patterns, 1)
	assert.Len(t, patterns[0].TransactionIDs, 3)
}

func TestDetectPatterns_GroupsByMerchantHint(t *testing.T) {
	a := txn("t1", "NETFLIX.COM 866-579-7172", day(2024, 1, 3), 15.99)
	a.MerchantName = "Netflix"
	b := txn("t2", "NETFLIX INC", day(2024, 2, 3), 15.99)
	b.MerchantName = "NETFLIX.COM"

	patterns := New(nil).DetectPatterns([]model.Transaction{b, a})
	require.Len(t, patterns, 1)
	assert.Equal(t, "netflix", patterns[0].MerchantKey)
	assert.Equal(t, []string{"t1", "t2"}, patterns[0].TransactionIDs)
}

func TestDetectPatterns_SortedByMerchant(t *testing.T) {
	txns := append(pgeSeries(),
		txn("h1", "Hulu", day(2024, 1, 5), 7.99),
		txn("h2", "Hulu", day(2024, 2, 5), 7.99),
	)

	patterns := New(nil).DetectPatterns(txns)
	require.Len(t, patterns, 2)
	assert.Equal(t, "hulu", patterns[0].MerchantKey)
	assert.Equal(t, "pge", patterns[1].MerchantKey)
}

func TestConfidence_PenalizesVariance(t *testing.T) {
	d := New(nil)

	steady := d.DetectPatterns([]model.Transaction{
		txn("a", "Gym", day(2024, 1, 1), 30),
		txn("b", "Gym", day(2024, 1, 31), 30),
	})
	volatile := d.DetectPatterns([]model.Transaction{
		txn("a", "Gym", day(2024, 1, 1), 10),
		txn("b", "Gym", day(2024, 1, 31), 30),
	})
	require.Len(t, steady, 1)
	require.Len(t, volatile, 1)

	assert.InDelta(t, 75, steady[0].Confidence, 0.001)
	assert.InDelta(t, 45, volatile[0].Confidence, 0.001)

	assert.Len(t, d.Candidates(steady), 1)
	assert.Empty(t, d.Candidates(volatile))
}

func TestCandidates(t *testing.T) {
	d := New(nil)

	candidates := d.FromTransactions(pgeSeries())
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, model.SourceBank, c.SourceType)
	assert.Equal(t, "pge", c.NormalizedMerchantKey)
	assert.Equal(t, 118.0, c.Amount)
	assert.Equal(t, model.FrequencyMonthly, c.Frequency)
	assert.Equal(t, model.CategoryUtilities, c.Category)
	require.NotNil(t, c.DueDate)
	assert.Equal(t, day(2024, 4, 15), *c.DueDate)
	require.Len(t, c.Sources, 3)
	for _, s := range c.Sources {
		assert.Equal(t, model.SourceBank, s.Type)
		assert.Equal(t, "acc-1", s.AccountID)
	}
	assert.Len(t, c.ObservedDates, 3)

	reversed := pgeSeries()
	reversed[0], reversed[2] = reversed[2], reversed[0]
	again := d.FromTransactions(reversed)
	require.Len(t, again, 1)
	assert.Equal(t, c.ID, again[0].ID)
}

func TestCandidates_CategoryFromHints(t *testing.T) {
	a := txn("a", "ACME SVC", day(2024, 1, 1), 9.99)
	b := txn("b", "ACME SVC", day(2024, 1, 31), 9.99)
	a.Category = []string{"Service", "Subscription"}

	candidates := New(nil).FromTransactions([]model.Transaction{a, b})
	require.Len(t, candidates, 1)
	assert.Equal(t, model.CategorySubscription, candidates[0].Category)
}

func TestWindow(t *testing.T) {
	d := NewWithConfig(Config{Lookback: 30 * 24 * time.Hour}, nil)
	now := day(2024, 6, 30)

	start, end := d.Window(now)
	assert.Equal(t, day(2024, 5, 31), start)
	assert.Equal(t, now, end)
}
