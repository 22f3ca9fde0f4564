package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesBuilder(t *testing.T) {
	txns := NewSeries("NETFLIX.COM", 15.99).Every(30).Count(4).Jitter(0, 2, -1).Build()
	require.Len(t, txns, 4)

	assert.Equal(t, Epoch, txns[0].Date)
	assert.Equal(t, Epoch.AddDate(0, 0, 32), txns[1].Date)
	assert.Equal(t, Epoch.AddDate(0, 0, 59), txns[2].Date)
	assert.Equal(t, Epoch.AddDate(0, 0, 90), txns[3].Date)

	ids := map[string]bool{}
	for _, txn := range txns {
		assert.InDelta(t, 15.99, txn.Amount, 0.001)
		assert.True(t, txn.IsExpense())
		assert.NotEmpty(t, txn.Hash)
		ids[txn.ID] = true
	}
	assert.Len(t, ids, 4)
}

func TestSetupTestDBWithRuns(t *testing.T) {
	bill := Bill("Netflix", 15.99, model.SourceBank)
	store := SetupTestDBWithRuns(t, Run("run-1", Epoch, bill))

	latest, err := store.GetLatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)
	require.Len(t, latest.Bills, 1)
	assert.Equal(t, bill.CanonicalKey, latest.Bills[0].CanonicalKey)
}

func TestBillEmail(t *testing.T) {
	sent := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	email := BillEmail("m1", "me@example.com", "Netflix <info@netflix.com>", "Your Netflix bill", 15.99, sent)
	assert.Contains(t, email.Body, "$15.99")
	assert.Equal(t, sent, email.Date)
}
