package enrich

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichBill(t *testing.T) {
	last := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)
	existingDue := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		bill         model.ReconciledBill
		wantCategory model.Category
		wantLogo     string
		wantDue      *time.Time
	}{
		{
			name:         "category fallback and logo",
			bill:         model.ReconciledBill{MerchantName: "Netflix", NormalizedMerchantKey: "netflix"},
			wantCategory: model.CategoryStreaming,
			wantLogo:     "netflix.com",
		},
		{
			name:         "other is replaced when a rule matches",
			bill:         model.ReconciledBill{MerchantName: "Pg&E", NormalizedMerchantKey: "pge", Category: model.CategoryOther},
			wantCategory: model.CategoryUtilities,
			wantLogo:     "pge.com",
		},
		{
			name:         "existing category kept",
			bill:         model.ReconciledBill{MerchantName: "Netflix", Category: model.CategorySubscription},
			wantCategory: model.CategorySubscription,
			wantLogo:     "netflix.com",
		},
		{
			name:         "unknown merchant keeps other and has no logo",
			bill:         model.ReconciledBill{MerchantName: "Corner Bakery", NormalizedMerchantKey: "cornerbake"},
			wantCategory: model.CategoryOther,
		},
		{
			name: "category from email subject",
			bill: model.ReconciledBill{
				MerchantName: "Acme",
				Sources:      []model.SourceRef{{Type: model.SourceEmail, ID: "m1", Subject: "Your electric bill"}},
			},
			wantCategory: model.CategoryUtilities,
		},
		{
			name:         "due date backfilled from frequency",
			bill:         model.ReconciledBill{MerchantName: "PG&E", Frequency: model.FrequencyMonthly, LastObserved: last},
			wantCategory: model.CategoryUtilities,
			wantLogo:     "pge.com",
			wantDue:      ptrTime(time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)),
		},
		{
			name:         "existing due date kept",
			bill:         model.ReconciledBill{MerchantName: "PG&E", Frequency: model.FrequencyMonthly, LastObserved: last, DueDate: &existingDue},
			wantCategory: model.CategoryUtilities,
			wantLogo:     "pge.com",
			wantDue:      &existingDue,
		},
		{
			name:         "no backfill without frequency",
			bill:         model.ReconciledBill{MerchantName: "PG&E", LastObserved: last},
			wantCategory: model.CategoryUtilities,
			wantLogo:     "pge.com",
		},
	}

	e := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.EnrichBill(&tt.bill)
			assert.Equal(t, tt.wantCategory, got.Category)
			assert.Equal(t, tt.wantLogo, got.LogoRef)
			if tt.wantDue == nil {
				assert.Nil(t, got.DueDate)
			} else {
				require.NotNil(t, got.DueDate)
				assert.Equal(t, *tt.wantDue, *got.DueDate)
			}
		})
	}
}

func TestEnrich_DoesNotMutateInput(t *testing.T) {
	bills := []model.ReconciledBill{
		{MerchantName: "Hulu", Frequency: model.FrequencyYearly, LastObserved: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{MerchantName: "Spotify"},
	}

	out := New(nil).Enrich(bills)
	require.Len(t, out, 2)
	assert.Equal(t, "hulu.com", out[0].LogoRef)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), *out[0].DueDate)
	assert.Equal(t, "spotify.com", out[1].LogoRef)

	assert.Empty(t, bills[0].LogoRef)
	assert.Nil(t, bills[0].DueDate)
	assert.Empty(t, bills[0].Category)
}

func TestLoadLogos(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logos.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logos:\n  - match: Corner Bakery\n    ref: cornerbakery.com\n  - match: ''\n    ref: ignored\n"), 0o600))

	logos, err := LoadLogos(path)
	require.NoError(t, err)
	require.Len(t, logos, 2)

	e := NewWithLogos(nil, logos)
	got := e.EnrichBill(&model.ReconciledBill{MerchantName: "Corner Bakery"})
	assert.Equal(t, "cornerbakery.com", got.LogoRef)

	_, err = LoadLogos(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func ptrTime(t time.Time) *time.Time { return &t }
