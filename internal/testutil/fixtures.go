package testutil

import (
	"fmt"
	"time"

	"github.com/Veraticus/billfinder/internal/merchant"
	"github.com/Veraticus/billfinder/internal/model"
)

// Epoch is the reference date fixtures are anchored to.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// SeriesBuilder produces a regular series of transactions for one merchant.
//
//	txns := testutil.NewSeries("NETFLIX.COM", 15.99).
//		Every(30).
//		Count(4).
//		Build()
type SeriesBuilder struct {
	start    time.Time
	name     string
	account  string
	jitter   []int
	amount   float64
	interval int
	count    int
}

// NewSeries starts a monthly series of three charges beginning at Epoch.
func NewSeries(name string, amount float64) *SeriesBuilder {
	return &SeriesBuilder{
		name:     name,
		amount:   amount,
		account:  "acct-1",
		start:    Epoch,
		interval: 30,
		count:    3,
	}
}

// Every sets the spacing in days.
func (b *SeriesBuilder) Every(days int) *SeriesBuilder {
	b.interval = days
	return b
}

// Count sets the number of charges.
func (b *SeriesBuilder) Count(n int) *SeriesBuilder {
	b.count = n
	return b
}

// From sets the date of the first charge.
func (b *SeriesBuilder) From(start time.Time) *SeriesBuilder {
	b.start = start
	return b
}

// Account sets the account ID on every charge.
func (b *SeriesBuilder) Account(id string) *SeriesBuilder {
	b.account = id
	return b
}

// Jitter shifts individual charges by the given number of days, in order.
func (b *SeriesBuilder) Jitter(days ...int) *SeriesBuilder {
	b.jitter = days
	return b
}

// Build returns the series.
func (b *SeriesBuilder) Build() []model.Transaction {
	key := merchant.Normalize(b.name)
	txns := make([]model.Transaction, 0, b.count)
	for i := 0; i < b.count; i++ {
		offset := i * b.interval
		if i < len(b.jitter) {
			offset += b.jitter[i]
		}
		txn := model.Transaction{
			ID:        fmt.Sprintf("%s-%s-%d", b.account, key, i+1),
			AccountID: b.account,
			Date:      b.start.AddDate(0, 0, offset),
			Name:      b.name,
			Amount:    b.amount,
			Direction: model.DirectionExpense,
		}
		txn.Hash = txn.GenerateHash()
		txns = append(txns, txn)
	}
	return txns
}

// BillEmail builds a plain bill notice from the given sender.
func BillEmail(id, account, from, subject string, amount float64, sent time.Time) model.Email {
	return model.Email{
		ID:      id,
		Account: account,
		From:    from,
		Subject: subject,
		Body:    fmt.Sprintf("Your bill is ready. Amount due: $%.2f. Billed monthly.", amount),
		Date:    sent,
	}
}

// Run builds a finished discovery result around the given bills.
func Run(id string, started time.Time, bills ...model.ReconciledBill) *model.DiscoveryResult {
	return &model.DiscoveryResult{
		RunID:      id,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Bills:      bills,
		Stats: model.DiscoveryStatistics{
			TotalBillsFound: len(bills),
		},
	}
}

// Bill builds a single-source reconciled bill.
func Bill(name string, amount float64, source model.SourceType) model.ReconciledBill {
	key := merchant.CanonicalKey(name, amount)
	return model.ReconciledBill{
		ID:                    model.BillID(key),
		CanonicalKey:          key,
		MerchantName:          name,
		NormalizedMerchantKey: merchant.Normalize(name),
		Amount:                amount,
		Confidence:            80,
		LastObserved:          Epoch,
		SourceTypes:           []model.SourceType{source},
	}
}
