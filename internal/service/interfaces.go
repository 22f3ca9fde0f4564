// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/billfinder/internal/model"
)

// EmailProvider fetches candidate bill emails for one account.
type EmailProvider interface {
	FetchBillEmails(ctx context.Context, account string) ([]model.Email, error)
}

// BankProvider lists accounts and transactions behind one access token.
type BankProvider interface {
	ListAccounts(ctx context.Context, token string) ([]model.Account, error)
	ListTransactions(ctx context.Context, token string, start, end time.Time) ([]model.Transaction, error)
}

// Extraction is what a text extraction strategy found in a single email.
// Nil pointer fields were not found.
type Extraction struct {
	Amount     *float64
	DueDate    *time.Time
	Merchant   string
	Category   model.Category
	Frequency  model.Frequency
	Confidence float64
}

// BillExtractor turns the text of one email into structured bill fields.
// A nil Extraction with a nil error means the message is not a bill.
type BillExtractor interface {
	Extract(ctx context.Context, subject, sender, body string) (*Extraction, error)
}

// RunStore persists finished discovery runs outside the core pipeline.
type RunStore interface {
	SaveRun(ctx context.Context, result *model.DiscoveryResult) error
	GetLatestRun(ctx context.Context) (*model.DiscoveryResult, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	GetBills(ctx context.Context, runID string) ([]model.ReconciledBill, error)
	Close() error
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	RunID      string
	Stats      model.DiscoveryStatistics
	ErrorCount int
	Canceled   bool
}

// RetryOptions configures retry behavior.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
