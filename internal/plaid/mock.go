package plaid

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
)

// MockClient is a mock implementation of service.BankProvider for testing.
type MockClient struct {
	// Functions that can be set by tests to control behavior
	ListTransactionsFn func(ctx context.Context, token string, start, end time.Time) ([]model.Transaction, error)
	ListAccountsFn     func(ctx context.Context, token string) ([]model.Account, error)

	// Call tracking
	ListTransactionsCalls []ListTransactionsCall
	ListAccountsCalls     []string

	mu sync.Mutex
}

// ListTransactionsCall records the parameters of a ListTransactions call.
type ListTransactionsCall struct {
	Start time.Time
	End   time.Time
	Token string
}

var _ service.BankProvider = (*MockClient)(nil)

// NewMockClient creates a new mock Plaid client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// ListTransactions implements service.BankProvider.
func (m *MockClient) ListTransactions(ctx context.Context, token string, start, end time.Time) ([]model.Transaction, error) {
	m.mu.Lock()
	m.ListTransactionsCalls = append(m.ListTransactionsCalls, ListTransactionsCall{Token: token, Start: start, End: end})
	m.mu.Unlock()

	if m.ListTransactionsFn != nil {
		return m.ListTransactionsFn(ctx, token, start, end)
	}
	return []model.Transaction{}, nil
}

// ListAccounts implements service.BankProvider.
func (m *MockClient) ListAccounts(ctx context.Context, token string) ([]model.Account, error) {
	m.mu.Lock()
	m.ListAccountsCalls = append(m.ListAccountsCalls, token)
	m.mu.Unlock()

	if m.ListAccountsFn != nil {
		return m.ListAccountsFn(ctx, token)
	}
	return []model.Account{}, nil
}

// Reset clears all recorded calls.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListTransactionsCalls = nil
	m.ListAccountsCalls = nil
}
