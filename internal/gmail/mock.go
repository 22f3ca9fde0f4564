package gmail

import (
	"context"
	"sync"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
)

// MockClient is a mock implementation of service.EmailProvider for testing.
type MockClient struct {
	FetchBillEmailsFn func(ctx context.Context, account string) ([]model.Email, error)

	FetchBillEmailsCalls []string

	mu sync.Mutex
}

var _ service.EmailProvider = (*MockClient)(nil)

// NewMockClient creates a new mock Gmail client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// FetchBillEmails implements service.EmailProvider.
func (m *MockClient) FetchBillEmails(ctx context.Context, account string) ([]model.Email, error) {
	m.mu.Lock()
	m.FetchBillEmailsCalls = append(m.FetchBillEmailsCalls, account)
	m.mu.Unlock()

	if m.FetchBillEmailsFn != nil {
		return m.FetchBillEmailsFn(ctx, account)
	}
	return []model.Email{}, nil
}
