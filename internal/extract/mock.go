package extract

import (
	"context"
	"sync"

	"github.com/Veraticus/billfinder/internal/service"
)

// MockStrategy is a test implementation of service.BillExtractor.
type MockStrategy struct {
	// ExtractFn controls the result; when nil every message is "not a bill".
	ExtractFn func(ctx context.Context, subject, sender, body string) (*service.Extraction, error)

	calls []ExtractCall
	mu    sync.Mutex
}

// ExtractCall records the parameters of an Extract call.
type ExtractCall struct {
	Subject string
	Sender  string
	Body    string
}

var _ service.BillExtractor = (*MockStrategy)(nil)

// Extract implements service.BillExtractor.
func (m *MockStrategy) Extract(ctx context.Context, subject, sender, body string) (*service.Extraction, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ExtractCall{Subject: subject, Sender: sender, Body: body})
	m.mu.Unlock()

	if m.ExtractFn != nil {
		return m.ExtractFn(ctx, subject, sender, body)
	}
	return nil, nil //nolint:nilnil // Not a bill is a valid result
}

// Calls returns a copy of the recorded calls.
func (m *MockStrategy) Calls() []ExtractCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExtractCall, len(m.calls))
	copy(out, m.calls)
	return out
}
