package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
)

// Route sends tokens with a prefix to a dedicated provider.
type Route struct {
	Provider service.BankProvider
	Prefix   string
}

// BankRouter picks a bank provider per token: the first route whose prefix
// matches wins, anything else goes to the fallback.
type BankRouter struct {
	fallback service.BankProvider
	routes   []Route
}

var _ service.BankProvider = (*BankRouter)(nil)

// NewBankRouter creates a router. fallback may be nil, in which case tokens
// without a matching route are rejected.
func NewBankRouter(fallback service.BankProvider, routes ...Route) *BankRouter {
	return &BankRouter{fallback: fallback, routes: routes}
}

func (r *BankRouter) route(token string) (service.BankProvider, error) {
	for _, rt := range r.routes {
		if strings.HasPrefix(token, rt.Prefix) {
			return rt.Provider, nil
		}
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("no bank provider configured for token %s", Redact(token))
	}
	return r.fallback, nil
}

// ListAccounts implements service.BankProvider.
func (r *BankRouter) ListAccounts(ctx context.Context, token string) ([]model.Account, error) {
	p, err := r.route(token)
	if err != nil {
		return nil, err
	}
	return p.ListAccounts(ctx, token)
}

// ListTransactions implements service.BankProvider.
func (r *BankRouter) ListTransactions(ctx context.Context, token string, start, end time.Time) ([]model.Transaction, error) {
	p, err := r.route(token)
	if err != nil {
		return nil, err
	}
	return p.ListTransactions(ctx, token, start, end)
}

// Redact keeps enough of a token to tell tokens apart in logs. Prefixed
// tokens are shown whole except for URL credentials.
func Redact(token string) string {
	if i := strings.Index(token, ":"); i >= 0 && i < len(token)-1 {
		if u, err := url.Parse(token[i+1:]); err == nil && u.User != nil {
			return token[:i+1] + u.Redacted()
		}
		return token
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
