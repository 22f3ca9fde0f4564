// Package source holds provider adapters that sit between the discovery
// engine and the concrete email and bank clients.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
)

// StaticEmail serves pre-fetched emails keyed by account.
type StaticEmail struct {
	Emails map[string][]model.Email
}

var _ service.EmailProvider = (*StaticEmail)(nil)

// FetchBillEmails implements service.EmailProvider.
func (s *StaticEmail) FetchBillEmails(ctx context.Context, account string) ([]model.Email, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emails, ok := s.Emails[account]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidAccount, account)
	}
	return append([]model.Email(nil), emails...), nil
}

// StaticBank serves pre-fetched transactions keyed by token.
type StaticBank struct {
	Transactions map[string][]model.Transaction
	Accounts     map[string][]model.Account
}

var _ service.BankProvider = (*StaticBank)(nil)

// ListAccounts implements service.BankProvider. Without explicit accounts the
// distinct account IDs of the token's transactions are returned.
func (s *StaticBank) ListAccounts(ctx context.Context, token string) ([]model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if accounts, ok := s.Accounts[token]; ok {
		return append([]model.Account(nil), accounts...), nil
	}

	txns, ok := s.Transactions[token]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", common.ErrInvalidToken)
	}
	seen := make(map[string]bool)
	var accounts []model.Account
	for _, t := range txns {
		if t.AccountID == "" || seen[t.AccountID] {
			continue
		}
		seen[t.AccountID] = true
		accounts = append(accounts, model.Account{ID: t.AccountID, Name: t.AccountID})
	}
	return accounts, nil
}

// ListTransactions implements service.BankProvider.
func (s *StaticBank) ListTransactions(ctx context.Context, token string, start, end time.Time) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txns, ok := s.Transactions[token]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", common.ErrInvalidToken)
	}

	out := make([]model.Transaction, 0, len(txns))
	for _, t := range txns {
		if !start.IsZero() && t.Date.Before(start) {
			continue
		}
		if !end.IsZero() && t.Date.After(end) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
