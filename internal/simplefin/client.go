// Package simplefin provides a bank provider backed by a SimpleFIN Bridge
// access URL.
package simplefin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/merchant"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
	"github.com/shopspring/decimal"
)

// TokenPrefix marks a bank token that carries a SimpleFIN access URL.
const TokenPrefix = "simplefin:"

// SimpleFIN API response types.
type accountSet struct {
	Errors   []string  `json:"errors"`
	Accounts []account `json:"accounts"`
}

type account struct {
	Org          org           `json:"org"`
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Currency     string        `json:"currency"`
	Transactions []transaction `json:"transactions"`
}

type org struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type transaction struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Payee       string `json:"payee"`
	Posted      int64  `json:"posted"`
	Pending     bool   `json:"pending"`
}

// Client implements service.BankProvider over the SimpleFIN protocol.
// Each token is "simplefin:" followed by the access URL, whose userinfo holds
// the credentials.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	retryOpts  service.RetryOptions
}

var _ service.BankProvider = (*Client)(nil)

// NewClient creates a SimpleFIN client.
func NewClient() *Client {
	return NewClientWithHTTP(&http.Client{Timeout: 30 * time.Second})
}

// NewClientWithHTTP creates a client that sends requests through httpClient.
func NewClientWithHTTP(httpClient *http.Client) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     slog.Default().With("component", "simplefin"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// IsToken reports whether token carries a SimpleFIN access URL.
func IsToken(token string) bool {
	return strings.HasPrefix(token, TokenPrefix)
}

// ParseToken returns the access URL inside token.
func ParseToken(token string) (*url.URL, error) {
	if !IsToken(token) {
		return nil, fmt.Errorf("%w: not a simplefin token", common.ErrInvalidToken)
	}
	u, err := url.Parse(strings.TrimPrefix(token, TokenPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed access URL", common.ErrInvalidToken)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("%w: access URL must be http(s)", common.ErrInvalidToken)
	}
	return u, nil
}

// ListAccounts implements service.BankProvider.
func (c *Client) ListAccounts(ctx context.Context, token string) ([]model.Account, error) {
	set, err := c.fetch(ctx, token, url.Values{"balances-only": {"1"}})
	if err != nil {
		return nil, err
	}

	accounts := make([]model.Account, 0, len(set.Accounts))
	for _, a := range set.Accounts {
		name := a.Name
		if a.Org.Name != "" {
			name = a.Org.Name + " " + a.Name
		}
		accounts = append(accounts, model.Account{ID: a.ID, Name: name})
	}
	return accounts, nil
}

// ListTransactions implements service.BankProvider. Pending transactions are
// skipped; posted ones outside [start, end] are dropped.
func (c *Client) ListTransactions(ctx context.Context, token string, start, end time.Time) ([]model.Transaction, error) {
	if start.After(end) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	// end-date is exclusive in SimpleFIN.
	set, err := c.fetch(ctx, token, url.Values{
		"start-date": {strconv.FormatInt(start.Unix(), 10)},
		"end-date":   {strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10)},
	})
	if err != nil {
		return nil, err
	}

	var out []model.Transaction
	for _, a := range set.Accounts {
		for _, tx := range a.Transactions {
			if tx.Pending {
				continue
			}
			date := time.Unix(tx.Posted, 0).UTC()
			if date.Before(start) || date.After(end) {
				continue
			}
			mapped, err := mapTransaction(a.ID, tx, date)
			if err != nil {
				c.logger.Warn("Skipping transaction", "account", a.ID, "id", tx.ID, "error", err)
				continue
			}
			out = append(out, mapped)
		}
	}

	c.logger.Info("Fetched transactions", "accounts", len(set.Accounts), "transactions", len(out))
	return out, nil
}

func (c *Client) fetch(ctx context.Context, token string, query url.Values) (*accountSet, error) {
	base, err := ParseToken(token)
	if err != nil {
		return nil, err
	}

	u := *base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/accounts"
	u.RawQuery = query.Encode()

	var set accountSet
	err = common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err)}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %w", common.ErrSimpleFIN, err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if err := classifyStatus(resp); err != nil {
			return err
		}

		set = accountSet{}
		if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
			return &common.RetryableError{Err: fmt.Errorf("%w: failed to decode response: %w", common.ErrSimpleFIN, err)}
		}
		return nil
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}

	for _, msg := range set.Errors {
		c.logger.Warn("SimpleFIN reported a problem", "message", msg)
	}
	return &set, nil
}

// classifyStatus maps HTTP failures onto the common error taxonomy. Only
// throttling and server errors are retried.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return &common.RetryableError{Err: fmt.Errorf("%w: simplefin access revoked (%d)", common.ErrInvalidToken, resp.StatusCode)}
	case resp.StatusCode == http.StatusPaymentRequired:
		return &common.RetryableError{Err: fmt.Errorf("%w: subscription payment required", common.ErrSimpleFIN)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrSimpleFIN, common.ErrRateLimit), Retryable: true}
	case resp.StatusCode >= 500:
		return &common.RetryableError{Err: fmt.Errorf("%w: server error %d: %s", common.ErrSimpleFIN, resp.StatusCode, msg), Retryable: true}
	default:
		return &common.RetryableError{Err: fmt.Errorf("%w: unexpected status %d: %s", common.ErrSimpleFIN, resp.StatusCode, msg)}
	}
}

func mapTransaction(accountID string, tx transaction, date time.Time) (model.Transaction, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(tx.Amount))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: amount %q", common.ErrExtraction, tx.Amount)
	}

	direction := model.DirectionExpense
	if amount.IsPositive() {
		direction = model.DirectionIncome
	}

	out := model.Transaction{
		ID:           accountID + "_" + tx.ID,
		Date:         date,
		Name:         tx.Description,
		MerchantName: merchant.Clean(tx.Payee),
		Amount:       amount.Abs().Round(2).InexactFloat64(),
		AccountID:    accountID,
		Direction:    direction,
	}
	out.Hash = out.GenerateHash()
	return out, nil
}
