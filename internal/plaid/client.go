// Package plaid provides a bank provider backed by the Plaid API.
package plaid

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/merchant"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
	"github.com/plaid/plaid-go/v20/plaid"
)

// Config holds Plaid API configuration. Access tokens are passed per call,
// one per linked institution.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
	BaseURL     string // overrides Environment, for proxies and tests
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("plaid client ID is required")
	}
	if c.Secret == "" {
		return fmt.Errorf("plaid secret is required")
	}
	if c.BaseURL != "" {
		return nil
	}
	if c.Environment == "" {
		return fmt.Errorf("plaid environment is required")
	}

	validEnvs := map[string]bool{
		"sandbox":    true,
		"production": true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid Plaid environment: must be sandbox or production")
	}

	return nil
}

// Client implements service.BankProvider.
type Client struct {
	client    *plaid.APIClient
	logger    *slog.Logger
	retryOpts service.RetryOptions
	pageSize  int32
}

var _ service.BankProvider = (*Client)(nil)

// NewClient creates a new Plaid client with the given configuration.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)

	switch {
	case cfg.BaseURL != "":
		configuration.UseEnvironment(plaid.Environment(cfg.BaseURL))
	case cfg.Environment == "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	default:
		configuration.UseEnvironment(plaid.Production)
	}

	return &Client{
		client:   plaid.NewAPIClient(configuration),
		logger:   slog.Default().With("component", "plaid"),
		pageSize: 500, // Plaid's max page size
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// ListAccounts returns the accounts reachable through token.
func (c *Client) ListAccounts(ctx context.Context, token string) ([]model.Account, error) {
	if token == "" {
		return nil, common.ErrInvalidToken
	}

	var accounts []plaid.AccountBase
	err := common.WithRetry(ctx, func() error {
		request := plaid.NewAccountsGetRequest(token)
		resp, _, err := c.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*request).Execute()
		if err != nil {
			return c.classifyError("failed to fetch accounts", err)
		}
		accounts = resp.GetAccounts()
		return nil
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}

	out := make([]model.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, model.Account{
			ID:   a.GetAccountId(),
			Name: a.GetName(),
			Type: string(a.GetType()),
		})
	}

	c.logger.Info("Fetched accounts", "count", len(out))
	return out, nil
}

// ListTransactions fetches all transactions for token between start and end,
// following Plaid's offset pagination.
func (c *Client) ListTransactions(ctx context.Context, token string, start, end time.Time) ([]model.Transaction, error) {
	if token == "" {
		return nil, common.ErrInvalidToken
	}
	if start.After(end) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	c.logger.Info("Fetching transactions from Plaid",
		"start_date", start.Format("2006-01-02"),
		"end_date", end.Format("2006-01-02"))

	var all []plaid.Transaction
	offset := int32(0)

	for {
		var page []plaid.Transaction
		var total int32

		err := common.WithRetry(ctx, func() error {
			request := plaid.NewTransactionsGetRequest(
				token,
				start.Format("2006-01-02"),
				end.Format("2006-01-02"),
			)
			request.SetOptions(plaid.TransactionsGetRequestOptions{
				Count:  plaid.PtrInt32(c.pageSize),
				Offset: plaid.PtrInt32(offset),
			})

			resp, _, err := c.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
			if err != nil {
				return c.classifyError("failed to fetch transactions", err)
			}

			page = resp.GetTransactions()
			total = resp.GetTotalTransactions()
			return nil
		}, c.retryOpts)
		if err != nil {
			return nil, err
		}

		c.logger.Debug("Fetched transaction batch",
			"count", len(page),
			"offset", offset,
			"total", total)

		all = append(all, page...)
		if len(page) < int(c.pageSize) || int32(len(all)) >= total {
			break
		}
		offset += c.pageSize
	}

	transactions := make([]model.Transaction, 0, len(all))
	for _, pt := range all {
		if pt.GetPending() {
			continue
		}
		transactions = append(transactions, c.mapTransaction(pt))
	}

	c.logger.Info("Fetched all transactions", "count", len(transactions))
	return transactions, nil
}

// classifyError maps Plaid API errors onto the common error taxonomy.
func (c *Client) classifyError(msg string, err error) error {
	plaidError := extractPlaidError(err)
	if plaidError == nil {
		return fmt.Errorf("%w: %s: %w", common.ErrPlaidConnection, msg, err)
	}

	switch plaidError.ErrorCode {
	case "RATE_LIMIT_EXCEEDED":
		c.logger.Warn("Rate limit hit, will retry", "error", plaidError.ErrorMessage)
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: %s", common.ErrPlaidRateLimit, plaidError.ErrorMessage),
			Retryable: true,
		}
	case "INVALID_ACCESS_TOKEN", "ITEM_LOGIN_REQUIRED", "ITEM_NOT_FOUND":
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: %s - %s", common.ErrInvalidToken, plaidError.ErrorCode, plaidError.ErrorMessage),
			Retryable: false,
		}
	default:
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: plaid API error: %s - %s", common.ErrPlaidConnection, plaidError.ErrorCode, plaidError.ErrorMessage),
			Retryable: false,
		}
	}
}

// mapTransaction converts a Plaid transaction to our internal model.
func (c *Client) mapTransaction(pt plaid.Transaction) model.Transaction {
	date, err := time.Parse("2006-01-02", pt.GetDate())
	if err != nil {
		c.logger.Error("Failed to parse transaction date", "date", pt.GetDate(), "error", err)
	}

	merchantName := pt.GetMerchantName()
	if merchantName != "" {
		merchantName = merchant.Clean(merchantName)
	}

	transactionType := ""
	if channel := pt.GetPaymentChannel(); channel != "" {
		switch channel {
		case "online":
			transactionType = "ONLINE"
		case "in_store":
			transactionType = "POS"
		default:
			transactionType = "OTHER"
		}
	}

	// In Plaid positive amounts are debits (money out), negative are credits.
	amount := pt.GetAmount()
	var direction model.TransactionDirection
	switch {
	case amount > 0:
		direction = model.DirectionExpense
	case amount < 0:
		direction = model.DirectionIncome
		amount = -amount
	}

	tx := model.Transaction{
		Date:         date,
		ID:           pt.GetTransactionId(),
		Name:         pt.GetName(),
		MerchantName: merchantName,
		AccountID:    pt.GetAccountId(),
		Amount:       amount,
		Category:     pt.GetCategory(),
		Type:         transactionType,
		Direction:    direction,
	}
	tx.Hash = tx.GenerateHash()

	return tx
}

// extractPlaidError attempts to extract a Plaid error from a generic error.
func extractPlaidError(err error) *plaid.PlaidError {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return nil
	}
	return &plaidErr
}
