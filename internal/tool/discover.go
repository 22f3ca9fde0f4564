// Package tool exposes bill discovery as an MCP tool. Callers hand over the
// emails and transactions inline, so the tool never reaches a mailbox or a bank.
package tool

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/billfinder/internal/discovery"
	"github.com/Veraticus/billfinder/internal/enrich"
	"github.com/Veraticus/billfinder/internal/extract"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/reconcile"
	"github.com/Veraticus/billfinder/internal/recurrence"
	"github.com/Veraticus/billfinder/internal/source"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// InlineAccount labels emails submitted without an account.
	InlineAccount = "inline"
	// InlineToken names the bank source built from submitted transactions.
	InlineToken = "inline:transactions"
)

// MetadataDiscoverBills describes the discover_bills tool.
var MetadataDiscoverBills = &mcp.Tool{
	Name: "discover_bills",
	Description: "Find recurring bills and subscriptions in a set of emails and bank transactions. " +
		"Emails are scanned for amounts, due dates and billing frequency; transactions are grouped " +
		"by merchant and checked for regular intervals. Findings that refer to the same obligation " +
		"are merged, so a bill seen in both email and bank data is returned once with higher confidence. " +
		"Each bill carries its merchant, amount, frequency, category, confidence (0-100) and the " +
		"email and transaction IDs it was derived from.",
	InputSchema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"emails": map[string]interface{}{
				"type":        "array",
				"description": "Messages that may describe bills.",
				"items": map[string]interface{}{
					"type":     "object",
					"required": []string{"id", "subject", "body", "date"},
					"properties": map[string]interface{}{
						"id":      map[string]interface{}{"type": "string"},
						"account": map[string]interface{}{"type": "string", "description": "Mailbox the message came from."},
						"from":    map[string]interface{}{"type": "string"},
						"subject": map[string]interface{}{"type": "string"},
						"body":    map[string]interface{}{"type": "string", "description": "Plain text body."},
						"date":    map[string]interface{}{"type": "string", "format": "date-time"},
					},
				},
			},
			"transactions": map[string]interface{}{
				"type":        "array",
				"description": "Bank or card transactions. Amounts are absolute values.",
				"items": map[string]interface{}{
					"type":     "object",
					"required": []string{"id", "description", "amount", "date"},
					"properties": map[string]interface{}{
						"id":            map[string]interface{}{"type": "string"},
						"account_id":    map[string]interface{}{"type": "string"},
						"description":   map[string]interface{}{"type": "string"},
						"merchant_hint": map[string]interface{}{"type": "string"},
						"amount":        map[string]interface{}{"type": "number"},
						"date":          map[string]interface{}{"type": "string", "format": "date-time"},
						"direction": map[string]interface{}{
							"type": "string",
							"enum": []string{"expense", "income"},
						},
					},
				},
			},
			"now": map[string]interface{}{
				"type":        "string",
				"format":      "date-time",
				"description": "Reference time for the transaction lookback window. Defaults to the current time.",
			},
		},
	},
	OutputSchema: map[string]interface{}{
		"type": "object",
	},
}

// InputDiscoverBills is the input for the DiscoverBills tool.
type InputDiscoverBills struct {
	Now          *time.Time          `json:"now,omitempty"`
	Emails       []model.Email       `json:"emails"`
	Transactions []model.Transaction `json:"transactions"`
}

// OutputDiscoverBills is the output for the DiscoverBills tool.
type OutputDiscoverBills struct {
	Result *model.DiscoveryResult `json:"result"`
}

// Handler runs discovery over inline data.
type Handler struct {
	extractor *extract.Extractor
	detector  *recurrence.Detector
	merger    *reconcile.Merger
	enricher  *enrich.Enricher
	cfg       discovery.Config
}

// NewHandler creates a handler. Nil stages get their defaults.
func NewHandler(
	extractor *extract.Extractor,
	detector *recurrence.Detector,
	merger *reconcile.Merger,
	enricher *enrich.Enricher,
	cfg discovery.Config,
) *Handler {
	return &Handler{
		extractor: extractor,
		detector:  detector,
		merger:    merger,
		enricher:  enricher,
		cfg:       cfg,
	}
}

// DiscoverBills runs one discovery over the submitted emails and transactions.
func (h *Handler) DiscoverBills(ctx context.Context, _ *mcp.CallToolRequest, input InputDiscoverBills) (*mcp.CallToolResult, OutputDiscoverBills, error) {
	if len(input.Emails) == 0 && len(input.Transactions) == 0 {
		return nil, OutputDiscoverBills{}, fmt.Errorf("at least one email or transaction is required")
	}

	emails := &source.StaticEmail{Emails: make(map[string][]model.Email)}
	for _, e := range input.Emails {
		if e.ID == "" {
			return nil, OutputDiscoverBills{}, fmt.Errorf("every email needs an id")
		}
		if e.Account == "" {
			e.Account = InlineAccount
		}
		emails.Emails[e.Account] = append(emails.Emails[e.Account], e)
	}

	var req discovery.Request
	for account := range emails.Emails {
		req.EmailAccounts = append(req.EmailAccounts, account)
	}
	sort.Strings(req.EmailAccounts)

	bank := &source.StaticBank{Transactions: make(map[string][]model.Transaction)}
	if len(input.Transactions) > 0 {
		txns := make([]model.Transaction, len(input.Transactions))
		for i, t := range input.Transactions {
			if t.ID == "" {
				return nil, OutputDiscoverBills{}, fmt.Errorf("every transaction needs an id")
			}
			if t.Hash == "" {
				t.Hash = t.GenerateHash()
			}
			txns[i] = t
		}
		bank.Transactions[InlineToken] = txns
		req.BankTokens = []string{InlineToken}
	}

	cfg := h.cfg
	if input.Now != nil {
		now := *input.Now
		cfg.Now = func() time.Time { return now }
	}

	engine := discovery.New(emails, bank, h.extractor, h.detector, h.merger, h.enricher, cfg)
	result, err := engine.Discover(ctx, req, nil)
	if err != nil {
		return nil, OutputDiscoverBills{}, err
	}

	return nil, OutputDiscoverBills{Result: result}, nil
}

// Register adds every billfinder tool to server.
func Register(server *mcp.Server, h *Handler) {
	mcp.AddTool(server, MetadataDiscoverBills, h.DiscoverBills)
}

// NewServer creates an MCP server exposing the billfinder tools.
func NewServer(version string, h *Handler) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "billfinder",
		Version: version,
	}, nil)
	Register(server, h)
	return server
}
