package ofx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
)

// TokenPrefix marks a bank token that points at OFX files instead of a live
// institution.
const TokenPrefix = "ofx:"

// Provider serves OFX/QFX statements from disk as a bank provider. A token is
// "ofx:" followed by a file or a directory of .ofx/.qfx files.
type Provider struct {
	parser *Parser
}

var _ service.BankProvider = (*Provider)(nil)

// NewProvider creates a file-backed provider.
func NewProvider() *Provider {
	return &Provider{parser: NewParser()}
}

// IsToken reports whether token addresses OFX files.
func IsToken(token string) bool {
	return strings.HasPrefix(token, TokenPrefix)
}

// ListAccounts implements service.BankProvider.
func (p *Provider) ListAccounts(ctx context.Context, token string) ([]model.Account, error) {
	stmts, err := p.load(ctx, token)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []model.Account
	for _, s := range stmts {
		for _, a := range s.Accounts {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			accounts = append(accounts, a)
		}
	}
	return accounts, nil
}

// ListTransactions implements service.BankProvider. Transactions outside
// [start, end] are dropped, as are duplicates across overlapping statements.
func (p *Provider) ListTransactions(ctx context.Context, token string, start, end time.Time) ([]model.Transaction, error) {
	if start.After(end) {
		return nil, fmt.Errorf("start date must be before end date")
	}

	stmts, err := p.load(ctx, token)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []model.Transaction
	for _, s := range stmts {
		for _, tx := range s.Transactions {
			if tx.Date.Before(start) || tx.Date.After(end) {
				continue
			}
			key := tx.AccountID + "/" + tx.ID
			if tx.ID == "" {
				key = tx.Hash
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, tx)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	p.parser.logger.Info("Loaded OFX transactions",
		"files", len(stmts),
		"transactions", len(out))
	return out, nil
}

func (p *Provider) load(ctx context.Context, token string) ([]*Statement, error) {
	if !IsToken(token) || len(token) == len(TokenPrefix) {
		return nil, fmt.Errorf("%w: expected %s<path>", common.ErrInvalidToken, TokenPrefix)
	}

	files, err := statementFiles(strings.TrimPrefix(token, TokenPrefix))
	if err != nil {
		return nil, err
	}

	stmts := make([]*Statement, 0, len(files))
	for _, path := range files {
		stmt, err := p.parseFile(ctx, path)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (p *Provider) parseFile(ctx context.Context, path string) (*Statement, error) {
	f, err := os.Open(path) //nolint:gosec // Path comes from the user's own configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			p.parser.logger.Warn("Failed to close OFX file", "path", path, "error", closeErr)
		}
	}()

	stmt, err := p.parser.Parse(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stmt, nil
}

// statementFiles expands path into the OFX/QFX files it names, sorted.
func statementFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".ofx", ".qfx":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no OFX/QFX files found in %s", path)
	}
	sort.Strings(files)
	return files, nil
}
