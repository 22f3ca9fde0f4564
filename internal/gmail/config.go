// Package gmail provides an email provider that reads bill-like messages from
// Gmail accounts.
package gmail

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultQuery narrows the mailbox to messages that usually describe a bill.
const DefaultQuery = `subject:(bill OR invoice OR statement OR payment OR receipt OR subscription OR renewal OR "amount due") -category:promotions`

// Config holds the configuration for the Gmail provider.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenDir     string // One <account>.json token per account
	Query        string
	MaxMessages  int
	Lookback     time.Duration
	RedirectPort int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Query:        DefaultQuery,
		MaxMessages:  500,
		Lookback:     365 * 24 * time.Hour,
		RedirectPort: 8080,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("gmail client ID and secret are required")
	}
	if c.TokenDir == "" {
		return fmt.Errorf("gmail token directory is required")
	}
	if c.MaxMessages <= 0 {
		return fmt.Errorf("max messages must be positive")
	}
	if c.Lookback < 0 {
		return fmt.Errorf("lookback must not be negative")
	}
	return nil
}

// TokenFile returns where the token for account is stored.
func (c *Config) TokenFile(account string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.ToLower(account))
	return filepath.Join(c.TokenDir, name+".json")
}

// searchQuery combines the configured query with the lookback window.
func (c *Config) searchQuery() string {
	q := c.Query
	if q == "" {
		q = DefaultQuery
	}
	if days := int(c.Lookback.Hours() / 24); days > 0 {
		q += fmt.Sprintf(" newer_than:%dd", days)
	}
	return q
}
