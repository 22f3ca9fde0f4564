package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/billfinder/internal/cache"
	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/discovery"
	"github.com/Veraticus/billfinder/internal/extract"
	"github.com/Veraticus/billfinder/internal/gmail"
	"github.com/Veraticus/billfinder/internal/ofx"
	"github.com/Veraticus/billfinder/internal/plaid"
	"github.com/Veraticus/billfinder/internal/reconcile"
	"github.com/Veraticus/billfinder/internal/recurrence"
	"github.com/Veraticus/billfinder/internal/simplefin"
	"github.com/spf13/viper"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the typed form of the billfinder configuration file.
type Config struct {
	Gmail     gmail.Config
	Plaid     plaid.Config
	Logging   LoggingConfig
	Database  DatabaseConfig
	Rules     RulesConfig
	Cache     CacheConfig
	Email     EmailConfig
	Bank      BankConfig
	Discovery DiscoveryConfig
}

// EmailConfig lists the mailboxes to scan.
type EmailConfig struct {
	Accounts []string
}

// BankConfig lists bank access tokens. Tokens starting with "ofx:" name a
// statement file or directory, "simplefin:" tokens carry a SimpleFIN access
// URL, and all others are Plaid access tokens.
type BankConfig struct {
	Tokens []string
}

// DiscoveryConfig tunes the pipeline.
type DiscoveryConfig struct {
	Workers              int
	Lookback             time.Duration
	Timeout              time.Duration
	MinEmailConfidence   float64
	MinPatternConfidence float64
	HighTrustThreshold   float64
	PerDuplicateSavings  float64
}

// CacheConfig selects where extraction results are memoized.
type CacheConfig struct {
	Backend string
	Redis   cache.RedisOptions
	TTL     time.Duration
}

// RulesConfig points at optional YAML overrides.
type RulesConfig struct {
	CategoryFile string
	LogoFile     string
}

// DatabaseConfig locates the run history database.
type DatabaseConfig struct {
	Path string
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string
	Format string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	gm := gmail.DefaultConfig()
	rc := recurrence.DefaultConfig()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("database.path", "~/.local/share/billfinder/billfinder.db")
	v.SetDefault("discovery.workers", discovery.DefaultWorkers)
	v.SetDefault("discovery.lookback", rc.Lookback)
	v.SetDefault("discovery.timeout", 5*time.Minute)
	v.SetDefault("discovery.min_email_confidence", extract.DefaultMinConfidence)
	v.SetDefault("discovery.min_pattern_confidence", rc.MinConfidence)
	v.SetDefault("discovery.high_trust_threshold", reconcile.DefaultHighTrustThreshold)
	v.SetDefault("discovery.per_duplicate_savings", discovery.DefaultPerDuplicateSavings)
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.prefix", "billfinder:")
	v.SetDefault("gmail.token_dir", "~/.config/billfinder/tokens")
	v.SetDefault("gmail.query", gm.Query)
	v.SetDefault("gmail.max_messages", gm.MaxMessages)
	v.SetDefault("gmail.redirect_port", gm.RedirectPort)
}

// Load reads the configuration from v. Credentials missing from v fall back
// to the conventional environment variables (PLAID_CLIENT_ID, PLAID_SECRET,
// PLAID_ENV, GMAIL_CLIENT_ID, GMAIL_CLIENT_SECRET).
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Database: DatabaseConfig{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Email: EmailConfig{
			Accounts: cleanList(v.GetStringSlice("email.accounts")),
		},
		Bank: BankConfig{
			Tokens: cleanList(v.GetStringSlice("bank.tokens")),
		},
		Discovery: DiscoveryConfig{
			Workers:              v.GetInt("discovery.workers"),
			Lookback:             v.GetDuration("discovery.lookback"),
			Timeout:              v.GetDuration("discovery.timeout"),
			MinEmailConfidence:   v.GetFloat64("discovery.min_email_confidence"),
			MinPatternConfidence: v.GetFloat64("discovery.min_pattern_confidence"),
			HighTrustThreshold:   v.GetFloat64("discovery.high_trust_threshold"),
			PerDuplicateSavings:  v.GetFloat64("discovery.per_duplicate_savings"),
		},
		Cache: CacheConfig{
			Backend: strings.ToLower(v.GetString("cache.backend")),
			TTL:     v.GetDuration("cache.ttl"),
			Redis: cache.RedisOptions{
				Addr:     v.GetString("cache.redis.addr"),
				Password: v.GetString("cache.redis.password"),
				DB:       v.GetInt("cache.redis.db"),
				Prefix:   v.GetString("cache.redis.prefix"),
			},
		},
		Rules: RulesConfig{
			CategoryFile: ExpandPath(v.GetString("rules.category_file")),
			LogoFile:     ExpandPath(v.GetString("rules.logo_file")),
		},
		Plaid: plaid.Config{
			ClientID:    firstNonEmpty(v.GetString("plaid.client_id"), os.Getenv("PLAID_CLIENT_ID")),
			Secret:      firstNonEmpty(v.GetString("plaid.secret"), os.Getenv("PLAID_SECRET")),
			Environment: firstNonEmpty(v.GetString("plaid.environment"), os.Getenv("PLAID_ENV"), "sandbox"),
			BaseURL:     v.GetString("plaid.base_url"),
		},
		Gmail: gmail.Config{
			ClientID:     firstNonEmpty(v.GetString("gmail.client_id"), os.Getenv("GMAIL_CLIENT_ID")),
			ClientSecret: firstNonEmpty(v.GetString("gmail.client_secret"), os.Getenv("GMAIL_CLIENT_SECRET")),
			TokenDir:     ExpandPath(v.GetString("gmail.token_dir")),
			Query:        v.GetString("gmail.query"),
			MaxMessages:  v.GetInt("gmail.max_messages"),
			RedirectPort: v.GetInt("gmail.redirect_port"),
		},
	}
	cfg.Gmail.Lookback = cfg.Discovery.Lookback
	cfg.Cache.Redis.TTL = cfg.Cache.TTL

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that do not depend on which sources a run uses.
// Provider credentials are checked by ValidateSources.
func (c *Config) Validate() error {
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: invalid log format: %s", common.ErrInvalidConfig, c.Logging.Format)
	}

	d := c.Discovery
	if d.Workers < 1 {
		return fmt.Errorf("%w: discovery.workers must be at least 1", common.ErrInvalidConfig)
	}
	if d.Lookback <= 0 {
		return fmt.Errorf("%w: discovery.lookback must be positive", common.ErrInvalidConfig)
	}
	if d.Timeout < 0 {
		return fmt.Errorf("%w: discovery.timeout must not be negative", common.ErrInvalidConfig)
	}
	for name, value := range map[string]float64{
		"discovery.min_email_confidence":   d.MinEmailConfidence,
		"discovery.min_pattern_confidence": d.MinPatternConfidence,
		"discovery.high_trust_threshold":   d.HighTrustThreshold,
	} {
		if value < 0 || value > 100 {
			return fmt.Errorf("%w: %s must be between 0 and 100", common.ErrInvalidConfig, name)
		}
	}
	if d.PerDuplicateSavings < 0 {
		return fmt.Errorf("%w: discovery.per_duplicate_savings must not be negative", common.ErrInvalidConfig)
	}

	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("%w: cache.redis.addr is required for the redis backend", common.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache backend %q", common.ErrInvalidConfig, c.Cache.Backend)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", common.ErrMissingConfig)
	}
	return nil
}

// NeedsPlaid reports whether any of tokens must be served by Plaid.
func NeedsPlaid(tokens []string) bool {
	for _, t := range tokens {
		if !ofx.IsToken(t) && !simplefin.IsToken(t) {
			return true
		}
	}
	return false
}

// ValidateSources checks the credentials the given sources require.
func (c *Config) ValidateSources(accounts, tokens []string) error {
	if len(accounts) > 0 {
		if err := c.Gmail.Validate(); err != nil {
			return fmt.Errorf("%w: %w", common.ErrMissingConfig, err)
		}
	}
	if NeedsPlaid(tokens) {
		if err := c.Plaid.Validate(); err != nil {
			return fmt.Errorf("%w: %w", common.ErrMissingConfig, err)
		}
	}
	for _, t := range tokens {
		switch {
		case ofx.IsToken(t):
			path := filepath.Clean(strings.TrimPrefix(t, ofx.TokenPrefix))
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("%w: statement path %s: %w", common.ErrInvalidConfig, path, err)
			}
		case simplefin.IsToken(t):
			if _, err := simplefin.ParseToken(t); err != nil {
				return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
			}
		}
	}
	return nil
}

func cleanList(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		// Env vars arrive as one comma separated string.
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
