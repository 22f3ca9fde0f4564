package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Veraticus/billfinder/internal/cache"
	"github.com/Veraticus/billfinder/internal/classification"
	"github.com/Veraticus/billfinder/internal/config"
	"github.com/Veraticus/billfinder/internal/discovery"
	"github.com/Veraticus/billfinder/internal/enrich"
	"github.com/Veraticus/billfinder/internal/extract"
	"github.com/Veraticus/billfinder/internal/gmail"
	"github.com/Veraticus/billfinder/internal/ofx"
	"github.com/Veraticus/billfinder/internal/plaid"
	"github.com/Veraticus/billfinder/internal/reconcile"
	"github.com/Veraticus/billfinder/internal/recurrence"
	"github.com/Veraticus/billfinder/internal/service"
	"github.com/Veraticus/billfinder/internal/simplefin"
	"github.com/Veraticus/billfinder/internal/source"
)

// pipeline holds the configured stages of a discovery run.
type pipeline struct {
	extractor *extract.Extractor
	detector  *recurrence.Detector
	merger    *reconcile.Merger
	enricher  *enrich.Enricher
	closers   []io.Closer
	discovery discovery.Config
}

// newPipeline builds every stage from cfg. Close releases the extraction
// cache.
func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	rules := classification.DefaultRules()
	if cfg.Rules.CategoryFile != "" {
		userRules, err := classification.LoadRules(cfg.Rules.CategoryFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load category rules: %w", err)
		}
		rules = append(userRules, rules...)
	}
	classifier, err := classification.New(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile category rules: %w", err)
	}

	logos := enrich.DefaultLogos()
	if cfg.Rules.LogoFile != "" {
		userLogos, err := enrich.LoadLogos(cfg.Rules.LogoFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load logo table: %w", err)
		}
		// User entries are matched first.
		logos = append(userLogos, logos...)
	}

	p := &pipeline{}

	var strategy service.BillExtractor = extract.NewRegexStrategy()
	store, err := newCacheStore(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	if store != nil {
		p.closers = append(p.closers, store)
		strategy = extract.NewCachedStrategy(strategy, store)
	}

	detectorCfg := recurrence.DefaultConfig()
	detectorCfg.Lookback = cfg.Discovery.Lookback
	detectorCfg.MinConfidence = cfg.Discovery.MinPatternConfidence

	p.extractor = extract.NewWithConfig(extract.Config{MinConfidence: cfg.Discovery.MinEmailConfidence}, strategy, classifier)
	p.detector = recurrence.NewWithConfig(detectorCfg, classifier)
	p.merger = reconcile.NewWithConfig(reconcile.Config{HighTrustThreshold: cfg.Discovery.HighTrustThreshold}, nil)
	p.enricher = enrich.NewWithLogos(classifier, logos)
	p.discovery = discovery.Config{
		Workers:             cfg.Discovery.Workers,
		PerDuplicateSavings: cfg.Discovery.PerDuplicateSavings,
		Now:                 time.Now,
	}

	return p, nil
}

// newCacheStore returns nil when caching is disabled. An unreachable Redis
// server degrades to the in-memory cache.
func newCacheStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case config.CacheNone:
		return nil, nil //nolint:nilnil // Caching disabled
	case config.CacheRedis:
		store := cache.NewRedisStore(cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			slog.Warn("Redis cache unavailable, using in-memory cache", "addr", cfg.Redis.Addr, "error", err)
			_ = store.Close()
			return cache.NewMemoryStore(cfg.TTL), nil
		}
		return store, nil
	default:
		return cache.NewMemoryStore(cfg.TTL), nil
	}
}

// engine wires the stages to the given providers.
func (p *pipeline) engine(email service.EmailProvider, bank service.BankProvider) *discovery.Engine {
	return discovery.New(email, bank, p.extractor, p.detector, p.merger, p.enricher, p.discovery)
}

// Close releases the pipeline's resources.
func (p *pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newBankProvider routes "ofx:" tokens to statement files, "simplefin:"
// tokens to SimpleFIN and everything else to Plaid. The Plaid client is only
// built when a token needs it.
func newBankProvider(cfg *config.Config, tokens []string) (service.BankProvider, error) {
	var fallback service.BankProvider
	if config.NeedsPlaid(tokens) {
		client, err := plaid.NewClient(&cfg.Plaid)
		if err != nil {
			return nil, fmt.Errorf("failed to create Plaid client: %w", err)
		}
		fallback = client
	}
	return source.NewBankRouter(fallback,
		source.Route{Prefix: ofx.TokenPrefix, Provider: ofx.NewProvider()},
		source.Route{Prefix: simplefin.TokenPrefix, Provider: simplefin.NewClient()},
	), nil
}

// newEmailProvider returns nil when no mailbox is scanned.
func newEmailProvider(cfg *config.Config, accounts []string) (service.EmailProvider, error) {
	if len(accounts) == 0 {
		return nil, nil //nolint:nilnil // No mailboxes requested
	}
	client, err := gmail.NewClient(cfg.Gmail)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail client: %w", err)
	}
	return client, nil
}
