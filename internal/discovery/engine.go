// Package discovery runs a bill discovery: it fans out over email accounts and
// bank tokens, merges what they produce and enriches the result.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/enrich"
	"github.com/Veraticus/billfinder/internal/extract"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/reconcile"
	"github.com/Veraticus/billfinder/internal/recurrence"
	"github.com/Veraticus/billfinder/internal/service"
	"github.com/Veraticus/billfinder/internal/source"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultWorkers bounds how many accounts and tokens are fetched at once.
	DefaultWorkers = 4
	// DefaultPerDuplicateSavings is the heuristic value, in currency units, of
	// finding one duplicate. It is an estimate, not a financial figure.
	DefaultPerDuplicateSavings = 10.00
)

// Config holds orchestration settings.
type Config struct {
	Now                 func() time.Time
	Workers             int
	PerDuplicateSavings float64
}

// DefaultConfig returns the default orchestration configuration.
func DefaultConfig() Config {
	return Config{
		Workers:             DefaultWorkers,
		PerDuplicateSavings: DefaultPerDuplicateSavings,
		Now:                 time.Now,
	}
}

// Request names the sources of one run.
type Request struct {
	EmailAccounts []string `json:"email_accounts"`
	BankTokens    []string `json:"bank_tokens"`
}

// Engine sequences extraction, recurrence detection, merging and enrichment.
// It keeps no state between runs.
type Engine struct {
	email     service.EmailProvider
	bank      service.BankProvider
	extractor *extract.Extractor
	detector  *recurrence.Detector
	merger    *reconcile.Merger
	enricher  *enrich.Enricher
	logger    *slog.Logger
	cfg       Config
}

// New creates an engine. Either provider may be nil when the run will not use
// it; nil pipeline stages get their defaults.
func New(
	email service.EmailProvider,
	bank service.BankProvider,
	extractor *extract.Extractor,
	detector *recurrence.Detector,
	merger *reconcile.Merger,
	enricher *enrich.Enricher,
	cfg Config,
) *Engine {
	if extractor == nil {
		extractor = extract.New(nil, nil)
	}
	if detector == nil {
		detector = recurrence.New(nil)
	}
	if merger == nil {
		merger = reconcile.New(nil)
	}
	if enricher == nil {
		enricher = enrich.New(nil)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PerDuplicateSavings < 0 || math.IsNaN(cfg.PerDuplicateSavings) {
		cfg.PerDuplicateSavings = DefaultPerDuplicateSavings
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Engine{
		email:     email,
		bank:      bank,
		extractor: extractor,
		detector:  detector,
		merger:    merger,
		enricher:  enricher,
		cfg:       cfg,
		logger:    slog.Default().With("component", "discovery"),
	}
}

type unitKind int

const (
	unitEmail unitKind = iota
	unitBank
)

type unit struct {
	source string // account or token
	label  string // safe to log
	kind   unitKind
}

// shard is what one unit produced. Only settled shards are merged.
type shard struct {
	err         error
	candidates  []model.BillCandidate
	diagnostics []error
	settled     bool
}

// Discover runs one discovery. progress may be nil; otherwise the engine
// sends ordered events with non-decreasing Progress and closes the channel
// before returning.
//
// Per-source and per-item failures are reported in the result's Errors. The
// returned error is non-nil only when the request names no source
// (common.ErrNoSources) or every source failed (common.ErrCatastrophicFailure,
// returned together with the result). A canceled run returns the bills of the
// sources that settled in time with Canceled set and a nil error.
func (e *Engine) Discover(ctx context.Context, req Request, progress chan<- model.ProgressEvent) (*model.DiscoveryResult, error) {
	units := make([]unit, 0, len(req.EmailAccounts)+len(req.BankTokens))
	for _, a := range req.EmailAccounts {
		units = append(units, unit{kind: unitEmail, source: a, label: a})
	}
	for _, t := range req.BankTokens {
		units = append(units, unit{kind: unitBank, source: t, label: source.Redact(t)})
	}

	rep := newReporter(progress, len(units))
	defer rep.close()

	if len(units) == 0 {
		return nil, common.ErrNoSources
	}

	result := &model.DiscoveryResult{
		RunID:     model.NewRunID(),
		StartedAt: e.cfg.Now(),
		Bills:     []model.ReconciledBill{},
	}
	logger := e.logger.With("run_id", result.RunID)
	logger.Info("Starting discovery",
		"email_accounts", len(req.EmailAccounts),
		"bank_tokens", len(req.BankTokens),
		"workers", e.cfg.Workers)

	rep.emit(model.StepStarting, progressStart, "Starting bill discovery")
	rep.emit(model.StepFetching, progressFetchStart, fmt.Sprintf("Scanning %d sources", len(units)))

	shards := make([]shard, len(units))
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)

	for i, u := range units {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			shards[i] = e.runUnit(ctx, u)
			if shards[i].settled {
				rep.unitDone(unitMessage(u, shards[i]))
			}
			return nil
		})
	}
	_ = g.Wait() // Units never return errors; failures live in their shards

	var (
		candidates []model.BillCandidate
		errs       []error
		failed     int
		settled    int
	)
	for i, s := range shards {
		if !s.settled {
			continue
		}
		settled++
		if s.err != nil {
			failed++
			logger.Warn("Source unavailable", "source", units[i].label, "error", s.err)
			errs = append(errs, s.err)
			continue
		}
		candidates = append(candidates, s.candidates...)
		errs = append(errs, s.diagnostics...)
	}

	canceled := ctx.Err() != nil && settled < len(units)

	if !canceled && failed == len(units) {
		result.Errors = errorStrings(errs)
		result.FinishedAt = e.cfg.Now()
		logger.Error("Every source failed", "sources", len(units))
		rep.complete("Discovery failed: no source reachable")
		return result, fmt.Errorf("%w: %d of %d sources failed", common.ErrCatastrophicFailure, failed, len(units))
	}

	rep.emit(model.StepMerging, progressMerge, fmt.Sprintf("Reconciling %d candidates", len(candidates)))
	bills, invalid := e.merger.Merge(candidates)
	errs = append(errs, invalid...)

	rep.emit(model.StepEnriching, progressEnrich, fmt.Sprintf("Enriching %d bills", len(bills)))
	result.Bills = e.enricher.Enrich(bills)
	result.Stats = e.statistics(result.Bills, len(candidates)-len(invalid))

	if canceled {
		result.Canceled = true
		errs = append(errs, fmt.Errorf("%w: %d of %d sources completed: %w",
			common.ErrCanceled, settled, len(units), context.Cause(ctx)))
	}
	result.Errors = errorStrings(errs)
	result.FinishedAt = e.cfg.Now()

	logger.Info("Discovery finished",
		"bills", result.Stats.TotalBillsFound,
		"duplicates", result.Stats.DuplicatesFound,
		"errors", len(result.Errors),
		"canceled", result.Canceled)

	if canceled {
		rep.complete("Discovery canceled")
	} else {
		rep.complete(fmt.Sprintf("Found %d bills", len(result.Bills)))
	}
	return result, nil
}

// runUnit fetches one source. A shard is settled when the source answered
// (successfully or not) before ctx ended; unsettled shards are discarded.
func (e *Engine) runUnit(ctx context.Context, u unit) (s shard) {
	if ctx.Err() != nil {
		return shard{}
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Source panicked", "source", u.label, "panic", r)
			s = shard{settled: true, err: common.NewSourceError(common.ErrSourceUnavailable, u.label, fmt.Errorf("panic: %v", r))}
		}
	}()

	switch u.kind {
	case unitEmail:
		return e.runEmail(ctx, u)
	default:
		return e.runBank(ctx, u)
	}
}

func (e *Engine) runEmail(ctx context.Context, u unit) shard {
	if e.email == nil {
		return sourceFailure(u, errors.New("no email provider configured"))
	}

	emails, err := e.email.FetchBillEmails(ctx, u.source)
	if err != nil {
		if ctx.Err() != nil {
			return shard{}
		}
		return sourceFailure(u, err)
	}

	candidates, diagnostics, err := e.extractor.ExtractAll(ctx, emails)
	if err != nil {
		return shard{}
	}
	return shard{settled: true, candidates: candidates, diagnostics: diagnostics}
}

func (e *Engine) runBank(ctx context.Context, u unit) shard {
	if e.bank == nil {
		return sourceFailure(u, errors.New("no bank provider configured"))
	}

	start, end := e.detector.Window(e.cfg.Now())
	txns, err := e.bank.ListTransactions(ctx, u.source, start, end)
	if err != nil {
		if ctx.Err() != nil {
			return shard{}
		}
		return sourceFailure(u, err)
	}
	if ctx.Err() != nil {
		return shard{}
	}

	return shard{settled: true, candidates: e.detector.FromTransactions(txns)}
}

func sourceFailure(u unit, err error) shard {
	return shard{settled: true, err: common.NewSourceError(common.ErrSourceUnavailable, u.label, err)}
}

func unitMessage(u unit, s shard) string {
	kind := "email account"
	if u.kind == unitBank {
		kind = "bank token"
	}
	if s.err != nil {
		return fmt.Sprintf("Skipped %s %s", kind, u.label)
	}
	return fmt.Sprintf("Scanned %s %s: %d candidates", kind, u.label, len(s.candidates))
}

// statistics summarizes bills. A corroborated bill counts toward both the
// email and the bank total.
func (e *Engine) statistics(bills []model.ReconciledBill, validCandidates int) model.DiscoveryStatistics {
	stats := model.DiscoveryStatistics{TotalBillsFound: len(bills)}
	for i := range bills {
		b := &bills[i]
		if b.HasSource(model.SourceEmail) {
			stats.EmailBillsFound++
		}
		if b.HasSource(model.SourceBank) {
			stats.BankBillsFound++
		}
		if b.Frequency != "" {
			stats.SubscriptionsFound++
		}
	}

	stats.DuplicatesFound = validCandidates - len(bills)
	if stats.DuplicatesFound < 0 {
		stats.DuplicatesFound = 0
	}
	stats.PotentialSavings = math.Round(float64(stats.DuplicatesFound)*e.cfg.PerDuplicateSavings*100) / 100
	return stats
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
