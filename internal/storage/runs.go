package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
)

// DefaultListLimit caps ListRuns when the caller passes no limit.
const DefaultListLimit = 20

const runColumns = `id, started_at, finished_at, canceled,
	total_bills, email_bills, bank_bills, subscriptions, duplicates,
	potential_savings, errors`

// SaveRun stores a run and its bills, replacing any earlier copy of the same run.
func (s *SQLiteStorage) SaveRun(ctx context.Context, result *model.DiscoveryResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(result); err != nil {
		return err
	}

	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode run errors: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Bills go first so a replaced run never keeps stale rows.
	if _, err := tx.ExecContext(ctx, `DELETE FROM bills WHERE run_id = ?`, result.RunID); err != nil {
		return fmt.Errorf("failed to clear bills: %w", err)
	}

	var finished sql.NullTime
	if !result.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: result.FinishedAt.UTC(), Valid: true}
	}

	stats := result.Stats
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.StartedAt.UTC(), finished, result.Canceled,
		stats.TotalBillsFound, stats.EmailBillsFound, stats.BankBillsFound,
		stats.SubscriptionsFound, stats.DuplicatesFound, stats.PotentialSavings,
		string(errorsJSON))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bills (run_id, id, position, canonical_key, merchant_name,
			amount, confidence, due_date, category, frequency, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare bill insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for i, bill := range result.Bills {
		data, err := json.Marshal(bill)
		if err != nil {
			return fmt.Errorf("failed to encode bill %s: %w", bill.ID, err)
		}

		var due sql.NullTime
		if bill.DueDate != nil {
			due = sql.NullTime{Time: bill.DueDate.UTC(), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			result.RunID, bill.ID, i, bill.CanonicalKey, bill.MerchantName,
			bill.Amount, bill.Confidence, due, string(bill.Category), string(bill.Frequency),
			string(data)); err != nil {
			return fmt.Errorf("failed to save bill %s: %w", bill.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Debug("saved run",
		"run_id", result.RunID,
		"bills", len(result.Bills),
		"errors", len(result.Errors))
	return nil
}

// GetRun loads one run with its bills.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*model.DiscoveryResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	return s.loadRun(ctx, row)
}

// GetLatestRun loads the most recently started run.
func (s *SQLiteStorage) GetLatestRun(ctx context.Context) (*model.DiscoveryResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1`)
	return s.loadRun(ctx, row)
}

func (s *SQLiteStorage) loadRun(ctx context.Context, row *sql.Row) (*model.DiscoveryResult, error) {
	summary, errs, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	bills, err := s.GetBills(ctx, summary.RunID)
	if err != nil {
		return nil, err
	}

	return &model.DiscoveryResult{
		RunID:      summary.RunID,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Canceled:   summary.Canceled,
		Stats:      summary.Stats,
		Errors:     errs,
		Bills:      bills,
	}, nil
}

// ListRuns returns run summaries, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]service.RunSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var summaries []service.RunSummary
	for rows.Next() {
		summary, _, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return summaries, nil
}

// GetBills returns the bills of one run in their original order.
// An unknown run yields common.ErrNotFound.
func (s *SQLiteStorage) GetBills(ctx context.Context, runID string) ([]model.ReconciledBill, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM bills
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	bills := []model.ReconciledBill{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		var bill model.ReconciledBill
		if err := json.Unmarshal([]byte(data), &bill); err != nil {
			return nil, fmt.Errorf("failed to decode bill: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bills: %w", err)
	}
	return bills, nil
}

// BillHistory returns every stored sighting of a canonical key, newest run first.
func (s *SQLiteStorage) BillHistory(ctx context.Context, canonicalKey string) ([]BillSighting, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(canonicalKey, "canonicalKey"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.run_id, r.started_at, b.amount, b.confidence
		FROM bills b
		JOIN runs r ON r.id = b.run_id
		WHERE b.canonical_key = ?
		ORDER BY r.started_at DESC, r.rowid DESC`, canonicalKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query bill history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var sightings []BillSighting
	for rows.Next() {
		var b BillSighting
		if err := rows.Scan(&b.RunID, &b.RunStartedAt, &b.Amount, &b.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan bill history: %w", err)
		}
		sightings = append(sightings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bill history: %w", err)
	}
	return sightings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (service.RunSummary, []string, error) {
	var (
		summary    service.RunSummary
		finished   sql.NullTime
		errorsJSON string
	)
	err := row.Scan(
		&summary.RunID, &summary.StartedAt, &finished, &summary.Canceled,
		&summary.Stats.TotalBillsFound, &summary.Stats.EmailBillsFound,
		&summary.Stats.BankBillsFound, &summary.Stats.SubscriptionsFound,
		&summary.Stats.DuplicatesFound, &summary.Stats.PotentialSavings,
		&errorsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return summary, nil, err
	}
	if err != nil {
		return summary, nil, fmt.Errorf("failed to scan run: %w", err)
	}
	if finished.Valid {
		summary.FinishedAt = finished.Time
	}

	var errs []string
	if err := json.Unmarshal([]byte(errorsJSON), &errs); err != nil {
		return summary, nil, fmt.Errorf("failed to decode run errors: %w", err)
	}
	if len(errs) == 0 {
		errs = nil
	}
	summary.ErrorCount = len(errs)
	return summary, errs, nil
}
