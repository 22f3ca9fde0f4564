// Package storage keeps the history of discovery runs in SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/billfinder/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidRun   = errors.New("invalid run")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRun checks the fields a stored run cannot do without.
func validateRun(result *model.DiscoveryResult) error {
	if result == nil {
		return fmt.Errorf("%w: result", ErrNilParameter)
	}
	if strings.TrimSpace(result.RunID) == "" {
		return fmt.Errorf("%w: run ID is required", ErrInvalidRun)
	}
	if result.StartedAt.IsZero() {
		return fmt.Errorf("%w: start time is required", ErrInvalidRun)
	}
	seen := make(map[string]bool, len(result.Bills))
	for i, b := range result.Bills {
		if b.ID == "" {
			return fmt.Errorf("%w: bill %d has no ID", ErrInvalidRun, i)
		}
		if seen[b.ID] {
			return fmt.Errorf("%w: duplicate bill %s", ErrInvalidRun, b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}
