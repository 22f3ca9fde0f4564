// Package extract turns fetched emails into bill candidates.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/Veraticus/billfinder/internal/classification"
	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/confidence"
	"github.com/Veraticus/billfinder/internal/merchant"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
)

// DefaultMinConfidence is the lowest strategy confidence accepted as a bill.
const DefaultMinConfidence = 60.0

// Config holds extractor settings.
type Config struct {
	MinConfidence float64
}

// DefaultConfig returns the default extractor configuration.
func DefaultConfig() Config {
	return Config{MinConfidence: DefaultMinConfidence}
}

// Extractor applies a text extraction strategy to emails and builds
// candidates from the accepted results.
type Extractor struct {
	strategy   service.BillExtractor
	classifier *classification.Classifier
	logger     *slog.Logger
	cfg        Config
}

// New creates an extractor with the default configuration.
func New(strategy service.BillExtractor, classifier *classification.Classifier) *Extractor {
	return NewWithConfig(DefaultConfig(), strategy, classifier)
}

// NewWithConfig creates an extractor with a custom configuration.
func NewWithConfig(cfg Config, strategy service.BillExtractor, classifier *classification.Classifier) *Extractor {
	if classifier == nil {
		classifier = classification.NewDefault()
	}
	if strategy == nil {
		strategy = NewRegexStrategy()
	}
	return &Extractor{
		strategy:   strategy,
		classifier: classifier,
		cfg:        cfg,
		logger:     slog.Default().With("component", "extract"),
	}
}

// FromEmail extracts a candidate from one email. A nil candidate with a nil
// error means the message was not accepted as a bill. Strategy failures,
// including panics, are returned wrapped in common.ErrExtraction.
func (e *Extractor) FromEmail(ctx context.Context, email model.Email) (*model.BillCandidate, error) {
	ext, err := e.safeExtract(ctx, email)
	if err != nil {
		return nil, err
	}
	if ext == nil || ext.Amount == nil {
		return nil, nil //nolint:nilnil // Not a bill is a valid result
	}
	if ext.Confidence < e.cfg.MinConfidence {
		e.logger.Debug("extraction below confidence floor",
			"message_id", email.ID,
			"confidence", ext.Confidence)
		return nil, nil //nolint:nilnil // Not a bill is a valid result
	}

	name := strings.TrimSpace(ext.Merchant)
	if name == "" {
		name = senderName(email.From)
	}
	key := merchant.Normalize(name)
	if key == "" {
		e.logger.Warn("no merchant could be derived", "message_id", email.ID, "from", email.From)
		return nil, nil //nolint:nilnil // Not a bill is a valid result
	}

	category := ext.Category
	if !category.IsSet() {
		category = e.classifier.Classify(name, email.Subject)
	}

	ref := model.SourceRef{
		Type:      model.SourceEmail,
		ID:        email.ID,
		AccountID: email.Account,
		Subject:   email.Subject,
		Sender:    email.From,
		Date:      email.Date,
	}

	candidate := &model.BillCandidate{
		ID:                    model.CandidateID(model.SourceEmail, []model.SourceRef{ref}),
		SourceType:            model.SourceEmail,
		MerchantNameRaw:       name,
		NormalizedMerchantKey: key,
		Amount:                *ext.Amount,
		Confidence:            confidence.Clamp(ext.Confidence),
		Category:              category,
		Frequency:             ext.Frequency,
		Sources:               []model.SourceRef{ref},
	}
	if !email.Date.IsZero() {
		candidate.ObservedDates = append(candidate.ObservedDates, email.Date)
	}
	if ext.DueDate != nil {
		due := *ext.DueDate
		candidate.DueDate = &due
	}

	return candidate, nil
}

// safeExtract calls the strategy and converts errors and panics into
// extraction errors for this message.
func (e *Extractor) safeExtract(ctx context.Context, email model.Email) (ext *service.Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			ext = nil
			err = fmt.Errorf("%w: message %s: panic: %v", common.ErrExtraction, email.ID, r)
		}
	}()

	ext, err = e.strategy.Extract(ctx, email.Subject, email.From, email.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: message %s: %w", common.ErrExtraction, email.ID, err)
	}
	return ext, nil
}

// ExtractAll processes a batch of emails. Per-message failures are logged,
// collected as diagnostics and skipped. The returned error is non-nil only
// when ctx ends before the batch is finished.
func (e *Extractor) ExtractAll(ctx context.Context, emails []model.Email) ([]model.BillCandidate, []error, error) {
	candidates := make([]model.BillCandidate, 0, len(emails))
	var diagnostics []error

	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return candidates, diagnostics, err
		}

		candidate, err := e.FromEmail(ctx, email)
		if err != nil {
			e.logger.Warn("failed to extract bill from email",
				"message_id", email.ID,
				"error", err)
			diagnostics = append(diagnostics, err)
			continue
		}
		if candidate != nil {
			candidates = append(candidates, *candidate)
		}
	}

	e.logger.Debug("email extraction finished",
		"emails", len(emails),
		"candidates", len(candidates),
		"errors", len(diagnostics))

	return candidates, diagnostics, nil
}

// senderName returns the display name of an address, or the organization
// label of its domain when there is no display name.
func senderName(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}

	addr, err := mail.ParseAddress(from)
	if err != nil {
		if !strings.Contains(from, "@") {
			return from
		}
		return domainLabel(from)
	}
	if name := strings.TrimSpace(addr.Name); name != "" {
		return name
	}
	return domainLabel(addr.Address)
}

// domainLabel returns "netflix" for "info@mailer.netflix.com".
func domainLabel(address string) string {
	at := strings.LastIndex(address, "@")
	domain := strings.Trim(address[at+1:], "<> ")
	labels := strings.Split(domain, ".")
	if len(labels) >= 2 {
		return labels[len(labels)-2]
	}
	return domain
}
