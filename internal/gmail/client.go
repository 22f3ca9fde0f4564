package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/service"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const userID = "me"

// MessageAPI is the slice of the Gmail API the provider needs.
type MessageAPI interface {
	ListMessages(ctx context.Context, query, pageToken string, pageSize int64) (*gmailapi.ListMessagesResponse, error)
	GetMessage(ctx context.Context, id string) (*gmailapi.Message, error)
}

// APIFactory opens a MessageAPI for one account.
type APIFactory func(ctx context.Context, account string) (MessageAPI, error)

// Client implements service.EmailProvider over the Gmail API.
type Client struct {
	newAPI    APIFactory
	logger    *slog.Logger
	cfg       Config
	retryOpts service.RetryOptions
}

var _ service.EmailProvider = (*Client)(nil)

// NewClient creates a Gmail provider that authenticates each account with
// its stored OAuth2 token.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewClientWithFactory(cfg, func(ctx context.Context, account string) (MessageAPI, error) {
		ts, err := tokenSource(ctx, cfg, account)
		if err != nil {
			return nil, err
		}
		api, err := NewServiceAPI(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
		if err != nil {
			return nil, err
		}
		return api, nil
	}), nil
}

// NewClientWithFactory creates a provider with a custom API factory.
func NewClientWithFactory(cfg Config, factory APIFactory) *Client {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultConfig().MaxMessages
	}
	return &Client{
		cfg:    cfg,
		newAPI: factory,
		logger: slog.Default().With("component", "gmail"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// FetchBillEmails implements service.EmailProvider.
func (c *Client) FetchBillEmails(ctx context.Context, account string) ([]model.Email, error) {
	if account == "" {
		return nil, fmt.Errorf("%w: account is required", common.ErrInvalidAccount)
	}

	api, err := c.newAPI(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrGmailConnection, account, err)
	}

	ids, err := c.listMessageIDs(ctx, api)
	if err != nil {
		return nil, err
	}

	emails := make([]model.Email, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var msg *gmailapi.Message
		err := common.WithRetry(ctx, func() error {
			var getErr error
			msg, getErr = api.GetMessage(ctx, id)
			return classifyError("failed to get message", getErr)
		}, c.retryOpts)
		if err != nil {
			return nil, err
		}

		email := toEmail(msg)
		email.Account = account
		emails = append(emails, email)
	}

	c.logger.Info("Fetched bill emails", "account", account, "count", len(emails))
	return emails, nil
}

func (c *Client) listMessageIDs(ctx context.Context, api MessageAPI) ([]string, error) {
	query := c.cfg.searchQuery()
	var ids []string
	pageToken := ""

	for len(ids) < c.cfg.MaxMessages {
		var resp *gmailapi.ListMessagesResponse
		err := common.WithRetry(ctx, func() error {
			var listErr error
			resp, listErr = api.ListMessages(ctx, query, pageToken, int64(c.cfg.MaxMessages-len(ids)))
			return classifyError("failed to list messages", listErr)
		}, c.retryOpts)
		if err != nil {
			return nil, err
		}

		for _, m := range resp.Messages {
			if len(ids) >= c.cfg.MaxMessages {
				break
			}
			ids = append(ids, m.Id)
		}

		c.logger.Debug("Listed message page", "count", len(resp.Messages), "total", len(ids))

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return ids, nil
}

// classifyError marks rate limits and server errors as retryable.
func classifyError(msg string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		retryable := apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: %s: %w", common.ErrGmailConnection, msg, err),
			Retryable: retryable,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", common.ErrGmailConnection, msg, err)
}

// toEmail flattens a Gmail message into the provider record.
func toEmail(msg *gmailapi.Message) model.Email {
	email := model.Email{ID: msg.Id}
	if msg.InternalDate > 0 {
		email.Date = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload == nil {
		email.Body = msg.Snippet
		return email
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			email.From = h.Value
		case "subject":
			email.Subject = h.Value
		}
	}

	plain, htmlBody := collectBodies(msg.Payload)
	switch {
	case plain != "":
		email.Body = plain
	case htmlBody != "":
		email.Body = stripHTML(htmlBody)
	default:
		email.Body = msg.Snippet
	}
	return email
}

// collectBodies walks the MIME tree and returns the first text/plain and
// text/html parts.
func collectBodies(part *gmailapi.MessagePart) (plain, htmlBody string) {
	if part == nil {
		return "", ""
	}

	if part.Body != nil && part.Body.Data != "" {
		switch {
		case strings.HasPrefix(part.MimeType, "text/plain"):
			plain = decodeBody(part.Body.Data)
		case strings.HasPrefix(part.MimeType, "text/html"):
			htmlBody = decodeBody(part.Body.Data)
		}
	}

	for _, child := range part.Parts {
		p, h := collectBodies(child)
		if plain == "" {
			plain = p
		}
		if htmlBody == "" {
			htmlBody = h
		}
	}
	return plain, htmlBody
}

// decodeBody decodes Gmail's base64url payloads, padded or not.
func decodeBody(data string) string {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}

var (
	scriptRegex     = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blockRegex      = regexp.MustCompile(`(?i)<(br|/p|/div|/tr|/li|/h[1-6])[^>]*>`)
	tagRegex        = regexp.MustCompile(`<[^>]+>`)
	blankLinesRegex = regexp.MustCompile(`\n\s*\n+`)
	spacesRegex     = regexp.MustCompile(`[ \t]+`)
)

func stripHTML(s string) string {
	s = scriptRegex.ReplaceAllString(s, "")
	s = blockRegex.ReplaceAllString(s, "\n")
	s = tagRegex.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(html.UnescapeString(s), "\u00a0", " ")
	s = spacesRegex.ReplaceAllString(s, " ")
	s = blankLinesRegex.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// ServiceAPI adapts *gmail.Service to MessageAPI.
type ServiceAPI struct {
	svc *gmailapi.Service
}

// NewServiceAPI creates the Gmail service with the given client options.
func NewServiceAPI(ctx context.Context, opts ...option.ClientOption) (*ServiceAPI, error) {
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create gmail service: %w", err)
	}
	return &ServiceAPI{svc: svc}, nil
}

// ListMessages implements MessageAPI.
func (s *ServiceAPI) ListMessages(ctx context.Context, query, pageToken string, pageSize int64) (*gmailapi.ListMessagesResponse, error) {
	call := s.svc.Users.Messages.List(userID).Q(query).MaxResults(pageSize).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

// GetMessage implements MessageAPI.
func (s *ServiceAPI) GetMessage(ctx context.Context, id string) (*gmailapi.Message, error) {
	return s.svc.Users.Messages.Get(userID, id).Format("full").Context(ctx).Do()
}
