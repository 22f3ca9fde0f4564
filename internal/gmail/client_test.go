package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type fakeAPI struct {
	messages map[string]*gmailapi.Message
	getErr   error
	listErr  error
	queries  []string
	order    []string
	pageSize int
}

func (f *fakeAPI) ListMessages(_ context.Context, query, pageToken string, _ int64) (*gmailapi.ListMessagesResponse, error) {
	f.queries = append(f.queries, query)
	if f.listErr != nil {
		return nil, f.listErr
	}

	start := 0
	if pageToken != "" {
		_, _ = fmt.Sscanf(pageToken, "page-%d", &start)
	}
	end := start + f.pageSize
	if end > len(f.order) {
		end = len(f.order)
	}

	resp := &gmailapi.ListMessagesResponse{}
	for _, id := range f.order[start:end] {
		resp.Messages = append(resp.Messages, &gmailapi.Message{Id: id})
	}
	if end < len(f.order) {
		resp.NextPageToken = fmt.Sprintf("page-%d", end)
	}
	return resp, nil
}

func (f *fakeAPI) GetMessage(_ context.Context, id string) (*gmailapi.Message, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.messages[id], nil
}

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func textMessage(id, from, subject, body string) *gmailapi.Message {
	return &gmailapi.Message{
		Id:           id,
		InternalDate: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli(),
		Payload: &gmailapi.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmailapi.MessagePartHeader{
				{Name: "From", Value: from},
				{Name: "Subject", Value: subject},
			},
			Body: &gmailapi.MessagePartBody{Data: encode(body)},
		},
	}
}

func newFakeAPI(n, pageSize int) *fakeAPI {
	f := &fakeAPI{messages: make(map[string]*gmailapi.Message), pageSize: pageSize}
	for i := range n {
		id := fmt.Sprintf("msg-%d", i)
		f.order = append(f.order, id)
		f.messages[id] = textMessage(id, "Netflix <info@netflix.com>", "Your Netflix bill", "Amount due: $15.99")
	}
	return f
}

func testClient(cfg Config, api MessageAPI, factoryErr error) *Client {
	c := NewClientWithFactory(cfg, func(context.Context, string) (MessageAPI, error) {
		if factoryErr != nil {
			return nil, factoryErr
		}
		return api, nil
	})
	c.retryOpts = service.RetryOptions{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return c
}

func TestClient_FetchBillEmails(t *testing.T) {
	api := newFakeAPI(5, 2)
	cfg := DefaultConfig()
	cfg.Lookback = 30 * 24 * time.Hour
	c := testClient(cfg, api, nil)

	emails, err := c.FetchBillEmails(context.Background(), "me@example.com")
	require.NoError(t, err)
	require.Len(t, emails, 5)
	assert.Equal(t, "msg-0", emails[0].ID)
	assert.Equal(t, "me@example.com", emails[0].Account)
	assert.Equal(t, "Netflix <info@netflix.com>", emails[0].From)
	assert.Equal(t, "Your Netflix bill", emails[0].Subject)
	assert.Equal(t, "Amount due: $15.99", emails[0].Body)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), emails[0].Date)

	require.Len(t, api.queries, 3, "five messages in pages of two")
	assert.Contains(t, api.queries[0], "newer_than:30d")
}

func TestClient_FetchBillEmails_MaxMessages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMessages = 3
	c := testClient(cfg, newFakeAPI(10, 2), nil)

	emails, err := c.FetchBillEmails(context.Background(), "me@example.com")
	require.NoError(t, err)
	assert.Len(t, emails, 3)
}

func TestClient_FetchBillEmails_Errors(t *testing.T) {
	tests := []struct {
		api        *fakeAPI
		factoryErr error
		name       string
		account    string
		wantErr    error
	}{
		{
			name:    "missing account",
			api:     newFakeAPI(1, 1),
			wantErr: common.ErrInvalidAccount,
		},
		{
			name:       "no token",
			account:    "me@example.com",
			api:        newFakeAPI(1, 1),
			factoryErr: errors.New("no token"),
			wantErr:    common.ErrGmailConnection,
		},
		{
			name:    "list not found is not retried",
			account: "me@example.com",
			api:     &fakeAPI{listErr: &googleapi.Error{Code: http.StatusNotFound, Message: "not found"}},
			wantErr: common.ErrGmailConnection,
		},
		{
			name:    "get failure exhausts retries",
			account: "me@example.com",
			api: func() *fakeAPI {
				f := newFakeAPI(1, 1)
				f.getErr = &googleapi.Error{Code: http.StatusServiceUnavailable}
				return f
			}(),
			wantErr: common.ErrMaxRetries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(DefaultConfig(), tt.api, tt.factoryErr)
			emails, err := c.FetchBillEmails(context.Background(), tt.account)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, emails)
		})
	}
}

func TestClient_FetchBillEmails_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(DefaultConfig(), newFakeAPI(3, 3), nil)
	_, err := c.FetchBillEmails(ctx, "me@example.com")
	require.ErrorIs(t, err, context.Canceled)
}

func TestToEmail(t *testing.T) {
	tests := []struct {
		msg      *gmailapi.Message
		name     string
		wantBody string
	}{
		{
			name: "multipart prefers plain text",
			msg: &gmailapi.Message{
				Id: "m1",
				Payload: &gmailapi.MessagePart{
					MimeType: "multipart/alternative",
					Parts: []*gmailapi.MessagePart{
						{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: encode("<p>Total: $42.00</p>")}},
						{MimeType: "text/plain; charset=UTF-8", Body: &gmailapi.MessagePartBody{Data: encode("Total: $42.00")}},
					},
				},
			},
			wantBody: "Total: $42.00",
		},
		{
			name: "html only is stripped",
			msg: &gmailapi.Message{
				Id: "m2",
				Payload: &gmailapi.MessagePart{
					MimeType: "multipart/mixed",
					Parts: []*gmailapi.MessagePart{
						{
							MimeType: "multipart/related",
							Parts: []*gmailapi.MessagePart{
								{MimeType: "text/html", Body: &gmailapi.MessagePartBody{Data: encode("<style>p{}</style><div>Amount&nbsp;due</div><b>$120.00</b>")}},
							},
						},
					},
				},
			},
			wantBody: "Amount due\n $120.00",
		},
		{
			name:     "no payload uses snippet",
			msg:      &gmailapi.Message{Id: "m3", Snippet: "Your statement is ready"},
			wantBody: "Your statement is ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := toEmail(tt.msg)
			assert.Equal(t, tt.msg.Id, email.ID)
			assert.Equal(t, tt.wantBody, email.Body)
		})
	}
}

func TestDecodeBody(t *testing.T) {
	assert.Equal(t, "hello?", decodeBody(base64.URLEncoding.EncodeToString([]byte("hello?"))))
	assert.Equal(t, "hello?", decodeBody(base64.RawURLEncoding.EncodeToString([]byte("hello?"))))
	assert.Empty(t, decodeBody("!!!"))
}

func TestStripHTML(t *testing.T) {
	in := `<html><head><script>var x = 1;</script></head><body><h1>Bill</h1><p>Amount due: $15.99</p><p>Due &amp; payable</p></body></html>`
	out := stripHTML(in)
	assert.NotContains(t, out, "<")
	assert.NotContains(t, out, "var x")
	assert.Contains(t, out, "Amount due: $15.99")
	assert.Contains(t, out, "Due & payable")
}

func TestServiceAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			assert.Equal(t, "subject:bill", r.URL.Query().Get("q"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"messages": []map[string]string{{"id": "m1", "threadId": "t1"}},
			})
		case strings.HasSuffix(r.URL.Path, "/users/me/messages/m1"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":           "m1",
				"internalDate": "1709283600000",
				"payload": map[string]any{
					"mimeType": "text/plain",
					"headers":  []map[string]string{{"name": "Subject", "value": "Your PG&E bill"}},
					"body":     map[string]string{"data": encode("Amount due: $120.00")},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	api, err := NewServiceAPI(context.Background(), option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	list, err := api.ListMessages(context.Background(), "subject:bill", "", 10)
	require.NoError(t, err)
	require.Len(t, list.Messages, 1)

	msg, err := api.GetMessage(context.Background(), list.Messages[0].Id)
	require.NoError(t, err)

	email := toEmail(msg)
	assert.Equal(t, "Your PG&E bill", email.Subject)
	assert.Equal(t, "Amount due: $120.00", email.Body)
	assert.Equal(t, time.UnixMilli(1709283600000).UTC(), email.Date)
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate())

	cfg.ClientID = "id"
	cfg.ClientSecret = "secret"
	require.Error(t, cfg.Validate(), "token dir is required")

	cfg.TokenDir = "/tokens"
	require.NoError(t, cfg.Validate())

	assert.Equal(t, filepath.Join("/tokens", "me@example.com.json"), cfg.TokenFile("Me@Example.com"))
	assert.Equal(t, filepath.Join("/tokens", "_etc_passwd.json"), cfg.TokenFile("/etc/passwd"))
	assert.Contains(t, cfg.searchQuery(), "newer_than:365d")

	cfg.MaxMessages = 0
	require.Error(t, cfg.Validate())
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens", "me.json")
	token := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}

	require.NoError(t, SaveToken(path, token))
	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, token.AccessToken, loaded.AccessToken)
	assert.Equal(t, token.RefreshToken, loaded.RefreshToken)

	_, err = LoadToken(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestMockClient(t *testing.T) {
	mock := NewMockClient()
	emails, err := mock.FetchBillEmails(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Empty(t, emails)
	assert.Equal(t, []string{"a@example.com"}, mock.FetchBillEmailsCalls)
}
