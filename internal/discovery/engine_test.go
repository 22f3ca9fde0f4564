package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/extract"
	"github.com/Veraticus/billfinder/internal/gmail"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/plaid"
	"github.com/Veraticus/billfinder/internal/service"
	"github.com/Veraticus/billfinder/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runTime = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// subjectStrategy extracts bills keyed by subject line.
func subjectStrategy() *extract.MockStrategy {
	return &extract.MockStrategy{
		ExtractFn: func(_ context.Context, subject, _, _ string) (*service.Extraction, error) {
			switch subject {
			case "Your Netflix bill":
				return &service.Extraction{Merchant: "Netflix", Amount: ptr(15.99), Confidence: 95, Frequency: model.FrequencyMonthly}, nil
			case "Your Spotify receipt":
				return &service.Extraction{Merchant: "Spotify", Amount: ptr(10.99), Confidence: 90}, nil
			case "Your Comcast statement":
				return &service.Extraction{Merchant: "Comcast", Amount: ptr(89.00), Confidence: 88}, nil
			case "Refund issued":
				return &service.Extraction{Merchant: "Acme", Amount: ptr(-5.0), Confidence: 90}, nil
			case "broken":
				return nil, errors.New("unparseable body")
			default:
				return nil, nil //nolint:nilnil // Not a bill
			}
		},
	}
}

func email(id, account, subject string) model.Email {
	return model.Email{ID: id, Account: account, Subject: subject, From: "billing@example.com", Date: date(2024, 3, 1)}
}

func netflixTransactions() []model.Transaction {
	return []model.Transaction{
		{ID: "txn-1", AccountID: "acc-1", Name: "NETFLIX.COM", Amount: 15.99, Date: date(2024, 1, 5), Direction: model.DirectionExpense},
		{ID: "txn-2", AccountID: "acc-1", Name: "NETFLIX.COM", Amount: 15.99, Date: date(2024, 2, 5), Direction: model.DirectionExpense},
		{ID: "txn-3", AccountID: "acc-1", Name: "CORNER DELI", Amount: 8.50, Date: date(2024, 2, 11), Direction: model.DirectionExpense},
	}
}

func newEngine(email service.EmailProvider, bank service.BankProvider, cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return runTime }
	}
	return New(email, bank, extract.New(subjectStrategy(), nil), nil, nil, nil, cfg)
}

// run executes Discover while draining its progress channel.
func run(t *testing.T, ctx context.Context, eng *Engine, req Request, onEvent func(model.ProgressEvent)) (*model.DiscoveryResult, []model.ProgressEvent, error) {
	t.Helper()

	ch := make(chan model.ProgressEvent)
	done := make(chan struct{})
	var events []model.ProgressEvent
	go func() {
		defer close(done)
		for ev := range ch {
			events = append(events, ev)
			if onEvent != nil {
				onEvent(ev)
			}
		}
	}()

	result, err := eng.Discover(ctx, req, ch)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("progress channel was not closed")
	}
	return result, events, err
}

func assertMonotonic(t *testing.T, events []model.ProgressEvent) {
	t.Helper()
	require.NotEmpty(t, events)
	assert.Equal(t, 0, events[0].Progress)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Progress, events[i-1].Progress, "event %d went backwards", i)
	}
	last := events[len(events)-1]
	assert.Equal(t, 100, last.Progress)
	assert.True(t, last.IsComplete)
	assert.Equal(t, model.StepComplete, last.Step)
}

func TestEngine_CrossSourceMerge(t *testing.T) {
	emails := &source.StaticEmail{Emails: map[string][]model.Email{
		"me@example.com": {email("msg-123", "me@example.com", "Your Netflix bill")},
	}}
	bank := &source.StaticBank{Transactions: map[string][]model.Transaction{
		"access-sandbox-1": netflixTransactions(),
	}}

	result, events, err := run(t, context.Background(), newEngine(emails, bank, Config{}), Request{
		EmailAccounts: []string{"me@example.com"},
		BankTokens:    []string{"access-sandbox-1"},
	}, nil)
	require.NoError(t, err)
	assertMonotonic(t, events)

	require.Len(t, result.Bills, 1)
	bill := result.Bills[0]
	assert.Equal(t, "netflix:16", bill.CanonicalKey)
	assert.Greater(t, bill.Confidence, 95.0)
	assert.Equal(t, []model.SourceType{model.SourceEmail, model.SourceBank}, bill.SourceTypes)

	var ids []string
	for _, s := range bill.Sources {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"msg-123", "txn-1", "txn-2"}, ids)

	assert.Equal(t, model.DiscoveryStatistics{
		TotalBillsFound:    1,
		EmailBillsFound:    1,
		BankBillsFound:     1,
		SubscriptionsFound: 1,
		DuplicatesFound:    1,
		PotentialSavings:   10.00,
	}, result.Stats)
	assert.Empty(t, result.Errors)
	assert.False(t, result.Canceled)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, runTime, result.StartedAt)
}

func TestEngine_OneAccountFails(t *testing.T) {
	emails := gmail.NewMockClient()
	emails.FetchBillEmailsFn = func(_ context.Context, account string) ([]model.Email, error) {
		if account == "bad@example.com" {
			return nil, errors.New("dial tcp: i/o timeout")
		}
		return []model.Email{
			email("m1", account, "Your Netflix bill"),
			email("m2", account, "Your Spotify receipt"),
		}, nil
	}

	result, _, err := run(t, context.Background(), newEngine(emails, nil, Config{}), Request{
		EmailAccounts: []string{"good@example.com", "bad@example.com"},
	}, nil)
	require.NoError(t, err)

	assert.Len(t, result.Bills, 2)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "source unavailable")
	assert.Contains(t, result.Errors[0], "bad@example.com")
	assert.Contains(t, result.Errors[0], "i/o timeout")
	assert.ElementsMatch(t, []string{"good@example.com", "bad@example.com"}, emails.FetchBillEmailsCalls)
}

func TestEngine_Diagnostics(t *testing.T) {
	emails := &source.StaticEmail{Emails: map[string][]model.Email{
		"me@example.com": {
			email("m1", "me@example.com", "Your Comcast statement"),
			email("m2", "me@example.com", "broken"),
			email("m3", "me@example.com", "Refund issued"),
			email("m4", "me@example.com", "Weekly newsletter"),
		},
	}}

	result, _, err := run(t, context.Background(), newEngine(emails, nil, Config{}), Request{
		EmailAccounts: []string{"me@example.com"},
	}, nil)
	require.NoError(t, err)

	require.Len(t, result.Bills, 1)
	assert.Equal(t, "comcast:89", result.Bills[0].CanonicalKey)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "extraction failed")
	assert.Contains(t, result.Errors[0], "m2")
	assert.Contains(t, result.Errors[1], "invalid candidate")
	assert.Contains(t, result.Errors[1], "negative amount")
	assert.Equal(t, 0, result.Stats.DuplicatesFound, "dropped candidates are not duplicates")
}

func TestEngine_Statistics(t *testing.T) {
	emails := &source.StaticEmail{Emails: map[string][]model.Email{
		"me@example.com": {
			email("m1", "me@example.com", "Your Netflix bill"),
			email("m2", "me@example.com", "Your Netflix bill"),
			email("m3", "me@example.com", "Your Spotify receipt"),
		},
	}}
	bank := &source.StaticBank{Transactions: map[string][]model.Transaction{"tok": netflixTransactions()}}

	result, _, err := run(t, context.Background(), newEngine(emails, bank, Config{PerDuplicateSavings: 12.5}), Request{
		EmailAccounts: []string{"me@example.com"},
		BankTokens:    []string{"tok"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.DiscoveryStatistics{
		TotalBillsFound:    2,
		EmailBillsFound:    2,
		BankBillsFound:     1,
		SubscriptionsFound: 1,
		DuplicatesFound:    2,
		PotentialSavings:   25.00,
	}, result.Stats)
}

func TestEngine_NoSources(t *testing.T) {
	ch := make(chan model.ProgressEvent, 1)
	result, err := newEngine(nil, nil, Config{}).Discover(context.Background(), Request{}, ch)
	require.ErrorIs(t, err, common.ErrNoSources)
	assert.Nil(t, result)

	_, open := <-ch
	assert.False(t, open, "progress channel is closed")
}

func TestEngine_CatastrophicFailure(t *testing.T) {
	emails := gmail.NewMockClient()
	emails.FetchBillEmailsFn = func(context.Context, string) ([]model.Email, error) {
		return nil, common.ErrGmailConnection
	}
	bank := plaid.NewMockClient()
	bank.ListTransactionsFn = func(context.Context, string, time.Time, time.Time) ([]model.Transaction, error) {
		return nil, common.ErrPlaidConnection
	}

	result, events, err := run(t, context.Background(), newEngine(emails, bank, Config{}), Request{
		EmailAccounts: []string{"me@example.com"},
		BankTokens:    []string{"access-production-0123456789"},
	}, nil)
	require.ErrorIs(t, err, common.ErrCatastrophicFailure)
	require.NotNil(t, result)
	assert.Empty(t, result.Bills)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[1], "acce...6789")
	assert.NotContains(t, result.Errors[1], "0123456789")
	assertMonotonic(t, events)
}

func TestEngine_MissingProvider(t *testing.T) {
	emails := &source.StaticEmail{Emails: map[string][]model.Email{
		"me@example.com": {email("m1", "me@example.com", "Your Spotify receipt")},
	}}

	result, _, err := run(t, context.Background(), newEngine(emails, nil, Config{}), Request{
		EmailAccounts: []string{"me@example.com"},
		BankTokens:    []string{"ofx:/statements"},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, result.Bills, 1)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "no bank provider configured")
}

func TestEngine_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emails := &source.StaticEmail{Emails: map[string][]model.Email{
		"me@example.com": {email("m1", "me@example.com", "Your Netflix bill")},
	}}
	bank := plaid.NewMockClient()
	bank.ListTransactionsFn = func(ctx context.Context, _ string, _, _ time.Time) ([]model.Transaction, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	result, events, err := run(t, ctx, newEngine(emails, bank, Config{}), Request{
		EmailAccounts: []string{"me@example.com"},
		BankTokens:    []string{"access-sandbox-1"},
	}, func(ev model.ProgressEvent) {
		if ev.Step == model.StepFetching && ev.Progress > progressFetchStart {
			cancel()
		}
	})
	require.NoError(t, err)
	assert.True(t, result.Canceled)
	require.Len(t, result.Bills, 1)
	assert.Equal(t, "netflix:16", result.Bills[0].CanonicalKey)
	assert.Equal(t, []model.SourceType{model.SourceEmail}, result.Bills[0].SourceTypes)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "discovery canceled")
	assert.Contains(t, result.Errors[0], "1 of 2 sources completed")
	assertMonotonic(t, events)
}

func TestEngine_BoundedParallelism(t *testing.T) {
	var active, peak int32
	bank := plaid.NewMockClient()
	bank.ListTransactionsFn = func(context.Context, string, time.Time, time.Time) ([]model.Transaction, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil, nil
	}

	tokens := make([]string, 6)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}

	result, events, err := run(t, context.Background(), newEngine(nil, bank, Config{Workers: 2}), Request{BankTokens: tokens}, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Bills)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Len(t, bank.ListTransactionsCalls, 6)

	fetch := 0
	for _, ev := range events {
		if ev.Step == model.StepFetching {
			fetch++
		}
	}
	assert.Equal(t, 7, fetch, "one fetch start plus one event per token")
	assertMonotonic(t, events)
}

func TestEngine_Deterministic(t *testing.T) {
	emails := &source.StaticEmail{Emails: map[string][]model.Email{
		"a@example.com": {email("m1", "a@example.com", "Your Netflix bill")},
		"b@example.com": {email("m2", "b@example.com", "Your Spotify receipt"), email("m3", "b@example.com", "Your Comcast statement")},
	}}
	bank := &source.StaticBank{Transactions: map[string][]model.Transaction{"tok": netflixTransactions()}}
	eng := newEngine(emails, bank, Config{})

	first, err := eng.Discover(context.Background(), Request{
		EmailAccounts: []string{"a@example.com", "b@example.com"},
		BankTokens:    []string{"tok"},
	}, nil)
	require.NoError(t, err)
	second, err := eng.Discover(context.Background(), Request{
		BankTokens:    []string{"tok"},
		EmailAccounts: []string{"b@example.com", "a@example.com"},
	}, nil)
	require.NoError(t, err)

	a, err := json.Marshal(first.Bills)
	require.NoError(t, err)
	b, err := json.Marshal(second.Bills)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestReporter_ClampsRegressions(t *testing.T) {
	ch := make(chan model.ProgressEvent, 10)
	r := newReporter(ch, 2)
	r.emit(model.StepMerging, 75, "merge")
	r.unitDone("late unit")
	r.complete("done")
	r.close()
	r.close()

	var got []int
	for ev := range ch {
		got = append(got, ev.Progress)
	}
	assert.Equal(t, []int{75, 75, 100}, got)
}
