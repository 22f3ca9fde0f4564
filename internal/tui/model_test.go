package tui

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Veraticus/billfinder/internal/common"
	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/tui/themes"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestModel_ProgressEvents(t *testing.T) {
	events := make(chan model.ProgressEvent, 1)
	m := newModel(events, func() {}, themes.Default)

	m, cmd := update(t, m, progressMsg{event: model.ProgressEvent{Step: model.StepFetching, Progress: 38, Message: "me@example.com: 3 candidates"}})
	require.NotNil(t, cmd)
	assert.Equal(t, 38, m.last.Progress)
	assert.Equal(t, []string{"me@example.com: 3 candidates"}, m.log)

	events <- model.ProgressEvent{Step: model.StepMerging, Progress: 75}
	msg := cmd()
	pm, ok := msg.(progressMsg)
	require.True(t, ok)
	assert.Equal(t, model.StepMerging, pm.event.Step)

	close(events)
	_, ok = waitForEvent(events)().(progressClosedMsg)
	assert.True(t, ok)

	view := m.View()
	assert.Contains(t, view, "Discovering bills")
	assert.Contains(t, view, "fetching")
	assert.Contains(t, view, "me@example.com: 3 candidates")
}

func TestModel_LogIsBounded(t *testing.T) {
	m := newModel(nil, nil, themes.Default)
	for i := 0; i < maxLogLines+3; i++ {
		m, _ = update(t, m, progressMsg{event: model.ProgressEvent{Step: model.StepFetching, Progress: 10 + i, Message: string(rune('a' + i))}})
	}
	require.Len(t, m.log, maxLogLines)
	assert.Equal(t, string(rune('a'+3)), m.log[0])
}

func TestModel_CancelKey(t *testing.T) {
	canceled := 0
	m := newModel(nil, func() { canceled++ }, themes.Default)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd)
	assert.True(t, m.canceling)
	assert.Contains(t, m.View(), "canceling")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.Equal(t, 1, canceled)
	assert.False(t, m.done)
}

func TestModel_Result(t *testing.T) {
	m := newModel(nil, func() {}, themes.Default)

	result := &model.DiscoveryResult{
		Stats:    model.DiscoveryStatistics{TotalBillsFound: 3, DuplicatesFound: 1},
		Errors:   []string{"source unavailable (work@example.com): timeout"},
		Canceled: true,
	}
	m, _ = update(t, m, progressMsg{event: model.ProgressEvent{Step: model.StepComplete, Progress: 100, Message: "found 3 bills", IsComplete: true}})
	m, cmd := update(t, m, resultMsg{result: result})
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)

	got, err := m.Result()
	require.NoError(t, err)
	assert.Same(t, result, got)

	view := m.View()
	assert.Contains(t, view, "found 3 bills")
	assert.Contains(t, view, "3 bills found, 1 duplicates merged")
	assert.Contains(t, view, "results are partial")
	assert.Contains(t, view, "1 problem(s)")
	assert.NotContains(t, view, "work@example.com")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})
	assert.Contains(t, m.View(), "work@example.com")

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
}

func TestModel_FatalError(t *testing.T) {
	m := newModel(nil, func() {}, themes.Default)
	m, _ = update(t, m, resultMsg{err: common.ErrNoSources})
	assert.Contains(t, m.View(), common.ErrNoSources.Error())
}

func TestModel_Resize(t *testing.T) {
	m := newModel(nil, nil, themes.Default)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 40, Height: 20})
	assert.Equal(t, 36, m.bar.Width)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 200, Height: 20})
	assert.Equal(t, maxBarWidth, m.bar.Width)
}

func testOptions() []tea.ProgramOption {
	return []tea.ProgramOption{
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	}
}

func TestRun_Completes(t *testing.T) {
	want := &model.DiscoveryResult{RunID: "run-1"}
	discover := func(_ context.Context, progress chan<- model.ProgressEvent) (*model.DiscoveryResult, error) {
		defer close(progress)
		progress <- model.ProgressEvent{Step: model.StepStarting}
		progress <- model.ProgressEvent{Step: model.StepFetching, Progress: 70}
		progress <- model.ProgressEvent{Step: model.StepComplete, Progress: 100, IsComplete: true}
		return want, nil
	}

	got, err := Run(context.Background(), discover, themes.Default, testOptions()...)
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestRun_PropagatesError(t *testing.T) {
	discover := func(_ context.Context, progress chan<- model.ProgressEvent) (*model.DiscoveryResult, error) {
		close(progress)
		return nil, common.ErrNoSources
	}

	_, err := Run(context.Background(), discover, themes.Default, testOptions()...)
	assert.ErrorIs(t, err, common.ErrNoSources)
}

func TestRun_ParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	discover := func(runCtx context.Context, progress chan<- model.ProgressEvent) (*model.DiscoveryResult, error) {
		defer close(progress)
		progress <- model.ProgressEvent{Step: model.StepFetching, Progress: 5}
		cancel()
		<-runCtx.Done()
		return &model.DiscoveryResult{Canceled: true}, nil
	}

	done := make(chan struct{})
	var (
		got *model.DiscoveryResult
		err error
	)
	go func() {
		defer close(done)
		got, err = Run(ctx, discover, themes.Default, testOptions()...)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	require.False(t, errors.Is(err, tea.ErrProgramKilled))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Canceled)
}

func TestThemeByName(t *testing.T) {
	assert.Equal(t, themes.CatppuccinMocha.Primary, themes.ByName("catppuccin").Primary)
	assert.Equal(t, themes.Default.Primary, themes.ByName("unknown").Primary)
}
