package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/tui/themes"
	tea "github.com/charmbracelet/bubbletea"
)

// DiscoverFunc runs one discovery, sending progress events on progress and
// closing it before returning.
type DiscoverFunc func(ctx context.Context, progress chan<- model.ProgressEvent) (*model.DiscoveryResult, error)

// Run executes discover behind the live progress view and returns its
// outcome. Canceling from the keyboard stops the run but still returns the
// partial result; so does canceling ctx.
func Run(ctx context.Context, discover DiscoverFunc, theme themes.Theme, opts ...tea.ProgramOption) (*model.DiscoveryResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan model.ProgressEvent)
	m := newModel(events, cancel, theme)

	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)

	var (
		result   *model.DiscoveryResult
		err      error
		finished = make(chan struct{})
	)
	go func() {
		defer close(finished)
		result, err = discover(runCtx, events)
		p.Send(resultMsg{result: result, err: err})
	}()

	_, runErr := p.Run()

	// The view may be gone before the run is; stop the run and keep its
	// channel drained until it returns.
	cancel()
	go func() {
		for range events { //nolint:revive // Drain
		}
	}()
	<-finished

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) && !errors.Is(runErr, tea.ErrInterrupted) {
		if err == nil {
			err = fmt.Errorf("progress view failed: %w", runErr)
		}
	}
	return result, err
}
