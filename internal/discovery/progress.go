package discovery

import (
	"sync"

	"github.com/Veraticus/billfinder/internal/model"
)

// Progress milestones of a run.
const (
	progressStart      = 0
	progressFetchStart = 5
	progressFetchEnd   = 70
	progressMerge      = 75
	progressEnrich     = 90
	progressComplete   = 100
)

// reporter serializes progress events from concurrent workers and keeps the
// reported percentage non-decreasing. Sends block until the caller reads, so
// callers must drain the channel until it is closed.
type reporter struct {
	out    chan<- model.ProgressEvent
	mu     sync.Mutex
	last   int
	done   int
	total  int
	closed bool
}

func newReporter(out chan<- model.ProgressEvent, units int) *reporter {
	return &reporter{out: out, total: units}
}

func (r *reporter) emit(step model.ProgressStep, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.send(step, progress, message, false)
}

// unitDone records one settled work unit and reports fetch progress.
func (r *reporter) unitDone(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.done++
	progress := progressFetchEnd
	if r.total > 0 {
		progress = progressFetchStart + (progressFetchEnd-progressFetchStart)*r.done/r.total
	}
	r.send(model.StepFetching, progress, message, false)
}

func (r *reporter) complete(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.send(model.StepComplete, progressComplete, message, true)
}

// send must be called with mu held.
func (r *reporter) send(step model.ProgressStep, progress int, message string, complete bool) {
	if r.out == nil || r.closed {
		return
	}
	if progress < r.last {
		progress = r.last
	}
	r.last = progress
	r.out <- model.ProgressEvent{
		Step:       step,
		Progress:   progress,
		Message:    message,
		IsComplete: complete,
	}
}

func (r *reporter) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out != nil && !r.closed {
		r.closed = true
		close(r.out)
	}
}
