package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/schollz/progressbar/v3"
)

// ProgressRenderer draws discovery progress events as a terminal bar.
type ProgressRenderer struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
	last   model.ProgressEvent
}

// NewProgressRenderer creates a renderer writing to w.
func NewProgressRenderer(w io.Writer) *ProgressRenderer {
	r := &ProgressRenderer{writer: w}
	r.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("[cyan][bold]starting[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return r
}

// Render draws one event.
func (r *ProgressRenderer) Render(event model.ProgressEvent) {
	r.last = event
	r.bar.Describe(fmt.Sprintf("[cyan][bold]%-9s[reset] %s", event.Step, event.Message))

	if event.IsComplete {
		if err := r.bar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
		return
	}
	if err := r.bar.Set(event.Progress); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

// Drain renders events until the channel is closed and returns the last one.
func (r *ProgressRenderer) Drain(events <-chan model.ProgressEvent) model.ProgressEvent {
	for event := range events {
		r.Render(event)
	}
	return r.last
}
