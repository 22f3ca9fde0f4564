package tui

import "github.com/Veraticus/billfinder/internal/model"

type progressMsg struct {
	event model.ProgressEvent
}

// progressClosedMsg arrives once the engine closed its progress channel.
type progressClosedMsg struct{}

type resultMsg struct {
	result *model.DiscoveryResult
	err    error
}
