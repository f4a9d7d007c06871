package session

import (
	"fmt"

	"github.com/starford/nota/internal/apperr"
)

// View is the presentation mode of a session.
type View string

// Views.
const (
	ViewEditor  View = "editor"
	ViewPreview View = "preview"
	ViewSummary View = "summary"
)

// ViewState is the view-state machine. Transitions return a new value and
// never mutate the receiver.
type ViewState struct {
	current    View
	hasSummary bool
}

// NewViewState returns the initial state: preview for an existing note,
// editor for a new one.
func NewViewState(existing bool) ViewState {
	if existing {
		return ViewState{current: ViewPreview}
	}
	return ViewState{current: ViewEditor}
}

// Current returns the active view.
func (s ViewState) Current() View { return s.current }

// HasSummary reports whether the summary view can be selected.
func (s ViewState) HasSummary() bool { return s.hasSummary }

// Select switches to v. Summary is only reachable once a summary exists.
func (s ViewState) Select(v View) (ViewState, error) {
	switch v {
	case ViewEditor, ViewPreview:
	case ViewSummary:
		if !s.hasSummary {
			return s, apperr.Invalid("view", "no summary available")
		}
	default:
		return s, apperr.Invalid("view", fmt.Sprintf("unknown view %q", v))
	}
	s.current = v
	return s, nil
}

// WithSummary records that a summary exists and shows it.
func (s ViewState) WithSummary() ViewState {
	s.hasSummary = true
	s.current = ViewSummary
	return s
}

// AfterSave moves from editor to preview when the saved note already
// existed before the save.
func (s ViewState) AfterSave(existedBefore bool) ViewState {
	if existedBefore && s.current == ViewEditor {
		s.current = ViewPreview
	}
	return s
}
