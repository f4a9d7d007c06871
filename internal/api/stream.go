package api

import (
	"net/http"
	"strings"

	"github.com/starford/nota/internal/sse"
)

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// eventStream starts the SSE response on the first event, so failures that
// happen before any output can still be reported with a plain status code.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	broken  bool
}

func (s *eventStream) send(event string, data any) {
	if s.broken {
		return
	}
	if !s.started {
		f, ok := sse.Start(s.w)
		if !ok {
			s.broken = true
			return
		}
		s.flusher, s.started = f, true
	}
	if err := sse.WriteEvent(s.w, s.flusher, event, data); err != nil {
		s.broken = true
	}
}

func (s *eventStream) fragment(text string) {
	s.send("fragment", FragmentEvent{Text: text})
}

// finish ends the stream with "done" carrying result, or with "error". If
// nothing was streamed yet, an error is written as a regular JSON response.
func (s *eventStream) finish(r *http.Request, result any, err error) {
	if err == nil {
		s.send("done", result)
		return
	}
	if !s.started {
		writeError(s.w, r, err)
		return
	}
	s.send("error", errorResponse(err))
}
