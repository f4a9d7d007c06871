package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Format encodes event as one SSE frame with JSON data.
func Format(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", event.Type, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)), nil
}

// Start writes the event-stream headers. It reports false, after writing an
// error response, when w cannot stream.
func Start(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

// WriteEvent writes and flushes a single event on a stream opened with Start.
func WriteEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) error {
	raw, err := Format(Event{Type: eventType, Data: data})
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("sse: write %s: %w", eventType, err)
	}
	flusher.Flush()
	return nil
}
