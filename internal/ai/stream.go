package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/starford/nota/internal/apperr"
)

// Stream yields text fragments in delivery order. Next returns io.EOF once
// the provider signals completion. A Stream is not restartable; Close
// releases the underlying response and may be called more than once.
type Stream interface {
	Next() (string, error)
	Close() error
}

const doneMarker = "[DONE]"

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// sseStream reads chat completion chunks from a text/event-stream body.
type sseStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
	closed  bool
}

func newSSEStream(ctx context.Context, body io.ReadCloser) *sseStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{ctx: ctx, body: body, scanner: sc}
}

func (s *sseStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	if s.closed {
		return "", fmt.Errorf("ai: enhance: stream closed: %w", apperr.ErrCanceled)
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneMarker {
			s.done = true
			return "", io.EOF
		}
		var c chunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return "", fmt.Errorf("ai: enhance: decode chunk: %w: %w", apperr.ErrUnavailable, err)
		}
		if c.Error != nil {
			return "", fmt.Errorf("ai: enhance: provider error: %s: %w", c.Error.Message, apperr.ErrUnavailable)
		}
		if len(c.Choices) == 0 || c.Choices[0].Delta.Content == "" {
			continue
		}
		return c.Choices[0].Delta.Content, nil
	}
	if err := s.ctx.Err(); err != nil {
		return "", fmt.Errorf("ai: enhance: %w", err)
	}
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("ai: enhance: read stream: %w: %w", apperr.ErrUnavailable, err)
	}
	return "", fmt.Errorf("ai: enhance: stream interrupted: %w", apperr.ErrUnavailable)
}

func (s *sseStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
