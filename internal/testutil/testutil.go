// Package testutil provides shared test helpers: a temporary database and
// scriptable fakes for the persistence and AI gateways.
package testutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nota/internal/ai"
	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/auth"
	"github.com/starford/nota/internal/models"
	"github.com/starford/nota/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "nota-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(store.DriverSQLite, dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// OwnerCtx returns a background context acting as owner.
func OwnerCtx(owner string) context.Context {
	return auth.WithOwner(context.Background(), owner)
}

// MemStore is an in-memory persistence gateway with failure injection.
type MemStore struct {
	mu    sync.Mutex
	notes map[string]models.Note
	calls map[string]int
	clock time.Time

	// UpsertGate, when non-nil, blocks Upsert until it is closed.
	UpsertGate chan struct{}
	// Errs maps an operation name ("list", "get", "upsert", "delete") to
	// the error it returns instead of running.
	Errs map[string]error
}

// NewMemStore returns an empty store whose clock starts at a fixed time and
// advances one second per write.
func NewMemStore() *MemStore {
	return &MemStore{
		notes: make(map[string]models.Note),
		calls: make(map[string]int),
		Errs:  make(map[string]error),
		clock: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// Calls returns how many times op was invoked.
func (m *MemStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// SetErr injects err for op; nil clears it.
func (m *MemStore) SetErr(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Errs, op)
		return
	}
	m.Errs[op] = err
}

// Put stores n as is, bypassing validation and clocks.
func (m *MemStore) Put(n models.Note) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[n.ID] = n.Clone()
}

func (m *MemStore) begin(ctx context.Context, op string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return "", err
	}
	if err := m.Errs[op]; err != nil {
		return "", err
	}
	return owner, nil
}

func (m *MemStore) List(ctx context.Context) ([]models.Note, error) {
	owner, err := m.begin(ctx, "list")
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Note{}
	for _, n := range m.notes {
		if n.OwnerID == owner {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) Get(ctx context.Context, id string) (*models.Note, error) {
	owner, err := m.begin(ctx, "get")
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok || n.OwnerID != owner {
		return nil, fmt.Errorf("memstore: get %s: %w", id, apperr.ErrNotFound)
	}
	c := n.Clone()
	return &c, nil
}

func (m *MemStore) Upsert(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	owner, err := m.begin(ctx, "upsert")
	if err != nil {
		return nil, err
	}
	if gate := m.UpsertGate; gate != nil {
		<-gate
	}
	if in.Title == "" || in.Body == "" {
		return nil, apperr.Invalid("note", "title and body are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Second)
	tags := append([]string{}, in.Tags...)
	if in.ID == "" {
		n := models.Note{
			ID: uuid.NewString(), Title: in.Title, Body: in.Body, Tags: tags,
			OwnerID: owner, CreatedAt: m.clock, UpdatedAt: m.clock,
		}
		m.notes[n.ID] = n
		c := n.Clone()
		return &c, nil
	}
	n, ok := m.notes[in.ID]
	if !ok || n.OwnerID != owner {
		return nil, fmt.Errorf("memstore: update %s: %w", in.ID, apperr.ErrNotFound)
	}
	n.Title, n.Body, n.Tags, n.UpdatedAt = in.Title, in.Body, tags, m.clock
	m.notes[n.ID] = n
	c := n.Clone()
	return &c, nil
}

func (m *MemStore) Delete(ctx context.Context, id string) error {
	owner, err := m.begin(ctx, "delete")
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok || n.OwnerID != owner {
		return fmt.Errorf("memstore: delete %s: %w", id, apperr.ErrNotFound)
	}
	delete(m.notes, id)
	return nil
}

// FakeAI is a scriptable AI transform gateway.
type FakeAI struct {
	Summary string
	// Fragments are streamed in order by Enhance.
	Fragments []string
	// Err fails both calls before any work.
	Err error
	// StreamErr ends the stream after the fragments instead of io.EOF.
	StreamErr error
	// Gate, when non-nil, holds Summarize and the first Next of an enhance
	// stream until it is closed or the context ends.
	Gate chan struct{}

	mu               sync.Mutex
	summarizeCalls   int
	enhanceCalls     int
	lastInstructions string
	streams          []*SliceStream
}

func (f *FakeAI) Summarize(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	f.summarizeCalls++
	f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return "", fmt.Errorf("fakeai: summarize: %w", ctx.Err())
		}
	}
	return f.Summary, nil
}

func (f *FakeAI) Enhance(ctx context.Context, text, instructions string) (ai.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enhanceCalls++
	f.lastInstructions = instructions
	if f.Err != nil {
		return nil, f.Err
	}
	s := NewSliceStream(ctx, f.Fragments, f.StreamErr)
	s.gate = f.Gate
	f.streams = append(f.streams, s)
	return s, nil
}

// Calls returns the number of summarize and enhance calls.
func (f *FakeAI) Calls() (summarize, enhance int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summarizeCalls, f.enhanceCalls
}

// LastInstructions returns the instructions of the latest enhance call.
func (f *FakeAI) LastInstructions() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastInstructions
}

// Streams returns every stream handed out so far.
func (f *FakeAI) Streams() []*SliceStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*SliceStream(nil), f.streams...)
}

// SliceStream replays fixed fragments as an ai.Stream.
type SliceStream struct {
	ctx       context.Context
	fragments []string
	final     error
	gate      chan struct{}

	mu     sync.Mutex
	next   int
	closed bool
}

// NewSliceStream returns a stream of fragments ending with final, or io.EOF
// when final is nil.
func NewSliceStream(ctx context.Context, fragments []string, final error) *SliceStream {
	if final == nil {
		final = io.EOF
	}
	return &SliceStream{ctx: ctx, fragments: fragments, final: final}
}

func (s *SliceStream) Next() (string, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-s.ctx.Done():
		}
	}
	if err := s.ctx.Err(); err != nil {
		return "", fmt.Errorf("slicestream: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.fragments) {
		return "", s.final
	}
	frag := s.fragments[s.next]
	s.next++
	return frag, nil
}

func (s *SliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *SliceStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
