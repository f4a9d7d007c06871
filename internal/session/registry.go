package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/auth"
)

// Registry keeps the live sessions of all owners, keyed by an opaque id, and
// evicts idle ones.
type Registry struct {
	factory func() *Controller
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	ctrl     *Controller
	owner    string
	lastUsed time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns a registry creating sessions with factory. Sessions
// unused for longer than ttl are removed by Sweep; ttl <= 0 disables
// eviction.
func NewRegistry(factory func() *Controller, ttl time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		logger:   slog.Default(),
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a session for the context owner. A non-empty noteID loads
// that note first; if the load fails no session is registered.
func (r *Registry) Create(ctx context.Context, noteID string) (string, *Controller, error) {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return "", nil, err
	}
	ctrl := r.factory()
	if noteID != "" {
		if err := ctrl.Load(ctx, noteID); err != nil {
			return "", nil, err
		}
	}

	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = &entry{ctrl: ctrl, owner: owner, lastUsed: r.now()}
	r.mu.Unlock()
	r.logger.Debug("session: created", slog.String("session", id), slog.String("note", noteID))
	return id, ctrl, nil
}

// Get returns the owner's session id. Sessions of other owners are reported
// as not found.
func (r *Registry) Get(ctx context.Context, id string) (*Controller, error) {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.owner != owner {
		return nil, fmt.Errorf("session: %s: %w", id, apperr.ErrNotFound)
	}
	e.lastUsed = r.now()
	return e.ctrl, nil
}

// Remove closes and forgets the owner's session id.
func (r *Registry) Remove(ctx context.Context, id string) error {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok || e.owner != owner {
		r.mu.Unlock()
		return fmt.Errorf("session: %s: %w", id, apperr.ErrNotFound)
	}
	delete(r.sessions, id)
	r.mu.Unlock()
	e.ctrl.Close()
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the ttl and returns how many
// were removed. Sessions with an outstanding operation are kept.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var idle []*Controller
	for id, e := range r.sessions {
		if e.lastUsed.After(cutoff) || e.ctrl.Busy() {
			continue
		}
		delete(r.sessions, id)
		idle = append(idle, e.ctrl)
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("session: swept idle sessions", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 || r.ttl <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.Sweep()
		}
	}
}

// CloseAll closes and forgets every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range all {
		e.ctrl.Close()
	}
}
