// Package noteservice wraps the note store and announces every successful
// change to subscribers.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/auth"
	"github.com/starford/nota/internal/collection"
	"github.com/starford/nota/internal/models"
	"github.com/starford/nota/internal/sse"
)

// Repository is the persistence gateway.
type Repository interface {
	List(ctx context.Context) ([]models.Note, error)
	Get(ctx context.Context, id string) (*models.Note, error)
	Upsert(ctx context.Context, in models.NoteInput) (*models.Note, error)
	Delete(ctx context.Context, id string) error
}

// Notifier receives note changes.
type Notifier interface {
	PublishNoteEvent(kind, owner, id string)
}

// Service coordinates the repository and change notifications.
type Service struct {
	repo   Repository
	notify Notifier
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where changes are announced.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new note service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the owner's notes, most recently updated first.
func (s *Service) List(ctx context.Context) ([]models.Note, error) {
	return s.repo.List(ctx)
}

// Get returns one note.
func (s *Service) Get(ctx context.Context, id string) (*models.Note, error) {
	return s.repo.Get(ctx, id)
}

// Upsert creates or updates a note and publishes note.created or
// note.updated.
func (s *Service) Upsert(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	n, err := s.repo.Upsert(ctx, in)
	if err != nil {
		return nil, err
	}
	kind := sse.NoteUpdated
	if in.ID == "" {
		kind = sse.NoteCreated
	}
	s.publish(kind, n.OwnerID, n.ID)
	return n, nil
}

// Update replaces an existing note. An unknown id is not-found rather than
// a create.
func (s *Service) Update(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	if in.ID == "" {
		return nil, apperr.Invalid("id", "id is required")
	}
	return s.Upsert(ctx, in)
}

// Delete removes a note and publishes note.deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	owner, _ := auth.OwnerFrom(ctx)
	s.publish(sse.NoteDeleted, owner, id)
	return nil
}

// Search returns the owner's notes whose title, body or any tag contains
// query, case-insensitively, most recently updated first. It matches exactly
// like the collection view filter.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 20
	}
	notes, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("noteservice: search: %w", err)
	}
	return collection.Limit(collection.Filter(notes, query), limit), nil
}

// Query loads a collection view filtered by q and capped at limit.
func (s *Service) Query(ctx context.Context, q string, limit int) ([]models.Note, error) {
	v := collection.New(s, collection.WithLogger(s.logger))
	if err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	v.SetQuery(q)
	v.SetLimit(limit)
	return v.Visible(), nil
}

func (s *Service) publish(kind, owner, id string) {
	if s.notify == nil {
		return
	}
	s.logger.Debug("noteservice: publish", slog.String("kind", kind), slog.String("id", id))
	s.notify.PublishNoteEvent(kind, owner, id)
}
