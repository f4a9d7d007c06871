// Package collection is the list-level view over an owner's notes: a local
// search filter, an optional limit, and optimistic deletion.
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/models"
	"github.com/starford/nota/internal/optimistic"
)

// Store is the part of the persistence gateway the view needs.
type Store interface {
	List(ctx context.Context) ([]models.Note, error)
	Delete(ctx context.Context, id string) error
}

// View holds the loaded notes and the local filter settings. It is safe for
// concurrent use.
type View struct {
	store  Store
	logger *slog.Logger
	items  *optimistic.Cell[[]models.Note]

	mu    sync.Mutex
	query string
	limit int
}

// Option configures a View.
type Option func(*View)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *View) { v.logger = l }
}

// New returns an empty view over store.
func New(store Store, opts ...Option) *View {
	v := &View{
		store:  store,
		logger: slog.Default(),
		items:  optimistic.NewCell([]models.Note{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Refresh reloads the owner's notes, most recently updated first. On failure
// the previously loaded notes are kept.
func (v *View) Refresh(ctx context.Context) error {
	notes, err := v.store.List(ctx)
	if err != nil {
		return err
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
	})
	v.items.Store(notes)
	return nil
}

// SetQuery sets the search text. Empty matches everything.
func (v *View) SetQuery(q string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.query = q
}

// SetLimit caps the number of visible notes; n <= 0 removes the cap.
func (v *View) SetLimit(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.limit = n
}

// Items returns every loaded note, unfiltered.
func (v *View) Items() []models.Note {
	return cloneAll(v.items.Load())
}

// Visible returns the loaded notes matching the query, truncated to the limit.
func (v *View) Visible() []models.Note {
	v.mu.Lock()
	q, n := v.query, v.limit
	v.mu.Unlock()
	return Limit(Filter(v.Items(), q), n)
}

// Find returns a loaded note by id.
func (v *View) Find(id string) (models.Note, bool) {
	for _, n := range v.items.Load() {
		if n.ID == id {
			return n.Clone(), true
		}
	}
	return models.Note{}, false
}

// Delete removes the note locally, then through the store. If the store
// fails, the note is put back at its previous position and the error is
// returned.
func (v *View) Delete(ctx context.Context, id string) error {
	err := optimistic.Do(ctx, v.items, removeNote(id), func(ctx context.Context) error {
		return v.store.Delete(ctx, id)
	})
	if err != nil {
		v.logger.Warn("collection: delete failed, restored",
			slog.String("id", id), slog.String("error", err.Error()))
	}
	return err
}

// ConfirmAndDelete asks confirm about the loaded note and deletes it only on
// approval. It reports whether the note was deleted.
func (v *View) ConfirmAndDelete(ctx context.Context, id string, confirm func(models.Note) bool) (bool, error) {
	n, ok := v.Find(id)
	if !ok {
		return false, fmt.Errorf("collection: delete %s: %w", id, apperr.ErrNotFound)
	}
	if !confirm(n) {
		return false, nil
	}
	if err := v.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func removeNote(id string) optimistic.Mutation[[]models.Note] {
	return func(cur []models.Note) ([]models.Note, func([]models.Note) []models.Note) {
		idx := slices.IndexFunc(cur, func(n models.Note) bool { return n.ID == id })
		if idx < 0 {
			return cur, nil
		}
		removed := cur[idx]
		next := slices.Delete(slices.Clone(cur), idx, idx+1)
		return next, func(now []models.Note) []models.Note {
			if slices.ContainsFunc(now, func(n models.Note) bool { return n.ID == id }) {
				return now
			}
			return slices.Insert(slices.Clone(now), min(idx, len(now)), removed)
		}
	}
}

// Matches reports whether q occurs, case-insensitively, in the note's title,
// body, or any tag.
func Matches(n models.Note, q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Body), q) {
		return true
	}
	for _, tag := range n.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Filter returns the notes matching q, in their original order.
func Filter(notes []models.Note, q string) []models.Note {
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if Matches(n, q) {
			out = append(out, n)
		}
	}
	return out
}

// Limit returns at most n notes from the front; n <= 0 means all.
func Limit(notes []models.Note, n int) []models.Note {
	if n <= 0 || n >= len(notes) {
		return notes
	}
	return notes[:n]
}

func cloneAll(notes []models.Note) []models.Note {
	out := make([]models.Note, len(notes))
	for i, n := range notes {
		out[i] = n.Clone()
	}
	return out
}
