// Package session implements the note-editing session controller: it owns a
// draft, saves it through the persistence gateway, runs the AI transforms,
// and enforces the view-state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/starford/nota/internal/ai"
	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/draft"
	"github.com/starford/nota/internal/models"
)

// DefaultMinSummaryLength is the shortest body, in characters, that can be
// summarized.
const DefaultMinSummaryLength = 50

// Store is the part of the persistence gateway a session needs.
type Store interface {
	Get(ctx context.Context, id string) (*models.Note, error)
	Upsert(ctx context.Context, in models.NoteInput) (*models.Note, error)
}

// Transformer is the AI transform gateway.
type Transformer interface {
	Summarize(ctx context.Context, text string) (string, error)
	Enhance(ctx context.Context, text, instructions string) (ai.Stream, error)
}

// Controller coordinates one note's editing session. All methods are safe
// for concurrent use; gateway calls run without holding the state lock, so
// edits and saves proceed while a transform is outstanding.
type Controller struct {
	store      Store
	ai         Transformer
	logger     *slog.Logger
	minSummary int

	mu      sync.Mutex
	draft   *draft.Draft
	view    ViewState
	saving  bool
	summary string
	pending *string
	ops     map[Op]*opSlot
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMinSummaryLength sets the minimum body length for Summarize.
func WithMinSummaryLength(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.minSummary = n
		}
	}
}

// New returns a session for a new, empty note.
func New(store Store, transformer Transformer, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		ai:         transformer,
		logger:     slog.Default(),
		minSummary: DefaultMinSummaryLength,
		draft:      draft.New(),
		view:       NewViewState(false),
		ops: map[Op]*opSlot{
			OpSummarize: {state: OpState{Status: StatusIdle}},
			OpEnhance:   {state: OpState{Status: StatusIdle}},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces the session content with the stored note id and shows it in
// preview. Running transforms are cancelled. On failure the session is left
// unchanged.
func (c *Controller) Load(ctx context.Context, id string) error {
	n, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range c.ops {
		o.abort()
	}
	c.draft = draft.FromNote(n)
	c.view = NewViewState(true)
	c.summary = ""
	c.pending = nil
	return nil
}

// Save validates the draft and upserts it. A second Save while one is
// outstanding fails with a conflict. Cancelling ctx does not abort a save
// that has started.
func (c *Controller) Save(ctx context.Context) (*models.Note, error) {
	c.mu.Lock()
	if c.saving {
		c.mu.Unlock()
		return nil, &apperr.ConflictError{Op: "save"}
	}
	if err := c.draft.Validate(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	d := c.draft
	in := d.Input()
	existed := in.ID != ""
	c.saving = true
	c.mu.Unlock()

	n, err := c.store.Upsert(context.WithoutCancel(ctx), in)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saving = false
	if err != nil {
		c.logger.Warn("session: save failed", slog.String("error", err.Error()))
		return nil, err
	}
	// A Load during the save replaced the draft; the saved note stays saved
	// but the new draft's baseline is not touched.
	if c.draft == d {
		d.MarkSaved(n.ID, draft.Fields{Title: n.Title, Body: n.Body, Tags: n.Tags})
		c.view = c.view.AfterSave(existed)
	}
	out := n.Clone()
	return &out, nil
}

// Summarize asks the AI gateway for a summary of the body. The result
// replaces any previous summary and the view moves to summary.
func (c *Controller) Summarize(ctx context.Context) (string, error) {
	c.mu.Lock()
	slot := c.ops[OpSummarize]
	if slot.inFlight() {
		c.mu.Unlock()
		return "", &apperr.ConflictError{Op: "summarize"}
	}
	body := c.draft.Body()
	if utf8.RuneCountInString(body) < c.minSummary {
		c.mu.Unlock()
		return "", apperr.Invalid("body", fmt.Sprintf("at least %d characters are required to summarize", c.minSummary))
	}
	opCtx, cancel := context.WithCancel(ctx)
	seq := slot.begin(cancel)
	c.mu.Unlock()

	text, err := c.ai.Summarize(opCtx, body)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !slot.finish(seq, text, err) {
		return "", fmt.Errorf("session: summarize: %w", apperr.ErrCanceled)
	}
	if err != nil {
		c.logger.Warn("session: summarize failed", slog.String("error", err.Error()))
		return "", err
	}
	c.summary = text
	c.view = c.view.WithSummary()
	return text, nil
}

// Enhance streams a rewrite of the body. Fragments are joined in arrival
// order and exposed as the pending enhancement only once the stream
// completes; the draft is not changed until ApplyEnhancement. A successful
// run replaces an unapplied enhancement; a failed or cancelled one keeps it.
func (c *Controller) Enhance(ctx context.Context, instructions string) (string, error) {
	return c.EnhanceStream(ctx, instructions, nil)
}

// EnhanceStream is Enhance with onFragment called for every fragment as it
// arrives. onFragment runs without the session lock held.
func (c *Controller) EnhanceStream(ctx context.Context, instructions string, onFragment func(string)) (string, error) {
	c.mu.Lock()
	slot := c.ops[OpEnhance]
	if slot.inFlight() {
		c.mu.Unlock()
		return "", &apperr.ConflictError{Op: "enhance"}
	}
	body := c.draft.Body()
	if body == "" {
		c.mu.Unlock()
		return "", apperr.Invalid("body", "body is required to enhance")
	}
	opCtx, cancel := context.WithCancel(ctx)
	seq := slot.begin(cancel)
	c.mu.Unlock()

	text, err := c.consume(opCtx, body, instructions, onFragment)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !slot.finish(seq, text, err) {
		return "", fmt.Errorf("session: enhance: %w", apperr.ErrCanceled)
	}
	if err != nil {
		c.logger.Warn("session: enhance failed", slog.String("error", err.Error()))
		return "", err
	}
	c.pending = &text
	return text, nil
}

func (c *Controller) consume(ctx context.Context, body, instructions string, onFragment func(string)) (string, error) {
	stream, err := c.ai.Enhance(ctx, body, instructions)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		b.WriteString(frag)
		if onFragment != nil {
			onFragment(frag)
		}
	}
}

// ApplyEnhancement overwrites the body with the pending enhancement.
func (c *Controller) ApplyEnhancement() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return apperr.Invalid("enhancement", "no enhancement to apply")
	}
	c.draft.SetBody(*c.pending)
	c.pending = nil
	c.ops[OpEnhance].state = OpState{Status: StatusIdle}
	return nil
}

// DiscardEnhancement drops the pending enhancement, if any.
func (c *Controller) DiscardEnhancement() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return
	}
	c.pending = nil
	c.ops[OpEnhance].state = OpState{Status: StatusIdle}
}

// CancelSummarize aborts an outstanding summarize. It reports whether one
// was running.
func (c *Controller) CancelSummarize() bool { return c.cancel(OpSummarize) }

// CancelEnhance aborts an outstanding enhance, discarding partial output. It
// reports whether one was running.
func (c *Controller) CancelEnhance() bool { return c.cancel(OpEnhance) }

func (c *Controller) cancel(op Op) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops[op].abort()
}

// SelectView switches the view.
func (c *Controller) SelectView(v View) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := c.view.Select(v)
	if err != nil {
		return err
	}
	c.view = next
	return nil
}

// Patch carries optional draft edits.
type Patch struct {
	Title   *string `json:"title,omitempty"`
	Body    *string `json:"body,omitempty"`
	TagsRaw *string `json:"tags_raw,omitempty"`
}

// Edit applies the non-nil fields of p to the draft.
func (c *Controller) Edit(p Patch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Title != nil {
		c.draft.SetTitle(*p.Title)
	}
	if p.Body != nil {
		c.draft.SetBody(*p.Body)
	}
	if p.TagsRaw != nil {
		c.draft.SetTagsRaw(*p.TagsRaw)
	}
}

// SetTitle replaces the draft title.
func (c *Controller) SetTitle(s string) { c.Edit(Patch{Title: &s}) }

// SetBody replaces the draft body.
func (c *Controller) SetBody(s string) { c.Edit(Patch{Body: &s}) }

// SetTagsRaw replaces the comma-separated tag text.
func (c *Controller) SetTagsRaw(s string) { c.Edit(Patch{TagsRaw: &s}) }

// Busy reports whether a save or transform is outstanding.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving {
		return true
	}
	for _, o := range c.ops {
		if o.inFlight() {
			return true
		}
	}
	return false
}

// Close cancels outstanding transforms.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range c.ops {
		o.abort()
	}
}

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	NoteID             string   `json:"note_id,omitempty"`
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	TagsRaw            string   `json:"tags_raw"`
	Tags               []string `json:"tags"`
	Dirty              bool     `json:"dirty"`
	View               View     `json:"view"`
	Summary            string   `json:"summary,omitempty"`
	PendingEnhancement *string  `json:"pending_enhancement,omitempty"`
	Saving             bool     `json:"saving"`
	Summarize          OpState  `json:"summarize"`
	Enhance            OpState  `json:"enhance"`
}

// State returns a snapshot of the session.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		NoteID:    c.draft.BaseID(),
		Title:     c.draft.Title(),
		Body:      c.draft.Body(),
		TagsRaw:   c.draft.TagsRaw(),
		Tags:      c.draft.Tags(),
		Dirty:     c.draft.Dirty(),
		View:      c.view.Current(),
		Summary:   c.summary,
		Saving:    c.saving,
		Summarize: c.ops[OpSummarize].state,
		Enhance:   c.ops[OpEnhance].state,
	}
	if c.pending != nil {
		p := *c.pending
		s.PendingEnhancement = &p
	}
	return s
}
