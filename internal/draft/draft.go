// Package draft holds the editable, in-memory copy of a single note.
package draft

import (
	"errors"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/models"
)

// Fields is the editable content of a note.
type Fields struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

func (f Fields) equal(o Fields) bool {
	return f.Title == o.Title && f.Body == o.Body && slices.Equal(f.Tags, o.Tags)
}

// Draft is owned by exactly one session and is not safe for concurrent use.
type Draft struct {
	baseID   string
	title    string
	body     string
	tagsRaw  string
	baseline Fields
}

// New returns an empty draft for a note that does not exist yet.
func New() *Draft {
	return &Draft{baseline: Fields{Tags: []string{}}}
}

// FromNote populates a draft from a stored note. The raw tag text is derived
// from the note's tags.
func FromNote(n *models.Note) *Draft {
	d := &Draft{
		baseID:  n.ID,
		title:   n.Title,
		body:    n.Body,
		tagsRaw: FormatTags(n.Tags),
	}
	d.baseline = d.Fields()
	return d
}

func (d *Draft) BaseID() string  { return d.baseID }
func (d *Draft) Title() string   { return d.title }
func (d *Draft) Body() string    { return d.body }
func (d *Draft) TagsRaw() string { return d.tagsRaw }
func (d *Draft) Tags() []string  { return ParseTags(d.tagsRaw) }

func (d *Draft) SetTitle(s string)   { d.title = s }
func (d *Draft) SetBody(s string)    { d.body = s }
func (d *Draft) SetTagsRaw(s string) { d.tagsRaw = s }

// SetTags replaces the tags, rewriting the raw text from them.
func (d *Draft) SetTags(tags []string) { d.tagsRaw = FormatTags(tags) }

// Fields returns the current editable content with tags parsed.
func (d *Draft) Fields() Fields {
	return Fields{Title: d.title, Body: d.body, Tags: d.Tags()}
}

// Dirty reports whether the content differs from the last loaded or saved
// snapshot.
func (d *Draft) Dirty() bool {
	return !d.Fields().equal(d.baseline)
}

// Validate checks the required fields.
func (d *Draft) Validate() error {
	err := validation.Errors{
		"title": validation.Validate(d.title, validation.Required.Error("title is required")),
		"body":  validation.Validate(d.body, validation.Required.Error("body is required")),
	}.Filter()
	if err == nil {
		return nil
	}
	out := &apperr.ValidationError{Fields: map[string]string{}}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, fe := range verrs {
			out.Fields[field] = fe.Error()
		}
	}
	return out
}

// Input returns the upsert payload for the current content.
func (d *Draft) Input() models.NoteInput {
	f := d.Fields()
	return models.NoteInput{ID: d.baseID, Title: f.Title, Body: f.Body, Tags: f.Tags}
}

// MarkSaved records a successful write of saved. Edits made after saved was
// captured keep the draft dirty.
func (d *Draft) MarkSaved(id string, saved Fields) {
	d.baseID = id
	saved.Tags = slices.Clone(saved.Tags)
	if saved.Tags == nil {
		saved.Tags = []string{}
	}
	d.baseline = saved
}

// ParseTags splits comma-separated text into trimmed, non-empty tags.
func ParseTags(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// FormatTags renders tags for editing.
func FormatTags(tags []string) string {
	return strings.Join(tags, ", ")
}
