package api

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nota/internal/draft"
	"github.com/starford/nota/internal/models"
	"github.com/starford/nota/internal/session"
)

// NoteRequest is the request body for creating or replacing a note. Tags may
// be given as a list or as comma-separated text.
type NoteRequest struct {
	Title   string   `json:"title" example:"Groceries" validate:"required"`
	Body    string   `json:"body" example:"Milk, eggs" validate:"required"`
	Tags    []string `json:"tags,omitempty" example:"home,errands"`
	TagsRaw string   `json:"tags_raw,omitempty" example:"home, errands"`
}

func (r *NoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required.Error("title is required")),
		validation.Field(&r.Body, validation.Required.Error("body is required")),
		validation.Field(&r.Tags, validation.Each(validation.By(validTag))),
	)
}

// input converts the request into an upsert payload for id.
func (r *NoteRequest) input(id string) models.NoteInput {
	tags := r.Tags
	if len(tags) == 0 && r.TagsRaw != "" {
		tags = draft.ParseTags(r.TagsRaw)
	}
	if tags == nil {
		tags = []string{}
	}
	return models.NoteInput{ID: id, Title: r.Title, Body: r.Body, Tags: tags}
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.Note `json:"results" validate:"required"`
}

// CreateSessionRequest optionally names the note to open.
type CreateSessionRequest struct {
	NoteID string `json:"note_id,omitempty" example:"6f1c0c9e-6a36-4f0e-9a8c-2b2a54d8a1f0"`
}

// SessionResponse carries a session id and its state.
type SessionResponse struct {
	ID    string           `json:"id" validate:"required"`
	State session.Snapshot `json:"state" validate:"required"`
}

// ViewRequest selects the session view.
type ViewRequest struct {
	View session.View `json:"view" example:"preview" validate:"required"`
}

func (r *ViewRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.View, validation.Required.Error("view is required")),
	)
}

// SaveResponse is returned after a session save.
type SaveResponse struct {
	Note  models.Note      `json:"note" validate:"required"`
	State session.Snapshot `json:"state" validate:"required"`
}

// SummaryResponse carries a generated summary.
type SummaryResponse struct {
	Summary string            `json:"summary" example:"A shopping list." validate:"required"`
	State   *session.Snapshot `json:"state,omitempty"`
}

// EnhanceRequest carries optional rewrite instructions.
type EnhanceRequest struct {
	Instructions string `json:"instructions,omitempty" example:"make it more formal"`
}

// EnhanceResponse carries a finished rewrite.
type EnhanceResponse struct {
	Enhanced string            `json:"enhanced" validate:"required"`
	State    *session.Snapshot `json:"state,omitempty"`
}

// CancelResponse reports whether an operation was running.
type CancelResponse struct {
	Canceled bool `json:"canceled"`
}

// SummarizeRequest is the body of the stateless summarize endpoint.
type SummarizeRequest struct {
	Content string `json:"content" example:"Long text..." validate:"required"`
}

func (r *SummarizeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.By(notBlank("content is required"))),
	)
}

// TransformEnhanceRequest is the body of the stateless enhance endpoint.
type TransformEnhanceRequest struct {
	Content      string `json:"content" example:"rough text" validate:"required"`
	Instructions string `json:"instructions,omitempty" example:"fix grammar"`
}

func (r *TransformEnhanceRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.By(notBlank("content is required"))),
	)
}

// FragmentEvent is the data of a streamed "fragment" event.
type FragmentEvent struct {
	Text string `json:"text"`
}

func validTag(v any) error {
	s, _ := v.(string)
	switch {
	case strings.TrimSpace(s) == "":
		return validation.NewError("validation_tag_blank", "tag must not be blank")
	case strings.Contains(s, ","):
		return validation.NewError("validation_tag_comma", "tag must not contain a comma")
	}
	return nil
}

func notBlank(msg string) validation.RuleFunc {
	return func(v any) error {
		s, _ := v.(string)
		if strings.TrimSpace(s) == "" {
			return validation.NewError("validation_required", msg)
		}
		return nil
	}
}
