// Package api implements the Nota REST API using chi.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nota/internal/auth"
	"github.com/starford/nota/internal/noteservice"
	"github.com/starford/nota/internal/session"
)

// Deps are the collaborators the API serves.
type Deps struct {
	Notes    *noteservice.Service
	Sessions *session.Registry
	AI       session.Transformer
	Auth     *auth.Authenticator
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted. Every route
// requires an authenticated owner.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d.Notes)
	sh := NewSessionHandler(d.Sessions)
	th := NewTransformHandler(d.AI)

	authn := d.Auth
	if authn == nil {
		authn = &auth.Authenticator{Mode: auth.ModeDisabled, DefaultOwner: "local"}
	}

	r := chi.NewRouter()
	r.Use(authn.Middleware)

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	// Search.
	r.Get("/search", h.Search)

	// Editing sessions.
	r.Post("/sessions", sh.Create)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", sh.Get)
		r.Delete("/", sh.Close)
		r.Patch("/draft", sh.EditDraft)
		r.Put("/view", sh.SelectView)
		r.Post("/save", sh.Save)
		r.Post("/summarize", sh.Summarize)
		r.Delete("/summarize", sh.CancelSummarize)
		r.Post("/enhance", sh.Enhance)
		r.Delete("/enhance", sh.CancelEnhance)
		r.Post("/enhance/apply", sh.ApplyEnhancement)
		r.Post("/enhance/discard", sh.DiscardEnhancement)
	})

	// Stateless transforms.
	r.Post("/ai/summarize", th.Summarize)
	r.Post("/ai/enhance", th.Enhance)

	// SSE endpoint (protected by same auth middleware).
	if d.Events != nil {
		r.Get("/events", d.Events.ServeHTTP)
	}

	return r
}
