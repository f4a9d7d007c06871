// Package models defines the domain types for Nota.
package models

import "time"

// Note is a persisted text document owned by one user.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteInput is the client-supplied part of an upsert. An empty ID creates a
// new note; otherwise the note with that ID is updated.
type NoteInput struct {
	ID    string   `json:"id,omitempty"`
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// Clone returns a copy whose Tags slice does not alias n's.
func (n Note) Clone() Note {
	if n.Tags != nil {
		n.Tags = append([]string(nil), n.Tags...)
	}
	return n
}
