package mcpserver

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/models"
	"github.com/starford/nota/internal/parser"
)

// NoteFormatURI is the resource URI of the note format contract.
const NoteFormatURI = "nota://note-format"

// NoteFormatContract describes the document format read_note returns and
// save_note accepts.
const NoteFormatContract = `# Nota Note Format

Notes are exchanged as Markdown documents with YAML frontmatter.

` + "```" + `markdown
---
id: 6f1c0c9e-6a36-4f0e-9a8c-2b2a54d8a1f0   # set by the server; omit to create
title: Weekly standup                       # REQUIRED
tags:                                       # OPTIONAL, order is kept
  - meetings
  - project-x
created: 2025-01-20T09:00:00Z               # read-only
updated: 2025-01-20T09:30:00Z               # read-only
---

Body text in Markdown. REQUIRED, must not be empty.
` + "```" + `

## Rules

1. The ` + "`---`" + ` fences must be the first thing in the document.
2. ` + "`title`" + ` and a non-empty body are required; saving fails otherwise.
3. ` + "`id`" + ` selects the note to update. The ` + "`id`" + ` argument of save_note wins over the frontmatter.
4. ` + "`created`" + ` and ` + "`updated`" + ` are ignored on save.
5. Summaries need a body of at least 50 characters.
`

type frontmatter struct {
	ID      string   `yaml:"id,omitempty"`
	Title   string   `yaml:"title"`
	Tags    []string `yaml:"tags,omitempty"`
	Created string   `yaml:"created,omitempty"`
	Updated string   `yaml:"updated,omitempty"`
}

// RenderNote formats n as a note document.
func RenderNote(n models.Note) (string, error) {
	fm := frontmatter{
		ID:      n.ID,
		Title:   n.Title,
		Tags:    n.Tags,
		Created: n.CreatedAt.UTC().Format(time.RFC3339),
		Updated: n.UpdatedAt.UTC().Format(time.RFC3339),
	}
	meta, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("mcpserver: render %s: %w", n.ID, err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(meta)
	b.WriteString("---\n\n")
	b.WriteString(n.Body)
	b.WriteString("\n")
	return b.String(), nil
}

// ParseNote reads a note document into an upsert payload.
func ParseNote(content string) (models.NoteInput, error) {
	var fm frontmatter
	body, err := parser.Decode([]byte(content), &fm)
	if err != nil {
		return models.NoteInput{}, apperr.Invalid("content", err.Error())
	}
	in := models.NoteInput{
		ID:    fm.ID,
		Title: strings.TrimSpace(fm.Title),
		Body:  strings.TrimSuffix(body, "\n"),
		Tags:  fm.Tags,
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	return in, nil
}
