package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/auth"
	"github.com/starford/nota/internal/models"
)

const noteColumns = `id, owner_id, title, body, tags, created_at, updated_at`

// List returns every note of the context owner, most recently updated first.
func (db *DB) List(ctx context.Context) ([]models.Note, error) {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT `+noteColumns+`
		FROM notes
		WHERE owner_id = ?
		ORDER BY updated_at DESC, id
	`), owner)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// Get returns one note of the context owner. Notes owned by someone else are
// reported as not found.
func (db *DB) Get(ctx context.Context, id string) (*models.Note, error) {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return nil, err
	}
	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT `+noteColumns+` FROM notes WHERE id = ? AND owner_id = ?
	`), id, owner)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: get %s: %w", id, apperr.ErrNotFound)
		}
		return nil, unavailable("get", err)
	}
	return n, nil
}

// Upsert creates a note when in.ID is empty and otherwise updates the
// owner's note with that ID. UpdatedAt strictly increases on every write.
func (db *DB) Upsert(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return nil, err
	}
	if in.Title == "" || in.Body == "" {
		return nil, invalidInput(in)
	}
	tags, err := cleanTags(in.Tags)
	if err != nil {
		return nil, err
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("store: encode tags: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := db.now().UTC()
	n := &models.Note{
		ID:      in.ID,
		Title:   in.Title,
		Body:    in.Body,
		Tags:    append([]string(nil), tags...),
		OwnerID: owner,
	}

	if in.ID == "" {
		n.ID = uuid.NewString()
		n.CreatedAt, n.UpdatedAt = now, now
		_, err = tx.ExecContext(ctx, db.rebind(`
			INSERT INTO notes (`+noteColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), n.ID, owner, n.Title, n.Body, string(tagsJSON), now.UnixNano(), now.UnixNano())
		if err != nil {
			return nil, unavailable("insert", err)
		}
	} else {
		var created, updated int64
		err = tx.QueryRowContext(ctx, db.rebind(`
			SELECT created_at, updated_at FROM notes WHERE id = ? AND owner_id = ?
		`), in.ID, owner).Scan(&created, &updated)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("store: update %s: %w", in.ID, apperr.ErrNotFound)
			}
			return nil, unavailable("update", err)
		}
		stamp := now.UnixNano()
		if stamp <= updated {
			stamp = updated + 1
		}
		_, err = tx.ExecContext(ctx, db.rebind(`
			UPDATE notes SET title = ?, body = ?, tags = ?, updated_at = ?
			WHERE id = ? AND owner_id = ?
		`), n.Title, n.Body, string(tagsJSON), stamp, in.ID, owner)
		if err != nil {
			return nil, unavailable("update", err)
		}
		n.CreatedAt = time.Unix(0, created).UTC()
		n.UpdatedAt = time.Unix(0, stamp).UTC()
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit", err)
	}
	return n, nil
}

// Delete removes one note of the context owner.
func (db *DB) Delete(ctx context.Context, id string) error {
	owner, err := auth.RequireOwner(ctx)
	if err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx, db.rebind(`DELETE FROM notes WHERE id = ? AND owner_id = ?`), id, owner)
	if err != nil {
		return unavailable("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete", err)
	}
	if n == 0 {
		return fmt.Errorf("store: delete %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.Note, error) {
	var (
		n                models.Note
		tagsJSON         string
		created, updated int64
	)
	if err := s.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Body, &tagsJSON, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
		return nil, fmt.Errorf("store: decode tags of %s: %w", n.ID, err)
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	n.CreatedAt = time.Unix(0, created).UTC()
	n.UpdatedAt = time.Unix(0, updated).UTC()
	return &n, nil
}

func scanNotes(rows *sql.Rows) ([]models.Note, error) {
	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("scan", err)
	}
	return out, nil
}

func invalidInput(in models.NoteInput) error {
	verr := &apperr.ValidationError{Fields: map[string]string{}}
	if in.Title == "" {
		verr.Fields["title"] = "title is required"
	}
	if in.Body == "" {
		verr.Fields["body"] = "body is required"
	}
	return fmt.Errorf("store: upsert: %w", verr)
}

// cleanTags trims tags and drops empty ones. A tag containing a comma is
// rejected: drafts edit tags as comma-separated text and would split it.
func cleanTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.Contains(t, ",") {
			return nil, fmt.Errorf("store: upsert: %w",
				apperr.Invalid("tags", fmt.Sprintf("tag %q must not contain a comma", t)))
		}
		out = append(out, t)
	}
	return out, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %w", op, apperr.ErrUnavailable, err)
}
