package store

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/auth"
	"github.com/starford/nota/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "nota-store-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(DriverSQLite, f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixedClock returns a clock that yields successive times starting at start.
func fixedClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		ts := times[i]
		if i < len(times)-1 {
			i++
		}
		return ts
	}
}

func ownerCtx(owner string) context.Context {
	return auth.WithOwner(context.Background(), owner)
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestUpsert_CreateAssignsIdentity(t *testing.T) {
	db := testDB(t)
	ctx := ownerCtx("alice")

	n, err := db.Upsert(ctx, models.NoteInput{Title: "T", Body: "B", Tags: []string{"x", "y"}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n.ID == "" {
		t.Fatal("expected assigned ID")
	}
	if n.OwnerID != "alice" {
		t.Errorf("owner = %q", n.OwnerID)
	}
	if !n.CreatedAt.Equal(n.UpdatedAt) {
		t.Errorf("created %v != updated %v on first write", n.CreatedAt, n.UpdatedAt)
	}

	other, err := db.Upsert(ctx, models.NoteInput{Title: "T", Body: "B"})
	if err != nil {
		t.Fatal(err)
	}
	if other.ID == n.ID {
		t.Error("identities must be unique")
	}
}

func TestUpsert_UpdateKeepsCreatedAndAdvancesUpdated(t *testing.T) {
	db := testDB(t)
	ctx := ownerCtx("alice")
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	// Second write reports the same wall time to exercise the strict increase.
	db.SetClock(fixedClock(base, base))

	n, err := db.Upsert(ctx, models.NoteInput{Title: "T", Body: "B"})
	if err != nil {
		t.Fatal(err)
	}
	up, err := db.Upsert(ctx, models.NoteInput{ID: n.ID, Title: "T2", Body: "B2", Tags: []string{"z"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if up.ID != n.ID {
		t.Errorf("id changed: %q -> %q", n.ID, up.ID)
	}
	if !up.CreatedAt.Equal(n.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", n.CreatedAt, up.CreatedAt)
	}
	if !up.UpdatedAt.After(n.UpdatedAt) {
		t.Errorf("updated_at did not advance: %v -> %v", n.UpdatedAt, up.UpdatedAt)
	}
}

func TestUpsert_RejectsEmptyFields(t *testing.T) {
	db := testDB(t)
	_, err := db.Upsert(ownerCtx("alice"), models.NoteInput{Title: "", Body: "x"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	notes, _ := db.List(ownerCtx("alice"))
	if len(notes) != 0 {
		t.Errorf("invalid note persisted: %+v", notes)
	}
}

func TestUpsert_RequiresOwner(t *testing.T) {
	db := testDB(t)
	_, err := db.Upsert(context.Background(), models.NoteInput{Title: "T", Body: "B"})
	if !errors.Is(err, apperr.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want not-authenticated", err)
	}
}

func TestUpsert_UpdateOtherOwnersNoteIsNotFound(t *testing.T) {
	db := testDB(t)
	n, _ := db.Upsert(ownerCtx("alice"), models.NoteInput{Title: "T", Body: "B"})

	_, err := db.Upsert(ownerCtx("mallory"), models.NoteInput{ID: n.ID, Title: "pwned", Body: "x"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not-found", err)
	}
	got, _ := db.Get(ownerCtx("alice"), n.ID)
	if got.Title != "T" {
		t.Errorf("title = %q, other owner's write leaked", got.Title)
	}
}

func TestGet_RoundTripPreservesTagOrder(t *testing.T) {
	db := testDB(t)
	ctx := ownerCtx("alice")
	tags := []string{"zeta", "alpha", "zeta"}
	n, _ := db.Upsert(ctx, models.NoteInput{Title: "T", Body: "B", Tags: tags})

	got, err := db.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "T" || got.Body != "B" || !slices.Equal(got.Tags, tags) {
		t.Errorf("Get = %+v", got)
	}
	if !got.CreatedAt.Equal(n.CreatedAt) || !got.UpdatedAt.Equal(n.UpdatedAt) {
		t.Errorf("timestamps differ after round trip")
	}
}

func TestUpsert_CleansTags(t *testing.T) {
	db := testDB(t)
	ctx := ownerCtx("alice")
	n, err := db.Upsert(ctx, models.NoteInput{Title: "T", Body: "B", Tags: []string{"", "  ", " work ", "home"}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	want := []string{"work", "home"}
	if !slices.Equal(n.Tags, want) {
		t.Errorf("returned tags = %q, want %q", n.Tags, want)
	}
	got, _ := db.Get(ctx, n.ID)
	if !slices.Equal(got.Tags, want) {
		t.Errorf("stored tags = %q, want %q", got.Tags, want)
	}
}

func TestUpsert_RejectsCommaTag(t *testing.T) {
	db := testDB(t)
	ctx := ownerCtx("alice")
	_, err := db.Upsert(ctx, models.NoteInput{Title: "T", Body: "B", Tags: []string{"x,y"}})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) || verr.Fields["tags"] == "" {
		t.Errorf("err = %v, want a tags field error", err)
	}
	if notes, _ := db.List(ctx); len(notes) != 0 {
		t.Errorf("note stored despite invalid tag: %+v", notes)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := testDB(t)
	n, _ := db.Upsert(ownerCtx("alice"), models.NoteInput{Title: "T", Body: "B"})

	if _, err := db.Get(ownerCtx("alice"), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing id err = %v", err)
	}
	if _, err := db.Get(ownerCtx("bob"), n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign note err = %v", err)
	}
}

func TestList_OrderedByUpdatedDesc(t *testing.T) {
	db := testDB(t)
	ctx := ownerCtx("alice")
	ten := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	eleven := ten.Add(time.Hour)
	db.SetClock(fixedClock(ten, eleven))

	a, _ := db.Upsert(ctx, models.NoteInput{Title: "A", Body: "a"})
	b, _ := db.Upsert(ctx, models.NoteInput{Title: "B", Body: "b"})
	_, _ = db.Upsert(ownerCtx("bob"), models.NoteInput{Title: "C", Body: "c"})

	notes, err := db.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("len = %d, want 2 (owner scoped)", len(notes))
	}
	if notes[0].ID != b.ID || notes[1].ID != a.ID {
		t.Errorf("order = [%s %s], want [B A]", notes[0].Title, notes[1].Title)
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	ctx := ownerCtx("alice")
	n, _ := db.Upsert(ctx, models.NoteInput{Title: "T", Body: "B"})

	if err := db.Delete(ownerCtx("bob"), n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign delete err = %v", err)
	}
	if err := db.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get(ctx, n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get after delete err = %v", err)
	}
	if err := db.Delete(ctx, n.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestRebind(t *testing.T) {
	db := &DB{driver: DriverPostgres}
	got := db.rebind(`SELECT * FROM notes WHERE id = ? AND owner_id = ?`)
	want := `SELECT * FROM notes WHERE id = $1 AND owner_id = $2`
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
	sqlite := &DB{driver: DriverSQLite}
	if sqlite.rebind("?") != "?" {
		t.Error("sqlite queries should not be rewritten")
	}
}
