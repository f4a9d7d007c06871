package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/auth"
	"github.com/starford/nota/internal/models"
	"github.com/starford/nota/internal/noteservice"
	"github.com/starford/nota/internal/session"
	"github.com/starford/nota/internal/sse"
	"github.com/starford/nota/internal/testutil"
)

const longBody = "This body is comfortably longer than fifty characters, so it can be summarized."

type env struct {
	ai     *testutil.FakeAI
	broker *sse.Broker
	router http.Handler
}

// testEnv sets up a temp SQLite DB, fake AI, broker, and router for testing.
// An empty authToken means disabled mode; otherwise token mode.
func testEnv(t *testing.T, authToken string) *env {
	t.Helper()
	a := &auth.Authenticator{Mode: auth.ModeDisabled, DefaultOwner: "local"}
	if authToken != "" {
		a = &auth.Authenticator{Mode: auth.ModeToken, Token: authToken, DefaultOwner: "local"}
	}
	return testEnvAuth(t, a)
}

func testEnvAuth(t *testing.T, a *auth.Authenticator) *env {
	t.Helper()

	db := testutil.TestDB(t)
	var tick atomic.Int64
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) })

	broker := sse.NewBroker(time.Millisecond)
	t.Cleanup(broker.Close)

	fake := &testutil.FakeAI{Summary: "A short summary."}
	svc := noteservice.NewService(db, noteservice.WithNotifier(broker))
	reg := session.NewRegistry(func() *session.Controller { return session.New(svc, fake) }, time.Hour)
	t.Cleanup(reg.CloseAll)

	router := NewRouter(Deps{Notes: svc, Sessions: reg, AI: fake, Auth: a, Events: broker})
	return &env{ai: fake, broker: broker, router: router}
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func createNote(t *testing.T, h http.Handler, title, body string, headers ...string) models.Note {
	t.Helper()
	w := do(t, h, http.MethodPost, "/notes", map[string]any{"title": title, "body": body, "tags": []string{"b", "a"}}, headers...)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[models.Note](t, w)
}

func TestCreateAndGetNote(t *testing.T) {
	e := testEnv(t, "")
	created := createNote(t, e.router, "Hello", "World")
	if created.ID == "" || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("created = %+v", created)
	}

	w := do(t, e.router, http.MethodGet, "/notes/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decode[models.Note](t, w)
	if got.Title != "Hello" || got.Body != "World" || strings.Join(got.Tags, ",") != "b,a" {
		t.Errorf("got %+v", got)
	}
	if got.OwnerID != "local" {
		t.Errorf("owner = %q", got.OwnerID)
	}
}

func TestCreateNote_Validation(t *testing.T) {
	e := testEnv(t, "")
	w := do(t, e.router, http.MethodPost, "/notes", map[string]string{"body": "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	resp := decode[errResponse](t, w)
	if resp.Kind != apperr.KindValidation || resp.Fields["title"] == "" {
		t.Errorf("resp = %+v", resp)
	}
	if _, ok := resp.Fields["body"]; ok {
		t.Errorf("body should be valid: %+v", resp.Fields)
	}
}

func TestCreateNote_InvalidTags(t *testing.T) {
	e := testEnv(t, "")
	for name, tags := range map[string][]string{
		"blank": {"ok", "  "},
		"empty": {""},
		"comma": {"x,y"},
	} {
		t.Run(name, func(t *testing.T) {
			w := do(t, e.router, http.MethodPost, "/notes", map[string]any{"title": "T", "body": "B", "tags": tags})
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
			}
			resp := decode[errResponse](t, w)
			if resp.Kind != apperr.KindValidation || resp.Fields["tags"] == "" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}

	w := do(t, e.router, http.MethodGet, "/notes", nil)
	if list := decode[NoteListResponse](t, w); list.Total != 0 {
		t.Errorf("invalid notes were stored: %+v", list.Notes)
	}
}

func TestCreateNote_InvalidJSON(t *testing.T) {
	e := testEnv(t, "")
	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader("{"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateNote(t *testing.T) {
	e := testEnv(t, "")
	n := createNote(t, e.router, "v1", "body")

	w := do(t, e.router, http.MethodPut, "/notes/"+n.ID, map[string]string{"title": "v2", "body": "body", "tags_raw": "x, y"})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	got := decode[models.Note](t, w)
	if got.Title != "v2" || !got.CreatedAt.Equal(n.CreatedAt) || !got.UpdatedAt.After(n.UpdatedAt) {
		t.Errorf("updated = %+v", got)
	}
	if strings.Join(got.Tags, ",") != "x,y" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	e := testEnv(t, "")
	w := do(t, e.router, http.MethodPut, "/notes/ghost", map[string]string{"title": "t", "body": "b"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	e := testEnv(t, "")
	n := createNote(t, e.router, "gone", "soon")

	if w := do(t, e.router, http.MethodDelete, "/notes/"+n.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(t, e.router, http.MethodGet, "/notes/"+n.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := do(t, e.router, http.MethodDelete, "/notes/"+n.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	e := testEnv(t, "")
	createNote(t, e.router, "alpha one", "x")
	createNote(t, e.router, "beta", "x")
	createNote(t, e.router, "alpha two", "x")

	w := do(t, e.router, http.MethodGet, "/notes", nil)
	resp := decode[NoteListResponse](t, w)
	if resp.Total != 3 || resp.Notes[0].Title != "alpha two" {
		t.Fatalf("list = %+v", resp)
	}

	w = do(t, e.router, http.MethodGet, "/notes?q=ALPHA&limit=1", nil)
	resp = decode[NoteListResponse](t, w)
	if resp.Total != 1 || resp.Notes[0].Title != "alpha two" {
		t.Errorf("filtered = %+v", resp)
	}
}

func TestSearchEndpoint(t *testing.T) {
	e := testEnv(t, "")
	createNote(t, e.router, "Groceries", "milk and eggs")
	createNote(t, e.router, "Work", "standup notes")

	w := do(t, e.router, http.MethodGet, "/search?q=milk", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	resp := decode[SearchResponse](t, w)
	if len(resp.Results) != 1 || resp.Results[0].Title != "Groceries" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	e := testEnv(t, "")
	if w := do(t, e.router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_Token(t *testing.T) {
	e := testEnv(t, "secret123")

	createNote(t, e.router, "auth", "test", "Authorization", "Bearer secret123")
	if w := do(t, e.router, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if w := do(t, e.router, http.MethodGet, "/notes", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "")
	if w := do(t, e.router, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestJWTOwnersAreIsolated(t *testing.T) {
	a := &auth.Authenticator{Mode: auth.ModeJWT, Secret: []byte("test-secret"), Issuer: "nota"}
	e := testEnvAuth(t, a)
	alice, err := a.IssueToken("alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	bob, err := a.IssueToken("bob", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	n := createNote(t, e.router, "private", "alice only", "Authorization", "Bearer "+alice)
	if n.OwnerID != "alice" {
		t.Errorf("owner = %q", n.OwnerID)
	}
	if w := do(t, e.router, http.MethodGet, "/notes/"+n.ID, nil, "Authorization", "Bearer "+bob); w.Code != http.StatusNotFound {
		t.Errorf("bob get = %d, want 404", w.Code)
	}
	w := do(t, e.router, http.MethodGet, "/notes", nil, "Authorization", "Bearer "+bob)
	if resp := decode[NoteListResponse](t, w); resp.Total != 0 {
		t.Errorf("bob sees %d notes", resp.Total)
	}

	w = do(t, e.router, http.MethodPost, "/sessions", nil, "Authorization", "Bearer "+alice)
	s := decode[sessionBody](t, w)
	if w := do(t, e.router, http.MethodGet, "/sessions/"+s.ID, nil, "Authorization", "Bearer "+bob); w.Code != http.StatusNotFound {
		t.Errorf("bob session get = %d, want 404", w.Code)
	}
}

// sessionBody mirrors the parts of SessionResponse the tests inspect.
type sessionBody struct {
	ID    string `json:"id"`
	State struct {
		NoteID             string   `json:"note_id"`
		Title              string   `json:"title"`
		Body               string   `json:"body"`
		Tags               []string `json:"tags"`
		Dirty              bool     `json:"dirty"`
		View               string   `json:"view"`
		Summary            string   `json:"summary"`
		PendingEnhancement *string  `json:"pending_enhancement"`
		Enhance            struct {
			Status string `json:"status"`
		} `json:"enhance"`
	} `json:"state"`
}

func newSession(t *testing.T, h http.Handler, body any) sessionBody {
	t.Helper()
	w := do(t, h, http.MethodPost, "/sessions", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[sessionBody](t, w)
}

func editDraft(t *testing.T, h http.Handler, id string, patch map[string]string) sessionBody {
	t.Helper()
	w := do(t, h, http.MethodPatch, "/sessions/"+id+"/draft", patch)
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[sessionBody](t, w)
}

func TestSession_EditAndSave(t *testing.T) {
	e := testEnv(t, "")
	s := newSession(t, e.router, nil)
	if s.State.View != "editor" || s.State.Dirty {
		t.Fatalf("new session = %+v", s.State)
	}

	st := editDraft(t, e.router, s.ID, map[string]string{"title": "T", "body": "B", "tags_raw": "a, b,, a"})
	if !st.State.Dirty || strings.Join(st.State.Tags, ",") != "a,b,a" {
		t.Fatalf("after edit = %+v", st.State)
	}

	w := do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/save", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	var saved struct {
		Note  models.Note `json:"note"`
		State struct {
			Dirty bool   `json:"dirty"`
			View  string `json:"view"`
		} `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &saved); err != nil {
		t.Fatal(err)
	}
	if saved.Note.ID == "" || saved.State.Dirty || saved.State.View != "editor" {
		t.Errorf("saved = %+v", saved)
	}

	if w := do(t, e.router, http.MethodGet, "/notes/"+saved.Note.ID, nil); w.Code != http.StatusOK {
		t.Errorf("saved note not retrievable: %d", w.Code)
	}
}

func TestSession_OpenExistingNote(t *testing.T) {
	e := testEnv(t, "")
	n := createNote(t, e.router, "Existing", "content")

	s := newSession(t, e.router, map[string]string{"note_id": n.ID})
	if s.State.NoteID != n.ID || s.State.View != "preview" || s.State.Title != "Existing" {
		t.Errorf("state = %+v", s.State)
	}

	w := do(t, e.router, http.MethodPost, "/sessions", map[string]string{"note_id": "missing"})
	if w.Code != http.StatusNotFound {
		t.Errorf("open missing = %d, want 404", w.Code)
	}
}

func TestSession_SaveValidation(t *testing.T) {
	e := testEnv(t, "")
	s := newSession(t, e.router, nil)

	w := do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/save", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("save empty = %d, want 400", w.Code)
	}
	resp := decode[errResponse](t, w)
	if resp.Fields["title"] == "" || resp.Fields["body"] == "" {
		t.Errorf("fields = %+v", resp.Fields)
	}
}

func TestSession_SelectView(t *testing.T) {
	e := testEnv(t, "")
	s := newSession(t, e.router, nil)

	if w := do(t, e.router, http.MethodPut, "/sessions/"+s.ID+"/view", map[string]string{"view": "summary"}); w.Code != http.StatusBadRequest {
		t.Errorf("summary without value = %d, want 400", w.Code)
	}
	w := do(t, e.router, http.MethodPut, "/sessions/"+s.ID+"/view", map[string]string{"view": "preview"})
	if got := decode[sessionBody](t, w); got.State.View != "preview" {
		t.Errorf("view = %q", got.State.View)
	}
}

func TestSession_Summarize(t *testing.T) {
	e := testEnv(t, "")
	s := newSession(t, e.router, nil)
	editDraft(t, e.router, s.ID, map[string]string{"body": "too short"})

	w := do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/summarize", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("short summarize = %d, want 400", w.Code)
	}
	if n, _ := e.ai.Calls(); n != 0 {
		t.Errorf("gateway called %d times for a short body", n)
	}

	editDraft(t, e.router, s.ID, map[string]string{"body": longBody})
	w = do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/summarize", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summarize = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[struct {
		Summary string `json:"summary"`
		State   struct {
			View    string `json:"view"`
			Summary string `json:"summary"`
		} `json:"state"`
	}](t, w)
	if resp.Summary != "A short summary." || resp.State.View != "summary" || resp.State.Summary != resp.Summary {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSession_SummarizeGatewayFailure(t *testing.T) {
	e := testEnv(t, "")
	e.ai.Err = fmt.Errorf("provider down: %w", apperr.ErrUnavailable)
	s := newSession(t, e.router, nil)
	editDraft(t, e.router, s.ID, map[string]string{"body": longBody})

	w := do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/summarize", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if resp := decode[errResponse](t, w); resp.Kind != apperr.KindUnavailable {
		t.Errorf("kind = %q", resp.Kind)
	}
}

func TestSession_EnhanceJSONThenApply(t *testing.T) {
	e := testEnv(t, "")
	e.ai.Fragments = []string{"Better ", "text."}
	s := newSession(t, e.router, nil)
	editDraft(t, e.router, s.ID, map[string]string{"body": "bad text"})

	w := do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/enhance", map[string]string{"instructions": "fix it"})
	if w.Code != http.StatusOK {
		t.Fatalf("enhance = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[struct {
		Enhanced string `json:"enhanced"`
		State    struct {
			Body string `json:"body"`
		} `json:"state"`
	}](t, w)
	if resp.Enhanced != "Better text." || resp.State.Body != "bad text" {
		t.Fatalf("resp = %+v", resp)
	}
	if got := e.ai.LastInstructions(); got != "fix it" {
		t.Errorf("instructions = %q", got)
	}

	w = do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/enhance/apply", nil)
	st := decode[sessionBody](t, w)
	if st.State.Body != "Better text." || st.State.PendingEnhancement != nil {
		t.Errorf("after apply = %+v", st.State)
	}

	if w := do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/enhance/apply", nil); w.Code != http.StatusBadRequest {
		t.Errorf("apply twice = %d, want 400", w.Code)
	}
}

func TestSession_EnhanceStream(t *testing.T) {
	e := testEnv(t, "")
	e.ai.Fragments = []string{"Hello", ", ", "world"}
	s := newSession(t, e.router, nil)
	editDraft(t, e.router, s.ID, map[string]string{"body": "hi world"})

	w := do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/enhance", nil, "Accept", "text/event-stream")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	want := "event: fragment\ndata: {\"text\":\"Hello\"}\n\n" +
		"event: fragment\ndata: {\"text\":\", \"}\n\n" +
		"event: fragment\ndata: {\"text\":\"world\"}\n\n" +
		"event: done\ndata: {\"enhanced\":\"Hello, world\"}\n\n"
	if got := w.Body.String(); got != want {
		t.Errorf("stream =\n%q\nwant\n%q", got, want)
	}

	w = do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/enhance/discard", nil)
	if st := decode[sessionBody](t, w); st.State.Body != "hi world" || st.State.PendingEnhancement != nil {
		t.Errorf("after discard = %+v", st.State)
	}
}

func TestSession_EnhanceStreamErrors(t *testing.T) {
	e := testEnv(t, "")
	s := newSession(t, e.router, nil)

	// Nothing streamed yet: a plain JSON error.
	w := do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/enhance", nil, "Accept", "text/event-stream")
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty body enhance = %d, want 400", w.Code)
	}

	// Interrupted mid-stream: an error event after the fragments.
	e.ai.Fragments = []string{"partial"}
	e.ai.StreamErr = fmt.Errorf("stream interrupted: %w", apperr.ErrUnavailable)
	editDraft(t, e.router, s.ID, map[string]string{"body": "text"})
	w = do(t, e.router, http.MethodPost, "/sessions/"+s.ID+"/enhance", nil, "Accept", "text/event-stream")
	body := w.Body.String()
	if !strings.Contains(body, "event: fragment") || !strings.Contains(body, "event: error") {
		t.Fatalf("stream = %q", body)
	}
	if !strings.Contains(body, `"kind":"gateway-unavailable"`) {
		t.Errorf("missing kind in %q", body)
	}
	w = do(t, e.router, http.MethodGet, "/sessions/"+s.ID, nil)
	if st := decode[sessionBody](t, w); st.State.PendingEnhancement != nil || st.State.Enhance.Status != "failed" {
		t.Errorf("state = %+v", st.State)
	}
}

func TestSession_CancelWhenIdle(t *testing.T) {
	e := testEnv(t, "")
	s := newSession(t, e.router, nil)
	w := do(t, e.router, http.MethodDelete, "/sessions/"+s.ID+"/enhance", nil)
	if resp := decode[CancelResponse](t, w); resp.Canceled {
		t.Error("nothing was running")
	}
}

func TestSession_Close(t *testing.T) {
	e := testEnv(t, "")
	s := newSession(t, e.router, nil)
	if w := do(t, e.router, http.MethodDelete, "/sessions/"+s.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("close = %d", w.Code)
	}
	if w := do(t, e.router, http.MethodGet, "/sessions/"+s.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get closed = %d, want 404", w.Code)
	}
}

func TestTransform_Summarize(t *testing.T) {
	e := testEnv(t, "")
	w := do(t, e.router, http.MethodPost, "/ai/summarize", map[string]string{"content": longBody})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp := decode[SummaryResponse](t, w); resp.Summary != "A short summary." || resp.State != nil {
		t.Errorf("resp = %+v", resp)
	}

	if w := do(t, e.router, http.MethodPost, "/ai/summarize", map[string]string{"content": "  "}); w.Code != http.StatusBadRequest {
		t.Errorf("blank content = %d, want 400", w.Code)
	}
}

func TestTransform_Enhance(t *testing.T) {
	e := testEnv(t, "")
	e.ai.Fragments = []string{"a", "b"}

	w := do(t, e.router, http.MethodPost, "/ai/enhance", map[string]string{"content": "x"})
	if resp := decode[EnhanceResponse](t, w); resp.Enhanced != "ab" {
		t.Errorf("json resp = %+v", resp)
	}

	w = do(t, e.router, http.MethodPost, "/ai/enhance", map[string]string{"content": "x"}, "Accept", "text/event-stream")
	if !strings.HasSuffix(w.Body.String(), "event: done\ndata: {\"enhanced\":\"ab\"}\n\n") {
		t.Errorf("stream = %q", w.Body.String())
	}
	for _, s := range e.ai.Streams() {
		if !s.Closed() {
			t.Error("stream left open")
		}
	}
}

func TestTransform_GatewayErrors(t *testing.T) {
	e := testEnv(t, "")
	e.ai.Err = fmt.Errorf("boom: %w", apperr.ErrUnavailable)
	if w := do(t, e.router, http.MethodPost, "/ai/enhance", map[string]string{"content": "x"}); w.Code != http.StatusBadGateway {
		t.Errorf("enhance = %d, want 502", w.Code)
	}
	e.ai.Err = errors.New("unexpected")
	w := do(t, e.router, http.MethodPost, "/ai/summarize", map[string]string{"content": "x"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("summarize = %d, want 500", w.Code)
	}
	if resp := decode[errResponse](t, w); resp.Error != "internal error" {
		t.Errorf("unknown error leaked: %q", resp.Error)
	}
}

func TestNoteChangesArePublished(t *testing.T) {
	e := testEnv(t, "")
	ch := e.broker.Subscribe("local")
	defer e.broker.Unsubscribe(ch)

	n := createNote(t, e.router, "live", "update")
	want := fmt.Sprintf("event: note.created\ndata: {\"id\":%q}\n\n", n.ID)
	select {
	case msg := <-ch:
		if string(msg) != want {
			t.Errorf("event = %q, want %q", msg, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindValidation:       http.StatusBadRequest,
		apperr.KindNotAuthenticated: http.StatusUnauthorized,
		apperr.KindNotFound:         http.StatusNotFound,
		apperr.KindConflict:         http.StatusConflict,
		apperr.KindCanceled:         http.StatusConflict,
		apperr.KindUnavailable:      http.StatusBadGateway,
		apperr.KindUnknown:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnv(t, "secret")
	if w := do(t, e.router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnv(t, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
