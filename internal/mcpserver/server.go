// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Nota tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nota/internal/apperr"
	"github.com/starford/nota/internal/auth"
	"github.com/starford/nota/internal/models"
	"github.com/starford/nota/internal/noteservice"
	"github.com/starford/nota/internal/session"
)

// Server wraps the MCP server with Nota tools. Every tool acts as one owner.
type Server struct {
	mcp      *server.MCPServer
	notes    *noteservice.Service
	ai       session.Transformer
	owner    string
	sessOpts []session.Option
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSessionOptions sets the options of the sessions summarize_note and
// enhance_note run in.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Server) { s.sessOpts = opts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a new MCP server with all Nota tools registered.
func New(notes *noteservice.Service, transformer session.Transformer, owner string, opts ...Option) *Server {
	s := &Server{notes: notes, ai: transformer, owner: owner, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"Nota",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, most recently updated first."),
		mcp.WithString("query", mcp.Description("Optional case-insensitive filter on title, body and tags")),
		mcp.WithNumber("limit", mcp.Description("Optional maximum number of notes")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note as a Markdown document with YAML frontmatter."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Create or update a note. Content MUST follow the note format "+
			"returned by get_note_contract or the "+NoteFormatURI+" resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note document with frontmatter title and tags")),
		mcp.WithString("id", mcp.Description("Id of the note to update; omit to create")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes by title, body and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("summarize_note",
		mcp.WithDescription("Summarize a stored note's body with the configured language model."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.summarizeNote)

	s.mcp.AddTool(mcp.NewTool("enhance_note",
		mcp.WithDescription("Rewrite a stored note's body with the configured language model. "+
			"The rewrite is returned; with apply=true it also replaces the body and saves the note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("instructions", mcp.Description("Optional rewrite instructions")),
		mcp.WithBoolean("apply", mcp.Description("Save the rewrite into the note")),
	), s.enhanceNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the Nota note format. "+
			"Call this before saving notes to ensure correct structure."),
	), s.getNoteContract)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(NoteFormatURI, "Note Format",
			mcp.WithResourceDescription("Markdown note format used by read_note and save_note."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) ownerCtx(ctx context.Context) context.Context {
	return auth.WithOwner(ctx, s.owner)
}

// toolError reports err to the model with its kind, so it can tell a bad
// argument from an outage.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUnknown || kind == apperr.KindUnavailable {
		s.logger.Warn("mcp: tool failed", slog.String("tool", tool), slog.String("error", err.Error()))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", kind, err.Error()))
}

type noteSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updated_at"`
}

func summaries(notes []models.Note) []noteSummary {
	out := make([]noteSummary, len(notes))
	for i, n := range notes {
		out[i] = noteSummary{ID: n.ID, Title: n.Title, Tags: n.Tags, UpdatedAt: n.UpdatedAt}
	}
	return out
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.notes.Query(s.ownerCtx(ctx), req.GetString("query", ""), req.GetInt("limit", 0))
	if err != nil {
		return s.toolError("list_notes", err), nil
	}
	return jsonResult(summaries(notes)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.notes.Get(s.ownerCtx(ctx), id)
	if err != nil {
		return s.toolError("read_note", err), nil
	}
	doc, err := RenderNote(*n)
	if err != nil {
		return s.toolError("read_note", err), nil
	}
	return mcp.NewToolResultText(doc), nil
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in, err := ParseNote(content)
	if err != nil {
		return s.toolError("save_note", err), nil
	}
	if id := req.GetString("id", ""); id != "" {
		in.ID = id
	}

	n, err := s.notes.Upsert(s.ownerCtx(ctx), in)
	if err != nil {
		return s.toolError("save_note", err), nil
	}
	verb := "updated"
	if in.ID == "" {
		verb = "created"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s", verb, n.ID)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.notes.Delete(s.ownerCtx(ctx), id); err != nil {
		return s.toolError("delete_note", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.notes.Search(s.ownerCtx(ctx), query, req.GetInt("limit", 20))
	if err != nil {
		return s.toolError("search_notes", err), nil
	}
	return jsonResult(summaries(results)), nil
}

// openSession loads note id into a fresh editing session.
func (s *Server) openSession(ctx context.Context, id string) (*session.Controller, error) {
	ctrl := session.New(s.notes, s.ai, s.sessOpts...)
	if err := ctrl.Load(ctx, id); err != nil {
		return nil, err
	}
	return ctrl, nil
}

func (s *Server) summarizeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = s.ownerCtx(ctx)
	ctrl, err := s.openSession(ctx, id)
	if err != nil {
		return s.toolError("summarize_note", err), nil
	}
	defer ctrl.Close()

	summary, err := ctrl.Summarize(ctx)
	if err != nil {
		return s.toolError("summarize_note", err), nil
	}
	return mcp.NewToolResultText(summary), nil
}

func (s *Server) enhanceNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = s.ownerCtx(ctx)
	ctrl, err := s.openSession(ctx, id)
	if err != nil {
		return s.toolError("enhance_note", err), nil
	}
	defer ctrl.Close()

	text, err := ctrl.Enhance(ctx, req.GetString("instructions", ""))
	if err != nil {
		return s.toolError("enhance_note", err), nil
	}
	if !req.GetBool("apply", false) {
		return mcp.NewToolResultText(text), nil
	}

	if err := ctrl.ApplyEnhancement(); err != nil {
		return s.toolError("enhance_note", err), nil
	}
	if _, err := ctrl.Save(ctx); err != nil {
		return s.toolError("enhance_note", err), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      NoteFormatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
