package internal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/starford/nota/internal/auth"
	"github.com/starford/nota/internal/collection"
	"github.com/starford/nota/internal/draft"
	"github.com/starford/nota/internal/mcpserver"
	"github.com/starford/nota/internal/models"
	"github.com/starford/nota/internal/prompts"
	"github.com/starford/nota/internal/storage"
)

// ServeMCP serves the MCP tools over stdio until the client disconnects.
// Logs go to stderr because stdout carries the protocol.
func ServeMCP(opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.setupLogger()

	c, err := app.open(logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := mcpserver.New(c.notes, c.ai, app.owner,
		mcpserver.WithSessionOptions(app.sessionOptions(logger)...),
		mcpserver.WithLogger(logger))
	logger.Info("MCP server ready", slog.String("owner", app.owner))
	return srv.ServeStdio()
}

// ListNotes prints the owner's notes, most recently updated first, narrowed
// by query. A limit of zero prints all matches.
func ListNotes(ctx context.Context, w io.Writer, query string, limit int, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(io.Discard)}, opts...))
	if err != nil {
		return err
	}
	logger := app.setupLogger()

	c, err := app.open(logger, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx = auth.WithOwner(ctx, app.owner)
	view := collection.New(c.notes, collection.WithLogger(logger))
	if err := view.Refresh(ctx); err != nil {
		return err
	}
	view.SetQuery(query)
	view.SetLimit(limit)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTAGS\tUPDATED")
	for _, n := range view.Visible() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, n.Title, draft.FormatTags(n.Tags),
			n.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

// RemoveNote deletes a note after asking on out and reading the answer from
// in. With yes set the prompt is skipped. It reports whether the note was
// deleted.
func RemoveNote(ctx context.Context, in io.Reader, out io.Writer, id string, yes bool, opts ...Option) (bool, error) {
	app, err := newApplication(append([]Option{WithLogOutput(io.Discard)}, opts...))
	if err != nil {
		return false, err
	}
	logger := app.setupLogger()

	c, err := app.open(logger, nil)
	if err != nil {
		return false, err
	}
	defer c.Close()

	ctx = auth.WithOwner(ctx, app.owner)
	view := collection.New(c.notes, collection.WithLogger(logger))
	if err := view.Refresh(ctx); err != nil {
		return false, err
	}

	reader := bufio.NewReader(in)
	return view.ConfirmAndDelete(ctx, id, func(n models.Note) bool {
		if yes {
			return true
		}
		fmt.Fprintf(out, "Delete %q? [y/N] ", n.Title)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	})
}

// IssueToken signs a bearer token for the owner. It requires jwt auth mode.
func IssueToken(opts ...Option) (string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return "", err
	}
	if app.config.Auth.Mode != auth.ModeJWT {
		return "", fmt.Errorf("auth.mode is %q, tokens can only be issued in %q mode", app.config.Auth.Mode, auth.ModeJWT)
	}
	return app.config.Auth.Authenticator().IssueToken(app.owner, app.config.Auth.JWTTTL)
}

// InitPrompts writes the built-in prompt templates into ai.prompts_dir and
// returns the file names written.
func InitPrompts(overwrite bool, opts ...Option) ([]string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	dir := app.config.AI.PromptsDir
	if dir == "" {
		return nil, fmt.Errorf("ai.prompts_dir is not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create prompts dir: %w", err)
	}
	fs, err := storage.NewFS(dir)
	if err != nil {
		return nil, err
	}
	return prompts.WriteDefaults(fs, overwrite)
}
