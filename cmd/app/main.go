package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/nota/internal"
	pkgconfig "github.com/starford/nota/pkg/config"
)

// options loads the config file and translates global flags into
// application options.
func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Debug("config file not found, using defaults", slog.String("path", configPath))
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}
	if owner := cmd.String("owner"); owner != "" {
		opts = append(opts, internal.WithOwner(owner))
	}
	return opts, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(_ context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(opts...)
}

func list(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.ListNotes(ctx, os.Stdout, cmd.String("query"), int(cmd.Int("limit")), opts...)
}

func remove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: nota rm <note-id>")
	}
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	deleted, err := internal.RemoveNote(ctx, os.Stdin, os.Stdout, id, cmd.Bool("yes"), opts...)
	if err != nil {
		return err
	}
	if deleted {
		fmt.Println("deleted", id)
	} else {
		fmt.Println("kept", id)
	}
	return nil
}

func token(_ context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	tok, err := internal.IssueToken(opts...)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func initPrompts(_ context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	written, err := internal.InitPrompts(cmd.Bool("force"), opts...)
	if err != nil {
		return err
	}
	for _, name := range written {
		fmt.Println("wrote", name)
	}
	if len(written) == 0 {
		fmt.Println("prompt templates already present (use --force to overwrite)")
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "nota",
		Usage:  "Note editing service with AI summarize and enhance",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "owner",
				Usage:   "Act as this owner in CLI and MCP commands (default: auth.owner)",
				Sources: cli.EnvVars("NOTA_OWNER"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve note tools over MCP stdio",
				Action: mcp,
			},
			{
				Name:   "ls",
				Usage:  "List notes, most recently updated first",
				Action: list,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Only notes whose title, body or tags contain this text"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum number of notes (0 = all)"},
				},
			},
			{
				Name:      "rm",
				Usage:     "Delete a note after confirmation",
				ArgsUsage: "<note-id>",
				Action:    remove,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation prompt"},
				},
			},
			{
				Name:   "token",
				Usage:  "Issue a bearer token for the owner (auth.mode=jwt)",
				Action: token,
			},
			{
				Name:  "prompts",
				Usage: "Manage prompt templates",
				Commands: []*cli.Command{
					{
						Name:   "init",
						Usage:  "Write the built-in templates to ai.prompts_dir",
						Action: initPrompts,
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "force", Usage: "Overwrite existing templates"},
						},
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
