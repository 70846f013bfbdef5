package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/xq/internal"
	"github.com/starford/xq/internal/apperr"
	pkgconfig "github.com/starford/xq/pkg/config"
)

var version = "dev"

// options loads the config file and translates global flags.
func options(cmd *cli.Command) ([]internal.Option, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithDBPath(cmd.String("db-path")),
		internal.WithVerbose(cmd.Bool("verbose")),
		internal.WithVersion(version),
	}, nil
}

func runQuery(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.Query(ctx, strings.Join(cmd.Args().Slice(), " "), cmd.Bool("json"), opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "xq",
		Usage:   "Incremental index and interactive search for Markdown notes with frontmatter",
		Version: version,
		Action:  runQuery,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "~/.config/xq/config.yaml",
				Value:       defaultConfigPath(),
				Sources:     cli.EnvVars("XQ_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "db-path",
				Usage:   "Index database file (overrides index.path)",
				Sources: cli.EnvVars("XQ_DB_PATH"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the selection as a JSON record",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "update",
				Usage:     "Index new and changed files matching a glob or directory",
				ArgsUsage: "[glob]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.Update(ctx, cmd.Args().First(), opts...)
				},
			},
			{
				Name:  "gc",
				Usage: "Remove files that no longer exist from the index",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.GC(ctx, opts...)
				},
			},
			{
				Name:      "query",
				Usage:     "Search interactively and print the selected path",
				ArgsUsage: "[text...]",
				Action:    runQuery,
			},
			{
				Name:      "watch",
				Usage:     "Re-index whenever matching files change",
				ArgsUsage: "[glob]",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.Watch(ctx, cmd.Args().First(), opts...)
				},
			},
			{
				Name:  "serve",
				Usage: "Serve the HTTP search API",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.Serve(ctx, opts...)
				},
			},
			{
				Name:  "mcp",
				Usage: "Serve search tools over MCP (stdio)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					opts, err := options(cmd)
					if err != nil {
						return err
					}
					return internal.MCP(ctx, opts...)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, apperr.ErrCancelled) {
			slog.Error("application error", slog.String("error", err.Error()))
		}
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "xq", "config.yaml")
}
