package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/denote-reconcile/internal"
	pkgconfig "github.com/starford/denote-reconcile/pkg/config"
)

var version = "dev"

// loadConfig reads the config file when present and applies the optional
// positional corpus directory.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadIfExists(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if dir := cmd.Args().First(); dir != "" {
		cfg.Corpus.Path = dir
	}
	return cfg, nil
}

// commonOptions sends logs to stderr so stdout carries only reports and
// protocol traffic.
func commonOptions(cmd *cli.Command, cfg *internal.Config) []internal.Option {
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr),
		internal.WithOutput(os.Stdout),
		internal.WithDryRun(cmd.Bool("dry-run")),
		internal.WithJSON(cmd.Bool("json")),
	}
}

func reconcileAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if _, err := internal.Reconcile(ctx, commonOptions(cmd, cfg)...); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	return nil
}

func watchAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if d := cmd.Duration("debounce"); d > 0 {
		cfg.Watch.Debounce = d
	}
	return internal.Watch(ctx, commonOptions(cmd, cfg)...)
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithDryRun(cmd.Bool("dry-run")),
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcpAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, commonOptions(cmd, cfg)...)
}

func historyAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := append(commonOptions(cmd, cfg), internal.WithLimit(int(cmd.Int("limit"))))
	return internal.History(ctx, opts...)
}

func dryRunFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "dry-run",
		Usage: "Compute the report without writing anything",
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Print JSON instead of text",
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "denote-reconcile",
		Usage:   "Reconcile identifiers, schema fields and project references in a Denote note corpus",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (defaults apply when it does not exist)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "reconcile",
				Usage:     "Run one reconciliation pass and print the report",
				ArgsUsage: "[dir]",
				Flags:     []cli.Flag{dryRunFlag(), jsonFlag()},
				Action:    reconcileAction,
			},
			{
				Name:      "watch",
				Usage:     "Run a pass, then re-run it whenever notes change",
				ArgsUsage: "[dir]",
				Flags: []cli.Flag{
					dryRunFlag(),
					jsonFlag(),
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "Quiet period before a pass is triggered",
					},
				},
				Action: watchAction,
			},
			{
				Name:      "serve",
				Usage:     "Serve the HTTP API and watch the corpus",
				ArgsUsage: "[dir]",
				Flags:     []cli.Flag{dryRunFlag()},
				Action:    serveAction,
			},
			{
				Name:      "mcp",
				Usage:     "Serve MCP tools over stdio",
				ArgsUsage: "[dir]",
				Action:    mcpAction,
			},
			{
				Name:  "history",
				Usage: "List recorded passes",
				Flags: []cli.Flag{
					jsonFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of passes to show",
						Value: 20,
					},
				},
				Action: historyAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
