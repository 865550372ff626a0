package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/dataverse-agent/internal/config"
	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/logging"
)

// Version is stamped at build time
var Version = "dev"

type configKey struct{}

// NewApp builds the command tree
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "dataverse-agent",
		Version: Version,
		Usage:   "Ask natural-language questions of a Microsoft Dataverse environment",
		Description: `dataverse-agent reads the environment's OData $metadata, summarizes the tables
under the configured entity prefix, asks a language model for a structured query plan,
compiles the plan into an OData query and answers from the returned records.

Configuration is read from ~/.config/dataverse-agent/config.json (or the file named by
DATAVERSE_AGENT_CONFIG), then DATAVERSE_AGENT_* environment variables, then flags.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "Log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "prefix", Usage: "Entity prefix of the queryable tables"},
			&cli.StringFlag{Name: "provider", Usage: "LLM provider (gemini, openai, anthropic, ollama)"},
			&cli.StringFlag{Name: "model", Usage: "LLM model name"},
			&cli.IntFlag{Name: "top", Usage: "Row cap when the plan gives none"},
			&cli.StringFlag{Name: "metadata-ttl", Usage: "Cache $metadata for this long (0 disables)"},
			&cli.StringFlag{Name: "history-path", Usage: "Path to the ask history database"},
			&cli.BoolFlag{Name: "no-history", Usage: "Do not record asks"},
		},
		Commands: []*cli.Command{
			ServeCommand(),
			AskCommand(),
			PlanCommand(),
			EntitySetsCommand(),
			SchemaCommand(),
			HistoryCommand(),
			CacheCommand(),
			ConfigCommand(),
		},
	}
}

// Execute runs the CLI with the process arguments
func Execute(ctx context.Context) error {
	app := NewApp()

	err := app.Run(ctx, os.Args)
	if err != nil {
		printError(os.Stderr, err)
	}

	return err
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	if structErr, ok := errors.As(err); ok {
		if len(structErr.Allowed) > 0 {
			fmt.Fprintf(w, "Allowed: %v\n", structErr.Allowed)
		}

		for _, suggestion := range structErr.Suggestions {
			fmt.Fprintf(w, "  - %s\n", suggestion)
		}
	}
}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func getConfigFromContext(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(configKey{}).(*config.Config)
	return cfg
}

// loadConfig returns the configuration for cmd: the one already on ctx, or
// the file, environment and flags merged, with the global logger initialized.
func loadConfig(ctx context.Context, cmd *cli.Command) (*config.Config, error) {
	if cfg := getConfigFromContext(ctx); cfg != nil {
		return cfg, nil
	}

	overrides := map[string]interface{}{}

	for _, name := range []string{"log-level", "prefix", "provider", "model", "metadata-ttl", "history-path", "address"} {
		if cmd.IsSet(name) {
			overrides[name] = cmd.String(name)
		}
	}

	if cmd.IsSet("no-history") {
		overrides["no-history"] = cmd.Bool("no-history")
	}

	if cmd.IsSet("top") {
		overrides["top"] = int(cmd.Int("top"))
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to load configuration").
			WithSuggestion("Check " + config.ConfigPath() + " and the DATAVERSE_AGENT_* environment variables")
	}

	cfg.ExpandAllPaths()

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to initialize logging")
	}

	return cfg, nil
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}

	return os.Stdout
}
