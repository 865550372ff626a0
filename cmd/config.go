package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/kyleking/dataverse-agent/internal/config"
	"github.com/kyleking/dataverse-agent/internal/errors"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:        "config",
		Usage:       "Display the active configuration",
		Description: `Show the current active configuration including all settings from file, environment variables, and command-line flags. Secrets are redacted.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "yaml", Usage: "Output format: yaml or json"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}

			return runConfigWithConfig(output(cmd), cfg, config.ConfigPath(), cmd.String("format"))
		},
	}
}

func runConfigWithConfig(w io.Writer, cfg *config.Config, path, format string) error {
	if cfg == nil {
		return errors.NewConfigError("failed to load configuration", "")
	}

	redacted := cfg.Redacted()

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(redacted)
	case "yaml", "yml", "":
	default:
		return errors.Newf(errors.ErrTypeValidation, "invalid format %q (must be yaml or json)", format)
	}

	data, err := yaml.Marshal(redacted)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	status := "not found, using defaults"
	if _, statErr := os.Stat(path); statErr == nil {
		status = "loaded"
	}

	fmt.Fprintf(w, "# Config file: %s (%s)\n", path, status)
	fmt.Fprintf(w, "# Dataverse settings complete: %t\n", cfg.ValidateDataverse() == nil)
	_, err = w.Write(data)

	return err
}
