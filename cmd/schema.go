package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/formatter"
	"github.com/kyleking/dataverse-agent/internal/server"
)

func SchemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Show the schema summary handed to the language model",
		Description: `Print the table descriptions and the allow-list of collections a plan may target.
The short format prints only the allow-list.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   string(formatter.FormatLong),
				Usage:   "Output format: short, long or json",
			},
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Download the metadata document even when a cached copy exists",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := formatter.ParseFormat(cmd.String("format"))
			if err != nil {
				return errors.Wrap(err, errors.ErrTypeValidation, "invalid --format")
			}

			cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, cfg, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			if cmd.Bool("refresh") {
				if err := rt.refreshMetadata(ctx); err != nil {
					return err
				}
			}

			return runSchemaWithPipeline(ctx, output(cmd), rt.agent, format)
		},
	}
}

func runSchemaWithPipeline(ctx context.Context, w io.Writer, p server.Pipeline, format formatter.OutputFormat) error {
	s, err := p.Schema(ctx)
	if err != nil {
		return err
	}

	summary := s.Summary

	if format == formatter.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(summary)
	}

	if format == formatter.FormatLong {
		fmt.Fprint(w, summary.Text)
		if !strings.HasSuffix(summary.Text, "\n") {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Tables described: %d", summary.Described)
	if summary.Omitted > 0 {
		fmt.Fprintf(w, " (%d omitted from the text)", summary.Omitted)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Allowed tables (%d):\n", len(summary.AllowedTables))
	for _, table := range summary.AllowedTables {
		fmt.Fprintf(w, "  %s\n", table)
	}

	return nil
}
