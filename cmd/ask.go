package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/formatter"
	"github.com/kyleking/dataverse-agent/internal/server"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   string(formatter.FormatShort),
		Usage:   "Output format: short, long or json",
	}
}

func AskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a question from Dataverse records",
		ArgsUsage: "<question>",
		Description: `Plan an OData query for the question, run it and answer from the returned records.

Examples:
  dataverse-agent ask "Which tickets belong to ACME Corporation?"
  dataverse-agent ask --format long "How many open tickets are there?"`,
		Flags: []cli.Flag{
			formatFlag(),
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not show progress"},
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

			rt, err := newRuntime(ctx, cfg, runtimeOptions{oracle: true, history: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			var progress *os.File
			if !cmd.Bool("quiet") {
				progress = os.Stderr
			}

			return runAskWithPipeline(ctx, output(cmd), progress, rt.agent, cmd.Args().Slice(), format)
		},
	}
}

func runAskWithPipeline(ctx context.Context, w io.Writer, progress *os.File, p server.Pipeline, args []string, format formatter.OutputFormat) error {
	question, err := questionFromArgs(args)
	if err != nil {
		return err
	}

	stop := startSpinner(progress, "Asking Dataverse...")
	result, err := p.Ask(ctx, question)
	stop()

	f := formatter.NewFormatter()

	if err != nil {
		// Execution or answering failed after the query was compiled
		if result != nil && result.OData != "" {
			fmt.Fprintln(w, f.FormatPlan(result, format))
		}

		return err
	}

	fmt.Fprintln(w, f.FormatResult(result, format))

	return nil
}

func questionFromArgs(args []string) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return "", errors.New(errors.ErrTypeValidation, "a question is required").
			WithSuggestion(`dataverse-agent ask "Which tickets belong to ACME Corporation?"`)
	}

	return question, nil
}

func startSpinner(f *os.File, suffix string) func() {
	if f == nil {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriterFile(f))
	s.Suffix = " " + suffix
	s.Start()

	return s.Stop
}
