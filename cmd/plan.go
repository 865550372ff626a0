package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/formatter"
	"github.com/kyleking/dataverse-agent/internal/server"
)

func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:        "plan",
		Usage:       "Show the query plan and OData query for a question without running it",
		ArgsUsage:   "<question>",
		Description: `Generate and validate a query plan, compile it to an OData query and print both. Nothing is executed against Dataverse beyond reading $metadata.`,
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

			rt, err := newRuntime(ctx, cfg, runtimeOptions{oracle: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			var progress *os.File
			if !cmd.Bool("quiet") {
				progress = os.Stderr
			}

			return runPlanWithPipeline(ctx, output(cmd), progress, rt.agent, cmd.Args().Slice(), format)
		},
	}
}

func runPlanWithPipeline(ctx context.Context, w io.Writer, progress *os.File, p server.Pipeline, args []string, format formatter.OutputFormat) error {
	question, err := questionFromArgs(args)
	if err != nil {
		return err
	}

	stop := startSpinner(progress, "Planning...")
	result, err := p.Plan(ctx, question)
	stop()

	if err != nil {
		return err
	}

	fmt.Fprintln(w, formatter.NewFormatter().FormatPlan(result, format))

	return nil
}
