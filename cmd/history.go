package cmd

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/formatter"
	"github.com/kyleking/dataverse-agent/internal/history"
)

type historyOptions struct {
	limit  int
	format formatter.OutputFormat
	id     string
	clear  bool
	force  bool
}

func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show or clear recorded asks",
		ArgsUsage: "[id]",
		Description: `List recent asks, newest first. Pass an ask id to show a single entry in full.
--clear removes every entry after confirmation.`,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: history.DefaultListLimit, Usage: "Maximum number of entries"},
			formatFlag(),
			&cli.BoolFlag{Name: "clear", Usage: "Delete all history"},
			&cli.BoolFlag{Name: "force", Usage: "Skip the --clear confirmation prompt"},
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

			if cfg.History.Disabled {
				fmt.Fprintln(output(cmd), "History is disabled.")
				return nil
			}

			store, err := openHistory(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			return runHistoryWithStore(ctx, output(cmd), os.Stdin, store, historyOptions{
				limit:  int(cmd.Int("limit")),
				format: format,
				id:     cmd.Args().First(),
				clear:  cmd.Bool("clear"),
				force:  cmd.Bool("force"),
			})
		},
	}
}

func runHistoryWithStore(ctx context.Context, w io.Writer, in io.Reader, store history.Store, opts historyOptions) error {
	if opts.clear {
		return clearHistory(ctx, w, in, store, opts.force)
	}

	f := formatter.NewFormatter()

	if opts.id != "" {
		entry, err := store.Get(ctx, opts.id)
		if stderrors.Is(err, history.ErrNotFound) {
			return errors.Newf(errors.ErrTypeValidation, "no ask with id %s", opts.id).
				WithSuggestion("Run 'dataverse-agent history' to list recent ids")
		}
		if err != nil {
			return err
		}

		format := opts.format
		if format == formatter.FormatShort {
			format = formatter.FormatLong
		}

		fmt.Fprintln(w, f.FormatHistory([]history.Entry{*entry}, format))

		return nil
	}

	if opts.limit <= 0 {
		return errors.Newf(errors.ErrTypeValidation, "limit must be positive, got %d", opts.limit)
	}

	entries, err := store.List(ctx, opts.limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, f.FormatHistory(entries, opts.format))

	return nil
}

func clearHistory(ctx context.Context, w io.Writer, in io.Reader, store history.Store, force bool) error {
	if !force {
		fmt.Fprintf(w, "This will delete every recorded ask. This action cannot be undone.\n")
		fmt.Fprintf(w, "Type 'yes' to confirm: ")

		response, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !stderrors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read input: %w", err)
		}

		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Fprintln(w, "Operation cancelled.")
			return nil
		}
	}

	n, err := store.Clear(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Deleted %d history entries.\n", n)

	return nil
}
