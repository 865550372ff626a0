package cmd

import (
	"context"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/dataverse-agent/internal/schema"
	"github.com/kyleking/dataverse-agent/internal/server"
)

func EntitySetsCommand() *cli.Command {
	return &cli.Command{
		Name:        "entitysets",
		Usage:       "List how table names resolve to entity set collections",
		Description: `Print every lookup key of the entity-set index next to the collection it resolves to, sorted by key.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "Download the metadata document even when a cached copy exists",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
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

			return runEntitySetsWithPipeline(ctx, output(cmd), rt.agent)
		},
	}
}

func runEntitySetsWithPipeline(ctx context.Context, w io.Writer, p server.Pipeline) error {
	s, err := p.Schema(ctx)
	if err != nil {
		return err
	}

	return schema.WriteListing(w, s.Index)
}
