package cmd

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/dataverse-agent/internal/server"
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the ask API and demo page over HTTP",
		Description: `Start an HTTP server exposing POST /ask, POST /plan, GET /entitysets, GET /history,
GET /healthz, GET /metrics and a demo page at /. Stops gracefully on interrupt.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "Listen address (default :8000)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, cfg, runtimeOptions{oracle: true, history: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			srv := server.New(rt.agent, rt.history, cfg.Server, cfg.Tracing.ServiceName, rt.logger)

			return srv.Run(ctx)
		},
	}
}
