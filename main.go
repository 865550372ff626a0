package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kyleking/dataverse-agent/cmd"
	"github.com/kyleking/dataverse-agent/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cmd.Execute(ctx)

	stop()
	_ = logging.GetLogger().Close()

	if err != nil {
		os.Exit(1)
	}
}
