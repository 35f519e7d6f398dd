package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"scanner-service/cmd/scanctl/commands"
)

var version = "v1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := commands.ScanctlCmd(version)
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
