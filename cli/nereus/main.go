package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nereus-network/nereus/cli/nereus/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.New().Execute(ctx); err != nil {
		os.Exit(1)
	}
}
