package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pfrederiksen/bimmerctl/internal/cli"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(version)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
