// Package main is the entry point for the slidetasks CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"slidetasks/internal/cli"
	"slidetasks/internal/commands"
	"slidetasks/internal/config"
	"slidetasks/internal/gateway"
	"slidetasks/internal/gateway/googletasks"
)

func main() {
	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	// Create gateway factory
	factory := func(ctx context.Context, cfg *config.Config) (gateway.Gateway, error) {
		return googletasks.New(ctx, cfg)
	}

	// Create dispatcher
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory)

	// Run and exit with code
	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}
