// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"flag"
	"io"

	"slidetasks/internal/config"
	"slidetasks/internal/gateway"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the command name.
	Name() string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsAuth returns true if the command requires a working gateway.
	// Commands like help, version, login, logout return false.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, paths, settings).
	// gw is nil unless NeedsAuth() returned true and the gateway could be
	// built; commands that can work offline check for nil.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, gw gateway.Gateway, args []string, out, errOut io.Writer) int
}
