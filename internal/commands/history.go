package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"slidetasks/internal/config"
	"slidetasks/internal/exitcode"
	"slidetasks/internal/gateway"
	"slidetasks/internal/output"
)

func init() {
	Register(&HistoryCmd{})
}

// HistoryCmd implements the history command: per-day completion counts
// from the daily log, newest first.
type HistoryCmd struct {
	list string
	days int
}

func (c *HistoryCmd) Name() string     { return "history" }
func (c *HistoryCmd) Synopsis() string { return "Show daily completion history" }
func (c *HistoryCmd) Usage() string {
	return "slidetasks history [common flags] [--list <id>] [--days <n>]"
}
func (c *HistoryCmd) NeedsAuth() bool { return true }

func (c *HistoryCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.list, "list", "", "task list id (default: @default)")
	fs.IntVar(&c.days, "days", 7, "how many days back")
}

func (c *HistoryCmd) Run(ctx context.Context, cfg *config.Config, gw gateway.Gateway, args []string, out, errOut io.Writer) int {
	if c.days < 1 {
		fmt.Fprintln(errOut, "error: --days must be at least 1")
		return exitcode.UserError
	}

	env, err := openEnv(cfg, gw, c.list, true)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	defer env.Close()

	// A cycle first so the state reflects connectivity; History falls back
	// to the local log when the gateway is unreachable.
	env.eng.RunSyncCycle(ctx)

	now := time.Now()
	logs, err := env.eng.History(ctx, now.AddDate(0, 0, -(c.days-1)), now)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}

	if len(logs) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no history yet")
		}
		return exitcode.Success
	}

	output.FormatHistory(out, logs)
	return exitcode.Success
}
