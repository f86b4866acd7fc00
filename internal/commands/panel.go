package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/robfig/cron/v3"

	"slidetasks/internal/config"
	"slidetasks/internal/exitcode"
	"slidetasks/internal/gateway"
	"slidetasks/internal/tui"
)

func init() {
	Register(&PanelCmd{})
}

// PanelCmd implements the panel command, the default when no command is
// given: the interactive task panel with background sync.
type PanelCmd struct {
	list string
}

func (c *PanelCmd) Name() string     { return "panel" }
func (c *PanelCmd) Synopsis() string { return "Open the interactive task panel" }
func (c *PanelCmd) Usage() string    { return "slidetasks panel [common flags] [--list <id>]" }
func (c *PanelCmd) NeedsAuth() bool  { return true }

func (c *PanelCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.list, "list", "", "task list id (default: @default)")
}

func (c *PanelCmd) Run(ctx context.Context, cfg *config.Config, gw gateway.Gateway, args []string, out, errOut io.Writer) int {
	env, err := openEnv(cfg, gw, c.list, true)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	defer env.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Background sync loop: immediate first cycle, then one per poll
	// interval.
	go env.eng.Run(ctx)

	// The poll loop also checks rollover, but a panel left open overnight
	// should freeze the day at midnight, not up to a poll interval later.
	sched := cron.New()
	if _, err := sched.AddFunc("0 0 * * *", func() {
		env.eng.RolloverIfNewDay(time.Now())
	}); err != nil {
		fmt.Fprintf(errOut, "error: scheduling rollover: %v\n", err)
		return exitcode.BackendError
	}
	sched.Start()
	defer sched.Stop()

	if err := tui.Run(ctx, env.eng); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	return exitcode.Success
}
