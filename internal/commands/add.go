package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"slidetasks/internal/config"
	"slidetasks/internal/engine"
	"slidetasks/internal/exitcode"
	"slidetasks/internal/gateway"
	"slidetasks/internal/output"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	list string
	due  string
}

func (c *AddCmd) Name() string     { return "add" }
func (c *AddCmd) Synopsis() string { return "Add a task" }
func (c *AddCmd) Usage() string {
	return "slidetasks add [common flags] [--list <id>] [--due <YYYY-MM-DD>] <title...>"
}
func (c *AddCmd) NeedsAuth() bool { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.list, "list", "", "task list id (default: @default)")
	fs.StringVar(&c.due, "due", "", "due date, YYYY-MM-DD")
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, gw gateway.Gateway, args []string, out, errOut io.Writer) int {
	title := strings.TrimSpace(strings.Join(args, " "))
	if title == "" {
		fmt.Fprintln(errOut, "error: title required")
		fmt.Fprintf(errOut, "usage: %s\n", c.Usage())
		return exitcode.UserError
	}

	env, err := openEnv(cfg, gw, c.list, true)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	defer env.Close()

	view, err := env.eng.ApplyLocalIntent(engine.Intent{
		Kind:  engine.IntentAddTask,
		Title: title,
		Due:   c.due,
	})
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}

	// Push right away when the network cooperates; the task stays queued
	// locally otherwise and the next sync delivers it.
	report, _ := env.eng.RunSyncCycle(ctx)

	if !cfg.Quiet {
		for i, t := range view.Tasks {
			if t.Title == title && t.Pending {
				output.FormatTask(out, i+1, t)
				break
			}
		}
		if report.State == engine.StateOffline {
			fmt.Fprintln(errOut, "offline: queued for next sync")
		}
	}
	return exitcode.Success
}
