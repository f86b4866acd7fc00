package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"slidetasks/internal/config"
	"slidetasks/internal/engine"
	"slidetasks/internal/exitcode"
	"slidetasks/internal/gateway"
	"slidetasks/internal/output"
)

func init() {
	Register(&DoneCmd{})
}

// DoneCmd implements the done command: toggle a task's completion.
type DoneCmd struct {
	list string
}

func (c *DoneCmd) Name() string     { return "done" }
func (c *DoneCmd) Synopsis() string { return "Toggle a task's completion" }
func (c *DoneCmd) Usage() string    { return "slidetasks done [common flags] [--list <id>] <ref>" }
func (c *DoneCmd) NeedsAuth() bool  { return true }

func (c *DoneCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.list, "list", "", "task list id (default: @default)")
}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, gw gateway.Gateway, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "error: exactly one task ref required")
		fmt.Fprintf(errOut, "usage: %s\n", c.Usage())
		return exitcode.UserError
	}
	ref := args[0]

	env, err := openEnv(cfg, gw, c.list, true)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	defer env.Close()

	// Refresh the view first so the numeric ref matches what a prior list
	// or panel run showed. Offline the cached view is used as-is.
	env.eng.RunSyncCycle(ctx)

	view := env.eng.Snapshot()
	task, num, err := resolveRef(view, ref)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	view, err = env.eng.ApplyLocalIntent(engine.Intent{
		Kind:   engine.IntentToggleComplete,
		TaskID: task.ID,
	})
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}

	report, _ := env.eng.RunSyncCycle(ctx)

	if !cfg.Quiet {
		for i, t := range view.Tasks {
			if t.ID == task.ID {
				num = i + 1
				task = t
				break
			}
		}
		output.FormatTask(out, num, task)
		if report.State == engine.StateOffline {
			fmt.Fprintln(errOut, "offline: queued for next sync")
		}
	}
	return exitcode.Success
}

// resolveRef resolves a task reference against the current view: a 1-based
// position number, an exact task id, or an unambiguous title prefix.
func resolveRef(view engine.View, ref string) (engine.TaskView, int, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(view.Tasks) {
			return engine.TaskView{}, 0, fmt.Errorf("no task #%d (have %d)", n, len(view.Tasks))
		}
		return view.Tasks[n-1], n, nil
	}

	for i, t := range view.Tasks {
		if t.ID == ref {
			return t, i + 1, nil
		}
	}

	matchIdx := -1
	for i, t := range view.Tasks {
		if strings.HasPrefix(strings.ToLower(t.Title), strings.ToLower(ref)) {
			if matchIdx >= 0 {
				return engine.TaskView{}, 0, fmt.Errorf("ambiguous ref %q", ref)
			}
			matchIdx = i
		}
	}
	if matchIdx < 0 {
		return engine.TaskView{}, 0, fmt.Errorf("no task matching %q", ref)
	}
	return view.Tasks[matchIdx], matchIdx + 1, nil
}
