// Package tui renders the task panel. It is a thin shell over the engine:
// every keypress becomes an intent or an engine call, every engine event
// becomes a repaint. No task state lives here.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"slidetasks/internal/bus"
	"slidetasks/internal/engine"
)

type mode int

const (
	modeList mode = iota
	modeAdd
	modeEdit
)

// busMsg wraps an engine event delivered over the bus.
type busMsg struct {
	event bus.Event
}

// Styles
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	stateIdleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("40"))

	stateBusyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	stateBadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Strikethrough(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	conflictStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	undoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Model is the bubbletea model for the panel.
type Model struct {
	eng    *engine.Engine
	view   engine.View
	cursor int
	mode   mode
	input  textinput.Model
	editID string
	status string
	width  int
	height int
}

// NewModel creates the panel model over a running engine.
func NewModel(eng *engine.Engine) Model {
	input := textinput.New()
	input.CharLimit = 1024
	input.Prompt = "> "

	return Model{
		eng:   eng,
		view:  eng.Snapshot(),
		input: input,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case busMsg:
		return m.handleEvent(msg.event)

	case tea.KeyMsg:
		if m.mode != modeList {
			return m.updateInput(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

// handleEvent refreshes the view after an engine event. Conflict and undo
// events additionally surface a one-line status.
func (m Model) handleEvent(ev bus.Event) (tea.Model, tea.Cmd) {
	m.view = m.eng.Snapshot()
	m.clampCursor()

	switch p := ev.Payload.(type) {
	case bus.TaskConflictEvent:
		m.status = fmt.Sprintf("sync conflict: %s", p.Reason)
	case bus.UndoEvent:
		if ev.Topic == bus.TopicUndoReverted {
			m.status = "completion undone"
		}
	case bus.RolloverEvent:
		m.status = fmt.Sprintf("day %s closed: %d done", p.Date, p.DoneCount)
	case engine.MergeReport:
		if p.FailedLocal > 0 {
			m.status = fmt.Sprintf("sync: %d change(s) deferred", p.FailedLocal)
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "j", "down":
		m.cursor++
		m.clampCursor()

	case "k", "up":
		m.cursor--
		m.clampCursor()

	case " ", "enter":
		if t, ok := m.current(); ok {
			m.apply(engine.Intent{Kind: engine.IntentToggleComplete, TaskID: t.ID})
		}

	case "u":
		if t, ok := m.current(); ok && t.UndoEligible {
			if view, err := m.eng.Undo(t.ID); err == nil {
				m.view = view
				m.clampCursor()
			}
		}

	case "a":
		m.mode = modeAdd
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink

	case "e":
		if t, ok := m.current(); ok {
			m.mode = modeEdit
			m.editID = t.ID
			m.input.SetValue(t.Title)
			m.input.CursorEnd()
			m.input.Focus()
			return m, textinput.Blink
		}

	case "tab":
		if next, ok := m.nextList(); ok {
			m.apply(engine.Intent{Kind: engine.IntentSwitchList, ListID: next})
			return m, m.syncCmd()
		}

	case "r":
		m.status = "syncing..."
		return m, m.syncCmd()
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		m.input.Blur()
		return m, nil

	case "enter":
		title := strings.TrimSpace(m.input.Value())
		if title != "" {
			switch m.mode {
			case modeAdd:
				m.apply(engine.Intent{Kind: engine.IntentAddTask, Title: title})
			case modeEdit:
				m.apply(engine.Intent{Kind: engine.IntentEditTitle, TaskID: m.editID, Title: title})
			}
		}
		m.mode = modeList
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// apply forwards an intent and repaints from the returned view. Errors go to
// the status line; the engine already logged them.
func (m *Model) apply(intent engine.Intent) {
	view, err := m.eng.ApplyLocalIntent(intent)
	if err != nil {
		m.status = fmt.Sprintf("error: %v", err)
		return
	}
	m.view = view
	m.clampCursor()
}

// syncCmd kicks a sync cycle off-thread. The result comes back over the bus.
func (m Model) syncCmd() tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		eng.RunSyncCycle(context.Background())
		return nil
	}
}

func (m Model) current() (engine.TaskView, bool) {
	if m.cursor < 0 || m.cursor >= len(m.view.Tasks) {
		return engine.TaskView{}, false
	}
	return m.view.Tasks[m.cursor], true
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.view.Tasks) {
		m.cursor = len(m.view.Tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// nextList returns the list after the active one, wrapping around.
func (m Model) nextList() (string, bool) {
	if len(m.view.Lists) < 2 {
		return "", false
	}
	for i, l := range m.view.Lists {
		if l.ID == m.view.ActiveListID {
			return m.view.Lists[(i+1)%len(m.view.Lists)].ID, true
		}
	}
	return m.view.Lists[0].ID, true
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.header())
	b.WriteString("\n\n")

	if len(m.view.Tasks) == 0 {
		b.WriteString(helpStyle.Render("  no tasks, press a to add one"))
		b.WriteString("\n")
	}
	for i, t := range m.view.Tasks {
		b.WriteString(m.taskLine(i, t))
		b.WriteString("\n")
	}

	if m.mode != modeList {
		b.WriteString("\n")
		label := "add"
		if m.mode == modeEdit {
			label = "edit"
		}
		b.WriteString(fmt.Sprintf("%s %s", label, m.input.View()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("space toggle · a add · e edit · u undo · tab list · r sync · q quit"))
	return b.String()
}

func (m Model) header() string {
	listName := m.view.ActiveListID
	for _, l := range m.view.Lists {
		if l.ID == m.view.ActiveListID {
			listName = l.Title
			break
		}
	}

	title := headerStyle.Render(fmt.Sprintf("SlideTasks · %s", listName))
	today := fmt.Sprintf("today %d/%d", m.view.TodayDone, m.view.TodayTotal)

	var state string
	switch m.view.State {
	case engine.StateIdle:
		state = stateIdleStyle.Render("synced")
	case engine.StateSyncing:
		state = stateBusyStyle.Render("syncing")
	case engine.StateReauthRequired:
		state = stateBadStyle.Render("reauth required: run slidetasks login")
	default:
		state = stateBadStyle.Render("offline")
	}

	return fmt.Sprintf("%s  %s  %s", title, today, state)
}

func (m Model) taskLine(i int, t engine.TaskView) string {
	box := "[ ]"
	if t.Completed {
		box = "[x]"
	}

	indent := ""
	if t.ParentID != "" {
		indent = "  "
	}

	title := t.Title
	if strings.TrimSpace(title) == "" {
		title = "(untitled)"
	}

	line := fmt.Sprintf(" %s %s%s", box, indent, title)
	switch {
	case t.Conflict:
		line = conflictStyle.Render(line + " !")
	case t.UndoEligible:
		line = undoStyle.Render(line + " (u to undo)")
	case t.Pending:
		line = pendingStyle.Render(line + " *")
	case t.Completed:
		line = doneStyle.Render(line)
	}
	if t.Due != "" && !t.Completed {
		line += helpStyle.Render("  due " + t.Due)
	}

	if i == m.cursor && m.mode == modeList {
		line = selectedStyle.Render(line)
	}
	return line
}

// Run starts the panel and blocks until quit or ctx cancellation. Engine
// events arrive over the bus and are forwarded into the bubbletea loop.
func Run(ctx context.Context, eng *engine.Engine) error {
	p := tea.NewProgram(NewModel(eng), tea.WithAltScreen(), tea.WithContext(ctx))

	sub := eng.Bus().Subscribe("")
	defer eng.Bus().Unsubscribe(sub)
	go func() {
		for ev := range sub.Ch() {
			p.Send(busMsg{event: ev})
		}
	}()

	_, err := p.Run()
	return err
}
