// Package tui provides an interactive terminal front end for running
// audit and dedup passes without remembering flag sets.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fwlens/internal/pipeline"
	"fwlens/internal/tui/styles"
)

// Task is the operation the user picked from the menu.
type Task int

const (
	TaskDedup Task = iota
	TaskAudit
)

// state is the model's current screen.
type state int

const (
	stateMenu state = iota
	stateForm
	stateRunning
	stateDone
)

// field is one line of the input form.
type field struct {
	label    string
	value    string
	optional bool
}

// runFinishedMsg carries the outcome of a pipeline run.
type runFinishedMsg struct {
	result *pipeline.Result
	err    error
}

// Model is the main TUI model
type Model struct {
	pipe *pipeline.Pipeline

	state  state
	task   Task
	cursor int

	fields []field
	active int

	result *pipeline.Result
	err    error

	width  int
	height int

	quitting bool
}

// New creates a new TUI model
func New(pipe *pipeline.Pipeline) *Model {
	return &Model{
		pipe:  pipe,
		state: stateMenu,
	}
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles all messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case runFinishedMsg:
		m.state = stateDone
		m.result = msg.result
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		switch m.state {
		case stateMenu:
			return m.updateMenu(msg)
		case stateForm:
			return m.updateForm(msg)
		case stateDone:
			return m.updateDone(msg)
		}
	}

	return m, nil
}

func (m *Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < 1 {
			m.cursor++
		}
	case "enter":
		m.task = Task(m.cursor)
		m.startForm()
	}
	return m, nil
}

// startForm builds the input form for the picked task.
func (m *Model) startForm() {
	switch m.task {
	case TaskDedup:
		m.fields = []field{
			{label: "Policy export CSV"},
			{label: "Vendor", value: "paloalto"},
		}
	case TaskAudit:
		m.fields = []field{
			{label: "Policy export CSV"},
			{label: "Vendor", value: "paloalto"},
			{label: "Usage CSV (optional)", optional: true},
			{label: "Request info CSV (optional)", optional: true},
		}
	}
	m.active = 0
	m.state = stateForm
}

func (m *Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.state = stateMenu
		return m, nil
	case "enter", "tab":
		if msg.String() == "enter" && m.active == len(m.fields)-1 {
			if !m.formComplete() {
				return m, nil
			}
			m.state = stateRunning
			return m, m.runCmd()
		}
		m.active = (m.active + 1) % len(m.fields)
		return m, nil
	case "shift+tab":
		m.active = (m.active - 1 + len(m.fields)) % len(m.fields)
		return m, nil
	case "backspace":
		f := &m.fields[m.active]
		if len(f.value) > 0 {
			f.value = f.value[:len(f.value)-1]
		}
		return m, nil
	}

	if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
		m.fields[m.active].value += string(msg.Runes)
	}
	return m, nil
}

// formComplete reports whether all required fields are filled.
func (m *Model) formComplete() bool {
	for _, f := range m.fields {
		if !f.optional && strings.TrimSpace(f.value) == "" {
			return false
		}
	}
	return true
}

// runCmd executes the picked task off the UI loop.
func (m *Model) runCmd() tea.Cmd {
	task := m.task
	values := make([]string, len(m.fields))
	for i, f := range m.fields {
		values[i] = strings.TrimSpace(f.value)
	}

	return func() tea.Msg {
		ctx := context.Background()
		switch task {
		case TaskDedup:
			result, err := m.pipe.RunDedup(ctx, values[0], values[1])
			return runFinishedMsg{result: result, err: err}
		default:
			result, err := m.pipe.RunAudit(ctx, pipeline.AuditOptions{
				PolicyPath:      values[0],
				Vendor:          values[1],
				UsagePath:       values[2],
				RequestInfoPath: values[3],
			})
			return runFinishedMsg{result: result, err: err}
		}
	}
}

func (m *Model) updateDone(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "enter", "esc":
		m.state = stateMenu
		m.result = nil
		m.err = nil
	}
	return m, nil
}

// View renders the current view
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.Title.Render("fwlens"))
	b.WriteString("\n")
	b.WriteString(styles.Subtitle.Render("firewall rule audit toolkit"))
	b.WriteString("\n\n")

	switch m.state {
	case stateMenu:
		b.WriteString(m.viewMenu())
	case stateForm:
		b.WriteString(m.viewForm())
	case stateRunning:
		b.WriteString(styles.Muted.Render("running..."))
	case stateDone:
		b.WriteString(m.viewDone())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) viewMenu() string {
	items := []string{"Find duplicate rules", "Run full audit"}

	var views []string
	for i, item := range items {
		label := fmt.Sprintf(" %d %s ", i+1, item)
		if i == m.cursor {
			views = append(views, styles.MenuItemActive.Render(label))
		} else {
			views = append(views, styles.MenuItem.Render(label))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, views...)
}

func (m *Model) viewForm() string {
	var b strings.Builder
	for i, f := range m.fields {
		marker := "  "
		if i == m.active {
			marker = "> "
		}
		b.WriteString(marker)
		b.WriteString(styles.PromptLabel.Render(f.label + ": "))
		b.WriteString(styles.PromptValue.Render(f.value))
		if i == m.active {
			b.WriteString(styles.PromptValue.Render("_"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) viewDone() string {
	if m.err != nil {
		return styles.StatusError.Render("run failed") + "\n" +
			styles.Muted.Render(m.err.Error())
	}

	lines := []string{
		styles.StatusOK.Render("run complete"),
		fmt.Sprintf("run id:  %s", m.result.RunID),
		fmt.Sprintf("output:  %s", m.result.OutputPath),
		fmt.Sprintf("records: %d", m.result.Records),
	}
	if m.result.ArchiveKey != "" {
		lines = append(lines, fmt.Sprintf("archive: %s", m.result.ArchiveKey))
	}
	return styles.Box.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderFooter() string {
	var help string
	switch m.state {
	case stateMenu:
		help = " [↑↓/jk] Navigate  [Enter] Select  [q] Quit "
	case stateForm:
		help = " [Tab] Next field  [Enter] Run  [Esc] Back "
	case stateDone:
		help = " [Enter] Menu  [q] Quit "
	default:
		help = " [Ctrl+C] Abort "
	}
	return styles.Help.Render(help)
}

// Run starts the TUI application
func Run(pipe *pipeline.Pipeline) error {
	m := New(pipe)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
