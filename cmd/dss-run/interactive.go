package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/dss-runtime/opendss"
	"github.com/wippyai/dss-runtime/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type consoleModel struct {
	dss   *opendss.DSS
	input textinput.Model
	view  viewport.Model
	lines []string
	state consoleState
	width int
}

type consoleState int

const (
	stateInput consoleState = iota
	stateExecuting
)

func newConsoleModel(dss *opendss.DSS) *consoleModel {
	ti := textinput.New()
	ti.Prompt = ">> "
	ti.Placeholder = "new circuit.demo"
	ti.Focus()

	m := &consoleModel{
		dss:   dss,
		input: ti,
		view:  viewport.New(80, 20),
		state: stateInput,
	}
	m.push(helpStyle.Render("Engine commands run as typed. :voltages and :summary print reports, :quit exits."))
	return m
}

type execDoneMsg struct {
	err    error
	cmd    string
	output string
}

func (m *consoleModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *consoleModel) exec(cmd string) tea.Cmd {
	return func() tea.Msg {
		switch cmd {
		case ":voltages":
			out, err := voltageReport(m.dss)
			return execDoneMsg{cmd: cmd, output: out, err: err}
		case ":summary":
			out, err := summaryReport(m.dss)
			return execDoneMsg{cmd: cmd, output: out, err: err}
		}
		if err := m.dss.Text.Command(cmd); err != nil {
			return execDoneMsg{cmd: cmd, err: err}
		}
		out, err := m.dss.Text.Result()
		return execDoneMsg{cmd: cmd, output: out, err: err}
	}
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "enter":
			if m.state != stateInput {
				return m, nil
			}
			cmd := strings.TrimSpace(m.input.Value())
			if cmd == "" {
				return m, nil
			}
			if cmd == ":quit" || cmd == ":q" {
				return m, tea.Quit
			}
			m.push(promptStyle.Render(">> ") + cmd)
			m.input.Reset()
			m.state = stateExecuting
			return m, m.exec(cmd)
		}

	case execDoneMsg:
		m.state = stateInput
		switch {
		case msg.err != nil:
			m.push(errorStyle.Render(strings.TrimRight(msg.err.Error(), "\n")))
		case msg.output != "":
			m.push(resultStyle.Render(strings.TrimRight(msg.output, "\n")))
		}
		return m, nil
	}

	var cmds []tea.Cmd
	if m.state == stateInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *consoleModel) push(line string) {
	m.lines = append(m.lines, line)
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

func (m *consoleModel) resize(w, h int) {
	m.width = w
	m.input.Width = w - 4
	m.view.Width = w
	m.view.Height = h - 4
	if m.view.Height < 1 {
		m.view.Height = 1
	}
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

func (m *consoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("dss console"))
	b.WriteString("\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")

	if m.state == stateExecuting {
		b.WriteString(helpStyle.Render("executing..."))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter run • :voltages :summary reports • :quit exit"))

	return b.String()
}

func runInteractive(opts runtime.Options) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}

	rt, err := runtime.Open(opts)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer rt.Close()

	m := newConsoleModel(rt.Prime().DSS)
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		m.resize(w, h)
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
