package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/winrt-runtime/iid"
	"github.com/wippyai/winrt-runtime/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const activatePrefix = "new "

type modelState int

const (
	stateInput modelState = iota
	stateHistory
)

type entry struct {
	input  string
	result string
	err    error
}

type explorerModel struct {
	configPath string
	rt         *runtime.Runtime
	input      textinput.Model
	history    []entry
	selected   int
	state      modelState
}

type evalMsg struct {
	entry entry
	rt    *runtime.Runtime
}

func newExplorerModel(configPath string) *explorerModel {
	ti := textinput.New()
	ti.Placeholder = "IMap<String, Object>  or  new Windows.Foundation.Uri"
	ti.Prompt = "> "
	ti.Width = 60
	ti.Focus()
	return &explorerModel{configPath: configPath, input: ti}
}

func (m *explorerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *explorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "tab":
			if m.state == stateInput && len(m.history) > 0 {
				m.state = stateHistory
				m.input.Blur()
				m.selected = len(m.history) - 1
			} else if m.state == stateHistory {
				m.state = stateInput
				m.input.Focus()
			}
			return m, nil

		case "up", "k":
			if m.state == stateHistory && m.selected > 0 {
				m.selected--
				return m, nil
			}

		case "down", "j":
			if m.state == stateHistory && m.selected < len(m.history)-1 {
				m.selected++
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateHistory:
				m.input.SetValue(m.history[m.selected].input)
				m.state = stateInput
				m.input.Focus()
				return m, nil
			case stateInput:
				text := strings.TrimSpace(m.input.Value())
				if text == "" {
					return m, nil
				}
				m.input.SetValue("")
				return m, m.evaluate(text)
			}
		}

	case evalMsg:
		if msg.rt != nil {
			m.rt = msg.rt
		}
		m.history = append(m.history, msg.entry)
		return m, nil
	}

	if m.state == stateInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *explorerModel) evaluate(text string) tea.Cmd {
	rt, configPath := m.rt, m.configPath
	return func() tea.Msg {
		if class, ok := strings.CutPrefix(text, activatePrefix); ok {
			return activateEntry(rt, configPath, strings.TrimSpace(class), text)
		}
		t, err := iid.Parse(text)
		if err != nil {
			return evalMsg{entry: entry{input: text, err: err}}
		}
		id, err := iid.Of(t)
		if err != nil {
			return evalMsg{entry: entry{input: text, err: err}}
		}
		return evalMsg{entry: entry{
			input:  text,
			result: fmt.Sprintf("%s\n%s", id, t.Signature()),
		}}
	}
}

func activateEntry(rt *runtime.Runtime, configPath, class, text string) evalMsg {
	var opened *runtime.Runtime
	if rt == nil {
		var err error
		rt, err = openRuntime(configPath)
		if err != nil {
			return evalMsg{entry: entry{input: text, err: err}}
		}
		opened = rt
	}
	obj, err := rt.Activate(class)
	if err != nil {
		return evalMsg{entry: entry{input: text, err: err}, rt: opened}
	}
	defer rt.Release(obj)

	var b strings.Builder
	if err := describe(&b, obj); err != nil {
		return evalMsg{entry: entry{input: text, err: err}, rt: opened}
	}
	return evalMsg{entry: entry{input: text, result: strings.TrimRight(b.String(), "\n")}, rt: opened}
}

func (m *explorerModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("WinRT Explorer"))
	b.WriteString("\n\n")

	for i, e := range m.history {
		var line string
		if m.state == stateHistory && i == m.selected {
			line = selectedStyle.Render("> " + e.input)
		} else {
			line = "  " + funcStyle.Render(e.input)
		}
		b.WriteString(line)
		b.WriteString("\n")
		if e.err != nil {
			b.WriteString(errorStyle.Render(indent(fmt.Sprintf("Error: %v", e.err))))
		} else {
			b.WriteString(resultStyle.Render(indent(e.result)))
		}
		b.WriteString("\n")
	}
	if len(m.history) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	switch m.state {
	case stateInput:
		b.WriteString(helpStyle.Render("enter evaluate • " + typeStyle.Render(activatePrefix+"<class>") + " activate • tab history • esc quit"))
	case stateHistory:
		b.WriteString(helpStyle.Render("↑/↓ select • enter edit • tab back • esc quit"))
	}
	return b.String()
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}

func runExplorer(configPath string) error {
	m := newExplorerModel(configPath)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	if m.rt != nil {
		if cerr := m.rt.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
