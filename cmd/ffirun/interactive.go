package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	ffibridge "github.com/wippyai/ffi-bridge"
	"github.com/wippyai/ffi-bridge/bridge"
	"github.com/wippyai/ffi-bridge/internal/script"
	"github.com/wippyai/ffi-bridge/types"
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

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type funcInfo struct {
	fn     *bridge.Function
	sig    string
	leaves []types.Kind
}

type interactiveModel struct {
	err        error
	lib        ffibridge.Library
	reg        *bridge.Registry
	session    *bridge.Session
	scriptFile string
	libPath    string
	result     string
	funcs      []funcInfo
	inputs     []textinput.Model
	selected   int
	focusIdx   int
	state      modelState
}

type loadedMsg struct {
	err   error
	lib   ffibridge.Library
	reg   *bridge.Registry
	funcs []funcInfo
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(scriptFile, libPath string) *interactiveModel {
	return &interactiveModel{
		scriptFile: scriptFile,
		libPath:    libPath,
		state:      stateSelectFunc,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadScript
}

func (m *interactiveModel) loadScript() tea.Msg {
	ctx := context.Background()

	s, lib, err := load(ctx, m.scriptFile, m.libPath)
	if err != nil {
		return loadedMsg{err: err}
	}

	reg := bridge.New(lib)
	if _, err := s.Register(reg); err != nil {
		lib.Close(ctx)
		return loadedMsg{err: err}
	}

	var funcs []funcInfo
	for _, name := range reg.Functions() {
		fn, _ := reg.Function(name)
		fi := funcInfo{fn: fn, sig: fn.Signature().String()}
		for _, p := range fn.Signature().Params {
			for _, leaf := range p.Leaves {
				fi.leaves = append(fi.leaves, leaf.Kind)
			}
		}
		funcs = append(funcs, fi)
	}

	return loadedMsg{lib: lib, reg: reg, funcs: funcs}
}

func (m *interactiveModel) close() {
	if m.lib != nil {
		m.lib.Close(context.Background())
		m.lib = nil
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateInputArgs || msg.String() == "ctrl+c" {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					return m, nil
				}
				if err := m.prepareInputs(); err != nil {
					m.err = err
					m.state = stateShowResult
					return m, nil
				}
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.lib = msg.lib
		m.reg = msg.reg
		m.funcs = msg.funcs

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

// prepareInputs selects the highlighted function as the call target and
// creates one input per argument leaf.
func (m *interactiveModel) prepareInputs() error {
	f := m.funcs[m.selected]
	s, err := m.reg.SetTarget(f.fn.Name)
	if err != nil {
		return err
	}
	m.session = s

	m.inputs = make([]textinput.Model, len(f.leaves))
	for i, k := range f.leaves {
		ti := textinput.New()
		ti.Placeholder = k.String()
		ti.Prompt = fmt.Sprintf("leaf %d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
	return nil
}

func (m *interactiveModel) callFunction() tea.Msg {
	if m.session == nil {
		return callResultMsg{err: fmt.Errorf("no call target")}
	}

	args := make([]any, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = input.Value()
	}

	res, err := script.Invoke(context.Background(), m.session, args)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: res.String()}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.reg == nil {
		return "Loading library..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("FFI Runner"))
	b.WriteString(" ")
	b.WriteString(m.scriptFile)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The script registers no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f.fn.Name + f.sig))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", formatFunc(f)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.leaves[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.fn.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f funcInfo) string {
	return funcStyle.Render(f.fn.Name) + typeStyle.Render(f.sig)
}

func runInteractive(scriptFile, libPath string) error {
	p := tea.NewProgram(newInteractiveModel(scriptFile, libPath), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
