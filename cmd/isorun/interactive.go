package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/isolates/engine"
	"github.com/wippyai/isolates/isolate"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	eng      engine.Engine
	iso      *isolate.Isolate
	isoCtx   *isolate.Context
	script   *isolate.Script
	filename string
	memoryMB uint64
	result   string
	stats    string
	input    textinput.Model
	runs     int
	state    modelState
}

type modelState int

const (
	stateMain modelState = iota
	stateInputGlobal
	stateShowResult
)

func newInteractiveModel(filename string, memoryMB uint64) *interactiveModel {
	return &interactiveModel{
		filename: filename,
		memoryMB: memoryMB,
		state:    stateMain,
	}
}

type loadedMsg struct {
	err    error
	eng    engine.Engine
	iso    *isolate.Isolate
	isoCtx *isolate.Context
	script *isolate.Script
}

type runResultMsg struct {
	err    error
	result string
}

type statsMsg struct {
	err   error
	stats string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	ctx := context.Background()

	code, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}

	eng := engine.NewWazeroEngine()

	iso, err := isolate.New(ctx, eng, isolate.Options{MemoryLimitMB: m.memoryMB})
	if err != nil {
		eng.Close(ctx)
		return loadedMsg{err: err}
	}

	script, err := iso.CompileScript(ctx, code, isolate.ScriptOptions{Filename: m.filename})
	if err != nil {
		iso.Dispose()
		eng.Close(ctx)
		return loadedMsg{err: err}
	}

	isoCtx, err := iso.CreateContext(ctx)
	if err != nil {
		iso.Dispose()
		eng.Close(ctx)
		return loadedMsg{err: err}
	}

	return loadedMsg{eng: eng, iso: iso, isoCtx: isoCtx, script: script}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateInputGlobal {
			switch msg.String() {
			case "enter":
				return m, m.readGlobal
			case "esc":
				m.state = stateMain
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			if m.iso != nil {
				m.iso.Dispose()
				<-m.iso.Terminated()
			}
			if m.eng != nil {
				m.eng.Close(context.Background())
			}
			return m, tea.Quit

		case "r":
			if m.script != nil {
				return m, m.runScript
			}

		case "c":
			if m.iso != nil {
				return m, m.freshContext
			}

		case "s":
			if m.iso != nil {
				return m, m.readStats
			}

		case "g":
			if m.isoCtx != nil {
				ti := textinput.New()
				ti.Prompt = "global: "
				ti.Width = 40
				ti.Focus()
				m.input = ti
				m.state = stateInputGlobal
			}

		case "enter", "esc":
			if m.state == stateShowResult {
				m.state = stateMain
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.eng = msg.eng
		m.iso = msg.iso
		m.isoCtx = msg.isoCtx
		m.script = msg.script

	case runResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult

	case statsMsg:
		m.stats = msg.stats
		m.err = msg.err
	}

	return m, nil
}

func (m *interactiveModel) runScript() tea.Msg {
	v, err := m.script.Run(context.Background(), m.isoCtx)
	if err != nil {
		return runResultMsg{err: err}
	}
	m.runs++
	return runResultMsg{result: fmt.Sprintf("%v", v.Interface())}
}

func (m *interactiveModel) freshContext() tea.Msg {
	c, err := m.iso.CreateContext(context.Background())
	if err != nil {
		return runResultMsg{err: err}
	}
	m.isoCtx.Release()
	m.isoCtx = c
	return runResultMsg{result: "new context " + c.ID()}
}

func (m *interactiveModel) readGlobal() tea.Msg {
	name := m.input.Value()
	m.state = stateMain
	v, err := m.isoCtx.Global(context.Background(), name)
	if err != nil {
		return runResultMsg{err: err}
	}
	return runResultMsg{result: fmt.Sprintf("%s = %v", name, v.Interface())}
}

func (m *interactiveModel) readStats() tea.Msg {
	st, err := m.iso.HeapStatistics(context.Background())
	if err != nil {
		return statsMsg{err: err}
	}
	return statsMsg{stats: fmt.Sprintf(
		"total %d  used %d  code %d  limit %d  scopes %d  programs %d",
		st.TotalHeapSize, st.UsedHeapSize, st.CodeSize, st.HeapSizeLimit,
		st.ScopeCount, st.ProgramCount)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.iso == nil {
		return "Loading script..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Isolate Runner"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("isolate: "))
	b.WriteString(m.iso.ID())
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("context: "))
	b.WriteString(m.isoCtx.ID())
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("runs:    "))
	b.WriteString(fmt.Sprintf("%d", m.runs))
	b.WriteString("\n")
	if m.stats != "" {
		b.WriteString(labelStyle.Render("heap:    "))
		b.WriteString(m.stats)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch m.state {
	case stateInputGlobal:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter read • esc back"))

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))

	default:
		b.WriteString(helpStyle.Render("r run • c new context • g read global • s stats • q quit"))
	}

	return b.String()
}

func runInteractive(filename string, memoryMB uint64) error {
	p := tea.NewProgram(newInteractiveModel(filename, memoryMB), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
