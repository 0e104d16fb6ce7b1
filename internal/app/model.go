package app

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"guanin/internal/pipeline"
	"guanin/internal/report"
	"guanin/internal/state"
	"guanin/internal/types"
)

const (
	minViewportWidth  = 40
	minContentHeight  = 8
	logTailLines      = 200
	defaultPaneWidth  = 100
	defaultPaneHeight = 30
)

type uiMode int

const (
	uiModeNormal uiMode = iota
	uiModeEdit
	uiModeReport
)

type Options struct {
	LogPath string
}

type Model struct {
	ctrl   *pipeline.Controller
	params []state.Parameter
	cursor int
	mode   uiMode

	input    textinput.Model
	viewport viewport.Model
	loader   spinner.Model
	hotkeys  *HotkeyRenderer

	running types.Stage
	pending *pipeline.Pending

	message    string
	messageErr bool

	reportTitle  string
	reportSource string
	reportText   string

	logPath string
	width   int
	height  int
}

func NewModel(ctrl *pipeline.Controller, opts Options) Model {
	vp := viewport.New(minViewportWidth, minContentHeight)
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 4096
	loader := spinner.New()
	loader.Spinner = spinner.Line
	loader.Style = lipgloss.NewStyle()

	m := Model{
		ctrl:     ctrl,
		params:   state.Parameters(),
		input:    input,
		viewport: vp,
		loader:   loader,
		hotkeys:  NewHotkeyRenderer(DefaultHotkeys(), DefaultHotkeyResolver{}),
		logPath:  strings.TrimSpace(opts.LogPath),
	}
	m.resize(defaultPaneWidth, defaultPaneHeight)
	return m
}

func Run(ctrl *pipeline.Controller, opts Options) error {
	model := NewModel(ctrl, opts)
	p := tea.NewProgram(&model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case spinner.TickMsg:
		if m.running == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.loader, cmd = m.loader.Update(msg)
		return m, cmd
	case stageDoneMsg:
		return m, m.onStageDone(msg)
	case logTailMsg:
		if msg.err != nil {
			m.setError("read log: " + msg.err.Error())
			return m, nil
		}
		m.openReport("Log", msg.text, false)
		return m, nil
	case tea.KeyMsg:
		return m, m.onKey(msg)
	}
	return m, nil
}

func (m *Model) onKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}
	switch m.mode {
	case uiModeEdit:
		return m.onEditKey(msg)
	case uiModeReport:
		return m.onReportKey(msg)
	}
	return m.onParamsKey(msg)
}

func (m *Model) View() string {
	var body string
	switch m.mode {
	case uiModeReport:
		body = reportBoxStyle.Render(headerStyle.Render(m.reportTitle) + "\n" + m.viewport.View())
	default:
		body = m.renderParams()
		if m.mode == uiModeEdit {
			body += "\n" + m.input.View()
		}
	}
	lines := []string{
		headerStyle.Render("GUANIN") + "  " + m.stageLine(),
		dividerStyle.Render(strings.Repeat("─", max(1, m.width))),
		body,
		dividerStyle.Render(strings.Repeat("─", max(1, m.width))),
		m.statusLine(),
	}
	if m.message != "" {
		style := infoStyle
		if m.messageErr {
			style = errorStyle
		}
		lines = append(lines, style.Render(m.message))
	}
	lines = append(lines, helpStyle.Render(m.hotkeys.Render(m, m.width)))
	return strings.Join(lines, "\n")
}

func (m *Model) stageLine() string {
	_, derived := m.ctrl.Store().Snapshot()
	var parts []string
	for _, stage := range types.RunnableStages {
		label := stage.Label()
		switch {
		case derived.Current(stage):
			parts = append(parts, valueStyle.Render("✓ "+label))
		case derived.Stale(stage):
			parts = append(parts, staleStyle.Render("~ "+label))
		default:
			parts = append(parts, statusStyle.Render("· "+label))
		}
	}
	return strings.Join(parts, "  ")
}

func (m *Model) statusLine() string {
	if m.running != "" {
		return activityStyle.Render(m.loader.View() + " running " + m.running.Label())
	}
	return statusStyle.Render(m.ctrl.Status())
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = max(minViewportWidth, width-4)
	m.viewport.Height = max(minContentHeight, height-8)
	m.input.Width = max(10, width-4)
	if m.mode == uiModeReport && m.reportText != "" {
		m.viewport.SetContent(m.reportText)
	}
}

func (m *Model) setInfo(message string) {
	m.message = strings.TrimSpace(message)
	m.messageErr = false
}

func (m *Model) setError(message string) {
	m.message = strings.TrimSpace(message)
	m.messageErr = true
}

func (m *Model) clearMessage() {
	m.message = ""
	m.messageErr = false
}

func (m *Model) dispatch(stage types.Stage) tea.Cmd {
	if m.running != "" {
		m.setError(m.running.Label() + " is still running")
		return nil
	}
	pending, err := m.ctrl.Dispatch(context.Background(), pipeline.Command{Stage: stage})
	if err != nil {
		m.setError(err.Error())
		return nil
	}
	m.clearMessage()
	m.running = stage
	m.pending = pending
	return tea.Batch(m.loader.Tick, waitStageCmd(pending))
}

func (m *Model) onStageDone(msg stageDoneMsg) tea.Cmd {
	m.running = ""
	m.pending = nil
	if msg.err != nil {
		m.setError(msg.stage.Label() + ": " + msg.err.Error())
		return nil
	}
	res := msg.result
	if len(res.Warnings) > 0 {
		m.setInfo(res.Status + " (" + strings.Join(res.Warnings, "; ") + ")")
	} else {
		m.setInfo(res.Status)
	}
	params := m.ctrl.Store().Params()
	switch res.Stage {
	case types.StageLoaded:
		if params.OpenAfterLoad && res.Load != nil {
			m.openMarkdown("Raw QC", report.Load(res.Load))
		}
	case types.StageQCFiltered:
		if params.OpenAfterQC && res.QC != nil {
			m.openMarkdown("QC report", report.QC(res.QC))
		}
	case types.StageContentNormalized:
		if params.OpenAfterContentNorm && res.ContentNorm != nil {
			m.openMarkdown("Normalization report", report.ContentNorm(res.ContentNorm))
		}
	}
	return nil
}
