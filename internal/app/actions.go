package app

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"guanin/internal/report"
	"guanin/internal/state"
	"guanin/internal/types"
)

var stageKeys = map[string]types.Stage{
	"L": types.StageLoaded,
	"Q": types.StageQCFiltered,
	"T": types.StageTechNormalized,
	"C": types.StageContentNormalized,
	"E": types.StageEvaluated,
}

func (m *Model) onParamsKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if stage, ok := stageKeys[key]; ok {
		return m.dispatch(stage)
	}
	switch key {
	case "q":
		return tea.Quit
	case "r":
		stage, ok := m.nextStage()
		if !ok {
			m.setInfo("every stage is up to date")
			return nil
		}
		return m.dispatch(stage)
	case "j", "down":
		m.moveCursor(1)
	case "k", "up":
		m.moveCursor(-1)
	case "enter":
		m.beginEdit()
	case "left", "h":
		m.cycle(-1)
	case "right", "l":
		m.cycle(1)
	case " ":
		m.toggle()
	case "v":
		params, derived := m.ctrl.Store().Snapshot()
		m.openMarkdown("Summary", renderSummary(params, derived))
	case "w":
		_, derived := m.ctrl.Store().Snapshot()
		if derived.QC == nil {
			m.setError("no QC report yet")
			return nil
		}
		m.openMarkdown("QC report", report.QC(derived.QC))
	case "n":
		_, derived := m.ctrl.Store().Snapshot()
		if derived.ContentNorm == nil {
			m.setError("no normalization report yet")
			return nil
		}
		m.openMarkdown("Normalization report", renderNormArtifacts(derived))
	case "g":
		if m.logPath == "" {
			m.setError("no log file for this session")
			return nil
		}
		return readLogTailCmd(m.logPath, logTailLines)
	case "y":
		m.copyWithStatus(m.statusClipboardText(), "status copied")
	}
	return nil
}

func (m *Model) onEditKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.endEdit()
		return nil
	case "enter":
		p, ok := m.selected()
		if !ok {
			m.endEdit()
			return nil
		}
		value := strings.TrimSpace(m.input.Value())
		if m.applyParameter(p, value) {
			m.endEdit()
		}
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) onReportKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc", "q":
		m.mode = uiModeNormal
		m.reportText = ""
		return nil
	case "y":
		m.copyWithStatus(m.reportSource, m.reportTitle+" copied")
		return nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return cmd
}

func (m *Model) selected() (state.Parameter, bool) {
	if m.cursor < 0 || m.cursor >= len(m.params) {
		return state.Parameter{}, false
	}
	return m.params[m.cursor], true
}

func (m *Model) moveCursor(delta int) {
	if len(m.params) == 0 {
		return
	}
	m.cursor = (m.cursor + delta + len(m.params)) % len(m.params)
}

func (m *Model) editable() bool {
	if m.running != "" {
		m.setError("parameters are locked while " + m.running.Label() + " runs")
		return false
	}
	return true
}

func (m *Model) beginEdit() {
	p, ok := m.selected()
	if !ok || !m.editable() {
		return
	}
	switch p.Kind {
	case state.KindEnum:
		m.cycle(1)
		return
	case state.KindBool:
		m.toggle()
		return
	}
	m.mode = uiModeEdit
	m.input.SetValue(p.Format(m.ctrl.Store().Params()))
	m.input.CursorEnd()
	m.input.Focus()
}

func (m *Model) endEdit() {
	m.mode = uiModeNormal
	m.input.Blur()
	m.input.SetValue("")
}

func (m *Model) cycle(delta int) {
	p, ok := m.selected()
	if !ok || p.Kind != state.KindEnum || len(p.Choices) == 0 || !m.editable() {
		return
	}
	current := p.Format(m.ctrl.Store().Params())
	idx := 0
	for i, choice := range p.Choices {
		if choice == current {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(p.Choices)) % len(p.Choices)
	m.applyParameter(p, p.Choices[idx])
}

func (m *Model) toggle() {
	p, ok := m.selected()
	if !ok || p.Kind != state.KindBool || !m.editable() {
		return
	}
	current, _ := p.Value(m.ctrl.Store().Params()).(bool)
	m.applyParameter(p, !current)
}

func (m *Model) applyParameter(p state.Parameter, value any) bool {
	res, err := m.ctrl.SetParameter(p.Name, value)
	if err != nil {
		m.setError(err.Error())
		return false
	}
	if res.Changed {
		m.setInfo(p.Label + " set to " + p.Format(m.ctrl.Store().Params()))
	} else {
		m.clearMessage()
	}
	return true
}

// nextStage is the first runnable stage without current output.
func (m *Model) nextStage() (types.Stage, bool) {
	_, derived := m.ctrl.Store().Snapshot()
	for _, stage := range types.RunnableStages {
		if !derived.Current(stage) {
			return stage, true
		}
	}
	return "", false
}

func (m *Model) statusClipboardText() string {
	_, derived := m.ctrl.Store().Snapshot()
	text := derived.Status
	if genes := derived.ReferenceGenes(); len(genes) > 0 {
		text += "\nreference genes: " + strings.Join(genes, ", ")
	}
	return text
}
