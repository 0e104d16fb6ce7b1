package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"guanin/internal/pipeline"
	"guanin/internal/types"
)

type stageDoneMsg struct {
	stage  types.Stage
	result pipeline.Result
	err    error
}

type logTailMsg struct {
	text string
	err  error
}

func waitStageCmd(pending *pipeline.Pending) tea.Cmd {
	if pending == nil {
		return nil
	}
	return func() tea.Msg {
		res, err := pending.Wait(context.Background())
		return stageDoneMsg{stage: pending.Stage, result: res, err: err}
	}
}

func readLogTailCmd(path string, lines int) tea.Cmd {
	return func() tea.Msg {
		text, err := tailFile(path, lines)
		return logTailMsg{text: text, err: err}
	}
}
