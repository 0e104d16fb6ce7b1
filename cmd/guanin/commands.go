package main

import (
	"io"
	"os"

	"guanin/internal/app"
	"guanin/internal/config"
	"guanin/internal/pipeline"
)

type commandRunner interface {
	Run(args []string) error
}

type commandWiring struct {
	stdout     io.Writer
	stderr     io.Writer
	loadConfig func() (config.Config, error)
	logPath    func() (string, error)
	runUI      func(*pipeline.Controller, app.Options) error
	version    string
}

func defaultCommandWiring(stdout, stderr io.Writer) commandWiring {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return commandWiring{
		stdout:     stdout,
		stderr:     stderr,
		loadConfig: config.Load,
		logPath:    config.LogPath,
		runUI:      app.Run,
		version:    buildVersion(),
	}
}

func buildCommands(wiring commandWiring) map[string]commandRunner {
	return map[string]commandRunner{
		"run":     NewRunCommand(wiring),
		"ui":      NewUICommand(wiring),
		"params":  NewParamsCommand(wiring),
		"history": NewHistoryCommand(wiring),
		"config":  NewConfigCommand(wiring.stdout, wiring.stderr, wiring.loadConfig),
	}
}
