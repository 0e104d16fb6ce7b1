package main

import (
	"errors"
	"flag"

	"guanin/internal/app"
)

type UICommand struct {
	wiring commandWiring
}

func NewUICommand(wiring commandWiring) *UICommand {
	return &UICommand{wiring: wiring}
}

func (c *UICommand) Run(args []string) error {
	fs := flag.NewFlagSet("ui", flag.ContinueOnError)
	fs.SetOutput(c.wiring.stderr)
	var flags sessionFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.wiring.runUI == nil {
		return errors.New("ui is not available")
	}

	// The terminal belongs to the UI; log to the file only.
	s, err := openSession(c.wiring, &flags, sessionOptions{withHistory: true})
	if err != nil {
		return err
	}
	defer s.Close()
	return c.wiring.runUI(s.ctrl, app.Options{LogPath: s.logPath})
}
