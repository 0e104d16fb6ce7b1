package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"

	"guanin/internal/config"
)

type HistoryCommand struct {
	wiring commandWiring
}

func NewHistoryCommand(wiring commandWiring) *HistoryCommand {
	return &HistoryCommand{wiring: wiring}
}

func (c *HistoryCommand) Run(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(c.wiring.stderr)
	sessionID := fs.String("session", "", "only list runs of this session")
	limit := fs.Int("limit", 50, "maximum number of runs to list (0 for all)")
	asJSON := fs.Bool("json", false, "print runs as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := c.wiring.loadConfig()
	if err != nil {
		return err
	}
	if cfg.HistoryBackend() == config.HistoryBackendNone {
		return errors.New("stage-run history is disabled in config")
	}
	history, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer history.Close()

	runs, err := history.ListStageRuns(context.Background(), *sessionID)
	if err != nil {
		return err
	}
	if *limit > 0 && len(runs) > *limit {
		runs = runs[:*limit]
	}
	if *asJSON {
		encoder := json.NewEncoder(c.wiring.stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	}
	printRuns(c.wiring.stdout, runs)
	return nil
}
