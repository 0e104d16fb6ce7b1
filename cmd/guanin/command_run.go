package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"guanin/internal/pipeline"
	"guanin/internal/types"
)

type RunCommand struct {
	wiring commandWiring
}

func NewRunCommand(wiring commandWiring) *RunCommand {
	return &RunCommand{wiring: wiring}
}

type runOutput struct {
	Stage       types.Stage   `json:"stage"`
	RunID       string        `json:"run_id"`
	Version     uint64        `json:"version"`
	Status      string        `json:"status"`
	Warnings    []string      `json:"warnings,omitempty"`
	Invalidated []types.Stage `json:"invalidated,omitempty"`
}

func (c *RunCommand) Run(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(c.wiring.stderr)
	var flags sessionFlags
	flags.register(fs)
	until := fs.String("until", "evaluate", "last stage to run: load|qc|technorm|contentnorm|evaluate")
	asJSON := fs.Bool("json", false, "print stage results as JSON lines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	stage, ok := types.ParseStage(*until)
	if !ok {
		return fmt.Errorf("unknown stage %q", *until)
	}

	s, err := openSession(c.wiring, &flags, sessionOptions{logToStderr: true, withHistory: true})
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.ctrl.RunThrough(context.Background(), stage)
	for _, res := range results {
		if !res.OK {
			continue
		}
		if werr := writeResult(c.wiring.stdout, res, *asJSON); werr != nil {
			return werr
		}
	}
	return err
}

func writeResult(out io.Writer, res pipeline.Result, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(out).Encode(runOutput{
			Stage:       res.Stage,
			RunID:       res.RunID,
			Version:     res.Version,
			Status:      res.Status,
			Warnings:    res.Warnings,
			Invalidated: res.Invalidated,
		})
	}
	if _, err := fmt.Fprintf(out, "%s: %s\n", res.Stage.Label(), res.Status); err != nil {
		return err
	}
	for _, warning := range res.Warnings {
		if _, err := fmt.Fprintf(out, "  warning: %s\n", warning); err != nil {
			return err
		}
	}
	if len(res.Invalidated) > 0 {
		names := make([]string, len(res.Invalidated))
		for i, stage := range res.Invalidated {
			names[i] = stage.Label()
		}
		if _, err := fmt.Fprintf(out, "  invalidated: %s\n", strings.Join(names, ", ")); err != nil {
			return err
		}
	}
	return nil
}
