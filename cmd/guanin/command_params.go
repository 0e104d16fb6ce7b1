package main

import (
	"encoding/json"
	"errors"
	"flag"
	"strings"

	"guanin/internal/paramfile"
	"guanin/internal/state"
)

const (
	paramsFormatYAML = "yaml"
	paramsFormatJSON = "json"
)

type ParamsCommand struct {
	wiring commandWiring
}

func NewParamsCommand(wiring commandWiring) *ParamsCommand {
	return &ParamsCommand{wiring: wiring}
}

func (c *ParamsCommand) Run(args []string) error {
	fs := flag.NewFlagSet("params", flag.ContinueOnError)
	fs.SetOutput(c.wiring.stderr)
	var flags sessionFlags
	flags.register(fs)
	format := fs.String("format", paramsFormatYAML, "output format: yaml|json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openSession(c.wiring, &flags, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()
	params := s.store.Params()

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "", paramsFormatYAML:
		data, err := paramfile.Export(params)
		if err != nil {
			return err
		}
		_, err = c.wiring.stdout.Write(data)
		return err
	case paramsFormatJSON:
		out := map[string]any{}
		for _, p := range state.Parameters() {
			out[p.Name] = p.Value(params)
		}
		encoder := json.NewEncoder(c.wiring.stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	default:
		return errors.New("format must be yaml or json")
	}
}
