package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"guanin/internal/config"
	"guanin/internal/engine/nanostring"
	"guanin/internal/logging"
	"guanin/internal/paramfile"
	"guanin/internal/pipeline"
	"guanin/internal/state"
	"guanin/internal/store"
)

type sessionFlags struct {
	params string
	set    stringList
	debug  bool
}

func (f *sessionFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.params, "params", "", "YAML parameter preset to apply")
	fs.Var(&f.set, "set", "parameter assignment name=value (repeatable)")
	fs.BoolVar(&f.debug, "debug", false, "log at debug level")
}

// preset merges the preset file named in config, the --params file and the
// --set assignments, later sources winning.
func (f *sessionFlags) preset(cfg config.Config) (paramfile.Preset, error) {
	out := paramfile.Preset{}
	paths := []string{}
	if path, err := cfg.ParamsFile(); err != nil {
		return nil, err
	} else if path != "" {
		paths = append(paths, path)
	}
	if path := strings.TrimSpace(f.params); path != "" {
		paths = append(paths, path)
	}
	for _, path := range paths {
		p, err := paramfile.Read(path)
		if err != nil {
			return nil, err
		}
		for name, value := range p {
			out[name] = value
		}
	}
	for _, assignment := range f.set {
		name, value, ok := strings.Cut(assignment, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q: expected name=value", assignment)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

type sessionOptions struct {
	// logToStderr mirrors the log to stderr in addition to the log file.
	logToStderr bool
	// withHistory opens the configured stage-run history.
	withHistory bool
}

type session struct {
	id      string
	ctrl    *pipeline.Controller
	store   *state.Store
	logger  logging.Logger
	logPath string

	history store.StageRunStore
	closers []io.Closer
}

func openSession(wiring commandWiring, flags *sessionFlags, opts sessionOptions) (*session, error) {
	cfg, err := wiring.loadConfig()
	if err != nil {
		return nil, err
	}
	s := &session{id: logging.NewRunID()}

	level := logging.ParseLevel(cfg.LogLevel())
	if flags.debug {
		level = logging.Debug
	}
	var sinks []io.Writer
	if opts.logToStderr {
		sinks = append(sinks, wiring.stderr)
	}
	if wiring.logPath != nil {
		if path, err := wiring.logPath(); err == nil {
			if file, err := logging.OpenFile(path); err == nil {
				sinks = append(sinks, file)
				s.closers = append(s.closers, file)
				s.logPath = path
			} else {
				fmt.Fprintf(wiring.stderr, "log file unavailable: %v\n", err)
			}
		}
	}
	out := io.Discard
	if len(sinks) > 0 {
		out = io.MultiWriter(sinks...)
	}
	s.logger = logging.New(out, level).With(logging.F("session_id", s.id))

	params, err := cfg.Parameters()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.store = state.New(params, state.WithLogger(logging.Component(s.logger, "state")))
	preset, err := flags.preset(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	if len(preset) > 0 {
		if _, err := paramfile.Apply(s.store, preset); err != nil {
			s.Close()
			return nil, err
		}
	}

	ctrlOpts := []pipeline.Option{
		pipeline.WithLogger(s.logger),
		pipeline.WithSessionID(s.id),
	}
	if opts.withHistory {
		history, err := openHistory(cfg)
		if err != nil {
			s.logger.Warn("stage-run history disabled", logging.F("error", err))
		} else if history != nil {
			s.history = history
			ctrlOpts = append(ctrlOpts, pipeline.WithHistory(history))
		}
	}
	eng := nanostring.New(nanostring.WithLogger(logging.Component(s.logger, "engine")))
	s.ctrl = pipeline.New(s.store, eng, ctrlOpts...)
	s.logger.Info("guanin session started",
		logging.F("version", wiring.version),
		logging.F("pid", os.Getpid()),
		logging.F("output_folder", s.store.Params().OutputFolder),
	)
	return s, nil
}

func openHistory(cfg config.Config) (store.StageRunStore, error) {
	backend := cfg.HistoryBackend()
	if backend == config.HistoryBackendNone {
		return nil, nil
	}
	path, err := cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	return store.OpenStageRunStore(backend, path)
}

// Close flushes pending history writes before closing the history store.
func (s *session) Close() error {
	if s == nil {
		return nil
	}
	if s.ctrl != nil {
		s.ctrl.Close()
		s.logger.Info("guanin session closed",
			logging.F("stage", s.ctrl.Store().Stage()),
			logging.F("output_folder", s.store.Params().OutputFolder),
		)
	}
	var errs []error
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
