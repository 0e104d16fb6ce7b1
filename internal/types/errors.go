package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrRunInFlight      = errors.New("a stage run is already in flight")
	ErrUnknownStage     = errors.New("unknown stage")
)

// ConfigValidationError reports a bad value or an inconsistent combination of
// parameters. Nothing is applied when it is returned.
type ConfigValidationError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ConfigValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid configuration for %s: %s", e.Param, e.Reason)
	}
	return fmt.Sprintf("invalid configuration for %s (%v): %s", e.Param, e.Value, e.Reason)
}

// StageOrderError reports a stage-run command whose predecessor has no current output.
type StageOrderError struct {
	Stage   Stage
	Missing Stage
	Stale   bool
}

func (e *StageOrderError) Error() string {
	if e.Stale {
		return fmt.Sprintf("cannot run %s: %s output is stale, re-run it first", e.Stage, e.Missing)
	}
	return fmt.Sprintf("cannot run %s: %s has not completed", e.Stage, e.Missing)
}

// LoadError reports an input folder that is unset, empty or unreadable.
type LoadError struct {
	Folder string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	msg := "load failed"
	if strings.TrimSpace(e.Folder) != "" {
		msg += " for " + e.Folder
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// EngineError carries an engine failure message verbatim.
type EngineError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	return e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Err
}
