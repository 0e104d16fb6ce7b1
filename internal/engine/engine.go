package engine

import (
	"context"
	"errors"

	"guanin/internal/types"
)

// Snapshot is the input of one stage call: the effective parameters plus the
// upstream artifacts the stage consumes. Engines must not retain it.
type Snapshot struct {
	Params      types.Parameters
	Load        *types.LoadArtifacts
	QC          *types.QCArtifacts
	TechNorm    *types.TechNormArtifacts
	ContentNorm *types.ContentNormArtifacts
}

// Engine performs the numeric work of each stage. Implementations are
// stateless between calls and deterministic for a given snapshot; they are the
// only code that writes output files.
type Engine interface {
	Load(ctx context.Context, snap Snapshot) (*types.LoadArtifacts, error)
	QC(ctx context.Context, snap Snapshot) (*types.QCArtifacts, error)
	TechNorm(ctx context.Context, snap Snapshot) (*types.TechNormArtifacts, error)
	ContentNorm(ctx context.Context, snap Snapshot) (*types.ContentNormArtifacts, error)
	Evaluate(ctx context.Context, snap Snapshot) (*types.EvaluationArtifacts, error)
}

// Wrap turns an engine failure into an EngineError for stage, keeping the
// message verbatim. Errors that already carry a stage type pass through.
func Wrap(stage types.Stage, err error) error {
	if err == nil {
		return nil
	}
	var engineErr *types.EngineError
	if errors.As(err, &engineErr) {
		return err
	}
	var loadErr *types.LoadError
	if errors.As(err, &loadErr) {
		return err
	}
	var cfgErr *types.ConfigValidationError
	if errors.As(err, &cfgErr) {
		return err
	}
	return &types.EngineError{Stage: stage, Message: err.Error(), Err: err}
}

// Run dispatches snap to the engine call for stage.
func Run(ctx context.Context, eng Engine, stage types.Stage, snap Snapshot) (any, error) {
	var (
		out any
		err error
	)
	switch stage {
	case types.StageLoaded:
		out, err = eng.Load(ctx, snap)
	case types.StageQCFiltered:
		out, err = eng.QC(ctx, snap)
	case types.StageTechNormalized:
		out, err = eng.TechNorm(ctx, snap)
	case types.StageContentNormalized:
		out, err = eng.ContentNorm(ctx, snap)
	case types.StageEvaluated:
		out, err = eng.Evaluate(ctx, snap)
	default:
		return nil, types.ErrUnknownStage
	}
	if err != nil {
		return nil, Wrap(stage, err)
	}
	return out, nil
}
