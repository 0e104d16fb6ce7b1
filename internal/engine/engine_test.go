package engine

import (
	"context"
	"errors"
	"testing"

	"guanin/internal/types"
)

type failingEngine struct {
	err error
}

func (f failingEngine) Load(context.Context, Snapshot) (*types.LoadArtifacts, error) {
	return nil, f.err
}

func (f failingEngine) QC(context.Context, Snapshot) (*types.QCArtifacts, error) {
	return nil, f.err
}

func (f failingEngine) TechNorm(context.Context, Snapshot) (*types.TechNormArtifacts, error) {
	return &types.TechNormArtifacts{Method: types.TechNormSum}, nil
}

func (f failingEngine) ContentNorm(context.Context, Snapshot) (*types.ContentNormArtifacts, error) {
	return nil, f.err
}

func (f failingEngine) Evaluate(context.Context, Snapshot) (*types.EvaluationArtifacts, error) {
	return nil, f.err
}

func TestRunWrapsEngineFailuresVerbatim(t *testing.T) {
	cause := errors.New("not enough positive controls in lane 3")
	_, err := Run(context.Background(), failingEngine{err: cause}, types.StageQCFiltered, Snapshot{})
	var engineErr *types.EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("expected EngineError, got %T", err)
	}
	if engineErr.Stage != types.StageQCFiltered || engineErr.Error() != cause.Error() {
		t.Fatalf("unexpected engine error: %#v", engineErr)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be unwrappable")
	}
}

func TestRunPassesTypedErrorsThrough(t *testing.T) {
	loadErr := &types.LoadError{Folder: "/data", Reason: "no RCC files"}
	_, err := Run(context.Background(), failingEngine{err: loadErr}, types.StageLoaded, Snapshot{})
	var got *types.LoadError
	if !errors.As(err, &got) || got != loadErr {
		t.Fatalf("expected LoadError passthrough, got %v", err)
	}
}

func TestRunReturnsArtifacts(t *testing.T) {
	out, err := Run(context.Background(), failingEngine{}, types.StageTechNormalized, Snapshot{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if art, ok := out.(*types.TechNormArtifacts); !ok || art.Method != types.TechNormSum {
		t.Fatalf("unexpected artifacts: %#v", out)
	}
}

func TestRunUnknownStage(t *testing.T) {
	if _, err := Run(context.Background(), failingEngine{}, types.StageIdle, Snapshot{}); !errors.Is(err, types.ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
}
