package pipeline

import (
	"fmt"
	"strings"

	"guanin/internal/engine"
	"guanin/internal/sessionpaths"
	"guanin/internal/types"
)

// checkGate verifies the preconditions of stage against the current
// parameters and derived state. It returns warnings for conditions that are
// allowed but worth reporting.
func checkGate(stage types.Stage, params types.Parameters, derived types.Derived) ([]string, error) {
	if !stage.Valid() || stage == types.StageIdle {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownStage, stage)
	}
	if stage == types.StageLoaded {
		return nil, checkInputFolder(params.InputFolder)
	}

	prev, _ := stage.Predecessor()
	if !derived.Current(prev) {
		_, ran := derived.Record(prev)
		return nil, &types.StageOrderError{Stage: stage, Missing: prev, Stale: ran}
	}

	var warnings []string
	switch stage {
	case types.StageQCFiltered, types.StageEvaluated:
		if err := checkOutputFolder(params.OutputFolder); err != nil {
			return nil, err
		}
	case types.StageContentNormalized:
		if err := checkRefGeneSelection(params); err != nil {
			return nil, err
		}
		if params.SampleRemoval == types.SampleRemovalManual {
			if len(params.ManualRemove) == 0 {
				warnings = append(warnings, "manual sample removal is selected but the list is empty: no lanes were removed")
			} else {
				warnings = append(warnings, "lanes manually excluded from normalization: "+strings.Join(params.ManualRemove, ", "))
			}
		}
	}
	return warnings, nil
}

func checkInputFolder(folder string) error {
	if strings.TrimSpace(folder) == "" {
		return &types.LoadError{Reason: "input folder is not set"}
	}
	files, err := sessionpaths.ListInstrumentFiles(folder)
	if err != nil {
		return &types.LoadError{Folder: folder, Reason: "cannot read folder", Err: err}
	}
	if len(files) == 0 {
		return &types.LoadError{Folder: folder, Reason: "no RCC files found"}
	}
	return nil
}

func checkOutputFolder(folder string) error {
	if strings.TrimSpace(folder) == "" {
		return &types.ConfigValidationError{Param: "output.folder", Reason: "output folder is not set"}
	}
	if err := sessionpaths.CheckCreatable(folder, nil); err != nil {
		return &types.ConfigValidationError{Param: "output.folder", Value: folder, Reason: err.Error()}
	}
	return nil
}

func checkRefGeneSelection(params types.Parameters) error {
	method := params.RefGeneMethod
	if method.UsesRefGeneList() && len(params.RefGenes) == 0 {
		return &types.ConfigValidationError{
			Param:  "contentnorm.refgenes.genes",
			Reason: "manual reference gene selection needs at least one gene",
		}
	}
	if method.UsesRefGeneCount() && params.RefGeneCount < 1 {
		return &types.ConfigValidationError{
			Param:  "contentnorm.refgenes.n",
			Value:  params.RefGeneCount,
			Reason: fmt.Sprintf("%s needs n >= 1", method),
		}
	}
	return nil
}

func snapshotFor(stage types.Stage, params types.Parameters, derived types.Derived) engine.Snapshot {
	snap := engine.Snapshot{Params: params}
	if types.StageLoaded.Before(stage) {
		snap.Load = derived.Load
	}
	if types.StageQCFiltered.Before(stage) {
		snap.QC = derived.QC
	}
	if types.StageTechNormalized.Before(stage) {
		snap.TechNorm = derived.TechNorm
	}
	if types.StageContentNormalized.Before(stage) {
		snap.ContentNorm = derived.ContentNorm
	}
	return snap
}
