package types

// Derived holds everything the pipeline computes. Artifact pointers are
// immutable once committed; a re-run replaces them instead of editing them.
type Derived struct {
	Stage       Stage                 `json:"stage"`
	Status      string                `json:"status"`
	Records     map[Stage]StageRecord `json:"records,omitempty"`
	Load        *LoadArtifacts        `json:"load,omitempty"`
	QC          *QCArtifacts          `json:"qc,omitempty"`
	TechNorm    *TechNormArtifacts    `json:"technorm,omitempty"`
	ContentNorm *ContentNormArtifacts `json:"contentnorm,omitempty"`
	Evaluation  *EvaluationArtifacts  `json:"evaluation,omitempty"`
	Warnings    []string              `json:"warnings,omitempty"`
}

func (d Derived) Clone() Derived {
	out := d
	if d.Records != nil {
		out.Records = make(map[Stage]StageRecord, len(d.Records))
		for k, v := range d.Records {
			out.Records[k] = v.Clone()
		}
	}
	out.Warnings = append([]string(nil), d.Warnings...)
	return out
}

// Record returns the version record for stage.
func (d Derived) Record(stage Stage) (StageRecord, bool) {
	rec, ok := d.Records[stage]
	return rec, ok
}

// Stale reports whether stage has output that no longer matches the current
// version of one of its predecessors.
func (d Derived) Stale(stage Stage) bool {
	rec, ok := d.Records[stage]
	if !ok {
		return false
	}
	for _, up := range stage.Upstream() {
		upRec, ok := d.Records[up]
		if !ok {
			return true
		}
		if rec.Upstream[up] != upRec.Version {
			return true
		}
	}
	return false
}

// Version returns the version counter of stage, zero when it never ran.
func (d Derived) Version(stage Stage) uint64 {
	return d.Records[stage].Version
}

// Current reports whether stage has output that is not stale.
func (d Derived) Current(stage Stage) bool {
	_, ok := d.Records[stage]
	return ok && !d.Stale(stage)
}

func (d Derived) FlaggedLanes() []string {
	if d.QC == nil {
		return nil
	}
	return append([]string(nil), d.QC.FlaggedLanes...)
}

func (d Derived) ReferenceGenes() []string {
	if d.ContentNorm == nil {
		return nil
	}
	return append([]string(nil), d.ContentNorm.ReferenceGenes...)
}
