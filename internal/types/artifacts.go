package types

// Code classes found in the Code_Summary section of an RCC file.
const (
	CodeClassPositive     = "Positive"
	CodeClassNegative     = "Negative"
	CodeClassEndogenous   = "Endogenous"
	CodeClassHousekeeping = "Housekeeping"
)

type Probe struct {
	CodeClass string  `json:"code_class"`
	Name      string  `json:"name"`
	Accession string  `json:"accession,omitempty"`
	Count     float64 `json:"count"`
}

// Lane is one sample read from one instrument file.
type Lane struct {
	ID             string  `json:"id"`
	File           string  `json:"file"`
	SampleID       string  `json:"sample_id,omitempty"`
	LaneNumber     int     `json:"lane_number,omitempty"`
	FovCount       int     `json:"fov_count"`
	FovCounted     int     `json:"fov_counted"`
	BindingDensity float64 `json:"binding_density"`
	Probes         []Probe `json:"probes"`
}

// Dataset is the immutable result of a load. Later stages derive from it.
type Dataset struct {
	Lanes  []Lane            `json:"lanes"`
	Groups map[string]string `json:"groups,omitempty"`
}

func (d *Dataset) LaneIDs() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.Lanes))
	for _, lane := range d.Lanes {
		out = append(out, lane.ID)
	}
	return out
}

func (d *Dataset) Lane(id string) (Lane, bool) {
	if d == nil {
		return Lane{}, false
	}
	for _, lane := range d.Lanes {
		if lane.ID == id {
			return lane, true
		}
	}
	return Lane{}, false
}

// GeneRow is one probe across all lanes of a CountMatrix.
type GeneRow struct {
	Name      string    `json:"name"`
	CodeClass string    `json:"code_class"`
	Values    []float64 `json:"values"`
}

// CountMatrix holds counts with one row per gene and one column per lane.
type CountMatrix struct {
	Lanes []string  `json:"lanes"`
	Rows  []GeneRow `json:"rows"`
}

func (m *CountMatrix) Clone() *CountMatrix {
	if m == nil {
		return nil
	}
	out := &CountMatrix{
		Lanes: append([]string(nil), m.Lanes...),
		Rows:  make([]GeneRow, len(m.Rows)),
	}
	for i, row := range m.Rows {
		out.Rows[i] = GeneRow{
			Name:      row.Name,
			CodeClass: row.CodeClass,
			Values:    append([]float64(nil), row.Values...),
		}
	}
	return out
}

// Filter returns a copy that keeps only rows whose code class is listed.
func (m *CountMatrix) Filter(classes ...string) *CountMatrix {
	if m == nil {
		return nil
	}
	keep := map[string]struct{}{}
	for _, c := range classes {
		keep[c] = struct{}{}
	}
	out := &CountMatrix{Lanes: append([]string(nil), m.Lanes...)}
	for _, row := range m.Rows {
		if _, ok := keep[row.CodeClass]; !ok {
			continue
		}
		out.Rows = append(out.Rows, GeneRow{
			Name:      row.Name,
			CodeClass: row.CodeClass,
			Values:    append([]float64(nil), row.Values...),
		})
	}
	return out
}

func (m *CountMatrix) Row(name string) (GeneRow, bool) {
	if m == nil {
		return GeneRow{}, false
	}
	for _, row := range m.Rows {
		if row.Name == name {
			return row, true
		}
	}
	return GeneRow{}, false
}

// Column returns the counts of one lane in row order.
func (m *CountMatrix) Column(lane int) []float64 {
	if m == nil {
		return nil
	}
	out := make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		if lane < len(row.Values) {
			out[i] = row.Values[lane]
		}
	}
	return out
}

type LoadArtifacts struct {
	Dataset  *Dataset `json:"dataset"`
	Files    []string `json:"files"`
	Skipped  []string `json:"skipped,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type LaneQC struct {
	LaneID                 string   `json:"lane_id"`
	FOV                    float64  `json:"fov"`
	BindingDensity         float64  `json:"binding_density"`
	Linearity              float64  `json:"linearity"`
	ScalingFactor          float64  `json:"scaling_factor"`
	Background             float64  `json:"background"`
	PercentBelowBackground float64  `json:"percent_below_background"`
	Flags                  []string `json:"flags,omitempty"`
}

func (l LaneQC) Flagged() bool {
	return len(l.Flags) > 0
}

type QCArtifacts struct {
	BackgroundPolicy BackgroundPolicy `json:"background_policy"`
	Background       float64          `json:"background"`
	// Ranges and LaneRemovalPercent are the limits the lanes were judged
	// against, not the current parameters.
	Ranges             map[Metric]Bounds `json:"ranges"`
	LaneRemovalPercent float64           `json:"lane_removal_percent"`
	Lanes              []LaneQC          `json:"lanes"`
	FlaggedLanes       []string          `json:"flagged_lanes"`
	RemovedLanes       []string          `json:"removed_lanes"`
	KeptLanes          []string          `json:"kept_lanes"`
	Warnings           []string          `json:"warnings,omitempty"`
	Paths              []string          `json:"paths,omitempty"`
}

func (q *QCArtifacts) Range(metric Metric) (Bounds, bool) {
	if q == nil {
		return Bounds{}, false
	}
	b, ok := q.Ranges[metric]
	return b, ok
}

func (q *QCArtifacts) LaneBackground(id string) float64 {
	if q == nil {
		return 0
	}
	for _, lane := range q.Lanes {
		if lane.LaneID == id {
			return lane.Background
		}
	}
	return q.Background
}

type TechNormArtifacts struct {
	Method                TechNormMethod     `json:"method"`
	LowCountsAfterScaling bool               `json:"low_counts_after_scaling"`
	Factors               map[string]float64 `json:"factors"`
	Matrix                *CountMatrix       `json:"matrix"`
}

// GeneStability is one row of a geNorm ranking, most stable first.
type GeneStability struct {
	Gene string  `json:"gene"`
	M    float64 `json:"m"`
}

type ContentNormArtifacts struct {
	Method         RefGeneMethod           `json:"method"`
	ReferenceGenes []string                `json:"reference_genes"`
	Weights        map[string]float64      `json:"weights,omitempty"`
	Requested      int                     `json:"requested,omitempty"`
	Shortfall      int                     `json:"shortfall,omitempty"`
	Candidates     []string                `json:"candidates,omitempty"`
	FilteredGenes  []string                `json:"filtered_genes,omitempty"`
	FlaggedGenes   []string                `json:"flagged_genes,omitempty"`
	MissingGenes   []string                `json:"missing_genes,omitempty"`
	Ranking        []GeneStability         `json:"ranking,omitempty"`
	Factors        map[string]float64      `json:"factors"`
	Additional     AdditionalNormalization `json:"additional"`
	Provenance     []string                `json:"provenance,omitempty"`
	Matrix         *CountMatrix            `json:"matrix"`
	Paths          []string                `json:"paths,omitempty"`
}

type LaneIQR struct {
	LaneID string  `json:"lane_id"`
	Raw    float64 `json:"raw"`
	Norm   float64 `json:"norm"`
}

type EvaluationArtifacts struct {
	RawMeanIQR   float64      `json:"raw_mean_iqr"`
	NormMeanIQR  float64      `json:"norm_mean_iqr"`
	Lanes        []LaneIQR    `json:"lanes"`
	ExportFormat ExportFormat `json:"export_format"`
	Paths        []string     `json:"paths"`
}
