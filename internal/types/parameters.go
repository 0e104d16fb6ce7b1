package types

import (
	"fmt"
	"strconv"
	"strings"
)

type SampleIdentity string

const (
	SampleIdentityFilename SampleIdentity = "filename"
	SampleIdentitySampleID SampleIdentity = "sample_id"
)

type BackgroundPolicy string

const (
	BackgroundMeanPlus2SD     BackgroundPolicy = "mean_plus_2sd"
	BackgroundMaxNegCtrl      BackgroundPolicy = "max_neg"
	BackgroundMeanNegCtrl     BackgroundPolicy = "mean_neg"
	BackgroundFilteredNegCtrl BackgroundPolicy = "filtered_neg"
	BackgroundManual          BackgroundPolicy = "manual"
)

type LowCountCorrection string

const (
	LowCountsSubtract        LowCountCorrection = "subtract"
	LowCountsSetToBackground LowCountCorrection = "set_to_background"
	LowCountsSkip            LowCountCorrection = "skip"
)

type SampleRemovalPolicy string

const (
	SampleRemovalAutoFlagged SampleRemovalPolicy = "auto_remove_flagged"
	SampleRemovalKeepAll     SampleRemovalPolicy = "keep_all"
	SampleRemovalManual      SampleRemovalPolicy = "manual_remove"
	SampleRemovalFlagOnly    SampleRemovalPolicy = "flag_only"
)

type TechNormMethod string

const (
	TechNormPosGeomean TechNormMethod = "posgeomean"
	TechNormSum        TechNormMethod = "sum"
	TechNormMedian     TechNormMethod = "median"
	TechNormRegression TechNormMethod = "regression"
)

type RefGeneMethod string

const (
	RefGenesGenormAuto     RefGeneMethod = "genorm_auto"
	RefGenesGenormTopN     RefGeneMethod = "genorm_top_n"
	RefGenesTopNExpressed  RefGeneMethod = "top_n_expressed"
	RefGenesAllEndogenous  RefGeneMethod = "all_endogenous"
	RefGenesWeightedGenorm RefGeneMethod = "weighted_genorm"
	RefGenesManual         RefGeneMethod = "manual"
)

type GroupFilter string

const (
	GroupFilterKruskalFilter  GroupFilter = "kruskal_filter"
	GroupFilterKruskalFlag    GroupFilter = "kruskal_flag"
	GroupFilterWilcoxonFilter GroupFilter = "wilcoxon_filter"
	GroupFilterWilcoxonFlag   GroupFilter = "wilcoxon_flag"
	GroupFilterNone           GroupFilter = "none"
)

type AdditionalNormalization string

const (
	AdditionalNone            AdditionalNormalization = "none"
	AdditionalQuantile        AdditionalNormalization = "quantile"
	AdditionalStandardization AdditionalNormalization = "standardization"
)

type ExportFormat string

const (
	ExportLinear ExportFormat = "linear"
	ExportLog2   ExportFormat = "log2"
	ExportLog10  ExportFormat = "log10"
)

// Ordered choice tables. List widgets map a row index to a value through these
// slices; the order is the order the options are presented in.
var (
	SampleIdentities         = []SampleIdentity{SampleIdentityFilename, SampleIdentitySampleID}
	BackgroundPolicies       = []BackgroundPolicy{BackgroundMeanPlus2SD, BackgroundMaxNegCtrl, BackgroundMeanNegCtrl, BackgroundFilteredNegCtrl, BackgroundManual}
	LowCountCorrections      = []LowCountCorrection{LowCountsSubtract, LowCountsSetToBackground, LowCountsSkip}
	SampleRemovalPolicies    = []SampleRemovalPolicy{SampleRemovalAutoFlagged, SampleRemovalKeepAll, SampleRemovalManual, SampleRemovalFlagOnly}
	TechNormMethods          = []TechNormMethod{TechNormPosGeomean, TechNormSum, TechNormMedian, TechNormRegression}
	RefGeneMethods           = []RefGeneMethod{RefGenesGenormAuto, RefGenesGenormTopN, RefGenesTopNExpressed, RefGenesAllEndogenous, RefGenesWeightedGenorm, RefGenesManual}
	GroupFilters             = []GroupFilter{GroupFilterKruskalFilter, GroupFilterKruskalFlag, GroupFilterWilcoxonFilter, GroupFilterWilcoxonFlag, GroupFilterNone}
	AdditionalNormalizations = []AdditionalNormalization{AdditionalNone, AdditionalQuantile, AdditionalStandardization}
	ExportFormats            = []ExportFormat{ExportLinear, ExportLog2, ExportLog10}
)

func ParseSampleIdentity(raw string) (SampleIdentity, bool) {
	switch normalizeToken(raw) {
	case "filename", "file", "file_name":
		return SampleIdentityFilename, true
	case "sample_id", "sampleid", "id":
		return SampleIdentitySampleID, true
	}
	return "", false
}

func ParseBackgroundPolicy(raw string) (BackgroundPolicy, bool) {
	switch normalizeToken(raw) {
	case "mean_plus_2sd", "mean+2sd", "mean+2std_of_neg_ctrls", "background":
		return BackgroundMeanPlus2SD, true
	case "max_neg", "max", "max_of_neg_controls", "background2":
		return BackgroundMaxNegCtrl, true
	case "mean_neg", "mean", "mean_of_neg_controls", "background3":
		return BackgroundMeanNegCtrl, true
	case "filtered_neg", "alternative", "backgroundalt":
		return BackgroundFilteredNegCtrl, true
	case "manual", "manual_background":
		return BackgroundManual, true
	}
	return "", false
}

func ParseLowCountCorrection(raw string) (LowCountCorrection, bool) {
	switch normalizeToken(raw) {
	case "subtract", "sustract", "substract":
		return LowCountsSubtract, true
	case "set_to_background", "set_as_background", "asim":
		return LowCountsSetToBackground, true
	case "skip", "none":
		return LowCountsSkip, true
	}
	return "", false
}

func ParseSampleRemovalPolicy(raw string) (SampleRemovalPolicy, bool) {
	switch normalizeToken(raw) {
	case "auto_remove_flagged", "auto", "yes", "remove_auto_qc_flagged":
		return SampleRemovalAutoFlagged, true
	case "keep_all", "no", "keep_all_samples":
		return SampleRemovalKeepAll, true
	case "manual_remove", "manual":
		return SampleRemovalManual, true
	case "flag_only", "flag", "flag_bad_samples":
		return SampleRemovalFlagOnly, true
	}
	return "", false
}

func ParseTechNormMethod(raw string) (TechNormMethod, bool) {
	switch normalizeToken(raw) {
	case "posgeomean", "pos_geomean", "use_posgeomean":
		return TechNormPosGeomean, true
	case "sum", "summation", "use_summation":
		return TechNormSum, true
	case "median", "use_median":
		return TechNormMedian, true
	case "regression", "use_regression":
		return TechNormRegression, true
	}
	return "", false
}

func ParseRefGeneMethod(raw string) (RefGeneMethod, bool) {
	switch normalizeToken(raw) {
	case "genorm_auto", "genorm", "refgenes", "auto":
		return RefGenesGenormAuto, true
	case "genorm_top_n", "top_genorm":
		return RefGenesGenormTopN, true
	case "top_n_expressed", "topn", "top_n":
		return RefGenesTopNExpressed, true
	case "all_endogenous", "all":
		return RefGenesAllEndogenous, true
	case "weighted_genorm", "ponderaterefgenes", "ponderated_genorm":
		return RefGenesWeightedGenorm, true
	case "manual", "manual_selection":
		return RefGenesManual, true
	}
	return "", false
}

func ParseGroupFilter(raw string) (GroupFilter, bool) {
	switch normalizeToken(raw) {
	case "kruskal_filter", "filterkrus":
		return GroupFilterKruskalFilter, true
	case "kruskal_flag", "flagkrus", "flagkurs":
		return GroupFilterKruskalFlag, true
	case "wilcoxon_filter", "filterwilcox":
		return GroupFilterWilcoxonFilter, true
	case "wilcoxon_flag", "flagwilcox":
		return GroupFilterWilcoxonFlag, true
	case "none", "nofilter", "no":
		return GroupFilterNone, true
	}
	return "", false
}

func ParseAdditionalNormalization(raw string) (AdditionalNormalization, bool) {
	switch normalizeToken(raw) {
	case "none", "no":
		return AdditionalNone, true
	case "quantile", "quantile_normalization":
		return AdditionalQuantile, true
	case "standardization", "standarization", "standardize":
		return AdditionalStandardization, true
	}
	return "", false
}

func ParseExportFormat(raw string) (ExportFormat, bool) {
	switch normalizeToken(raw) {
	case "linear", "no", "normalized":
		return ExportLinear, true
	case "log2", "2":
		return ExportLog2, true
	case "log10", "10":
		return ExportLog10, true
	}
	return "", false
}

// UsesRefGeneCount reports whether N is an input for the method.
func (m RefGeneMethod) UsesRefGeneCount() bool {
	switch m {
	case RefGenesGenormTopN, RefGenesTopNExpressed, RefGenesWeightedGenorm:
		return true
	}
	return false
}

// UsesRefGeneList reports whether the explicit gene list is an input for the method.
func (m RefGeneMethod) UsesRefGeneList() bool {
	return m == RefGenesManual
}

func (f GroupFilter) Test() string {
	switch f {
	case GroupFilterKruskalFilter, GroupFilterKruskalFlag:
		return "kruskal"
	case GroupFilterWilcoxonFilter, GroupFilterWilcoxonFlag:
		return "wilcoxon"
	}
	return ""
}

// Removes reports whether genes failing the test are dropped rather than flagged.
func (f GroupFilter) Removes() bool {
	return f == GroupFilterKruskalFilter || f == GroupFilterWilcoxonFilter
}

type Metric string

const (
	MetricFOV            Metric = "fov"
	MetricBindingDensity Metric = "binding_density"
	MetricLinearity      Metric = "linearity"
	MetricScalingFactor  Metric = "scaling_factor"
)

var Metrics = []Metric{MetricFOV, MetricBindingDensity, MetricLinearity, MetricScalingFactor}

// Bounds is an inclusive [Min, Max] range.
type Bounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (b Bounds) Valid() bool {
	return b.Min <= b.Max
}

func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Bounds) String() string {
	return strconv.FormatFloat(b.Min, 'g', -1, 64) + "," + strconv.FormatFloat(b.Max, 'g', -1, 64)
}

// ParseBounds reads "min,max".
func ParseBounds(raw string) (Bounds, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return Bounds{}, fmt.Errorf("expected min,max: %q", raw)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Bounds{}, err
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{Min: lo, Max: hi}, nil
}

// Parameters is every user-settable value of an analysis session.
type Parameters struct {
	InputFolder    string         `json:"input_folder,omitempty"`
	GroupsFile     string         `json:"groups_file,omitempty"`
	OutputFolder   string         `json:"output_folder,omitempty"`
	SampleIdentity SampleIdentity `json:"sample_identity"`

	Background         BackgroundPolicy    `json:"background"`
	ManualBackground   float64             `json:"manual_background"`
	LowCounts          LowCountCorrection  `json:"low_counts"`
	LaneRemovalPercent float64             `json:"lane_removal_percent"`
	FOV                Bounds              `json:"fov"`
	BindingDensity     Bounds              `json:"binding_density"`
	Linearity          Bounds              `json:"linearity"`
	ScalingFactor      Bounds              `json:"scaling_factor"`
	SampleRemoval      SampleRemovalPolicy `json:"sample_removal"`
	ManualRemove       []string            `json:"manual_remove,omitempty"`

	TechNormMethod          TechNormMethod `json:"technorm_method"`
	TransformLowCountsAfter bool           `json:"transform_low_counts_after"`

	HousekeepingMinCounts int                     `json:"housekeeping_min_counts"`
	IncludeBestEndogenous bool                    `json:"include_best_endogenous"`
	BestEndogenousCount   int                     `json:"best_endogenous_count"`
	RefGeneMethod         RefGeneMethod           `json:"refgene_method"`
	RefGeneCount          int                     `json:"refgene_count"`
	RefGenes              []string                `json:"refgenes,omitempty"`
	GroupFilter           GroupFilter             `json:"group_filter"`
	AdditionalNorm        AdditionalNormalization `json:"additional_normalization"`
	ExportFormat          ExportFormat            `json:"export_format"`

	OpenAfterLoad        bool `json:"open_after_load,omitempty"`
	OpenAfterQC          bool `json:"open_after_qc,omitempty"`
	OpenAfterContentNorm bool `json:"open_after_contentnorm,omitempty"`
}

const DefaultRefGeneCount = 6

func DefaultParameters() Parameters {
	return Parameters{
		SampleIdentity:          SampleIdentityFilename,
		Background:              BackgroundMeanPlus2SD,
		LowCounts:               LowCountsSubtract,
		LaneRemovalPercent:      80,
		FOV:                     Bounds{Min: 0.75, Max: 1},
		BindingDensity:          Bounds{Min: 0.1, Max: 1.8},
		Linearity:               Bounds{Min: 0.75, Max: 1},
		ScalingFactor:           Bounds{Min: 0.3, Max: 3},
		SampleRemoval:           SampleRemovalAutoFlagged,
		TechNormMethod:          TechNormPosGeomean,
		TransformLowCountsAfter: true,
		HousekeepingMinCounts:   50,
		IncludeBestEndogenous:   true,
		BestEndogenousCount:     6,
		RefGeneMethod:           RefGenesGenormAuto,
		RefGeneCount:            DefaultRefGeneCount,
		GroupFilter:             GroupFilterKruskalFilter,
		AdditionalNorm:          AdditionalNone,
		ExportFormat:            ExportLinear,
	}
}

func (p Parameters) Clone() Parameters {
	out := p
	out.ManualRemove = append([]string(nil), p.ManualRemove...)
	out.RefGenes = append([]string(nil), p.RefGenes...)
	return out
}

// Bounds returns the range configured for a QC metric.
func (p Parameters) Bounds(metric Metric) Bounds {
	switch metric {
	case MetricFOV:
		return p.FOV
	case MetricBindingDensity:
		return p.BindingDensity
	case MetricLinearity:
		return p.Linearity
	case MetricScalingFactor:
		return p.ScalingFactor
	}
	return Bounds{}
}

// BoundsRef returns a pointer to the range for metric inside p, or nil.
func (p *Parameters) BoundsRef(metric Metric) *Bounds {
	switch metric {
	case MetricFOV:
		return &p.FOV
	case MetricBindingDensity:
		return &p.BindingDensity
	case MetricLinearity:
		return &p.Linearity
	case MetricScalingFactor:
		return &p.ScalingFactor
	}
	return nil
}

// EffectiveBackground returns the manual value only when the policy is manual.
func (p Parameters) EffectiveBackground() (float64, bool) {
	if p.Background != BackgroundManual {
		return 0, false
	}
	return p.ManualBackground, true
}

// RefGeneSelection is the part of the content-normalization parameters the
// selected strategy actually consumes.
type RefGeneSelection struct {
	Method RefGeneMethod `json:"method"`
	Count  int           `json:"count,omitempty"`
	Genes  []string      `json:"genes,omitempty"`
}

// EffectiveRefGeneSelection drops N and the gene list when the method does not use them.
func (p Parameters) EffectiveRefGeneSelection() RefGeneSelection {
	sel := RefGeneSelection{Method: p.RefGeneMethod}
	if p.RefGeneMethod.UsesRefGeneCount() {
		sel.Count = p.RefGeneCount
	}
	if p.RefGeneMethod.UsesRefGeneList() {
		sel.Genes = append([]string(nil), p.RefGenes...)
	}
	return sel
}

// Effective returns a copy of p where values that the selected modes ignore
// are reset, so engines never see stale inputs.
func (p Parameters) Effective() Parameters {
	out := p.Clone()
	if out.Background != BackgroundManual {
		out.ManualBackground = 0
	}
	if out.SampleRemoval != SampleRemovalManual {
		out.ManualRemove = nil
	}
	sel := p.EffectiveRefGeneSelection()
	out.RefGeneCount = sel.Count
	out.RefGenes = sel.Genes
	if !out.IncludeBestEndogenous {
		out.BestEndogenousCount = 0
	}
	return out
}

func normalizeToken(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.ReplaceAll(value, "-", "_")
	value = strings.ReplaceAll(value, " ", "_")
	return value
}
