package state

import (
	"fmt"
	"strings"

	"guanin/internal/sessionpaths"
	"guanin/internal/types"
)

type Kind string

const (
	KindPath   Kind = "path"
	KindEnum   Kind = "enum"
	KindFloat  Kind = "float"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindBounds Kind = "bounds"
)

// Parameter describes one settable attribute of a session.
type Parameter struct {
	Name    string
	Kind    Kind
	Section string
	Label   string
	Choices []string
	// Hidden parameters are settable but not listed; the bound pairs are
	// listed through their .min/.max halves.
	Hidden bool

	get func(p *types.Parameters) any
	set func(p *types.Parameters, value any) error
}

// Value reads the parameter out of p.
func (d Parameter) Value(p types.Parameters) any {
	return d.get(&p)
}

// Format renders the parameter's current value in p as text.
func (d Parameter) Format(p types.Parameters) string {
	return formatValue(d.get(&p))
}

var registry = buildRegistry()

// Parameters returns the visible parameters in presentation order.
func Parameters() []Parameter {
	out := make([]Parameter, 0, len(registry))
	for _, d := range registry {
		if d.Hidden {
			continue
		}
		out = append(out, d)
	}
	return out
}

// All returns every parameter, hidden ones included, in the order values
// must be applied: a strategy comes before the fields it resets.
func All() []Parameter {
	return append([]Parameter(nil), registry...)
}

// Lookup finds a parameter by canonical name.
func Lookup(name string) (Parameter, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, d := range registry {
		if d.Name == name {
			return d, true
		}
	}
	return Parameter{}, false
}

func choices[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func pathParam(name, section, label string, field func(p *types.Parameters) *string) Parameter {
	return Parameter{
		Name: name, Kind: KindPath, Section: section, Label: label,
		get: func(p *types.Parameters) any { return *field(p) },
		set: func(p *types.Parameters, value any) error {
			raw, err := toString(name, value)
			if err != nil {
				return err
			}
			resolved, err := sessionpaths.ResolveFolder(raw)
			if err != nil {
				return invalid(name, value, err.Error())
			}
			*field(p) = resolved
			return nil
		},
	}
}

func enumParam[T ~string](name, section, label string, parse func(string) (T, bool), values []T, field func(p *types.Parameters) *T) Parameter {
	return Parameter{
		Name: name, Kind: KindEnum, Section: section, Label: label, Choices: choices(values),
		get: func(p *types.Parameters) any { return string(*field(p)) },
		set: func(p *types.Parameters, value any) error {
			v, err := toEnum(name, value, parse, values)
			if err != nil {
				return err
			}
			*field(p) = v
			return nil
		},
	}
}

func floatParam(name, section, label string, lo, hi float64, field func(p *types.Parameters) *float64) Parameter {
	return Parameter{
		Name: name, Kind: KindFloat, Section: section, Label: label,
		get: func(p *types.Parameters) any { return *field(p) },
		set: func(p *types.Parameters, value any) error {
			v, err := toFloat(name, value)
			if err != nil {
				return err
			}
			if v < lo || v > hi {
				return invalid(name, value, fmt.Sprintf("must be within [%s, %s]", formatValue(lo), formatValue(hi)))
			}
			*field(p) = v
			return nil
		},
	}
}

func intParam(name, section, label string, lo int, field func(p *types.Parameters) *int) Parameter {
	return Parameter{
		Name: name, Kind: KindInt, Section: section, Label: label,
		get: func(p *types.Parameters) any { return *field(p) },
		set: func(p *types.Parameters, value any) error {
			v, err := toInt(name, value)
			if err != nil {
				return err
			}
			if v < lo {
				return invalid(name, value, fmt.Sprintf("must be >= %d", lo))
			}
			*field(p) = v
			return nil
		},
	}
}

func boolParam(name, section, label string, field func(p *types.Parameters) *bool) Parameter {
	return Parameter{
		Name: name, Kind: KindBool, Section: section, Label: label,
		get: func(p *types.Parameters) any { return *field(p) },
		set: func(p *types.Parameters, value any) error {
			v, err := toBool(name, value)
			if err != nil {
				return err
			}
			*field(p) = v
			return nil
		},
	}
}

func listParam(name, section, label string, field func(p *types.Parameters) *[]string) Parameter {
	return Parameter{
		Name: name, Kind: KindList, Section: section, Label: label,
		get: func(p *types.Parameters) any { return append([]string(nil), *field(p)...) },
		set: func(p *types.Parameters, value any) error {
			v, err := toList(name, value)
			if err != nil {
				return err
			}
			*field(p) = v
			return nil
		},
	}
}

// boundParams returns the pair setter plus the two single-sided halves. A
// half that would cross the other side is rejected.
func boundParams(metric types.Metric, label string) []Parameter {
	base := "qc." + string(metric)
	pair := Parameter{
		Name: base, Kind: KindBounds, Section: "qc", Label: label, Hidden: true,
		get: func(p *types.Parameters) any { return *p.BoundsRef(metric) },
		set: func(p *types.Parameters, value any) error {
			var b types.Bounds
			switch v := value.(type) {
			case types.Bounds:
				b = v
			case string:
				parsed, err := types.ParseBounds(v)
				if err != nil {
					return invalid(base, value, err.Error())
				}
				b = parsed
			default:
				return invalid(base, value, "expected min,max")
			}
			if _, err := toFloat(base, b.Min); err != nil {
				return err
			}
			if _, err := toFloat(base, b.Max); err != nil {
				return err
			}
			if !b.Valid() {
				return invalid(base, value, "min must not exceed max")
			}
			*p.BoundsRef(metric) = b
			return nil
		},
	}
	lower := Parameter{
		Name: base + ".min", Kind: KindFloat, Section: "qc", Label: label + " min",
		get: func(p *types.Parameters) any { return p.BoundsRef(metric).Min },
		set: func(p *types.Parameters, value any) error {
			v, err := toFloat(base+".min", value)
			if err != nil {
				return err
			}
			b := p.BoundsRef(metric)
			if v > b.Max {
				return invalid(base+".min", value, fmt.Sprintf("exceeds current max %s", formatValue(b.Max)))
			}
			b.Min = v
			return nil
		},
	}
	upper := Parameter{
		Name: base + ".max", Kind: KindFloat, Section: "qc", Label: label + " max",
		get: func(p *types.Parameters) any { return p.BoundsRef(metric).Max },
		set: func(p *types.Parameters, value any) error {
			v, err := toFloat(base+".max", value)
			if err != nil {
				return err
			}
			b := p.BoundsRef(metric)
			if v < b.Min {
				return invalid(base+".max", value, fmt.Sprintf("is below current min %s", formatValue(b.Min)))
			}
			b.Max = v
			return nil
		},
	}
	return []Parameter{pair, lower, upper}
}

func buildRegistry() []Parameter {
	var out []Parameter
	out = append(out,
		pathParam("input.folder", "input", "RCC folder", func(p *types.Parameters) *string { return &p.InputFolder }),
		pathParam("input.groups_file", "input", "Groups file", func(p *types.Parameters) *string { return &p.GroupsFile }),
		pathParam("output.folder", "output", "Output folder", func(p *types.Parameters) *string { return &p.OutputFolder }),
		enumParam("sample.identity", "input", "Sample identity", types.ParseSampleIdentity, types.SampleIdentities,
			func(p *types.Parameters) *types.SampleIdentity { return &p.SampleIdentity }),
		enumParam("qc.background", "qc", "Background", types.ParseBackgroundPolicy, types.BackgroundPolicies,
			func(p *types.Parameters) *types.BackgroundPolicy { return &p.Background }),
		floatParam("qc.manual_background", "qc", "Manual background", 0, 1e12,
			func(p *types.Parameters) *float64 { return &p.ManualBackground }),
		enumParam("qc.low_counts", "qc", "Low counts", types.ParseLowCountCorrection, types.LowCountCorrections,
			func(p *types.Parameters) *types.LowCountCorrection { return &p.LowCounts }),
		floatParam("qc.lane_removal_percent", "qc", "Max % below background", 0, 100,
			func(p *types.Parameters) *float64 { return &p.LaneRemovalPercent }),
	)
	out = append(out, boundParams(types.MetricFOV, "FOV")...)
	out = append(out, boundParams(types.MetricBindingDensity, "Binding density")...)
	out = append(out, boundParams(types.MetricLinearity, "Linearity")...)
	out = append(out, boundParams(types.MetricScalingFactor, "Scaling factor")...)
	out = append(out,
		enumParam("qc.sample_removal", "qc", "Sample removal", types.ParseSampleRemovalPolicy, types.SampleRemovalPolicies,
			func(p *types.Parameters) *types.SampleRemovalPolicy { return &p.SampleRemoval }),
		listParam("qc.manual_remove", "qc", "Lanes to remove", func(p *types.Parameters) *[]string { return &p.ManualRemove }),
		enumParam("technorm.method", "technorm", "Method", types.ParseTechNormMethod, types.TechNormMethods,
			func(p *types.Parameters) *types.TechNormMethod { return &p.TechNormMethod }),
		boolParam("technorm.transform_low_counts_after", "technorm", "Low counts after scaling",
			func(p *types.Parameters) *bool { return &p.TransformLowCountsAfter }),
		intParam("contentnorm.housekeeping_min_counts", "contentnorm", "Housekeeping min counts", 0,
			func(p *types.Parameters) *int { return &p.HousekeepingMinCounts }),
		boolParam("contentnorm.include_best_endogenous", "contentnorm", "Include best endogenous",
			func(p *types.Parameters) *bool { return &p.IncludeBestEndogenous }),
		intParam("contentnorm.best_endogenous_count", "contentnorm", "Best endogenous count", 0,
			func(p *types.Parameters) *int { return &p.BestEndogenousCount }),
		refGeneMethodParam(),
		intParam("contentnorm.refgenes.n", "contentnorm", "Reference genes N", 1,
			func(p *types.Parameters) *int { return &p.RefGeneCount }),
		listParam("contentnorm.refgenes.genes", "contentnorm", "Reference genes", func(p *types.Parameters) *[]string { return &p.RefGenes }),
		enumParam("contentnorm.group_filter", "contentnorm", "Group filter", types.ParseGroupFilter, types.GroupFilters,
			func(p *types.Parameters) *types.GroupFilter { return &p.GroupFilter }),
		enumParam("contentnorm.additional", "contentnorm", "Additional normalization", types.ParseAdditionalNormalization, types.AdditionalNormalizations,
			func(p *types.Parameters) *types.AdditionalNormalization { return &p.AdditionalNorm }),
		enumParam("export.format", "output", "Export format", types.ParseExportFormat, types.ExportFormats,
			func(p *types.Parameters) *types.ExportFormat { return &p.ExportFormat }),
		boolParam("report.open_after_load", "output", "Show raw QC after load", func(p *types.Parameters) *bool { return &p.OpenAfterLoad }),
		boolParam("report.open_after_qc", "output", "Show QC report", func(p *types.Parameters) *bool { return &p.OpenAfterQC }),
		boolParam("report.open_after_contentnorm", "output", "Show normalization report", func(p *types.Parameters) *bool { return &p.OpenAfterContentNorm }),
	)
	return out
}

// refGeneMethodParam clears the gene list and resets N whenever the method
// actually changes, so values entered for one strategy never leak into another.
func refGeneMethodParam() Parameter {
	d := enumParam("contentnorm.refgenes.method", "contentnorm", "Reference gene strategy", types.ParseRefGeneMethod, types.RefGeneMethods,
		func(p *types.Parameters) *types.RefGeneMethod { return &p.RefGeneMethod })
	base := d.set
	d.set = func(p *types.Parameters, value any) error {
		prev := p.RefGeneMethod
		if err := base(p, value); err != nil {
			return err
		}
		if p.RefGeneMethod != prev {
			p.RefGenes = nil
			p.RefGeneCount = types.DefaultRefGeneCount
		}
		return nil
	}
	return d
}
