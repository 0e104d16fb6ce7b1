// Package paramfile reads and writes parameter presets as YAML documents
// whose nesting mirrors the dotted parameter names.
package paramfile

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"guanin/internal/state"
	"guanin/internal/types"
)

// Preset maps canonical parameter names to raw values.
type Preset map[string]any

// Read parses the preset file at path.
func Read(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	preset, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return preset, nil
}

// Parse flattens a YAML document into a Preset. Both nested sections and
// dotted keys are accepted.
func Parse(data []byte) (Preset, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := Preset{}
	flatten("", doc, out)
	return out, nil
}

func flatten(prefix string, node map[string]any, out Preset) {
	for key, value := range node {
		name := strings.ToLower(strings.TrimSpace(key))
		if prefix != "" {
			name = prefix + "." + name
		}
		if child, ok := value.(map[string]any); ok {
			flatten(name, child, out)
			continue
		}
		out[name] = value
	}
}

// Names returns the preset keys in the order Apply uses.
func (p Preset) Names() []string {
	order := map[string]int{}
	for i, param := range state.All() {
		order[param.Name] = i
	}
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		oi, iok := order[names[i]]
		oj, jok := order[names[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		}
		return names[i] < names[j]
	})
	return names
}

// Apply sets every value of p on s. The preset is validated on a scratch
// copy first, so either all values are applied or none. It returns the
// names whose value changed.
func Apply(s *state.Store, p Preset) ([]string, error) {
	p = p.mergeBounds()
	scratch := state.New(s.Params())
	for _, name := range p.Names() {
		if _, err := scratch.SetParameter(name, p[name]); err != nil {
			return nil, err
		}
	}
	var changed []string
	for _, name := range p.Names() {
		ok, err := s.SetParameter(name, p[name])
		if err != nil {
			return changed, err
		}
		if ok {
			changed = append(changed, name)
		}
	}
	return changed, nil
}

// mergeBounds turns a min/max pair given for the same metric into one bounds
// value, so a new range never fails against the old one halfway.
func (p Preset) mergeBounds() Preset {
	out := Preset{}
	for k, v := range p {
		out[k] = v
	}
	for _, metric := range types.Metrics {
		base := "qc." + string(metric)
		lo, lok := number(out[base+".min"])
		hi, hok := number(out[base+".max"])
		if !lok || !hok {
			continue
		}
		delete(out, base+".min")
		delete(out, base+".max")
		out[base] = types.Bounds{Min: lo, Max: hi}
	}
	return out
}

// number reads a bound half given as a YAML number or as text from --set or
// a quoted YAML value.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Export renders every visible parameter of params as a nested YAML
// document. Empty paths and lists are left out.
func Export(params types.Parameters) ([]byte, error) {
	doc := map[string]any{}
	for _, param := range state.Parameters() {
		value := param.Value(params)
		switch v := value.(type) {
		case string:
			if v == "" {
				continue
			}
		case []string:
			if len(v) == 0 {
				continue
			}
		}
		insert(doc, strings.Split(param.Name, "."), value)
	}
	return yaml.Marshal(doc)
}

func insert(node map[string]any, path []string, value any) {
	if len(path) == 1 {
		node[path[0]] = value
		return
	}
	child, ok := node[path[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		node[path[0]] = child
	}
	insert(child, path[1:], value)
}
