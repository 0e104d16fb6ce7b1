package state

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"guanin/internal/types"
)

func invalid(name string, value any, reason string) error {
	return &types.ConfigValidationError{Param: name, Value: value, Reason: reason}
}

func toString(name string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case fmt.Stringer:
		return strings.TrimSpace(v.String()), nil
	case nil:
		return "", nil
	}
	return "", invalid(name, value, "expected a string")
}

func toFloat(name string, value any) (float64, error) {
	var out float64
	switch v := value.(type) {
	case float64:
		out = v
	case float32:
		out = float64(v)
	case int:
		out = float64(v)
	case int64:
		out = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, invalid(name, value, "expected a number")
		}
		out = parsed
	default:
		return 0, invalid(name, value, "expected a number")
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, invalid(name, value, "must be finite")
	}
	return out, nil
}

func toInt(name string, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, invalid(name, value, "expected an integer")
		}
		return int(v), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, invalid(name, value, "expected an integer")
		}
		return parsed, nil
	}
	return 0, invalid(name, value, "expected an integer")
}

func toBool(name string, value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "yes", "y", "on":
			return true, nil
		case "0", "f", "false", "no", "n", "off":
			return false, nil
		}
	}
	return false, invalid(name, value, "expected a boolean")
}

// toList accepts a []string or a comma separated string. Entries are trimmed,
// blanks dropped and duplicates removed, first occurrence wins.
func toList(name string, value any) ([]string, error) {
	var raw []string
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			raw = append(raw, formatValue(item))
		}
	case string:
		raw = strings.Split(v, ",")
	default:
		return nil, invalid(name, value, "expected a list of names")
	}
	var out []string
	seen := map[string]struct{}{}
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}

// toEnum accepts the enum value itself, any token its parser knows, or a list
// index into the ordered choice table.
func toEnum[T ~string](name string, value any, parse func(string) (T, bool), choices []T) (T, error) {
	var zero T
	switch v := value.(type) {
	case T:
		for _, choice := range choices {
			if choice == v {
				return v, nil
			}
		}
	case string:
		if parsed, ok := parse(v); ok {
			return parsed, nil
		}
	case int:
		if v >= 0 && v < len(choices) {
			return choices[v], nil
		}
		return zero, invalid(name, value, fmt.Sprintf("index out of range 0..%d", len(choices)-1))
	}
	return zero, invalid(name, value, "expected one of "+joinChoices(choices))
}

func joinChoices[T ~string](choices []T) string {
	out := make([]string, len(choices))
	for i, choice := range choices {
		out[i] = string(choice)
	}
	return strings.Join(out, ", ")
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case types.Bounds:
		return v.String()
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", value)
}
