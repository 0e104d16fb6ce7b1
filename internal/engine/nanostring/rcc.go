package nanostring

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"guanin/internal/types"
)

const (
	sectionSample = "Sample_Attributes"
	sectionLane   = "Lane_Attributes"
	sectionCodes  = "Code_Summary"
)

var concentrationPattern = regexp.MustCompile(`\(([0-9.]+)\)\s*$`)

// ParseRCCFile reads one instrument file.
func ParseRCCFile(path string) (types.Lane, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Lane{}, err
	}
	defer f.Close()
	lane, err := ParseRCC(f)
	if err != nil {
		return types.Lane{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	lane.File = path
	return lane, nil
}

// ParseRCC reads the tagged sections of an RCC file. Unknown sections and
// attributes are ignored.
func ParseRCC(r io.Reader) (types.Lane, error) {
	var lane types.Lane
	section := ""
	sawCodes := false
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "</") {
			section = ""
			continue
		}
		if strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">") {
			section = strings.Trim(line, "<>")
			if section == sectionCodes {
				sawCodes = true
			}
			continue
		}
		key, value, _ := strings.Cut(line, ",")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch section {
		case sectionSample:
			if key == "ID" {
				lane.SampleID = value
			}
		case sectionLane:
			if err := applyLaneAttribute(&lane, key, value); err != nil {
				return types.Lane{}, fmt.Errorf("line %d: %w", lineNo, err)
			}
		case sectionCodes:
			if key == "CodeClass" {
				continue
			}
			probe, err := parseProbe(line)
			if err != nil {
				return types.Lane{}, fmt.Errorf("line %d: %w", lineNo, err)
			}
			lane.Probes = append(lane.Probes, probe)
		}
	}
	if err := scanner.Err(); err != nil {
		return types.Lane{}, err
	}
	if !sawCodes || len(lane.Probes) == 0 {
		return types.Lane{}, errors.New("no Code_Summary counts")
	}
	return lane, nil
}

func applyLaneAttribute(lane *types.Lane, key, value string) error {
	var err error
	switch key {
	case "ID":
		if value != "" {
			lane.LaneNumber, err = strconv.Atoi(value)
		}
	case "FovCount":
		lane.FovCount, err = strconv.Atoi(value)
	case "FovCounted":
		lane.FovCounted, err = strconv.Atoi(value)
	case "BindingDensity":
		lane.BindingDensity, err = strconv.ParseFloat(value, 64)
	}
	if err != nil {
		return fmt.Errorf("lane attribute %s: %w", key, err)
	}
	return nil
}

func parseProbe(line string) (types.Probe, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 4 {
		return types.Probe{}, fmt.Errorf("expected CodeClass,Name,Accession,Count: %q", line)
	}
	count, err := strconv.ParseFloat(strings.TrimSpace(parts[len(parts)-1]), 64)
	if err != nil {
		return types.Probe{}, fmt.Errorf("count for %s: %w", parts[1], err)
	}
	return types.Probe{
		CodeClass: canonicalCodeClass(parts[0]),
		Name:      strings.TrimSpace(parts[1]),
		Accession: strings.TrimSpace(strings.Join(parts[2:len(parts)-1], ",")),
		Count:     count,
	}, nil
}

func canonicalCodeClass(raw string) string {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "positive":
		return types.CodeClassPositive
	case "negative":
		return types.CodeClassNegative
	case "endogenous":
		return types.CodeClassEndogenous
	case "housekeeping":
		return types.CodeClassHousekeeping
	}
	return raw
}

// concentration extracts the spike-in amount from names like POS_A(128).
func concentration(name string) (float64, bool) {
	m := concentrationPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// laneIdentity names a lane by file base name or by sample ID.
func laneIdentity(lane types.Lane, mode types.SampleIdentity) string {
	if mode == types.SampleIdentitySampleID && strings.TrimSpace(lane.SampleID) != "" {
		return strings.TrimSpace(lane.SampleID)
	}
	base := filepath.Base(lane.File)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
