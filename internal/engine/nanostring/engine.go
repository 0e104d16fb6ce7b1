// Package nanostring is the reference engine: it reads RCC files and runs
// QC, technical normalization, reference gene normalization and evaluation.
package nanostring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"guanin/internal/engine"
	"guanin/internal/logging"
	"guanin/internal/sessionpaths"
	"guanin/internal/types"
)

const significance = 0.05

var (
	errNotLoaded       = errors.New("no loaded data set in snapshot")
	errNoQC            = errors.New("no QC result in snapshot")
	errNoTechNorm      = errors.New("no technical normalization result in snapshot")
	errNoContentNorm   = errors.New("no content normalization result in snapshot")
	errNoPositiveCtrls = errors.New("no positive control probes")
)

type Engine struct {
	logger logging.Logger
}

var _ engine.Engine = (*Engine)(nil)

type Option func(*Engine)

func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{logger: logging.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Load parses every RCC file in the input folder. Files that fail to parse
// are skipped with a warning; a folder with no usable file is a LoadError.
func (e *Engine) Load(_ context.Context, snap engine.Snapshot) (*types.LoadArtifacts, error) {
	folder := snap.Params.InputFolder
	if folder == "" {
		return nil, &types.LoadError{Reason: "input folder is not set"}
	}
	files, err := sessionpaths.ListInstrumentFiles(folder)
	if err != nil {
		return nil, &types.LoadError{Folder: folder, Reason: "cannot read folder", Err: err}
	}
	if len(files) == 0 {
		return nil, &types.LoadError{Folder: folder, Reason: "no RCC files found"}
	}

	out := &types.LoadArtifacts{Dataset: &types.Dataset{}}
	seen := map[string]int{}
	for _, file := range files {
		lane, err := ParseRCCFile(file)
		if err != nil {
			out.Skipped = append(out.Skipped, file)
			out.Warnings = append(out.Warnings, err.Error())
			e.logger.Warn("rcc skipped", logging.F("file", file), logging.F("error", err))
			continue
		}
		id := laneIdentity(lane, snap.Params.SampleIdentity)
		if n := seen[id]; n > 0 {
			out.Warnings = append(out.Warnings, fmt.Sprintf("duplicate lane identity %s in %s", id, file))
			id = fmt.Sprintf("%s_%d", id, n+1)
		}
		seen[laneIdentity(lane, snap.Params.SampleIdentity)]++
		lane.ID = id
		out.Files = append(out.Files, file)
		out.Dataset.Lanes = append(out.Dataset.Lanes, lane)
	}
	if len(out.Dataset.Lanes) == 0 {
		return nil, &types.LoadError{Folder: folder, Reason: "no readable RCC files"}
	}
	out.Warnings = append(out.Warnings, probeSetWarnings(out.Dataset.Lanes)...)

	if snap.Params.GroupsFile != "" {
		groups, err := ReadGroups(snap.Params.GroupsFile)
		if err != nil {
			return nil, fmt.Errorf("read groups file %s: %w", snap.Params.GroupsFile, err)
		}
		out.Dataset.Groups = map[string]string{}
		var missing []string
		for _, lane := range out.Dataset.Lanes {
			group, ok := groups[lane.ID]
			if !ok {
				group, ok = groups[lane.SampleID]
			}
			if !ok {
				missing = append(missing, lane.ID)
				continue
			}
			out.Dataset.Groups[lane.ID] = group
		}
		if len(missing) > 0 {
			out.Warnings = append(out.Warnings, "lanes without a group: "+joinNames(missing))
		}
	}
	e.logger.Info("rcc files loaded",
		logging.F("lanes", len(out.Dataset.Lanes)),
		logging.F("skipped", len(out.Skipped)),
	)
	return out, nil
}

// probeSetWarnings reports probes that are not present in every lane.
func probeSetWarnings(lanes []types.Lane) []string {
	count := map[string]int{}
	for _, lane := range lanes {
		for _, probe := range lane.Probes {
			count[probe.Name]++
		}
	}
	var partial []string
	for name, n := range count {
		if n != len(lanes) {
			partial = append(partial, name)
		}
	}
	if len(partial) == 0 {
		return nil
	}
	sort.Strings(partial)
	return []string{"probes missing from some lanes, counted as 0: " + joinNames(partial)}
}

// buildMatrix lays out lanes as columns in the given order. Probes follow the
// order of the first lane, then any probe first seen later.
func buildMatrix(lanes []types.Lane) *types.CountMatrix {
	m := &types.CountMatrix{}
	index := map[string]int{}
	for col, lane := range lanes {
		m.Lanes = append(m.Lanes, lane.ID)
		for _, probe := range lane.Probes {
			row, ok := index[probe.Name]
			if !ok {
				row = len(m.Rows)
				index[probe.Name] = row
				m.Rows = append(m.Rows, types.GeneRow{
					Name:      probe.Name,
					CodeClass: probe.CodeClass,
					Values:    make([]float64, len(lanes)),
				})
			}
			m.Rows[row].Values[col] = probe.Count
		}
	}
	return m
}

// keptLanes returns the loaded lanes QC let through, in load order.
func keptLanes(load *types.LoadArtifacts, qc *types.QCArtifacts) []types.Lane {
	keep := map[string]struct{}{}
	for _, id := range qc.KeptLanes {
		keep[id] = struct{}{}
	}
	var out []types.Lane
	for _, lane := range load.Dataset.Lanes {
		if _, ok := keep[lane.ID]; ok {
			out = append(out, lane)
		}
	}
	return out
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
