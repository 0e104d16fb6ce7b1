package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"guanin/internal/sessionpaths"
	"guanin/internal/types"
)

const (
	HistoryBackendBbolt = "bbolt"
	HistoryBackendFile  = "file"
	HistoryBackendNone  = "none"
)

type Config struct {
	Logging  LoggingConfig  `toml:"logging" json:"logging,omitempty"`
	History  HistoryConfig  `toml:"history" json:"history,omitempty"`
	Defaults DefaultsConfig `toml:"defaults" json:"defaults,omitempty"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level,omitempty"`
}

type HistoryConfig struct {
	Backend string `toml:"backend" json:"backend,omitempty"`
	Path    string `toml:"path" json:"path,omitempty"`
}

// DefaultsConfig seeds a new session. Only simple defaults live here; a
// session never writes back to this file.
type DefaultsConfig struct {
	OutputFolder   string `toml:"output_folder" json:"output_folder,omitempty"`
	SampleIdentity string `toml:"sample_identity" json:"sample_identity,omitempty"`
	Background     string `toml:"background" json:"background,omitempty"`
	LowCounts      string `toml:"low_counts" json:"low_counts,omitempty"`
	TechNormMethod string `toml:"technorm_method" json:"technorm_method,omitempty"`
	RefGeneMethod  string `toml:"refgene_method" json:"refgene_method,omitempty"`
	GroupFilter    string `toml:"group_filter" json:"group_filter,omitempty"`
	ExportFormat   string `toml:"export_format" json:"export_format,omitempty"`
	ParamsFile     string `toml:"params_file" json:"params_file,omitempty"`
}

func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		History: HistoryConfig{Backend: HistoryBackendBbolt},
	}
}

// Load reads config.toml from the data directory. A missing or empty file
// yields the defaults.
func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFromPath(path)
}

func LoadFromPath(path string) (Config, error) {
	cfg := Default()
	if err := readTOML(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) LogLevel() string {
	level := strings.TrimSpace(c.Logging.Level)
	if level == "" {
		return "info"
	}
	return level
}

func (c Config) HistoryBackend() string {
	switch strings.ToLower(strings.TrimSpace(c.History.Backend)) {
	case "", HistoryBackendBbolt:
		return HistoryBackendBbolt
	case HistoryBackendFile:
		return HistoryBackendFile
	case HistoryBackendNone, "off", "disabled":
		return HistoryBackendNone
	default:
		return strings.ToLower(strings.TrimSpace(c.History.Backend))
	}
}

// HistoryPath resolves the history location for the configured backend.
func (c Config) HistoryPath() (string, error) {
	if path := strings.TrimSpace(c.History.Path); path != "" {
		return sessionpaths.ExpandHome(path)
	}
	if c.HistoryBackend() == HistoryBackendFile {
		return HistoryFilePath()
	}
	return HistoryDBPath()
}

// Parameters returns the session defaults with the [defaults] overrides applied.
func (c Config) Parameters() (types.Parameters, error) {
	p := types.DefaultParameters()
	d := c.Defaults

	out := strings.TrimSpace(d.OutputFolder)
	if out == "" {
		dir, err := DefaultOutputDir()
		if err != nil {
			return types.Parameters{}, err
		}
		out = dir
	}
	out, err := sessionpaths.ExpandHome(out)
	if err != nil {
		return types.Parameters{}, err
	}
	p.OutputFolder = out

	var errs []error
	if raw := strings.TrimSpace(d.SampleIdentity); raw != "" {
		if v, ok := types.ParseSampleIdentity(raw); ok {
			p.SampleIdentity = v
		} else {
			errs = append(errs, invalidDefault("sample_identity", raw))
		}
	}
	if raw := strings.TrimSpace(d.Background); raw != "" {
		if v, ok := types.ParseBackgroundPolicy(raw); ok {
			p.Background = v
		} else {
			errs = append(errs, invalidDefault("background", raw))
		}
	}
	if raw := strings.TrimSpace(d.LowCounts); raw != "" {
		if v, ok := types.ParseLowCountCorrection(raw); ok {
			p.LowCounts = v
		} else {
			errs = append(errs, invalidDefault("low_counts", raw))
		}
	}
	if raw := strings.TrimSpace(d.TechNormMethod); raw != "" {
		if v, ok := types.ParseTechNormMethod(raw); ok {
			p.TechNormMethod = v
		} else {
			errs = append(errs, invalidDefault("technorm_method", raw))
		}
	}
	if raw := strings.TrimSpace(d.RefGeneMethod); raw != "" {
		if v, ok := types.ParseRefGeneMethod(raw); ok {
			p.RefGeneMethod = v
		} else {
			errs = append(errs, invalidDefault("refgene_method", raw))
		}
	}
	if raw := strings.TrimSpace(d.GroupFilter); raw != "" {
		if v, ok := types.ParseGroupFilter(raw); ok {
			p.GroupFilter = v
		} else {
			errs = append(errs, invalidDefault("group_filter", raw))
		}
	}
	if raw := strings.TrimSpace(d.ExportFormat); raw != "" {
		if v, ok := types.ParseExportFormat(raw); ok {
			p.ExportFormat = v
		} else {
			errs = append(errs, invalidDefault("export_format", raw))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return types.Parameters{}, err
	}
	return p, nil
}

// ParamsFile returns the preset file named in [defaults], if any.
func (c Config) ParamsFile() (string, error) {
	raw := strings.TrimSpace(c.Defaults.ParamsFile)
	if raw == "" {
		return "", nil
	}
	return sessionpaths.ExpandHome(raw)
}

func invalidDefault(key, raw string) error {
	return &types.ConfigValidationError{Param: "defaults." + key, Value: raw, Reason: "unknown value"}
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

// Marshal renders cfg as TOML.
func Marshal(cfg Config) ([]byte, error) {
	return toml.Marshal(cfg)
}
