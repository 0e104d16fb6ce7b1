package main

import (
	"encoding/json"
	"errors"
	"flag"
	"io"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"guanin/internal/config"
)

const (
	configFormatJSON = "json"
	configFormatTOML = "toml"
)

type ConfigCommand struct {
	stdout     io.Writer
	stderr     io.Writer
	loadConfig func() (config.Config, error)
}

type configOutput struct {
	ConfigPath string                `json:"config_path,omitempty" toml:"config_path,omitempty"`
	LogPath    string                `json:"log_path,omitempty" toml:"log_path,omitempty"`
	Logging    effectiveLoggingOut   `json:"logging" toml:"logging"`
	History    effectiveHistoryOut   `json:"history" toml:"history"`
	Defaults   config.DefaultsConfig `json:"defaults" toml:"defaults"`
}

type effectiveLoggingOut struct {
	Level string `json:"level" toml:"level"`
}

type effectiveHistoryOut struct {
	Backend string `json:"backend" toml:"backend"`
	Path    string `json:"path,omitempty" toml:"path,omitempty"`
}

func NewConfigCommand(stdout, stderr io.Writer, loadConfig func() (config.Config, error)) *ConfigCommand {
	if loadConfig == nil {
		loadConfig = config.Load
	}
	return &ConfigCommand{
		stdout:     stdout,
		stderr:     stderr,
		loadConfig: loadConfig,
	}
}

func (c *ConfigCommand) Run(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	defaults := fs.Bool("default", false, "print default config values")
	format := fs.String("format", configFormatJSON, "output format: json|toml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resolvedFormat, err := resolveConfigFormat(*format)
	if err != nil {
		return err
	}
	cfg := config.Default()
	if !*defaults {
		cfg, err = c.loadConfig()
		if err != nil {
			return err
		}
	}
	payload, err := buildConfigOutput(cfg)
	if err != nil {
		return err
	}
	return writeConfigOutput(c.stdout, resolvedFormat, payload)
}

func buildConfigOutput(cfg config.Config) (configOutput, error) {
	out := configOutput{
		Logging:  effectiveLoggingOut{Level: cfg.LogLevel()},
		History:  effectiveHistoryOut{Backend: cfg.HistoryBackend()},
		Defaults: cfg.Defaults,
	}
	var err error
	if out.ConfigPath, err = config.ConfigPath(); err != nil {
		return configOutput{}, err
	}
	if out.LogPath, err = config.LogPath(); err != nil {
		return configOutput{}, err
	}
	if out.History.Backend != config.HistoryBackendNone {
		if out.History.Path, err = cfg.HistoryPath(); err != nil {
			return configOutput{}, err
		}
	}
	return out, nil
}

func resolveConfigFormat(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", configFormatJSON:
		return configFormatJSON, nil
	case configFormatTOML:
		return configFormatTOML, nil
	default:
		return "", errors.New("format must be json or toml")
	}
}

func writeConfigOutput(out io.Writer, format string, payload any) error {
	if format == configFormatTOML {
		data, err := toml.Marshal(payload)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
