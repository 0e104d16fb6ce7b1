package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	appDirName = ".guanin"
	homeEnvVar = "GUANIN_HOME"
)

// DataDir returns the base data directory. GUANIN_HOME wins, then
// $XDG_DATA_HOME/guanin, then ~/.guanin.
func DataDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(homeEnvVar)); dir != "" {
		return dir, nil
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, "guanin"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDirName), nil
}

func dataPath(name string) (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, name), nil
}

// ConfigPath returns the path to config.toml.
func ConfigPath() (string, error) {
	return dataPath("config.toml")
}

// LogPath returns the application log shared by the CLI and the UI.
func LogPath() (string, error) {
	return dataPath("guanin.log")
}

// HistoryDBPath returns the bbolt file holding stage-run history.
func HistoryDBPath() (string, error) {
	return dataPath("history.db")
}

// HistoryFilePath returns the JSON file used by the file history backend.
func HistoryFilePath() (string, error) {
	return dataPath("history.json")
}

// DefaultOutputDir is used when neither config nor flags name an output folder.
func DefaultOutputDir() (string, error) {
	return dataPath("output")
}
