package sessionpaths

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// InstrumentExt is the extension of nanostring instrument files. Matching is
// case-insensitive.
const InstrumentExt = ".rcc"

var ErrFolderRequired = errors.New("folder is required")

type DirChecker interface {
	Stat(name string) (os.FileInfo, error)
}

type osDirChecker struct{}

func (osDirChecker) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func OSDirChecker() DirChecker {
	return osDirChecker{}
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(raw string) (string, error) {
	path := strings.TrimSpace(raw)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// ResolveFolder expands, absolutizes and cleans a user-supplied folder. An
// empty value stays empty.
func ResolveFolder(raw string) (string, error) {
	path, err := ExpandHome(raw)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

func ValidateDirectory(path string, checker DirChecker) error {
	if strings.TrimSpace(path) == "" {
		return ErrFolderRequired
	}
	if checker == nil {
		checker = OSDirChecker()
	}
	info, err := checker.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}
	return nil
}

// CheckCreatable reports whether path is a directory or could be created as
// one: the nearest existing ancestor must be a directory. Nothing is created.
func CheckCreatable(path string, checker DirChecker) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return ErrFolderRequired
	}
	if checker == nil {
		checker = OSDirChecker()
	}
	current := filepath.Clean(path)
	for {
		info, err := checker.Stat(current)
		if err == nil {
			if !info.IsDir() {
				if current == filepath.Clean(path) {
					return errors.New("path is not a directory")
				}
				return errors.New("parent " + current + " is not a directory")
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return err
		}
		current = parent
	}
}

// ListInstrumentFiles returns the instrument files directly inside folder,
// sorted by name.
func ListInstrumentFiles(folder string) ([]string, error) {
	if err := ValidateDirectory(folder, nil); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != InstrumentExt {
			continue
		}
		out = append(out, filepath.Join(folder, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}
