package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// AppDir is the directory name used under the platform config roots.
const AppDir = "nfrx-browser"

// DefaultConfigPath returns the default config file path for the given file
// name (e.g. "browser.yaml").
func DefaultConfigPath(name string) string {
	home, _ := os.UserHomeDir()
	return ResolveConfigPath(runtime.GOOS, home, os.Getenv("ProgramData"), os.Getenv("XDG_CONFIG_HOME"), name)
}

// ResolveConfigPath constructs a config file path for the given OS and base
// directories. On Linux a per-user XDG directory wins over /etc when set.
func ResolveConfigPath(goos, home, programData, xdgConfig, name string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDir, name)
	case "windows":
		if programData == "" {
			programData = "C:/ProgramData"
		}
		programData = strings.TrimRight(programData, "\\/")
		return filepath.Join(programData, AppDir, name)
	default:
		if xdgConfig != "" {
			return filepath.Join(xdgConfig, AppDir, name)
		}
		return filepath.Join("/etc", AppDir, name)
	}
}

// GetEnv returns the value of key or def when the variable is unset or blank.
func GetEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// SplitComma splits a comma separated list, trimming blanks and empty items.
func SplitComma(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
