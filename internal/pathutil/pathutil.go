// Package pathutil has small path helpers shared by the CLI and tools.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHomePath expands a leading "~" or "~/" to the user's home
// directory and cleans the result. Paths that do not start with a
// tilde are cleaned as-is.
func ExpandHomePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return filepath.Clean(p)
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return filepath.Clean(p)
	}
	if p == "~" {
		return filepath.Clean(home)
	}
	return filepath.Clean(filepath.Join(home, strings.TrimPrefix(p, "~/")))
}

// EnsureParentDir creates the parent directory of path with 0700.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o700)
}
