package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quarrylabs/warden/guard"
)

// ReadFileTool reads local text files. Reads can be restricted by a
// deny list (basenames or path suffixes) and an allowed-dirs allowlist.
type ReadFileTool struct {
	MaxBytes    int64
	DenyPaths   []string
	AllowedDirs []string
}

// ReadFileOptions configures a ReadFileTool. Zero values fall back to
// a 256 KiB cap with no path restrictions.
type ReadFileOptions struct {
	MaxBytes    int64
	DenyPaths   []string
	AllowedDirs []string
}

func NewReadFileTool(opts ReadFileOptions) *ReadFileTool {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 256 * 1024
	}
	return &ReadFileTool{
		MaxBytes:    opts.MaxBytes,
		DenyPaths:   opts.DenyPaths,
		AllowedDirs: opts.AllowedDirs,
	}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Reads a local text file and returns its content, truncated to a maximum size."
}

func (t *ReadFileTool) Tier() guard.PermissionTier { return guard.TierLow }

func (t *ReadFileTool) ParameterSchema() string {
	return schemaJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to read."},
		},
		"required": []string{"path"},
	})
}

func (t *ReadFileTool) Execute(_ context.Context, params map[string]any) (string, error) {
	path := paramString(params, "path")
	if path == "" {
		return "", fmt.Errorf("missing required param: path")
	}

	// Check the raw path for ".." components before cleaning; Clean
	// resolves them in absolute paths and would hide the traversal.
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", fmt.Errorf("path traversal not allowed: %s", path)
		}
	}

	path = expandHomePath(path)
	if hit, denied := t.deniedBy(path); denied {
		return "", fmt.Errorf("read_file denied for path %q (matched %q)", path, hit)
	}

	cleaned := filepath.Clean(path)
	if len(t.AllowedDirs) > 0 {
		abs, err := filepath.Abs(cleaned)
		if err != nil {
			return "", fmt.Errorf("invalid path: %w", err)
		}
		if !withinAnyDir(abs, t.AllowedDirs) {
			return "", fmt.Errorf("read_file denied: path %q is not within any allowed directory", path)
		}
		// A symlink inside an allowed dir could point outside it, so
		// refuse symlinks whenever the allowlist is active.
		fi, err := os.Lstat(cleaned)
		if err != nil {
			return "", err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("read_file denied: refusing symlink %q", cleaned)
		}
	}

	data, err := os.ReadFile(cleaned)
	if err != nil {
		return "", err
	}
	if t.MaxBytes > 0 && int64(len(data)) > t.MaxBytes {
		data = data[:t.MaxBytes]
	}
	return string(data), nil
}

func (t *ReadFileTool) deniedBy(path string) (string, bool) {
	if len(t.DenyPaths) == 0 {
		return "", false
	}
	p := filepath.ToSlash(filepath.Clean(path))
	base := filepath.Base(p)
	for _, d := range t.DenyPaths {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		dc := filepath.ToSlash(filepath.Clean(d))
		if !strings.Contains(dc, "/") {
			if base == dc {
				return d, true
			}
			continue
		}
		if p == dc || strings.HasSuffix(p, "/"+dc) {
			return d, true
		}
		if b := filepath.Base(dc); b != "" && base == b {
			return d, true
		}
	}
	return "", false
}

func withinAnyDir(abs string, dirs []string) bool {
	for _, dir := range dirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		dirAbs, err := filepath.Abs(expandHomePath(dir))
		if err != nil {
			continue
		}
		if withinDir(dirAbs, abs) {
			return true
		}
	}
	return false
}

func withinDir(baseAbs, candAbs string) bool {
	rel, err := filepath.Rel(filepath.Clean(baseAbs), filepath.Clean(candAbs))
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
