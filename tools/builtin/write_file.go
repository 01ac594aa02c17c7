package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quarrylabs/warden/guard"
)

const defaultWriteBase = "/tmp/.warden-cache"

// WriteFileTool writes text to local files. All writes are jailed to
// BaseDir: relative paths resolve under it, absolute paths must land
// inside it.
type WriteFileTool struct {
	MaxBytes int
	BaseDir  string
}

func NewWriteFileTool(maxBytes int, baseDir string) *WriteFileTool {
	if maxBytes <= 0 {
		maxBytes = 512 * 1024
	}
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		baseDir = defaultWriteBase
	}
	return &WriteFileTool{MaxBytes: maxBytes, BaseDir: baseDir}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Writes text content to a local file (overwrite or append). Writes are restricted to the configured base directory."
}

func (t *WriteFileTool) Tier() guard.PermissionTier { return guard.TierMedium }

func (t *WriteFileTool) ParameterSchema() string {
	return schemaJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File path to write. Relative paths resolve under the base directory; absolute paths must resolve within it.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Text content to write.",
			},
			"mode": map[string]any{
				"type":        "string",
				"description": "Write mode: overwrite|append (default: overwrite).",
			},
			"mkdirs": map[string]any{
				"type":        "boolean",
				"description": "If true, creates parent directories as needed.",
			},
		},
		"required": []string{"path", "content"},
	})
}

func (t *WriteFileTool) Execute(_ context.Context, params map[string]any) (string, error) {
	path := paramString(params, "path")
	if path == "" {
		return "", fmt.Errorf("missing required param: path")
	}
	baseAbs, target, err := t.resolve(path)
	if err != nil {
		return "", err
	}

	content, _ := params["content"].(string)
	if t.MaxBytes > 0 && len(content) > t.MaxBytes {
		return "", fmt.Errorf("content too large (%d bytes > %d max)", len(content), t.MaxBytes)
	}

	mode := strings.ToLower(paramString(params, "mode"))
	if mode == "" {
		mode = "overwrite"
	}

	if paramBool(params, "mkdirs") {
		if dir := filepath.Dir(target); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return "", err
			}
		}
	}

	switch mode {
	case "overwrite":
		err = os.WriteFile(target, []byte(content), 0o644)
	case "append":
		f, openErr := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if openErr != nil {
			return "", openErr
		}
		_, err = f.WriteString(content)
		_ = f.Close()
	default:
		return "", fmt.Errorf("invalid mode: %s (expected overwrite|append)", mode)
	}
	if err != nil {
		return "", err
	}

	out, _ := json.MarshalIndent(map[string]any{
		"path":     target,
		"base_dir": baseAbs,
		"bytes":    len(content),
		"mode":     mode,
	}, "", "  ")
	return string(out), nil
}

// resolve jails userPath under the base dir and returns both absolute
// paths. The base dir is created with 0700 and must not be a symlink.
func (t *WriteFileTool) resolve(userPath string) (string, string, error) {
	baseDir := strings.TrimSpace(expandHomePath(t.BaseDir))
	if baseDir == "" {
		return "", "", fmt.Errorf("write base directory is not configured")
	}
	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(baseAbs, 0o700); err != nil {
		return "", "", err
	}
	fi, err := os.Lstat(baseAbs)
	if err != nil {
		return "", "", err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return "", "", fmt.Errorf("refusing symlink base dir: %s", baseAbs)
	}
	if !fi.IsDir() {
		return "", "", fmt.Errorf("base dir is not a directory: %s", baseAbs)
	}
	if fi.Mode().Perm() != 0o700 {
		_ = os.Chmod(baseAbs, 0o700)
	}

	userPath = expandHomePath(userPath)
	var candidate string
	if filepath.IsAbs(userPath) {
		candidate = filepath.Clean(userPath)
	} else {
		candidate = filepath.Join(baseAbs, userPath)
	}
	candAbs, err := filepath.Abs(candidate)
	if err != nil {
		return "", "", err
	}
	if !withinDir(baseAbs, candAbs) {
		return "", "", fmt.Errorf("refusing to write outside base dir (base=%s path=%s)", baseAbs, candAbs)
	}
	return baseAbs, candAbs, nil
}
