package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/quarrylabs/warden/guard"
)

// GitPushTool pushes the current branch of a local repository. It is a
// high-tier tool: any push that was not explicitly approved returns an
// approval-required error instead of running, so the dispatcher can
// park it behind a human decision.
type GitPushTool struct {
	Enabled bool
	RepoDir string
	Timeout time.Duration

	// runner is swapped in tests to avoid shelling out.
	runner func(ctx context.Context, dir string, args ...string) (string, error)
}

func NewGitPushTool(enabled bool, repoDir string, timeout time.Duration) *GitPushTool {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GitPushTool{
		Enabled: enabled,
		RepoDir: strings.TrimSpace(expandHomePath(repoDir)),
		Timeout: timeout,
		runner:  runGit,
	}
}

func (t *GitPushTool) Name() string { return "git_push" }

func (t *GitPushTool) Description() string {
	return "Pushes commits to a git remote. Requires explicit approval before running."
}

func (t *GitPushTool) Tier() guard.PermissionTier { return guard.TierHigh }

func (t *GitPushTool) ParameterSchema() string {
	return schemaJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"branch": map[string]any{
				"type":        "string",
				"description": "Branch to push.",
			},
			"remote": map[string]any{
				"type":        "string",
				"description": "Remote name (default: origin).",
			},
			"force": map[string]any{
				"type":        "boolean",
				"description": "If true, pushes with --force-with-lease.",
			},
			"repo_dir": map[string]any{
				"type":        "string",
				"description": "Repository directory (defaults to the configured repo dir).",
			},
		},
		"required": []string{"branch"},
	})
}

func (t *GitPushTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if !t.Enabled {
		return "", fmt.Errorf("git_push tool is disabled (enable via config: tools.git_push.enabled=true)")
	}

	branch := paramString(params, "branch")
	if branch == "" {
		return "", fmt.Errorf("missing required param: branch")
	}
	remote := paramString(params, "remote")
	if remote == "" {
		remote = "origin"
	}
	dir := paramString(params, "repo_dir")
	if dir == "" {
		dir = t.RepoDir
	}
	if dir == "" {
		return "", fmt.Errorf("no repository directory configured (set tools.git_push.repo_dir or pass repo_dir)")
	}

	if !paramBool(params, "explicitly_approved") {
		return "", fmt.Errorf("%s%s: push %s to %s/%s", guard.ApprovalRequiredPrefix, guard.TierHigh, dir, remote, branch)
	}

	args := []string{"push", remote, branch}
	if paramBool(params, "force") {
		args = []string{"push", "--force-with-lease", remote, branch}
	}

	runCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	out, err := t.runner(runCtx, dir, args...)
	if err != nil {
		return "", fmt.Errorf("git push failed: %w (output: %s)", err, strings.TrimSpace(out))
	}
	return fmt.Sprintf("pushed %s to %s/%s\n%s", branch, remote, branch, strings.TrimSpace(out)), nil
}

// GitStatusTool reports the working-tree state of a local repository.
// Read-only, so it runs at low tier without approval.
type GitStatusTool struct {
	Enabled bool
	RepoDir string
	Timeout time.Duration

	runner func(ctx context.Context, dir string, args ...string) (string, error)
}

func NewGitStatusTool(enabled bool, repoDir string, timeout time.Duration) *GitStatusTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GitStatusTool{
		Enabled: enabled,
		RepoDir: strings.TrimSpace(expandHomePath(repoDir)),
		Timeout: timeout,
		runner:  runGit,
	}
}

func (t *GitStatusTool) Name() string { return "git_status" }

func (t *GitStatusTool) Description() string {
	return "Shows the git working-tree status and current branch of a local repository."
}

func (t *GitStatusTool) Tier() guard.PermissionTier { return guard.TierLow }

func (t *GitStatusTool) ParameterSchema() string {
	return schemaJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"repo_dir": map[string]any{
				"type":        "string",
				"description": "Repository directory (defaults to the configured repo dir).",
			},
		},
	})
}

func (t *GitStatusTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if !t.Enabled {
		return "", fmt.Errorf("git_status tool is disabled (enable via config: tools.git_push.enabled=true)")
	}

	dir := paramString(params, "repo_dir")
	if dir == "" {
		dir = t.RepoDir
	}
	if dir == "" {
		return "", fmt.Errorf("no repository directory configured (set tools.git_push.repo_dir or pass repo_dir)")
	}

	runCtx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	out, err := t.runner(runCtx, dir, "status", "--branch", "--short")
	if err != nil {
		return "", fmt.Errorf("git status failed: %w (output: %s)", err, strings.TrimSpace(out))
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "clean working tree", nil
	}
	return out, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
