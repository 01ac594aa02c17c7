package builtin

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/quarrylabs/warden/guard"
)

func stubGitRunner(calls *[][]string) func(ctx context.Context, dir string, args ...string) (string, error) {
	return func(_ context.Context, dir string, args ...string) (string, error) {
		rec := append([]string{dir}, args...)
		*calls = append(*calls, rec)
		return "Everything up-to-date", nil
	}
}

func TestGitPushTool_RequiresApproval(t *testing.T) {
	var calls [][]string
	tool := NewGitPushTool(true, "/repo", time.Second)
	tool.runner = stubGitRunner(&calls)

	_, err := tool.Execute(context.Background(), map[string]any{"branch": "feature/x"})
	if err == nil {
		t.Fatal("expected approval-required error")
	}
	if !strings.HasPrefix(err.Error(), guard.ApprovalRequiredPrefix+string(guard.TierHigh)) {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("git must not run before approval, got %d calls", len(calls))
	}
}

func TestGitPushTool_RunsWhenApproved(t *testing.T) {
	var calls [][]string
	tool := NewGitPushTool(true, "/repo", time.Second)
	tool.runner = stubGitRunner(&calls)

	out, err := tool.Execute(context.Background(), map[string]any{
		"branch":              "feature/x",
		"explicitly_approved": true,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(out, "pushed feature/x to origin/feature/x") {
		t.Fatalf("unexpected output: %s", out)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one git call, got %d", len(calls))
	}
	want := []string{"/repo", "push", "origin", "feature/x"}
	for i, w := range want {
		if calls[0][i] != w {
			t.Fatalf("call mismatch at %d: got %v want %v", i, calls[0], want)
		}
	}
}

func TestGitPushTool_ForceUsesLease(t *testing.T) {
	var calls [][]string
	tool := NewGitPushTool(true, "/repo", time.Second)
	tool.runner = stubGitRunner(&calls)

	if _, err := tool.Execute(context.Background(), map[string]any{
		"branch":              "feature/x",
		"force":               true,
		"explicitly_approved": true,
	}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	joined := strings.Join(calls[0], " ")
	if !strings.Contains(joined, "--force-with-lease") {
		t.Fatalf("expected --force-with-lease, got %v", calls[0])
	}
}

func TestGitPushTool_DisabledAndMissingBranch(t *testing.T) {
	disabled := NewGitPushTool(false, "/repo", time.Second)
	if _, err := disabled.Execute(context.Background(), map[string]any{"branch": "x"}); err == nil {
		t.Fatal("expected disabled error")
	}

	tool := NewGitPushTool(true, "/repo", time.Second)
	if _, err := tool.Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected missing branch error")
	}
}

func TestGitStatusTool_RunsWithoutApproval(t *testing.T) {
	var calls [][]string
	tool := NewGitStatusTool(true, "/repo", time.Second)
	tool.runner = func(_ context.Context, dir string, args ...string) (string, error) {
		calls = append(calls, append([]string{dir}, args...))
		return "## main...origin/main\n M guard/laws.go\n", nil
	}

	out, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(out, "M guard/laws.go") {
		t.Fatalf("unexpected output: %s", out)
	}
	want := []string{"/repo", "status", "--branch", "--short"}
	for i, w := range want {
		if calls[0][i] != w {
			t.Fatalf("call mismatch at %d: got %v want %v", i, calls[0], want)
		}
	}
}

func TestGitStatusTool_CleanTree(t *testing.T) {
	tool := NewGitStatusTool(true, "", time.Second)
	tool.runner = func(_ context.Context, _ string, _ ...string) (string, error) {
		return "\n", nil
	}

	if _, err := tool.Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error when no repo dir is configured")
	}

	out, err := tool.Execute(context.Background(), map[string]any{"repo_dir": "/repo"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if out != "clean working tree" {
		t.Fatalf("unexpected output: %s", out)
	}
}
