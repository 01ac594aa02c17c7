package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadFileTool_ReadsAndTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadFileTool(ReadFileOptions{MaxBytes: 5})
	out, err := tool.Execute(context.Background(), map[string]any{"path": path})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected truncated content %q, got %q", "hello", out)
	}
}

func TestReadFileTool_MissingPath(t *testing.T) {
	tool := NewReadFileTool(ReadFileOptions{})
	if _, err := tool.Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestReadFileTool_RejectsTraversal(t *testing.T) {
	tool := NewReadFileTool(ReadFileOptions{})
	for _, p := range []string{"../etc/passwd", "/var/../../etc/passwd", "a/../../b"} {
		if _, err := tool.Execute(context.Background(), map[string]any{"path": p}); err == nil {
			t.Fatalf("expected traversal rejection for %q", p)
		}
	}
}

func TestReadFileTool_DenyPaths(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("SECRET=1"), 0o600); err != nil {
		t.Fatal(err)
	}

	tool := NewReadFileTool(ReadFileOptions{DenyPaths: []string{".env", "config/credentials.yml"}})

	if _, err := tool.Execute(context.Background(), map[string]any{"path": envPath}); err == nil {
		t.Fatal("expected deny for .env basename")
	}

	ok := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(ok, []byte("fine"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := tool.Execute(context.Background(), map[string]any{"path": ok})
	if err != nil {
		t.Fatalf("expected allowed read, got %v", err)
	}
	if out != "fine" {
		t.Fatalf("unexpected content %q", out)
	}
}

func TestReadFileTool_AllowedDirs(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()

	inPath := filepath.Join(allowed, "in.txt")
	outPath := filepath.Join(outside, "out.txt")
	for _, p := range []string{inPath, outPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tool := NewReadFileTool(ReadFileOptions{AllowedDirs: []string{allowed}})

	if _, err := tool.Execute(context.Background(), map[string]any{"path": inPath}); err != nil {
		t.Fatalf("expected read inside allowed dir, got %v", err)
	}
	_, err := tool.Execute(context.Background(), map[string]any{"path": outPath})
	if err == nil {
		t.Fatal("expected denial outside allowed dirs")
	}
	if !strings.Contains(err.Error(), "not within any allowed directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReadFileTool_RefusesSymlinkWithAllowlist(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()

	target := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(target, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(allowed, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	tool := NewReadFileTool(ReadFileOptions{AllowedDirs: []string{allowed}})
	if _, err := tool.Execute(context.Background(), map[string]any{"path": link}); err == nil {
		t.Fatal("expected symlink refusal")
	}
}
