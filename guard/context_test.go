package guard

import "testing"

func TestBuildActionContext_FieldPriority(t *testing.T) {
	cases := []struct {
		name       string
		params     map[string]any
		wantFile   string
		wantBranch string
	}{
		{
			name:     "path_only",
			params:   map[string]any{"path": "a.txt"},
			wantFile: "a.txt",
		},
		{
			name:     "file_path_wins_over_path",
			params:   map[string]any{"file_path": "b.txt", "path": "a.txt"},
			wantFile: "b.txt",
		},
		{
			name:     "target_file_highest_priority",
			params:   map[string]any{"target_file": "c.txt", "file_path": "b.txt", "path": "a.txt"},
			wantFile: "c.txt",
		},
		{
			name:       "branch",
			params:     map[string]any{"branch": "main"},
			wantBranch: "main",
		},
		{
			name:       "git_branch_wins_over_ref",
			params:     map[string]any{"ref": "refs/heads/x", "git_branch": "feature/y"},
			wantBranch: "feature/y",
		},
		{
			name:   "non_string_values_ignored",
			params: map[string]any{"path": 42, "branch": true},
		},
		{
			name:   "empty_params",
			params: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ac := BuildActionContext(ActionToolGeneric, "t", tc.params, 0)
			if ac.TargetFile != tc.wantFile {
				t.Fatalf("TargetFile = %q, want %q", ac.TargetFile, tc.wantFile)
			}
			if ac.GitBranch != tc.wantBranch {
				t.Fatalf("GitBranch = %q, want %q", ac.GitBranch, tc.wantBranch)
			}
		})
	}
}

func TestBuildActionContext_Deterministic(t *testing.T) {
	params := map[string]any{"path": "x", "branch": "main", "extra": []any{1.0, "two"}}
	first := BuildActionContext(ActionFileWrite, "write_file", params, 2)
	for i := 0; i < 5; i++ {
		ac := BuildActionContext(ActionFileWrite, "write_file", params, 2)
		if ac.TargetFile != first.TargetFile || ac.GitBranch != first.GitBranch || ac.ErrorCount != first.ErrorCount {
			t.Fatalf("run %d differs: %+v vs %+v", i, ac, first)
		}
	}
}

func TestActionForTool(t *testing.T) {
	cases := map[string]string{
		"git_push":           ActionGitPush,
		"write_file":         ActionFileWrite,
		"database_operation": ActionDatabaseOp,
		"echo":               ActionToolGeneric,
		"":                   ActionToolGeneric,
	}
	for tool, want := range cases {
		if got := ActionForTool(tool); got != want {
			t.Fatalf("ActionForTool(%q) = %q, want %q", tool, got, want)
		}
	}
}

func TestIssueKey_StableAcrossOrderingAndIncidentals(t *testing.T) {
	a := IssueKey("t", map[string]any{"x": 1, "y": "z", "request_id": "r1", "timestamp": "now"})
	b := IssueKey("t", map[string]any{"y": "z", "x": 1, "request_id": "r2"})
	if a != b {
		t.Fatalf("keys differ: %s vs %s", a, b)
	}

	c := IssueKey("t", map[string]any{"x": 2, "y": "z"})
	if a == c {
		t.Fatal("different params produced the same key")
	}
	d := IssueKey("other", map[string]any{"x": 1, "y": "z"})
	if a == d {
		t.Fatal("different tools produced the same key")
	}
}

func TestParamHash_NestedOrdering(t *testing.T) {
	a := ParamHash(map[string]any{"outer": map[string]any{"a": 1, "b": 2}, "list": []any{"x", "y"}})
	b := ParamHash(map[string]any{"list": []any{"x", "y"}, "outer": map[string]any{"b": 2, "a": 1}})
	if a != b {
		t.Fatalf("nested ordering changed hash: %s vs %s", a, b)
	}

	c := ParamHash(map[string]any{"outer": map[string]any{"a": 1, "b": 2}, "list": []any{"y", "x"}})
	if a == c {
		t.Fatal("list order should change the hash")
	}
}

func TestResultHash_Distinguishes(t *testing.T) {
	ok := ToolResult{Success: true, Data: "out"}
	fail := ToolResult{Success: false, Error: "out"}
	if ResultHash(ok) == ResultHash(fail) {
		t.Fatal("success and failure hashed identically")
	}
	if ResultHash(ok) != ResultHash(ToolResult{Success: true, Data: "out"}) {
		t.Fatal("identical results hashed differently")
	}
}
