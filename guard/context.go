package guard

import "strings"

// Several calling conventions for "which file" and "which branch" have
// accumulated across tools; extraction tries field names in priority order
// so that derivation is deterministic for a given parameter bag.
var (
	targetFileKeys = []string{"target_file", "file_path", "path", "filename", "file"}
	gitBranchKeys  = []string{"git_branch", "branch", "ref", "target_branch"}
)

// actionKinds maps tool names to action categories. Tools not listed here
// are generic executions.
var actionKinds = map[string]string{
	"git_push":           ActionGitPush,
	"git":                ActionGitPush,
	"write_file":         ActionFileWrite,
	"file_write":         ActionFileWrite,
	"database_operation": ActionDatabaseOp,
}

// ActionForTool returns the action category a tool call is policed under.
func ActionForTool(toolName string) string {
	if kind, ok := actionKinds[strings.TrimSpace(toolName)]; ok {
		return kind
	}
	return ActionToolGeneric
}

// BuildActionContext normalizes a prospective tool call for the law engine.
// Pure and side-effect-free: it only reads the parameter bag.
func BuildActionContext(action, toolName string, params map[string]any, errorCount int) ActionContext {
	return ActionContext{
		Action:     action,
		ToolName:   strings.TrimSpace(toolName),
		Params:     params,
		TargetFile: firstParamString(params, targetFileKeys),
		GitBranch:  firstParamString(params, gitBranchKeys),
		ErrorCount: errorCount,
	}
}

func firstParamString(params map[string]any, keys []string) string {
	for _, k := range keys {
		if v := paramString(params, k); v != "" {
			return v
		}
	}
	return ""
}
