package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Action categories the laws dispatch on.
const (
	ActionGitPush     = "git_push"
	ActionFileWrite   = "file_write"
	ActionDatabaseOp  = "database_operation"
	ActionToolGeneric = "tool_execution"
)

// Law is one immutable policy rule. Check is a pure predicate returning a
// violation message, or "" when the rule does not apply.
type Law struct {
	ID          string
	Description string
	Severity    Severity
	Check       func(ActionContext) string
}

// LawEngine evaluates every registered law against an action context.
// Rule order never affects the pass/fail outcome: all laws run, all
// violations are collected, and a single block-severity violation fails
// the check.
type LawEngine struct {
	laws     []Law
	patterns *PatternLibrary
	log      *slog.Logger
	audit    AuditSink
}

func NewLawEngine(policy PolicyConfig, log *slog.Logger, audit AuditSink) *LawEngine {
	if log == nil {
		log = slog.Default()
	}
	lib := NewPatternLibrary(policy)
	strikeLimit := policy.StrikeLimit
	if strikeLimit <= 0 {
		strikeLimit = 3
	}

	e := &LawEngine{patterns: lib, log: log, audit: audit}
	e.laws = []Law{
		{
			ID:          "no-push-main",
			Description: "Never push directly to a protected branch",
			Severity:    SeverityBlock,
			Check: func(ac ActionContext) string {
				if ac.Action != ActionGitPush {
					return ""
				}
				if !lib.IsProtectedBranch(ac.GitBranch) {
					return ""
				}
				return fmt.Sprintf("push to protected branch %q is not allowed", ac.GitBranch)
			},
		},
		{
			ID:          "no-production-delete",
			Description: "Never delete production data",
			Severity:    SeverityBlock,
			Check: func(ac ActionContext) string {
				if ac.Action != ActionDatabaseOp {
					return ""
				}
				op := paramString(ac.Params, "operation")
				env := paramString(ac.Params, "environment")
				if !strings.EqualFold(op, "delete") || !strings.EqualFold(env, "production") {
					return ""
				}
				return "delete operations against production are not allowed"
			},
		},
		{
			ID:          "no-secret-commit",
			Description: "Never write secrets into version-controlled files",
			Severity:    SeverityBlock,
			Check: func(ac ActionContext) string {
				if ac.Action != ActionFileWrite {
					return ""
				}
				if lib.IsSensitivePath(ac.TargetFile) && paramTruthy(ac.Params, "tracked") {
					return fmt.Sprintf("refusing to write tracked sensitive file %q", ac.TargetFile)
				}
				content := paramString(ac.Params, "content")
				if name, ok := lib.DetectSecret(content); ok {
					return fmt.Sprintf("content matches secret pattern %q", name)
				}
				return ""
			},
		},
		{
			ID:          "three-strike-escalation",
			Description: "Stop after repeated failures on the same action",
			Severity:    SeverityBlock,
			Check: func(ac ActionContext) string {
				if ac.ErrorCount < strikeLimit {
					return ""
				}
				return fmt.Sprintf("action failed %d times in a row; do not retry, escalate to the user", ac.ErrorCount)
			},
		},
		{
			ID:          "no-unapproved-ci-edit",
			Description: "Never edit CI/CD configuration without explicit approval",
			Severity:    SeverityBlock,
			Check: func(ac ActionContext) string {
				if ac.Action != ActionFileWrite {
					return ""
				}
				if !lib.IsCIPath(ac.TargetFile) {
					return ""
				}
				if paramTruthy(ac.Params, "explicitly_approved") {
					return ""
				}
				return fmt.Sprintf("editing CI/CD path %q requires explicit approval", ac.TargetFile)
			},
		},
		{
			ID:          "no-force-push",
			Description: "Never force push",
			Severity:    SeverityBlock,
			Check: func(ac ActionContext) string {
				if ac.Action != ActionGitPush {
					return ""
				}
				if !paramTruthy(ac.Params, "force") {
					return ""
				}
				return "force push is not allowed"
			},
		},
	}
	return e
}

// Patterns exposes the merged pattern library for callers that need the
// same heuristics outside the laws (redaction, summaries).
func (e *LawEngine) Patterns() *PatternLibrary { return e.patterns }

// CheckIronLaws evaluates every law against ac. Deterministic for a fixed
// context; the only side effects are an audit record and a warn log per
// violation.
func (e *LawEngine) CheckIronLaws(ctx context.Context, meta Meta, ac ActionContext) LawCheckResult {
	var violations []Violation
	for _, law := range e.laws {
		msg := law.Check(ac)
		if msg == "" {
			continue
		}
		violations = append(violations, Violation{
			LawID:       law.ID,
			Description: law.Description,
			Message:     msg,
			Severity:    law.Severity,
		})
		e.log.Warn("iron_law_violation",
			"law", law.ID,
			"severity", string(law.Severity),
			"action", ac.Action,
			"tool", ac.ToolName,
			"message", msg,
		)
		emitAudit(ctx, e.audit, meta, AuditEvent{
			Event:   "iron_law_violation",
			Tool:    ac.ToolName,
			Channel: meta.Channel,
			Result:  law.ID,
			Metadata: map[string]any{
				"action":   ac.Action,
				"severity": string(law.Severity),
				"message":  msg,
			},
		})
	}

	passed := true
	for _, v := range violations {
		if v.Severity == SeverityBlock {
			passed = false
			break
		}
	}
	return LawCheckResult{Passed: passed, Violations: violations}
}

func paramString(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func paramTruthy(params map[string]any, key string) bool {
	if params == nil {
		return false
	}
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "1" || s == "yes"
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	default:
		return false
	}
}
