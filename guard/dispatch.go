package guard

import (
	"context"
	"fmt"
	"strings"
)

// ApprovalRequiredPrefix is the only signal a tool has for "defer to a
// human": it returns an error whose message is this prefix followed by the
// permission tier.
const ApprovalRequiredPrefix = "APPROVAL_REQUIRED:"

// IronLawViolationPrefix marks law-blocked results surfaced to the model.
const IronLawViolationPrefix = "IRON LAW VIOLATION:"

// LoopDetectedPrefix marks loop-blocked results surfaced to the model.
const LoopDetectedPrefix = "LOOP DETECTED:"

// Dispatch runs one tool call through the full gate: loop guard pre-check,
// iron laws with the current strike count folded in, execution, then
// post-call bookkeeping. The order is strict — a blocked call never
// executes and never reaches the post-call updates.
func (g *Guard) Dispatch(ctx context.Context, meta Meta, toolName string, params map[string]any) ToolResult {
	toolName = strings.TrimSpace(toolName)

	lc := g.loops.CheckCall(toolName, params)
	switch lc.Verdict {
	case VerdictBlock:
		g.log.Warn("tool_blocked", "tool", toolName, "reason", lc.Reason)
		emitAudit(ctx, g.audit, meta, AuditEvent{
			Event:    "tool_blocked",
			Tool:     toolName,
			Result:   "loop",
			Metadata: map[string]any{"reason": lc.Reason},
		})
		return ToolResult{Success: false, Error: LoopDetectedPrefix + " " + lc.Reason}
	case VerdictWarn:
		g.log.Warn("loop_warning", "tool", toolName, "reason", lc.Reason, "count", lc.CallCount)
	}

	key := IssueKey(toolName, params)
	ac := BuildActionContext(ActionForTool(toolName), toolName, params, g.strikes.ErrorCount(key))
	law := g.laws.CheckIronLaws(ctx, meta, ac)
	if !law.Passed {
		// A law block counts as a strike against the logical action, so
		// stubborn retries of the same blocked call escalate.
		g.strikes.RecordError(key)
		emitAudit(ctx, g.audit, meta, AuditEvent{
			Event:    "tool_blocked",
			Tool:     toolName,
			Result:   "iron_law",
			Metadata: map[string]any{"violations": law.Violations},
		})
		return ToolResult{
			Success: false,
			Error:   IronLawViolationPrefix + " " + strings.Join(law.BlockMessages(), "; "),
		}
	}

	if g.tools == nil {
		return ToolResult{Success: false, Error: fmt.Sprintf("no tool source configured (tool %q)", toolName)}
	}
	tool, ok := g.tools.Lookup(toolName)
	if !ok {
		return ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", toolName)}
	}

	out, err := g.execute(ctx, tool, params)

	if err != nil && strings.HasPrefix(err.Error(), ApprovalRequiredPrefix) {
		raw := strings.TrimSpace(strings.TrimPrefix(err.Error(), ApprovalRequiredPrefix))
		if i := strings.IndexAny(raw, ": \t"); i >= 0 {
			raw = raw[:i]
		}
		tier := PermissionTier(raw)
		if tier == "" {
			tier = tool.Tier()
		}
		req := g.approvals.Create(ctx, toolName, params, tier,
			fmt.Sprintf("tool %s requires %s-tier approval", toolName, tier),
			RequestOrigin{Channel: meta.Channel, UserID: meta.UserID, ConversationID: meta.ConversationID},
			g.deferredExec(tool),
		)
		// The call did not run; this is not a failure of the action, so no
		// strike is recorded.
		return ToolResult{
			Success:    false,
			Error:      fmt.Sprintf("approval required (tier %s), request %s is pending", tier, req.ID),
			ApprovalID: req.ID,
		}
	}

	res := ToolResult{Success: err == nil, Data: out}
	if err != nil {
		res.Error = err.Error()
	}

	g.loops.RecordResult(toolName, params, res)
	if res.Success {
		g.strikes.ClearError(key)
	} else {
		g.strikes.RecordError(key)
	}

	emitAudit(ctx, g.audit, meta, AuditEvent{
		Event:  "tool_executed",
		Tool:   toolName,
		Result: resultWord(res.Success),
	})
	return res
}

// deferredExec wraps a tool for post-approval execution. The approved run
// carries an explicit approval flag so laws gated on it (CI edits) pass.
func (g *Guard) deferredExec(tool ToolRunner) DeferredExec {
	return func(ctx context.Context, params map[string]any) ToolResult {
		approved := make(map[string]any, len(params)+1)
		for k, v := range params {
			approved[k] = v
		}
		approved["explicitly_approved"] = true

		out, err := g.execute(ctx, tool, approved)
		res := ToolResult{Success: err == nil, Data: out}
		if err != nil {
			res.Error = err.Error()
		}
		return res
	}
}

// execute invokes the tool, converting a panic into an error so nothing
// escapes the core.
func (g *Guard) execute(ctx context.Context, tool ToolRunner, params map[string]any) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panic: %v", tool.Name(), r)
		}
	}()
	return tool.Execute(ctx, params)
}

func resultWord(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
