// Package guard is the safety enforcement core that stands between "the
// model wants to call tool X with params Y" and "tool X actually executes".
// Every tool call passes through the loop guard, the iron laws, and the
// strike tracker; irreversible or high-risk calls are deferred to a human
// through the approval workflow.
package guard

import (
	"context"
	"log/slog"
	"time"
)

// ToolRunner is the slice of a tool the guard needs: identity, declared
// risk tier, and an execute function.
type ToolRunner interface {
	Name() string
	Tier() PermissionTier
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// ToolSource resolves tool names at dispatch time.
type ToolSource interface {
	Lookup(name string) (ToolRunner, bool)
}

// ToolSourceFunc adapts a lookup function to the ToolSource interface.
type ToolSourceFunc func(name string) (ToolRunner, bool)

func (f ToolSourceFunc) Lookup(name string) (ToolRunner, bool) { return f(name) }

// Guard wires the four safety components together behind one surface.
// All state is process-wide on purpose: a loop or a 3-strike failure on a
// given logical action is caught even when the triggering calls span turns
// or channels.
type Guard struct {
	cfg     Config
	log     *slog.Logger
	audit   AuditSink
	archive ApprovalArchive
	now     func() time.Time

	laws      *LawEngine
	loops     *LoopGuard
	strikes   *StrikeTracker
	approvals *ApprovalWorkflow

	tools ToolSource
}

type Option func(*Guard)

func WithLogger(log *slog.Logger) Option {
	return func(g *Guard) {
		if log != nil {
			g.log = log
		}
	}
}

func WithAuditSink(sink AuditSink) Option {
	return func(g *Guard) { g.audit = sink }
}

func WithToolSource(src ToolSource) Option {
	return func(g *Guard) { g.tools = src }
}

// WithClock injects a time source into the strike tracker and the approval
// workflow. Tests control time through it.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

func WithApprovalArchive(archive ApprovalArchive) Option {
	return func(g *Guard) { g.archive = archive }
}

func New(cfg Config, opts ...Option) *Guard {
	g := &Guard{
		cfg: cfg,
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.loops = NewLoopGuard(g.log)
	g.laws = NewLawEngine(cfg.Policy, g.log, g.audit)
	g.strikes = NewStrikeTracker()
	g.strikes.now = g.now
	g.approvals = NewApprovalWorkflow(cfg.Approvals, g.log, g.audit, g.archive)
	g.approvals.now = g.now
	return g
}

func (g *Guard) Enabled() bool { return g != nil && g.cfg.Enabled }

// CheckIronLaws evaluates the fixed rule list against an action context.
func (g *Guard) CheckIronLaws(ctx context.Context, meta Meta, ac ActionContext) LawCheckResult {
	return g.laws.CheckIronLaws(ctx, meta, ac)
}

// CheckToolCall asks the loop guard whether a prospective call may proceed.
func (g *Guard) CheckToolCall(tool string, params map[string]any) LoopCheck {
	return g.loops.CheckCall(tool, params)
}

// RecordToolResult feeds an execution outcome back into the loop guard.
func (g *Guard) RecordToolResult(tool string, params map[string]any, res ToolResult) {
	g.loops.RecordResult(tool, params, res)
}

// ResetLoopGuard clears loop state at a session boundary.
func (g *Guard) ResetLoopGuard() { g.loops.Reset() }

func (g *Guard) RecordError(key string) int { return g.strikes.RecordError(key) }
func (g *Guard) ClearError(key string)      { g.strikes.ClearError(key) }
func (g *Guard) ErrorCount(key string) int  { return g.strikes.ErrorCount(key) }

func (g *Guard) CreateApprovalRequest(ctx context.Context, tool string, params map[string]any, tier PermissionTier, reason string, origin RequestOrigin, exec DeferredExec) ApprovalRequest {
	return g.approvals.Create(ctx, tool, params, tier, reason, origin, exec)
}

func (g *Guard) ApproveAction(ctx context.Context, id string, approvedBy string) ToolResult {
	return g.approvals.Approve(ctx, id, approvedBy)
}

func (g *Guard) RejectAction(ctx context.Context, id string, rejectedBy string) ToolResult {
	return g.approvals.Reject(ctx, id, rejectedBy)
}

func (g *Guard) PendingApprovals(ctx context.Context) []ApprovalRequest {
	return g.approvals.Pending(ctx)
}

// Close flushes and releases the audit sink, if any.
func (g *Guard) Close() error {
	if g == nil || g.audit == nil {
		return nil
	}
	return g.audit.Close()
}
