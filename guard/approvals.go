package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultApprovalTimeout = 5 * time.Minute

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

var (
	ErrApprovalNotFound = errors.New("approval request not found")
	ErrApprovalResolved = errors.New("approval request already resolved")
	ErrApprovalExpired  = errors.New("approval request expired")
)

// RequestOrigin records where an approval request came from so the answer
// can be routed back.
type RequestOrigin struct {
	Channel        string `json:"channel"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type ApprovalRequest struct {
	ID             string         `json:"id"`
	Tool           string         `json:"tool"`
	Params         map[string]any `json:"params,omitempty"`
	PermissionTier PermissionTier `json:"permission_tier"`
	Reason         string         `json:"reason,omitempty"`
	RequestedAt    time.Time      `json:"requested_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
	Status         ApprovalStatus `json:"status"`
	RespondedAt    *time.Time     `json:"responded_at,omitempty"`
	RespondedBy    string         `json:"responded_by,omitempty"`
	RequestedFrom  RequestOrigin  `json:"requested_from"`
}

// DeferredExec runs the original tool call once a human has approved it.
type DeferredExec func(ctx context.Context, params map[string]any) ToolResult

// ApprovalArchive persists resolved approval requests for later review.
// The live pending set never lives in the archive.
type ApprovalArchive interface {
	Record(ctx context.Context, req ApprovalRequest) error
}

type pendingApproval struct {
	req  ApprovalRequest
	exec DeferredExec
}

// ApprovalWorkflow owns the pending-approval set. Every request is a small
// state machine, pending -> approved|rejected|expired, all terminal. Expiry
// is wall-clock and evaluated lazily: every entry point sweeps expired
// requests first, so a stale "pending" can never be observed.
type ApprovalWorkflow struct {
	mu      sync.Mutex
	pending map[string]*pendingApproval
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
	audit   AuditSink
	archive ApprovalArchive
}

func NewApprovalWorkflow(cfg ApprovalsConfig, log *slog.Logger, audit AuditSink, archive ApprovalArchive) *ApprovalWorkflow {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultApprovalTimeout
	}
	return &ApprovalWorkflow{
		pending: make(map[string]*pendingApproval),
		timeout: timeout,
		now:     time.Now,
		log:     log,
		audit:   audit,
		archive: archive,
	}
}

// Create registers a new pending request and returns it.
func (w *ApprovalWorkflow) Create(ctx context.Context, tool string, params map[string]any, tier PermissionTier, reason string, origin RequestOrigin, exec DeferredExec) ApprovalRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sweepLocked(ctx)

	now := w.now().UTC()
	req := ApprovalRequest{
		ID:             "apr_" + randHex(12),
		Tool:           strings.TrimSpace(tool),
		Params:         params,
		PermissionTier: tier,
		Reason:         strings.TrimSpace(reason),
		RequestedAt:    now,
		ExpiresAt:      now.Add(w.timeout),
		Status:         ApprovalPending,
		RequestedFrom:  origin,
	}
	w.pending[req.ID] = &pendingApproval{req: req, exec: exec}

	w.log.Info("approval_requested", "id", req.ID, "tool", req.Tool, "tier", string(tier))
	emitAudit(ctx, w.audit, Meta{Channel: origin.Channel, Time: now}, AuditEvent{
		Event:  "approval_requested",
		Tool:   req.Tool,
		Result: string(ApprovalPending),
		Metadata: map[string]any{
			"approval_id": req.ID,
			"tier":        string(tier),
			"reason":      req.Reason,
		},
	})
	return req
}

// Approve resolves a pending request and dispatches the deferred tool call.
// The record is discarded whether or not the deferred execution succeeds;
// the workflow's job ends at "approved and dispatched".
func (w *ApprovalWorkflow) Approve(ctx context.Context, id string, approvedBy string) ToolResult {
	w.mu.Lock()
	w.sweepLocked(ctx)

	pa, err := w.takeLocked(ctx, id)
	if err != nil {
		w.mu.Unlock()
		return ToolResult{Success: false, Error: err.Error()}
	}

	now := w.now().UTC()
	pa.req.Status = ApprovalApproved
	pa.req.RespondedAt = &now
	pa.req.RespondedBy = strings.TrimSpace(approvedBy)
	delete(w.pending, pa.req.ID)
	w.archiveLocked(ctx, pa.req)

	w.log.Info("approval_approved", "id", pa.req.ID, "tool", pa.req.Tool, "by", pa.req.RespondedBy)
	emitAudit(ctx, w.audit, Meta{Channel: pa.req.RequestedFrom.Channel, Time: now}, AuditEvent{
		Event:  "approval_approved",
		Tool:   pa.req.Tool,
		Result: string(ApprovalApproved),
		Metadata: map[string]any{
			"approval_id": pa.req.ID,
			"actor":       pa.req.RespondedBy,
		},
	})
	w.mu.Unlock()

	if pa.exec == nil {
		return ToolResult{Success: true, Data: "approved (no deferred execution)"}
	}
	return runDeferred(ctx, pa.exec, pa.req.Params)
}

// Reject resolves a pending request without executing anything.
func (w *ApprovalWorkflow) Reject(ctx context.Context, id string, rejectedBy string) ToolResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sweepLocked(ctx)

	pa, err := w.takeLocked(ctx, id)
	if err != nil {
		return ToolResult{Success: false, Error: err.Error()}
	}

	now := w.now().UTC()
	pa.req.Status = ApprovalRejected
	pa.req.RespondedAt = &now
	pa.req.RespondedBy = strings.TrimSpace(rejectedBy)
	delete(w.pending, pa.req.ID)
	w.archiveLocked(ctx, pa.req)

	w.log.Info("approval_rejected", "id", pa.req.ID, "tool", pa.req.Tool, "by", pa.req.RespondedBy)
	emitAudit(ctx, w.audit, Meta{Channel: pa.req.RequestedFrom.Channel, Time: now}, AuditEvent{
		Event:  "approval_rejected",
		Tool:   pa.req.Tool,
		Result: string(ApprovalRejected),
		Metadata: map[string]any{
			"approval_id": pa.req.ID,
			"actor":       pa.req.RespondedBy,
		},
	})
	return ToolResult{Success: true, Data: "rejected"}
}

// Pending lists the live pending requests, oldest first. The sweep runs
// first, so expired or resolved entries are never returned.
func (w *ApprovalWorkflow) Pending(ctx context.Context) []ApprovalRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sweepLocked(ctx)

	out := make([]ApprovalRequest, 0, len(w.pending))
	for _, pa := range w.pending {
		out = append(out, pa.req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// takeLocked fetches a pending request by id, enforcing the lifecycle
// errors. An expired record is discarded as a side effect of the check.
func (w *ApprovalWorkflow) takeLocked(ctx context.Context, id string) (*pendingApproval, error) {
	id = strings.TrimSpace(id)
	pa, ok := w.pending[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrApprovalNotFound, id)
	}
	if pa.req.Status != ApprovalPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrApprovalResolved, id, pa.req.Status)
	}
	if w.now().After(pa.req.ExpiresAt) {
		w.expireLocked(ctx, pa)
		return nil, fmt.Errorf("%w: %s", ErrApprovalExpired, id)
	}
	return pa, nil
}

// sweepLocked moves every pending request past its expiry to expired and
// discards it. This is the only path that produces a visible expired
// status.
func (w *ApprovalWorkflow) sweepLocked(ctx context.Context) {
	now := w.now()
	for _, pa := range w.pending {
		if now.After(pa.req.ExpiresAt) {
			w.expireLocked(ctx, pa)
		}
	}
}

func (w *ApprovalWorkflow) expireLocked(ctx context.Context, pa *pendingApproval) {
	now := w.now().UTC()
	pa.req.Status = ApprovalExpired
	pa.req.RespondedAt = &now
	delete(w.pending, pa.req.ID)
	w.archiveLocked(ctx, pa.req)

	w.log.Info("approval_expired", "id", pa.req.ID, "tool", pa.req.Tool)
	emitAudit(ctx, w.audit, Meta{Channel: pa.req.RequestedFrom.Channel, Time: now}, AuditEvent{
		Event:    "approval_expired",
		Tool:     pa.req.Tool,
		Result:   string(ApprovalExpired),
		Metadata: map[string]any{"approval_id": pa.req.ID},
	})
}

func (w *ApprovalWorkflow) archiveLocked(ctx context.Context, req ApprovalRequest) {
	if w.archive == nil {
		return
	}
	if err := w.archive.Record(ctx, req); err != nil {
		w.log.Warn("approval_archive_error", "id", req.ID, "error", err.Error())
	}
}

// runDeferred executes an approved tool call, converting a panic into an
// ordinary failed result so nothing escapes the workflow boundary.
func runDeferred(ctx context.Context, exec DeferredExec, params map[string]any) (res ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ToolResult{Success: false, Error: fmt.Sprintf("deferred execution panic: %v", r)}
		}
	}()
	return exec(ctx, params)
}
