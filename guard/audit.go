package guard

import (
	"context"
	"time"
)

// AuditSink receives fire-and-forget audit events. Implementations must be
// safe for concurrent use.
type AuditSink interface {
	Emit(ctx context.Context, e AuditEvent) error
	Close() error
}

// emitAudit fills in identity fields and forwards to the sink, if any.
// Audit failures never affect the calling check.
func emitAudit(ctx context.Context, sink AuditSink, meta Meta, e AuditEvent) {
	if sink == nil {
		return
	}
	if meta.Time.IsZero() {
		meta.Time = time.Now().UTC()
	}
	e.EventID = newEventID(meta, e.Event)
	e.Timestamp = meta.Time
	e.RunID = meta.RunID
	e.Step = meta.Step
	if e.Channel == "" {
		e.Channel = meta.Channel
	}
	_ = sink.Emit(ctx, e)
}
