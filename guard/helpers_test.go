package guard

import (
	"context"
	"sync"
	"time"
)

type memorySink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *memorySink) Emit(_ context.Context, e AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (s *memorySink) last(event string) (AuditEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Event == event {
			return s.events[i], true
		}
	}
	return AuditEvent{}, false
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubTool struct {
	name    string
	tier    PermissionTier
	execute func(ctx context.Context, params map[string]any) (string, error)

	mu    sync.Mutex
	calls int
}

func (t *stubTool) Name() string         { return t.name }
func (t *stubTool) Tier() PermissionTier { return t.tier }

func (t *stubTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.execute == nil {
		return "ok", nil
	}
	return t.execute(ctx, params)
}

func (t *stubTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func singleToolSource(t *stubTool) ToolSource {
	return ToolSourceFunc(func(name string) (ToolRunner, bool) {
		if name == t.name {
			return t, true
		}
		return nil, false
	})
}
