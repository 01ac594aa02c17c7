package guard

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const (
	historyWindow = 30
	historyTrimAt = historyWindow * 2

	repeatWarnAt  = 3
	repeatBlockAt = 5

	globalLoopCeiling = 30

	sameOutcomeEscalateAt = 2
)

type callRecord struct {
	tool      string
	paramHash string
}

func (r callRecord) key() string { return r.tool + ":" + r.paramHash }

// LoopGuard detects runaway and thrashing tool-call sequences. It keeps a
// bounded sliding history for cycle detection, monotonic per-key call
// counters, per-(call,result) outcome counters, and a global loop counter
// that trips a process-wide circuit breaker once it reaches its ceiling.
type LoopGuard struct {
	mu          sync.Mutex
	history     []callRecord
	callCounts  map[string]int
	outcomes    map[string]int
	globalLoops int
	log         *slog.Logger
}

func NewLoopGuard(log *slog.Logger) *LoopGuard {
	if log == nil {
		log = slog.Default()
	}
	return &LoopGuard{
		callCounts: make(map[string]int),
		outcomes:   make(map[string]int),
		log:        log,
	}
}

// CheckCall records a prospective call and returns the verdict. Must be
// called before the tool executes; RecordResult after.
func (g *LoopGuard) CheckCall(tool string, params map[string]any) LoopCheck {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.globalLoops >= globalLoopCeiling {
		return LoopCheck{
			Verdict: VerdictBlock,
			Reason:  fmt.Sprintf("circuit breaker open: %d loop detections this session", g.globalLoops),
		}
	}

	rec := callRecord{tool: strings.TrimSpace(tool), paramHash: ParamHash(params)}
	g.history = append(g.history, rec)
	if len(g.history) > historyTrimAt {
		g.history = append(g.history[:0], g.history[len(g.history)-historyWindow:]...)
	}

	g.callCounts[rec.key()]++
	count := g.callCounts[rec.key()]

	// Cycle detection takes priority over plain repeat counts.
	if tools, period := g.findCycleLocked(); period > 0 {
		g.globalLoops++
		g.log.Warn("loop_cycle_detected", "period", period, "tools", tools, "global_loops", g.globalLoops)
		return LoopCheck{
			Verdict:   VerdictWarn,
			Reason:    fmt.Sprintf("ping-pong cycle of length %d detected: %s", period, tools),
			CallCount: count,
		}
	}

	switch {
	case count >= repeatBlockAt:
		g.globalLoops++
		g.log.Warn("loop_repeat_blocked", "tool", rec.tool, "count", count, "global_loops", g.globalLoops)
		return LoopCheck{
			Verdict:   VerdictBlock,
			Reason:    fmt.Sprintf("identical call to %s repeated %d times", rec.tool, count),
			CallCount: count,
		}
	case count >= repeatWarnAt:
		g.globalLoops++
		g.log.Warn("loop_repeat_warned", "tool", rec.tool, "count", count, "global_loops", g.globalLoops)
		return LoopCheck{
			Verdict:   VerdictWarn,
			Reason:    fmt.Sprintf("identical call to %s repeated %d times", rec.tool, count),
			CallCount: count,
		}
	default:
		return LoopCheck{Verdict: VerdictAllow, CallCount: count}
	}
}

// RecordResult updates the outcome counters after a call. Seeing the same
// call produce the same result twice logs an escalation signal; it never
// changes the verdict of the call that already ran, only widens the net for
// future checks through the shared counters.
func (g *LoopGuard) RecordResult(tool string, params map[string]any, res ToolResult) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := strings.TrimSpace(tool) + ":" + ParamHash(params) + ":" + ResultHash(res)
	g.outcomes[key]++
	if g.outcomes[key] == sameOutcomeEscalateAt {
		g.log.Warn("loop_same_outcome", "tool", tool, "occurrences", g.outcomes[key])
	}
}

// Reset clears all loop state. Intended for session boundaries, not per
// call.
func (g *LoopGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = nil
	g.callCounts = make(map[string]int)
	g.outcomes = make(map[string]int)
	g.globalLoops = 0
}

// GlobalLoops reports the session-wide loop detection count.
func (g *LoopGuard) GlobalLoops() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.globalLoops
}

// findCycleLocked looks for a short-period ping-pong pattern at the tail of
// the recent history: for period p, the last p call keys must equal the p
// keys immediately before them. A period whose keys are all identical is
// plain repetition, left to the count thresholds.
func (g *LoopGuard) findCycleLocked() (string, int) {
	tail := g.history
	if len(tail) > historyWindow {
		tail = tail[len(tail)-historyWindow:]
	}
	for _, p := range []int{2, 3} {
		if len(tail) < 2*p {
			continue
		}
		last := tail[len(tail)-p:]
		prev := tail[len(tail)-2*p : len(tail)-p]
		match := true
		uniform := true
		for i := 0; i < p; i++ {
			if last[i].key() != prev[i].key() {
				match = false
				break
			}
			if last[i].key() != last[0].key() {
				uniform = false
			}
		}
		if !match || uniform {
			continue
		}
		names := make([]string, 0, p)
		for _, r := range last {
			names = append(names, r.tool)
		}
		return strings.Join(names, " -> "), p
	}
	return "", 0
}
