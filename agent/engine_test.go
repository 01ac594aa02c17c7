package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/quarrylabs/warden/guard"
	"github.com/quarrylabs/warden/llm"
	"github.com/quarrylabs/warden/tools"
)

// --- log-capturing handler ---

type logRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

type capturingHandler struct {
	mu      sync.Mutex
	records []logRecord
}

func (h *capturingHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (h *capturingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := logRecord{Level: r.Level, Message: r.Message, Attrs: make(map[string]any)}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}
func (h *capturingHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *capturingHandler) WithGroup(_ string) slog.Handler      { return h }

func (h *capturingHandler) countByMessage(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Message == msg {
			n++
		}
	}
	return n
}

// --- mock llm client ---

type mockClient struct {
	mu        sync.Mutex
	responses []llm.Result
	requests  []llm.Request
}

func newMockClient(responses ...llm.Result) *mockClient {
	return &mockClient{responses: responses}
}

func (m *mockClient) Chat(_ context.Context, req llm.Request) (llm.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return llm.Result{}, errors.New("mock client exhausted")
	}
	res := m.responses[0]
	m.responses = m.responses[1:]
	return res, nil
}

func finalResponse(thought, output string) llm.Result {
	return llm.Result{Text: fmt.Sprintf(`{"type":"final","final":{"thought":%q,"output":%q}}`, thought, output)}
}

func toolCallResponse(tool string, params string) llm.Result {
	if params == "" {
		params = "{}"
	}
	return llm.Result{Text: fmt.Sprintf(`{"type":"tool_call","tool_call":{"thought":"t","tool_name":%q,"tool_params":%s}}`, tool, params)}
}

// --- test tools ---

type recordingTool struct {
	name   string
	tier   guard.PermissionTier
	out    string
	err    error
	mu     sync.Mutex
	params []map[string]any
}

func (t *recordingTool) Name() string               { return t.name }
func (t *recordingTool) Description() string        { return "test tool" }
func (t *recordingTool) ParameterSchema() string    { return `{"type":"object"}` }
func (t *recordingTool) Tier() guard.PermissionTier { return t.tier }
func (t *recordingTool) Execute(_ context.Context, p map[string]any) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.params = append(t.params, p)
	return t.out, t.err
}

func (t *recordingTool) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.params)
}

func testRegistry(ts ...tools.Tool) *tools.Registry {
	r := tools.NewRegistry()
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

func testGuard(r *tools.Registry) *guard.Guard {
	return guard.New(guard.Config{Enabled: true}, guard.WithToolSource(tools.GuardSource(r)))
}

// --- tests ---

func TestRun_FinalOnFirstStep(t *testing.T) {
	client := newMockClient(finalResponse("all done", "42"))
	e := New(client, testRegistry(), nil)

	final, agentCtx, err := e.Run(context.Background(), "what is 6*7", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Output != "42" {
		t.Fatalf("expected output 42, got %v", final.Output)
	}
	if agentCtx.Metrics.LLMCalls != 1 {
		t.Fatalf("expected 1 llm call, got %d", agentCtx.Metrics.LLMCalls)
	}
}

func TestRun_ToolCallThenFinal(t *testing.T) {
	tool := &recordingTool{name: "lookup", tier: guard.TierLow, out: "result-data"}
	registry := testRegistry(tool)
	client := newMockClient(
		toolCallResponse("lookup", `{"q":"x"}`),
		finalResponse("done", "found it"),
	)
	e := New(client, registry, testGuard(registry))

	final, agentCtx, err := e.Run(context.Background(), "look something up", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Output != "found it" {
		t.Fatalf("unexpected output: %v", final.Output)
	}
	if tool.callCount() != 1 {
		t.Fatalf("expected 1 tool execution, got %d", tool.callCount())
	}
	if agentCtx.Metrics.ToolCalls != 1 {
		t.Fatalf("expected 1 tool call in metrics, got %d", agentCtx.Metrics.ToolCalls)
	}

	// The observation must be fed back to the model.
	last := client.requests[len(client.requests)-1]
	found := false
	for _, m := range last.Messages {
		if strings.Contains(m.Content, "result-data") {
			found = true
		}
	}
	if !found {
		t.Fatal("tool observation not fed back to the model")
	}
}

func TestRun_BlockedToolSurfacesViolation(t *testing.T) {
	tool := &recordingTool{name: "git_push", tier: guard.TierHigh, out: "pushed"}
	registry := testRegistry(tool)
	client := newMockClient(
		toolCallResponse("git_push", `{"branch":"main"}`),
		finalResponse("cannot push", "push to main is forbidden"),
	)
	e := New(client, registry, testGuard(registry))

	final, agentCtx, err := e.Run(context.Background(), "push to main", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tool.callCount() != 0 {
		t.Fatal("blocked tool must not execute")
	}
	step := agentCtx.Steps[0]
	if step.Error == nil || !strings.HasPrefix(step.Error.Error(), guard.IronLawViolationPrefix) {
		t.Fatalf("expected iron law violation in step error, got %v", step.Error)
	}
	if final.Pending {
		t.Fatal("blocked call must not pause the run")
	}
}

func TestRun_PausesOnApproval(t *testing.T) {
	tool := &recordingTool{
		name: "git_push",
		tier: guard.TierHigh,
		err:  fmt.Errorf("%shigh: push feature", guard.ApprovalRequiredPrefix),
	}
	registry := testRegistry(tool)
	client := newMockClient(toolCallResponse("git_push", `{"branch":"feature/x"}`))
	handler := &capturingHandler{}
	e := New(client, registry, testGuard(registry), WithLogger(slog.New(handler)))

	final, _, err := e.Run(context.Background(), "push the branch", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !final.Pending {
		t.Fatal("expected pending final")
	}
	out, ok := final.Output.(PendingOutput)
	if !ok {
		t.Fatalf("expected PendingOutput, got %T", final.Output)
	}
	if out.Status != "pending_approval" || out.ApprovalRequestID == "" {
		t.Fatalf("unexpected pending output: %+v", out)
	}
	if handler.countByMessage("run_paused") != 1 {
		t.Fatal("expected one run_paused log")
	}
}

func TestRun_RecoversFromBadResponse(t *testing.T) {
	client := newMockClient(
		llm.Result{Text: "sorry, I cannot produce JSON"},
		finalResponse("ok", "recovered"),
	)
	handler := &capturingHandler{}
	e := New(client, testRegistry(), nil, WithLogger(slog.New(handler)))

	final, _, err := e.Run(context.Background(), "do a thing", RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Output != "recovered" {
		t.Fatalf("unexpected output: %v", final.Output)
	}
	if handler.countByMessage("bad_model_response") != 1 {
		t.Fatal("expected one bad_model_response log")
	}
}

func TestRun_FailsAfterRepeatedBadResponses(t *testing.T) {
	client := newMockClient(
		llm.Result{Text: "nope"},
		llm.Result{Text: "still nope"},
		llm.Result{Text: "na"},
	)
	e := New(client, testRegistry(), nil)

	_, _, err := e.Run(context.Background(), "do a thing", RunOptions{})
	if err == nil || !strings.Contains(err.Error(), "unparseable") {
		t.Fatalf("expected unparseable-responses error, got %v", err)
	}
}

func TestRun_MaxStepsExceeded(t *testing.T) {
	tool := &recordingTool{name: "echo", tier: guard.TierLow, out: "hi"}
	registry := testRegistry(tool)
	client := newMockClient(
		toolCallResponse("echo", `{"n":1}`),
		toolCallResponse("echo", `{"n":2}`),
		toolCallResponse("echo", `{"n":3}`),
	)
	e := New(client, registry, testGuard(registry), WithMaxSteps(3))

	_, agentCtx, err := e.Run(context.Background(), "never finish", RunOptions{})
	if err == nil || !strings.Contains(err.Error(), "max steps") {
		t.Fatalf("expected max steps error, got %v", err)
	}
	if len(agentCtx.Steps) != 3 {
		t.Fatalf("expected 3 recorded steps, got %d", len(agentCtx.Steps))
	}
}

func TestRun_EmptyTask(t *testing.T) {
	e := New(newMockClient(), testRegistry(), nil)
	if _, _, err := e.Run(context.Background(), "   ", RunOptions{}); err == nil {
		t.Fatal("expected error for empty task")
	}
}
