// Package agent runs the step loop: ask the model, gate every tool
// call through the guard, feed observations back, stop on a final
// answer, a pause, or the step budget.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quarrylabs/warden/guard"
	"github.com/quarrylabs/warden/internal/strutil"
	"github.com/quarrylabs/warden/llm"
	"github.com/quarrylabs/warden/tools"
)

const (
	defaultMaxSteps         = 20
	defaultMaxObservation   = 16 * 1024
	maxConsecutiveBadParses = 3
)

type Engine struct {
	client   llm.Client
	registry *tools.Registry
	guard    *guard.Guard

	log            *slog.Logger
	model          string
	maxSteps       int
	params         map[string]any
	maxObservation int
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithModel(model string) Option {
	return func(e *Engine) { e.model = strings.TrimSpace(model) }
}

func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithParameters sets provider-specific request knobs (temperature,
// max_tokens and friends).
func WithParameters(p map[string]any) Option {
	return func(e *Engine) { e.params = p }
}

func WithMaxObservationBytes(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxObservation = n
		}
	}
}

func New(client llm.Client, registry *tools.Registry, g *guard.Guard, opts ...Option) *Engine {
	e := &Engine{
		client:         client,
		registry:       registry,
		guard:          g,
		log:            slog.Default(),
		maxSteps:       defaultMaxSteps,
		maxObservation: defaultMaxObservation,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type RunOptions struct {
	RunID          string
	Channel        string
	UserID         string
	ConversationID string
}

// Run executes the loop for one task. A paused run (approval pending)
// returns a Final whose Output is a PendingOutput and Pending=true;
// that is not an error.
func (e *Engine) Run(ctx context.Context, task string, opts RunOptions) (*Final, *Context, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, nil, fmt.Errorf("empty task")
	}
	if e.client == nil {
		return nil, nil, fmt.Errorf("nil llm client")
	}

	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}

	agentCtx := NewContext(task, e.maxSteps)
	agentCtx.RunID = runID
	if e.guard != nil {
		e.guard.ResetLoopGuard()
	}

	messages := []llm.Message{
		{Role: "system", Content: buildSystemPrompt(e.registry)},
		{Role: "user", Content: task},
	}

	log := e.log.With("run_id", runID)
	log.Info("run_started", "task", strutil.Ellipsize(task, 200), "max_steps", e.maxSteps)

	parseFailures := 0
	for step := 1; step <= e.maxSteps; step++ {
		res, err := e.client.Chat(ctx, llm.Request{
			Model:      e.model,
			Messages:   messages,
			ForceJSON:  true,
			Parameters: e.params,
		})
		if err != nil {
			return nil, agentCtx, fmt.Errorf("llm call failed at step %d: %w", step, err)
		}
		agentCtx.Metrics.LLMCalls++
		agentCtx.Metrics.InputTokens += res.Usage.InputTokens
		agentCtx.Metrics.OutputTokens += res.Usage.OutputTokens

		parsed, perr := parseModelResponse(res.Text)
		if perr != nil {
			parseFailures++
			log.Warn("bad_model_response", "step", step, "error", perr.Error())
			if parseFailures >= maxConsecutiveBadParses {
				return nil, agentCtx, fmt.Errorf("model produced %d unparseable responses in a row: %w", parseFailures, perr)
			}
			messages = append(messages,
				llm.Message{Role: "assistant", Content: res.Text},
				llm.Message{Role: "user", Content: "Your last response was not a valid protocol JSON object. Reply with exactly one JSON object of type tool_call or final."},
			)
			continue
		}
		parseFailures = 0

		if parsed.Type == "final" {
			log.Info("final", "step", step, "thought", strutil.Ellipsize(parsed.Final.Thought, 300))
			agentCtx.AddStep(Step{Thought: parsed.Final.Thought, Action: "final"})
			return &Final{Thought: parsed.Final.Thought, Output: parsed.Final.Output}, agentCtx, nil
		}

		call := parsed.ToolCall
		start := time.Now()
		meta := guard.Meta{
			RunID:          runID,
			Step:           step,
			Channel:        opts.Channel,
			UserID:         opts.UserID,
			ConversationID: opts.ConversationID,
		}
		result := e.dispatch(ctx, meta, call.ToolName, call.ToolParams)
		agentCtx.Metrics.ToolCalls++

		observation := result.Data
		var stepErr error
		if !result.Success {
			observation = result.Error
			stepErr = fmt.Errorf("%s", result.Error)
		}
		observation = strutil.Ellipsize(observation, e.maxObservation)

		agentCtx.AddStep(Step{
			Thought:     call.Thought,
			Action:      call.ToolName,
			ActionInput: call.ToolParams,
			Observation: observation,
			Error:       stepErr,
			Duration:    time.Since(start),
		})
		log.Info("tool_result",
			"step", step,
			"tool", call.ToolName,
			"success", result.Success,
			"duration_ms", time.Since(start).Milliseconds(),
		)

		if result.ApprovalID != "" {
			log.Info("run_paused", "step", step, "approval_id", result.ApprovalID)
			out := PendingOutput{
				Status:            "pending_approval",
				ApprovalRequestID: result.ApprovalID,
				Tool:              call.ToolName,
				Message:           fmt.Sprintf("tool %s is awaiting approval (%s)", call.ToolName, result.ApprovalID),
			}
			return &Final{Output: out, Pending: true}, agentCtx, nil
		}

		messages = append(messages,
			llm.Message{Role: "assistant", Content: res.Text},
			llm.Message{Role: "user", Content: observationMessage(call.ToolName, result.Success, observation)},
		)
	}

	return nil, agentCtx, fmt.Errorf("run exceeded max steps (%d) without a final answer", e.maxSteps)
}

func (e *Engine) dispatch(ctx context.Context, meta guard.Meta, tool string, params map[string]any) guard.ToolResult {
	if e.guard != nil {
		return e.guard.Dispatch(ctx, meta, tool, params)
	}
	// No guard configured: execute directly. Only used in tests and
	// throwaway setups; the CLI always wires a guard.
	if e.registry == nil {
		return guard.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", tool)}
	}
	t, ok := e.registry.Get(tool)
	if !ok {
		return guard.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", tool)}
	}
	out, err := t.Execute(ctx, params)
	if err != nil {
		return guard.ToolResult{Success: false, Error: err.Error()}
	}
	return guard.ToolResult{Success: true, Data: out}
}

func observationMessage(tool string, success bool, observation string) string {
	payload, _ := json.Marshal(map[string]any{
		"tool":        tool,
		"success":     success,
		"observation": observation,
	})
	return "Tool result:\n" + string(payload)
}
