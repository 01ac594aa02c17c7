package agent

import "time"

// Context accumulates the visible trace of a run: every step, what was
// attempted, and what came back.
type Context struct {
	Task     string
	RunID    string
	MaxSteps int
	Steps    []Step
	Metrics  Metrics
}

type Step struct {
	StepNumber  int
	Thought     string
	Action      string
	ActionInput map[string]any
	Observation string
	Error       error
	Duration    time.Duration
}

type Metrics struct {
	InputTokens  int
	OutputTokens int
	LLMCalls     int
	ToolCalls    int
}

func NewContext(task string, maxSteps int) *Context {
	return &Context{Task: task, MaxSteps: maxSteps}
}

func (c *Context) AddStep(s Step) {
	s.StepNumber = len(c.Steps) + 1
	c.Steps = append(c.Steps, s)
}

func (c *Context) LastStep() *Step {
	if len(c.Steps) == 0 {
		return nil
	}
	return &c.Steps[len(c.Steps)-1]
}
