package agent

import (
	"fmt"
	"strings"

	"github.com/quarrylabs/warden/tools"
)

const systemPreamble = `You are warden, an operations agent. You work in steps.
Each turn, reply with ONLY one JSON object, no prose around it:

  {"type":"tool_call","tool_call":{"thought":"<why>","tool_name":"<name>","tool_params":{...}}}
  {"type":"final","final":{"thought":"<why>","output":"<answer>"}}

Rules:
- Use only the tools listed below, with their documented parameters.
- If a tool result starts with "IRON LAW VIOLATION:" the action is forbidden. Do not retry it; change approach or finish.
- If a tool result starts with "LOOP DETECTED:" you are repeating yourself. Stop and finish with what you have.
- If a tool result says approval is pending, the run will pause; do not re-issue the call.
- Finish with a final response as soon as the task is done.`

func buildSystemPrompt(registry *tools.Registry) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nAvailable tools:\n")
	if registry == nil || len(registry.All()) == 0 {
		b.WriteString("(none)\n")
		return b.String()
	}
	for _, t := range registry.All() {
		fmt.Fprintf(&b, "\n## %s (tier: %s)\n%s\nParameters (JSON Schema):\n%s\n",
			t.Name(), t.Tier(), strings.TrimSpace(t.Description()), strings.TrimSpace(t.ParameterSchema()))
	}
	return b.String()
}
