package agent

import (
	"fmt"
	"strings"

	"github.com/quarrylabs/warden/internal/jsonutil"
)

// The model answers every turn with a single JSON object: either a
// tool call or a final answer.
//
//	{"type":"tool_call","tool_call":{"thought":"...","tool_name":"...","tool_params":{...}}}
//	{"type":"final","final":{"thought":"...","output":"..."}}
type modelResponse struct {
	Type     string          `json:"type"`
	ToolCall *toolCallIntent `json:"tool_call,omitempty"`
	Final    *finalIntent    `json:"final,omitempty"`
}

type toolCallIntent struct {
	Thought    string         `json:"thought,omitempty"`
	ToolName   string         `json:"tool_name"`
	ToolParams map[string]any `json:"tool_params,omitempty"`
}

type finalIntent struct {
	Thought string `json:"thought,omitempty"`
	Output  string `json:"output"`
}

// Final is the terminal result of a run.
type Final struct {
	Thought string `json:"thought,omitempty"`
	Output  any    `json:"output"`
	Pending bool   `json:"pending,omitempty"`
}

func parseModelResponse(text string) (modelResponse, error) {
	var out modelResponse
	if err := jsonutil.Decode(text, &out); err != nil {
		return modelResponse{}, fmt.Errorf("unparseable model response: %w", err)
	}
	switch strings.TrimSpace(out.Type) {
	case "tool_call":
		if out.ToolCall == nil || strings.TrimSpace(out.ToolCall.ToolName) == "" {
			return modelResponse{}, fmt.Errorf("tool_call response missing tool_name")
		}
	case "final":
		if out.Final == nil {
			return modelResponse{}, fmt.Errorf("final response missing final payload")
		}
	default:
		return modelResponse{}, fmt.Errorf("unknown response type %q", out.Type)
	}
	return out, nil
}
