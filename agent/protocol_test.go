package agent

import (
	"strings"
	"testing"
)

func TestParseModelResponse(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		wantErr string
		check   func(t *testing.T, r modelResponse)
	}{
		{
			name: "tool call",
			in:   `{"type":"tool_call","tool_call":{"thought":"x","tool_name":"echo","tool_params":{"message":"hi"}}}`,
			check: func(t *testing.T, r modelResponse) {
				if r.ToolCall.ToolName != "echo" {
					t.Fatalf("got tool %q", r.ToolCall.ToolName)
				}
				if r.ToolCall.ToolParams["message"] != "hi" {
					t.Fatalf("got params %v", r.ToolCall.ToolParams)
				}
			},
		},
		{
			name: "final",
			in:   `{"type":"final","final":{"output":"done"}}`,
			check: func(t *testing.T, r modelResponse) {
				if r.Final.Output != "done" {
					t.Fatalf("got output %q", r.Final.Output)
				}
			},
		},
		{
			name: "fenced json",
			in:   "```json\n{\"type\":\"final\",\"final\":{\"output\":\"ok\"}}\n```",
			check: func(t *testing.T, r modelResponse) {
				if r.Final.Output != "ok" {
					t.Fatalf("got output %q", r.Final.Output)
				}
			},
		},
		{name: "missing tool name", in: `{"type":"tool_call","tool_call":{"thought":"x"}}`, wantErr: "missing tool_name"},
		{name: "missing final payload", in: `{"type":"final"}`, wantErr: "missing final"},
		{name: "unknown type", in: `{"type":"plan"}`, wantErr: "unknown response type"},
		{name: "not json", in: "just words", wantErr: "unparseable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := parseModelResponse(tc.in)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.check(t, r)
		})
	}
}
