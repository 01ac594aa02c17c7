package builtin

import (
	"context"
	"fmt"

	"github.com/quarrylabs/warden/guard"
)

// EchoTool returns its input unchanged. Useful for smoke-testing the
// dispatch path without touching disk or network.
type EchoTool struct{}

func NewEchoTool() *EchoTool { return &EchoTool{} }

func (t *EchoTool) Name() string { return "echo" }

func (t *EchoTool) Description() string {
	return "Returns the given message unchanged."
}

func (t *EchoTool) Tier() guard.PermissionTier { return guard.TierLow }

func (t *EchoTool) ParameterSchema() string {
	return schemaJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string", "description": "Text to echo back."},
		},
		"required": []string{"message"},
	})
}

func (t *EchoTool) Execute(_ context.Context, params map[string]any) (string, error) {
	msg := paramString(params, "message")
	if msg == "" {
		return "", fmt.Errorf("missing required param: message")
	}
	return msg, nil
}
