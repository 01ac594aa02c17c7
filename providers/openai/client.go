// Package openai implements llm.Client against any OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quarrylabs/warden/llm"
)

const defaultMaxResponseBytes = 4 * 1024 * 1024

type Client struct {
	Endpoint string
	APIKey   string

	// HTTP is replaceable for tests.
	HTTP *http.Client
	// MaxResponseBytes caps how much of the response body is read.
	MaxResponseBytes int64
}

func New(endpoint, apiKey string) *Client {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	return &Client{
		Endpoint:         endpoint,
		APIKey:           apiKey,
		HTTP:             &http.Client{Timeout: 120 * time.Second},
		MaxResponseBytes: defaultMaxResponseBytes,
	}
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type wireResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	start := time.Now()

	payload := map[string]any{
		"model":    req.Model,
		"messages": encodeMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		payload["tools"] = encodeTools(req.Tools)
	}
	if req.ForceJSON {
		payload["response_format"] = map[string]any{"type": "json_object"}
	}
	for k, v := range req.Parameters {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return llm.Result{}, err
	}

	url := c.Endpoint + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return llm.Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.APIKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return llm.Result{}, err
	}
	defer resp.Body.Close()

	maxBytes := c.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return llm.Result{}, err
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return llm.Result{}, fmt.Errorf("decode chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if wire.Error != nil {
			return llm.Result{}, fmt.Errorf("chat request failed (%d): %s", resp.StatusCode, wire.Error.Message)
		}
		return llm.Result{}, fmt.Errorf("chat request failed (%d)", resp.StatusCode)
	}
	if len(wire.Choices) == 0 {
		return llm.Result{}, fmt.Errorf("chat response has no choices")
	}

	msg := wire.Choices[0].Message
	res := llm.Result{
		Text: msg.Content,
		Usage: llm.Usage{
			InputTokens:  wire.Usage.PromptTokens,
			OutputTokens: wire.Usage.CompletionTokens,
			TotalTokens:  wire.Usage.TotalTokens,
		},
		Duration: time.Since(start),
	}
	for _, tc := range msg.ToolCalls {
		call := llm.ToolCall{ID: tc.ID, Name: tc.Function.Name}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			var args map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err == nil {
				call.Arguments = args
			}
		}
		res.ToolCalls = append(res.ToolCalls, call)
	}
	return res, nil
}

func encodeMessages(msgs []llm.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var wtc wireToolCall
			wtc.ID = tc.ID
			wtc.Type = "function"
			wtc.Function.Name = tc.Name
			if tc.Arguments != nil {
				if b, err := json.Marshal(tc.Arguments); err == nil {
					wtc.Function.Arguments = string(b)
				}
			}
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func encodeTools(tools []llm.Tool) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		if strings.TrimSpace(t.ParametersJSON) != "" {
			wt.Function.Parameters = json.RawMessage(t.ParametersJSON)
		}
		out = append(out, wt)
	}
	return out
}
