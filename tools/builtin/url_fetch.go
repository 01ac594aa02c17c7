package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/quarrylabs/warden/guard"
)

// URLFetchTool fetches HTTP(S) URLs and returns the response body,
// truncated to a byte cap. With extract_text it strips HTML markup and
// returns visible text only.
type URLFetchTool struct {
	Enabled     bool
	Timeout     time.Duration
	MaxBytes    int64
	UserAgent   string
	HTTPClient  *http.Client
	AllowScheme map[string]bool
}

func NewURLFetchTool(enabled bool, timeout time.Duration, maxBytes int64, userAgent string) *URLFetchTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 512 * 1024
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = "warden/1.0 (+https://github.com/quarrylabs/warden)"
	}
	return &URLFetchTool{
		Enabled:     enabled,
		Timeout:     timeout,
		MaxBytes:    maxBytes,
		UserAgent:   userAgent,
		HTTPClient:  &http.Client{Timeout: timeout},
		AllowScheme: map[string]bool{"http": true, "https": true},
	}
}

func (t *URLFetchTool) Name() string { return "url_fetch" }

func (t *URLFetchTool) Description() string {
	return "Fetches an HTTP(S) URL (GET/POST/PUT/DELETE) and returns the response body (truncated)."
}

func (t *URLFetchTool) Tier() guard.PermissionTier { return guard.TierMedium }

func (t *URLFetchTool) ParameterSchema() string {
	return schemaJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to fetch (http/https).",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "Optional HTTP method. Defaults to GET.",
				"enum":        []string{"GET", "POST", "PUT", "DELETE"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
				"description":          "Optional HTTP headers. Values must be strings.",
			},
			"body": map[string]any{
				"type":        []string{"string", "object", "array", "number", "boolean", "null"},
				"description": "Optional request body (POST and PUT only).",
			},
			"extract_text": map[string]any{
				"type":        "boolean",
				"description": "If true and the response is HTML, returns visible text instead of markup.",
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Optional timeout override in seconds.",
			},
			"max_bytes": map[string]any{
				"type":        "integer",
				"description": "Optional max response bytes to read.",
			},
		},
		"required": []string{"url"},
	})
}

func (t *URLFetchTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	if !t.Enabled {
		return "", fmt.Errorf("url_fetch tool is disabled (enable via config: tools.url_fetch.enabled=true)")
	}

	rawURL := paramString(params, "url")
	if rawURL == "" {
		return "", fmt.Errorf("missing required param: url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if !t.AllowScheme[strings.ToLower(u.Scheme)] {
		return "", fmt.Errorf("unsupported url scheme: %s", u.Scheme)
	}

	method := http.MethodGet
	if m := strings.ToUpper(paramString(params, "method")); m != "" {
		method = m
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return "", fmt.Errorf("unsupported method: %s (url_fetch supports GET, POST, PUT, DELETE)", method)
	}

	timeout := t.Timeout
	if v, ok := params["timeout_seconds"]; ok {
		if secs, ok := asFloat64(v); ok && secs > 0 {
			timeout = time.Duration(secs * float64(time.Second))
		}
	}
	maxBytes := t.MaxBytes
	if v, ok := params["max_bytes"]; ok {
		if n, ok := asInt64(v); ok && n > 0 {
			maxBytes = n
		}
	}

	var bodyReader io.Reader
	var bodyProvided, bodyIsJSON bool
	if v, ok := params["body"]; ok {
		bodyProvided = true
		if v != nil {
			switch x := v.(type) {
			case string:
				bodyReader = strings.NewReader(x)
			default:
				bodyIsJSON = true
				bb, err := json.Marshal(x)
				if err != nil {
					return "", fmt.Errorf("invalid param: body must be a string or JSON-serializable value: %w", err)
				}
				bodyReader = bytes.NewReader(bb)
			}
		}
	}
	if bodyProvided && method != http.MethodPost && method != http.MethodPut {
		return "", fmt.Errorf("request body is only supported for POST/PUT (got %s)", method)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, u.String(), bodyReader)
	if err != nil {
		return "", err
	}

	var hasUserAgent, hasContentType bool
	if hdrs, ok := params["headers"]; ok && hdrs != nil {
		m, ok := hdrs.(map[string]any)
		if !ok {
			return "", fmt.Errorf("invalid param: headers must be an object of string values")
		}
		for k, v := range m {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			value, ok := v.(string)
			if !ok {
				return "", fmt.Errorf("invalid header %q: value must be a string", key)
			}
			value = strings.TrimSpace(value)
			if strings.EqualFold(key, "host") {
				if value != "" {
					req.Host = value
				}
				continue
			}
			// net/http computes Content-Length itself.
			if strings.EqualFold(key, "content-length") {
				continue
			}
			req.Header.Set(key, value)
			if strings.EqualFold(key, "user-agent") {
				hasUserAgent = true
			}
			if strings.EqualFold(key, "content-type") {
				hasContentType = true
			}
		}
	}
	if !hasUserAgent && strings.TrimSpace(t.UserAgent) != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
	if bodyIsJSON && !hasContentType {
		req.Header.Set("Content-Type", "application/json")
	}

	var client http.Client
	if t.HTTPClient != nil {
		client = *t.HTTPClient
	}
	client.Timeout = timeout

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var truncated bool
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(body)) > maxBytes {
		body = body[:maxBytes]
		truncated = true
	}

	ct := resp.Header.Get("Content-Type")
	text := string(bytes.ToValidUTF8(body, []byte("\n[non-utf8 body]\n")))
	if paramBool(params, "extract_text") && looksLikeHTML(ct, body) {
		text = extractVisibleText(text)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "url: %s\n", u.String())
	fmt.Fprintf(&b, "method: %s\n", method)
	fmt.Fprintf(&b, "status: %d\n", resp.StatusCode)
	if ct != "" {
		fmt.Fprintf(&b, "content_type: %s\n", ct)
	}
	fmt.Fprintf(&b, "truncated: %t\n", truncated)
	b.WriteString("body:\n")
	b.WriteString(text)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return b.String(), fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return b.String(), nil
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	head := bytes.ToLower(bytes.TrimSpace(body))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}

// extractVisibleText tokenizes HTML and keeps text nodes, skipping
// script and style contents. Block-ish boundaries become newlines.
func extractVisibleText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skipDepth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skipDepth++
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			txt := strings.TrimSpace(string(z.Text()))
			if txt != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(txt)
			}
		}
	}
}
