// Package builtin provides the tools shipped with warden: local file
// access, HTTP fetch, git push, and database operations. Every tool
// declares a permission tier; the guard decides what that tier means.
package builtin

import (
	"encoding/json"
	"strings"

	"github.com/quarrylabs/warden/internal/pathutil"
)

func schemaJSON(s map[string]any) string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

func expandHomePath(p string) string {
	return pathutil.ExpandHomePath(p)
}

func paramString(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func paramBool(params map[string]any, key string) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "1" || s == "yes"
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	}
	return false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	}
	return 0, false
}
