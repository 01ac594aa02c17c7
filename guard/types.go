package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

type PermissionTier string

const (
	TierLow      PermissionTier = "low"
	TierMedium   PermissionTier = "medium"
	TierHigh     PermissionTier = "high"
	TierCritical PermissionTier = "critical"
)

type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
)

// Verdict is the outcome of a Loop Guard pre-check.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictWarn  Verdict = "warn"
	VerdictBlock Verdict = "block"
)

// ActionContext is the normalized description of what is about to happen,
// built fresh for every check. It is never persisted.
type ActionContext struct {
	Action     string
	ToolName   string
	Params     map[string]any
	TargetFile string
	GitBranch  string

	// ErrorCount is the consecutive-failure count for this logical action,
	// injected by the caller from the strike tracker. The law engine only
	// reads it.
	ErrorCount int
}

type Violation struct {
	LawID       string   `json:"law_id"`
	Description string   `json:"description"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
}

type LawCheckResult struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

// BlockMessages returns the messages of the block-severity violations,
// in rule order.
func (r LawCheckResult) BlockMessages() []string {
	var out []string
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			out = append(out, v.Message)
		}
	}
	return out
}

// LoopCheck is the verdict for a single prospective tool call.
type LoopCheck struct {
	Verdict   Verdict
	Reason    string
	CallCount int
}

// ToolResult is the single result shape shared by tool executions,
// blocked calls, and approval lifecycle operations.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	// ApprovalID is set when the call was deferred to a human instead of
	// executed.
	ApprovalID string `json:"approval_id,omitempty"`
}

// Meta identifies the turn a check belongs to, for audit correlation.
type Meta struct {
	RunID          string
	Step           int
	Channel        string
	UserID         string
	ConversationID string
	Time           time.Time
}

type AuditEvent struct {
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"ts"`
	RunID     string         `json:"run_id,omitempty"`
	Step      int            `json:"step,omitempty"`
	Event     string         `json:"event"`
	Tool      string         `json:"tool,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Result    string         `json:"result,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func newEventID(meta Meta, event string) string {
	seed := fmt.Sprintf("%s|%d|%s|%s", meta.RunID, meta.Step, event, meta.Time.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(seed))
	return "evt_" + hex.EncodeToString(sum[:8])
}

// canonicalJSON renders v with map keys sorted recursively, so that two
// logically identical parameter bags serialize to the same bytes no matter
// how the caller built them.
func canonicalJSON(v any) ([]byte, error) {
	cv, err := canonicalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cv)
}

func canonicalize(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			cv, err := canonicalize(x[k])
			if err != nil {
				return nil, err
			}
			out = append(out, k, cv)
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(x))
		for _, item := range x {
			cv, err := canonicalize(item)
			if err != nil {
				return nil, err
			}
			out = append(out, cv)
		}
		return out, nil
	case nil, string, bool, float64, int, int64, json.Number:
		return x, nil
	default:
		// Round-trip anything JSON-ish through encoding/json.
		b, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("cannot canonicalize value of type %T", v)
		}
		var y any
		if err := json.Unmarshal(b, &y); err != nil {
			return nil, fmt.Errorf("cannot canonicalize value of type %T", v)
		}
		return canonicalize(y)
	}
}

// ParamHash returns a short content hash of a parameter bag. Identical bags
// hash identically regardless of key order.
func ParamHash(params map[string]any) string {
	b, err := canonicalJSON(params)
	if err != nil {
		// Fall back to a stable but lossy representation.
		b = []byte(fmt.Sprintf("%v", params))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// ResultHash returns a short content hash of a tool result.
func ResultHash(res ToolResult) string {
	seed := fmt.Sprintf("%t|%s|%s", res.Success, res.Data, res.Error)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:8])
}

// incidentalParamKeys never participate in issue-key derivation: two calls
// that differ only in these fields are the same logical action.
var incidentalParamKeys = []string{"request_id", "timestamp", "trace_id"}

// IssueKey derives the logical-action fingerprint used by the strike
// tracker. It is deterministic across key ordering and ignores incidental
// request metadata.
func IssueKey(tool string, params map[string]any) string {
	stable := params
	if len(params) > 0 {
		stable = make(map[string]any, len(params))
		for k, v := range params {
			stable[k] = v
		}
		for _, k := range incidentalParamKeys {
			delete(stable, k)
		}
	}
	payload := map[string]any{
		"tool":   strings.TrimSpace(tool),
		"params": stable,
	}
	b, err := canonicalJSON(payload)
	if err != nil {
		b = []byte(strings.TrimSpace(tool))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}
