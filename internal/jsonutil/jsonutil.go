// Package jsonutil recovers JSON payloads from noisy model output:
// fenced code blocks, leading prose, trailing commentary, and mildly
// malformed JSON that can be repaired.
package jsonutil

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/quailyquaily/uniai"
)

var (
	ErrEmptyInput  = errors.New("empty json input")
	ErrNoCandidate = errors.New("no json candidates")
)

// Extract locates the first valid JSON payload in text. Candidates are
// gathered with uniai's snippet helpers; each candidate is also tried
// after stripping non-JSON lines and after repair.
func Extract(text string) ([]byte, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, ErrEmptyInput
	}

	var lastErr error
	for _, cand := range candidates(raw) {
		for _, v := range variants(cand) {
			var tmp any
			if err := json.Unmarshal([]byte(v), &tmp); err != nil {
				lastErr = err
				continue
			}
			return []byte(v), nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoCandidate
}

// Decode extracts a JSON payload from text and unmarshals it into dst.
func Decode(text string, dst any) error {
	data, err := Extract(text)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func candidates(raw string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(raw)
	if cands, err := uniai.CollectJSONCandidates(raw); err == nil {
		for _, c := range cands {
			add(c)
		}
	}
	for _, c := range uniai.FindJSONSnippets(raw) {
		add(c)
	}
	return out
}

func variants(cand string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(cand)
	stripped := strings.TrimSpace(uniai.StripNonJSONLines(cand))
	add(stripped)
	add(strings.TrimSpace(uniai.AttemptJSONRepair(cand)))
	if stripped != "" && stripped != cand {
		add(strings.TrimSpace(uniai.AttemptJSONRepair(stripped)))
	}
	return out
}
