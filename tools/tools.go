// Package tools defines the tool contract and registry. Tools are opaque
// operations with a name, a declared permission tier, and an execute
// function; the guard decides whether they run.
package tools

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/quarrylabs/warden/guard"
)

type Tool interface {
	Name() string
	Description() string
	ParameterSchema() string
	Tier() guard.PermissionTier
	Execute(ctx context.Context, params map[string]any) (string, error)
}

type Registry struct {
	mu     sync.RWMutex
	byName map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(t Tool) {
	if t == nil {
		return
	}
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[strings.TrimSpace(name)]
	return t, ok
}

// All returns the registered tools sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.byName))
	for _, t := range r.byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// GuardSource adapts the registry to the guard's tool lookup interface.
func GuardSource(r *Registry) guard.ToolSource {
	return guard.ToolSourceFunc(func(name string) (guard.ToolRunner, bool) {
		t, ok := r.Get(name)
		if !ok {
			return nil, false
		}
		return t, true
	})
}
