// Package secrets resolves secret references (API keys, tokens) at
// startup so they never live in config files.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// EnvResolver resolves secret references from environment variables.
// Resolution is fail-closed: an unset or empty variable is an error,
// never an empty credential.
type EnvResolver struct {
	// Aliases maps logical names to env var names, e.g.
	// "llm_api_key" -> "OPENAI_API_KEY".
	Aliases map[string]string
}

func (r *EnvResolver) Resolve(_ context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty secret ref")
	}

	envName := ref
	if r != nil {
		if v, ok := r.Aliases[ref]; ok && strings.TrimSpace(v) != "" {
			envName = strings.TrimSpace(v)
		}
	}

	val, ok := os.LookupEnv(envName)
	if !ok {
		return "", fmt.Errorf("secret not found (env var %q is not set)", envName)
	}
	if strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("secret is empty (env var %q)", envName)
	}
	return val, nil
}
