package guard

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Enabled bool

	Policy    PolicyConfig
	Audit     AuditConfig
	Approvals ApprovalsConfig
	Archive   ArchiveConfig
}

// PolicyConfig extends the built-in pattern tables. The zero value keeps
// the defaults.
type PolicyConfig struct {
	ProtectedBranches  []string        `yaml:"protected_branches"`
	CIPathPrefixes     []string        `yaml:"ci_path_prefixes"`
	SensitiveFileHints []string        `yaml:"sensitive_file_hints"`
	SecretPatterns     []PatternConfig `yaml:"secret_patterns"`

	// StrikeLimit is the consecutive-failure count at which the escalation
	// law fires. Zero means the default of 3.
	StrikeLimit int `yaml:"strike_limit"`
}

type PatternConfig struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

type AuditConfig struct {
	JSONLPath      string
	RotateMaxBytes int64
}

type ApprovalsConfig struct {
	Enabled bool
	Timeout time.Duration
}

type ArchiveConfig struct {
	Enabled bool
	DSN     string
}

// LoadPolicyFile reads policy overrides from a YAML file.
func LoadPolicyFile(path string) (PolicyConfig, error) {
	var out PolicyConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return out, nil
}
