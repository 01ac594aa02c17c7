package guard

import (
	"regexp"
	"strings"
)

// NamedPattern is one entry of the secret-detection table. Patterns are kept
// as an explicit table rather than inline in control flow so new ones can be
// added (built-in or via config) without touching the laws.
type NamedPattern struct {
	Name string
	Re   *regexp.Regexp
}

// builtinSecretPatterns is ordered: first match wins, so the more specific
// provider formats come before the generic assignment shapes.
var builtinSecretPatterns = []NamedPattern{
	{Name: "anthropic_api_key", Re: regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_-]{16,}`)},
	{Name: "openai_api_key", Re: regexp.MustCompile(`\bsk-[A-Za-z0-9]{32,}\b`)},
	{Name: "aws_access_key", Re: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{Name: "github_token", Re: regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{Name: "github_fine_grained_pat", Re: regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{22,}`)},
	{Name: "slack_token", Re: regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}`)},
	{Name: "google_api_key", Re: regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}`)},
	{Name: "private_key_block", Re: regexp.MustCompile(`-----BEGIN [A-Z0-9 ]*PRIVATE KEY-----`)},
	{Name: "bearer_token", Re: regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._-]{16,}`)},
	{Name: "jwt_like", Re: regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`)},
	{Name: "database_url_with_credentials", Re: regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mariadb|mongodb(?:\+srv)?|redis|amqp)://[^\s:@/]+:[^\s@/]+@`)},
	{Name: "assignment", Re: regexp.MustCompile(`(?i)\b(?:password|passwd|secret|token|api[_-]?key)\s*[:=]\s*['"]?[A-Za-z0-9._/+-]{8,}`)},
}

// sensitiveFileHints matches by substring against the lowercased path.
var sensitiveFileHints = []string{
	".env",
	"credentials",
	"secrets",
	"id_rsa",
	"id_ed25519",
	".pem",
	".keystore",
	"netrc",
}

var ciPathPrefixes = []string{
	".github/workflows",
	".gitlab-ci",
	".circleci",
	".travis.yml",
	"Jenkinsfile",
	"azure-pipelines",
	"bitbucket-pipelines",
}

var protectedBranches = []string{"main", "master"}

// PatternLibrary bundles the built-in detectors with any policy-supplied
// additions. It is immutable after construction.
type PatternLibrary struct {
	secrets           []NamedPattern
	fileHints         []string
	ciPrefixes        []string
	protectedBranches []string
}

func NewPatternLibrary(policy PolicyConfig) *PatternLibrary {
	lib := &PatternLibrary{
		secrets:           builtinSecretPatterns,
		fileHints:         sensitiveFileHints,
		ciPrefixes:        ciPathPrefixes,
		protectedBranches: protectedBranches,
	}
	for _, p := range policy.SecretPatterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = "custom"
		}
		lib.secrets = append(lib.secrets, NamedPattern{Name: name, Re: re})
	}
	if len(policy.SensitiveFileHints) > 0 {
		lib.fileHints = append(lib.fileHints, policy.SensitiveFileHints...)
	}
	if len(policy.CIPathPrefixes) > 0 {
		lib.ciPrefixes = append(lib.ciPrefixes, policy.CIPathPrefixes...)
	}
	if len(policy.ProtectedBranches) > 0 {
		lib.protectedBranches = policy.ProtectedBranches
	}
	return lib
}

// DetectSecret scans content against the pattern table in order and returns
// the name of the first matching pattern.
func (l *PatternLibrary) DetectSecret(content string) (string, bool) {
	if strings.TrimSpace(content) == "" {
		return "", false
	}
	for _, p := range l.secrets {
		if p.Re.MatchString(content) {
			return p.Name, true
		}
	}
	return "", false
}

func (l *PatternLibrary) IsSensitivePath(path string) bool {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	for _, hint := range l.fileHints {
		if strings.Contains(path, strings.ToLower(hint)) {
			return true
		}
	}
	return false
}

func (l *PatternLibrary) IsCIPath(path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}
	norm := strings.TrimPrefix(strings.ReplaceAll(path, "\\", "/"), "./")
	for _, prefix := range l.ciPrefixes {
		if strings.HasPrefix(norm, prefix) {
			return true
		}
		// CI files can sit below a repository subdirectory.
		if strings.Contains(norm, "/"+prefix) {
			return true
		}
	}
	return false
}

func (l *PatternLibrary) IsProtectedBranch(branch string) bool {
	branch = strings.ToLower(strings.TrimSpace(branch))
	if branch == "" {
		return false
	}
	for _, b := range l.protectedBranches {
		if branch == strings.ToLower(strings.TrimSpace(b)) {
			return true
		}
	}
	return false
}
