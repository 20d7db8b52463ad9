package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// patternSpec is the uncompiled form used to seed builtinPatterns.
type patternSpec struct {
	pattern     string
	replacement string
	description string
}

// builtinPatterns is the fixed set of secret-shaped substrings this core
// redacts from tool results and logged response bodies before they reach a
// session transcript or the log stream. Carried over from the teacher's
// built-in masking pattern set; the per-MCP-server custom pattern and
// pattern-group machinery has no analog here (there are no MCP servers in
// this core, only the substrate gateway), so only the fixed builtin set
// survives.
var builtinPatterns = map[string]patternSpec{
	"api_key": {
		pattern:     `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{20,})["']?`,
		replacement: `"api_key": "[MASKED_API_KEY]"`,
		description: "API keys",
	},
	"password": {
		pattern:     `(?i)(?:password|pwd|pass)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`,
		replacement: `"password": "[MASKED_PASSWORD]"`,
		description: "Passwords",
	},
	"token": {
		pattern:     `(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
		replacement: `"token": "[MASKED_TOKEN]"`,
		description: "Access tokens",
	},
	"private_key": {
		pattern:     `(?i)(?:private[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
		replacement: `"private_key": "[MASKED_PRIVATE_KEY]"`,
		description: "Private keys",
	},
	"secret_key": {
		pattern:     `(?i)(?:secret[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
		replacement: `"secret_key": "[MASKED_SECRET_KEY]"`,
		description: "Secret keys",
	},
	"certificate": {
		pattern:     `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`,
		replacement: `[MASKED_CERTIFICATE]`,
		description: "PEM certificates and keys",
	},
	"email": {
		pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
		replacement: `[MASKED_EMAIL]`,
		description: "Email addresses",
	},
	"aws_access_key": {
		pattern:     `(?i)(?:aws[_-]?access[_-]?key[_-]?id)["']?\s*[:=]\s*["']?(AKIA[A-Z0-9]{16})["']?`,
		replacement: `"aws_access_key_id": "[MASKED_AWS_KEY]"`,
		description: "AWS access key IDs",
	},
	"aws_secret_key": {
		pattern:     `(?i)(?:aws[_-]?secret[_-]?access[_-]?key)["']?\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`,
		replacement: `"aws_secret_access_key": "[MASKED_AWS_SECRET]"`,
		description: "AWS secret access keys",
	},
	"github_token": {
		pattern:     `(?i)gh[ps]_[A-Za-z0-9_]{36,255}`,
		replacement: `[MASKED_GITHUB_TOKEN]`,
		description: "GitHub tokens",
	},
}

// compileBuiltinPatterns compiles builtinPatterns into s.patterns. Invalid
// patterns are logged and skipped; none of the set above should ever fail to
// compile, this guards against a future edit introducing a bad regex.
func (s *Service) compileBuiltinPatterns() {
	for name, spec := range builtinPatterns {
		compiled, err := regexp.Compile(spec.pattern)
		if err != nil {
			slog.Error("compile builtin masking pattern failed, skipping", "pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: spec.replacement,
			Description: spec.description,
		}
	}
}
