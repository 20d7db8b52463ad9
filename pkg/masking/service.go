// Package masking redacts secret-shaped content before it reaches a session
// transcript, a tool result stored in context, or a log line. Grounded on the
// teacher's pkg/masking, trimmed of the per-MCP-server registry and custom
// pattern machinery: this core talks to one upstream (substrate) rather than
// a configurable set of MCP servers, so there is nothing per-server to key
// custom patterns by. The fixed builtin pattern set and fail-open/fail-closed
// split survive unchanged.
package masking

import "log/slog"

// Service applies redaction to tool results and log payloads. Created once
// at startup; stateless aside from its compiled pattern set, safe for
// concurrent use.
type Service struct {
	patterns    map[string]*CompiledPattern
	codeMaskers map[string]Masker
}

// New builds a masking service with every builtin pattern and masker
// compiled and registered eagerly.
func New() *Service {
	s := &Service{
		patterns:    make(map[string]*CompiledPattern),
		codeMaskers: make(map[string]Masker),
	}
	s.compileBuiltinPatterns()
	s.registerMasker(bearerTokenMasker{})

	slog.Info("masking service initialized", "patterns", len(s.patterns), "maskers", len(s.codeMaskers))
	return s
}

// MaskToolResult redacts secret-shaped content from a tool result before it
// is appended to a session's context or transcript. Fail-closed: if masking
// itself errors, the result is withheld rather than risk leaking raw content.
func (s *Service) MaskToolResult(content string) string {
	if content == "" {
		return content
	}
	masked, err := s.apply(content)
	if err != nil {
		slog.Error("masking failed, redacting content", "error", err)
		return "[REDACTED: data masking failure, tool result could not be safely processed]"
	}
	return masked
}

// MaskLogPayload redacts secret-shaped content from a diagnostic log field
// (e.g. a substrate response body logged on error). Fail-open: if masking
// errors, the original payload is logged rather than dropped, since log
// payloads are for debugging and losing them entirely defeats the point.
func (s *Service) MaskLogPayload(content string) string {
	if content == "" {
		return content
	}
	masked, err := s.apply(content)
	if err != nil {
		slog.Warn("log payload masking failed, logging unmasked", "error", err)
		return content
	}
	return masked
}

func (s *Service) apply(content string) (string, error) {
	masked := content
	for _, masker := range s.codeMaskers {
		if masker.AppliesTo(masked) {
			masked = masker.Mask(masked)
		}
	}
	for _, pattern := range s.patterns {
		masked = pattern.Regex.ReplaceAllString(masked, pattern.Replacement)
	}
	return masked, nil
}

func (s *Service) registerMasker(m Masker) {
	s.codeMaskers[m.Name()] = m
}
