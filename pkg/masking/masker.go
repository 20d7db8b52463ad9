package masking

import "strings"

// Masker is the interface for structural maskers that need more than regex
// pattern matching to decide whether and how to redact something.
type Masker interface {
	// Name returns the unique identifier for this masker.
	Name() string

	// AppliesTo performs a lightweight check on whether this masker should
	// process the data. Should be fast (string contains, not parsing).
	AppliesTo(data string) bool

	// Mask applies masking logic and returns the masked result. Must be
	// defensive: return original data on parse/processing errors.
	Mask(data string) string
}

// bearerTokenMasker redacts "Authorization: Bearer <token>" and
// "Authorization: Basic <creds>" header lines that show up verbatim in
// substrate request/response dumps, which the generic token regex pattern
// can miss when the header value itself doesn't look like a long opaque
// string (e.g. a short service secret).
type bearerTokenMasker struct{}

func (bearerTokenMasker) Name() string { return "bearer_token" }

func (bearerTokenMasker) AppliesTo(data string) bool {
	lower := strings.ToLower(data)
	return strings.Contains(lower, "authorization:") || strings.Contains(lower, "\"authorization\"")
}

func (bearerTokenMasker) Mask(data string) string {
	lines := strings.Split(data, "\n")
	for i, line := range lines {
		idx := strings.Index(strings.ToLower(line), "authorization")
		if idx < 0 {
			continue
		}
		colon := strings.IndexByte(line[idx:], ':')
		if colon < 0 {
			continue
		}
		lines[i] = line[:idx+colon+1] + " [MASKED_AUTHORIZATION]"
	}
	return strings.Join(lines, "\n")
}
