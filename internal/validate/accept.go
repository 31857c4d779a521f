package validate

import (
	"strings"

	"github.com/filedrop/uploader/internal/models"
)

// Pattern is one parsed accept token.
type Pattern struct {
	Token string
	kind  patternKind
	value string // lower-cased comparison value
}

type patternKind int

const (
	patternExtension patternKind = iota
	patternCategory
	patternAny
	patternExact
)

// Patterns is a parsed accept list.
type Patterns []Pattern

// ParseAccept splits an accept string into patterns, ignoring empty tokens.
func ParseAccept(accept string) Patterns {
	var out Patterns
	for _, tok := range strings.Split(accept, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		lower := strings.ToLower(tok)
		switch {
		case strings.HasPrefix(lower, "."):
			out = append(out, Pattern{Token: tok, kind: patternExtension, value: lower})
		case lower == "*/*" || lower == "*":
			out = append(out, Pattern{Token: tok, kind: patternAny})
		case strings.HasSuffix(lower, "/*"):
			out = append(out, Pattern{Token: tok, kind: patternCategory, value: strings.TrimSuffix(lower, "*")})
		default:
			out = append(out, Pattern{Token: tok, kind: patternExact, value: lower})
		}
	}
	return out
}

// Match reports whether f satisfies at least one pattern.
func (ps Patterns) Match(f models.RawFile) bool {
	for _, p := range ps {
		if p.Match(f) {
			return true
		}
	}
	return false
}

// Match reports whether f satisfies p.
func (p Pattern) Match(f models.RawFile) bool {
	mimeType := strings.ToLower(f.Type)

	switch p.kind {
	case patternExtension:
		return strings.HasSuffix(strings.ToLower(f.Name), p.value)
	case patternAny:
		return true
	case patternCategory:
		return strings.HasPrefix(mimeType, p.value)
	default:
		return mimeType == p.value
	}
}
