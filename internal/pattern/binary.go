package pattern

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// BinaryContent matches the [binary] section patterns of ignore files. Binary files
// matching one of them are emitted as base64 instead of a placeholder.
type BinaryContent struct {
	patterns []string
}

// NewBinaryContent keeps the valid patterns. Patterns are relative to the root and
// anchored there; a trailing slash selects every file below a directory.
func NewBinaryContent(patterns []string) BinaryContent {
	var valid []string
	for _, candidate := range patterns {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "/")
		if strings.HasSuffix(candidate, "/") {
			candidate += "**"
		}
		if candidate == "" || !doublestar.ValidatePattern(candidate) {
			continue
		}
		valid = append(valid, candidate)
	}
	return BinaryContent{patterns: valid}
}

// Matches reports whether relativePath should have its binary content displayed.
func (binaryContent BinaryContent) Matches(relativePath string) bool {
	for _, candidate := range binaryContent.patterns {
		if matched, _ := doublestar.Match(candidate, relativePath); matched {
			return true
		}
	}
	return false
}
