package utils

import (
	"bytes"
	"unicode/utf8"
)

// sniffLength defines the maximum number of bytes inspected for NUL bytes when detecting binary content.
const sniffLength = 8000

// IsBinary reports whether the provided byte slice appears to contain binary data:
// a NUL byte within the first sniffLength bytes or content that is not valid UTF-8.
func IsBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	sniffed := data
	if len(sniffed) > sniffLength {
		sniffed = sniffed[:sniffLength]
	}
	if bytes.IndexByte(sniffed, 0) >= 0 {
		return true
	}
	return !utf8.Valid(data)
}
