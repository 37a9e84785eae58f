// Package utils provides shared helper functions.
package utils

import (
	"os"
	"path/filepath"
	"unicode/utf8"
)

// EnsureParentDir creates the directory that will hold path, if any.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// TruncateString shortens s to at most maxLen runes, ending with suffix when
// it cuts. It never splits a multi-byte character.
func TruncateString(s string, maxLen int, suffix string) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if suffix == "" {
		suffix = "..."
	}
	cutoff := maxLen - utf8.RuneCountInString(suffix)
	if cutoff < 0 {
		cutoff = 0
	}
	runes := []rune(s)
	return string(runes[:cutoff]) + suffix
}
