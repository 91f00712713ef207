package utils

import (
	"strings"
)

// ShortID returns the first n characters of an id, for payment references and filenames.
func ShortID(id string, n int) string {
	id = strings.ReplaceAll(strings.TrimSpace(id), "-", "")
	if len(id) <= n {
		return strings.ToUpper(id)
	}
	return strings.ToUpper(id[:n])
}

// CleanList trims entries and drops empty ones.
func CleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
