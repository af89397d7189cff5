package ocr

import "strings"

// normalizeText collapses whitespace and newlines into single spaces and trims.
func normalizeText(t string) string {
	return strings.Join(strings.Fields(t), " ")
}

// snippet returns a shortened version of text for logging.
func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
