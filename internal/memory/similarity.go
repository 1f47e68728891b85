package memory

import "strings"

// Tokenize splits free text into lowercase word tokens, keeping
// underscores and dashes so ids like "merchant_002" survive intact.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' ||
			r > 127) // keep unicode chars
	})
	result := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		w := strings.ToLower(f)
		if len(w) > 1 && !seen[w] { // skip single chars
			seen[w] = true
			result = append(result, w)
		}
	}
	return result
}

// overlapRatio is |query ∩ have| / |query|, or 0 for an empty query.
func overlapRatio(query, have Set) float64 {
	if len(query) == 0 {
		return 0
	}
	return float64(query.Overlap(have)) / float64(len(query))
}
