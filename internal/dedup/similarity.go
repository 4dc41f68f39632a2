package dedup

import "strings"

// TextSimilarity compares two free-text strings, ignoring case and
// surrounding whitespace. It is symmetric and returns a value in [0, 1]:
//
//   - 1.0 when both are equal
//   - 0.8 when one contains the other
//   - otherwise the number of shared words divided by the size of the larger
//     word set
//
// An empty string on either side yields 0.
func TextSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	wordsA := wordSet(a)
	wordsB := wordSet(b)
	common := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			common++
		}
	}
	larger := max(len(wordsA), len(wordsB))
	if larger == 0 {
		return 0
	}
	return float64(common) / float64(larger)
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
