package retrieve

import "strings"

// Policy is the fixed retrieval policy of spec §4.13: top_k bounds, a score
// floor, and a per-chunk character budget.
type Policy struct {
	TopKDefault      int
	TopKMax          int
	MinScore         float64
	MaxCharsPerChunk int
}

// DefaultPolicy matches the tool protocol table of spec §6: top_k defaults
// to 6, clamps to [1,20]; chunks trim to a generous reading-window size.
func DefaultPolicy() Policy {
	return Policy{TopKDefault: 6, TopKMax: 20, MinScore: 0, MaxCharsPerChunk: 1200}
}

// ClampTopK applies the default-then-bounds rule: zero or negative requests
// fall back to the default; anything above the max is capped.
func (p Policy) ClampTopK(requested int) int {
	topK := requested
	if topK <= 0 {
		topK = p.TopKDefault
	}
	if topK > p.TopKMax {
		topK = p.TopKMax
	}
	return topK
}

// TrimToWordBoundary truncates text to at most maxChars, backing off to the
// nearest preceding whitespace so words are never split, and appends an
// ellipsis when truncation actually happened. maxChars <= 0 disables
// trimming.
func TrimToWordBoundary(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	cut := maxChars
	if idx := strings.LastIndexAny(text[:cut], " \t\n"); idx > 0 {
		cut = idx
	}
	return strings.TrimRight(text[:cut], " \t\n") + "..."
}
