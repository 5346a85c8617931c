package retrieve

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClampTopK_ZeroFallsBackToDefault(t *testing.T) {
	p := DefaultPolicy()
	require.Equal(t, p.TopKDefault, p.ClampTopK(0))
}

func TestClampTopK_AboveMaxIsCapped(t *testing.T) {
	p := DefaultPolicy()
	require.Equal(t, p.TopKMax, p.ClampTopK(500))
}

func TestClampTopK_WithinRangePassesThrough(t *testing.T) {
	p := DefaultPolicy()
	require.Equal(t, 3, p.ClampTopK(3))
}

func TestTrimToWordBoundary_ShortTextUnchanged(t *testing.T) {
	require.Equal(t, "short text", TrimToWordBoundary("short text", 100))
}

func TestTrimToWordBoundary_BacksOffToWhitespace(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	require.Equal(t, "the quick...", TrimToWordBoundary(text, 12))
}

func TestTrimToWordBoundary_ZeroDisablesTrimming(t *testing.T) {
	text := "anything goes here"
	require.Equal(t, text, TrimToWordBoundary(text, 0))
}
