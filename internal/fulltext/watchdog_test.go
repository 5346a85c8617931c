package fulltext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type slowConverter struct {
	delay  time.Duration
	result ConversionResult
}

func (s *slowConverter) Convert(ctx context.Context, filePath string) (ConversionResult, error) {
	select {
	case <-time.After(s.delay):
		return s.result, nil
	case <-ctx.Done():
		return ConversionResult{}, ctx.Err()
	}
}

// Given an inner converter that returns promptly, When WatchdogConverter
// wraps it, Then the result passes through unchanged.
func TestWatchdogConverter_PassesThroughFastConversion(t *testing.T) {
	inner := &slowConverter{delay: time.Millisecond, result: ConversionResult{Text: "hello"}}
	w := NewWatchdogConverter(inner, 50*time.Millisecond)

	res, err := w.Convert(context.Background(), "doc.pdf")
	require.NoError(t, err)
	require.Equal(t, "hello", res.Text)
}

// Given an inner converter slower than the configured document timeout,
// When Convert is called, Then it returns a timeout error rather than
// blocking for the inner call's full duration.
func TestWatchdogConverter_TimesOutOnSlowConversion(t *testing.T) {
	inner := &slowConverter{delay: time.Second, result: ConversionResult{Text: "too late"}}
	w := NewWatchdogConverter(inner, 20*time.Millisecond)

	start := time.Now()
	_, err := w.Convert(context.Background(), "doc.pdf")
	elapsed := time.Since(start)

	require.Error(t, err)
	require.Less(t, elapsed, 500*time.Millisecond)
}

// Given a zero document timeout, When NewWatchdogConverter constructs it,
// Then it falls back to DefaultDocumentTimeout rather than firing
// immediately.
func TestNewWatchdogConverter_DefaultsNonPositiveTimeout(t *testing.T) {
	w := NewWatchdogConverter(&fakeConverter{result: ConversionResult{Text: "x"}}, 0)
	require.Equal(t, DefaultDocumentTimeout, w.document)
}
