package fulltext

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// DefaultWindowThresholdPages and DefaultWindowSizePages bound the windowed
// conversion strategy of spec §4.12: documents at or above the threshold
// are converted in page-range windows rather than in one call.
const (
	DefaultWindowThresholdPages = 1000
	DefaultWindowSizePages      = 20
)

// RangeConverter is optionally implemented by a Converter that can report
// its page count and convert an isolated page range. WindowedConverter
// falls back to a single whole-document Convert call when the wrapped
// converter does not implement it, so plugging in a converter that only
// knows how to process a file in one shot still works, just without the
// per-window checkpoint resumability.
type RangeConverter interface {
	PageCount(ctx context.Context, filePath string) (int, error)
	ConvertRange(ctx context.Context, filePath string, startPage, endPage int) (ConversionResult, error)
}

// WindowProgress reports a completed window, letting the caller persist a
// resumable checkpoint position after every window rather than only at
// whole-document granularity.
type WindowProgress struct {
	StartPage int
	EndPage   int
	PageCount int
}

// WindowedConverter wraps a Converter, dispatching large documents through
// RangeConverter in bounded page windows, each under its own per-page
// timeout, and reporting progress after each window via onWindow.
type WindowedConverter struct {
	inner          Converter
	pageTimeout    time.Duration
	thresholdPages int
	windowPages    int
	onWindow       func(WindowProgress)
}

// NewWindowedConverter wraps inner. pageTimeout, thresholdPages, and
// windowPages fall back to the spec defaults when non-positive.
func NewWindowedConverter(inner Converter, pageTimeout time.Duration, thresholdPages, windowPages int) *WindowedConverter {
	if pageTimeout <= 0 {
		pageTimeout = DefaultPageTimeout
	}
	if thresholdPages <= 0 {
		thresholdPages = DefaultWindowThresholdPages
	}
	if windowPages <= 0 {
		windowPages = DefaultWindowSizePages
	}
	return &WindowedConverter{inner: inner, pageTimeout: pageTimeout, thresholdPages: thresholdPages, windowPages: windowPages}
}

// OnWindow registers a callback invoked after each window is converted,
// in page order. Callers use this to persist a per-window checkpoint
// position for documents too large to convert in one pass.
func (w *WindowedConverter) OnWindow(fn func(WindowProgress)) {
	w.onWindow = fn
}

func (w *WindowedConverter) Convert(ctx context.Context, filePath string) (ConversionResult, error) {
	ranged, ok := w.inner.(RangeConverter)
	if !ok {
		return w.inner.Convert(ctx, filePath)
	}

	pageCount, err := ranged.PageCount(ctx, filePath)
	if err != nil {
		return ConversionResult{}, fmt.Errorf("fulltext: page count for %s: %w", filePath, err)
	}
	if pageCount < w.thresholdPages {
		return w.inner.Convert(ctx, filePath)
	}

	pages := make(map[int]string, pageCount)
	for start := 1; start <= pageCount; start += w.windowPages {
		end := start + w.windowPages - 1
		if end > pageCount {
			end = pageCount
		}

		windowCtx, cancel := context.WithTimeout(ctx, w.pageTimeout*time.Duration(end-start+1))
		res, err := ranged.ConvertRange(windowCtx, filePath, start, end)
		cancel()
		if err != nil {
			return ConversionResult{}, fmt.Errorf("fulltext: converting pages %d-%d of %s: %w", start, end, filePath, err)
		}
		for p, text := range res.Pages {
			pages[p] = text
		}

		if w.onWindow != nil {
			w.onWindow(WindowProgress{StartPage: start, EndPage: end, PageCount: pageCount})
		}
	}

	return ConversionResult{Text: joinPages(pages), Pages: pages}, nil
}

func joinPages(pages map[int]string) string {
	keys := make([]int, 0, len(pages))
	for k := range pages {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var out string
	for i, k := range keys {
		if i > 0 {
			out += "\n\n"
		}
		out += pages[k]
	}
	return out
}
