package ingest

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// batchLogEvery controls how often Phase A emits a progress line, per spec
// §4.12's "every 10-20 downloads" guidance.
const batchLogEvery = 15

// progressTracker counts completed work items and throttles log lines.
type progressTracker struct {
	mu    sync.Mutex
	done  int
	total int
	log   zerolog.Logger
	label string
}

func newProgressTracker(log zerolog.Logger, label string, total int) *progressTracker {
	return &progressTracker{log: log, label: label, total: total}
}

func (p *progressTracker) increment() {
	p.mu.Lock()
	p.done++
	done := p.done
	p.mu.Unlock()

	if done == p.total || done%batchLogEvery == 0 {
		p.log.Info().Str("phase", p.label).Int("done", done).Int("total", p.total).Msg("batch progress")
	}
}

// matchesTagFilter applies spec §4.12's tag filtering: include-tags use OR
// semantics (any match retains the item), exclude-tags use ANY-match
// exclusion, both case-insensitive substring-on-tag.
func matchesTagFilter(itemTags, includeTags, excludeTags []string) bool {
	for _, exclude := range excludeTags {
		for _, tag := range itemTags {
			if tagContains(tag, exclude) {
				return false
			}
		}
	}
	if len(includeTags) == 0 {
		return true
	}
	for _, include := range includeTags {
		for _, tag := range itemTags {
			if tagContains(tag, include) {
				return true
			}
		}
	}
	return false
}

func tagContains(tag, needle string) bool {
	return strings.Contains(strings.ToLower(tag), strings.ToLower(needle))
}
