// Package chunker converts a resolved document body into an ordered
// sequence of chunks carrying deterministic ids, page spans, and section
// context (C9).
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Sims2k/citeloom-sub000/internal/chunkmodel"
	"github.com/Sims2k/citeloom-sub000/internal/documents"
	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

// Heading is one entry of a document's heading tree, anchored by its
// character offset into Document.Text.
type Heading struct {
	Offset int
	Level  int
	Text   string
}

// Document is the chunker's input: normalized plain text, a page map from
// page number to the [start, end) character range it covers, and a heading
// tree used to attach section context.
type Document struct {
	Text     string
	PageMap  map[int][2]int
	Headings []Heading
}

// Options configures the token-window fallback strategy.
type Options struct {
	MaxTokens        int
	OverlapTokens    int
	EmbeddingModelID string
}

const approxCharsPerToken = 4

// Chunker performs token-window chunking with overlap, attaching section
// context via the two nearest enclosing headings.
type Chunker struct {
	tokenizer documents.Tokenizer
}

// New builds a Chunker. tokenizer is used only to populate each chunk's
// TokenCount, not to drive window sizing (window sizing uses the same
// approximate chars-per-token heuristic the teacher's simple chunker uses).
func New(tokenizer documents.Tokenizer) *Chunker {
	if tokenizer == nil {
		tokenizer = documents.RuneTokenizer{}
	}
	return &Chunker{tokenizer: tokenizer}
}

// Chunk produces the ordered chunk sequence for doc. Page spans cover
// [1, N] for an N-page document and chunk_idx is monotonically
// non-decreasing, per spec.
func (c *Chunker) Chunk(docID string, doc Document, opt Options) ([]chunkmodel.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, errs.New(errs.KindChunkingError, fmt.Sprintf("document %s has no text to chunk", docID))
	}

	maxTokens := opt.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	overlapTokens := opt.OverlapTokens
	if overlapTokens < 0 {
		overlapTokens = 0
	}

	targetChars := maxTokens * approxCharsPerToken
	if targetChars < 32 {
		targetChars = 32
	}
	overlapChars := overlapTokens * approxCharsPerToken

	sortedHeadings := append([]Heading(nil), doc.Headings...)
	sort.Slice(sortedHeadings, func(i, j int) bool { return sortedHeadings[i].Offset < sortedHeadings[j].Offset })

	sortedPages := sortedPageNumbers(doc.PageMap)

	var chunks []chunkmodel.Chunk
	start := 0
	idx := 0
	text := doc.Text

	for start < len(text) {
		end := start + targetChars
		if end > len(text) {
			end = len(text)
		} else if i := strings.LastIndex(text[start:end], " "); i > targetChars/2 {
			end = start + i
		}

		chunkText := strings.TrimSpace(text[start:end])
		if chunkText == "" {
			if end == len(text) {
				break
			}
			start = end
			continue
		}

		span := pageSpanFor(sortedPages, doc.PageMap, start, end)
		sectionPath := sectionPathFor(sortedHeadings, start)
		var sectionHeading string
		if len(sectionPath) > 0 {
			sectionHeading = sectionPath[len(sectionPath)-1]
		}

		chunk, err := chunkmodel.NewChunk(docID, chunkText, span, sectionHeading, sectionPath, idx, opt.EmbeddingModelID)
		if err != nil {
			return nil, errs.Wrap(errs.KindChunkingError, "failed constructing chunk", err)
		}
		chunk.TokenCount = c.tokenizer.Count(chunkText)
		chunks = append(chunks, chunk)
		idx++

		if end == len(text) {
			break
		}
		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}

	if len(chunks) == 0 {
		return nil, errs.New(errs.KindChunkingError, fmt.Sprintf("document %s produced zero chunks", docID))
	}

	return chunks, nil
}

func sortedPageNumbers(pageMap map[int][2]int) []int {
	pages := make([]int, 0, len(pageMap))
	for p := range pageMap {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// pageSpanFor finds the first and last page whose character range overlaps
// [start, end). If no page map is available, the whole document is treated
// as page 1.
func pageSpanFor(sortedPages []int, pageMap map[int][2]int, start, end int) chunkmodel.PageSpan {
	if len(sortedPages) == 0 {
		return chunkmodel.PageSpan{Start: 1, End: 1}
	}

	first := sortedPages[0]
	last := sortedPages[len(sortedPages)-1]
	found := false

	for _, p := range sortedPages {
		r := pageMap[p]
		if r[1] <= start || r[0] >= end {
			continue
		}
		if !found {
			first = p
			found = true
		}
		last = p
	}

	if !found {
		// start/end fall outside every page range (e.g. trailing
		// whitespace); attribute to the nearest preceding page.
		for _, p := range sortedPages {
			if pageMap[p][0] <= start {
				first = p
				last = p
			}
		}
	}

	return chunkmodel.PageSpan{Start: first, End: last}
}

// sectionPathFor returns up to the two nearest enclosing headings (outer
// first) active at character offset pos.
func sectionPathFor(headings []Heading, pos int) []string {
	var stack []Heading
	for _, h := range headings {
		if h.Offset > pos {
			break
		}
		for len(stack) > 0 && stack[len(stack)-1].Level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)
	}

	if len(stack) == 0 {
		return nil
	}
	if len(stack) > 2 {
		stack = stack[len(stack)-2:]
	}

	out := make([]string, len(stack))
	for i, h := range stack {
		out[i] = h.Text
	}
	return out
}
