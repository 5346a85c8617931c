package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sims2k/citeloom-sub000/internal/documents"
)

func buildDoc(pages int, wordsPerPage int) (Document, string) {
	var b strings.Builder
	pageMap := make(map[int][2]int, pages)
	headings := []Heading{{Offset: 0, Level: 1, Text: "Introduction"}}

	for p := 1; p <= pages; p++ {
		start := b.Len()
		for i := 0; i < wordsPerPage; i++ {
			b.WriteString("word ")
		}
		pageMap[p] = [2]int{start, b.Len()}
	}
	return Document{Text: b.String(), PageMap: pageMap, Headings: headings}, b.String()
}

func TestChunker_PageSpansCoverWholeDocument(t *testing.T) {
	doc, _ := buildDoc(5, 200)
	c := New(documents.RuneTokenizer{})

	chunks, err := c.Chunk("doc1", doc, Options{MaxTokens: 50, OverlapTokens: 5, EmbeddingModelID: "m1"})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	require.Equal(t, 1, chunks[0].PageSpan.Start)
	require.Equal(t, 5, chunks[len(chunks)-1].PageSpan.End)

	for i := 1; i < len(chunks); i++ {
		require.LessOrEqual(t, chunks[i-1].ChunkIdx, chunks[i].ChunkIdx)
	}
}

func TestChunker_DeterministicAcrossRuns(t *testing.T) {
	doc, _ := buildDoc(3, 100)
	c := New(documents.RuneTokenizer{})

	chunks1, err := c.Chunk("doc1", doc, Options{MaxTokens: 30, EmbeddingModelID: "m1"})
	require.NoError(t, err)
	chunks2, err := c.Chunk("doc1", doc, Options{MaxTokens: 30, EmbeddingModelID: "m1"})
	require.NoError(t, err)

	require.Equal(t, len(chunks1), len(chunks2))
	for i := range chunks1 {
		require.Equal(t, chunks1[i].ID, chunks2[i].ID)
	}
}

func TestChunker_EmptyTextIsError(t *testing.T) {
	c := New(documents.RuneTokenizer{})
	_, err := c.Chunk("doc1", Document{Text: "   "}, Options{})
	require.Error(t, err)
}

func TestSectionPathFor_ReturnsAtMostTwoNearestHeadings(t *testing.T) {
	headings := []Heading{
		{Offset: 0, Level: 1, Text: "Chapter 1"},
		{Offset: 10, Level: 2, Text: "Section 1.1"},
		{Offset: 20, Level: 3, Text: "Subsection 1.1.1"},
	}
	path := sectionPathFor(headings, 25)
	require.Equal(t, []string{"Section 1.1", "Subsection 1.1.1"}, path)
}

func TestSectionPathFor_NoHeadingsReturnsNil(t *testing.T) {
	require.Nil(t, sectionPathFor(nil, 5))
}
