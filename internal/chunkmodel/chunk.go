// Package chunkmodel defines the Chunk value object shared by the chunker,
// the vector index gateway, and retrieval.
package chunkmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// PageSpan is an inclusive, 1-indexed page range with Start <= End.
type PageSpan struct {
	Start int
	End   int
}

// Chunk is a semantically meaningful segment of a document, immutable after
// construction via NewChunk.
type Chunk struct {
	ID                  string
	DocID               string
	Text                string
	PageSpan            PageSpan
	SectionHeading      string
	SectionPath         []string
	ChunkIdx            int
	TokenCount          int
	SignalToNoiseRatio  float64
}

// NewChunk validates its inputs and derives ID deterministically. It returns
// an error rather than panicking so callers in the ingestion pipeline can
// fail a single document without aborting the batch.
func NewChunk(docID, text string, pageSpan PageSpan, sectionHeading string, sectionPath []string, chunkIdx int, embeddingModelID string) (Chunk, error) {
	if pageSpan.Start > pageSpan.End {
		return Chunk{}, fmt.Errorf("chunkmodel: invalid page span: start (%d) > end (%d)", pageSpan.Start, pageSpan.End)
	}
	if chunkIdx < 0 {
		return Chunk{}, fmt.Errorf("chunkmodel: chunk_idx must be >= 0, got %d", chunkIdx)
	}
	return Chunk{
		ID:             GenerateChunkID(docID, pageSpan, sectionPath, embeddingModelID, chunkIdx),
		DocID:          docID,
		Text:           text,
		PageSpan:       pageSpan,
		SectionHeading: sectionHeading,
		SectionPath:    sectionPath,
		ChunkIdx:       chunkIdx,
	}, nil
}

// GenerateChunkID derives a deterministic 16-hex-character chunk id from
// (doc_id, location, embedding_model_id, chunk_idx). Location is the section
// path joined by "|" when non-empty, else "p<start>-<end>" from the page
// span. Two calls with identical inputs always produce the same id.
func GenerateChunkID(docID string, pageSpan PageSpan, sectionPath []string, embeddingModelID string, chunkIdx int) string {
	var location string
	if len(sectionPath) > 0 {
		location = strings.Join(sectionPath, "|")
	} else {
		location = fmt.Sprintf("p%d-%d", pageSpan.Start, pageSpan.End)
	}

	idString := strings.Join([]string{docID, location, embeddingModelID, strconv.Itoa(chunkIdx)}, ":")
	sum := sha256.Sum256([]byte(idString))
	return hex.EncodeToString(sum[:])[:16]
}
