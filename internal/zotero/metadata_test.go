package zotero

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type metadataFakeSource struct {
	collections []Collection
	items       map[string][]Item
}

func (f *metadataFakeSource) ListCollections(ctx context.Context) ([]Collection, error) {
	return f.collections, nil
}
func (f *metadataFakeSource) FindCollectionByName(ctx context.Context, name string) (Collection, bool, error) {
	return Collection{}, false, nil
}
func (f *metadataFakeSource) GetCollectionItems(ctx context.Context, key string, recursive bool) ([]Item, error) {
	return f.items[key], nil
}
func (f *metadataFakeSource) GetItemAttachments(ctx context.Context, itemKey string) ([]ItemAttachment, error) {
	return nil, nil
}
func (f *metadataFakeSource) GetItemMetadata(ctx context.Context, itemKey string) (Item, error) {
	return Item{}, nil
}
func (f *metadataFakeSource) ListTags(ctx context.Context) ([]string, error) { return nil, nil }
func (f *metadataFakeSource) GetRecentItems(ctx context.Context, limit int) ([]Item, error) {
	return nil, nil
}

func TestMetadataResolver_MatchesByDOI(t *testing.T) {
	src := &metadataFakeSource{
		collections: []Collection{{Key: "C1"}},
		items: map[string][]Item{
			"C1": {{Key: "I1", Title: "Some Paper", Extra: "DOI: 10.1234/abc"}},
		},
	}
	r := NewMetadataResolver(src, zerolog.Nop())

	meta, found, err := r.Resolve(context.Background(), "doc1", "doi:10.1234/ABC")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "10.1234/abc", meta.DOI)
}

func TestMetadataResolver_MatchesByTitleAboveThreshold(t *testing.T) {
	src := &metadataFakeSource{
		collections: []Collection{{Key: "C1"}},
		items: map[string][]Item{
			"C1": {{Key: "I1", Title: "Deep Learning for Natural Language Processing"}},
		},
	}
	r := NewMetadataResolver(src, zerolog.Nop())

	meta, found, err := r.Resolve(context.Background(), "doc1", "Deep Learning for Natural Language Processing Tasks")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Deep Learning for Natural Language Processing", meta.Title)
}

func TestMetadataResolver_NoMatchReturnsFalseNotError(t *testing.T) {
	src := &metadataFakeSource{
		collections: []Collection{{Key: "C1"}},
		items: map[string][]Item{
			"C1": {{Key: "I1", Title: "Completely Unrelated Subject"}},
		},
	}
	r := NewMetadataResolver(src, zerolog.Nop())

	_, found, err := r.Resolve(context.Background(), "doc1", "Something Else Entirely Different")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMapLanguageToOCRCode(t *testing.T) {
	require.Equal(t, "en", mapLanguageToOCRCode("en-US"))
	require.Equal(t, "de", mapLanguageToOCRCode("de-DE"))
	require.Equal(t, "", mapLanguageToOCRCode(""))
}

func TestJaccardScore_Basic(t *testing.T) {
	require.Equal(t, 1.0, jaccardScore("a b c", "a b c"))
	require.Equal(t, 0.0, jaccardScore("a b c", "d e f"))
}
