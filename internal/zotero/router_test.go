package zotero

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name              string
	collections       []Collection
	failListCollections bool
	resolvable        map[string]bool
	downloaded        map[string]string
}

func (f *fakeSource) ListCollections(ctx context.Context) ([]Collection, error) {
	if f.failListCollections {
		return nil, errors.New(f.name + " unavailable")
	}
	return f.collections, nil
}
func (f *fakeSource) FindCollectionByName(ctx context.Context, name string) (Collection, bool, error) {
	return Collection{}, false, nil
}
func (f *fakeSource) GetCollectionItems(ctx context.Context, collectionKey string, recursive bool) ([]Item, error) {
	return nil, nil
}
func (f *fakeSource) GetItemAttachments(ctx context.Context, itemKey string) ([]ItemAttachment, error) {
	return nil, nil
}
func (f *fakeSource) GetItemMetadata(ctx context.Context, itemKey string) (Item, error) {
	return Item{}, nil
}
func (f *fakeSource) ListTags(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeSource) GetRecentItems(ctx context.Context, limit int) ([]Item, error) { return nil, nil }
func (f *fakeSource) CanResolveLocally(ctx context.Context, attachmentKey string) bool {
	return f.resolvable[attachmentKey]
}
func (f *fakeSource) DownloadAttachment(ctx context.Context, itemKey, attachmentKey, outputPath string) (string, error) {
	if f.downloaded == nil {
		f.downloaded = map[string]string{}
	}
	f.downloaded[attachmentKey] = f.name
	return outputPath, nil
}
func (f *fakeSource) GetCachedFulltext(ctx context.Context, attachmentKey string) (string, bool, error) {
	return "", false, nil
}

func TestRouter_LocalFirstFallsBackOnFailure(t *testing.T) {
	local := &fakeSource{name: "local", failListCollections: true}
	web := &fakeSource{name: "web", collections: []Collection{{Key: "C1"}}}
	r, err := NewRouter(local, web, StrategyLocalFirst, zerolog.Nop())
	require.NoError(t, err)

	cols, err := r.ListCollections(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Collection{{Key: "C1"}}, cols)
}

func TestRouter_PerFileFallback(t *testing.T) {
	local := &fakeSource{name: "local", resolvable: map[string]bool{"A1": true}}
	web := &fakeSource{name: "web"}
	r, err := NewRouter(local, web, StrategyLocalFirst, zerolog.Nop())
	require.NoError(t, err)

	_, src1, err := r.DownloadAttachment(context.Background(), "ITEM", "A1", "/tmp/a1.pdf")
	require.NoError(t, err)
	require.Equal(t, SourceLocal, src1)

	_, src2, err := r.DownloadAttachment(context.Background(), "ITEM", "A2", "/tmp/a2.pdf")
	require.NoError(t, err)
	require.Equal(t, SourceWeb, src2)
}

func TestRouter_LocalOnlyFailsWithoutLocal(t *testing.T) {
	web := &fakeSource{name: "web"}
	r, err := NewRouter(nil, web, StrategyLocalOnly, zerolog.Nop())
	require.NoError(t, err)

	_, err = r.ListCollections(context.Background())
	require.Error(t, err)
}

func TestRouter_WebOnlyNeverTouchesLocal(t *testing.T) {
	local := &fakeSource{name: "local", failListCollections: true}
	web := &fakeSource{name: "web", collections: []Collection{{Key: "C1"}}}
	r, err := NewRouter(local, web, StrategyWebOnly, zerolog.Nop())
	require.NoError(t, err)

	cols, err := r.ListCollections(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Collection{{Key: "C1"}}, cols)
}

func TestNewRouter_RequiresWebAdapter(t *testing.T) {
	_, err := NewRouter(nil, nil, StrategyAuto, zerolog.Nop())
	require.Error(t, err)
}
