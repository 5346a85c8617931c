// Package zotero implements the polymorphic Zotero source router (C4), the
// local SQLite reader (C5), the rate-limited web client (C6), and the
// metadata resolver (C7).
package zotero

import "context"

// Collection is a Zotero collection folder.
type Collection struct {
	Key      string
	Name     string
	ParentKey string
}

// Item is a bibliographic item, excluding attachment/annotation rows.
type Item struct {
	Key   string
	Title string
	Extra string
	Tags  []string
}

// ItemAttachment is one PDF (or other) file attached to an Item.
type ItemAttachment struct {
	Key         string
	ParentKey   string
	Filename    string
	ContentType string
	LinkMode    int
}

// DownloadSource marks which backend actually served an attachment.
type DownloadSource string

const (
	SourceLocal DownloadSource = "local"
	SourceWeb   DownloadSource = "web"
)

// Source is the capability set both Zotero backends implement (spec §4.4).
type Source interface {
	ListCollections(ctx context.Context) ([]Collection, error)
	FindCollectionByName(ctx context.Context, name string) (Collection, bool, error)
	GetCollectionItems(ctx context.Context, collectionKey string, recursive bool) ([]Item, error)
	GetItemAttachments(ctx context.Context, itemKey string) ([]ItemAttachment, error)
	GetItemMetadata(ctx context.Context, itemKey string) (Item, error)
	ListTags(ctx context.Context) ([]string, error)
	GetRecentItems(ctx context.Context, limit int) ([]Item, error)
}

// LocalSource additionally knows whether a given attachment is resolvable
// from the on-disk snapshot without attempting the read, and can download
// (i.e. copy) it from local storage.
type LocalSource interface {
	Source
	CanResolveLocally(ctx context.Context, attachmentKey string) bool
	DownloadAttachment(ctx context.Context, itemKey, attachmentKey, outputPath string) (string, error)
	GetCachedFulltext(ctx context.Context, attachmentKey string) (string, bool, error)
}

// WebSource additionally downloads attachment bytes over HTTP.
type WebSource interface {
	Source
	DownloadAttachment(ctx context.Context, itemKey, attachmentKey, outputPath string) (string, error)
}
