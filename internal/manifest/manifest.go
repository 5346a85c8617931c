// Package manifest is the durable join between Phase A (download) and
// Phase B (process) of the ingestion orchestrator: a record of which Zotero
// items were retained and where their PDF attachments live on disk.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Sims2k/citeloom-sub000/internal/fingerprint"
)

// DownloadStatus is the outcome of attempting to materialize one attachment.
type DownloadStatus string

const (
	DownloadPending DownloadStatus = "pending"
	DownloadSuccess DownloadStatus = "success"
	DownloadFailed  DownloadStatus = "failed"
)

// Source marks which backend actually served an attachment's bytes.
type Source string

const (
	SourceLocal Source = "local"
	SourceWeb   Source = "web"
)

// Attachment records one manifest attachment's download outcome.
type Attachment struct {
	ItemKey            string                    `json:"item_key"`
	AttachmentKey      string                    `json:"attachment_key"`
	Filename           string                    `json:"filename"`
	LocalPath          string                    `json:"local_path,omitempty"`
	DownloadStatus     DownloadStatus            `json:"download_status"`
	FileSize           int64                     `json:"file_size,omitempty"`
	Error              string                    `json:"error,omitempty"`
	Source             Source                    `json:"source,omitempty"`
	ContentFingerprint *fingerprint.Fingerprint `json:"content_fingerprint,omitempty"`
}

// Item is one retained Zotero item and its attachments.
type Item struct {
	ItemKey     string            `json:"item_key"`
	Title       string            `json:"title"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Attachments []Attachment      `json:"attachments"`
}

// Manifest is the full record for one collection download pass.
type Manifest struct {
	CollectionKey  string    `json:"collection_key"`
	CollectionName string    `json:"collection_name"`
	DownloadTime   time.Time `json:"download_time"`
	Items          []Item    `json:"items"`
}

// New returns an empty manifest stamped with the current time.
func New(collectionKey, collectionName string, now time.Time) *Manifest {
	return &Manifest{CollectionKey: collectionKey, CollectionName: collectionName, DownloadTime: now}
}

// AddItem appends or replaces an item by ItemKey.
func (m *Manifest) AddItem(item Item) {
	for i := range m.Items {
		if m.Items[i].ItemKey == item.ItemKey {
			m.Items[i] = item
			return
		}
	}
	m.Items = append(m.Items, item)
}

// GetItemByKey looks up an item by its Zotero item key.
func (m *Manifest) GetItemByKey(itemKey string) (Item, bool) {
	for _, it := range m.Items {
		if it.ItemKey == itemKey {
			return it, true
		}
	}
	return Item{}, false
}

// GetPDFAttachments returns every attachment whose filename ends in .pdf
// across all items, paired with the owning item key.
func (m *Manifest) GetPDFAttachments() []Attachment {
	var out []Attachment
	for _, it := range m.Items {
		for _, a := range it.Attachments {
			if isPDF(a.Filename) {
				out = append(out, a)
			}
		}
	}
	return out
}

// GetSuccessfulDownloads returns every attachment whose download succeeded,
// the set Phase B iterates over.
func (m *Manifest) GetSuccessfulDownloads() []Attachment {
	var out []Attachment
	for _, it := range m.Items {
		for _, a := range it.Attachments {
			if a.DownloadStatus == DownloadSuccess {
				out = append(out, a)
			}
		}
	}
	return out
}

func isPDF(filename string) bool {
	return len(filename) >= 4 && (filename[len(filename)-4:] == ".pdf" || filename[len(filename)-4:] == ".PDF")
}

// Save serializes the manifest to <dir>/<collection_key>/manifest.json.
func (m *Manifest) Save(baseDir string) (string, error) {
	dir := filepath.Join(baseDir, m.CollectionKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "manifest.json")
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a manifest previously written by Save.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
