package zotero

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"
)

// buildFixtureDB creates a minimal schema mirroring the subset of tables
// LocalDB reads, populated with one collection, one item and one PDF
// attachment stored under storageDir/<attachment_key>/<filename>.
func buildFixtureDB(t *testing.T, dbPath, storageDir string) {
	t.Helper()

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	ddl := []string{
		`CREATE TABLE collections (collectionID INTEGER PRIMARY KEY, collectionName TEXT, key TEXT, parentCollectionID INTEGER)`,
		`CREATE TABLE itemTypes (itemTypeID INTEGER PRIMARY KEY, typeName TEXT)`,
		`CREATE TABLE items (itemID INTEGER PRIMARY KEY, key TEXT, itemTypeID INTEGER, dateAdded TEXT)`,
		`CREATE TABLE itemDataValues (valueID INTEGER PRIMARY KEY, value TEXT)`,
		`CREATE TABLE itemData (itemID INTEGER, valueID INTEGER)`,
		`CREATE TABLE collectionItems (collectionID INTEGER, itemID INTEGER)`,
		`CREATE TABLE itemAttachments (itemID INTEGER, key TEXT, parentItemID INTEGER, data TEXT, linkMode INTEGER)`,
		`CREATE TABLE tags (tagID INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE fulltextItems (itemID INTEGER, content TEXT)`,
	}
	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	_, err = db.Exec(`INSERT INTO collections (collectionID, collectionName, key, parentCollectionID) VALUES (1, 'Research', 'COLL01', NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO itemTypes (itemTypeID, typeName) VALUES (1, 'journalArticle'), (2, 'attachment')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO items (itemID, key, itemTypeID, dateAdded) VALUES (10, 'ITEM01', 1, '2026-01-01'), (11, 'ATT01', 2, '2026-01-02')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO itemDataValues (valueID, value) VALUES (100, 'A Paper About Things')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO itemData (itemID, valueID) VALUES (10, 100)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO collectionItems (collectionID, itemID) VALUES (1, 10)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO itemAttachments (itemID, key, parentItemID, data, linkMode) VALUES (11, 'ATT01', 10, '{"filename":"paper.pdf","contentType":"application/pdf"}', 0)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO tags (tagID, name) VALUES (1, 'important')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO fulltextItems (itemID, content) VALUES (11, 'cached extracted text')`)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(storageDir, "ATT01"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(storageDir, "ATT01", "paper.pdf"), []byte("%PDF-1.4 fixture"), 0o644))
}

func TestOpenLocalDB_MissingFileReturnsNotFound(t *testing.T) {
	_, err := OpenLocalDB(filepath.Join(t.TempDir(), "missing.sqlite"), "")
	require.Error(t, err)
}

func TestLocalDB_ListCollectionsAndItems(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "zotero.sqlite")
	storageDir := filepath.Join(dir, "storage")
	buildFixtureDB(t, dbPath, storageDir)

	l, err := OpenLocalDB(dbPath, storageDir)
	require.NoError(t, err)
	defer l.Close()

	cols, err := l.ListCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 1)
	require.Equal(t, "COLL01", cols[0].Key)

	items, err := l.GetCollectionItems(context.Background(), "COLL01", false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "ITEM01", items[0].Key)
	require.Equal(t, "A Paper About Things", items[0].Title)
}

func TestLocalDB_CanResolveLocallyAndDownload(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "zotero.sqlite")
	storageDir := filepath.Join(dir, "storage")
	buildFixtureDB(t, dbPath, storageDir)

	l, err := OpenLocalDB(dbPath, storageDir)
	require.NoError(t, err)
	defer l.Close()

	require.True(t, l.CanResolveLocally(context.Background(), "ATT01"))
	require.False(t, l.CanResolveLocally(context.Background(), "NOPE"))

	out := filepath.Join(dir, "downloaded.pdf")
	path, err := l.DownloadAttachment(context.Background(), "ITEM01", "ATT01", out)
	require.NoError(t, err)
	require.Equal(t, out, path)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), "PDF-1.4")
}

func TestLocalDB_GetCachedFulltext(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "zotero.sqlite")
	storageDir := filepath.Join(dir, "storage")
	buildFixtureDB(t, dbPath, storageDir)

	l, err := OpenLocalDB(dbPath, storageDir)
	require.NoError(t, err)
	defer l.Close()

	content, ok, err := l.GetCachedFulltext(context.Background(), "ATT01")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "cached extracted text", content)

	_, ok, err = l.GetCachedFulltext(context.Background(), "NOPE")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLocalDB_ListTags(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "zotero.sqlite")
	storageDir := filepath.Join(dir, "storage")
	buildFixtureDB(t, dbPath, storageDir)

	l, err := OpenLocalDB(dbPath, storageDir)
	require.NoError(t, err)
	defer l.Close()

	tags, err := l.ListTags(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"important"}, tags)
}
