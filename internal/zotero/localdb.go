package zotero

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO

	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

// LocalDB is the read-only SQLite snapshot reader for C5. It opens the
// reference manager's database in immutable read-only URI mode so it never
// contends with the desktop application's own writer.
type LocalDB struct {
	db         *sql.DB
	storageDir string
}

// ProfileDirs returns the platform-specific candidate profile roots, mirroring
// the reference manager's own profile discovery across macOS/Linux/Windows.
func ProfileDirs(home string) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{filepath.Join(home, "Library", "Application Support", "Zotero")}
	case "windows":
		return []string{filepath.Join(home, "AppData", "Roaming", "Zotero", "Zotero")}
	default:
		return []string{filepath.Join(home, ".zotero", "zotero")}
	}
}

// OpenLocalDB opens dbPath read-only and immutable. storageDir is the
// sibling attachment-files tree; if empty, it is assumed to be
// "<dbPath's parent>/storage".
func OpenLocalDB(dbPath, storageDir string) (*LocalDB, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, errs.Wrap(errs.KindZoteroDatabaseNotFound, fmt.Sprintf("database not found at %s", dbPath), err)
	}
	if storageDir == "" {
		storageDir = filepath.Join(filepath.Dir(dbPath), "storage")
	}

	dsn := fmt.Sprintf("file:%s?immutable=1&mode=ro", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindZoteroDatabaseLocked, "failed to open database read-only", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindZoteroDatabaseLocked, "database appears to be locked by a conflicting writer", err)
	}

	return &LocalDB{db: db, storageDir: storageDir}, nil
}

// Close releases the underlying connection.
func (l *LocalDB) Close() error { return l.db.Close() }

func (l *LocalDB) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT c.key, c.collectionName, COALESCE(p.key, '')
		FROM collections c
		LEFT JOIN collections p ON c.parentCollectionID = p.collectionID
	`)
	if err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "list collections query failed", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.Key, &c.Name, &c.ParentKey); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (l *LocalDB) FindCollectionByName(ctx context.Context, name string) (Collection, bool, error) {
	cols, err := l.ListCollections(ctx)
	if err != nil {
		return Collection{}, false, err
	}
	for _, c := range cols {
		if c.Name == name {
			return c, true, nil
		}
	}
	return Collection{}, false, nil
}

// GetCollectionItems walks the (optionally recursive) collection hierarchy
// with a CTE and joins items, excluding attachment/annotation rows.
func (l *LocalDB) GetCollectionItems(ctx context.Context, collectionKey string, recursive bool) ([]Item, error) {
	query := `
		WITH RECURSIVE sub(collectionID) AS (
			SELECT collectionID FROM collections WHERE key = ?
			UNION ALL
			SELECT c.collectionID FROM collections c
			JOIN sub ON c.parentCollectionID = sub.collectionID
			WHERE ? = 1
		)
		SELECT i.key, COALESCE(idv.value, ''), COALESCE(ext.value, '')
		FROM collectionItems ci
		JOIN sub ON ci.collectionID = sub.collectionID
		JOIN items i ON ci.itemID = i.itemID
		JOIN itemTypes it ON i.itemTypeID = it.itemTypeID
		LEFT JOIN itemData id ON id.itemID = i.itemID
		LEFT JOIN itemDataValues idv ON id.valueID = idv.valueID
		LEFT JOIN itemData extd ON extd.itemID = i.itemID
		LEFT JOIN itemDataValues ext ON extd.valueID = ext.valueID
		WHERE it.typeName NOT IN ('attachment', 'annotation')
	`
	rows, err := l.db.QueryContext(ctx, query, collectionKey, recursive)
	if err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "collection items query failed", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Key, &it.Title, &it.Extra); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (l *LocalDB) GetItemAttachments(ctx context.Context, itemKey string) ([]ItemAttachment, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT ia.key, COALESCE(p.key, ''), COALESCE(json_extract(ia.data, '$.filename'), ''),
		       COALESCE(json_extract(ia.data, '$.contentType'), ''), COALESCE(ia.linkMode, 0)
		FROM itemAttachments ia
		JOIN items i ON ia.parentItemID = i.itemID
		LEFT JOIN items p ON ia.parentItemID = p.itemID
		WHERE i.key = ?
	`, itemKey)
	if err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "item attachments query failed", err)
	}
	defer rows.Close()

	var out []ItemAttachment
	for rows.Next() {
		var a ItemAttachment
		if err := rows.Scan(&a.Key, &a.ParentKey, &a.Filename, &a.ContentType, &a.LinkMode); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (l *LocalDB) GetItemMetadata(ctx context.Context, itemKey string) (Item, error) {
	items, err := l.GetCollectionItems(ctx, "", false)
	if err != nil {
		return Item{}, err
	}
	for _, it := range items {
		if it.Key == itemKey {
			return it, nil
		}
	}
	return Item{}, errs.New(errs.KindMetadataMissing, fmt.Sprintf("item %s not found locally", itemKey))
}

func (l *LocalDB) ListTags(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT name FROM tags`)
	if err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "list tags query failed", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (l *LocalDB) GetRecentItems(ctx context.Context, limit int) ([]Item, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT key, '' FROM items ORDER BY dateAdded DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errs.Wrap(errs.KindZoteroAPIError, "recent items query failed", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Key, &it.Title); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// resolveAttachmentPath implements the linkMode branching of spec §4.5: an
// imported attachment (linkMode 0) lives under storage/<attachment_key>/
// <filename>, with a documented fallback to storage/<parent_item_key>/
// <filename>; a linked attachment (linkMode 1) is an absolute path owned by
// the user and stored verbatim.
func (l *LocalDB) resolveAttachmentPath(ctx context.Context, a ItemAttachment, storedAbsolutePath string) (string, error) {
	if a.LinkMode == 1 {
		if storedAbsolutePath == "" {
			return "", errs.New(errs.KindZoteroPathResolution, "linked attachment has no stored path")
		}
		return storedAbsolutePath, nil
	}

	candidates := []string{
		filepath.Join(l.storageDir, a.Key, a.Filename),
		filepath.Join(l.storageDir, a.ParentKey, a.Filename),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", errs.New(errs.KindZoteroPathResolution, fmt.Sprintf("attempted paths: %v", candidates)).WithDetail("candidates", candidates)
}

// CanResolveLocally is the cheap probe the router consults before committing
// to the local backend for a given attachment.
func (l *LocalDB) CanResolveLocally(ctx context.Context, attachmentKey string) bool {
	var filename, parentKey string
	var linkMode int
	row := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(json_extract(data, '$.filename'), ''),
		       COALESCE((SELECT key FROM items WHERE itemID = parentItemID), ''),
		       COALESCE(linkMode, 0)
		FROM itemAttachments WHERE key = ?
	`, attachmentKey)
	if err := row.Scan(&filename, &parentKey, &linkMode); err != nil {
		return false
	}
	_, err := l.resolveAttachmentPath(ctx, ItemAttachment{Key: attachmentKey, ParentKey: parentKey, Filename: filename, LinkMode: linkMode}, "")
	return err == nil
}

// DownloadAttachment copies the resolved local file to outputPath.
func (l *LocalDB) DownloadAttachment(ctx context.Context, itemKey, attachmentKey, outputPath string) (string, error) {
	var filename, parentKey, storedPath string
	var linkMode int
	row := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(json_extract(data, '$.filename'), ''),
		       COALESCE((SELECT key FROM items WHERE itemID = parentItemID), ''),
		       COALESCE(json_extract(data, '$.path'), ''),
		       COALESCE(linkMode, 0)
		FROM itemAttachments WHERE key = ?
	`, attachmentKey)
	if err := row.Scan(&filename, &parentKey, &storedPath, &linkMode); err != nil {
		return "", errs.Wrap(errs.KindZoteroPathResolution, "attachment lookup failed", err)
	}

	src, err := l.resolveAttachmentPath(ctx, ItemAttachment{Key: attachmentKey, ParentKey: parentKey, Filename: filename, LinkMode: linkMode}, storedPath)
	if err != nil {
		return "", err
	}

	if err := copyFile(src, outputPath); err != nil {
		return "", errs.Wrap(errs.KindZoteroPathResolution, "failed to copy local attachment", err)
	}
	return outputPath, nil
}

// GetCachedFulltext queries the fulltext table by item id.
func (l *LocalDB) GetCachedFulltext(ctx context.Context, attachmentKey string) (string, bool, error) {
	var content string
	row := l.db.QueryRowContext(ctx, `
		SELECT ft.content FROM fulltextItems ft
		JOIN itemAttachments ia ON ft.itemID = ia.itemID
		WHERE ia.key = ?
	`, attachmentKey)
	if err := row.Scan(&content); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return content, true, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

var _ LocalSource = (*LocalDB)(nil)
