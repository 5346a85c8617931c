package zotero

import (
	"os"
	"path/filepath"

	"github.com/Sims2k/citeloom-sub000/internal/errs"
)

// DiscoverLocalDB locates the reference manager's zotero.sqlite under one of
// ProfileDirs(home), per spec §4.5's profile discovery. It returns the
// database path and its sibling storage directory.
func DiscoverLocalDB(home string) (dbPath, storageDir string, err error) {
	for _, dir := range ProfileDirs(home) {
		candidate := filepath.Join(dir, "zotero.sqlite")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, filepath.Join(dir, "storage"), nil
		}
	}
	return "", "", errs.New(errs.KindZoteroProfileNotFound, "no zotero.sqlite found under any candidate profile directory")
}
