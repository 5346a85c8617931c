package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Sims2k/citeloom-sub000/internal/validation"
)

// Store persists IngestionCheckpoint values to the filesystem, one JSON file
// per correlation id, with atomic save semantics.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create store dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// PathFor returns the checkpoint file path for a correlation id. The caller
// is responsible for validating correlationID first; this does no
// traversal checking of its own since some call sites already hold a
// correlation id minted internally.
func (s *Store) PathFor(correlationID string) string {
	return filepath.Join(s.dir, correlationID+".json")
}

// Exists reports whether a checkpoint file for correlationID is present.
func (s *Store) Exists(correlationID string) bool {
	_, err := os.Stat(s.PathFor(correlationID))
	return err == nil
}

func validateCorrelationID(correlationID string) error {
	if correlationID == "" {
		return fmt.Errorf("checkpoint: %w", validation.ErrInvalidCorrelationID)
	}
	clean, err := validation.CorrelationID(correlationID)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if clean != correlationID {
		return fmt.Errorf("checkpoint: %w", validation.ErrInvalidCorrelationID)
	}
	return nil
}

// Save writes ckpt atomically: a temp file is created alongside the final
// path, flushed and fsynced, then renamed over it. A crash between the
// fsync and the rename leaves the prior file untouched, and any error before
// the rename removes the temp file rather than leaving it behind. A file
// lock on "<path>.lock" serializes concurrent savers onto a single writer,
// matching the "one serialization point" shared-resource policy.
func (s *Store) Save(ckpt *IngestionCheckpoint) error {
	if err := validateCorrelationID(ckpt.CorrelationID); err != nil {
		return err
	}
	path := s.PathFor(ckpt.CorrelationID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("checkpoint: create parent dir for %s: %w", path, err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("checkpoint: acquire lock for %s: %w", path, err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp.")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	writeErr := func() error {
		enc := json.NewEncoder(tmp)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ckpt); err != nil {
			return fmt.Errorf("checkpoint: encode: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			return fmt.Errorf("checkpoint: fsync: %w", err)
		}
		return tmp.Close()
	}()
	if writeErr != nil {
		os.Remove(tmpPath)
		return writeErr
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("checkpoint: rename into place: %w", err)
	}
	return nil
}

// Load reads the checkpoint for correlationID. A missing file returns
// (nil, nil) — there is nothing to resume from. A present but corrupt file
// is a read error, never silently dropped.
func (s *Store) Load(correlationID string) (*IngestionCheckpoint, error) {
	if err := validateCorrelationID(correlationID); err != nil {
		return nil, err
	}
	path := s.PathFor(correlationID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}

	var ckpt IngestionCheckpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("checkpoint: invalid JSON in %s: %w", path, err)
	}
	return &ckpt, nil
}

// Validate delegates to IngestionCheckpoint.Validate, returning a bool per
// the component contract in spec §4.2 (callers that need the reason should
// call ckpt.Validate directly).
func (s *Store) Validate(ckpt *IngestionCheckpoint) bool {
	return ckpt.Validate() == nil
}
