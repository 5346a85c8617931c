package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func TestCompute_Deterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "doc.pdf", []byte("hello world"))

	a, err := Compute(path, "model-1", "chunk-v1", "embed-v1")
	require.NoError(t, err)
	b, err := Compute(path, "model-1", "chunk-v1", "embed-v1")
	require.NoError(t, err)

	require.Equal(t, a.ContentHash, b.ContentHash)
	require.True(t, a.Matches(b, true))
}

func TestCompute_InvalidatesOnPolicyChange(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "doc.pdf", []byte("hello world"))

	base, err := Compute(path, "model-1", "chunk-v1", "embed-v1")
	require.NoError(t, err)

	variants := []Fingerprint{}
	for _, fn := range []func() (Fingerprint, error){
		func() (Fingerprint, error) { return Compute(path, "model-2", "chunk-v1", "embed-v1") },
		func() (Fingerprint, error) { return Compute(path, "model-1", "chunk-v2", "embed-v1") },
		func() (Fingerprint, error) { return Compute(path, "model-1", "chunk-v1", "embed-v2") },
	} {
		v, err := fn()
		require.NoError(t, err)
		variants = append(variants, v)
	}

	for _, v := range variants {
		require.NotEqual(t, base.ContentHash, v.ContentHash)
	}
}

func TestMatches_CollisionProtection(t *testing.T) {
	base := Fingerprint{
		ContentHash: "deadbeef",
		FileMTime:   time.Unix(1000, 0).UTC(),
		FileSize:    100,
	}
	sameHashDifferentSize := base
	sameHashDifferentSize.FileSize = 200

	require.False(t, base.Matches(sameHashDifferentSize, true))
	require.True(t, base.Matches(sameHashDifferentSize, false))

	sameHashDifferentMTime := base
	sameHashDifferentMTime.FileMTime = time.Unix(2000, 0).UTC()
	require.False(t, base.Matches(sameHashDifferentMTime, true))
}

func TestIsUnchanged_NilStored(t *testing.T) {
	computed := Fingerprint{ContentHash: "abc"}
	require.False(t, IsUnchanged(nil, computed))
}

func TestIsUnchanged_Matches(t *testing.T) {
	stored := Fingerprint{ContentHash: "abc", FileMTime: time.Unix(1, 0).UTC(), FileSize: 10}
	computed := stored
	require.True(t, IsUnchanged(&stored, computed))
}
