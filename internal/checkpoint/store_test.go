package checkpoint

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleCheckpoint() *IngestionCheckpoint {
	ckpt := &IngestionCheckpoint{
		CorrelationID: "11111111-1111-1111-1111-111111111111",
		ProjectID:     "citeloom/demo",
		StartTime:     time.Unix(1000, 0).UTC(),
		LastUpdate:    time.Unix(2000, 0).UTC(),
	}
	ckpt.AddDocumentCheckpoint(DocumentCheckpoint{Path: "/a.pdf", Status: StatusCompleted, UpdatedAt: ckpt.LastUpdate})
	ckpt.UpdateStatistics()
	return ckpt
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	ckpt := sampleCheckpoint()
	require.NoError(t, store.Save(ckpt))

	loaded, err := store.Load(ckpt.CorrelationID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, ckpt.ProjectID, loaded.ProjectID)
	require.Equal(t, ckpt.Statistics, loaded.Statistics)
	require.True(t, store.Validate(loaded))
}

func TestStore_LoadMissingReturnsNilNil(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	loaded, err := store.Load("does-not-exist")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestStore_LoadCorruptFileSurfacesError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	path := store.PathFor("broken")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	_, err = store.Load("broken")
	require.Error(t, err)
}

func TestStore_SaveNeverLeavesTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(sampleCheckpoint()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp.")
	}
}

func TestValidate_RejectsStatisticsMismatch(t *testing.T) {
	ckpt := sampleCheckpoint()
	ckpt.Statistics.Completed = 99
	require.Error(t, ckpt.Validate())
}

func TestValidate_RejectsFailedWithoutError(t *testing.T) {
	ckpt := sampleCheckpoint()
	ckpt.AddDocumentCheckpoint(DocumentCheckpoint{Path: "/b.pdf", Status: StatusFailed})
	ckpt.UpdateStatistics()
	require.Error(t, ckpt.Validate())
}
