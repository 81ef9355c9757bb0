package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/showsweep/internal/models"
)

func TestBackupRestoreRoundTrip(t *testing.T) {
	store, db := newTestStore(t)

	require.NoError(t, store.Put(models.EntityWatch, "abc", &models.WatchRecord{TotalPlays: 9}))
	require.NoError(t, db.UpsertShow(&models.Show{CanonicalID: "abc", Title: "The Wire"}))

	backup := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, store.Backup(backup))

	// Mutate after the snapshot
	require.NoError(t, store.InvalidateAll(models.EntityWatch))
	require.NoError(t, db.UpsertShow(&models.Show{CanonicalID: "xyz", Title: "Later"}))

	require.NoError(t, store.Restore(backup))

	var watch models.WatchRecord
	require.NoError(t, store.GetRecord(models.EntityWatch, "abc", time.Hour, &watch))
	assert.Equal(t, 9, watch.TotalPlays)

	_, err := db.GetShow("xyz")
	assert.Error(t, err, "post-snapshot show must be gone after restore")

	show, err := db.GetShow("abc")
	require.NoError(t, err)
	assert.Equal(t, "The Wire", show.Title)
}

func TestRestoreRejectsInvalidFile(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Put(models.EntityWatch, "abc", &models.WatchRecord{TotalPlays: 2}))

	junk := filepath.Join(t.TempDir(), "junk.db")
	require.NoError(t, os.WriteFile(junk, []byte("this is not a database"), 0600))

	require.Error(t, store.Restore(junk))

	// The live database was never touched
	var watch models.WatchRecord
	require.NoError(t, store.GetRecord(models.EntityWatch, "abc", time.Hour, &watch))
	assert.Equal(t, 2, watch.TotalPlays)
}

func TestBackupIsOpenableCopy(t *testing.T) {
	store, db := newTestStore(t)
	require.NoError(t, db.UpsertShow(&models.Show{CanonicalID: "abc", Title: "Show"}))
	require.NoError(t, store.Put(models.EntityRequest, "abc", []models.RequestRecord{{Requester: "bob"}}))

	backup := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, store.Backup(backup))

	copyDB, err := models.NewDatabase(backup)
	require.NoError(t, err)
	defer copyDB.Close()

	show, err := copyDB.GetShow("abc")
	require.NoError(t, err)
	assert.Equal(t, "Show", show.Title)
}
