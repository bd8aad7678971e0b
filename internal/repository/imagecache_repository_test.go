package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestImageCache(t *testing.T) *SQLiteImageCacheRepository {
	t.Helper()
	repo, err := NewSQLiteImageCacheRepository(filepath.Join(t.TempDir(), "imagecache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestImageCacheMissIsNotAnError(t *testing.T) {
	repo := newTestImageCache(t)

	url, fetchedAt, err := repo.GetImageURL("Anna's Hummingbird")
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.True(t, fetchedAt.IsZero())
}

func TestImageCachePutGet(t *testing.T) {
	repo := newTestImageCache(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.PutImageURL("Steller's Jay", "https://img.example.com/jay.jpg", now))

	url, fetchedAt, err := repo.GetImageURL("Steller's Jay")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/jay.jpg", url)
	assert.True(t, fetchedAt.Equal(now))
}

func TestImageCacheUpsertReplaces(t *testing.T) {
	repo := newTestImageCache(t)

	require.NoError(t, repo.PutImageURL("Crow", "https://img.example.com/old.jpg", time.Now()))
	require.NoError(t, repo.PutImageURL("Crow", "https://img.example.com/new.jpg", time.Now()))

	url, _, err := repo.GetImageURL("Crow")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/new.jpg", url)

	// One row per species, regardless of how often it is re-fetched
	var count int
	require.NoError(t, repo.db.QueryRow("SELECT COUNT(*) FROM image_cache WHERE species = ?", "Crow").Scan(&count))
	assert.Equal(t, 1, count)
}
