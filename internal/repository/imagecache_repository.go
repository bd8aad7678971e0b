package repository

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ImageCacheRepository defines the interface for persisting discovered
// image URLs between runs, so a restart does not refetch every page.
type ImageCacheRepository interface {
	GetImageURL(species string) (url string, fetchedAt time.Time, err error)
	PutImageURL(species, url string, fetchedAt time.Time) error
	Close() error
}

// SQLiteImageCacheRepository implements ImageCacheRepository using SQLite
type SQLiteImageCacheRepository struct {
	db     *sql.DB
	DBPath string
}

// NewSQLiteImageCacheRepository creates and initializes a new SQLite image cache
func NewSQLiteImageCacheRepository(dbPath string) (*SQLiteImageCacheRepository, error) {
	if dbPath == "" {
		// Set default path if not specified
		dbDir := "data"
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dbPath = filepath.Join(dbDir, "imagecache.db")
	}

	log.Printf("Opening image cache database at %s", dbPath)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS image_cache (
		species TEXT PRIMARY KEY,
		image_url TEXT NOT NULL,
		fetched_at DATETIME NOT NULL
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteImageCacheRepository{
		db:     db,
		DBPath: dbPath,
	}, nil
}

// Close closes the database connection
func (r *SQLiteImageCacheRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// GetImageURL returns the cached image URL for a species. A miss is not an
// error: it returns an empty URL and a zero time.
func (r *SQLiteImageCacheRepository) GetImageURL(species string) (string, time.Time, error) {
	var url string
	var fetchedAt time.Time
	err := r.db.QueryRow(
		"SELECT image_url, fetched_at FROM image_cache WHERE species = ?", species,
	).Scan(&url, &fetchedAt)
	if err == sql.ErrNoRows {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to query image cache for %q: %w", species, err)
	}
	return url, fetchedAt, nil
}

// PutImageURL stores the image URL for a species, replacing any previous
// entry. Upsert keyed by species, so re-application never duplicates rows.
func (r *SQLiteImageCacheRepository) PutImageURL(species, url string, fetchedAt time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO image_cache(species, image_url, fetched_at)
		VALUES(?, ?, ?)
		ON CONFLICT(species) DO UPDATE SET
		image_url=excluded.image_url,
		fetched_at=excluded.fetched_at
	`, species, url, fetchedAt)
	if err != nil {
		return fmt.Errorf("failed to cache image URL for %q: %w", species, err)
	}
	return nil
}
