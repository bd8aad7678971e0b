package repository

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleCSV matches the shape of the real sheet: the tracked columns plus
// a couple of informational ones the store must carry through untouched.
const sampleCSV = `Species,Seen?,Date first seen,Notes,Photo (link),Favorite foods
Anna's Hummingbird,,,,https://example.com/anna,nectar
Steller's Jay,Yes,,loud,https://example.com/jay,peanuts
`

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "birds_db.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadSightings(t *testing.T) {
	store, err := LoadSightings(writeTempCSV(t, sampleCSV))
	require.NoError(t, err)
	require.Equal(t, 2, store.Len())

	anna, err := store.Get("Anna's Hummingbird")
	require.NoError(t, err)
	assert.False(t, anna.Seen)
	assert.Equal(t, "https://example.com/anna", anna.PhotoLink)
	assert.Equal(t, "nectar", anna.Extra["Favorite foods"])
	assert.True(t, anna.UpdatedAt.IsZero())

	jay, err := store.Get("Steller's Jay")
	require.NoError(t, err)
	assert.True(t, jay.Seen)
	assert.Equal(t, "loud", jay.Notes)
}

func TestLoadSightingsMissingSpeciesColumn(t *testing.T) {
	_, err := LoadSightings(writeTempCSV(t, "Bird,Seen?\nCrow,Yes\n"))
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Contains(t, formatErr.Reason, "Species")
}

func TestLoadSightingsEmptyFile(t *testing.T) {
	_, err := LoadSightings(writeTempCSV(t, ""))
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
}

func TestLoadSightingsDuplicateSpecies(t *testing.T) {
	_, err := LoadSightings(writeTempCSV(t, "Species\nCrow\nCrow\n"))
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Contains(t, formatErr.Reason, "duplicate")
}

func TestLoadSightingsMissingFile(t *testing.T) {
	_, err := LoadSightings(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestLoadSightingsSeenVariants(t *testing.T) {
	store, err := LoadSightings(writeTempCSV(t, "Species,Seen?\nA,true\nB,1\nC,Y\nD,no\nE,\n"))
	require.NoError(t, err)
	for species, want := range map[string]bool{"A": true, "B": true, "C": true, "D": false, "E": false} {
		rec, err := store.Get(species)
		require.NoError(t, err)
		assert.Equal(t, want, rec.Seen, "species %s", species)
	}
}

func TestSourceColumnBindsPhotoLink(t *testing.T) {
	store, err := LoadSightings(writeTempCSV(t, "Species,Source\nCrow,https://example.com/crow\n"))
	require.NoError(t, err)

	rec, err := store.Get("Crow")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/crow", rec.PhotoLink)
	assert.NotContains(t, rec.Extra, "Source")
}

func TestRoundTripUnchanged(t *testing.T) {
	path := writeTempCSV(t, sampleCSV)
	store, err := LoadSightings(path)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, store.Save(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, string(data), "load then save with no edits must reproduce the file")
}

func TestUpdateFieldNotFound(t *testing.T) {
	store, err := LoadSightings(writeTempCSV(t, sampleCSV))
	require.NoError(t, err)

	err = store.UpdateField("Bald Eagle", FieldSeen, "yes")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateFieldUnknownField(t *testing.T) {
	store, err := LoadSightings(writeTempCSV(t, sampleCSV))
	require.NoError(t, err)

	err = store.UpdateField("Steller's Jay", "wingspan", "huge")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestUpdateFieldExtraColumn(t *testing.T) {
	store, err := LoadSightings(writeTempCSV(t, sampleCSV))
	require.NoError(t, err)

	require.NoError(t, store.UpdateField("Steller's Jay", "Favorite foods", "suet"))
	rec, err := store.Get("Steller's Jay")
	require.NoError(t, err)
	assert.Equal(t, "suet", rec.Extra["Favorite foods"])
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestUpdateFieldRejectsBadDate(t *testing.T) {
	store, err := LoadSightings(writeTempCSV(t, sampleCSV))
	require.NoError(t, err)

	err = store.UpdateField("Steller's Jay", FieldFirstSeenDate, "last tuesday")
	require.Error(t, err)

	rec, _ := store.Get("Steller's Jay")
	assert.True(t, rec.UpdatedAt.IsZero(), "a rejected update must not touch the record")
}

func TestUpdatedAtStrictlyIncreases(t *testing.T) {
	store, err := LoadSightings(writeTempCSV(t, sampleCSV))
	require.NoError(t, err)

	// Freeze the clock so consecutive updates collide on purpose
	frozen := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return frozen }

	var prev time.Time
	for i := 0; i < 5; i++ {
		require.NoError(t, store.UpdateField("Anna's Hummingbird", FieldNotes, "at the feeder"))
		rec, err := store.Get("Anna's Hummingbird")
		require.NoError(t, err)
		assert.True(t, rec.UpdatedAt.After(prev), "UpdatedAt must strictly increase")
		prev = rec.UpdatedAt
	}
}

func TestSaveAfterMutationAddsUpdatedAt(t *testing.T) {
	path := writeTempCSV(t, sampleCSV)
	store, err := LoadSightings(path)
	require.NoError(t, err)

	require.NoError(t, store.UpdateField("Anna's Hummingbird", FieldSeen, "yes"))
	require.NoError(t, store.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	assert.True(t, strings.HasSuffix(lines[0], ",Updated at"))

	// And the timestamp must survive a reload
	reloaded, err := LoadSightings(path)
	require.NoError(t, err)
	rec, err := reloaded.Get("Anna's Hummingbird")
	require.NoError(t, err)
	assert.False(t, rec.UpdatedAt.IsZero())
}

// A bare species list is a valid file (only the Species column is
// mandatory), so edits to the tracked fields must grow the header on
// save rather than vanish.
func TestSaveAddsMissingTrackedColumns(t *testing.T) {
	path := writeTempCSV(t, "Species\nCrow\n")
	store, err := LoadSightings(path)
	require.NoError(t, err)

	require.NoError(t, store.UpdateField("Crow", FieldSeen, "yes"))
	require.NoError(t, store.UpdateField("Crow", FieldFirstSeenDate, "2026-08-29"))
	require.NoError(t, store.UpdateField("Crow", FieldNotes, "on the fence"))
	require.NoError(t, store.Save(path))

	reloaded, err := LoadSightings(path)
	require.NoError(t, err)
	rec, err := reloaded.Get("Crow")
	require.NoError(t, err)
	assert.True(t, rec.Seen)
	assert.Equal(t, "2026-08-29", rec.FirstSeenDate)
	assert.Equal(t, "on the fence", rec.Notes)
}

func TestSaveWithoutEditsAddsNoColumns(t *testing.T) {
	path := writeTempCSV(t, "Species\nCrow\n")
	store, err := LoadSightings(path)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, store.Save(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Species\nCrow\n", string(data))
}

func TestLoadSightingsRejectsLongRows(t *testing.T) {
	_, err := LoadSightings(writeTempCSV(t, "Species,Notes\nCrow,noisy,extra cell\n"))
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Contains(t, formatErr.Reason, "cells")
}

func TestSaveFailureLeavesOriginalIntact(t *testing.T) {
	path := writeTempCSV(t, sampleCSV)
	store, err := LoadSightings(path)
	require.NoError(t, err)

	err = store.Save(filepath.Join(t.TempDir(), "missing-dir", "out.csv"))
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleCSV, string(data))
}

// The walkthrough from the tracker's day-to-day use: mark a species seen,
// save, reload, and check nothing else moved.
func TestEditSaveReload(t *testing.T) {
	path := writeTempCSV(t, sampleCSV)
	store, err := LoadSightings(path)
	require.NoError(t, err)

	require.NoError(t, store.UpdateField("Anna's Hummingbird", FieldSeen, "yes"))
	require.NoError(t, store.UpdateField("Anna's Hummingbird", FieldFirstSeenDate, "2026-08-29"))
	require.NoError(t, store.Save(path))

	reloaded, err := LoadSightings(path)
	require.NoError(t, err)

	anna, err := reloaded.Get("Anna's Hummingbird")
	require.NoError(t, err)
	assert.True(t, anna.Seen)
	assert.Equal(t, "2026-08-29", anna.FirstSeenDate)

	jay, err := reloaded.Get("Steller's Jay")
	require.NoError(t, err)
	assert.True(t, jay.Seen)
	assert.Equal(t, "loud", jay.Notes)
	assert.Equal(t, "peanuts", jay.Extra["Favorite foods"])
}

func TestMarkAllSeenAndClearAll(t *testing.T) {
	store, err := LoadSightings(writeTempCSV(t, sampleCSV))
	require.NoError(t, err)

	store.MarkAllSeen("2026-08-29")
	for _, rec := range store.Records() {
		assert.True(t, rec.Seen)
		assert.Equal(t, "2026-08-29", rec.FirstSeenDate)
	}

	store.ClearAll()
	for _, rec := range store.Records() {
		assert.False(t, rec.Seen)
		assert.Empty(t, rec.FirstSeenDate)
		assert.Empty(t, rec.Notes)
		assert.NotEmpty(t, rec.Extra["Favorite foods"], "extra columns must survive a bulk clear")
	}
}

func TestExportMatchesSave(t *testing.T) {
	path := writeTempCSV(t, sampleCSV)
	store, err := LoadSightings(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, store.ExportCSV(&buf))
	assert.Equal(t, sampleCSV, buf.String())
}
