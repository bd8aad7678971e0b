// Package repository provides data access implementations
package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mhutchins/birdtrack/internal/entities"
)

// ErrNotFound is returned when a species is not present in the store.
var ErrNotFound = errors.New("species not found")

// FormatError describes a CSV file that cannot serve as a sighting table.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid sighting file %s: %s", e.Path, e.Reason)
}

// Column headers recognized in the sighting CSV. Any other column is
// carried opaquely in SightingRecord.Extra.
const (
	colSpecies   = "Species"
	colSeen      = "Seen?"
	colFirstSeen = "Date first seen"
	colNotes     = "Notes"
	colPhotoLink = "Photo (link)"
	colSource    = "Source"
	colImageURL  = "Image URL"
	colUpdatedAt = "Updated at"
)

// Canonical field names accepted by UpdateField.
const (
	FieldSeen          = "seen"
	FieldFirstSeenDate = "first_seen_date"
	FieldNotes         = "notes"
	FieldPhotoLink     = "photo_link"
	FieldImageURL      = "image_url"
)

// SightingStore holds the in-memory working set of sighting records loaded
// from a CSV file. There is exactly one writer (the interactive session),
// so no locking is needed.
type SightingStore struct {
	path     string
	header   []string
	photoCol string // header bound to PhotoLink: "Photo (link)", or "Source" as fallback
	records  []*entities.SightingRecord
	index    map[string]*entities.SightingRecord
	now      func() time.Time
}

// LoadSightings reads the CSV file at path into a new store. The header row
// is required and must contain a "Species" column; every other column is
// optional. Unrecognized columns are preserved verbatim for round-trip.
func LoadSightings(path string) (*SightingStore, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sighting file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow short rows, padded below

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &FormatError{Path: path, Reason: fmt.Sprintf("malformed CSV: %v", err)}
	}
	if len(rows) == 0 {
		return nil, &FormatError{Path: path, Reason: "missing header row"}
	}

	header := rows[0]
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}
	speciesIdx := -1
	for i, name := range header {
		if name == colSpecies {
			speciesIdx = i
			break
		}
	}
	if speciesIdx < 0 {
		return nil, &FormatError{Path: path, Reason: fmt.Sprintf("required column %q is missing", colSpecies)}
	}

	store := &SightingStore{
		path:     path,
		header:   header,
		photoCol: photoColumn(header),
		index:    make(map[string]*entities.SightingRecord),
		now:      time.Now,
	}

	for rowNum, row := range rows[1:] {
		if len(row) > len(header) {
			return nil, &FormatError{Path: path, Reason: fmt.Sprintf("row %d has %d cells but the header has %d columns", rowNum+2, len(row), len(header))}
		}
		// Pad short rows so column lookups below are safe
		for len(row) < len(header) {
			row = append(row, "")
		}

		species := strings.TrimSpace(row[speciesIdx])
		if species == "" {
			return nil, &FormatError{Path: path, Reason: fmt.Sprintf("row %d has an empty species", rowNum+2)}
		}
		if _, exists := store.index[species]; exists {
			return nil, &FormatError{Path: path, Reason: fmt.Sprintf("duplicate species %q", species)}
		}

		rec := &entities.SightingRecord{
			Species: species,
			Extra:   make(map[string]string),
		}
		for i, name := range header {
			switch {
			case i == speciesIdx:
				// Already taken
			case name == colSeen:
				rec.Seen = parseSeen(row[i])
			case name == colFirstSeen:
				rec.FirstSeenDate = row[i]
			case name == colNotes:
				rec.Notes = row[i]
			case name == store.photoCol:
				rec.PhotoLink = row[i]
			case name == colImageURL:
				rec.ImageURL = row[i]
			case name == colUpdatedAt:
				if row[i] != "" {
					if t, perr := time.Parse(time.RFC3339Nano, row[i]); perr == nil {
						rec.UpdatedAt = t
					} else {
						log.Printf("Warning: ignoring unparseable %q value %q for species %q", colUpdatedAt, row[i], species)
					}
				}
			default:
				rec.Extra[name] = row[i]
			}
		}

		store.records = append(store.records, rec)
		store.index[species] = rec
	}

	log.Printf("Loaded %d sighting records from %s", len(store.records), path)
	return store, nil
}

// photoColumn picks the header bound to PhotoLink. The original sheet uses
// "Photo (link)"; older exports only carry "Source".
func photoColumn(header []string) string {
	hasSource := false
	for _, name := range header {
		if name == colPhotoLink {
			return colPhotoLink
		}
		if name == colSource {
			hasSource = true
		}
	}
	if hasSource {
		return colSource
	}
	return colPhotoLink
}

// parseSeen interprets the "Seen?" cell. The sheet convention is "Yes" or
// empty, but hand-edited files also show up with true/1.
func parseSeen(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "1", "y":
		return true
	default:
		return false
	}
}

// Records returns the working set in file order. Callers must not reorder
// the slice; mutate records through UpdateField so UpdatedAt stays correct.
func (s *SightingStore) Records() []*entities.SightingRecord {
	return s.records
}

// Get returns the record for a species.
func (s *SightingStore) Get(species string) (*entities.SightingRecord, error) {
	rec, ok := s.index[species]
	if !ok {
		return nil, fmt.Errorf("species %q: %w", species, ErrNotFound)
	}
	return rec, nil
}

// Len returns the number of records in the store.
func (s *SightingStore) Len() int {
	return len(s.records)
}

// Path returns the CSV file this store was loaded from.
func (s *SightingStore) Path() string {
	return s.path
}

// UpdateField sets a single field on the record identified by species and
// advances its UpdatedAt. Field is one of the canonical Field* names, or
// the header name of an extra column already present in the file.
func (s *SightingStore) UpdateField(species, field, value string) error {
	rec, ok := s.index[species]
	if !ok {
		return fmt.Errorf("update of species %q: %w", species, ErrNotFound)
	}

	switch field {
	case FieldSeen:
		rec.Seen = parseSeen(value)
	case FieldFirstSeenDate:
		if value != "" {
			if _, err := time.Parse("2006-01-02", value); err != nil {
				return fmt.Errorf("invalid date %q for species %q (want YYYY-MM-DD): %w", value, species, err)
			}
		}
		rec.FirstSeenDate = value
	case FieldNotes:
		rec.Notes = value
	case FieldPhotoLink:
		rec.PhotoLink = value
	case FieldImageURL:
		rec.ImageURL = value
	default:
		if _, exists := rec.Extra[field]; !exists {
			return fmt.Errorf("unknown field %q for species %q", field, species)
		}
		rec.Extra[field] = value
	}

	s.touch(rec)
	return nil
}

// MarkAllSeen marks every record as seen with the given first-seen date.
func (s *SightingStore) MarkAllSeen(date string) {
	for _, rec := range s.records {
		rec.Seen = true
		rec.FirstSeenDate = date
		s.touch(rec)
	}
	log.Printf("Marked all %d species as seen on %s", len(s.records), date)
}

// ClearAll clears the seen flag, first-seen date and notes on every record.
func (s *SightingStore) ClearAll() {
	for _, rec := range s.records {
		rec.Seen = false
		rec.FirstSeenDate = ""
		rec.Notes = ""
		s.touch(rec)
	}
	log.Printf("Cleared seen/date/notes for all %d species", len(s.records))
}

// touch advances UpdatedAt, strictly. time.Now can repeat on coarse clocks,
// so bump by a nanosecond when it has not moved.
func (s *SightingStore) touch(rec *entities.SightingRecord) {
	t := s.now()
	if !t.After(rec.UpdatedAt) {
		t = rec.UpdatedAt.Add(time.Nanosecond)
	}
	rec.UpdatedAt = t
}

// Save writes the working set back to path atomically: the rows go to a
// temp file in the same directory which then replaces the original, so a
// crash mid-write never corrupts the existing file. The Seen? cell is
// always written in its canonical sheet form ("Yes" or empty), so a
// hand-edited "no"/"TRUE" cell comes back normalized even when the record
// itself was not touched.
func (s *SightingStore) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".birds-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if err := s.writeTable(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write sighting table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	log.Printf("Saved %d sighting records to %s", len(s.records), path)
	return nil
}

// ExportCSV streams the current table as CSV without touching disk,
// mirroring the original app's download button.
func (s *SightingStore) ExportCSV(w io.Writer) error {
	return s.writeTable(w)
}

// writeTable serializes the header and all rows. Tracked columns missing
// from the file's header are appended lazily, only once some record holds
// a value for them, so a sparse sheet (the original normalizes missing
// Seen?/Date first seen/Notes columns the same way) never drops an edit
// while an untouched load/save cycle stays byte-identical.
func (s *SightingStore) writeTable(w io.Writer) error {
	header := make([]string, len(s.header), len(s.header)+6)
	copy(header, s.header)
	header = append(header, s.missingColumns()...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, rec := range s.records {
		row := make([]string, len(header))
		for i, name := range header {
			switch {
			case name == colSpecies:
				row[i] = rec.Species
			case name == colSeen:
				if rec.Seen {
					row[i] = "Yes"
				}
			case name == colFirstSeen:
				row[i] = rec.FirstSeenDate
			case name == colNotes:
				row[i] = rec.Notes
			case name == s.photoCol:
				row[i] = rec.PhotoLink
			case name == colImageURL:
				row[i] = rec.ImageURL
			case name == colUpdatedAt:
				if !rec.UpdatedAt.IsZero() {
					row[i] = rec.UpdatedAt.UTC().Format(time.RFC3339Nano)
				}
			default:
				row[i] = rec.Extra[name]
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// missingColumns lists the tracked columns absent from the loaded header
// that at least one record now has a value for, in sheet order.
func (s *SightingStore) missingColumns() []string {
	present := make(map[string]bool, len(s.header))
	for _, name := range s.header {
		present[name] = true
	}

	var seen, date, notes, photo, image, updated bool
	for _, rec := range s.records {
		seen = seen || rec.Seen
		date = date || rec.FirstSeenDate != ""
		notes = notes || rec.Notes != ""
		photo = photo || rec.PhotoLink != ""
		image = image || rec.ImageURL != ""
		updated = updated || !rec.UpdatedAt.IsZero()
	}

	var missing []string
	appendIf := func(name string, used bool) {
		if used && !present[name] {
			missing = append(missing, name)
		}
	}
	appendIf(colSeen, seen)
	appendIf(colFirstSeen, date)
	appendIf(colNotes, notes)
	appendIf(s.photoCol, photo)
	appendIf(colImageURL, image)
	appendIf(colUpdatedAt, updated)
	return missing
}
