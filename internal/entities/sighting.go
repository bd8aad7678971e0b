// Package entities contains the core domain objects for the bird tracker application
package entities

import (
	"time"
)

// SightingRecord represents a single species entry in the tracker
type SightingRecord struct {
	Species       string    // Species name, unique key across the CSV file and the remote table
	Seen          bool      // Whether the species has been seen in the yard
	FirstSeenDate string    // ISO date (2006-01-02), empty when not recorded
	Notes         string    // Free-form notes about where/how it was seen
	PhotoLink     string    // Source page URL used for image discovery
	ImageURL      string    // Explicit image URL, takes precedence over discovery
	UpdatedAt     time.Time // Set on every mutation, zero until the first edit

	// Extra holds CSV columns the tracker does not interpret, keyed by
	// header name, so a load/save cycle preserves them untouched.
	Extra map[string]string
}
