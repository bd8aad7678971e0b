// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mhutchins/birdtrack/internal/entities"
	"github.com/mhutchins/birdtrack/internal/integration/supabase"
	"github.com/mhutchins/birdtrack/internal/repository"
)

// ImageScraper discovers a preview image URL for a web page.
type ImageScraper interface {
	FetchOGImage(ctx context.Context, pageURL string) (string, error)
}

// enrichmentTTL bounds how long a discovered (or absent) image URL is
// memoized in process before the source page is consulted again.
const enrichmentTTL = 24 * time.Hour

// SyncFailure names one record whose remote upsert failed and why.
type SyncFailure struct {
	Species string
	Reason  string
}

// SyncResult summarizes one sync pass over the working set.
type SyncResult struct {
	Succeeded int
	Skipped   int
	Failed    []SyncFailure
	Disabled  bool // remote sync not configured, nothing was attempted
}

// SightingUseCase handles business logic around the sighting working set:
// local persistence, remote sync and image enrichment.
type SightingUseCase struct {
	store      *repository.SightingStore
	scraper    ImageScraper
	remote     supabase.TableClient            // nil in local-only mode
	imageCache repository.ImageCacheRepository // nil when persistent caching is off
	memCache   *gocache.Cache
	syncedAt   map[string]time.Time // UpdatedAt as of the last successful upsert
}

// NewSightingUseCase creates a new sighting use case. remote and imageCache
// may be nil, which disables remote sync and persistent enrichment caching
// respectively.
func NewSightingUseCase(store *repository.SightingStore, scraper ImageScraper, remote supabase.TableClient, imageCache repository.ImageCacheRepository) *SightingUseCase {
	return &SightingUseCase{
		store:      store,
		scraper:    scraper,
		remote:     remote,
		imageCache: imageCache,
		memCache:   gocache.New(enrichmentTTL, 2*enrichmentTTL),
		syncedAt:   make(map[string]time.Time),
	}
}

// Records returns the working set in file order.
func (uc *SightingUseCase) Records() []*entities.SightingRecord {
	return uc.store.Records()
}

// Get returns the record for a species.
func (uc *SightingUseCase) Get(species string) (*entities.SightingRecord, error) {
	return uc.store.Get(species)
}

// UpdateField sets a single field on a record.
func (uc *SightingUseCase) UpdateField(species, field, value string) error {
	log.Printf("Updating %s of %q", field, species)
	return uc.store.UpdateField(species, field, value)
}

// MarkAllSeen marks every species as seen with the given first-seen date.
func (uc *SightingUseCase) MarkAllSeen(date string) {
	uc.store.MarkAllSeen(date)
}

// ClearAll clears seen/date/notes on every species.
func (uc *SightingUseCase) ClearAll() {
	uc.store.ClearAll()
}

// SaveLocal writes the working set back to the CSV file it was loaded
// from. A failure leaves the prior file intact.
func (uc *SightingUseCase) SaveLocal() error {
	return uc.store.Save(uc.store.Path())
}

// Export streams the working set as CSV.
func (uc *SightingUseCase) Export(w io.Writer) error {
	return uc.store.ExportCSV(w)
}

// RemoteEnabled reports whether a remote table client is configured.
func (uc *SightingUseCase) RemoteEnabled() bool {
	return uc.remote != nil
}

// SyncRemote upserts every record into the remote table, keyed by species.
// One record's failure never aborts the others, and there is no automatic
// retry: upserts are idempotent, so the caller can simply sync again.
// Records whose UpdatedAt has not advanced since their last successful
// upsert are skipped.
func (uc *SightingUseCase) SyncRemote(ctx context.Context) *SyncResult {
	result := &SyncResult{}
	if uc.remote == nil {
		log.Println("Remote sync is disabled, nothing to do")
		result.Disabled = true
		return result
	}

	log.Printf("Syncing %d records to remote table", uc.store.Len())
	for _, rec := range uc.store.Records() {
		if last, ok := uc.syncedAt[rec.Species]; ok && !rec.UpdatedAt.After(last) {
			result.Skipped++
			continue
		}

		if err := uc.remote.UpsertSighting(ctx, *rec); err != nil {
			log.Printf("Warning: upsert failed for %q: %v", rec.Species, err)
			result.Failed = append(result.Failed, SyncFailure{Species: rec.Species, Reason: err.Error()})
			continue
		}

		uc.syncedAt[rec.Species] = rec.UpdatedAt
		result.Succeeded++
	}

	log.Printf("Sync complete: %d upserted, %d skipped, %d failed",
		result.Succeeded, result.Skipped, len(result.Failed))
	return result
}

// EnrichImage resolves the preview image URL for a species. An explicit
// Image URL on the record wins unchanged; otherwise the linked photo page
// is consulted for its OpenGraph image, with the outcome (including
// absence) cached in memory and, when available, in the persistent image
// cache. Fetch and parse failures are not errors here: the caller just
// shows no image. The record itself is never mutated.
func (uc *SightingUseCase) EnrichImage(ctx context.Context, species string) (string, error) {
	rec, err := uc.store.Get(species)
	if err != nil {
		return "", err
	}

	if rec.ImageURL != "" {
		return rec.ImageURL, nil
	}
	if rec.PhotoLink == "" {
		return "", nil
	}

	if cached, found := uc.memCache.Get(species); found {
		return cached.(string), nil
	}

	if uc.imageCache != nil {
		url, _, cerr := uc.imageCache.GetImageURL(species)
		if cerr != nil {
			log.Printf("Warning: image cache lookup failed for %q: %v", species, cerr)
		} else if url != "" {
			uc.memCache.SetDefault(species, url)
			return url, nil
		}
	}

	if uc.scraper == nil {
		return "", nil
	}

	url, ferr := uc.scraper.FetchOGImage(ctx, rec.PhotoLink)
	if ferr != nil {
		log.Printf("Warning: image lookup failed for %q: %v", species, ferr)
		// Remember the miss so a broken link is not hammered every render
		uc.memCache.SetDefault(species, "")
		return "", nil
	}

	uc.memCache.SetDefault(species, url)
	if url != "" && uc.imageCache != nil {
		if cerr := uc.imageCache.PutImageURL(species, url, time.Now()); cerr != nil {
			log.Printf("Warning: failed to persist image URL for %q: %v", species, cerr)
		}
	}
	return url, nil
}

// FormatRecord formats one sighting record for display.
func FormatRecord(rec *entities.SightingRecord) string {
	seen := "not seen yet"
	if rec.Seen {
		seen = "seen"
		if rec.FirstSeenDate != "" {
			seen = fmt.Sprintf("seen, first on %s", rec.FirstSeenDate)
		}
	}
	out := fmt.Sprintf("%s (%s)", rec.Species, seen)
	if rec.Notes != "" {
		out += fmt.Sprintf("\n  Notes: %s", rec.Notes)
	}
	if rec.PhotoLink != "" {
		out += fmt.Sprintf("\n  Photo page: %s", rec.PhotoLink)
	}
	return out
}
