// Package supabase provides a minimal client for the hosted bird_sightings
// table, speaking the PostgREST dialect Supabase exposes.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mhutchins/birdtrack/internal/entities"
)

// Environment variables carrying the two remote-table secrets. When either
// is absent the application runs in local-only mode.
const (
	EnvURL     = "SUPABASE_URL"
	EnvAnonKey = "SUPABASE_ANON_KEY"
)

const sightingsTable = "bird_sightings"

// TableClient defines the interface for upserting sighting rows into the
// remote table.
type TableClient interface {
	UpsertSighting(ctx context.Context, rec entities.SightingRecord) error
}

// tableClientImpl implements the TableClient interface.
type tableClientImpl struct {
	baseURL string
	apiKey  string
	table   string
	client  *http.Client
}

// Enabled reports whether both remote-table secrets are configured.
func Enabled() bool {
	return os.Getenv(EnvURL) != "" && os.Getenv(EnvAnonKey) != ""
}

// NewTableClientFromEnv creates a TableClient from the SUPABASE_URL and
// SUPABASE_ANON_KEY environment variables.
func NewTableClientFromEnv() (TableClient, error) {
	url := os.Getenv(EnvURL)
	key := os.Getenv(EnvAnonKey)
	if url == "" || key == "" {
		return nil, errors.New("SUPABASE_URL and SUPABASE_ANON_KEY environment variables are not both set")
	}
	return NewTableClient(url, key), nil
}

// NewTableClient creates a TableClient against the given Supabase project
// URL with the given API key.
func NewTableClient(baseURL, apiKey string) TableClient {
	return &tableClientImpl{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		table:   sightingsTable,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// sightingRow is the JSON shape of one bird_sightings row.
type sightingRow struct {
	Species       string  `json:"species"`
	Seen          bool    `json:"seen"`
	FirstSeenDate *string `json:"first_seen_date"`
	Notes         string  `json:"notes"`
	UpdatedAt     string  `json:"updated_at"`
}

// UpsertSighting inserts or updates one row keyed by species. Last write
// wins: all provided columns are replaced on conflict.
func (c *tableClientImpl) UpsertSighting(ctx context.Context, rec entities.SightingRecord) error {
	row := sightingRow{
		Species:   rec.Species,
		Seen:      rec.Seen,
		Notes:     rec.Notes,
		UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if rec.FirstSeenDate != "" {
		row.FirstSeenDate = &rec.FirstSeenDate
	}
	if rec.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode row for %q: %w", rec.Species, err)
	}

	url := fmt.Sprintf("%s/rest/v1/%s?on_conflict=species", c.baseURL, c.table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build upsert request for %q: %w", rec.Species, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upsert request for %q failed: %w", rec.Species, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		// PostgREST puts the error detail in the body; keep a snippet
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		log.Printf("Upsert for %q rejected: %d %s: %s", rec.Species, res.StatusCode, res.Status, strings.TrimSpace(string(detail)))
		return fmt.Errorf("upsert for %q rejected: %d %s", rec.Species, res.StatusCode, res.Status)
	}

	return nil
}
