// Package integration handles external service interactions
package integration

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// defaultUserAgent identifies the tracker to the photo source sites
// (Audubon / All About Birds), which reject requests without one.
const defaultUserAgent = "Mozilla/5.0 (compatible; BackyardBirdsBot/1.0)"

// OGImageScraper discovers preview image URLs from web pages through their
// OpenGraph (and Twitter card) metadata.
type OGImageScraper struct {
	client    *http.Client
	userAgent string
}

// NewOGImageScraper creates a new OpenGraph image scraper. A zero timeout
// falls back to 10 seconds so a slow page cannot hang the session.
func NewOGImageScraper(timeout time.Duration) *OGImageScraper {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &OGImageScraper{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

// Meta tag selectors in preference order: og:image first, then the Twitter
// card, each in both attribute spellings seen in the wild.
var imageMetaSelectors = []string{
	`meta[property="og:image"]`,
	`meta[name="og:image"]`,
	`meta[name="twitter:image"]`,
	`meta[property="twitter:image"]`,
}

// FetchOGImage fetches pageURL and extracts the first declared preview
// image URL. A page that declares no image yields an empty URL and no
// error; transport and parse problems are returned as errors for the
// caller to log and treat as absence.
func (s *OGImageScraper) FetchOGImage(ctx context.Context, pageURL string) (string, error) {
	log.Printf("Fetching OpenGraph metadata from %s", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	res, err := s.client.Do(req)
	if err != nil {
		log.Printf("Error fetching page: %v", err)
		return "", fmt.Errorf("failed to fetch the webpage: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		log.Printf("Received unexpected status code: %d %s", res.StatusCode, res.Status)
		return "", fmt.Errorf("unexpected status code: %d %s", res.StatusCode, res.Status)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		log.Printf("Error parsing HTML: %v", err)
		return "", fmt.Errorf("failed to parse the webpage: %w", err)
	}

	for _, selector := range imageMetaSelectors {
		content := strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
		if content != "" {
			log.Printf("Found preview image via %s: %s", selector, content)
			return content, nil
		}
	}

	log.Printf("No OpenGraph image declared on %s", pageURL)
	return "", nil
}
