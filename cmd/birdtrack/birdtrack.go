package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mhutchins/birdtrack/internal/api"
	"github.com/mhutchins/birdtrack/internal/integration"
	"github.com/mhutchins/birdtrack/internal/integration/supabase"
	"github.com/mhutchins/birdtrack/internal/repository"
	"github.com/mhutchins/birdtrack/internal/usecases"
)

func main() {
	// Configure logging
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Starting Backyard Birds Tracker...")

	// Load .env if present; real environment variables win
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	csvPath := os.Getenv("BIRDS_CSV")
	if csvPath == "" {
		csvPath = "birds_db.csv"
	}

	// Load the sighting table; a malformed file aborts startup
	store, err := repository.LoadSightings(csvPath)
	if err != nil {
		log.Fatalf("Failed to load sighting file: %v", err)
	}

	// Persistent image cache is a convenience, run without it on failure
	var imageCache repository.ImageCacheRepository
	if cacheRepo, err := repository.NewSQLiteImageCacheRepository(os.Getenv("BIRDS_IMAGE_CACHE")); err != nil {
		log.Printf("Warning: image cache unavailable, continuing without it: %v", err)
	} else {
		imageCache = cacheRepo
		defer cacheRepo.Close()
	}

	// Initialize the OpenGraph scraper
	scraper := integration.NewOGImageScraper(10 * time.Second)

	// Remote sync only when both secrets are configured
	var remote supabase.TableClient
	if supabase.Enabled() {
		remote, err = supabase.NewTableClientFromEnv()
		if err != nil {
			log.Fatalf("Failed to initialize remote table client: %v", err)
		}
		log.Println("Remote sync to Supabase is enabled")
	} else {
		log.Println("Remote sync is disabled (SUPABASE_URL / SUPABASE_ANON_KEY not set)")
	}

	// Initialize use case
	useCase := usecases.NewSightingUseCase(store, scraper, remote, imageCache)

	// Start the interactive session
	session := api.NewConsoleSession(useCase, os.Stdin, os.Stdout)
	if err := session.Start(context.Background()); err != nil {
		log.Fatalf("Session ended with error: %v", err)
	}
}
