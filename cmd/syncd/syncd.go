package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/mhutchins/birdtrack/internal/integration/supabase"
	"github.com/mhutchins/birdtrack/internal/repository"
	"github.com/mhutchins/birdtrack/internal/usecases"
)

// syncOnce reloads the CSV from disk and pushes every row to the remote
// table. The file is re-read each run because the interactive session may
// have saved new edits in the meantime.
func syncOnce(ctx context.Context, csvPath string, remote supabase.TableClient) error {
	store, err := repository.LoadSightings(csvPath)
	if err != nil {
		return err
	}

	useCase := usecases.NewSightingUseCase(store, nil, remote, nil)
	result := useCase.SyncRemote(ctx)
	for _, failure := range result.Failed {
		log.Printf("Sync failure for %s: %s", failure.Species, failure.Reason)
	}
	return nil
}

func main() {
	// Configure logging
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Starting Backyard Birds sync daemon...")

	// Load .env if present; real environment variables win
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	csvPath := os.Getenv("BIRDS_CSV")
	if csvPath == "" {
		csvPath = "birds_db.csv"
	}

	// The daemon exists only to push to the remote table, so unlike the
	// interactive session it refuses to start without the secrets
	remote, err := supabase.NewTableClientFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize remote table client: %v", err)
	}

	schedule := os.Getenv("SYNC_SCHEDULE")
	if schedule == "" {
		schedule = "0 * * * *" // hourly
	}

	// Run once immediately on startup
	if err := syncOnce(context.Background(), csvPath, remote); err != nil {
		log.Printf("Initial sync failed: %v", err)
	}

	// Set up cron scheduler
	c := cron.New()
	_, err = c.AddFunc(schedule, func() {
		if err := syncOnce(context.Background(), csvPath, remote); err != nil {
			log.Printf("Scheduled sync failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to set up cron job: %v", err)
	}

	log.Printf("Sync scheduled with spec %q", schedule)
	c.Start()

	// Keep the program running
	select {}
}
