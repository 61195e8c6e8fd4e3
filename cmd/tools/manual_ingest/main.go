package main

import (
	"context"
	"flag"
	"log"

	"github.com/google/uuid"

	"github.com/rafaelq/licita-radar/internal/db"
	"github.com/rafaelq/licita-radar/internal/ingest"
	"github.com/rafaelq/licita-radar/internal/pncp"
)

func main() {
	profileID := flag.String("profile", "", "Search profile UUID to run")
	flag.Parse()

	if *profileID == "" {
		log.Fatal("Please provide a profile UUID using -profile flag")
	}
	id, err := uuid.Parse(*profileID)
	if err != nil {
		log.Fatalf("Invalid profile UUID: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// No classifier: this tool only fetches and stores. Scoring runs
	// through the classify batch afterwards.
	runner := ingest.NewRunner(db.NewStore(pool), pncp.NewClient(), nil, 0)

	log.Printf("Starting manual search for profile %s", id)
	inserted, err := runner.RunProfile(ctx, id)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	log.Printf("Search finished for %s. New tenders: %d", id, inserted)
}
