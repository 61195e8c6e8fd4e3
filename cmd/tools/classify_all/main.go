package main

import (
	"context"
	"flag"
	"log"

	"github.com/rafaelq/licita-radar/internal/ai"
	"github.com/rafaelq/licita-radar/internal/config"
	"github.com/rafaelq/licita-radar/internal/db"
	"github.com/rafaelq/licita-radar/internal/ingest"
)

// Scores the whole classification queue directly against the database,
// bypassing the API. Useful after a large backfill.
func main() {
	maxBatches := flag.Int("max-batches", 100, "stop after this many batches")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx := context.Background()
	pool, err := db.ConnectURL(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	classifier := &ai.Classifier{
		Client: ai.NewOpenRouterClient(cfg.OpenRouterAPIKey),
		Model:  cfg.FilterModel,
	}
	runner := ingest.NewRunner(db.NewStore(pool), nil, classifier, cfg.IABatchSize)

	totalScored, totalErrors := 0, 0
	for batch := 1; batch <= *maxBatches; batch++ {
		outcomes, err := runner.ClassifyPending(ctx, nil)
		if err != nil {
			log.Fatalf("batch %d failed: %v", batch, err)
		}
		if len(outcomes) == 0 {
			log.Print("queue drained")
			break
		}

		scored, errored := 0, 0
		for _, o := range outcomes {
			if o.Error != "" {
				errored++
			} else {
				scored++
			}
		}
		totalScored += scored
		totalErrors += errored
		log.Printf("batch %d: %d scored, %d errors", batch, scored, errored)
	}

	log.Printf("done: %d scored, %d flagged for review", totalScored, totalErrors)
}
