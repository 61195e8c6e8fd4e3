package main

import (
	"context"
	"log"

	"github.com/rafaelq/licita-radar/internal/api"
	"github.com/rafaelq/licita-radar/internal/config"
	"github.com/rafaelq/licita-radar/internal/db"
	"github.com/rafaelq/licita-radar/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx := context.Background()
	pool, err := db.ConnectURL(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	srv := api.NewServer(pool, cfg)

	if cfg.S3Bucket != "" && cfg.AWSAccessKeyID != "" {
		s3, err := storage.NewS3Client(ctx, cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.S3Bucket)
		if err != nil {
			log.Fatalf("Failed to initialize S3: %v", err)
		}
		srv.S3 = s3
	} else {
		log.Print("[Server] S3 is not configured, edital uploads disabled")
	}

	log.Printf("Server starting on port %s...", cfg.Port)
	if err := srv.Start(cfg.Port); err != nil {
		log.Fatal(err)
	}
}
