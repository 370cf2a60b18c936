package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/threadpick/threadpick/internal/config"
	"github.com/threadpick/threadpick/internal/database"
	"github.com/threadpick/threadpick/internal/ingest"
	"github.com/threadpick/threadpick/internal/services"
)

func main() {
	file := flag.String("file", "", "path to the catalog CSV")
	flag.Parse()

	if *file == "" {
		log.Fatal("usage: ingest -file catalog.csv")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("database.url must be configured for ingestion")
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	ctx := context.Background()

	db, err := database.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("Failed to open catalog file: %v", err)
	}
	defer f.Close()

	loader := ingest.NewLoader(database.NewProductRepository(db.PG), services.NewFeatureExtractor(), logger)
	result, err := loader.LoadCSV(ctx, f)
	if err != nil {
		log.Fatalf("Ingestion failed: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"loaded":  result.Loaded,
		"skipped": result.Skipped,
	}).Info("Catalog ingestion complete")
}
