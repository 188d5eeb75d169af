package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/meshmap/mesh2graph/internal/configuration"
	"github.com/meshmap/mesh2graph/internal/db"
	"github.com/meshmap/mesh2graph/internal/logger"
)

func main() {
	var (
		configFile = flag.String("c", "./configuration.yaml", "path to config file name")
		days       = flag.Int("days", 7, "delete event rows older than this many days")
		batch      = flag.Int("batch", 10000, "rows deleted per batch")
		dryRun     = flag.Bool("dry-run", false, "report what would be deleted without touching the database")
	)
	flag.Parse()

	log := logger.GetLogger("[cleanup]", logger.LogLevelInfo)

	if *days <= 0 {
		log.Error("days must be positive, got %d", *days)
		os.Exit(1)
	}

	cfg, err := configuration.Load(*configFile)
	if err != nil {
		log.Error("configuration initialization error: %v", err)
		os.Exit(1)
	}

	store, err := db.NewStore(cfg.DatabasePath)
	if err != nil {
		log.Error("store initialization error: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	cutoff := time.Now().AddDate(0, 0, -*days).Unix()

	if *dryRun {
		counts, err := store.CountOlderThan(ctx, cutoff)
		if err != nil {
			log.Error("counting old rows: %v", err)
			os.Exit(1)
		}
		var total int64
		for table, n := range counts {
			log.Info("%s: %d rows older than %dd", table, n, *days)
			total += n
		}
		log.Info("dry run, %d rows would be deleted", total)
		return
	}

	deleted, err := store.DeleteOlderThan(ctx, cutoff, *batch)
	if err != nil {
		log.Error("deleting old rows: %v", err)
		os.Exit(1)
	}
	log.Info("deleted %d rows older than %dd", deleted, *days)

	if err := store.Vacuum(ctx); err != nil {
		log.Error("vacuum: %v", err)
		os.Exit(1)
	}
	log.Info("vacuum done")
}
