package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/meshmap/mesh2graph/internal/configuration"
	"github.com/meshmap/mesh2graph/internal/db"
	"github.com/meshmap/mesh2graph/internal/export"
	"github.com/meshmap/mesh2graph/internal/logger"
)

func main() {
	var (
		configFile = flag.String("c", "./configuration.yaml", "path to config file name")
		view       = flag.String("view", "all", "view to export: messages, physical, neighbors, traceroutes or all")
		window     = flag.Duration("window", time.Hour, "snapshot window, e.g. 30m or 24h")
		all        = flag.Bool("all-windows", false, "export the standard window set instead of -window")
		series     = flag.Bool("series", false, "also export hourly series for the standard horizons")
		outDir     = flag.String("out", "", "output directory, overrides the configured data directory")
	)
	flag.Parse()

	log := logger.GetLogger("[export]", logger.LogLevelInfo)

	cfg, err := configuration.Load(*configFile)
	if err != nil {
		log.Error("configuration initialization error: %v", err)
		os.Exit(1)
	}

	dir := cfg.ExportConfiguration.DataDirectory
	if *outDir != "" {
		dir = *outDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error("creating data directory: %v", err)
		os.Exit(1)
	}

	store, err := db.NewStore(cfg.DatabasePath)
	if err != nil {
		log.Error("store initialization error: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	views, err := resolveViews(*view)
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	windows := []time.Duration{*window}
	if *all {
		windows = export.StandardWindows
	}

	engine := export.NewEngine(store, cfg, log)
	ctx := context.Background()

	for _, w := range windows {
		for _, v := range views {
			if err := engine.ExportGraph(ctx, v, w, dir); err != nil {
				log.Error("exporting %v/%v: %v", v, export.WindowLabel(w), err)
				os.Exit(1)
			}
		}
	}

	if *series {
		for _, days := range export.StandardHorizons {
			if err := engine.ExportSeries(ctx, days, dir); err != nil {
				log.Error("exporting %vd series: %v", days, err)
				os.Exit(1)
			}
		}
	}

	if err := engine.WriteMarker(dir); err != nil {
		log.Error("writing export marker: %v", err)
		os.Exit(1)
	}
}

func resolveViews(name string) ([]export.ViewKind, error) {
	switch export.ViewKind(name) {
	case export.ViewMessages, export.ViewPhysicalSenders, export.ViewNeighbors, export.ViewTraceroutes:
		return []export.ViewKind{export.ViewKind(name)}, nil
	}
	if name == "all" {
		return []export.ViewKind{
			export.ViewMessages,
			export.ViewPhysicalSenders,
			export.ViewNeighbors,
			export.ViewTraceroutes,
		}, nil
	}
	return nil, unknownViewError(name)
}

type unknownViewError string

func (e unknownViewError) Error() string {
	return "unknown view: " + string(e)
}
