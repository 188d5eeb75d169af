package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/meshmap/mesh2graph/internal/configuration"
	"github.com/meshmap/mesh2graph/internal/db"
	"github.com/meshmap/mesh2graph/internal/decoder"
	"github.com/meshmap/mesh2graph/internal/listener"
	"github.com/meshmap/mesh2graph/internal/logger"
	"github.com/meshmap/mesh2graph/internal/metrics"
	"github.com/meshmap/mesh2graph/internal/mqtt"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var configFile = flag.String("c", "./configuration.yaml", "path to config file name")
	flag.Parse()

	log := logger.GetLogger("[main]", logger.LogLevelInfo)

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

	m := metrics.NewMetrics()
	if cfg.MetricsAddress != "" {
		go serveMetrics(cfg.MetricsAddress, m, log)
	}

	lst := listener.New(store, decoder.New(), m,
		logger.GetLogger("[Listener]", cfg.LogLevel))

	client := mqtt.NewClient(cfg, func(topic string, payload []byte) {
		lst.HandleRaw(ctx, topic, payload)
	}, m, logger.GetLogger("[MQTT Client]", cfg.LogLevel))

	go client.Run(ctx)

	waitForInterruptSignal()

	log.Info("exiting app...")
}

func serveMetrics(address string, m *metrics.Metrics, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	if err := http.ListenAndServe(address, mux); err != nil {
		log.Error("metrics server error: %v", err)
	}
}

func waitForInterruptSignal() {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigchan)
	}()
	<-sigchan
}
