package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanonone/citefuse/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "citefuse.yaml", "Path to the pipeline YAML configuration")
	outDir := flag.String("out", "", "Override out_dir from the configuration")
	seed := flag.Int64("seed", 0, "Override the random seed (non-zero values only)")
	metricsAddr := flag.String("metrics-addr", "", "Expose Prometheus metrics on this address while running (e.g. :9092)")
	verbose := flag.Bool("v", false, "Enable debug logging")

	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Cannot load configuration: %v", err)
	}
	if *outDir != "" {
		cfg.OutDir = *outDir
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				slog.Error("Metrics endpoint failed", "error", err)
			}
		}()
	}

	cs, err := pipeline.Run(cfg)
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	for _, rec := range cs.Records() {
		slog.Debug("Stored result", "kind", rec.Kind, "name", rec.Name, "id", rec.ID)
	}
	slog.Info("Done", "cells", cs.Len(), "out_dir", cfg.OutDir)
}
