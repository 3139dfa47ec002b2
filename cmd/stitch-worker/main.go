// Package main runs the Stitch replication Temporal worker.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/nucleus/stitch-core/internal/activities"
	"github.com/nucleus/stitch-core/internal/config"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.APIKey == "" || cfg.AccountID == "" {
		log.Fatalf("STITCH_API_KEY and STITCH_ACCOUNT_ID are required")
	}

	log.Printf("Starting Stitch worker: address=%s namespace=%s queue=%s",
		cfg.TemporalHost, cfg.TemporalNamespace, cfg.TaskQueue)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TaskQueue, worker.Options{})

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	acts := activities.NewActivities(cfg.StitchConfig(logger))
	w.RegisterActivity(acts.ReplicateDataSource)

	log.Printf("Registered 1 activity: ReplicateDataSource")

	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("Worker failed: %v", err)
	}
}
