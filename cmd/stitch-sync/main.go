// Package main provides a CLI that runs one Stitch replication job to
// completion: start the sync, wait for the extraction, then wait for every
// selected stream to load.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nucleus/stitch-core/internal/archive"
	"github.com/nucleus/stitch-core/internal/config"
	"github.com/nucleus/stitch-core/internal/connector/stitch"
	"github.com/nucleus/stitch-core/internal/runlog"
)

func main() {
	sourceID := flag.String("source", "", "Stitch data source ID to replicate (required)")
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	if *sourceID == "" {
		flag.Usage()
		log.Fatalf("-source is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.APIKey == "" || cfg.AccountID == "" {
		log.Fatalf("STITCH_API_KEY and STITCH_ACCOUNT_ID are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	connector, err := stitch.New(cfg.StitchConfig(logger))
	if err != nil {
		log.Fatalf("Failed to create connector: %v", err)
	}
	defer connector.Close()

	runID := uuid.NewString()
	startedAt := time.Now().UTC()
	log.Printf("Starting replication: run=%s source=%s", runID, *sourceID)

	result, runErr := connector.StartReplicationJobAndPoll(ctx, *sourceID, nil)
	completedAt := time.Now().UTC()

	recordRun(ctx, cfg, runID, *sourceID, result, runErr, startedAt, completedAt)

	if runErr != nil {
		log.Fatalf("Replication failed: %v", runErr)
	}

	archiveResult(ctx, cfg, runID, *sourceID, result)

	summary := map[string]any{
		"runId":       runID,
		"sourceId":    *sourceID,
		"jobName":     result.Extraction.JobName,
		"streamCount": len(result.Loads),
		"completedAt": completedAt.Format(stitch.TimeFormat),
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	os.Stdout.Write(append(out, '\n'))
}

// recordRun persists the outcome when a run log DSN is configured.
func recordRun(ctx context.Context, cfg *config.Config, runID, sourceID string,
	result *stitch.ReplicationResult, runErr error, startedAt, completedAt time.Time) {
	if cfg.RunlogDSN == "" {
		return
	}
	store, err := runlog.New(ctx, cfg.RunlogDSN)
	if err != nil {
		log.Printf("Run log unavailable: %v", err)
		return
	}
	defer store.Close()

	run := runlog.Run{
		RunID:       runID,
		SourceID:    sourceID,
		Status:      runlog.StatusCompleted,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	}
	if runErr != nil {
		run.Status = runlog.StatusFailed
		run.Error = runErr.Error()
	} else {
		run.JobName = result.Extraction.JobName
		run.StreamCount = len(result.Loads)
		run.Detail, _ = json.Marshal(result)
	}
	if err := store.RecordRun(ctx, run); err != nil {
		log.Printf("Failed to record run: %v", err)
	}
}

// archiveResult writes the full result to object storage when configured.
func archiveResult(ctx context.Context, cfg *config.Config, runID, sourceID string,
	result *stitch.ReplicationResult) {
	if cfg.ArchiveBucket == "" {
		return
	}
	store, err := archive.New(&archive.Config{
		EndpointURL:     cfg.ArchiveEndpoint,
		AccessKeyID:     cfg.ArchiveAccessKey,
		SecretAccessKey: cfg.ArchiveSecretKey,
		Bucket:          cfg.ArchiveBucket,
		Prefix:          cfg.ArchivePrefix,
		UseSSL:          cfg.ArchiveUseSSL,
	})
	if err != nil {
		log.Printf("Archive unavailable: %v", err)
		return
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Printf("Archive bucket check failed: %v", err)
		return
	}
	key, err := store.PutResult(ctx, sourceID, runID, result)
	if err != nil {
		log.Printf("Failed to archive result: %v", err)
		return
	}
	log.Printf("Archived result: %s", key)
}
