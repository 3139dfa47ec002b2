package activities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/nucleus/stitch-core/internal/connector/stitch"
)

// Activities holds the Stitch Temporal activities.
type Activities struct {
	// newConnector builds a connector per activity invocation so each run
	// gets a fresh client; replaceable in tests.
	newConnector func() (*stitch.Stitch, error)
}

// NewActivities creates an Activities instance building connectors from the
// given configuration.
func NewActivities(cfg *stitch.Config) *Activities {
	return &Activities{
		newConnector: func() (*stitch.Stitch, error) {
			// Copy so Validate's default-filling never mutates shared state.
			c := *cfg
			return stitch.New(&c)
		},
	}
}

// =============================================================================
// ACTIVITY: ReplicateDataSource
// =============================================================================

// ReplicateDataSource starts a replication job for the requested data source
// and blocks until it settles. One invocation per data source; Temporal
// provides the per-source concurrency the blocking call itself does not.
func (a *Activities) ReplicateDataSource(ctx context.Context, req ReplicationJobRequest) (*ReplicationJobResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("starting replication", "runId", req.RunID, "source", req.SourceID)

	if req.SourceID == "" {
		return nil, fmt.Errorf("sourceId is required")
	}

	connector, err := a.newConnector()
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	defer connector.Close()

	opts := &stitch.PollOptions{
		PollInterval:      time.Duration(req.PollIntervalSecs) * time.Second,
		ExtractionTimeout: time.Duration(req.ExtractionTimeoutSecs) * time.Second,
		LoadTimeout:       time.Duration(req.LoadTimeoutSecs) * time.Second,
	}

	// The poll is one long blocking call, so heartbeat on a timer to keep
	// the activity alive past its heartbeat timeout.
	stopHeartbeat := heartbeat(ctx, 10*time.Second)
	defer stopHeartbeat()

	result, err := connector.StartReplicationJobAndPoll(ctx, req.SourceID, opts)
	if err != nil {
		logger.Error("replication failed", "runId", req.RunID, "source", req.SourceID, "error", err)
		return nil, err
	}

	logger.Info("replication complete",
		"runId", req.RunID,
		"source", req.SourceID,
		"job", result.Extraction.JobName,
		"streams", len(result.Loads))

	return &ReplicationJobResult{
		RunID:       req.RunID,
		SourceID:    req.SourceID,
		JobName:     result.Extraction.JobName,
		StreamCount: len(result.Loads),
		CompletedAt: time.Now().UTC().Format(stitch.TimeFormat),
		Loads:       result.Loads,
		Schemas:     result.Schemas,
	}, nil
}

// heartbeat records activity heartbeats every interval until the returned
// stop function is called or ctx is done.
func heartbeat(ctx context.Context, interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, "polling")
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
