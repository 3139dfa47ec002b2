package stitch

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// REPLICATION
// Starting a job and polling the two phases to completion. Extract and load
// are decoupled in time by the remote system and share no job identifier, so
// the load phase correlates purely by timestamp.
// =============================================================================

// PollOptions overrides the connector defaults for one replication call.
// Zero values fall back to the configured defaults; a zero timeout default
// means the phase is unbounded.
type PollOptions struct {
	PollInterval      time.Duration
	ExtractionTimeout time.Duration
	LoadTimeout       time.Duration
}

// jobHandle identifies a started extraction attempt. It is discarded once the
// matching extraction record has been confirmed.
type jobHandle struct {
	jobName   string
	startTime time.Time
}

// startJobResponse is the POST sync response: either a job name or an
// explicit error, which is a rejection by the remote system rather than a
// transport failure.
type startJobResponse struct {
	JobName string `json:"job_name"`
	Error   string `json:"error,omitempty"`
}

// StartReplicationJob starts a replication job (extract and load) for the
// given data source and returns the extraction job name. The load phase has
// no identifier of its own; association is by source and time.
func (s *Stitch) StartReplicationJob(ctx context.Context, sourceID string) (string, error) {
	var response startJobResponse
	endpoint := fmt.Sprintf("sources/%s/sync", sourceID)
	if err := s.request(ctx, "POST", endpoint, nil, &response); err != nil {
		return "", err
	}
	if response.Error != "" {
		return "", &JobStartError{SourceID: sourceID, Message: response.Error}
	}
	return response.JobName, nil
}

// StartReplicationJobAndPoll starts a replication job for every selected
// stream of the data source and blocks until both phases settle, a timeout
// fires, or ctx is cancelled. This is a blocking call; run it on its own
// goroutine or worker when polling several sources concurrently.
func (s *Stitch) StartReplicationJobAndPoll(ctx context.Context, sourceID string, opts *PollOptions) (*ReplicationResult, error) {
	pollInterval := s.config.DefaultPollInterval
	extractionTimeout := s.config.DefaultExtractionTimeout
	loadTimeout := s.config.DefaultLoadTimeout
	if opts != nil {
		if opts.PollInterval > 0 {
			pollInterval = opts.PollInterval
		}
		if opts.ExtractionTimeout > 0 {
			extractionTimeout = opts.ExtractionTimeout
		}
		if opts.LoadTimeout > 0 {
			loadTimeout = opts.LoadTimeout
		}
	}

	extraction, err := s.pollExtraction(ctx, sourceID, pollInterval, extractionTimeout)
	if err != nil {
		return nil, err
	}

	if err := checkStages(sourceID, extraction); err != nil {
		return nil, err
	}

	// One-time snapshot of the stream list for this call.
	streams, err := s.ListStreams(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	loads, err := s.pollLoads(ctx, sourceID, streams, pollInterval, loadTimeout)
	if err != nil {
		return nil, err
	}

	return s.assembleResult(ctx, sourceID, extraction, streams, loads)
}

// pollExtraction starts the job and polls the extraction records until the
// started job is observed or the timeout fires.
func (s *Stitch) pollExtraction(ctx context.Context, sourceID string, pollInterval, timeout time.Duration) (*ExtractionRecord, error) {
	job := jobHandle{startTime: time.Now()}

	jobName, err := s.StartReplicationJob(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	job.jobName = jobName

	for {
		extraction, found, err := s.getExtraction(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		if !found {
			// A source with no extraction history at all; fatal, not retried.
			return nil, &ExtractionNotFoundError{SourceID: sourceID}
		}

		s.logger.Info("polled extractions",
			"source", sourceID,
			"job", extraction.JobName,
			"started", extraction.StartTime.Format(TimeFormat))

		// The observed record is ours when the job name matches. A start
		// time at or after our own marker also terminates the wait: a
		// different, newer job overtook the polled one, and recency wins
		// over identity.
		if extraction.JobName == job.jobName || !extraction.StartTime.Before(job.startTime) {
			return extraction, nil
		}

		if timeout > 0 && time.Since(job.startTime) > timeout {
			return nil, &ExtractionTimeoutError{
				SourceID: sourceID,
				JobName:  job.jobName,
				Timeout:  timeout,
			}
		}

		if err := sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

// checkStages inspects the per-stage exit statuses in completion order.
// An unreported stage means the extraction is still in that stage; later
// stages carry no meaning yet, so checking stops there. A non-zero status
// fails immediately without examining later stages.
func checkStages(sourceID string, extraction *ExtractionRecord) error {
	for _, stage := range extraction.stages() {
		if !stage.status.Reported {
			break
		}
		if stage.status.Code != 0 {
			return &StageFailureError{
				SourceID:    sourceID,
				Stage:       stage.name,
				ExitCode:    stage.status.Code,
				Description: stage.description,
			}
		}
	}
	return nil
}

// pollLoads polls the per-stream loads until every selected stream has either
// a load batch strictly newer than the phase start or a reported error state.
// A stream load error is deliberately downgraded to a warning: one stream's
// failure must not block visibility into the others' completion.
func (s *Stitch) pollLoads(ctx context.Context, sourceID string, streams map[string]Stream, pollInterval, timeout time.Duration) (map[string]LoadRecord, error) {
	loadStart := time.Now()

	for {
		loads, err := s.ListRecentLoads(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		if len(loads) == 0 {
			return nil, &LoadNotFoundError{SourceID: sourceID}
		}

		s.logger.Info("polled loads", "source", sourceID, "streams", len(loads))

		complete := true
		for name, stream := range streams {
			if !stream.Metadata.Selected {
				continue
			}

			load, ok := loads[name]
			if !ok {
				return nil, &StreamLoadMissingError{SourceID: sourceID, StreamName: name}
			}

			if load.ErrorState != nil {
				s.logger.Warn("stream load failed",
					"source", sourceID,
					"stream", name,
					"error", load.ErrorState.Message)
				continue // settled: does not block completion
			}

			if !load.Fresh(loadStart) {
				complete = false
			}
		}

		if complete {
			return loads, nil
		}

		if timeout > 0 && time.Since(loadStart) > timeout {
			return nil, &LoadTimeoutError{SourceID: sourceID, Timeout: timeout}
		}

		if err := sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

// assembleResult resolves the schema of every selected stream and restricts
// the returned load and schema maps to the selected streams.
func (s *Stitch) assembleResult(ctx context.Context, sourceID string, extraction *ExtractionRecord, streams map[string]Stream, loads map[string]LoadRecord) (*ReplicationResult, error) {
	result := &ReplicationResult{
		Extraction: *extraction,
		Loads:      make(map[string]LoadRecord),
		Schemas:    make(map[string]StreamSchema),
	}

	for name, stream := range streams {
		if !stream.Metadata.Selected {
			continue
		}
		schema, err := s.GetStreamSchema(ctx, sourceID, name)
		if err != nil {
			return nil, err
		}
		result.Schemas[name] = *schema
		if load, ok := loads[name]; ok {
			result.Loads[name] = load
		}
	}

	return result, nil
}

// sleep blocks for the poll interval or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
