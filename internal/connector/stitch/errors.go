package stitch

import (
	"fmt"
	"time"
)

// Domain-level failures. Unlike transport failures these are never retried:
// each one is terminal to the replication call and carries the data source it
// belongs to.

// JobStartError reports an explicit error field in the start-job response.
// This is a signal from the remote system, not a transport failure.
type JobStartError struct {
	SourceID string
	Message  string
}

func (e *JobStartError) Error() string {
	return fmt.Sprintf("start replication job for source %s rejected: %s", e.SourceID, e.Message)
}

// ExtractionNotFoundError reports that no extraction record exists for the
// data source. This covers a first-ever run against a source with no
// extraction history.
type ExtractionNotFoundError struct {
	SourceID string
}

func (e *ExtractionNotFoundError) Error() string {
	return fmt.Sprintf("extraction not found for data source %s", e.SourceID)
}

// ExtractionTimeoutError reports that the started job was never observed
// within the extraction timeout.
type ExtractionTimeoutError struct {
	SourceID string
	JobName  string
	Timeout  time.Duration
}

func (e *ExtractionTimeoutError) Error() string {
	return fmt.Sprintf("extraction job %s for source %s timed out after %s",
		e.JobName, e.SourceID, e.Timeout)
}

// StageFailureError reports a non-zero exit status for one extraction stage.
type StageFailureError struct {
	SourceID    string
	Stage       string
	ExitCode    int
	Description string
}

func (e *StageFailureError) Error() string {
	return fmt.Sprintf("%s failed for source %s with exit status %d: %s",
		e.Stage, e.SourceID, e.ExitCode, e.Description)
}

// LoadNotFoundError reports an empty load set for the data source.
type LoadNotFoundError struct {
	SourceID string
}

func (e *LoadNotFoundError) Error() string {
	return fmt.Sprintf("load not found for data source %s", e.SourceID)
}

// StreamLoadMissingError reports a selected stream absent from the load set.
type StreamLoadMissingError struct {
	SourceID   string
	StreamName string
}

func (e *StreamLoadMissingError) Error() string {
	return fmt.Sprintf("load for stream %s of source %s not found", e.StreamName, e.SourceID)
}

// LoadTimeoutError reports that some selected stream never produced a fresh
// load within the load timeout.
type LoadTimeoutError struct {
	SourceID string
	Timeout  time.Duration
}

func (e *LoadTimeoutError) Error() string {
	return fmt.Sprintf("load for source %s timed out after %s", e.SourceID, e.Timeout)
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
