// Package activities provides Temporal activity implementations for Stitch
// replication jobs.
package activities

import (
	"github.com/nucleus/stitch-core/internal/connector/stitch"
)

// ReplicationJobRequest is the activity input for one replication call.
type ReplicationJobRequest struct {
	RunID    string `json:"runId"`
	SourceID string `json:"sourceId"`

	// Overrides; zero values fall back to the worker's configured defaults.
	PollIntervalSecs      int `json:"pollIntervalSecs,omitempty"`
	ExtractionTimeoutSecs int `json:"extractionTimeoutSecs,omitempty"`
	LoadTimeoutSecs       int `json:"loadTimeoutSecs,omitempty"`
}

// ReplicationJobResult is the activity output.
type ReplicationJobResult struct {
	RunID       string `json:"runId"`
	SourceID    string `json:"sourceId"`
	JobName     string `json:"jobName"`
	StreamCount int    `json:"streamCount"`
	CompletedAt string `json:"completedAt"`

	Loads   map[string]stitch.LoadRecord   `json:"loads,omitempty"`
	Schemas map[string]stitch.StreamSchema `json:"schemas,omitempty"`
}
