package stitch

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeFormat is the wire format used by the Stitch API for every timestamp
// (UTC, second precision).
const TimeFormat = "2006-01-02T15:04:05Z"

// =============================================================================
// TIMESTAMP
// =============================================================================

// Timestamp wraps time.Time with the Stitch wire format. Comparisons are made
// on instants, never on the raw strings.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON parses the Stitch timestamp format.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(TimeFormat, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON emits the Stitch timestamp format.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(TimeFormat))
}

// =============================================================================
// EXIT STATUS
// =============================================================================

// ExitStatus is the tri-state outcome of one extraction stage: not yet
// reported, succeeded (code 0), or failed with a non-zero code. The zero
// value means "not yet reported"; a plain integer would conflate that with
// success.
type ExitStatus struct {
	Reported bool
	Code     int
}

// Succeeded reports whether the stage finished with exit code 0.
func (s ExitStatus) Succeeded() bool {
	return s.Reported && s.Code == 0
}

// Failed reports whether the stage finished with a non-zero exit code.
func (s ExitStatus) Failed() bool {
	return s.Reported && s.Code != 0
}

// UnmarshalJSON treats JSON null as "not yet reported".
func (s *ExitStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ExitStatus{}
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	*s = ExitStatus{Reported: true, Code: code}
	return nil
}

// MarshalJSON emits null for an unreported stage.
func (s ExitStatus) MarshalJSON() ([]byte, error) {
	if !s.Reported {
		return []byte("null"), nil
	}
	return json.Marshal(s.Code)
}

// =============================================================================
// API RESPONSE TYPES
// =============================================================================

// DataSource is the metadata for one configured connector instance.
type DataSource struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name,omitempty"`
	Type        string     `json:"type,omitempty"`
	Paused      bool       `json:"paused,omitempty"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
}

// ExtractionRecord is the latest known extraction status for one data source.
// It is owned by the remote system; the poller holds a read-only snapshot per
// iteration.
type ExtractionRecord struct {
	SourceID  string    `json:"source_id"`
	JobName   string    `json:"job_name"`
	StartTime Timestamp `json:"start_time"`

	DiscoveryExitStatus  ExitStatus `json:"discovery_exit_status"`
	DiscoveryDescription string     `json:"discovery_description,omitempty"`
	TapExitStatus        ExitStatus `json:"tap_exit_status"`
	TapDescription       string     `json:"tap_description,omitempty"`
	TargetExitStatus     ExitStatus `json:"target_exit_status"`
	TargetDescription    string     `json:"target_description,omitempty"`
}

// stages returns the stage statuses in completion order. Later stages are
// meaningless while an earlier one is unreported.
func (r *ExtractionRecord) stages() []stageStatus {
	return []stageStatus{
		{"discovery", r.DiscoveryExitStatus, r.DiscoveryDescription},
		{"tap", r.TapExitStatus, r.TapDescription},
		{"target", r.TargetExitStatus, r.TargetDescription},
	}
}

type stageStatus struct {
	name        string
	status      ExitStatus
	description string
}

// Stream is one replicated table/collection within a data source.
type Stream struct {
	StreamID   string         `json:"stream_id,omitempty"`
	StreamName string         `json:"stream_name"`
	TableName  string         `json:"table_name,omitempty"`
	Metadata   StreamMetadata `json:"metadata"`
}

// StreamMetadata carries the per-stream selection flag. Only selected streams
// participate in load-completion checks.
type StreamMetadata struct {
	Selected bool `json:"selected"`
}

// StreamSchema is the resolved schema for one stream: the selected property
// names in the order the API reported them.
type StreamSchema struct {
	StreamName string   `json:"stream_name"`
	Properties []string `json:"properties"`
}

// ErrorState describes a failed load for one stream.
type ErrorState struct {
	Message          string     `json:"message"`
	NotificationSent bool       `json:"notification_sent,omitempty"`
	RaisedAt         *Timestamp `json:"raised_at,omitempty"`
}

// LoadRecord is the per-stream load status. A load disambiguates itself from
// a stale prior run only through LastBatchLoadedAt; there is no job identifier
// shared with the extraction phase.
type LoadRecord struct {
	SourceName        string      `json:"source_name"`
	StreamName        string      `json:"stream_name"`
	LastBatchLoadedAt *Timestamp  `json:"last_batch_loaded_at"`
	ErrorState        *ErrorState `json:"error_state"`
}

// Fresh reports whether the load postdates the given phase start. Only a
// strictly later batch counts; equal timestamps may belong to a prior run.
func (l *LoadRecord) Fresh(since time.Time) bool {
	return l.LastBatchLoadedAt != nil && l.LastBatchLoadedAt.After(since)
}

// =============================================================================
// RESULT
// =============================================================================

// ReplicationResult is the assembled outcome of one replication call. Loads
// and Schemas are keyed by stream name and restricted to the streams selected
// at call time.
type ReplicationResult struct {
	Extraction ExtractionRecord        `json:"extraction"`
	Loads      map[string]LoadRecord   `json:"loads"`
	Schemas    map[string]StreamSchema `json:"schemas"`
}
