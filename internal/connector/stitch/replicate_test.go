package stitch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStubConnector(t *testing.T, stub *StubServer) *Stitch {
	t.Helper()
	connector, err := New(stub.Config())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return connector
}

func fastPoll() *PollOptions {
	return &PollOptions{PollInterval: 5 * time.Millisecond}
}

func ts(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

func tsp(t time.Time) *Timestamp {
	v := ts(t)
	return &v
}

func reported(code int) ExitStatus {
	return ExitStatus{Reported: true, Code: code}
}

func selectedStream(name string) Stream {
	return Stream{StreamName: name, Metadata: StreamMetadata{Selected: true}}
}

func freshLoad(source, stream string) LoadRecord {
	return LoadRecord{
		SourceName:        source,
		StreamName:        stream,
		LastBatchLoadedAt: tsp(time.Now().Add(24 * time.Hour)),
	}
}

func staleLoad(source, stream string) LoadRecord {
	return LoadRecord{
		SourceName:        source,
		StreamName:        stream,
		LastBatchLoadedAt: tsp(time.Now().Add(-24 * time.Hour)),
	}
}

// stageBingJob stages a complete happy-path extraction for source "bing".
func stageBingJob(stub *StubServer) {
	stub.SetSyncResponse("bing", "baz", "")
	stub.SetExtractions(ExtractionRecord{
		SourceID:            "bing",
		JobName:             "baz",
		StartTime:           ts(time.Now().Add(-time.Minute)),
		DiscoveryExitStatus: reported(0),
		TapExitStatus:       reported(0),
		TargetExitStatus:    reported(0),
	})
}

// =============================================================================
// END-TO-END
// =============================================================================

func TestStartAndPoll_EndToEnd(t *testing.T) {
	stub := NewStubServer("77")
	stageBingJob(stub)
	stub.SetStreams("bing",
		selectedStream("qux"),
		Stream{StreamName: "skipped", Metadata: StreamMetadata{Selected: false}},
	)
	stub.SetLoads(freshLoad("bing", "qux"))
	stub.SetSchema("bing", "qux",
		`{"type":"object","properties":{"author":{"type":"string"},"description":{"type":"string"}}}`,
		SchemaEntry{Breadcrumb: []string{"properties", "author"}, Selected: true},
		SchemaEntry{Breadcrumb: []string{"properties", "description"}, Selected: true},
		SchemaEntry{Breadcrumb: []string{"properties", "internal_id"}, Selected: false},
		SchemaEntry{Breadcrumb: []string{}, Selected: true},
	)
	// No schema staged for "skipped": resolving it would 404 and fail the
	// call, so this also checks that unselected streams are left alone.

	connector := newStubConnector(t, stub)
	result, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", fastPoll())
	if err != nil {
		t.Fatalf("StartReplicationJobAndPoll failed: %v", err)
	}

	if result.Extraction.JobName != "baz" {
		t.Errorf("extraction job = %q, want baz", result.Extraction.JobName)
	}

	if len(result.Schemas) != 1 {
		t.Fatalf("schemas = %v, want exactly one entry", result.Schemas)
	}
	schema, ok := result.Schemas["qux"]
	if !ok {
		t.Fatal("schema for qux missing")
	}
	want := []string{"author", "description"}
	if len(schema.Properties) != len(want) {
		t.Fatalf("properties = %v, want %v", schema.Properties, want)
	}
	for i := range want {
		if schema.Properties[i] != want[i] {
			t.Errorf("properties[%d] = %q, want %q", i, schema.Properties[i], want[i])
		}
	}

	if len(result.Loads) != 1 {
		t.Errorf("loads = %v, want exactly one entry", result.Loads)
	}
	if _, ok := result.Loads["qux"]; !ok {
		t.Error("load for qux missing")
	}
}

// =============================================================================
// EXTRACTION PHASE
// =============================================================================

func TestPollExtraction_MatchesByJobNameDespiteOldStartTime(t *testing.T) {
	stub := NewStubServer("77")
	stub.SetSyncResponse("bing", "baz", "")
	// Start time well before the call; the name match alone terminates.
	stub.SetExtractions(ExtractionRecord{
		SourceID:            "bing",
		JobName:             "baz",
		StartTime:           ts(time.Now().Add(-48 * time.Hour)),
		DiscoveryExitStatus: reported(0),
		TapExitStatus:       reported(0),
		TargetExitStatus:    reported(0),
	})
	stub.SetStreams("bing", selectedStream("qux"))
	stub.SetLoads(freshLoad("bing", "qux"))
	stub.SetSchema("bing", "qux", "", SchemaEntry{Breadcrumb: []string{"properties", "id"}, Selected: true})

	connector := newStubConnector(t, stub)
	if _, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", fastPoll()); err != nil {
		t.Fatalf("StartReplicationJobAndPoll failed: %v", err)
	}
	if polls := stub.ExtractionPolls(); polls != 1 {
		t.Errorf("extraction polls = %d, want 1", polls)
	}
}

func TestPollExtraction_NewerJobTieBreak(t *testing.T) {
	stub := NewStubServer("77")
	stub.SetSyncResponse("bing", "baz", "")
	// A different job overtook ours: name differs but start time is after
	// the call's start marker. Recency wins over identity.
	stub.SetExtractions(ExtractionRecord{
		SourceID:            "bing",
		JobName:             "overtaker",
		StartTime:           ts(time.Now().Add(time.Hour)),
		DiscoveryExitStatus: reported(0),
		TapExitStatus:       reported(0),
		TargetExitStatus:    reported(0),
	})
	stub.SetStreams("bing", selectedStream("qux"))
	stub.SetLoads(freshLoad("bing", "qux"))
	stub.SetSchema("bing", "qux", "", SchemaEntry{Breadcrumb: []string{"properties", "id"}, Selected: true})

	connector := newStubConnector(t, stub)
	result, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", fastPoll())
	if err != nil {
		t.Fatalf("StartReplicationJobAndPoll failed: %v", err)
	}
	if result.Extraction.JobName != "overtaker" {
		t.Errorf("extraction job = %q, want overtaker", result.Extraction.JobName)
	}
}

func TestPollExtraction_StaleRecordKeepsPolling(t *testing.T) {
	stub := NewStubServer("77")
	stub.SetSyncResponse("bing", "baz", "")
	stale := ExtractionRecord{
		SourceID:  "bing",
		JobName:   "previous-run",
		StartTime: ts(time.Now().Add(-time.Hour)),
	}
	confirmed := ExtractionRecord{
		SourceID:            "bing",
		JobName:             "baz",
		StartTime:           ts(time.Now()),
		DiscoveryExitStatus: reported(0),
		TapExitStatus:       reported(0),
		TargetExitStatus:    reported(0),
	}
	stub.QueueExtractions(
		[]ExtractionRecord{stale},
		[]ExtractionRecord{stale},
		[]ExtractionRecord{confirmed},
	)
	stub.SetStreams("bing", selectedStream("qux"))
	stub.SetLoads(freshLoad("bing", "qux"))
	stub.SetSchema("bing", "qux", "", SchemaEntry{Breadcrumb: []string{"properties", "id"}, Selected: true})

	connector := newStubConnector(t, stub)
	if _, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", fastPoll()); err != nil {
		t.Fatalf("StartReplicationJobAndPoll failed: %v", err)
	}
	if polls := stub.ExtractionPolls(); polls != 3 {
		t.Errorf("extraction polls = %d, want 3", polls)
	}
}

func TestPollExtraction_NotFound(t *testing.T) {
	stub := NewStubServer("77")
	stub.SetSyncResponse("bing", "baz", "")
	stub.SetExtractions() // no history at all

	connector := newStubConnector(t, stub)
	_, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", fastPoll())

	var notFound *ExtractionNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ExtractionNotFoundError, got %v", err)
	}
	if notFound.SourceID != "bing" {
		t.Errorf("SourceID = %q", notFound.SourceID)
	}
}

func TestPollExtraction_Timeout(t *testing.T) {
	stub := NewStubServer("77")
	stub.SetSyncResponse("bing", "baz", "")
	stub.SetExtractions(ExtractionRecord{
		SourceID:  "bing",
		JobName:   "previous-run",
		StartTime: ts(time.Now().Add(-time.Hour)),
	})

	connector := newStubConnector(t, stub)
	_, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", &PollOptions{
		PollInterval:      5 * time.Millisecond,
		ExtractionTimeout: 40 * time.Millisecond,
	})

	var timeout *ExtractionTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ExtractionTimeoutError, got %v", err)
	}
	if timeout.JobName != "baz" {
		t.Errorf("JobName = %q", timeout.JobName)
	}
}

func TestStartReplicationJob_Rejected(t *testing.T) {
	stub := NewStubServer("77")
	stub.SetSyncResponse("bing", "", "source is paused")

	connector := newStubConnector(t, stub)
	_, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", fastPoll())

	var rejected *JobStartError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected JobStartError, got %v", err)
	}
	if rejected.Message != "source is paused" {
		t.Errorf("Message = %q", rejected.Message)
	}
	if polls := stub.ExtractionPolls(); polls != 0 {
		t.Errorf("extraction polls = %d after rejected start", polls)
	}
}

// =============================================================================
// STAGE CHECK
// =============================================================================

func TestCheckStages(t *testing.T) {
	tests := []struct {
		name      string
		record    ExtractionRecord
		wantStage string // "" means no failure
	}{
		{
			name: "all stages succeeded",
			record: ExtractionRecord{
				DiscoveryExitStatus: reported(0),
				TapExitStatus:       reported(0),
				TargetExitStatus:    reported(0),
			},
		},
		{
			name:   "nothing reported yet",
			record: ExtractionRecord{},
		},
		{
			name: "tap failed, target unset",
			record: ExtractionRecord{
				DiscoveryExitStatus: reported(0),
				TapExitStatus:       reported(1),
				TapDescription:      "tap blew up",
			},
			wantStage: "tap",
		},
		{
			name: "tap failure masks later target failure",
			record: ExtractionRecord{
				DiscoveryExitStatus: reported(0),
				TapExitStatus:       reported(1),
				TargetExitStatus:    reported(2),
			},
			wantStage: "tap",
		},
		{
			name: "unreported discovery masks later statuses",
			record: ExtractionRecord{
				TapExitStatus:    reported(1),
				TargetExitStatus: reported(2),
			},
		},
		{
			name: "target failed",
			record: ExtractionRecord{
				DiscoveryExitStatus: reported(0),
				TapExitStatus:       reported(0),
				TargetExitStatus:    reported(3),
			},
			wantStage: "target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkStages("bing", &tt.record)
			if tt.wantStage == "" {
				if err != nil {
					t.Fatalf("unexpected failure: %v", err)
				}
				return
			}

			var failure *StageFailureError
			if !errors.As(err, &failure) {
				t.Fatalf("expected StageFailureError, got %v", err)
			}
			if failure.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", failure.Stage, tt.wantStage)
			}
		})
	}
}

func TestStartAndPoll_StageFailureSurfacesDescription(t *testing.T) {
	stub := NewStubServer("77")
	stub.SetSyncResponse("bing", "baz", "")
	stub.SetExtractions(ExtractionRecord{
		SourceID:            "bing",
		JobName:             "baz",
		StartTime:           ts(time.Now()),
		DiscoveryExitStatus: reported(0),
		TapExitStatus:       reported(1),
		TapDescription:      "discovery succeeded but tap crashed",
	})

	connector := newStubConnector(t, stub)
	_, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", fastPoll())

	var failure *StageFailureError
	if !errors.As(err, &failure) {
		t.Fatalf("expected StageFailureError, got %v", err)
	}
	if failure.ExitCode != 1 || failure.Description == "" {
		t.Errorf("failure = %+v", failure)
	}
}

// =============================================================================
// LOAD PHASE
// =============================================================================

func TestPollLoads_ErrorStateWarnsButCompletes(t *testing.T) {
	stub := NewStubServer("77")
	stageBingJob(stub)
	stub.SetStreams("bing", selectedStream("qux"), selectedStream("corge"))

	broken := LoadRecord{
		SourceName: "bing",
		StreamName: "corge",
		ErrorState: &ErrorState{Message: "table lock timeout"},
	}
	stub.SetLoads(freshLoad("bing", "qux"), broken)
	stub.SetSchema("bing", "qux", "", SchemaEntry{Breadcrumb: []string{"properties", "id"}, Selected: true})
	stub.SetSchema("bing", "corge", "", SchemaEntry{Breadcrumb: []string{"properties", "id"}, Selected: true})

	var logs bytes.Buffer
	cfg := stub.Config()
	cfg.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	connector, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", fastPoll())
	if err != nil {
		t.Fatalf("call should tolerate a per-stream load error, got %v", err)
	}

	if !strings.Contains(logs.String(), "table lock timeout") {
		t.Error("expected a warning carrying the load error message")
	}
	if len(result.Loads) != 2 {
		t.Errorf("loads = %v, want both streams", result.Loads)
	}
}

func TestPollLoads_NotFound(t *testing.T) {
	stub := NewStubServer("77")
	stageBingJob(stub)
	stub.SetStreams("bing", selectedStream("qux"))
	stub.SetLoads() // nothing loaded anywhere

	connector := newStubConnector(t, stub)
	_, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", fastPoll())

	var notFound *LoadNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected LoadNotFoundError, got %v", err)
	}
}

func TestPollLoads_SelectedStreamMissing(t *testing.T) {
	stub := NewStubServer("77")
	stageBingJob(stub)
	stub.SetStreams("bing", selectedStream("qux"), selectedStream("corge"))
	stub.SetLoads(freshLoad("bing", "qux")) // corge never loaded

	connector := newStubConnector(t, stub)
	_, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", fastPoll())

	var missing *StreamLoadMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected StreamLoadMissingError, got %v", err)
	}
	if missing.StreamName != "corge" {
		t.Errorf("StreamName = %q, want corge", missing.StreamName)
	}
}

func TestPollLoads_Timeout(t *testing.T) {
	stub := NewStubServer("77")
	stageBingJob(stub)
	stub.SetStreams("bing", selectedStream("qux"))
	stub.SetLoads(staleLoad("bing", "qux")) // never freshens

	connector := newStubConnector(t, stub)
	start := time.Now()
	_, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", &PollOptions{
		PollInterval: 5 * time.Millisecond,
		LoadTimeout:  40 * time.Millisecond,
	})
	elapsed := time.Since(start)

	var timeout *LoadTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected LoadTimeoutError, got %v", err)
	}
	// Detection slack is bounded by one poll interval.
	if elapsed > 200*time.Millisecond {
		t.Errorf("timed out after %v, want roughly the 40ms budget", elapsed)
	}
}

func TestPollLoads_FreshensAfterPolling(t *testing.T) {
	stub := NewStubServer("77")
	stageBingJob(stub)
	stub.SetStreams("bing", selectedStream("qux"))
	stub.QueueLoads(
		[]LoadRecord{staleLoad("bing", "qux")},
		[]LoadRecord{staleLoad("bing", "qux")},
		[]LoadRecord{freshLoad("bing", "qux")},
	)
	stub.SetSchema("bing", "qux", "", SchemaEntry{Breadcrumb: []string{"properties", "id"}, Selected: true})

	connector := newStubConnector(t, stub)
	if _, err := connector.StartReplicationJobAndPoll(context.Background(), "bing", fastPoll()); err != nil {
		t.Fatalf("StartReplicationJobAndPoll failed: %v", err)
	}
	if polls := stub.LoadPolls(); polls != 3 {
		t.Errorf("load polls = %d, want 3", polls)
	}
}

func TestStartAndPoll_ContextCancel(t *testing.T) {
	stub := NewStubServer("77")
	stub.SetSyncResponse("bing", "baz", "")
	stub.SetExtractions(ExtractionRecord{
		SourceID:  "bing",
		JobName:   "previous-run",
		StartTime: ts(time.Now().Add(-time.Hour)),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	connector := newStubConnector(t, stub)
	_, err := connector.StartReplicationJobAndPoll(ctx, "bing", fastPoll())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}
