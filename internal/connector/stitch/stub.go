package stitch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// StubServer hosts an in-memory Stitch Connect API for tests (no network
// listeners). State is mutable so tests can stage the records each poll
// iteration observes; when a queue is set, one element is served per poll
// and the last element sticks.
type StubServer struct {
	token   string
	account string
	baseURL string

	mu              sync.Mutex
	syncResponses   map[string]startJobResponse
	extractions     []ExtractionRecord
	extractionQueue [][]ExtractionRecord
	streams         map[string][]Stream
	schemas         map[string]map[string]streamSchemaResponse
	loads           []LoadRecord
	loadQueue       [][]LoadRecord
	paginateSources bool

	extractionPolls int
	loadPolls       int
	syncCalls       int

	transport http.RoundTripper
}

// NewStubServer constructs a deterministic stub without binding to a port.
func NewStubServer(account string) *StubServer {
	s := &StubServer{
		token:         "stub-token",
		account:       account,
		baseURL:       "http://stitch.local/v4/",
		syncResponses: map[string]startJobResponse{},
		streams:       map[string][]Stream{},
		schemas:       map[string]map[string]streamSchemaResponse{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.transport = &stubRoundTripper{handler: mux}
	return s
}

// URL returns the stub base URL (no network listener is used).
func (s *StubServer) URL() string {
	return s.baseURL
}

// Token returns the bearer token the stub accepts.
func (s *StubServer) Token() string {
	return s.token
}

// Transport returns a RoundTripper that serves requests in-process.
func (s *StubServer) Transport() http.RoundTripper {
	return s.transport
}

// Config returns a connector config wired to the stub.
func (s *StubServer) Config() *Config {
	return &Config{
		APIKey:    s.token,
		AccountID: s.account,
		BaseURL:   s.baseURL,
		Transport: s.transport,
		RateLimit: 10000,
		RateBurst: 10000,
	}
}

// =============================================================================
// STATE STAGING
// =============================================================================

// SetSyncResponse stages the start-job response for a source.
func (s *StubServer) SetSyncResponse(sourceID, jobName, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncResponses[sourceID] = startJobResponse{JobName: jobName, Error: errMsg}
}

// SetExtractions stages the extraction list returned on every poll.
func (s *StubServer) SetExtractions(records ...ExtractionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractions = records
	s.extractionQueue = nil
}

// QueueExtractions stages one extraction list per poll; the last sticks.
func (s *StubServer) QueueExtractions(lists ...[]ExtractionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractionQueue = lists
}

// SetStreams stages the stream list of a source.
func (s *StubServer) SetStreams(sourceID string, streams ...Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[sourceID] = streams
}

// SetSchema stages the schema detail of one stream.
func (s *StubServer) SetSchema(sourceID, streamName, schemaJSON string, entries ...SchemaEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schemas[sourceID] == nil {
		s.schemas[sourceID] = map[string]streamSchemaResponse{}
	}
	detail := streamSchemaResponse{Schema: schemaJSON}
	for _, e := range entries {
		entry := struct {
			Breadcrumb []string `json:"breadcrumb"`
			Metadata   struct {
				Selected bool `json:"selected"`
			} `json:"metadata"`
		}{Breadcrumb: e.Breadcrumb}
		entry.Metadata.Selected = e.Selected
		detail.Metadata = append(detail.Metadata, entry)
	}
	s.schemas[sourceID][streamName] = detail
}

// SchemaEntry stages one metadata entry of a stream schema.
type SchemaEntry struct {
	Breadcrumb []string
	Selected   bool
}

// SetLoads stages the account-wide load list returned on every poll.
func (s *StubServer) SetLoads(loads ...LoadRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = loads
	s.loadQueue = nil
}

// QueueLoads stages one load list per poll; the last sticks.
func (s *StubServer) QueueLoads(lists ...[]LoadRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadQueue = lists
}

// PaginateSources makes the sources response carry a links.next marker.
func (s *StubServer) PaginateSources() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paginateSources = true
}

// ExtractionPolls returns how many extraction polls were served.
func (s *StubServer) ExtractionPolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extractionPolls
}

// LoadPolls returns how many load polls were served.
func (s *StubServer) LoadPolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadPolls
}

// SyncCalls returns how many start-job requests were served.
func (s *StubServer) SyncCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncCalls
}

// =============================================================================
// HANDLER
// =============================================================================

func (s *StubServer) handle(w http.ResponseWriter, r *http.Request) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth != "Bearer "+s.token {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v4")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case path == "sources" && r.Method == http.MethodGet:
		s.handleSources(w)
	case len(parts) == 3 && parts[0] == "sources" && parts[2] == "extractions":
		s.handleExtractions(w)
	case len(parts) == 3 && parts[0] == "sources" && parts[2] == "loads":
		s.handleLoads(w)
	case len(parts) == 3 && parts[0] == "sources" && parts[2] == "sync" && r.Method == http.MethodPost:
		s.handleSync(w, parts[1])
	case len(parts) == 3 && parts[0] == "sources" && parts[2] == "streams":
		writeJSON(w, s.streams[parts[1]]) // bare array, no envelope
	case len(parts) == 4 && parts[0] == "sources" && parts[2] == "streams":
		s.handleSchema(w, parts[1], parts[3])
	case len(parts) == 2 && parts[0] == "sources":
		s.handleSource(w, parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}
}

func (s *StubServer) handleSources(w http.ResponseWriter) {
	var sources []DataSource
	for id := range s.streams {
		sources = append(sources, DataSource{ID: id, Name: id, Type: "platform." + id})
	}
	body := map[string]any{"data": sources}
	if s.paginateSources {
		body["links"] = map[string]any{"next": map[string]any{"href": "/v4/sources?page=2"}}
	}
	writeJSON(w, body)
}

func (s *StubServer) handleSource(w http.ResponseWriter, sourceID string) {
	if _, ok := s.streams[sourceID]; !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
		return
	}
	writeJSON(w, map[string]any{
		"data": DataSource{ID: sourceID, Name: sourceID, Type: "platform." + sourceID},
	})
}

func (s *StubServer) handleExtractions(w http.ResponseWriter) {
	s.extractionPolls++
	records := s.extractions
	if len(s.extractionQueue) > 0 {
		records = s.extractionQueue[0]
		if len(s.extractionQueue) > 1 {
			s.extractionQueue = s.extractionQueue[1:]
		}
	}
	writeJSON(w, map[string]any{"data": records})
}

func (s *StubServer) handleLoads(w http.ResponseWriter) {
	s.loadPolls++
	loads := s.loads
	if len(s.loadQueue) > 0 {
		loads = s.loadQueue[0]
		if len(s.loadQueue) > 1 {
			s.loadQueue = s.loadQueue[1:]
		}
	}
	writeJSON(w, map[string]any{"data": loads})
}

func (s *StubServer) handleSync(w http.ResponseWriter, sourceID string) {
	s.syncCalls++
	response, ok := s.syncResponses[sourceID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"error":"unknown source %s"}`, sourceID)))
		return
	}
	writeJSON(w, response)
}

func (s *StubServer) handleSchema(w http.ResponseWriter, sourceID, streamName string) {
	detail, ok := s.schemas[sourceID][streamName]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
		return
	}
	writeJSON(w, detail)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if payload == nil {
		_, _ = w.Write([]byte("[]"))
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

type stubRoundTripper struct {
	handler http.Handler
}

func (rt *stubRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rr := httptest.NewRecorder()
	rt.handler.ServeHTTP(rr, req)
	res := rr.Result()
	res.Request = req
	return res, nil
}
