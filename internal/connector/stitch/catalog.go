package stitch

import (
	"context"
	"encoding/json"
	"fmt"
)

// =============================================================================
// READ ACCESSORS
// Thin typed wrappers over the Stitch Connect API. The poller builds entirely
// on these; none of them mutates remote state.
// =============================================================================

// GetDataSource retrieves metadata for one data source.
func (s *Stitch) GetDataSource(ctx context.Context, sourceID string) (*DataSource, error) {
	var source DataSource
	if err := s.request(ctx, "GET", fmt.Sprintf("sources/%s", sourceID), nil, &source); err != nil {
		return nil, err
	}
	return &source, nil
}

// ListSources lists all data sources for the authenticated account.
func (s *Stitch) ListSources(ctx context.Context) ([]DataSource, error) {
	var sources []DataSource
	if err := s.request(ctx, "GET", "sources", nil, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// ListStreams lists the streams of a data source. The API returns a bare
// array; it is converted to a map keyed by stream name.
func (s *Stitch) ListStreams(ctx context.Context, sourceID string) (map[string]Stream, error) {
	var streams []Stream
	endpoint := fmt.Sprintf("sources/%s/streams", sourceID)
	if err := s.request(ctx, "GET", endpoint, nil, &streams); err != nil {
		return nil, err
	}

	byName := make(map[string]Stream, len(streams))
	for _, stream := range streams {
		byName[stream.StreamName] = stream
	}
	return byName, nil
}

// streamSchemaResponse is the raw schema detail for one stream. The schema
// field is itself a JSON document in string form; metadata carries the
// per-property selection flags.
type streamSchemaResponse struct {
	Schema   string `json:"schema"`
	Metadata []struct {
		Breadcrumb []string `json:"breadcrumb"`
		Metadata   struct {
			Selected bool `json:"selected"`
		} `json:"metadata"`
	} `json:"metadata"`
}

// GetStreamSchema resolves the schema for one stream: the names of the
// selected properties, in the order the API reports them. A property is
// selected when its breadcrumb begins with "properties" and its metadata
// marks it selected.
func (s *Stitch) GetStreamSchema(ctx context.Context, sourceID, streamName string) (*StreamSchema, error) {
	var raw streamSchemaResponse
	endpoint := fmt.Sprintf("sources/%s/streams/%s", sourceID, streamName)
	if err := s.request(ctx, "GET", endpoint, nil, &raw); err != nil {
		return nil, err
	}

	declared := parseDeclaredProperties(raw.Schema)

	schema := &StreamSchema{StreamName: streamName, Properties: []string{}}
	for _, property := range raw.Metadata {
		if len(property.Breadcrumb) < 2 || property.Breadcrumb[0] != "properties" {
			continue
		}
		if !property.Metadata.Selected {
			continue
		}
		name := property.Breadcrumb[1]
		if declared != nil {
			if _, ok := declared[name]; !ok {
				s.logger.Warn("selected property missing from declared schema",
					"source", sourceID, "stream", streamName, "property", name)
			}
		}
		schema.Properties = append(schema.Properties, name)
	}
	return schema, nil
}

// parseDeclaredProperties decodes the nested schema string and returns the
// declared property set, or nil when the string does not parse.
func parseDeclaredProperties(schema string) map[string]json.RawMessage {
	if schema == "" {
		return nil
	}
	var decoded struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal([]byte(schema), &decoded); err != nil {
		return nil
	}
	return decoded.Properties
}

// ListAllRecentLoads fetches the recent loads for every stream in the
// account, rebuilt once per call into a two-level map: data source name to
// stream name to load record.
func (s *Stitch) ListAllRecentLoads(ctx context.Context) (map[string]map[string]LoadRecord, error) {
	var loads []LoadRecord
	endpoint := fmt.Sprintf("sources/%s/loads", s.config.AccountID)
	if err := s.request(ctx, "GET", endpoint, nil, &loads); err != nil {
		return nil, err
	}

	bySource := make(map[string]map[string]LoadRecord)
	for _, load := range loads {
		streams, ok := bySource[load.SourceName]
		if !ok {
			streams = make(map[string]LoadRecord)
			bySource[load.SourceName] = streams
		}
		streams[load.StreamName] = load
	}
	return bySource, nil
}

// ListRecentLoads fetches the recent loads for one data source, keyed by
// stream name. Loads are keyed by source name in the account-wide response.
func (s *Stitch) ListRecentLoads(ctx context.Context, sourceID string) (map[string]LoadRecord, error) {
	all, err := s.ListAllRecentLoads(ctx)
	if err != nil {
		return nil, err
	}
	return all[sourceID], nil
}

// ListExtractions fetches the latest extraction record of every data source
// in the account, keyed by source id.
func (s *Stitch) ListExtractions(ctx context.Context) (map[string]ExtractionRecord, error) {
	var extractions []ExtractionRecord
	endpoint := fmt.Sprintf("sources/%s/extractions", s.config.AccountID)
	if err := s.request(ctx, "GET", endpoint, nil, &extractions); err != nil {
		return nil, err
	}

	bySource := make(map[string]ExtractionRecord, len(extractions))
	for _, extraction := range extractions {
		bySource[extraction.SourceID] = extraction
	}
	return bySource, nil
}

// getExtraction fetches the latest extraction record for one data source.
func (s *Stitch) getExtraction(ctx context.Context, sourceID string) (*ExtractionRecord, bool, error) {
	extractions, err := s.ListExtractions(ctx)
	if err != nil {
		return nil, false, err
	}
	extraction, ok := extractions[sourceID]
	if !ok {
		return nil, false, nil
	}
	return &extraction, true, nil
}
