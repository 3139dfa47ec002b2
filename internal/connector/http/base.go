package http

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// BASE HTTP CONNECTOR
// Provides common HTTP functionality for API connectors.
// =============================================================================

// Base provides common HTTP connector functionality.
// Embed this in concrete connectors like Stitch.
type Base struct {
	// Client is the HTTP client for making requests.
	Client *Client

	// ConnectorID is the unique identifier for this connector.
	ConnectorID string

	// ConnectorName is the display name.
	ConnectorName string

	// Vendor is the vendor name (e.g., "Talend").
	Vendor string

	// Version is the detected API version.
	Version string
}

// NewBase creates a new HTTP base with the given configuration.
func NewBase(id, name, vendor string, config *ClientConfig) *Base {
	return &Base{
		Client:        NewClient(config),
		ConnectorID:   id,
		ConnectorName: name,
		Vendor:        vendor,
	}
}

// ID returns the connector identifier.
func (b *Base) ID() string {
	return b.ConnectorID
}

// Close closes the HTTP client.
func (b *Base) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// =============================================================================
// HELPER METHODS
// =============================================================================

// ValidationResult reports the outcome of a connection probe.
type ValidationResult struct {
	Valid   bool
	Message string
}

// ValidateConfig tests the connection by making a probe request.
func (b *Base) ValidateConfig(ctx context.Context, probePath string) (*ValidationResult, error) {
	resp, err := b.Client.Get(ctx, probePath, nil)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return &ValidationResult{
				Valid:   false,
				Message: fmt.Sprintf("Connection failed: HTTP %d", httpErr.StatusCode),
			}, nil
		}
		return nil, err
	}

	return &ValidationResult{
		Valid:   resp.IsSuccess(),
		Message: "Connection successful",
	}, nil
}

// FetchJSON fetches a JSON response and unmarshals it.
func (b *Base) FetchJSON(ctx context.Context, path string, target any) error {
	resp, err := b.Client.Get(ctx, path, nil)
	if err != nil {
		return err
	}
	return resp.JSON(target)
}
