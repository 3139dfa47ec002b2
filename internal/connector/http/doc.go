// Package http provides a generic HTTP base connector for REST API sources.
// This serves as the foundation for the Stitch connector.
//
// Structure:
//
//	client.go - HTTP client with rate limiting and fixed-delay retry
//	auth.go   - Authentication strategies (Basic, Bearer, API key)
//	base.go   - Shared connector identity and fetch helpers
package http
