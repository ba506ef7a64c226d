// Package api provides the HTTP API server for the brainmem engine:
// ingestion, context retrieval, memory-aware tool execution, and
// housekeeping endpoints.
package api

import "time"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// WorkingMemorySize is the default working tier size for context
	// retrieval. Requests may override it per call. Zero means the
	// engine default.
	WorkingMemorySize int

	// CacheTTL is how long assembled contexts stay cached. Zero means
	// the cache default.
	CacheTTL time.Duration
}
