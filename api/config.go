// Package api provides the read-only HTTP API for inspecting consolidated
// memories, their revision histories, and job outcomes. All writes flow
// through the queue; the API never mutates state.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string
}
