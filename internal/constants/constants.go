// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Upload constants
const (
	// MaxUploadSize is the maximum multipart body accepted for a face image (10MB)
	MaxUploadSize = 10 << 20

	// UploadField is the multipart field carrying the image
	UploadField = "file"

	// MaxJSONBodySize caps JSON bodies carrying a vector (1MB)
	MaxJSONBodySize = 1 << 20
)

// HTTP server constants
const (
	// RequestTimeout bounds a single API request
	RequestTimeout = 30 * time.Second

	// HealthTimeout bounds the storage readiness check of /health
	HealthTimeout = 2 * time.Second

	// ShutdownTimeout is how long serve waits for in-flight requests on exit
	ShutdownTimeout = 10 * time.Second
)

// Import constants
const (
	// DefaultImportConcurrency is the default number of parallel enrollment workers
	DefaultImportConcurrency = 4
)
