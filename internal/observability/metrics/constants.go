// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Status label values
const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusDenied     = "denied"
	StatusBusy       = "busy"
	StatusSuperseded = "superseded"
	StatusSkipped    = "skipped"
)

// Stream label values for frame metrics
const (
	StreamPreview  = "preview"
	StreamAnalysis = "analysis"
	StreamRecorder = "recorder"
)

// Drop reasons for frame metrics
const (
	// DropSuperseded means a newer frame replaced an unprocessed one
	DropSuperseded = "superseded"
	// DropNoConsumer means no analyzer or sink was attached
	DropNoConsumer = "no_consumer"
	// DropClosed means the stream was torn down
	DropClosed = "closed"
	// DropStalled means the device skipped a frame because too many were unreleased
	DropStalled = "stalled"
)

// Recording lifecycle label values
const (
	RecordingStarted   = "started"
	RecordingFinalized = "finalized"
	RecordingFailed    = "failed"
	RecordingDenied    = "denied"
	RecordingBusy      = "busy"
)

// ShutdownTimeout bounds the graceful shutdown of the metrics HTTP server.
const ShutdownTimeout = 5 * time.Second
