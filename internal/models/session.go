package models

import (
	"time"

	"github.com/google/uuid"
)

// Prediction is one class probability reported by the client-side
// classifier for a single video frame.
type Prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// SampleFrame is the wire form of one frame's classifier output.
// FrameTS is the client's monotonic timestamp in milliseconds
// (performance.now() domain).
type SampleFrame struct {
	Predictions []Prediction `json:"predictions"`
	FrameTS     float64      `json:"frame_ts"`
}

// ClassDuration is the accumulated time for one pose class.
type ClassDuration struct {
	Label   string  `json:"label"`
	Seconds float64 `json:"seconds"`
}

// Snapshot is the live view of a tracking session for presenters.
// CurrentClass is empty when the latest frame did not clear the
// confidence threshold.
type Snapshot struct {
	State          string          `json:"state"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	CurrentClass   string          `json:"current_class,omitempty"`
	Durations      []ClassDuration `json:"durations"`
}

// Summary is the immutable end-of-session report. Durations are kept in
// class discovery order with seconds rounded to two decimals.
type Summary struct {
	TotalSeconds  float64         `json:"total_seconds"`
	Durations     []ClassDuration `json:"durations"`
	PosesDetected int             `json:"poses_detected"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       time.Time       `json:"ended_at"`
}

// HistoryEntry is one archived summary in the recent-history list.
type HistoryEntry struct {
	Summary Summary   `json:"summary"`
	SavedAt time.Time `json:"saved_at"`
}

// ArchivedSession is a summary persisted durably, with the S3 export URL
// once the worker has uploaded the CSV.
type ArchivedSession struct {
	ID            uuid.UUID       `json:"id"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       time.Time       `json:"ended_at"`
	TotalSeconds  float64         `json:"total_seconds"`
	PosesDetected int             `json:"poses_detected"`
	CSVUrl        *string         `json:"csv_url,omitempty"`
	Durations     []ClassDuration `json:"durations,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
