// Package engine implements the duration accumulation state machine: it
// converts a stream of per-frame classifier predictions into per-class
// accumulated seconds, with pause/resume and threshold gating.
package engine

import (
	"math"
	"time"

	"github.com/posetrack/backend/internal/models"
)

// State is the engine lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

// Engine accumulates wall-clock time per pose class from a sequence of
// frame samples. All mutations happen on the caller's single dispatch
// sequence; the engine itself does no locking and never blocks.
//
// Control operations take the current wall-clock time; frame samples
// carry their own monotonic millisecond timestamps from the client.
type Engine struct {
	state State

	startTime   time.Time
	pauseStart  time.Time
	totalPaused time.Duration

	lastFrameMs  float64
	hasLastFrame bool

	// discovery order of class labels; durations in seconds
	order     []string
	durations map[string]float64

	currentClass string
}

// New returns an engine in the Idle state.
func New() *Engine {
	return &Engine{
		state:     StateIdle,
		durations: make(map[string]float64),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// CurrentClass returns the class accumulated on the latest frame, or ""
// when the latest frame was below threshold or no frame has arrived.
func (e *Engine) CurrentClass() string { return e.currentClass }

// Start transitions Idle -> Running, recording the session start and
// zeroing an accumulator for every known class.
func (e *Engine) Start(classes []string, now time.Time) error {
	if e.state != StateIdle {
		return &StateError{Op: "start", State: e.state}
	}
	e.state = StateRunning
	e.startTime = now
	e.totalPaused = 0
	e.hasLastFrame = false
	e.currentClass = ""
	e.order = e.order[:0]
	e.durations = make(map[string]float64, len(classes))
	for _, c := range classes {
		if _, ok := e.durations[c]; ok {
			continue
		}
		e.order = append(e.order, c)
		e.durations[c] = 0
	}
	return nil
}

// Pause transitions Running -> Paused. A no-op error in any other state.
func (e *Engine) Pause(now time.Time) error {
	if e.state != StateRunning {
		return &StateError{Op: "pause", State: e.state}
	}
	e.state = StatePaused
	e.pauseStart = now
	return nil
}

// Resume transitions Paused -> Running and folds the pause interval into
// the paused-time accumulator. The last frame timestamp is cleared so
// the first frame after a resume contributes a zero delta instead of the
// stale gap across the pause boundary.
func (e *Engine) Resume(now time.Time) error {
	if e.state != StatePaused {
		return &StateError{Op: "resume", State: e.state}
	}
	e.state = StateRunning
	e.totalPaused += now.Sub(e.pauseStart)
	e.hasLastFrame = false
	return nil
}

// Ingest processes one frame of classifier output. The frame timestamp
// is remembered in every state so a later resume cannot produce a
// spurious large delta, but time is attributed only while Running: the
// top-confidence prediction (ties broken by list order) receives the
// delta since the previous frame iff it clears the threshold fraction.
func (e *Engine) Ingest(preds []models.Prediction, frameMs float64, threshold float64) error {
	if len(preds) == 0 {
		return &ValidationError{Reason: "empty prediction list"}
	}
	if threshold < 0 || threshold > 1 {
		return &ValidationError{Reason: "threshold out of range"}
	}
	top := preds[0]
	for _, p := range preds {
		if p.Class == "" {
			return &ValidationError{Reason: "empty class name"}
		}
		if p.Confidence < 0 || p.Confidence > 1 || math.IsNaN(p.Confidence) {
			return &ValidationError{Reason: "confidence out of range"}
		}
		if p.Confidence > top.Confidence {
			top = p
		}
	}

	delta := 0.0
	if e.state == StateRunning && e.hasLastFrame {
		delta = math.Max(0, frameMs-e.lastFrameMs) / 1000
	}
	e.lastFrameMs = frameMs
	e.hasLastFrame = true

	if e.state != StateRunning {
		return nil
	}

	if top.Confidence >= threshold {
		if _, ok := e.durations[top.Class]; !ok {
			// class not pre-registered at start; track it from here
			e.order = append(e.order, top.Class)
		}
		e.durations[top.Class] += delta
		e.currentClass = top.Class
	} else {
		e.currentClass = ""
	}
	return nil
}

// ElapsedSeconds returns active (unpaused) session time in seconds,
// clamped at zero against clock skew. Safe to call in any state.
func (e *Engine) ElapsedSeconds(now time.Time) float64 {
	if e.state == StateIdle {
		return 0
	}
	elapsed := now.Sub(e.startTime) - e.totalPaused
	if e.state == StatePaused {
		elapsed -= now.Sub(e.pauseStart)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed.Seconds()
}

// Snapshot returns an immutable copy of the accumulators and elapsed
// time, valid in any state.
func (e *Engine) Snapshot(now time.Time) models.Snapshot {
	durations := make([]models.ClassDuration, 0, len(e.order))
	for _, c := range e.order {
		durations = append(durations, models.ClassDuration{Label: c, Seconds: e.durations[c]})
	}
	return models.Snapshot{
		State:          string(e.state),
		ElapsedSeconds: e.ElapsedSeconds(now),
		CurrentClass:   e.currentClass,
		Durations:      durations,
	}
}

// Finalize closes the session from Running or Paused, producing the
// end-of-session summary and transitioning to Ended. Per-class seconds
// are rounded to two decimals for reporting.
func (e *Engine) Finalize(now time.Time) (*models.Summary, error) {
	if e.state != StateRunning && e.state != StatePaused {
		return nil, &StateError{Op: "end", State: e.state}
	}
	total := e.ElapsedSeconds(now)
	if e.state == StatePaused {
		e.totalPaused += now.Sub(e.pauseStart)
	}
	e.state = StateEnded

	durations := make([]models.ClassDuration, 0, len(e.order))
	detected := 0
	for _, c := range e.order {
		if e.durations[c] > 0 {
			detected++
		}
		durations = append(durations, models.ClassDuration{Label: c, Seconds: round2(e.durations[c])})
	}
	return &models.Summary{
		TotalSeconds:  round2(total),
		Durations:     durations,
		PosesDetected: detected,
		StartedAt:     e.startTime,
		EndedAt:       now,
	}, nil
}

// Reset clears all state and returns to Idle. Valid in any state.
func (e *Engine) Reset() {
	e.state = StateIdle
	e.startTime = time.Time{}
	e.pauseStart = time.Time{}
	e.totalPaused = 0
	e.hasLastFrame = false
	e.currentClass = ""
	e.order = nil
	e.durations = make(map[string]float64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
