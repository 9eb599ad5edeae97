package sessions

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/posetrack/backend/internal/engine"
	"github.com/posetrack/backend/internal/models"
)

// Tracker owns one session's engine and serializes every command onto
// it, so the engine itself stays single-threaded.
type Tracker struct {
	ID        uuid.UUID
	mu        sync.Mutex
	eng       *engine.Engine
	threshold float64 // fraction in [0,1]
	now       func() time.Time
	classes   []string
	summary   *models.Summary
}

// Threshold returns the confidence threshold as a fraction.
func (t *Tracker) Threshold() float64 { return t.threshold }

// Start begins the tracking run.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.Start(t.classes, t.now())
}

// Pause suspends accumulation.
func (t *Tracker) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.Pause(t.now())
}

// Resume continues accumulation after a pause.
func (t *Tracker) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.Resume(t.now())
}

// Reset returns the tracker to Idle and clears any finished summary.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eng.Reset()
	t.summary = nil
}

// Ingest feeds one classifier frame and returns the resulting snapshot.
func (t *Tracker) Ingest(frame models.SampleFrame) (models.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.eng.Ingest(frame.Predictions, frame.FrameTS, t.threshold)
	return t.eng.Snapshot(t.now()), err
}

// Snapshot returns the live view of the session.
func (t *Tracker) Snapshot() models.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.Snapshot(t.now())
}

// End finalizes the session and keeps the summary for later export.
func (t *Tracker) End() (*models.Summary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sum, err := t.eng.Finalize(t.now())
	if err != nil {
		return nil, err
	}
	t.summary = sum
	return sum, nil
}

// Summary returns the finished summary, or nil while the session is live.
func (t *Tracker) Summary() *models.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary
}

// ExportSummary returns the finished summary when the session has ended,
// or a summary built from the live snapshot otherwise.
func (t *Tracker) ExportSummary() *models.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.summary != nil {
		return t.summary
	}
	snap := t.eng.Snapshot(t.now())
	return summaryFromSnapshot(snap, t.now())
}

func summaryFromSnapshot(snap models.Snapshot, now time.Time) *models.Summary {
	durations := make([]models.ClassDuration, len(snap.Durations))
	detected := 0
	for i, d := range snap.Durations {
		if d.Seconds > 0 {
			detected++
		}
		durations[i] = models.ClassDuration{Label: d.Label, Seconds: round2(d.Seconds)}
	}
	return &models.Summary{
		TotalSeconds:  round2(snap.ElapsedSeconds),
		Durations:     durations,
		PosesDetected: detected,
		EndedAt:       now,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Manager is the registry of live trackers.
type Manager struct {
	mu               sync.RWMutex
	trackers         map[uuid.UUID]*Tracker
	defaultThreshold float64 // percent in [0,100]
	now              func() time.Time
}

// NewManager creates a tracker registry. defaultThresholdPercent is used
// whenever a caller supplies no or an invalid threshold.
func NewManager(defaultThresholdPercent float64) *Manager {
	if defaultThresholdPercent < 0 || defaultThresholdPercent > 100 {
		defaultThresholdPercent = DefaultThresholdPercent
	}
	return &Manager{
		trackers:         make(map[uuid.UUID]*Tracker),
		defaultThreshold: defaultThresholdPercent,
		now:              time.Now,
	}
}

// SetClock overrides the wall clock (tests).
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Create registers a new tracker for the given class set. rawThreshold
// is the caller-supplied percent as raw JSON; invalid values fall back
// to the default.
func (m *Manager) Create(classes []string, rawThreshold json.RawMessage) *Tracker {
	t := &Tracker{
		ID:        uuid.New(),
		eng:       engine.New(),
		threshold: ThresholdFraction(rawThreshold, m.defaultThreshold),
		now:       m.now,
		classes:   classes,
	}
	m.mu.Lock()
	m.trackers[t.ID] = t
	m.mu.Unlock()
	return t
}

// Get returns the tracker for a session id.
func (m *Manager) Get(id uuid.UUID) (*Tracker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trackers[id]
	return t, ok
}

// Remove drops a tracker from the registry.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trackers, id)
}

// Ingest feeds a frame into the tracker for sessionID. Implements the
// realtime dispatcher port.
func (m *Manager) Ingest(sessionID uuid.UUID, frame models.SampleFrame) (models.Snapshot, error) {
	t, ok := m.Get(sessionID)
	if !ok {
		return models.Snapshot{}, errors.New("session not found")
	}
	return t.Ingest(frame)
}

// Command applies a lifecycle transition by name for sessionID; the
// second return reports whether the transition was applied. Unknown
// commands and ordering violations are no-ops.
func (m *Manager) Command(sessionID uuid.UUID, name string) (models.Snapshot, bool) {
	t, ok := m.Get(sessionID)
	if !ok {
		return models.Snapshot{}, false
	}
	var err error
	switch name {
	case "start":
		err = t.Start()
	case "pause":
		err = t.Pause()
	case "resume":
		err = t.Resume()
	case "reset":
		t.Reset()
	default:
		return t.Snapshot(), false
	}
	return t.Snapshot(), err == nil
}

// DefaultThresholdPercent is the documented fallback threshold.
const DefaultThresholdPercent = 80

// ThresholdFraction converts a caller-supplied percent in [0,100] into a
// fraction. Missing, non-numeric or out-of-range values fall back to
// defaultPercent. Accepts a bare number or a numeric string.
func ThresholdFraction(raw json.RawMessage, defaultPercent float64) float64 {
	fallback := defaultPercent / 100
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return fallback
	}
	s = strings.Trim(s, `"`)
	pct, err := strconv.ParseFloat(s, 64)
	if err != nil || pct < 0 || pct > 100 {
		return fallback
	}
	return pct / 100
}

// IsStateError reports whether err is an engine lifecycle no-op.
func IsStateError(err error) bool {
	var serr *engine.StateError
	return errors.As(err, &serr)
}

// IsValidationError reports whether err is a rejected sample.
func IsValidationError(err error) bool {
	var verr *engine.ValidationError
	return errors.As(err, &verr)
}
