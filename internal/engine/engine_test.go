package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/posetrack/backend/internal/models"
)

var base = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return base.Add(time.Duration(ms) * time.Millisecond) }

func started(t *testing.T, classes ...string) *Engine {
	t.Helper()
	e := New()
	if err := e.Start(classes, base); err != nil {
		t.Fatalf("start: %v", err)
	}
	return e
}

func frame(class string, conf float64) []models.Prediction {
	return []models.Prediction{{Class: class, Confidence: conf}}
}

func durationOf(t *testing.T, snap models.Snapshot, label string) float64 {
	t.Helper()
	for _, d := range snap.Durations {
		if d.Label == label {
			return d.Seconds
		}
	}
	t.Fatalf("class %q not in snapshot", label)
	return 0
}

func TestAccumulatesDeltaBetweenFrames(t *testing.T) {
	e := started(t, "A", "B")

	// threshold 0.8: A at t=0, A at t=500, B at t=1000
	for _, f := range []struct {
		class string
		conf  float64
		ms    float64
	}{
		{"A", 0.9, 0},
		{"A", 0.9, 500},
		{"B", 0.95, 1000},
	} {
		if err := e.Ingest(frame(f.class, f.conf), f.ms, 0.8); err != nil {
			t.Fatalf("ingest %v: %v", f, err)
		}
	}

	snap := e.Snapshot(at(1000))
	if got := durationOf(t, snap, "A"); got != 0.5 {
		t.Errorf("A = %v, want 0.5", got)
	}
	// B's delta is attributed only going forward from t=1000
	if got := durationOf(t, snap, "B"); got != 0 {
		t.Errorf("B = %v, want 0", got)
	}
	if snap.CurrentClass != "B" {
		t.Errorf("current class = %q, want B", snap.CurrentClass)
	}
}

func TestFirstFrameContributesNothing(t *testing.T) {
	e := started(t, "A")
	if err := e.Ingest(frame("A", 1.0), 250, 0.5); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := durationOf(t, e.Snapshot(at(250)), "A"); got != 0 {
		t.Errorf("A = %v, want 0 after first frame", got)
	}
}

func TestBelowThresholdLosesTime(t *testing.T) {
	e := started(t, "A")
	_ = e.Ingest(frame("A", 0.9), 0, 0.8)
	_ = e.Ingest(frame("A", 0.5), 1000, 0.8)

	snap := e.Snapshot(at(1000))
	if got := durationOf(t, snap, "A"); got != 0 {
		t.Errorf("A = %v, want 0 (below-threshold frame loses its delta)", got)
	}
	if snap.CurrentClass != "" {
		t.Errorf("current class = %q, want none sentinel", snap.CurrentClass)
	}
}

func TestIngestWhilePausedDoesNotAccumulate(t *testing.T) {
	e := started(t, "A")
	_ = e.Ingest(frame("A", 0.9), 0, 0.8)
	if err := e.Pause(at(100)); err != nil {
		t.Fatalf("pause: %v", err)
	}

	for ms := 100.0; ms <= 2000; ms += 100 {
		if err := e.Ingest(frame("A", 0.99), ms, 0.8); err != nil {
			t.Fatalf("ingest while paused: %v", err)
		}
	}
	if got := durationOf(t, e.Snapshot(at(2000)), "A"); got != 0 {
		t.Errorf("A = %v, want 0 (idempotent under pause)", got)
	}
}

func TestResumeClearsStaleFrameTimestamp(t *testing.T) {
	e := started(t, "A")
	_ = e.Ingest(frame("A", 0.9), 0, 0.8)
	_ = e.Ingest(frame("A", 0.9), 50, 0.8)

	_ = e.Pause(at(50))
	_ = e.Resume(at(2050))

	// frames 100ms apart in frame-time but separated by a 2s pause:
	// the first post-resume frame must contribute zero.
	before := durationOf(t, e.Snapshot(at(2050)), "A")
	_ = e.Ingest(frame("A", 0.9), 2150, 0.8)
	after := durationOf(t, e.Snapshot(at(2150)), "A")
	if after != before {
		t.Errorf("post-resume frame added %v, want 0", after-before)
	}

	// the next frame accumulates normally again
	_ = e.Ingest(frame("A", 0.9), 2250, 0.8)
	if got := durationOf(t, e.Snapshot(at(2250)), "A"); got != before+0.1 {
		t.Errorf("A = %v, want %v", got, before+0.1)
	}
}

func TestBackwardsFrameTimestampClampsToZero(t *testing.T) {
	e := started(t, "A")
	_ = e.Ingest(frame("A", 0.9), 1000, 0.8)
	_ = e.Ingest(frame("A", 0.9), 400, 0.8)
	if got := durationOf(t, e.Snapshot(at(1000)), "A"); got != 0 {
		t.Errorf("A = %v, want 0 for non-monotonic timestamps", got)
	}
}

func TestSumOfDurationsNeverExceedsElapsed(t *testing.T) {
	e := started(t, "A", "B")
	frames := []struct {
		class string
		conf  float64
		ms    float64
	}{
		{"A", 0.9, 0}, {"A", 0.9, 400}, {"B", 0.6, 800},
		{"B", 0.95, 1200}, {"A", 0.85, 1600}, {"A", 0.2, 2000},
	}
	for _, f := range frames {
		if err := e.Ingest(frame(f.class, f.conf), f.ms, 0.8); err != nil {
			t.Fatalf("ingest: %v", err)
		}
		snap := e.Snapshot(at(int(f.ms)))
		sum := 0.0
		for _, d := range snap.Durations {
			sum += d.Seconds
		}
		if sum > snap.ElapsedSeconds+1e-9 {
			t.Errorf("at %vms: sum %v > elapsed %v", f.ms, sum, snap.ElapsedSeconds)
		}
	}
}

func TestTopClassTieBreaksByOrder(t *testing.T) {
	e := started(t, "A", "B")
	preds := []models.Prediction{
		{Class: "A", Confidence: 0.9},
		{Class: "B", Confidence: 0.9},
	}
	_ = e.Ingest(preds, 0, 0.8)
	_ = e.Ingest(preds, 1000, 0.8)
	snap := e.Snapshot(at(1000))
	if got := durationOf(t, snap, "A"); got != 1.0 {
		t.Errorf("A = %v, want 1.0 (tie goes to first-listed class)", got)
	}
	if got := durationOf(t, snap, "B"); got != 0 {
		t.Errorf("B = %v, want 0", got)
	}
}

func TestUnknownClassIsTrackedFromFirstSight(t *testing.T) {
	e := started(t, "A")
	_ = e.Ingest(frame("C", 0.9), 0, 0.8)
	_ = e.Ingest(frame("C", 0.9), 500, 0.8)
	if got := durationOf(t, e.Snapshot(at(500)), "C"); got != 0.5 {
		t.Errorf("C = %v, want 0.5", got)
	}
}

func TestIngestValidation(t *testing.T) {
	tests := []struct {
		name      string
		preds     []models.Prediction
		threshold float64
	}{
		{"empty list", nil, 0.8},
		{"empty class", frame("", 0.5), 0.8},
		{"confidence above 1", frame("A", 1.5), 0.8},
		{"negative confidence", frame("A", -0.1), 0.8},
		{"NaN confidence", frame("A", math.NaN()), 0.8},
		{"threshold above 1", frame("A", 0.5), 1.5},
		{"negative threshold", frame("A", 0.5), -0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := started(t, "A")
			_ = e.Ingest(frame("A", 0.9), 0, 0.8)
			err := e.Ingest(tt.preds, 1000, tt.threshold)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if got := durationOf(t, e.Snapshot(at(1000)), "A"); got != 0 {
				t.Errorf("rejected frame mutated state: A = %v", got)
			}
		})
	}
}

func TestStateMachineGuards(t *testing.T) {
	e := New()

	if err := e.Pause(base); !isStateError(err) {
		t.Errorf("pause from idle: %v, want StateError", err)
	}
	if err := e.Resume(base); !isStateError(err) {
		t.Errorf("resume from idle: %v, want StateError", err)
	}
	if _, err := e.Finalize(base); !isStateError(err) {
		t.Errorf("end from idle: %v, want StateError", err)
	}

	if err := e.Start([]string{"A"}, base); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start([]string{"A"}, base); !isStateError(err) {
		t.Errorf("double start: %v, want StateError", err)
	}
	if err := e.Resume(base); !isStateError(err) {
		t.Errorf("resume while running: %v, want StateError", err)
	}

	if _, err := e.Finalize(at(1000)); err != nil {
		t.Fatalf("end: %v", err)
	}
	if e.State() != StateEnded {
		t.Errorf("state = %v, want ended", e.State())
	}
	// Ended is terminal until an explicit reset
	if err := e.Start([]string{"A"}, at(2000)); !isStateError(err) {
		t.Errorf("start from ended: %v, want StateError", err)
	}
	e.Reset()
	if e.State() != StateIdle {
		t.Errorf("state after reset = %v, want idle", e.State())
	}
	if err := e.Start([]string{"A"}, at(3000)); err != nil {
		t.Errorf("start after reset: %v", err)
	}
}

func TestElapsedSeconds(t *testing.T) {
	e := started(t, "A")

	if got := e.ElapsedSeconds(at(1500)); got != 1.5 {
		t.Errorf("elapsed = %v, want 1.5", got)
	}

	_ = e.Pause(at(2000))
	if got := e.ElapsedSeconds(at(5000)); got != 2.0 {
		t.Errorf("elapsed while paused = %v, want 2.0 (frozen)", got)
	}

	_ = e.Resume(at(6000))
	if got := e.ElapsedSeconds(at(7000)); got != 3.0 {
		t.Errorf("elapsed after resume = %v, want 3.0", got)
	}

	// clock skew clamps at zero
	if got := e.ElapsedSeconds(base.Add(-time.Minute)); got != 0 {
		t.Errorf("elapsed with skewed clock = %v, want 0", got)
	}
}

func TestFinalizeSummary(t *testing.T) {
	e := started(t, "A", "B", "C")
	_ = e.Ingest(frame("A", 0.9), 0, 0.8)
	_ = e.Ingest(frame("A", 0.9), 333, 0.8)
	_ = e.Ingest(frame("B", 0.9), 999, 0.8)
	_ = e.Ingest(frame("B", 0.9), 2000, 0.8)

	sum, err := e.Finalize(at(2000))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if sum.TotalSeconds != 2.0 {
		t.Errorf("total = %v, want 2.0", sum.TotalSeconds)
	}
	if sum.PosesDetected != 2 {
		t.Errorf("poses detected = %d, want 2", sum.PosesDetected)
	}
	want := []models.ClassDuration{{Label: "A", Seconds: 0.33}, {Label: "B", Seconds: 1.67}, {Label: "C", Seconds: 0}}
	if len(sum.Durations) != len(want) {
		t.Fatalf("durations = %v, want %v", sum.Durations, want)
	}
	for i, d := range sum.Durations {
		if d != want[i] {
			t.Errorf("durations[%d] = %v, want %v", i, d, want[i])
		}
	}
}

func TestNothingDetectedSummary(t *testing.T) {
	e := started(t, "A", "B")
	for ms := 0.0; ms <= 3000; ms += 100 {
		_ = e.Ingest(frame("A", 0.4), ms, 0.8)
	}
	sum, err := e.Finalize(at(3000))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if sum.PosesDetected != 0 {
		t.Errorf("poses detected = %d, want 0", sum.PosesDetected)
	}
	for _, d := range sum.Durations {
		if d.Seconds != 0 {
			t.Errorf("%s = %v, want 0.00", d.Label, d.Seconds)
		}
	}
}

func TestFinalizeFromPausedClosesOpenInterval(t *testing.T) {
	e := started(t, "A")
	_ = e.Pause(at(1000))
	sum, err := e.Finalize(at(4000))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if sum.TotalSeconds != 1.0 {
		t.Errorf("total = %v, want 1.0 (pause tail excluded)", sum.TotalSeconds)
	}
}

func isStateError(err error) bool {
	var serr *StateError
	return errors.As(err, &serr)
}
