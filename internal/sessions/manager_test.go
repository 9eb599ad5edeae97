package sessions

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/posetrack/backend/internal/models"
)

func TestThresholdFraction(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"missing", "", 0.8},
		{"null", "null", 0.8},
		{"number", "65", 0.65},
		{"decimal", "72.5", 0.725},
		{"numeric string", `"90"`, 0.9},
		{"zero", "0", 0},
		{"hundred", "100", 1},
		{"negative", "-5", 0.8},
		{"above range", "120", 0.8},
		{"non-numeric", `"high"`, 0.8},
		{"garbage", "{}", 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ThresholdFraction(json.RawMessage(tt.raw), 80); got != tt.want {
				t.Errorf("ThresholdFraction(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestManagerCreateAndGet(t *testing.T) {
	m := NewManager(80)
	tr := m.Create([]string{"Tree", "Warrior"}, nil)

	if tr.Threshold() != 0.8 {
		t.Errorf("threshold = %v, want 0.8", tr.Threshold())
	}
	got, ok := m.Get(tr.ID)
	if !ok || got != tr {
		t.Fatalf("Get(%v) = %v, %v", tr.ID, got, ok)
	}
	m.Remove(tr.ID)
	if _, ok := m.Get(tr.ID); ok {
		t.Error("tracker still present after Remove")
	}
}

func TestTrackerLifecycle(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(80)
	m.SetClock(func() time.Time { return clock })

	tr := m.Create([]string{"Tree"}, json.RawMessage("50"))
	if err := tr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	frame := func(ms float64, conf float64) models.SampleFrame {
		return models.SampleFrame{
			Predictions: []models.Prediction{{Class: "Tree", Confidence: conf}},
			FrameTS:     ms,
		}
	}

	if _, err := tr.Ingest(frame(0, 0.9)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	snap, err := tr.Ingest(frame(2000, 0.9))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if snap.Durations[0].Seconds != 2.0 {
		t.Errorf("Tree = %v, want 2.0", snap.Durations[0].Seconds)
	}
	if snap.CurrentClass != "Tree" {
		t.Errorf("current class = %q, want Tree", snap.CurrentClass)
	}

	clock = clock.Add(3 * time.Second)
	sum, err := tr.End()
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if sum.TotalSeconds != 3.0 {
		t.Errorf("total = %v, want 3.0", sum.TotalSeconds)
	}
	if tr.Summary() != sum {
		t.Error("summary not retained on tracker")
	}

	// ended session exports the finished summary, not a live snapshot
	if got := tr.ExportSummary(); got != sum {
		t.Error("export summary != finished summary")
	}

	tr.Reset()
	if tr.Summary() != nil {
		t.Error("summary survived reset")
	}
	if err := tr.Start(); err != nil {
		t.Errorf("start after reset: %v", err)
	}
}

func TestExportSummaryWhileLive(t *testing.T) {
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(80)
	m.SetClock(func() time.Time { return clock })

	tr := m.Create([]string{"Tree", "Cobra"}, nil)
	if err := tr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _ = tr.Ingest(models.SampleFrame{Predictions: []models.Prediction{{Class: "Tree", Confidence: 0.9}}, FrameTS: 0})
	_, _ = tr.Ingest(models.SampleFrame{Predictions: []models.Prediction{{Class: "Tree", Confidence: 0.9}}, FrameTS: 1234})

	clock = clock.Add(2 * time.Second)
	sum := tr.ExportSummary()
	if sum.TotalSeconds != 2.0 {
		t.Errorf("total = %v, want 2.0", sum.TotalSeconds)
	}
	if sum.PosesDetected != 1 {
		t.Errorf("poses detected = %d, want 1", sum.PosesDetected)
	}
	if sum.Durations[0].Seconds != 1.23 {
		t.Errorf("Tree = %v, want 1.23 (rounded)", sum.Durations[0].Seconds)
	}
}
