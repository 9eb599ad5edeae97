package export

import (
	"bytes"
	"encoding/csv"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/posetrack/backend/internal/models"
)

func summary(durations ...models.ClassDuration) *models.Summary {
	total := 0.0
	for _, d := range durations {
		total += d.Seconds
	}
	return &models.Summary{
		TotalSeconds: total,
		Durations:    durations,
		StartedAt:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		EndedAt:      time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC),
	}
}

func parse(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return rows
}

func TestCSVLayout(t *testing.T) {
	data, err := CSV(summary(
		models.ClassDuration{Label: "Tree", Seconds: 12.5},
		models.ClassDuration{Label: "Warrior", Seconds: 37.5},
	))
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	rows := parse(t, data)
	want := [][]string{
		{"label", "duration_seconds", "percentage"},
		{"Tree", "12.50", "25.0"},
		{"Warrior", "37.50", "75.0"},
		{"total", "50.00", "100.0"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
	for i := range want {
		if strings.Join(rows[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestCSVPercentagesRoundTrip(t *testing.T) {
	data, err := CSV(summary(
		models.ClassDuration{Label: "A", Seconds: 1.0},
		models.ClassDuration{Label: "B", Seconds: 1.0},
		models.ClassDuration{Label: "C", Seconds: 1.0},
	))
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	rows := parse(t, data)
	sum := 0.0
	for _, row := range rows[1 : len(rows)-1] {
		pct, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			t.Fatalf("parse %q: %v", row[2], err)
		}
		sum += pct
	}
	if math.Abs(sum-100) > 0.2 {
		t.Errorf("class percentages sum to %v, want ~100", sum)
	}
}

func TestCSVZeroTotal(t *testing.T) {
	data, err := CSV(summary(
		models.ClassDuration{Label: "A", Seconds: 0},
		models.ClassDuration{Label: "B", Seconds: 0},
	))
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	for i, row := range parse(t, data) {
		if i == 0 {
			continue
		}
		if row[2] != "0.0" {
			t.Errorf("row %d percentage = %q, want 0.0", i, row[2])
		}
	}
}

func TestFilename(t *testing.T) {
	got := Filename(summary())
	if got != "pose-session-20250601-100500.csv" {
		t.Errorf("filename = %q", got)
	}
}
