// Package export renders session summaries as delimited text for
// download and archival.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/posetrack/backend/internal/models"
)

// CSV renders a summary as a CSV table: one row per class with the
// accumulated seconds (2 decimals) and share of the accumulated total
// (1 decimal), plus a trailing total row. Percentages are 0 when no
// time was accumulated at all.
func CSV(sum *models.Summary) ([]byte, error) {
	total := 0.0
	for _, d := range sum.Durations {
		total += d.Seconds
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"label", "duration_seconds", "percentage"}); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, d := range sum.Durations {
		pct := 0.0
		if total > 0 {
			pct = d.Seconds / total * 100
		}
		row := []string{
			d.Label,
			fmt.Sprintf("%.2f", d.Seconds),
			fmt.Sprintf("%.1f", pct),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	totalPct := 0.0
	if total > 0 {
		totalPct = 100
	}
	if err := w.Write([]string{"total", fmt.Sprintf("%.2f", total), fmt.Sprintf("%.1f", totalPct)}); err != nil {
		return nil, fmt.Errorf("write total: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename returns the attachment name for a summary export.
func Filename(sum *models.Summary) string {
	return "pose-session-" + sum.EndedAt.UTC().Format("20060102-150405") + ".csv"
}
