// File: internal/report/report_test.go
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weifanh/classsync-cli/internal/schedule"
)

func sampleSummary() *Summary {
	return &Summary{
		RunID:       "run-123",
		CompletedAt: time.Date(2025, 9, 22, 8, 30, 0, 0, time.UTC),
		State:       "Completed",
		Outcome: &schedule.FillOutcome{
			OK:          false,
			FilledDays:  4,
			TotalDays:   5,
			SuccessRate: 0.8,
			Errors: []schedule.FillError{
				{Date: "2025-09-24", Slot: 1, Kind: schedule.KindSetValueFailed, Detail: "value did not stick"},
				{Date: "2025-09-25", Slot: -1, Kind: schedule.KindDayBlockNotFound},
			},
		},
	}
}

func TestJSONReporterWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r, err := New("json", path)
	require.NoError(t, err)

	require.NoError(t, r.Write(sampleSummary()))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Summary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-123", got.RunID)
	assert.Equal(t, "Completed", got.State)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, 4, got.Outcome.FilledDays)
	assert.Len(t, got.Outcome.Errors, 2)
}

func TestDefaultFormatIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.out")
	r, err := New("", path)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleSummary()))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestTextReporterSummarizesErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	r, err := New("text", path)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleSummary()))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "run-123")
	assert.Contains(t, text, "Filled 4 of 5 days")
	assert.Contains(t, text, "2025-09-24 slot 1: set_value_failed")
	assert.Contains(t, text, "2025-09-25: day_block_not_found")
	assert.NotContains(t, text, "slot -1")
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := New("sarif", "")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestUnwritableOutputPath(t *testing.T) {
	_, err := New("json", filepath.Join(t.TempDir(), "missing", "report.json"))
	assert.Error(t, err)
}
