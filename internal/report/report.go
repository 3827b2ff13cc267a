// File: internal/report/report.go
// Package report writes a run summary to a file or stdout, so an unattended
// run leaves a machine-readable record of what was filled and what failed.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/weifanh/classsync-cli/internal/schedule"
)

// Summary is the report document for one automation run.
type Summary struct {
	RunID       string                `json:"runId"`
	CompletedAt time.Time             `json:"completedAt"`
	State       string                `json:"state"`
	Outcome     *schedule.FillOutcome `json:"outcome,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// Reporter writes a run summary to its output.
type Reporter interface {
	Write(s *Summary) error
	// Close finalizes the report and closes any underlying file handle.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error { return nil }

// New creates a reporter for the given format and output path. An empty path
// or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "json", "":
		return &jsonReporter{w: writer}, nil
	case "text":
		return &textReporter{w: writer}, nil
	default:
		if !isStdOut {
			writer.Close()
		}
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

type jsonReporter struct {
	w io.WriteCloser
}

func (r *jsonReporter) Write(s *Summary) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	data = append(data, '\n')
	_, err = r.w.Write(data)
	return err
}

func (r *jsonReporter) Close() error { return r.w.Close() }

type textReporter struct {
	w io.WriteCloser
}

func (r *textReporter) Write(s *Summary) error {
	fmt.Fprintf(r.w, "Run %s finished in state %s at %s\n",
		s.RunID, s.State, s.CompletedAt.Format(time.RFC3339))
	if s.Error != "" {
		fmt.Fprintf(r.w, "Error: %s\n", s.Error)
	}
	o := s.Outcome
	if o == nil {
		return nil
	}
	fmt.Fprintf(r.w, "Filled %d of %d days (success rate %.0f%%)\n",
		o.FilledDays, o.TotalDays, o.SuccessRate*100)
	for _, e := range o.Errors {
		if e.Slot >= 0 {
			fmt.Fprintf(r.w, "  %s slot %d: %s %s\n", e.Date, e.Slot, e.Kind, e.Detail)
		} else {
			fmt.Fprintf(r.w, "  %s: %s %s\n", e.Date, e.Kind, e.Detail)
		}
	}
	return nil
}

func (r *textReporter) Close() error { return r.w.Close() }
