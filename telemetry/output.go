package telemetry

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/weathering/files"
)

// PerfWriter appends performance records to a CSV file.
type PerfWriter struct {
	file          *os.File
	headerWritten bool
}

// NewPerfWriter creates the CSV file at path, including parent directories.
// Returns nil if path is empty (output disabled).
func NewPerfWriter(path string) (*PerfWriter, error) {
	if path == "" {
		return nil, nil
	}
	f, err := files.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating perf csv: %w", err)
	}
	return &PerfWriter{file: f}, nil
}

// Write writes a performance stats record for the given iteration.
func (w *PerfWriter) Write(stats PerfStats, iteration int) error {
	if w == nil {
		return nil
	}
	records := []PerfStatsCSV{stats.ToCSV(iteration)}
	if !w.headerWritten {
		if err := gocsv.Marshal(records, w.file); err != nil {
			return fmt.Errorf("writing perf: %w", err)
		}
		w.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, w.file); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *PerfWriter) Close() error {
	if w == nil {
		return nil
	}
	return w.file.Close()
}
