package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartIteration()
		pc.StartPhase(PhaseTrace)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseSynthesize)
		time.Sleep(200 * time.Microsecond)
		pc.EndIteration()
	}

	stats := pc.Stats()
	if stats.AvgIteration <= 0 {
		t.Error("expected positive average iteration duration")
	}
	if _, ok := stats.PhaseAvg[PhaseTrace]; !ok {
		t.Error("expected trace phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseSynthesize]; !ok {
		t.Error("expected synthesize phase to be tracked")
	}
	if stats.MinIteration > stats.MaxIteration {
		t.Errorf("min %v > max %v", stats.MinIteration, stats.MaxIteration)
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)
	for i := 0; i < 10; i++ {
		pc.StartIteration()
		pc.StartPhase(PhaseTrace)
		pc.EndIteration()
	}
	stats := pc.Stats()
	if stats.AvgIteration <= 0 {
		t.Error("expected positive average after window filled")
	}
	if stats.IterationsPerSecond <= 0 {
		t.Error("expected positive iterations per second")
	}
}

func TestPerfCollector_Empty(t *testing.T) {
	stats := NewPerfCollector(0).Stats()
	if stats.AvgIteration != 0 || stats.PhaseAvg == nil {
		t.Errorf("unexpected empty stats: %+v", stats)
	}

	var nilCollector *PerfCollector
	nilCollector.StartIteration()
	nilCollector.StartPhase(PhaseTrace)
	nilCollector.EndIteration()
	if s := nilCollector.Stats(); s.AvgIteration != 0 {
		t.Error("nil collector should report zero stats")
	}
}

func TestPerfWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "perf.csv")
	w, err := NewPerfWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	pc := NewPerfCollector(4)
	for i := 1; i <= 3; i++ {
		pc.StartIteration()
		pc.StartPhase(PhaseTrace)
		pc.EndIteration()
		if err := w.Write(pc.Stats(), i); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header plus 3 records", len(lines))
	}
	if !strings.HasPrefix(lines[0], "iteration,") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[3], "3,") {
		t.Errorf("last record = %q", lines[3])
	}
}

func TestPerfWriterDisabled(t *testing.T) {
	w, err := NewPerfWriter("")
	if err != nil || w != nil {
		t.Fatalf("NewPerfWriter(\"\") = %v, %v", w, err)
	}
	if err := w.Write(PerfStats{}, 1); err != nil {
		t.Error(err)
	}
	if err := w.Close(); err != nil {
		t.Error(err)
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var jsonBuf, textBuf, tee bytes.Buffer
	NewLogger(slog.LevelInfo, "json", &jsonBuf, &tee).Info("hello", "k", 1)
	NewLogger(slog.LevelInfo, "text", &textBuf).Debug("hidden")
	NewLogger(slog.LevelInfo, "text", &textBuf).Info("hello")

	if !strings.Contains(jsonBuf.String(), `"msg":"hello"`) {
		t.Errorf("json output = %q", jsonBuf.String())
	}
	if jsonBuf.String() != tee.String() {
		t.Error("tee output differs")
	}
	if strings.Contains(textBuf.String(), "hidden") || !strings.Contains(textBuf.String(), "msg=hello") {
		t.Errorf("text output = %q", textBuf.String())
	}
}

func TestSetupTracing_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupTracing_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Use a non-routable address so no actual export happens.
	shutdown, err := SetupTracing(context.Background(), "http://192.0.2.1:4318")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
