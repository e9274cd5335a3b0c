package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/miweber67/spyserver-client/internal/diag"
)

func TestFFTWriterFlushWritesAveragedRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "power.csv")
	w := newFFTWriter(path, 403_000_000, 10_000_000, 4, 0, false, diag.Default())

	w.sums = []float64{10, 20, 30, 40}
	w.periods = 2

	if err := w.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected a comment line and a data line, got %d: %q", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "#") {
		t.Fatalf("expected a leading comment line, got %q", lines[0])
	}
	// averaged bins are sums/periods: 5, 10, 15, 20
	for _, want := range []string{"5.00", "10.00", "15.00", "20.00"} {
		if !strings.Contains(lines[1], want) {
			t.Fatalf("data row %q missing averaged value %q", lines[1], want)
		}
	}
	if w.periods != 0 {
		t.Fatalf("expected periods to reset after flush, got %d", w.periods)
	}
	for i, v := range w.sums {
		if v != 0 {
			t.Fatalf("expected sums[%d] to reset after flush, got %f", i, v)
		}
	}
}

func TestFFTWriterHzRangeDerivedFromCenterAndRate(t *testing.T) {
	w := newFFTWriter("", 100_000_000, 2_000_000, 1000, 0, false, diag.Default())
	if w.hzLow != 99_000_000 || w.hzHigh != 101_000_000 {
		t.Fatalf("hzLow/hzHigh = %f/%f, want 99000000/101000000", w.hzLow, w.hzHigh)
	}
	if w.hzStep != 2000 {
		t.Fatalf("hzStep = %f, want 2000", w.hzStep)
	}
}
