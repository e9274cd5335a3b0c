package main

import (
	"fmt"
	"os"
	"time"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/stat"

	"github.com/miweber67/spyserver-client/internal/diag"
	"github.com/miweber67/spyserver-client/spyserver"
)

// fftWriter accumulates periods drained from the session's FFT stream and
// periodically flushes an rtl_power-style CSV row: the averaged per-bin
// power since the last flush, written unwindowed. A leading comment line
// carries the mean, min and max of those averages and the peak of a
// Hamming-windowed copy of them.
type fftWriter struct {
	path      string
	hzLow     float64
	hzHigh    float64
	hzStep    float64
	integrate time.Duration
	oneShot   bool
	log       diag.Logger
	sums      []float64
	periods   uint32
	lastFlush time.Time
}

func newFFTWriter(path string, centerFreq, sampleRate float64, bins int, integrate time.Duration, oneShot bool, log diag.Logger) *fftWriter {
	return &fftWriter{
		path:      path,
		hzLow:     centerFreq - sampleRate/2,
		hzHigh:    centerFreq + sampleRate/2,
		hzStep:    sampleRate / float64(bins),
		integrate: integrate,
		oneShot:   oneShot,
		log:       log,
		lastFlush: time.Now(),
	}
}

// run drains FFT periods from s until the session ends, flushing to path
// every integrate interval (or once, if oneShot is set).
func (w *fftWriter) run(s *spyserver.Session) error {
	for {
		sums, periods, done, err := s.GetFFTData()
		if err != nil {
			return err
		}
		if len(sums) > 0 && periods > 0 {
			if len(w.sums) < len(sums) {
				grown := make([]float64, len(sums))
				copy(grown, w.sums)
				w.sums = grown
			}
			for i, v := range sums {
				w.sums[i] += float64(v)
			}
			w.periods += periods
		}

		if time.Since(w.lastFlush) >= w.integrate && w.periods > 0 {
			if err := w.flush(); err != nil {
				return err
			}
			if w.oneShot {
				return nil
			}
		}

		if done {
			return nil
		}
	}
}

func (w *fftWriter) flush() error {
	averaged := make([]float64, len(w.sums))
	for i, sum := range w.sums {
		averaged[i] = sum / float64(w.periods)
	}

	smoothed := window.Hamming(append([]float64(nil), averaged...))
	mean := stat.Mean(averaged, nil)
	minVal, maxVal := averaged[0], averaged[0]
	for _, v := range averaged {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("ssclient: open fft output %s: %w", w.path, err)
	}
	defer f.Close()

	now := time.Now()
	if _, err := fmt.Fprintf(f, "# mean=%.2f min=%.2f max=%.2f smoothed_peak=%.2f\n", mean, minVal, maxVal, maxOf(smoothed)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%s, %s, %.0f, %.0f, %.3f, samples", now.Format("2006-01-02"), now.Format("15:04:05"), w.hzLow, w.hzHigh, w.hzStep); err != nil {
		return err
	}
	for _, v := range averaged {
		if _, err := fmt.Fprintf(f, ", %.2f", v); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(f); err != nil {
		return err
	}

	w.log.Debug("flushed fft average", diag.Field{Key: "periods", Value: w.periods}, diag.Field{Key: "bins", Value: len(averaged)})

	for i := range w.sums {
		w.sums[i] = 0
	}
	w.periods = 0
	w.lastFlush = time.Now()
	return nil
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
