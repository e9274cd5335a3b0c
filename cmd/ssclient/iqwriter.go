package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/miweber67/spyserver-client/internal/diag"
	"github.com/miweber67/spyserver-client/spyserver"
)

const iqBatchSize = 32768

// iqWriter pulls IQ batches from a session and writes them out as raw
// interleaved I/Q bytes, optionally wrapped in a zstd encoder.
type iqWriter struct {
	out        io.Writer
	closer     io.Closer
	sampleBits int
	numSamples uint64
	log        diag.Logger
}

func newIQWriter(path string, sampleBits int, numSamples uint64, compress bool, log diag.Logger) (*iqWriter, error) {
	var f *os.File
	if path == "-" {
		f = os.Stdout
	} else {
		var err error
		f, err = os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("ssclient: open iq output %s: %w", path, err)
		}
	}

	w := &iqWriter{out: f, closer: f, sampleBits: sampleBits, numSamples: numSamples, log: log}
	if compress {
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("ssclient: create zstd encoder: %w", err)
		}
		w.out = enc
		w.closer = enc
	}
	return w, nil
}

func (w *iqWriter) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// run pulls batches of iqBatchSize samples until numSamples have been
// written (0 means unbounded) or the session ends.
func (w *iqWriter) run(s *spyserver.Session) error {
	var written uint64
	switch w.sampleBits {
	case 16:
		return w.run16(s, &written)
	case 8:
		return w.run8(s, &written)
	default:
		return fmt.Errorf("ssclient: unsupported sample width %d", w.sampleBits)
	}
}

func (w *iqWriter) run16(s *spyserver.Session, written *uint64) error {
	out := make([]spyserver.ComplexInt16, iqBatchSize)
	buf := make([]byte, iqBatchSize*4)
	for {
		delivered, done, err := s.GetIQDataInt16(iqBatchSize, out)
		if err != nil {
			return err
		}
		for i := uint32(0); i < delivered; i++ {
			binary.LittleEndian.PutUint16(buf[i*4:i*4+2], uint16(out[i].Real))
			binary.LittleEndian.PutUint16(buf[i*4+2:i*4+4], uint16(out[i].Imag))
		}
		if delivered > 0 {
			if _, err := w.out.Write(buf[:delivered*4]); err != nil {
				return fmt.Errorf("ssclient: write iq samples: %w", err)
			}
			*written += uint64(delivered)
		}
		if done || (w.numSamples != 0 && *written >= w.numSamples) {
			return nil
		}
	}
}

func (w *iqWriter) run8(s *spyserver.Session, written *uint64) error {
	out := make([]spyserver.ComplexUint8, iqBatchSize)
	buf := make([]byte, iqBatchSize*2)
	for {
		delivered, done, err := s.GetIQDataUint8(iqBatchSize, out)
		if err != nil {
			return err
		}
		for i := uint32(0); i < delivered; i++ {
			buf[i*2] = out[i].Real
			buf[i*2+1] = out[i].Imag
		}
		if delivered > 0 {
			if _, err := w.out.Write(buf[:delivered*2]); err != nil {
				return fmt.Errorf("ssclient: write iq samples: %w", err)
			}
			*written += uint64(delivered)
		}
		if done || (w.numSamples != 0 && *written >= w.numSamples) {
			return nil
		}
	}
}
