package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/miweber67/spyserver-client/internal/diag"
)

func TestNewIQWriterPlainFileWritesRawBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iq.raw")
	w, err := newIQWriter(path, 16, 0, false, diag.Default())
	if err != nil {
		t.Fatalf("newIQWriter: %v", err)
	}

	if _, err := w.out.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(data) != 4 || data[0] != 1 || data[3] != 4 {
		t.Fatalf("unexpected file contents: %v", data)
	}
}

func TestNewIQWriterCompressedRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iq.raw.zst")
	w, err := newIQWriter(path, 16, 0, true, diag.Default())
	if err != nil {
		t.Fatalf("newIQWriter: %v", err)
	}

	payload := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	if _, err := w.out.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	compressed, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("new zstd reader: %v", err)
	}
	defer dec.Close()

	decoded, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != string(payload) {
		t.Fatalf("decoded = %v, want %v", decoded, payload)
	}
}
