package diag

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, Text, &buf)

	l.Info("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("Info at Warn level wrote output: %q", buf.String())
	}

	l.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("Warn message missing from output: %q", buf.String())
	}
}

func TestWithAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Debug, Text, &buf).With(Field{Key: "session", Value: "abc-123"})

	l.Info("connected")

	got := buf.String()
	if !strings.Contains(got, "session=abc-123") {
		t.Fatalf("expected attached field in output, got %q", got)
	}
	if !strings.Contains(got, "connected") {
		t.Fatalf("expected message in output, got %q", got)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Info, JSON, &buf)

	l.Error("boom", Field{Key: "code", Value: 42})

	got := buf.String()
	for _, want := range []string{`"msg":"boom"`, `"level":"ERROR"`, `"code":42`} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in JSON output, got %q", want, got)
		}
	}
}

func TestRepeatedMessagesAreThrottled(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, Text, &buf)

	for i := 0; i < 12; i++ {
		buf.Reset()
		l.Warn("ring buffer overflow, oldest samples dropped")
		wrote := buf.Len() > 0
		switch n := i + 1; {
		case n <= 2, n%10 == 0:
			if !wrote {
				t.Fatalf("occurrence %d should have been emitted", n)
			}
		default:
			if wrote {
				t.Fatalf("occurrence %d should have been suppressed, got %q", n, buf.String())
			}
		}
	}
}

func TestThrottleIsSharedAcrossWith(t *testing.T) {
	var buf bytes.Buffer
	base := New(Warn, Text, &buf)
	child := base.With(Field{Key: "session", Value: "abc"})

	base.Warn("lost frames from server")
	base.Warn("lost frames from server")
	buf.Reset()
	child.Warn("lost frames from server")
	if buf.Len() != 0 {
		t.Fatalf("third occurrence via a With-derived logger should share the throttle state and be suppressed, got %q", buf.String())
	}
}

func TestParseLevelAndFormat(t *testing.T) {
	if lvl, err := ParseLevel("WARN"); err != nil || lvl != Warn {
		t.Fatalf("ParseLevel(WARN) = %v, %v", lvl, err)
	}
	if _, err := ParseLevel("bogus"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if f, err := ParseFormat("json"); err != nil || f != JSON {
		t.Fatalf("ParseFormat(json) = %v, %v", f, err)
	}
	if _, err := ParseFormat("bogus"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
