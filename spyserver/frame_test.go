package spyserver

import (
	"encoding/binary"
	"testing"
)

type recordedMessage struct {
	header messageHeader
	body   []byte
}

type fakeDispatcher struct {
	messages []recordedMessage
	gaps     []uint32
}

func (f *fakeDispatcher) handleMessage(header messageHeader, body []byte) {
	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)
	f.messages = append(f.messages, recordedMessage{header: header, body: bodyCopy})
}

func (f *fakeDispatcher) onSequenceGap(gap uint32) {
	f.gaps = append(f.gaps, gap)
}

func buildHeader(protocolID, msgType, streamType, seq, bodySize uint32) []byte {
	b := make([]byte, messageHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], protocolID)
	binary.LittleEndian.PutUint32(b[4:8], msgType)
	binary.LittleEndian.PutUint32(b[8:12], streamType)
	binary.LittleEndian.PutUint32(b[12:16], seq)
	binary.LittleEndian.PutUint32(b[16:20], bodySize)
	return b
}

func buildFrame(msgType, seq uint32, body []byte) []byte {
	h := buildHeader(uint32(ProtocolVersion), msgType, 0, seq, uint32(len(body)))
	return append(h, body...)
}

// chunk splits buf into adversarial segment sizes, repeating the pattern
// until buf is consumed.
func chunk(buf []byte, sizes []int) [][]byte {
	var out [][]byte
	i := 0
	for n := 0; i < len(buf); n = (n + 1) % len(sizes) {
		size := sizes[n]
		if i+size > len(buf) {
			size = len(buf) - i
		}
		out = append(out, buf[i:i+size])
		i += size
	}
	return out
}

func TestFrameParser_RoundTripArbitraryChunking(t *testing.T) {
	body1 := make([]byte, 4096)
	for i := range body1 {
		body1[i] = byte(i)
	}
	body2 := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	body3 := make([]byte, 70000)
	for i := range body3 {
		body3[i] = byte(255 - i%256)
	}

	stream := append(buildFrame(msgTypeInt16IQ, 0, body1), buildFrame(msgTypeUint8FFT, 0, body2)...)
	stream = append(stream, buildFrame(msgTypeInt16IQ, 1, body3)...)

	disp := &fakeDispatcher{}
	p := newFrameParser(disp)

	for _, piece := range chunk(stream, []int{1, 3, 7, 50, 1000}) {
		if err := p.feed(piece); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}

	if len(disp.messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(disp.messages))
	}
	if string(disp.messages[0].body) != string(body1) {
		t.Fatal("message 0 body mismatch")
	}
	if string(disp.messages[1].body) != string(body2) {
		t.Fatal("message 1 body mismatch")
	}
	if string(disp.messages[2].body) != string(body3) {
		t.Fatal("message 2 body mismatch")
	}
}

func TestFrameParser_VersionGate(t *testing.T) {
	badProtocolID := uint32(ProtocolVersion) ^ (1 << 20) // flips a bit in the major/minor half
	frame := append(buildHeader(badProtocolID, msgTypeDeviceInfo, 0, 0, 4), []byte{1, 2, 3, 4}...)

	disp := &fakeDispatcher{}
	p := newFrameParser(disp)

	if err := p.feed(frame); err == nil {
		t.Fatal("expected an error for mismatched protocol version")
	}
	if len(disp.messages) != 0 {
		t.Fatalf("expected no messages consumed, got %d", len(disp.messages))
	}
}

func TestFrameParser_OversizeRejection(t *testing.T) {
	header := buildHeader(uint32(ProtocolVersion), msgTypeUint8IQ, 0, 0, MaxMessageBodySize+1)

	disp := &fakeDispatcher{}
	p := newFrameParser(disp)

	if err := p.feed(header); err == nil {
		t.Fatal("expected an error for oversize body")
	}
	if len(disp.messages) != 0 {
		t.Fatalf("expected no messages consumed, got %d", len(disp.messages))
	}
}

func TestFrameParser_SequenceGapCounting(t *testing.T) {
	disp := &fakeDispatcher{}
	p := newFrameParser(disp)

	for _, seq := range []uint32{0, 1, 3, 4} {
		frame := buildFrame(msgTypeInt16IQ, seq, []byte{0, 0, 0, 0})
		if err := p.feed(frame); err != nil {
			t.Fatalf("feed seq %d: %v", seq, err)
		}
	}

	var totalGap uint32
	for _, g := range disp.gaps {
		totalGap += g
	}
	if totalGap != 1 {
		t.Fatalf("total dropped buffers = %d, want 1", totalGap)
	}
}

func TestFrameParser_NonIQMessagesDoNotTrackSequence(t *testing.T) {
	disp := &fakeDispatcher{}
	p := newFrameParser(disp)

	for _, seq := range []uint32{5, 100, 2} {
		frame := buildFrame(msgTypeUint8FFT, seq, []byte{1})
		if err := p.feed(frame); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}

	if len(disp.gaps) != 0 {
		t.Fatalf("expected no gap events for non-IQ messages, got %v", disp.gaps)
	}
}
