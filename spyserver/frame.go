package spyserver

import (
	"encoding/binary"
	"fmt"
)

type parserPhase int

const (
	parserAcquiringHeader parserPhase = iota
	parserReadingData
)

// frameDispatcher receives fully-assembled messages (and diagnostic events)
// from a frameParser. Implementations must not block, since they run on the
// receiver goroutine's read loop.
type frameDispatcher interface {
	handleMessage(header messageHeader, body []byte)
	onSequenceGap(gap uint32)
}

// frameParser is a two-phase streaming decoder: it splits an arbitrarily
// chunked byte stream into (header, body) records without ever blocking or
// allocating per byte. A TCP segment that straddles a record boundary just
// leaves its tail buffered in parser state, to be completed by the next
// Feed call.
type frameParser struct {
	phase    parserPhase
	position uint32

	headerBuf [messageHeaderSize]byte
	bodyBuf   []byte
	header    messageHeader

	lastSequenceNumber uint32

	dispatcher frameDispatcher
}

func newFrameParser(dispatcher frameDispatcher) *frameParser {
	return &frameParser{
		phase: parserAcquiringHeader,
		// A sentinel so the first IQ frame of a session never registers a
		// gap: 0 - 0xFFFFFFFF - 1 wraps back to 0 in uint32 arithmetic.
		lastSequenceNumber: 0xFFFFFFFF,
		dispatcher:         dispatcher,
	}
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// feed consumes the entire input, emitting zero or more complete messages to
// the dispatcher. It returns a non-nil error only for fatal protocol
// violations (version mismatch, oversize body); no further bytes from buf
// are consumed once that happens.
func (p *frameParser) feed(buf []byte) error {
	for len(buf) > 0 {
		if p.phase == parserAcquiringHeader {
			consumed := p.parseHeader(buf)
			buf = buf[consumed:]

			if p.phase == parserReadingData {
				if err := p.validateHeader(); err != nil {
					return err
				}
				if cap(p.bodyBuf) < int(p.header.BodySize) {
					p.bodyBuf = make([]byte, p.header.BodySize)
				} else {
					p.bodyBuf = p.bodyBuf[:p.header.BodySize]
				}
			}
			continue
		}

		consumed := p.parseBody(buf)
		buf = buf[consumed:]

		if p.phase == parserAcquiringHeader {
			p.trackSequence()
			p.dispatcher.handleMessage(p.header, p.bodyBuf)
		}
	}
	return nil
}

func (p *frameParser) parseHeader(buf []byte) uint32 {
	var consumed uint32

	for len(buf) > 0 {
		toWrite := minU32(messageHeaderSize-p.position, uint32(len(buf)))
		copy(p.headerBuf[p.position:p.position+toWrite], buf[:toWrite])
		buf = buf[toWrite:]
		consumed += toWrite
		p.position += toWrite

		if p.position == messageHeaderSize {
			p.position = 0
			p.header = decodeMessageHeader(p.headerBuf[:])
			p.header.MessageType &= 0xFFFF

			if p.header.BodySize > 0 {
				p.phase = parserReadingData
			}
			return consumed
		}
	}

	return consumed
}

func (p *frameParser) parseBody(buf []byte) uint32 {
	var consumed uint32

	for len(buf) > 0 {
		toWrite := minU32(p.header.BodySize-p.position, uint32(len(buf)))
		copy(p.bodyBuf[p.position:p.position+toWrite], buf[:toWrite])
		buf = buf[toWrite:]
		consumed += toWrite
		p.position += toWrite

		if p.position == p.header.BodySize {
			p.position = 0
			p.phase = parserAcquiringHeader
			return consumed
		}
	}

	return consumed
}

func (p *frameParser) validateHeader() error {
	if (p.header.ProtocolID>>16) != (uint32(ProtocolVersion)>>16) {
		return fmt.Errorf("spyserver: server is running an unsupported protocol version (got %#x, want %#x)",
			p.header.ProtocolID>>16, uint32(ProtocolVersion)>>16)
	}
	if p.header.BodySize > MaxMessageBodySize {
		return fmt.Errorf("spyserver: server sent more than the maximum message body size (%d > %d)",
			p.header.BodySize, MaxMessageBodySize)
	}
	return nil
}

// trackSequence updates the dropped-buffer accounting for the IQ message
// family. DEVICE_INFO, CLIENT_SYNC, and FFT frames do not participate in
// this per-stream sequence counter.
func (p *frameParser) trackSequence() {
	switch p.header.MessageType {
	case msgTypeUint8IQ, msgTypeInt16IQ, msgTypeFloatIQ:
	default:
		return
	}

	gap := p.header.SequenceNumber - p.lastSequenceNumber - 1
	p.lastSequenceNumber = p.header.SequenceNumber
	if gap > 0 {
		p.dispatcher.onSequenceGap(gap)
	}
}

func decodeMessageHeader(b []byte) messageHeader {
	return messageHeader{
		ProtocolID:     binary.LittleEndian.Uint32(b[0:4]),
		MessageType:    binary.LittleEndian.Uint32(b[4:8]),
		StreamType:     binary.LittleEndian.Uint32(b[8:12]),
		SequenceNumber: binary.LittleEndian.Uint32(b[12:16]),
		BodySize:       binary.LittleEndian.Uint32(b[16:20]),
	}
}
