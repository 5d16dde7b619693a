package pgwire

import (
	"encoding/binary"
	"fmt"
)

// Typed frames carry a type byte plus a 4-byte length that includes itself,
// so a frame is never smaller than 5 bytes on the wire.
const minTypedFrame = 5

// maxFrameLength bounds the declared length of a single message. Anything
// larger is treated as a protocol error rather than an allocation request.
const maxFrameLength = 1 << 24

// maxStartupLength bounds the pre-auth startup frame.
const maxStartupLength = 10000

// Splitter slices a byte stream into protocol frames. Bytes arrive in
// arbitrary chunks via Feed; Next returns complete frames without copying
// their payloads. A returned Frame borrows the internal buffer and stays
// valid until the next call to Feed.
//
// A client-facing splitter starts in startup mode, where the next frame is
// an unprefixed startup-family packet (length || body). After one startup
// frame the splitter switches to typed mode (type || length || body).
type Splitter struct {
	buf     []byte
	off     int
	startup bool
	err     error
}

// NewSplitter returns a splitter. With startup true the first frame is
// parsed as a startup-family packet.
func NewSplitter(startup bool) *Splitter {
	return &Splitter{startup: startup}
}

// ExpectStartup re-arms startup mode. Used after answering an SSLRequest,
// when the client sends a second unprefixed startup packet.
func (s *Splitter) ExpectStartup() {
	s.startup = true
}

// Feed appends a chunk of stream bytes. Consumed bytes are compacted away
// first, which invalidates frames returned by earlier Next calls.
func (s *Splitter) Feed(p []byte) {
	if s.off > 0 {
		n := copy(s.buf, s.buf[s.off:])
		s.buf = s.buf[:n]
		s.off = 0
	}
	s.buf = append(s.buf, p...)
}

// Pending returns the number of buffered bytes not yet returned as frames.
func (s *Splitter) Pending() int {
	return len(s.buf) - s.off
}

// Err reports a protocol-level framing error (nonsense length prefix).
// Once set, Next always returns false.
func (s *Splitter) Err() error {
	return s.err
}

// Next returns the next complete frame, or ok=false when the buffer holds
// only a partial frame (or a framing error occurred; see Err). It never
// reads past the buffered bytes.
func (s *Splitter) Next() (Frame, bool) {
	if s.err != nil {
		return Frame{}, false
	}
	if s.startup {
		return s.nextStartup()
	}
	return s.nextTyped()
}

func (s *Splitter) nextStartup() (Frame, bool) {
	avail := s.buf[s.off:]
	if len(avail) < 4 {
		return Frame{}, false
	}
	length := int(binary.BigEndian.Uint32(avail[:4]))
	if length < 8 || length > maxStartupLength {
		s.err = fmt.Errorf("invalid startup message length %d", length)
		return Frame{}, false
	}
	if len(avail) < length {
		return Frame{}, false
	}
	raw := avail[:length]
	s.off += length
	s.startup = false
	return Frame{Kind: 0, Raw: raw, Body: raw[4:]}, true
}

func (s *Splitter) nextTyped() (Frame, bool) {
	avail := s.buf[s.off:]
	if len(avail) < minTypedFrame {
		return Frame{}, false
	}
	length := int(binary.BigEndian.Uint32(avail[1:5]))
	if length < 4 || length > maxFrameLength {
		s.err = fmt.Errorf("invalid message length %d for type %q", length, avail[0])
		return Frame{}, false
	}
	if len(avail) < 1+length {
		return Frame{}, false
	}
	raw := avail[:1+length]
	s.off += 1 + length
	return Frame{Kind: raw[0], Raw: raw, Body: raw[5:]}, true
}
