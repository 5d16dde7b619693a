package pgwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadTypedFrame blocks until one complete typed frame is read. Used by the
// diagnostic client, which owns its socket and has no use for chunked
// splitting. The returned frame owns its bytes.
func ReadTypedFrame(r io.Reader) (Frame, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}
	length := int(binary.BigEndian.Uint32(header[1:5]))
	if length < 4 || length > maxFrameLength {
		return Frame{}, fmt.Errorf("invalid message length %d for type %q", length, header[0])
	}
	raw := make([]byte, 1+length)
	copy(raw, header[:])
	if _, err := io.ReadFull(r, raw[5:]); err != nil {
		return Frame{}, err
	}
	return Frame{Kind: raw[0], Raw: raw, Body: raw[5:]}, nil
}
