// Package pgwire implements framing, decoding and encoding for the
// PostgreSQL v3 frontend/backend protocol. It is transport-agnostic: the
// Splitter consumes raw bytes fed by the caller, and Decode turns complete
// frames into tagged messages used for logging and inspection. Forwarded
// bytes are always taken from Frame.Raw so the wire stream is never altered.
package pgwire

// Direction tells the decoder which peer produced a frame. Several type
// bytes are reused by the protocol ('D' is Describe from a client but
// DataRow from a server), so decoding always dispatches on direction.
type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

// Arrow returns the direction marker used in log lines.
func (d Direction) Arrow() string {
	if d == ClientToServer {
		return "→"
	}
	return "←"
}

func (d Direction) String() string {
	if d == ClientToServer {
		return "client"
	}
	return "server"
}

// Special pre-startup request codes carried in the protocol-version slot.
const (
	SSLRequestCode    = 80877103
	CancelRequestCode = 80877102

	// ProtocolVersion is v3.0 as sent in a StartupMessage.
	ProtocolVersion = 3 << 16
)

// Frame is one complete protocol message as read off the wire.
// Kind is 0 for the unprefixed startup-family frames (StartupMessage,
// SSLRequest, CancelRequest), which carry only a length-inclusive prefix.
// Raw holds the full wire bytes including the header; Body is a view into
// Raw covering the payload. Both views are only valid until the splitter
// that produced them is fed more data.
type Frame struct {
	Kind byte
	Raw  []byte
	Body []byte
}
