package pgwire

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"
)

func typedFrame(kind byte, body []byte) []byte {
	buf := []byte{kind}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(body)+4))
	return append(buf, body...)
}

func startupFrame(params []StartupParameter) []byte {
	return AppendStartup(nil, params)
}

func TestSplitterTypedFrames(t *testing.T) {
	sp := NewSplitter(false)
	stream := append([]byte{}, typedFrame('Z', []byte{'I'})...)
	stream = append(stream, typedFrame('C', append([]byte("SELECT 1"), 0))...)
	sp.Feed(stream)

	f, ok := sp.Next()
	if !ok {
		t.Fatal("expected first frame")
	}
	if f.Kind != 'Z' || !bytes.Equal(f.Body, []byte{'I'}) {
		t.Errorf("unexpected first frame: kind=%c body=%q", f.Kind, f.Body)
	}

	f, ok = sp.Next()
	if !ok {
		t.Fatal("expected second frame")
	}
	if f.Kind != 'C' {
		t.Errorf("unexpected second frame kind %c", f.Kind)
	}

	if _, ok := sp.Next(); ok {
		t.Error("expected no third frame")
	}
	if sp.Pending() != 0 {
		t.Errorf("expected empty buffer, %d bytes pending", sp.Pending())
	}
}

func TestSplitterIncompleteFrame(t *testing.T) {
	frame := typedFrame('D', bytes.Repeat([]byte{0xAB}, 64))

	sp := NewSplitter(false)
	for i := 0; i < len(frame)-1; i++ {
		sp.Feed(frame[i : i+1])
		if _, ok := sp.Next(); ok {
			t.Fatalf("frame complete after %d of %d bytes", i+1, len(frame))
		}
	}
	sp.Feed(frame[len(frame)-1:])
	f, ok := sp.Next()
	if !ok {
		t.Fatal("expected complete frame after final byte")
	}
	if !bytes.Equal(f.Raw, frame) {
		t.Error("reassembled frame differs from input")
	}
}

func TestSplitterStartupThenTyped(t *testing.T) {
	startup := startupFrame([]StartupParameter{{"user", "alice"}, {"database", "app"}})
	query := typedFrame('Q', append([]byte("SELECT 1"), 0))

	sp := NewSplitter(true)
	sp.Feed(startup)
	sp.Feed(query)

	f, ok := sp.Next()
	if !ok {
		t.Fatal("expected startup frame")
	}
	if f.Kind != 0 {
		t.Errorf("startup frame kind = %d, want 0", f.Kind)
	}
	if !bytes.Equal(f.Raw, startup) {
		t.Error("startup frame bytes differ from input")
	}

	f, ok = sp.Next()
	if !ok {
		t.Fatal("expected typed frame after startup")
	}
	if f.Kind != 'Q' {
		t.Errorf("frame kind = %c, want Q", f.Kind)
	}
}

// Streaming equivalence: any partition of a valid stream into read chunks
// yields the same frame sequence as one contiguous feed.
func TestSplitterChunkingEquivalence(t *testing.T) {
	var stream []byte
	stream = append(stream, startupFrame([]StartupParameter{{"user", "bob"}})...)
	stream = append(stream, typedFrame('Q', append([]byte("SELECT version()"), 0))...)
	stream = append(stream, typedFrame('P', append([]byte("s1\x00SELECT $1\x00"), 0, 0))...)
	stream = append(stream, typedFrame('S', nil)...)
	stream = append(stream, typedFrame('X', nil)...)

	collect := func(chunks [][]byte) [][]byte {
		sp := NewSplitter(true)
		var frames [][]byte
		for _, chunk := range chunks {
			sp.Feed(chunk)
			for {
				f, ok := sp.Next()
				if !ok {
					break
				}
				frames = append(frames, append([]byte{}, f.Raw...))
			}
		}
		return frames
	}

	want := collect([][]byte{stream})

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		var chunks [][]byte
		rest := stream
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		got := collect(chunks)
		if len(got) != len(want) {
			t.Fatalf("trial %d: %d frames, want %d", trial, len(got), len(want))
		}
		for i := range got {
			if !bytes.Equal(got[i], want[i]) {
				t.Fatalf("trial %d: frame %d differs", trial, i)
			}
		}
	}
}

func TestSplitterRejectsBogusLengths(t *testing.T) {
	sp := NewSplitter(false)
	// Declared length below the 4-byte minimum.
	sp.Feed([]byte{'Q', 0, 0, 0, 2})
	if _, ok := sp.Next(); ok {
		t.Fatal("expected no frame for bogus length")
	}
	if sp.Err() == nil {
		t.Error("expected framing error for length 2")
	}

	sp = NewSplitter(true)
	sp.Feed([]byte{0, 0, 0, 4})
	if _, ok := sp.Next(); ok {
		t.Fatal("expected no startup frame for length 4")
	}
	if sp.Err() == nil {
		t.Error("expected framing error for startup length 4")
	}
}

// Truncated garbage must never panic, whatever the prefix.
func TestSplitterNeverPanicsOnTruncation(t *testing.T) {
	frame := typedFrame('T', bytes.Repeat([]byte{0x01}, 32))
	for cut := 0; cut < len(frame); cut++ {
		sp := NewSplitter(false)
		sp.Feed(frame[:cut])
		for {
			if _, ok := sp.Next(); !ok {
				break
			}
		}
	}
}

func TestSplitterExpectStartup(t *testing.T) {
	sp := NewSplitter(true)
	// SSLRequest consumes startup mode...
	ssl := binary.BigEndian.AppendUint32(nil, 8)
	ssl = binary.BigEndian.AppendUint32(ssl, SSLRequestCode)
	sp.Feed(ssl)
	f, ok := sp.Next()
	if !ok || f.Kind != 0 {
		t.Fatal("expected SSLRequest frame")
	}
	// ...and the real startup needs it re-armed.
	sp.ExpectStartup()
	sp.Feed(startupFrame([]StartupParameter{{"user", "carol"}}))
	f, ok = sp.Next()
	if !ok || f.Kind != 0 {
		t.Fatal("expected startup frame after re-arm")
	}
	msg, err := Decode(f, ClientToServer)
	if err != nil {
		t.Fatalf("decoding startup: %v", err)
	}
	if _, isStartup := msg.(StartupMessage); !isStartup {
		t.Errorf("decoded %T, want StartupMessage", msg)
	}
}

func BenchmarkSplitterSmallFrames(b *testing.B) {
	frame := typedFrame('D', bytes.Repeat([]byte{0x42}, 100))
	stream := bytes.Repeat(frame, 100)
	b.SetBytes(int64(len(stream)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sp := NewSplitter(false)
		sp.Feed(stream)
		for {
			if _, ok := sp.Next(); !ok {
				break
			}
		}
	}
}
