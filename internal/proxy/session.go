package proxy

import (
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ybrs/postgres-protocol-debug-tools/internal/config"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/logging"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/metrics"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/pgwire"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/table"
)

const readChunkSize = 8192

// writeCloser is the half-close capability shared by *net.TCPConn and
// *tls.Conn.
type writeCloser interface {
	CloseWrite() error
}

// session proxies one client connection: SSL negotiation, upstream dial,
// then two concurrent pumps that decode, log and forward each direction.
// timing and tables are shared between the pumps; both serialize internally
// and never hold a lock across I/O.
type session struct {
	cfg       *config.Config
	tlsConfig *tls.Config
	metrics   *metrics.Collector

	client net.Conn
	addr   string

	timing *ConnectionTiming
	tables *table.State

	log  *logrus.Entry // lifecycle lines
	plog *logrus.Entry // per-message protocol lines
}

func newSession(cfg *config.Config, tlsConfig *tls.Config, m *metrics.Collector, client net.Conn, addr string) *session {
	return &session{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		metrics:   m,
		client:    client,
		addr:      addr,
		timing:    NewConnectionTiming(),
		tables:    table.NewState(cfg.Table),
		log:       logging.Target("proxy"),
		plog:      logging.Target("proxy::protocol"),
	}
}

func (s *session) run() error {
	stream, sp, done, err := s.negotiate()
	if err != nil || done {
		return err
	}

	startup, err := s.readStartupFrame(stream, sp)
	if err != nil {
		return err
	}

	s.log.Infof("[%s] Connecting to upstream %s", s.addr, s.cfg.UpstreamAddr())
	upstream, err := net.Dial("tcp", s.cfg.UpstreamAddr())
	if err != nil {
		return fmt.Errorf("connecting to upstream: %w", err)
	}
	defer upstream.Close()
	s.log.Infof("[%s] Connected to upstream", s.addr)

	if _, err := upstream.Write(startup.Raw); err != nil {
		return fmt.Errorf("forwarding startup message: %w", err)
	}
	s.plog.Infof("[%s] → Startup message (length: %d)", s.addr, len(startup.Raw))
	s.metrics.BytesForwarded("client_to_upstream", len(startup.Raw))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pump(stream, upstream, sp, pgwire.ClientToServer)
	}()
	go func() {
		defer wg.Done()
		s.pump(upstream, stream, pgwire.NewSplitter(false), pgwire.ServerToClient)
	}()
	wg.Wait()

	stream.Close()
	upstream.Close()
	s.log.Infof("[%s] Connection closed (session %s)", s.addr, FormatDuration(s.timing.SessionElapsed()))
	return nil
}

// negotiate runs the pre-framing state machine on the first 8 bytes of the
// connection: SSLRequest (answered S or N), CancelRequest (forwarded blind)
// or the prefix of a plain startup message. done is true when the session
// was fully handled here (cancel passthrough or early disconnect).
func (s *session) negotiate() (net.Conn, *pgwire.Splitter, bool, error) {
	var first [8]byte
	if _, err := io.ReadFull(s.client, first[:]); err != nil {
		s.log.Warnf("[%s] Client disconnected during startup", s.addr)
		return nil, nil, true, nil
	}

	length := binary.BigEndian.Uint32(first[:4])
	code := binary.BigEndian.Uint32(first[4:8])

	if length == 8 && code == pgwire.CancelRequestCode {
		s.plog.Infof("[%s] → CancelRequest", s.addr)
		return nil, nil, true, s.forwardCancel(first[:])
	}

	if length == 8 && code == pgwire.SSLRequestCode {
		s.log.Infof("[%s] Client requesting SSL", s.addr)

		if s.tlsConfig != nil {
			if _, err := s.client.Write([]byte{'S'}); err != nil {
				return nil, nil, false, fmt.Errorf("answering SSLRequest: %w", err)
			}
			s.log.Infof("[%s] SSL accepted, performing handshake", s.addr)

			tlsConn := tls.Server(s.client, s.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				s.metrics.SSLHandshake("failed")
				return nil, nil, false, fmt.Errorf("SSL handshake failed: %w", err)
			}
			s.metrics.SSLHandshake("accepted")
			s.log.Infof("[%s] SSL handshake complete", s.addr)
			return tlsConn, pgwire.NewSplitter(true), false, nil
		}

		if _, err := s.client.Write([]byte{'N'}); err != nil {
			return nil, nil, false, fmt.Errorf("answering SSLRequest: %w", err)
		}
		s.metrics.SSLHandshake("rejected")
		s.log.Infof("[%s] SSL rejected (not configured)", s.addr)
		return s.client, pgwire.NewSplitter(true), false, nil
	}

	// Plain startup: the 8 bytes already read are the frame prefix.
	sp := pgwire.NewSplitter(true)
	sp.Feed(first[:])
	return s.client, sp, false, nil
}

// readStartupFrame reads until the startup message is complete.
func (s *session) readStartupFrame(stream net.Conn, sp *pgwire.Splitter) (pgwire.Frame, error) {
	buf := make([]byte, readChunkSize)
	for {
		if f, ok := sp.Next(); ok {
			return f, nil
		}
		if err := sp.Err(); err != nil {
			return pgwire.Frame{}, fmt.Errorf("reading startup message: %w", err)
		}
		n, err := stream.Read(buf)
		if n > 0 {
			sp.Feed(buf[:n])
			continue
		}
		if err != nil {
			return pgwire.Frame{}, fmt.Errorf("reading startup message: %w", err)
		}
	}
}

// forwardCancel relays a CancelRequest without further framing: the 8 bytes
// already read go upstream, then bytes are copied blind in both directions.
func (s *session) forwardCancel(first []byte) error {
	upstream, err := net.Dial("tcp", s.cfg.UpstreamAddr())
	if err != nil {
		return fmt.Errorf("connecting to upstream for cancel: %w", err)
	}
	defer upstream.Close()

	if _, err := upstream.Write(first); err != nil {
		return fmt.Errorf("forwarding cancel request: %w", err)
	}
	relay(s.client, upstream)
	return nil
}

// relay copies data bidirectionally until either side closes. Used only for
// the cancel passthrough, where no framing applies.
func relay(client, upstream net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		io.Copy(upstream, client)
		if cw, ok := upstream.(writeCloser); ok {
			cw.CloseWrite()
		}
	}()
	go func() {
		defer wg.Done()
		io.Copy(client, upstream)
		if cw, ok := client.(writeCloser); ok {
			cw.CloseWrite()
		}
	}()

	wg.Wait()
}

// pump drives one direction: read a chunk, split into frames, decode and
// log each frame, forward its raw bytes, keep partial tails for the next
// read. On EOF or error it half-closes the destination so the peer pump
// winds down on its own EOF.
func (s *session) pump(src, dst net.Conn, sp *pgwire.Splitter, dir pgwire.Direction) {
	defer func() {
		if cw, ok := dst.(writeCloser); ok {
			cw.CloseWrite()
		}
	}()

	peer := "client"
	if dir == pgwire.ServerToClient {
		peer = "upstream"
	}

	buf := make([]byte, readChunkSize)
	for {
		if err := s.drainFrames(sp, dst, dir); err != nil {
			s.log.Errorf("[%s] %v", s.addr, err)
			return
		}
		if n := sp.Pending(); n > 0 {
			s.plog.Debugf("[%s] Partial message (%d bytes buffered)", s.addr, n)
		}

		n, err := src.Read(buf)
		if n > 0 {
			sp.Feed(buf[:n])
		}
		if err != nil {
			// Forward any complete frames that arrived with the error.
			if derr := s.drainFrames(sp, dst, dir); derr != nil {
				s.log.Errorf("[%s] %v", s.addr, derr)
				return
			}
			if err == io.EOF {
				if dir == pgwire.ClientToServer {
					s.log.Infof("[%s] Client closed connection (session %s)", s.addr, FormatDuration(s.timing.SessionElapsed()))
				} else {
					s.log.Infof("[%s] Upstream closed connection (session %s)", s.addr, FormatDuration(s.timing.SessionElapsed()))
				}
			} else {
				s.log.Errorf("[%s] Failed to read from %s: %v", s.addr, peer, err)
			}
			return
		}
	}
}

func (s *session) drainFrames(sp *pgwire.Splitter, dst net.Conn, dir pgwire.Direction) error {
	for {
		f, ok := sp.Next()
		if !ok {
			break
		}
		s.observeFrame(f, dir)
		peer, direction := "upstream", "client_to_upstream"
		if dir == pgwire.ServerToClient {
			peer, direction = "client", "upstream_to_client"
		}
		if _, err := dst.Write(f.Raw); err != nil {
			return fmt.Errorf("failed to write to %s: %w", peer, err)
		}
		s.metrics.BytesForwarded(direction, len(f.Raw))
	}
	if err := sp.Err(); err != nil {
		return fmt.Errorf("protocol error: %w", err)
	}
	return nil
}

// observeFrame decodes, logs and applies state updates for one frame.
// Decoding failures degrade to a warning; the frame is forwarded regardless.
func (s *session) observeFrame(f pgwire.Frame, dir pgwire.Direction) {
	msg, derr := pgwire.Decode(f, dir)
	arrow := dir.Arrow()

	if derr != nil {
		s.plog.Warnf("[%s] %s %s (decode failed: %v; forwarded raw)", s.addr, arrow, msg.Summary(), derr)
		s.metrics.DecodeWarning()
	} else {
		// Footer of the previous result set comes out before the message
		// that ends or replaces it.
		s.logTableClose(msg)

		s.plog.Infof("[%s] %s %s%s", s.addr, arrow, msg.Summary(), s.completionSuffix(msg, dir))
		if d, ok := msg.(pgwire.Detailer); ok {
			for _, line := range d.Details() {
				s.plog.Infof("[%s] %s", s.addr, line)
			}
		}

		s.applyTiming(msg, dir)
		s.logTableRows(msg, dir)
	}
	s.metrics.FrameDecoded(dir.String(), msg.Name())

	if s.cfg.HexDump {
		for _, line := range pgwire.HexDumpLines(f.Raw) {
			s.plog.Infof("[%s] %s", s.addr, line)
		}
	}
}

// applyTiming marks request starts on the client side.
func (s *session) applyTiming(msg pgwire.Message, dir pgwire.Direction) {
	if dir != pgwire.ClientToServer {
		return
	}
	switch msg.(type) {
	case pgwire.Query:
		s.timing.Mark(TimingSimpleQuery)
	case pgwire.Parse:
		s.timing.Mark(TimingParse)
	case pgwire.Bind:
		s.timing.Mark(TimingBind)
	case pgwire.Execute:
		s.timing.Mark(TimingExecute)
	}
}

// completionSuffix measures elapsed time at completion messages on the
// server side. CommandComplete tries the simple-query slot first, then
// Execute; an empty slot logs the completion without a duration.
func (s *session) completionSuffix(msg pgwire.Message, dir pgwire.Direction) string {
	if dir != pgwire.ServerToClient {
		return ""
	}
	var (
		d  time.Duration
		ok bool
	)
	switch msg.(type) {
	case pgwire.CommandComplete:
		if d, ok = s.timing.Finish(TimingSimpleQuery); !ok {
			d, ok = s.timing.Finish(TimingExecute)
		}
	case pgwire.ParseComplete:
		d, ok = s.timing.Finish(TimingParse)
	case pgwire.BindComplete:
		d, ok = s.timing.Finish(TimingBind)
	}
	if !ok {
		return ""
	}
	return " (took " + FormatDuration(d) + ")"
}

// logTableClose flushes the open table when a result set ends (or a new
// RowDescription replaces it mid-stream).
func (s *session) logTableClose(msg pgwire.Message) {
	if !s.tables.Enabled() {
		return
	}
	var lines []string
	switch m := msg.(type) {
	case pgwire.RowDescription:
		lines = s.tables.SetRowDescription(m.Fields)
	case pgwire.CommandComplete, pgwire.EmptyQueryResponse, pgwire.ErrorResponse:
		lines = s.tables.FinishResultSet()
	}
	for _, line := range lines {
		s.plog.Infof("[%s] %s", s.addr, line)
	}
}

// logTableRows renders DataRow frames into the current table.
func (s *session) logTableRows(msg pgwire.Message, dir pgwire.Direction) {
	if dir != pgwire.ServerToClient || !s.tables.Enabled() {
		return
	}
	row, ok := msg.(pgwire.DataRow)
	if !ok {
		return
	}
	values := make([]string, len(row.Columns))
	for i, col := range row.Columns {
		values[i] = pgwire.CellValue(col)
	}
	for _, line := range s.tables.PrintRow(values) {
		s.plog.Infof("[%s] %s", s.addr, line)
	}
}
