// Package inspect implements the diagnostic client: a synchronous,
// single-connection tool that performs startup and authentication, runs one
// extended-query cycle and reports the structured responses.
package inspect

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ybrs/postgres-protocol-debug-tools/internal/pgwire"
)

// ApplicationName is sent in the startup message.
const ApplicationName = "postgres-protocol-inspector"

// Options configure a diagnostic run.
type Options struct {
	Host         string
	Port         int
	User         string
	Database     string
	Query        string
	Password     string
	BinaryResult bool
	Timeout      time.Duration
}

// Conn is one diagnostic connection.
type Conn struct {
	conn    net.Conn
	timeout time.Duration
	out     io.Writer
}

// Connect dials the server with the configured timeout applied to all
// reads and writes, and TCP_NODELAY set.
func Connect(opts Options, out io.Writer) (*Conn, error) {
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	conn, err := net.DialTimeout("tcp", addr, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to server: %w", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			conn.Close()
			return nil, fmt.Errorf("configuring TCP_NODELAY: %w", err)
		}
	}
	return &Conn{conn: conn, timeout: opts.Timeout, out: out}, nil
}

// Close closes the socket.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) write(buf []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err := c.conn.Write(buf)
	return err
}

// readMessage blocks for the next backend message.
func (c *Conn) readMessage() (pgwire.Message, error) {
	c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	f, err := pgwire.ReadTypedFrame(c.conn)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("server closed the connection unexpectedly")
		}
		return nil, fmt.Errorf("reading from socket: %w", err)
	}
	msg, derr := pgwire.Decode(f, pgwire.ServerToClient)
	if derr != nil {
		return nil, fmt.Errorf("parsing backend message: %w", derr)
	}
	return msg, nil
}

// Startup sends the startup message and runs the authentication loop until
// the server is ready for queries.
func (c *Conn) Startup(opts Options) error {
	startup := pgwire.AppendStartup(nil, []pgwire.StartupParameter{
		{Name: "user", Value: opts.User},
		{Name: "database", Value: opts.Database},
		{Name: "client_encoding", Value: "UTF8"},
		{Name: "application_name", Value: ApplicationName},
	})
	if err := c.write(startup); err != nil {
		return fmt.Errorf("sending startup message: %w", err)
	}
	return c.consumeAuthResponses(opts)
}

func (c *Conn) consumeAuthResponses(opts Options) error {
	for {
		msg, err := c.readMessage()
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case pgwire.AuthenticationOk:
			continue

		case pgwire.AuthenticationCleartextPassword:
			if opts.Password == "" {
				return fmt.Errorf("server requested cleartext password but none provided")
			}
			if err := c.sendPassword(opts.Password); err != nil {
				return err
			}

		case pgwire.AuthenticationMD5Password:
			if opts.Password == "" {
				return fmt.Errorf("server requested md5 password authentication but none provided")
			}
			if err := c.sendPassword(MD5PasswordResponse(opts.User, opts.Password, m.Salt)); err != nil {
				return err
			}

		case pgwire.AuthenticationSASL:
			return fmt.Errorf("SASL authentication is not supported: %v", m.Mechanisms)
		case pgwire.AuthenticationSASLContinue:
			return fmt.Errorf("SASL continuation not supported by inspector")
		case pgwire.AuthenticationSASLFinal:
			return fmt.Errorf("SASL final message not supported by inspector")

		case pgwire.ParameterStatus:
			fmt.Fprintf(c.out, "parameter: %s = %s\n", m.Key, m.Value)
		case pgwire.BackendKeyData:
			fmt.Fprintf(c.out, "backend key data: pid=%d secret=%d\n", m.PID, m.SecretKey)
		case pgwire.ReadyForQuery:
			fmt.Fprintf(c.out, "ready for query (transaction state %c)\n", m.Status)
			return nil
		case pgwire.ErrorResponse:
			return fmt.Errorf("backend error: %s", m.String())
		default:
			fmt.Fprintf(c.out, "startup message ignored: %s\n", msg.Name())
		}
	}
}

func (c *Conn) sendPassword(password string) error {
	if err := c.write(pgwire.AppendPassword(nil, password)); err != nil {
		return fmt.Errorf("sending password message: %w", err)
	}
	return nil
}

// Statement and portal names used for the single extended-query cycle.
const (
	statementName = "stmt1"
	portalName    = "portal1"
)

// RunExtendedQuery sends Parse/Bind/Describe/Execute/Sync in one batch and
// consumes responses until the next ReadyForQuery.
func (c *Conn) RunExtendedQuery(opts Options) (*QueryReport, error) {
	resultFormat := int16(0)
	if opts.BinaryResult {
		resultFormat = 1
	}
	var buf []byte
	buf = pgwire.AppendParse(buf, statementName, opts.Query, nil)
	buf = pgwire.AppendBind(buf, portalName, statementName, nil, nil, []int16{resultFormat})
	buf = pgwire.AppendDescribe(buf, 'P', portalName)
	buf = pgwire.AppendExecute(buf, portalName, 0)
	buf = pgwire.AppendSync(buf)
	if err := c.write(buf); err != nil {
		return nil, fmt.Errorf("sending extended query messages: %w", err)
	}

	report := &QueryReport{}
	for {
		msg, err := c.readMessage()
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case pgwire.ParseComplete:
			fmt.Fprintln(c.out, "parse response: ParseComplete")
			report.ParseComplete = true
		case pgwire.BindComplete:
			fmt.Fprintln(c.out, "bind response: BindComplete")
			report.BindComplete = true
		case pgwire.RowDescription:
			fmt.Fprintln(c.out, "row description arrived:")
			debugPrintFields(c.out, m.Fields)
			report.Fields = m.Fields
		case pgwire.DataRow:
			fmt.Fprintln(c.out, "data row received:")
			row := copyColumns(m.Columns)
			debugPrintRow(c.out, report.Fields, row)
			if len(row) != len(report.Fields) {
				fmt.Fprintf(c.out, "warning: row has %d values but description has %d columns\n",
					len(row), len(report.Fields))
			}
			report.Rows = append(report.Rows, row)
		case pgwire.CommandComplete:
			report.CommandTag = m.Tag
		case pgwire.ReadyForQuery:
			return report, nil
		case pgwire.EmptyQueryResponse:
			fmt.Fprintln(c.out, "empty query response")
		case pgwire.ParameterDescription:
			fmt.Fprintf(c.out, "parameter types: %v\n", m.OIDs)
			report.ParamOIDs = m.OIDs
		case pgwire.NoData:
			fmt.Fprintln(c.out, "no data response")
		case pgwire.ErrorResponse:
			return nil, fmt.Errorf("backend error: %s", m.String())
		case pgwire.NoticeResponse:
			fmt.Fprintf(c.out, "notice: %s\n", m.String())
		case pgwire.NotificationResponse:
			fmt.Fprintf(c.out, "notification: channel=%s payload=%s\n", m.Channel, m.Payload)
		default:
			fmt.Fprintf(c.out, "unexpected message: %s\n", msg.Name())
		}
	}
}

// Terminate sends the Terminate message; the server closes the socket.
func (c *Conn) Terminate() error {
	if err := c.write(pgwire.AppendTerminate(nil)); err != nil {
		return fmt.Errorf("sending Terminate message: %w", err)
	}
	return nil
}

// copyColumns detaches row values from the read buffer.
func copyColumns(cols [][]byte) []ColumnValue {
	out := make([]ColumnValue, len(cols))
	for i, col := range cols {
		if col == nil {
			out[i] = ColumnValue{Null: true}
			continue
		}
		b := make([]byte, len(col))
		copy(b, col)
		out[i] = ColumnValue{Bytes: b}
	}
	return out
}

// Run performs the full diagnostic flow against a server.
func Run(opts Options, out io.Writer) error {
	conn, err := Connect(opts, out)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Startup(opts); err != nil {
		return err
	}
	report, err := conn.RunExtendedQuery(opts)
	if err != nil {
		return err
	}
	report.Print(out)
	return conn.Terminate()
}
