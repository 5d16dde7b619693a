package inspect

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ybrs/postgres-protocol-debug-tools/internal/pgwire"
)

func writeBackend(conn net.Conn, kind byte, body []byte) error {
	buf := []byte{kind}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(body)+4))
	buf = append(buf, body...)
	_, err := conn.Write(buf)
	return err
}

func appendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

func readClientFrame(conn net.Conn) (pgwire.Frame, error) {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return pgwire.ReadTypedFrame(conn)
}

func readStartup(conn net.Conn) []byte {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil
	}
	rest := make([]byte, binary.BigEndian.Uint32(lenBuf[:])-4)
	if _, err := io.ReadFull(conn, rest); err != nil {
		return nil
	}
	return append(lenBuf[:], rest...)
}

func testOptions(addr string) Options {
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)
	return Options{
		Host:         host,
		Port:         port,
		User:         "user",
		Database:     "testdb",
		Query:        "SELECT id FROM t",
		Password:     "password",
		BinaryResult: false,
		Timeout:      5 * time.Second,
	}
}

// Full diagnostic flow against a scripted backend: md5 auth, one extended
// query, one row, terminate.
func TestClientRunsExtendedQuery(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	salt := [4]byte{0x12, 0x34, 0x56, 0x78}
	serverDone := make(chan string, 1)

	go func() {
		fail := func(msg string) { serverDone <- msg }
		conn, err := ln.Accept()
		if err != nil {
			fail("accept: " + err.Error())
			return
		}
		defer conn.Close()

		startup := readStartup(conn)
		if !bytes.Contains(startup, []byte("user\x00user\x00")) ||
			!bytes.Contains(startup, []byte("application_name\x00"+ApplicationName+"\x00")) {
			fail("startup parameters missing")
			return
		}

		// Request md5 auth and check the response hash.
		md5Req := binary.BigEndian.AppendUint32(nil, 5)
		md5Req = append(md5Req, salt[:]...)
		writeBackend(conn, 'R', md5Req)

		pw, err := readClientFrame(conn)
		if err != nil {
			fail("reading password: " + err.Error())
			return
		}
		if pw.Kind != 'p' {
			fail("expected password message, got " + string(pw.Kind))
			return
		}
		wantPw := MD5PasswordResponse("user", "password", salt)
		if !bytes.Equal(pw.Body, append([]byte(wantPw), 0)) {
			fail("wrong md5 password response")
			return
		}

		writeBackend(conn, 'R', binary.BigEndian.AppendUint32(nil, 0))
		writeBackend(conn, 'S', appendCString(appendCString(nil, "server_version"), "15.0"))
		bkd := binary.BigEndian.AppendUint32(nil, 4242)
		bkd = binary.BigEndian.AppendUint32(bkd, 9999)
		writeBackend(conn, 'K', bkd)
		writeBackend(conn, 'Z', []byte{'I'})

		// Extended-query batch: Parse, Bind, Describe, Execute, Sync.
		wantKinds := []byte{'P', 'B', 'D', 'E', 'S'}
		for _, want := range wantKinds {
			f, err := readClientFrame(conn)
			if err != nil {
				fail("reading client frame: " + err.Error())
				return
			}
			if f.Kind != want {
				fail("expected " + string(want) + ", got " + string(f.Kind))
				return
			}
			switch f.Kind {
			case 'P':
				if !bytes.HasPrefix(f.Body, []byte("stmt1\x00SELECT id FROM t\x00")) {
					fail("unexpected Parse body")
					return
				}
			case 'B':
				msg, err := pgwire.Decode(f, pgwire.ClientToServer)
				if err != nil {
					fail("decoding Bind: " + err.Error())
					return
				}
				bind := msg.(pgwire.Bind)
				if bind.Portal != "portal1" || bind.Statement != "stmt1" {
					fail("unexpected Bind names")
					return
				}
				if len(bind.ResultFormats) != 1 || bind.ResultFormats[0] != 0 {
					fail("expected text result format")
					return
				}
			}
		}

		writeBackend(conn, '1', nil) // ParseComplete
		writeBackend(conn, '2', nil) // BindComplete

		var rowDesc []byte
		rowDesc = binary.BigEndian.AppendUint16(rowDesc, 1)
		rowDesc = appendCString(rowDesc, "id")
		rowDesc = binary.BigEndian.AppendUint32(rowDesc, 0)
		rowDesc = binary.BigEndian.AppendUint16(rowDesc, 1)
		rowDesc = binary.BigEndian.AppendUint32(rowDesc, 23)
		rowDesc = binary.BigEndian.AppendUint16(rowDesc, 4)
		rowDesc = binary.BigEndian.AppendUint32(rowDesc, 0xFFFFFFFF)
		rowDesc = binary.BigEndian.AppendUint16(rowDesc, 0)
		writeBackend(conn, 'T', rowDesc)

		var row []byte
		row = binary.BigEndian.AppendUint16(row, 1)
		row = binary.BigEndian.AppendUint32(row, 2)
		row = append(row, '4', '2')
		writeBackend(conn, 'D', row)

		writeBackend(conn, 'C', appendCString(nil, "SELECT 1"))
		writeBackend(conn, 'Z', []byte{'I'})

		f, err := readClientFrame(conn)
		if err != nil {
			fail("reading Terminate: " + err.Error())
			return
		}
		if f.Kind != 'X' {
			fail("expected Terminate, got " + string(f.Kind))
			return
		}
		serverDone <- ""
	}()

	var out bytes.Buffer
	if err := Run(testOptions(ln.Addr().String()), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if msg := <-serverDone; msg != "" {
		t.Fatalf("server: %s", msg)
	}

	report := out.String()
	for _, want := range []string{
		"parameter: server_version = 15.0",
		"backend key data: pid=4242 secret=9999",
		"parse complete: true",
		"bind complete: true",
		"row description (1 column(s)):",
		"name='id' oid=23 format=text",
		"text:'42'",
		"command tag: SELECT 1",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("output missing %q\noutput:\n%s", want, report)
		}
	}
}

// SASL is the one auth family the inspector refuses.
func TestClientRejectsSASL(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		readStartup(conn)

		sasl := binary.BigEndian.AppendUint32(nil, 10)
		sasl = appendCString(sasl, "SCRAM-SHA-256")
		sasl = append(sasl, 0)
		writeBackend(conn, 'R', sasl)
		// Wait for the client to give up.
		io.Copy(io.Discard, conn)
	}()

	var out bytes.Buffer
	err = Run(testOptions(ln.Addr().String()), &out)
	if err == nil {
		t.Fatal("expected SASL to be rejected")
	}
	if !strings.Contains(err.Error(), "SASL authentication is not supported") ||
		!strings.Contains(err.Error(), "SCRAM-SHA-256") {
		t.Errorf("error = %v", err)
	}
}

// Cleartext auth requires a password; a missing one is a clean error.
func TestClientCleartextWithoutPassword(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		readStartup(conn)
		writeBackend(conn, 'R', binary.BigEndian.AppendUint32(nil, 3))
		io.Copy(io.Discard, conn)
	}()

	opts := testOptions(ln.Addr().String())
	opts.Password = ""
	var out bytes.Buffer
	err = Run(opts, &out)
	if err == nil || !strings.Contains(err.Error(), "cleartext password") {
		t.Errorf("error = %v", err)
	}
}
