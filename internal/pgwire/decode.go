package pgwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// reader walks a message body with bounds checking. Any read past the end
// flips ok to false and returns zero values; decoders check ok once at the
// end instead of after every field.
type reader struct {
	buf []byte
	pos int
	ok  bool
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf, ok: true}
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) u8() byte {
	if r.pos+1 > len(r.buf) {
		r.ok = false
		return 0
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *reader) u16() uint16 {
	if r.pos+2 > len(r.buf) {
		r.ok = false
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u32() uint32 {
	if r.pos+4 > len(r.buf) {
		r.ok = false
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) i16() int16 { return int16(r.u16()) }
func (r *reader) i32() int32 { return int32(r.u32()) }

// cstring reads a NUL-terminated string. The bytes are preserved as-is;
// invalid UTF-8 is tolerated (Go strings carry arbitrary bytes) and only
// rendered lossily at log time.
func (r *reader) cstring() string {
	idx := bytes.IndexByte(r.buf[r.pos:], 0)
	if idx < 0 {
		r.ok = false
		return ""
	}
	s := string(r.buf[r.pos : r.pos+idx])
	r.pos += idx + 1
	return s
}

func (r *reader) bytes(n int) []byte {
	if n < 0 || r.pos+n > len(r.buf) {
		r.ok = false
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Decode parses a frame's body into a tagged message. The direction decides
// how shared type bytes dispatch ('D', 'C', 'E', 'S', 'H' mean different
// things from each peer). A body truncated inside a required field yields
// an Unknown message and a non-nil error; the caller logs a warning and
// forwards the frame anyway. Query, CommandComplete and CopyFail accept a
// missing string terminator, and error/notice field lists keep the fields
// decoded before the cut; these decode without an error. Unrecognized type
// bytes yield Unknown with a nil error.
func Decode(f Frame, dir Direction) (Message, error) {
	if f.Kind == 0 {
		return decodeStartup(f)
	}
	var (
		msg Message
		err error
	)
	if dir == ClientToServer {
		msg, err = decodeClient(f)
	} else {
		msg, err = decodeServer(f)
	}
	if err != nil {
		return Unknown{Kind: f.Kind, Length: len(f.Body)}, err
	}
	return msg, nil
}

func decodeStartup(f Frame) (Message, error) {
	r := newReader(f.Body)
	code := r.u32()
	if !r.ok {
		return Unknown{Kind: 0, Length: len(f.Body)}, fmt.Errorf("startup frame shorter than 4 bytes")
	}
	switch code {
	case SSLRequestCode:
		return SSLRequest{}, nil
	case CancelRequestCode:
		return CancelRequest{}, nil
	}
	msg := StartupMessage{Protocol: code, Length: len(f.Raw)}
	for r.remaining() > 1 {
		name := r.cstring()
		value := r.cstring()
		if !r.ok {
			break
		}
		msg.Parameters = append(msg.Parameters, StartupParameter{Name: name, Value: value})
	}
	return msg, nil
}

func decodeClient(f Frame) (Message, error) {
	body := f.Body
	r := newReader(body)
	switch f.Kind {
	case 'Q':
		sql := r.cstring()
		if !r.ok {
			// Tolerate a missing terminator; the query is the whole body.
			return Query{SQL: string(body)}, nil
		}
		return Query{SQL: sql}, nil

	case 'P':
		msg := Parse{ByteLen: len(body)}
		msg.Statement = r.cstring()
		msg.SQL = r.cstring()
		n := int(r.u16())
		for i := 0; i < n && r.ok; i++ {
			msg.ParamOIDs = append(msg.ParamOIDs, r.u32())
		}
		if !r.ok {
			return nil, fmt.Errorf("truncated Parse body")
		}
		return msg, nil

	case 'B':
		msg := Bind{ByteLen: len(body)}
		msg.Portal = r.cstring()
		msg.Statement = r.cstring()
		nf := int(r.u16())
		for i := 0; i < nf && r.ok; i++ {
			msg.ParamFormats = append(msg.ParamFormats, r.i16())
		}
		np := int(r.u16())
		for i := 0; i < np && r.ok; i++ {
			plen := r.i32()
			if plen == -1 {
				msg.Params = append(msg.Params, nil)
				continue
			}
			msg.Params = append(msg.Params, r.bytes(int(plen)))
		}
		nr := int(r.u16())
		for i := 0; i < nr && r.ok; i++ {
			msg.ResultFormats = append(msg.ResultFormats, r.i16())
		}
		if !r.ok {
			return nil, fmt.Errorf("truncated Bind body")
		}
		return msg, nil

	case 'D':
		target := r.u8()
		name := r.cstring()
		if !r.ok {
			return nil, fmt.Errorf("truncated Describe body")
		}
		return Describe{Target: target, Object: name, ByteLen: len(body)}, nil

	case 'E':
		portal := r.cstring()
		maxRows := r.u32()
		if !r.ok {
			return nil, fmt.Errorf("truncated Execute body")
		}
		return Execute{Portal: portal, MaxRows: maxRows, ByteLen: len(body)}, nil

	case 'C':
		target := r.u8()
		name := r.cstring()
		if !r.ok {
			return nil, fmt.Errorf("truncated Close body")
		}
		return Close{Target: target, Object: name, ByteLen: len(body)}, nil

	case 'S':
		return Sync{}, nil
	case 'H':
		return Flush{}, nil
	case 'X':
		return Terminate{}, nil
	case 'p':
		return PasswordMessage{ByteLen: len(body)}, nil
	case 'd':
		return CopyData{ByteLen: len(body)}, nil
	case 'c':
		return CopyDone{}, nil
	case 'f':
		msg := CopyFail{Message: r.cstring()}
		if !r.ok {
			msg.Message = string(body)
		}
		return msg, nil
	default:
		return Unknown{Kind: f.Kind, Length: len(body)}, nil
	}
}

func decodeServer(f Frame) (Message, error) {
	body := f.Body
	r := newReader(body)
	switch f.Kind {
	case 'R':
		return decodeAuthentication(r, body)

	case 'S':
		name := r.cstring()
		value := r.cstring()
		if !r.ok {
			return nil, fmt.Errorf("truncated ParameterStatus body")
		}
		return ParameterStatus{Key: name, Value: value}, nil

	case 'K':
		pid := r.u32()
		secret := r.u32()
		if !r.ok {
			return nil, fmt.Errorf("truncated BackendKeyData body")
		}
		return BackendKeyData{PID: pid, SecretKey: secret}, nil

	case 'Z':
		status := r.u8()
		if !r.ok {
			return nil, fmt.Errorf("empty ReadyForQuery body")
		}
		return ReadyForQuery{Status: status}, nil

	case 'T':
		n := int(r.u16())
		msg := RowDescription{}
		for i := 0; i < n && r.ok; i++ {
			var field Field
			field.Name = r.cstring()
			field.TableOID = r.u32()
			field.ColumnAttr = r.i16()
			field.TypeOID = r.u32()
			field.TypeSize = r.i16()
			field.TypeMod = r.i32()
			field.Format = r.i16()
			if r.ok {
				msg.Fields = append(msg.Fields, field)
			}
		}
		if !r.ok {
			return nil, fmt.Errorf("truncated RowDescription body")
		}
		return msg, nil

	case 'D':
		n := int(r.u16())
		msg := DataRow{ByteLen: len(body)}
		for i := 0; i < n && r.ok; i++ {
			clen := r.i32()
			if clen == -1 {
				msg.Columns = append(msg.Columns, nil)
				continue
			}
			col := r.bytes(int(clen))
			if r.ok && col == nil {
				col = []byte{}
			}
			msg.Columns = append(msg.Columns, col)
		}
		if !r.ok {
			return nil, fmt.Errorf("truncated DataRow body")
		}
		return msg, nil

	case 'C':
		tag := r.cstring()
		if !r.ok {
			tag = string(body)
		}
		return CommandComplete{Tag: tag}, nil

	case 'E':
		return ErrorResponse{Fields: decodeErrorFields(body)}, nil
	case 'N':
		return NoticeResponse{Fields: decodeErrorFields(body)}, nil

	case 'A':
		pid := r.u32()
		channel := r.cstring()
		payload := r.cstring()
		if !r.ok {
			return nil, fmt.Errorf("truncated NotificationResponse body")
		}
		return NotificationResponse{PID: pid, Channel: channel, Payload: payload}, nil

	case 't':
		n := int(r.u16())
		msg := ParameterDescription{}
		for i := 0; i < n && r.ok; i++ {
			msg.OIDs = append(msg.OIDs, r.u32())
		}
		if !r.ok {
			return nil, fmt.Errorf("truncated ParameterDescription body")
		}
		return msg, nil

	case '1':
		return ParseComplete{}, nil
	case '2':
		return BindComplete{}, nil
	case '3':
		return CloseComplete{}, nil
	case 'n':
		return NoData{}, nil
	case 'I':
		return EmptyQueryResponse{}, nil
	case 's':
		return PortalSuspended{}, nil

	case 'G':
		format, cols, err := decodeCopyResponse(r)
		if err != nil {
			return nil, err
		}
		return CopyInResponse{OverallFormat: format, ColumnFormats: cols}, nil
	case 'H':
		format, cols, err := decodeCopyResponse(r)
		if err != nil {
			return nil, err
		}
		return CopyOutResponse{OverallFormat: format, ColumnFormats: cols}, nil
	case 'W':
		format, cols, err := decodeCopyResponse(r)
		if err != nil {
			return nil, err
		}
		return CopyBothResponse{OverallFormat: format, ColumnFormats: cols}, nil

	case 'd':
		return CopyData{ByteLen: len(body)}, nil
	case 'c':
		return CopyDone{}, nil

	default:
		return Unknown{Kind: f.Kind, Length: len(body)}, nil
	}
}

// Authentication sub-kinds recognized in the 'R' message.
const (
	authOk                = 0
	authCleartextPassword = 3
	authMD5Password       = 5
	authSASL              = 10
	authSASLContinue      = 11
	authSASLFinal         = 12
)

func decodeAuthentication(r *reader, body []byte) (Message, error) {
	code := r.u32()
	if !r.ok {
		return nil, fmt.Errorf("Authentication body shorter than 4 bytes")
	}
	switch code {
	case authOk:
		return AuthenticationOk{}, nil
	case authCleartextPassword:
		return AuthenticationCleartextPassword{}, nil
	case authMD5Password:
		salt := r.bytes(4)
		if !r.ok {
			return nil, fmt.Errorf("AuthenticationMD5Password missing salt")
		}
		var msg AuthenticationMD5Password
		copy(msg.Salt[:], salt)
		return msg, nil
	case authSASL:
		msg := AuthenticationSASL{}
		for r.remaining() > 0 {
			name := r.cstring()
			if !r.ok || name == "" {
				break
			}
			msg.Mechanisms = append(msg.Mechanisms, name)
		}
		return msg, nil
	case authSASLContinue:
		return AuthenticationSASLContinue{Data: body[4:]}, nil
	case authSASLFinal:
		return AuthenticationSASLFinal{Data: body[4:]}, nil
	default:
		return AuthenticationOther{Code: code}, nil
	}
}

// decodeErrorFields walks the code/value pairs of an ErrorResponse or
// NoticeResponse, stopping at the 0x00 terminator. Truncated field lists
// keep whatever was decoded so far; partial errors are still worth logging.
func decodeErrorFields(body []byte) []ErrorField {
	r := newReader(body)
	var fields []ErrorField
	for r.remaining() > 0 {
		code := r.u8()
		if code == 0 || !r.ok {
			break
		}
		value := r.cstring()
		if !r.ok {
			break
		}
		fields = append(fields, ErrorField{Code: code, Value: value})
	}
	return fields
}

func decodeCopyResponse(r *reader) (byte, []int16, error) {
	format := r.u8()
	n := int(r.u16())
	var cols []int16
	for i := 0; i < n && r.ok; i++ {
		cols = append(cols, r.i16())
	}
	if !r.ok {
		return 0, nil, fmt.Errorf("truncated copy response body")
	}
	return format, cols, nil
}
