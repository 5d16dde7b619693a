package pgwire

import "encoding/binary"

// Frontend message encoders. Each appends one complete wire frame to buf
// and returns the extended slice, so a whole pipeline can be batched into
// a single write.

func appendTyped(buf []byte, kind byte, body []byte) []byte {
	buf = append(buf, kind)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(body)+4))
	return append(buf, body...)
}

func appendCString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

// AppendStartup encodes a StartupMessage with the given parameter pairs.
func AppendStartup(buf []byte, params []StartupParameter) []byte {
	var body []byte
	body = binary.BigEndian.AppendUint32(body, ProtocolVersion)
	for _, p := range params {
		body = appendCString(body, p.Name)
		body = appendCString(body, p.Value)
	}
	body = append(body, 0)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(body)+4))
	return append(buf, body...)
}

// AppendPassword encodes a PasswordMessage.
func AppendPassword(buf []byte, password string) []byte {
	return appendTyped(buf, 'p', appendCString(nil, password))
}

// AppendQuery encodes a simple Query message.
func AppendQuery(buf []byte, sql string) []byte {
	return appendTyped(buf, 'Q', appendCString(nil, sql))
}

// AppendParse encodes a Parse message for a named prepared statement.
func AppendParse(buf []byte, statement, sql string, paramOIDs []uint32) []byte {
	var body []byte
	body = appendCString(body, statement)
	body = appendCString(body, sql)
	body = binary.BigEndian.AppendUint16(body, uint16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		body = binary.BigEndian.AppendUint32(body, oid)
	}
	return appendTyped(buf, 'P', body)
}

// AppendBind encodes a Bind message. A nil params element encodes SQL NULL.
func AppendBind(buf []byte, portal, statement string, paramFormats []int16, params [][]byte, resultFormats []int16) []byte {
	var body []byte
	body = appendCString(body, portal)
	body = appendCString(body, statement)
	body = binary.BigEndian.AppendUint16(body, uint16(len(paramFormats)))
	for _, f := range paramFormats {
		body = binary.BigEndian.AppendUint16(body, uint16(f))
	}
	body = binary.BigEndian.AppendUint16(body, uint16(len(params)))
	for _, p := range params {
		if p == nil {
			body = binary.BigEndian.AppendUint32(body, 0xFFFFFFFF)
			continue
		}
		body = binary.BigEndian.AppendUint32(body, uint32(len(p)))
		body = append(body, p...)
	}
	body = binary.BigEndian.AppendUint16(body, uint16(len(resultFormats)))
	for _, f := range resultFormats {
		body = binary.BigEndian.AppendUint16(body, uint16(f))
	}
	return appendTyped(buf, 'B', body)
}

// AppendDescribe encodes a Describe for a statement ('S') or portal ('P').
func AppendDescribe(buf []byte, target byte, name string) []byte {
	body := append([]byte{target}, appendCString(nil, name)...)
	return appendTyped(buf, 'D', body)
}

// AppendExecute encodes an Execute message; maxRows 0 means no limit.
func AppendExecute(buf []byte, portal string, maxRows uint32) []byte {
	body := appendCString(nil, portal)
	body = binary.BigEndian.AppendUint32(body, maxRows)
	return appendTyped(buf, 'E', body)
}

// AppendClose encodes a Close for a statement ('S') or portal ('P').
func AppendClose(buf []byte, target byte, name string) []byte {
	body := append([]byte{target}, appendCString(nil, name)...)
	return appendTyped(buf, 'C', body)
}

// AppendSync encodes a Sync message.
func AppendSync(buf []byte) []byte {
	return appendTyped(buf, 'S', nil)
}

// AppendFlush encodes a Flush message.
func AppendFlush(buf []byte) []byte {
	return appendTyped(buf, 'H', nil)
}

// AppendTerminate encodes a Terminate message.
func AppendTerminate(buf []byte) []byte {
	return appendTyped(buf, 'X', nil)
}
