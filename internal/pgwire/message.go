package pgwire

import (
	"fmt"
	"strings"
)

// Message is a decoded protocol message. Summary is the single-line log
// detail ("Query: SELECT 1"); Name is the bare message name, also used as
// a metrics label.
type Message interface {
	Name() string
	Summary() string
}

// Detailer is implemented by messages that log indented continuation lines
// after their summary (row descriptions, data rows, bind details, ...).
type Detailer interface {
	Details() []string
}

func nameOrUnnamed(s string) string {
	if s == "" {
		return "(unnamed)"
	}
	return s
}

// --- startup family ---

// StartupParameter is one key/value pair from a StartupMessage, in wire
// order.
type StartupParameter struct {
	Name  string
	Value string
}

type StartupMessage struct {
	Protocol   uint32
	Parameters []StartupParameter
	Length     int
}

func (StartupMessage) Name() string { return "StartupMessage" }
func (m StartupMessage) Summary() string {
	return fmt.Sprintf("Startup message (length: %d)", m.Length)
}

// Parameter returns the value of a startup parameter, or "".
func (m StartupMessage) Parameter(name string) string {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

type SSLRequest struct{}

func (SSLRequest) Name() string    { return "SSLRequest" }
func (SSLRequest) Summary() string { return "SSLRequest" }

type CancelRequest struct{}

func (CancelRequest) Name() string    { return "CancelRequest" }
func (CancelRequest) Summary() string { return "CancelRequest" }

// --- client messages ---

type Query struct {
	SQL string
}

func (Query) Name() string      { return "Query" }
func (m Query) Summary() string { return "Query: " + m.SQL }

type Parse struct {
	Statement string
	SQL       string
	ParamOIDs []uint32
	ByteLen   int
}

func (Parse) Name() string { return "Parse" }
func (m Parse) Summary() string {
	return fmt.Sprintf("Parse (prepared statement, %d bytes)", m.ByteLen)
}
func (m Parse) Details() []string {
	line := fmt.Sprintf("   Statement: '%s', Query: '%s'", nameOrUnnamed(m.Statement), m.SQL)
	if len(m.ParamOIDs) > 0 {
		line += fmt.Sprintf(", Parameters=%d", len(m.ParamOIDs))
	}
	return []string{line}
}

type Bind struct {
	Portal        string
	Statement     string
	ParamFormats  []int16
	Params        [][]byte // nil element = NULL
	ResultFormats []int16
	ByteLen       int
}

func (Bind) Name() string { return "Bind" }
func (m Bind) Summary() string {
	return fmt.Sprintf("Bind (%d bytes)", m.ByteLen)
}
func (m Bind) Details() []string {
	return []string{"   " + m.BindSummary()}
}

// BindSummary renders the portal/statement names and the format-code
// summaries for both parameter and result columns.
func (m Bind) BindSummary() string {
	return fmt.Sprintf("Portal='%s', Statement='%s', ParamFormats=%s, Parameters=%d, ResultFormats=%s",
		nameOrUnnamed(m.Portal), nameOrUnnamed(m.Statement),
		describeFormats(m.ParamFormats), len(m.Params), describeFormats(m.ResultFormats))
}

type Describe struct {
	Target  byte // 'S' statement, 'P' portal
	Object  string
	ByteLen int
}

func (Describe) Name() string { return "Describe" }
func (m Describe) Summary() string {
	return fmt.Sprintf("Describe (%s, %d bytes)", describeTargetName(m.Target), m.ByteLen)
}

func describeTargetName(t byte) string {
	switch t {
	case 'S':
		return "statement"
	case 'P':
		return "portal"
	default:
		return "unknown"
	}
}

type Execute struct {
	Portal  string
	MaxRows uint32
	ByteLen int
}

func (Execute) Name() string { return "Execute" }
func (m Execute) Summary() string {
	return fmt.Sprintf("Execute (%d bytes)", m.ByteLen)
}
func (m Execute) Details() []string {
	return []string{fmt.Sprintf("   Portal='%s', MaxRows=%d", nameOrUnnamed(m.Portal), m.MaxRows)}
}

type Sync struct{}

func (Sync) Name() string    { return "Sync" }
func (Sync) Summary() string { return "Sync" }

type Flush struct{}

func (Flush) Name() string    { return "Flush" }
func (Flush) Summary() string { return "Flush" }

type Close struct {
	Target  byte
	Object  string
	ByteLen int
}

func (Close) Name() string { return "Close" }
func (m Close) Summary() string {
	return fmt.Sprintf("Close (%s, %d bytes)", describeTargetName(m.Target), m.ByteLen)
}

type Terminate struct{}

func (Terminate) Name() string    { return "Terminate" }
func (Terminate) Summary() string { return "Terminate" }

type PasswordMessage struct {
	ByteLen int
}

func (PasswordMessage) Name() string { return "PasswordMessage" }
func (m PasswordMessage) Summary() string {
	return fmt.Sprintf("PasswordMessage (%d bytes)", m.ByteLen)
}

type CopyFail struct {
	Message string
}

func (CopyFail) Name() string { return "CopyFail" }
func (m CopyFail) Summary() string {
	if m.Message == "" {
		return "CopyFail"
	}
	return "CopyFail: " + m.Message
}

// --- messages seen in both directions ---

type CopyData struct {
	ByteLen int
}

func (CopyData) Name() string { return "CopyData" }
func (m CopyData) Summary() string {
	return fmt.Sprintf("CopyData (%d bytes)", m.ByteLen)
}

type CopyDone struct{}

func (CopyDone) Name() string    { return "CopyDone" }
func (CopyDone) Summary() string { return "CopyDone" }

// --- server messages ---

type AuthenticationOk struct{}

func (AuthenticationOk) Name() string    { return "AuthenticationOk" }
func (AuthenticationOk) Summary() string { return "Authentication: AuthenticationOk" }

type AuthenticationCleartextPassword struct{}

func (AuthenticationCleartextPassword) Name() string { return "AuthenticationCleartextPassword" }
func (AuthenticationCleartextPassword) Summary() string {
	return "Authentication: AuthenticationCleartextPassword"
}

type AuthenticationMD5Password struct {
	Salt [4]byte
}

func (AuthenticationMD5Password) Name() string { return "AuthenticationMD5Password" }
func (AuthenticationMD5Password) Summary() string {
	return "Authentication: AuthenticationMD5Password"
}

type AuthenticationSASL struct {
	Mechanisms []string
}

func (AuthenticationSASL) Name() string    { return "AuthenticationSASL" }
func (AuthenticationSASL) Summary() string { return "Authentication: AuthenticationSASL" }
func (m AuthenticationSASL) Details() []string {
	if len(m.Mechanisms) == 0 {
		return nil
	}
	return []string{"   Mechanisms: " + strings.Join(m.Mechanisms, ", ")}
}

type AuthenticationSASLContinue struct {
	Data []byte
}

func (AuthenticationSASLContinue) Name() string { return "AuthenticationSASLContinue" }
func (AuthenticationSASLContinue) Summary() string {
	return "Authentication: AuthenticationSASLContinue"
}

type AuthenticationSASLFinal struct {
	Data []byte
}

func (AuthenticationSASLFinal) Name() string { return "AuthenticationSASLFinal" }
func (AuthenticationSASLFinal) Summary() string {
	return "Authentication: AuthenticationSASLFinal"
}

// AuthenticationOther covers the remaining authentication sub-kinds
// (KerberosV5, SCMCredential, GSS, GSSContinue, SSPI) that the proxy only
// names in logs.
type AuthenticationOther struct {
	Code uint32
}

func (m AuthenticationOther) Name() string {
	switch m.Code {
	case 2:
		return "AuthenticationKerberosV5"
	case 6:
		return "AuthenticationSCMCredential"
	case 7:
		return "AuthenticationGSS"
	case 8:
		return "AuthenticationGSSContinue"
	case 9:
		return "AuthenticationSSPI"
	default:
		return "AuthenticationUnknown"
	}
}
func (m AuthenticationOther) Summary() string { return "Authentication: " + m.Name() }

type ParameterStatus struct {
	Key   string
	Value string
}

func (ParameterStatus) Name() string { return "ParameterStatus" }
func (m ParameterStatus) Summary() string {
	return fmt.Sprintf("ParameterStatus: %s = %s", m.Key, m.Value)
}

type BackendKeyData struct {
	PID       uint32
	SecretKey uint32
}

func (BackendKeyData) Name() string    { return "BackendKeyData" }
func (BackendKeyData) Summary() string { return "BackendKeyData" }

// Transaction status bytes carried by ReadyForQuery.
const (
	TxIdle    byte = 'I'
	TxInBlock byte = 'T'
	TxFailed  byte = 'E'
)

type ReadyForQuery struct {
	Status byte
}

func (ReadyForQuery) Name() string { return "ReadyForQuery" }
func (m ReadyForQuery) Summary() string {
	return fmt.Sprintf("ReadyForQuery (%s)", m.StatusName())
}

// StatusName renders the transaction status byte.
func (m ReadyForQuery) StatusName() string {
	switch m.Status {
	case TxIdle:
		return "idle"
	case TxInBlock:
		return "in transaction"
	case TxFailed:
		return "error in transaction"
	default:
		return "unknown"
	}
}

// Field is one column descriptor from a RowDescription.
type Field struct {
	Name       string
	TableOID   uint32
	ColumnAttr int16
	TypeOID    uint32
	TypeSize   int16
	TypeMod    int32
	Format     int16
}

// FormatName renders the field's format code.
func (f Field) FormatName() string { return formatCodeName(f.Format) }

type RowDescription struct {
	Fields []Field
}

func (RowDescription) Name() string { return "RowDescription" }
func (m RowDescription) Summary() string {
	return fmt.Sprintf("RowDescription (%d fields)", len(m.Fields))
}
func (m RowDescription) Details() []string {
	lines := make([]string, 0, len(m.Fields))
	for i, f := range m.Fields {
		lines = append(lines, fmt.Sprintf("   Field %d: name='%s', type=%s (OID=%d), size=%d, typemod=%d, format=%s",
			i+1, f.Name, TypeName(f.TypeOID), f.TypeOID, f.TypeSize, f.TypeMod, f.FormatName()))
	}
	return lines
}

type DataRow struct {
	Columns [][]byte // nil element = NULL
	ByteLen int
}

func (DataRow) Name() string { return "DataRow" }
func (m DataRow) Summary() string {
	return fmt.Sprintf("DataRow (%d fields, %d bytes)", len(m.Columns), m.ByteLen)
}
func (m DataRow) Details() []string {
	lines := make([]string, 0, len(m.Columns))
	for i, col := range m.Columns {
		lines = append(lines, fmt.Sprintf("   Value %d: %s", i+1, RenderValue(col)))
	}
	return lines
}

type CommandComplete struct {
	Tag string
}

func (CommandComplete) Name() string      { return "CommandComplete" }
func (m CommandComplete) Summary() string { return "CommandComplete: " + m.Tag }

type ParseComplete struct{}

func (ParseComplete) Name() string    { return "ParseComplete" }
func (ParseComplete) Summary() string { return "ParseComplete" }

type BindComplete struct{}

func (BindComplete) Name() string    { return "BindComplete" }
func (BindComplete) Summary() string { return "BindComplete" }

type CloseComplete struct{}

func (CloseComplete) Name() string    { return "CloseComplete" }
func (CloseComplete) Summary() string { return "CloseComplete" }

type NoData struct{}

func (NoData) Name() string    { return "NoData" }
func (NoData) Summary() string { return "NoData" }

type EmptyQueryResponse struct{}

func (EmptyQueryResponse) Name() string    { return "EmptyQueryResponse" }
func (EmptyQueryResponse) Summary() string { return "EmptyQueryResponse" }

type PortalSuspended struct{}

func (PortalSuspended) Name() string    { return "PortalSuspended" }
func (PortalSuspended) Summary() string { return "PortalSuspended" }

type ParameterDescription struct {
	OIDs []uint32
}

func (ParameterDescription) Name() string { return "ParameterDescription" }
func (m ParameterDescription) Summary() string {
	return fmt.Sprintf("ParameterDescription (%d parameters)", len(m.OIDs))
}
func (m ParameterDescription) Details() []string {
	lines := make([]string, 0, len(m.OIDs))
	for i, oid := range m.OIDs {
		lines = append(lines, fmt.Sprintf("   Param %d: type=%s (OID=%d)", i+1, TypeName(oid), oid))
	}
	return lines
}

// ErrorField is one code/value pair from an ErrorResponse or NoticeResponse.
type ErrorField struct {
	Code  byte
	Value string
}

// Label maps the field code to its protocol name.
func (f ErrorField) Label() string {
	switch f.Code {
	case 'S', 'V':
		return "Severity"
	case 'C':
		return "Code"
	case 'M':
		return "Message"
	case 'D':
		return "Detail"
	case 'H':
		return "Hint"
	case 'P':
		return "Position"
	case 'p':
		return "Internal position"
	case 'q':
		return "Internal query"
	case 'W':
		return "Where"
	case 's':
		return "Schema"
	case 't':
		return "Table"
	case 'c':
		return "Column"
	case 'd':
		return "Data type"
	case 'n':
		return "Constraint"
	case 'F':
		return "File"
	case 'L':
		return "Line"
	case 'R':
		return "Routine"
	default:
		return "Unknown"
	}
}

func joinErrorFields(fields []ErrorField) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Label()+": "+f.Value)
	}
	return strings.Join(parts, ", ")
}

type ErrorResponse struct {
	Fields []ErrorField
}

func (ErrorResponse) Name() string    { return "ErrorResponse" }
func (ErrorResponse) Summary() string { return "ErrorResponse" }
func (m ErrorResponse) Details() []string {
	if len(m.Fields) == 0 {
		return nil
	}
	return []string{"   " + joinErrorFields(m.Fields)}
}

// String renders all fields on one line, for error values and the
// diagnostic client.
func (m ErrorResponse) String() string { return joinErrorFields(m.Fields) }

type NoticeResponse struct {
	Fields []ErrorField
}

func (NoticeResponse) Name() string    { return "NoticeResponse" }
func (NoticeResponse) Summary() string { return "NoticeResponse" }
func (m NoticeResponse) Details() []string {
	if len(m.Fields) == 0 {
		return nil
	}
	return []string{"   " + joinErrorFields(m.Fields)}
}

func (m NoticeResponse) String() string { return joinErrorFields(m.Fields) }

type NotificationResponse struct {
	PID     uint32
	Channel string
	Payload string
}

func (NotificationResponse) Name() string { return "NotificationResponse" }
func (m NotificationResponse) Summary() string {
	return fmt.Sprintf("NotificationResponse: channel=%s payload=%s", m.Channel, m.Payload)
}

type CopyInResponse struct {
	OverallFormat byte
	ColumnFormats []int16
}

func (CopyInResponse) Name() string    { return "CopyInResponse" }
func (CopyInResponse) Summary() string { return "CopyInResponse" }

type CopyOutResponse struct {
	OverallFormat byte
	ColumnFormats []int16
}

func (CopyOutResponse) Name() string    { return "CopyOutResponse" }
func (CopyOutResponse) Summary() string { return "CopyOutResponse" }

type CopyBothResponse struct {
	OverallFormat byte
	ColumnFormats []int16
}

func (CopyBothResponse) Name() string    { return "CopyBothResponse" }
func (CopyBothResponse) Summary() string { return "CopyBothResponse" }

// Unknown is the catch-all for unrecognized or truncated frames. The frame
// is still forwarded byte-exact.
type Unknown struct {
	Kind   byte
	Length int
}

func (Unknown) Name() string { return "Unknown" }
func (m Unknown) Summary() string {
	return fmt.Sprintf("Unknown message type '%c' (%d bytes)", m.Kind, m.Length)
}

func formatCodeName(c int16) string {
	switch c {
	case 0:
		return "text"
	case 1:
		return "binary"
	default:
		return "unknown"
	}
}

// describeFormats summarizes a format-code list: an empty list means text
// for every column, a single code applies to every column, and anything
// longer is listed per column.
func describeFormats(codes []int16) string {
	switch len(codes) {
	case 0:
		return "text (all)"
	case 1:
		return formatCodeName(codes[0]) + " (all)"
	default:
		names := make([]string, len(codes))
		for i, c := range codes {
			names[i] = formatCodeName(c)
		}
		return "[" + strings.Join(names, ", ") + "]"
	}
}
