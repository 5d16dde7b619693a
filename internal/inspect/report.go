package inspect

import (
	"fmt"
	"io"

	"github.com/ybrs/postgres-protocol-debug-tools/internal/pgwire"
)

// ColumnValue is one column of a returned row; Null distinguishes SQL NULL
// from an empty value.
type ColumnValue struct {
	Null  bool
	Bytes []byte
}

// QueryReport collects the structured responses of one extended-query run.
type QueryReport struct {
	ParseComplete bool
	BindComplete  bool
	Fields        []pgwire.Field
	ParamOIDs     []uint32
	Rows          [][]ColumnValue
	CommandTag    string
}

// Print writes the report.
func (r *QueryReport) Print(w io.Writer) {
	fmt.Fprintf(w, "parse complete: %t\n", r.ParseComplete)
	fmt.Fprintf(w, "bind complete: %t\n", r.BindComplete)
	if len(r.Fields) == 0 {
		fmt.Fprintln(w, "no row description returned")
	} else {
		fmt.Fprintf(w, "row description (%d column(s)):\n", len(r.Fields))
		for i, f := range r.Fields {
			fmt.Fprintf(w, "  %d: name='%s' oid=%d format=%s\n", i, f.Name, f.TypeOID, f.FormatName())
		}
	}
	for rowIdx, row := range r.Rows {
		fmt.Fprintf(w, "row %d:\n", rowIdx)
		for colIdx, value := range row {
			name, format := "?col", "unknown"
			if colIdx < len(r.Fields) {
				name = r.Fields[colIdx].Name
				format = r.Fields[colIdx].FormatName()
			}
			fmt.Fprintf(w, "  %d (%s / %s): %s\n", colIdx, name, format, value.Render())
		}
	}
	if r.CommandTag != "" {
		fmt.Fprintf(w, "command tag: %s\n", r.CommandTag)
	}
}

// Render formats the value for the report.
func (v ColumnValue) Render() string {
	if v.Null {
		return "<NULL>"
	}
	return FormatValue(v.Bytes)
}

func debugPrintFields(w io.Writer, fields []pgwire.Field) {
	if len(fields) == 0 {
		fmt.Fprintln(w, "  (no columns)")
		return
	}
	for i, f := range fields {
		fmt.Fprintf(w, "  col %d: name='%s' oid=%d format=%s\n", i, f.Name, f.TypeOID, f.FormatName())
	}
}

func debugPrintRow(w io.Writer, fields []pgwire.Field, values []ColumnValue) {
	for i, value := range values {
		name, format := "<unnamed>", "unknown"
		if i < len(fields) {
			name = fields[i].Name
			format = fields[i].FormatName()
		}
		fmt.Fprintf(w, "    col %d (%s / %s): %s\n", i, name, format, value.Render())
	}
}
