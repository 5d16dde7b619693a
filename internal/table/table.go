// Package table renders result sets as bordered tables. A Formatter is
// created per result set from a RowDescription and produces log-ready lines;
// it never writes anywhere itself, so the proxy session stays the single
// owner of log output.
package table

import (
	"strings"
	"sync"

	"github.com/ybrs/postgres-protocol-debug-tools/internal/pgwire"
)

// Every column is a fixed 15 characters wide. Measuring values would need
// the whole result set up front; a proxy sees rows one at a time.
const columnWidth = 15

// Formatter holds the state for one result set.
type Formatter struct {
	fields        []pgwire.Field
	columnWidths  []int
	headerPrinted bool
}

// New creates a formatter for the given row description.
func New(fields []pgwire.Field) *Formatter {
	widths := make([]int, len(fields))
	for i := range widths {
		widths[i] = columnWidth
	}
	return &Formatter{fields: fields, columnWidths: widths}
}

// HeaderPrinted reports whether the header lines have been emitted.
func (f *Formatter) HeaderPrinted() bool { return f.headerPrinted }

// RowLines returns the lines for one data row; on the first call they are
// preceded by the top border, the header row and the mid border.
func (f *Formatter) RowLines(values []string) []string {
	var lines []string
	if !f.headerPrinted {
		names := make([]string, len(f.fields))
		for i, field := range f.fields {
			names[i] = field.Name
		}
		lines = append(lines,
			"┌"+f.separator("┬")+"┐",
			"│"+f.dataRow(names)+"│",
			"├"+f.separator("┬")+"┤",
		)
		f.headerPrinted = true
	}
	return append(lines, "│"+f.dataRow(values)+"│")
}

// FooterLines returns the bottom border, or nothing if no header was ever
// emitted (an empty result set draws no table).
func (f *Formatter) FooterLines() []string {
	if !f.headerPrinted {
		return nil
	}
	return []string{"└" + f.separator("┴") + "┘"}
}

func (f *Formatter) dataRow(values []string) string {
	cells := make([]string, len(f.columnWidths))
	for i, width := range f.columnWidths {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		cells[i] = padOrTruncate(value, width)
	}
	return strings.Join(cells, "│")
}

func (f *Formatter) separator(join string) string {
	parts := make([]string, len(f.columnWidths))
	for i, width := range f.columnWidths {
		parts[i] = strings.Repeat("─", width)
	}
	return strings.Join(parts, join)
}

// padOrTruncate fits s into exactly width display characters: right-padded
// with spaces when short, cut to width-3 characters plus "..." when long.
// Widths under 3 just cut.
func padOrTruncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s + strings.Repeat(" ", width-len(runes))
	}
	if width >= 3 {
		return string(runes[:width-3]) + "..."
	}
	return string(runes[:width])
}

// State is the per-connection table mode. Both direction pumps touch it, so
// updates are serialized; methods return the lines to log so the lock never
// spans I/O. All methods are no-ops when table mode is disabled.
type State struct {
	enabled bool

	mu      sync.Mutex
	current *Formatter
}

// NewState creates the per-connection state; enabled false renders nothing.
func NewState(enabled bool) *State {
	return &State{enabled: enabled}
}

// Enabled reports whether table mode is on.
func (s *State) Enabled() bool { return s.enabled }

// SetRowDescription starts a new result set. If a previous formatter is
// still live (a new RowDescription arrived mid-stream), its footer is
// flushed first so the open table is closed before the next one starts.
func (s *State) SetRowDescription(fields []pgwire.Field) []string {
	if !s.enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var lines []string
	if s.current != nil {
		lines = s.current.FooterLines()
	}
	s.current = New(fields)
	return lines
}

// PrintRow renders one data row of the current result set.
func (s *State) PrintRow(values []string) []string {
	if !s.enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.RowLines(values)
}

// FinishResultSet closes the current table and drops the formatter.
func (s *State) FinishResultSet() []string {
	if !s.enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	lines := s.current.FooterLines()
	s.current = nil
	return lines
}
