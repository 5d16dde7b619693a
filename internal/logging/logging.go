// Package logging configures logrus for the proxy: tab-separated line
// shapes (full, short, bare), stdout plus an optional log file, a level
// filter taken from the environment, and ANSI coloring of protocol lines
// when writing to a terminal.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Format selects the log line shape.
type Format int

const (
	// FormatFull is "<timestamp>\t<LEVEL>\t<target>\t<message>".
	FormatFull Format = iota
	// FormatShort is "<timestamp>\t<message>".
	FormatShort
	// FormatBare is the message alone.
	FormatBare
)

// ParseFormat parses a --log-format value.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "full":
		return FormatFull, nil
	case "short":
		return FormatShort, nil
	case "bare":
		return FormatBare, nil
	default:
		return FormatFull, fmt.Errorf("unknown log format %q (must be full, short or bare)", s)
	}
}

func (f Format) String() string {
	switch f {
	case FormatShort:
		return "short"
	case FormatBare:
		return "bare"
	default:
		return "full"
	}
}

// EnvFilter is the environment variable holding the level filter
// (trace, debug, info, warn, error); unset means info.
const EnvFilter = "PGPROXY_LOG"

// TargetField carries the component name rendered in the full format.
const TargetField = "target"

// DefaultTarget is used when an entry has no target field.
const DefaultTarget = "proxy"

// rfc3339Micro matches the timestamp shape of the full and short formats.
const rfc3339Micro = "2006-01-02T15:04:05.000000Z"

// Setup configures the standard logrus logger: custom formatter, level from
// the environment, output to stdout plus logFile when non-empty. Coloring is
// applied only when stdout is a terminal and no file is in the writer chain.
func Setup(logFile string, format Format) error {
	level := logrus.InfoLevel
	if env := os.Getenv(EnvFilter); env != "" {
		parsed, err := logrus.ParseLevel(env)
		if err == nil {
			level = parsed
		}
	}

	out := io.Writer(os.Stdout)
	colorize := isTerminal(os.Stdout)
	if logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			return fmt.Errorf("creating log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		colorize = false
	}

	logrus.SetLevel(level)
	logrus.SetOutput(out)
	logrus.SetFormatter(&lineFormatter{format: format, colorize: colorize})
	return nil
}

// Target returns an entry carrying the component name for the full format.
func Target(name string) *logrus.Entry {
	return logrus.WithField(TargetField, name)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

type lineFormatter struct {
	format   Format
	colorize bool
}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	target := DefaultTarget
	if v, ok := entry.Data[TargetField].(string); ok && v != "" {
		target = v
	}
	ts := entry.Time.UTC().Format(rfc3339Micro)
	// Protocol strings may carry invalid UTF-8; log them lossily.
	message := strings.ToValidUTF8(entry.Message, "�")
	line := FormatLine(f.format, ts, entry.Level, target, message)
	if f.colorize {
		if colored, ok := colorizeLine(line); ok {
			line = colored
		}
	}
	return append([]byte(line), '\n'), nil
}

// FormatLine assembles one log line in the given shape. The level is
// uppercased and right-aligned to 5 columns in the full format.
func FormatLine(format Format, timestamp string, level logrus.Level, target, message string) string {
	switch format {
	case FormatShort:
		return timestamp + "\t" + message
	case FormatBare:
		return message
	default:
		return fmt.Sprintf("%s\t%5s\t%s\t%s", timestamp, levelName(level), target, message)
	}
}

func levelName(level logrus.Level) string {
	switch level {
	case logrus.WarnLevel:
		return "WARN"
	default:
		return strings.ToUpper(level.String())
	}
}

// ANSI escape sequences for protocol line coloring.
const (
	colorGreen       = "\x1b[32m"
	colorCyan        = "\x1b[36m"
	colorBrightBlack = "\x1b[90m"
	colorReset       = "\x1b[0m"
)

// colorizeLine colors hex-dump lines bright black, client→server lines
// green and server→client lines cyan. Lines that match none are returned
// unchanged with ok false.
func colorizeLine(line string) (string, bool) {
	if isHexDumpLine(line) {
		return colorBrightBlack + line + colorReset, true
	}
	if strings.Contains(line, "] →") {
		return colorGreen + line + colorReset, true
	}
	if strings.Contains(line, "] ←") {
		return colorCyan + line + colorReset, true
	}
	return line, false
}

// isHexDumpLine recognizes "[addr]   0000: ..." continuation lines by the
// four hex digits and colon after the bracket.
func isHexDumpLine(line string) bool {
	idx := strings.Index(line, "]   ")
	if idx < 0 {
		return false
	}
	rest := line[idx+4:]
	if len(rest) < 5 {
		return false
	}
	for _, c := range rest[:4] {
		if !isHexDigit(byte(c)) {
			return false
		}
	}
	return rest[4] == ':'
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// Timestamp formats t the way the formatter does; exposed for tests.
func Timestamp(t time.Time) string {
	return t.UTC().Format(rfc3339Micro)
}
