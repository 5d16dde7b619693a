package proxy

import (
	"fmt"
	"sync"
	"time"
)

// TimingKind names the request-initiating messages the proxy times.
type TimingKind int

const (
	TimingSimpleQuery TimingKind = iota
	TimingParse
	TimingBind
	TimingExecute
)

// ConnectionTiming tracks per-connection request timing. One slot per kind:
// Mark overwrites, Finish takes the slot or reports absence. Both direction
// pumps touch it, so access is serialized; with pipelined requests of the
// same kind only the most recent mark is measured.
type ConnectionTiming struct {
	mu           sync.Mutex
	sessionStart time.Time
	marks        map[TimingKind]time.Time
}

// NewConnectionTiming starts the session clock.
func NewConnectionTiming() *ConnectionTiming {
	return &ConnectionTiming{
		sessionStart: time.Now(),
		marks:        make(map[TimingKind]time.Time),
	}
}

// Mark records the start of a request of the given kind, replacing any
// earlier unfinished mark.
func (t *ConnectionTiming) Mark(kind TimingKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marks[kind] = time.Now()
}

// Finish returns the elapsed time since the matching Mark and clears the
// slot. ok is false when the slot is empty.
func (t *ConnectionTiming) Finish(kind TimingKind) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start, ok := t.marks[kind]
	if !ok {
		return 0, false
	}
	delete(t.marks, kind)
	return time.Since(start), true
}

// SessionElapsed returns the time since the connection was accepted.
func (t *ConnectionTiming) SessionElapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.sessionStart)
}

// FormatDuration renders a duration for log lines: milliseconds below one
// second, seconds with three decimals otherwise.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
