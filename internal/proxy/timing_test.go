package proxy

import (
	"testing"
	"time"
)

func TestTimingMarkFinish(t *testing.T) {
	ct := NewConnectionTiming()
	ct.Mark(TimingParse)
	d, ok := ct.Finish(TimingParse)
	if !ok {
		t.Fatal("expected a duration for a marked slot")
	}
	if d < 0 {
		t.Errorf("negative duration %v", d)
	}
}

// Finish takes the slot: a second Finish reports absence.
func TestTimingFinishTakesOnce(t *testing.T) {
	ct := NewConnectionTiming()
	ct.Mark(TimingExecute)
	if _, ok := ct.Finish(TimingExecute); !ok {
		t.Fatal("first finish should succeed")
	}
	if _, ok := ct.Finish(TimingExecute); ok {
		t.Error("second finish should report an empty slot")
	}
}

func TestTimingFinishWithoutMark(t *testing.T) {
	ct := NewConnectionTiming()
	if _, ok := ct.Finish(TimingSimpleQuery); ok {
		t.Error("finish without mark should report an empty slot")
	}
}

func TestTimingMarkOverwrites(t *testing.T) {
	ct := NewConnectionTiming()
	ct.Mark(TimingBind)
	time.Sleep(10 * time.Millisecond)
	ct.Mark(TimingBind)
	d, ok := ct.Finish(TimingBind)
	if !ok {
		t.Fatal("expected a duration")
	}
	if d >= 10*time.Millisecond {
		t.Errorf("duration %v measured against the first mark", d)
	}
}

func TestTimingSlotsIndependent(t *testing.T) {
	ct := NewConnectionTiming()
	ct.Mark(TimingParse)
	ct.Mark(TimingBind)
	if _, ok := ct.Finish(TimingParse); !ok {
		t.Error("parse slot missing")
	}
	if _, ok := ct.Finish(TimingBind); !ok {
		t.Error("bind slot missing")
	}
	if _, ok := ct.Finish(TimingExecute); ok {
		t.Error("execute slot should be empty")
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(1500 * time.Microsecond); got != "1.500ms" {
		t.Errorf("FormatDuration = %q", got)
	}
	if got := FormatDuration(2345 * time.Millisecond); got != "2.345s" {
		t.Errorf("FormatDuration = %q", got)
	}
	if got := FormatDuration(0); got != "0.000ms" {
		t.Errorf("FormatDuration = %q", got)
	}
}
