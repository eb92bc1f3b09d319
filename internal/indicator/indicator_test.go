package indicator

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"kismet-baro/internal/record"
)

type fakeLine struct {
	values []int
	err    error
	closed bool
}

func (f *fakeLine) SetValue(v int) error {
	if f.err != nil {
		return f.err
	}
	f.values = append(f.values, v)
	return nil
}

func (f *fakeLine) Close() error {
	f.closed = true
	return nil
}

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	old := sleep
	sleep = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleep = old })
	return &slept
}

func TestNotify_Pulses(t *testing.T) {
	slept := stubSleep(t)
	fl := &fakeLine{}
	led := newLED(fl, 5*time.Millisecond)

	if err := led.Notify(record.Observation{}); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if !reflect.DeepEqual(fl.values, []int{1, 0}) {
		t.Fatalf("values=%v want [1 0]", fl.values)
	}
	if !reflect.DeepEqual(*slept, []time.Duration{5 * time.Millisecond}) {
		t.Fatalf("slept=%v", *slept)
	}
}

func TestNotify_DefaultPulse(t *testing.T) {
	slept := stubSleep(t)
	led := newLED(&fakeLine{}, 0)
	if err := led.Notify(record.Observation{}); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if (*slept)[0] != 20*time.Millisecond {
		t.Fatalf("slept=%v", *slept)
	}
}

func TestNotify_LineError(t *testing.T) {
	stubSleep(t)
	led := newLED(&fakeLine{err: errors.New("busy")}, time.Millisecond)
	if err := led.Notify(record.Observation{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestClose_TurnsOffAndReleases(t *testing.T) {
	stubSleep(t)
	fl := &fakeLine{}
	led := newLED(fl, time.Millisecond)
	if err := led.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !fl.closed || !reflect.DeepEqual(fl.values, []int{0}) {
		t.Fatalf("closed=%v values=%v", fl.closed, fl.values)
	}
	if err := led.Notify(record.Observation{}); err == nil {
		t.Fatalf("expected error after close")
	}
	if err := led.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
}

func TestOpen_UsesLineOpener(t *testing.T) {
	old := openLineFn
	t.Cleanup(func() { openLineFn = old })

	fl := &fakeLine{}
	var gotPin int
	openLineFn = func(pin int) (line, error) {
		gotPin = pin
		return fl, nil
	}
	led, err := Open(17, time.Millisecond)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if gotPin != 17 || led.line != fl {
		t.Fatalf("pin=%d line=%v", gotPin, led.line)
	}

	openLineFn = func(int) (line, error) { return nil, errors.New("no chip") }
	if _, err := Open(17, time.Millisecond); err == nil {
		t.Fatalf("expected error")
	}
}
