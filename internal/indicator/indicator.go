// Package indicator blinks a GPIO-driven LED once per recorded observation.
package indicator

import (
	"fmt"
	"sync"
	"time"

	"kismet-baro/internal/record"
)

// line is a digital output.
type line interface {
	SetValue(v int) error
	Close() error
}

var sleep = time.Sleep

type LED struct {
	mu    sync.Mutex
	line  line
	pulse time.Duration
}

// Open requests the BCM GPIO pin as an output, initially off.
func Open(pin int, pulse time.Duration) (*LED, error) {
	l, err := openLineFn(pin)
	if err != nil {
		return nil, err
	}
	return newLED(l, pulse), nil
}

func newLED(l line, pulse time.Duration) *LED {
	if pulse <= 0 {
		pulse = 20 * time.Millisecond
	}
	return &LED{line: l, pulse: pulse}
}

// Notify pulses the LED high for the configured duration.
func (d *LED) Notify(record.Observation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.line == nil {
		return fmt.Errorf("indicator: closed")
	}
	if err := d.line.SetValue(1); err != nil {
		return fmt.Errorf("indicator: set high: %w", err)
	}
	sleep(d.pulse)
	if err := d.line.SetValue(0); err != nil {
		return fmt.Errorf("indicator: set low: %w", err)
	}
	return nil
}

// Close turns the LED off and releases the line.
func (d *LED) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.line == nil {
		return nil
	}
	_ = d.line.SetValue(0)
	err := d.line.Close()
	d.line = nil
	return err
}
