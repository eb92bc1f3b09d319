// Package altitude provides the barometric altitude sources sampled for every
// recorded observation.
package altitude

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// StandardSeaLevelPa is the ISA sea-level pressure.
const StandardSeaLevelPa = 101325.0

// Source returns the current altitude in meters.
type Source interface {
	Altitude() (float64, error)
	Close() error
}

type Config struct {
	// Source is "bmp280", "bmxx80" or "fixed".
	Source string

	// I2CBus is a /dev/i2c-N path for bmp280, or a periph bus name
	// (e.g. "1", "" for the first bus) for bmxx80.
	I2CBus  string
	I2CAddr uint16

	SeaLevelPa float64
	OffsetM    float64

	// FixedM is returned by the fixed source.
	FixedM float64
}

// PressureToAltitude converts station pressure to altitude with the
// international barometric formula.
func PressureToAltitude(pressurePa, seaLevelPa float64) (float64, error) {
	if pressurePa <= 0 {
		return 0, fmt.Errorf("altitude: invalid pressure %.1f Pa", pressurePa)
	}
	if seaLevelPa <= 0 {
		seaLevelPa = StandardSeaLevelPa
	}
	return 44330.0 * (1.0 - math.Pow(pressurePa/seaLevelPa, 1.0/5.255)), nil
}

// Open builds the configured source. Hardware sources probe the sensor
// before returning.
func Open(cfg Config) (Source, error) {
	var (
		src Source
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "bmp280", "":
		src, err = openBMP280(cfg)
	case "bmxx80":
		src, err = openBMXX80(cfg)
	case "fixed":
		src = Fixed(cfg.FixedM)
	default:
		return nil, fmt.Errorf("altitude: unknown source %q", cfg.Source)
	}
	if err != nil {
		return nil, err
	}
	if cfg.OffsetM != 0 {
		src = withOffset{Source: src, offset: cfg.OffsetM}
	}
	return src, nil
}

// Fixed always reports the same altitude.
type Fixed float64

func (f Fixed) Altitude() (float64, error) { return float64(f), nil }
func (Fixed) Close() error                 { return nil }

type withOffset struct {
	Source
	offset float64
}

func (w withOffset) Altitude() (float64, error) {
	alt, err := w.Source.Altitude()
	if err != nil {
		return 0, err
	}
	return alt + w.offset, nil
}

// pressureSource adapts a pressure sensor into a Source.
type pressureSource struct {
	read       func() (float64, error)
	close      func() error
	seaLevelPa float64
}

func (p *pressureSource) Altitude() (float64, error) {
	if p == nil || p.read == nil {
		return 0, errors.New("altitude: sensor not open")
	}
	pa, err := p.read()
	if err != nil {
		return 0, err
	}
	return PressureToAltitude(pa, p.seaLevelPa)
}

func (p *pressureSource) Close() error {
	if p == nil || p.close == nil {
		return nil
	}
	return p.close()
}
