package bmp280

import (
	"encoding/binary"
	"fmt"
	"time"
)

var sleep = time.Sleep

// Pressure/temperature driver for the Bosch BMP280. The BME280 shares the
// same register map and compensation for these two channels and is accepted
// as well.

const (
	DefaultAddress = 0x77

	regID        = 0xD0
	chipIDBMP280 = 0x58
	chipIDBME280 = 0x60

	regReset = 0xE0
	resetCmd = 0xB6

	regCalib00 = 0x88
	calibLen   = 24

	regCtrlMeas = 0xF4
	regConfig   = 0xF5
	regPressMsb = 0xF7
)

// RegisterIO is the subset of an I2C device the driver needs.
type RegisterIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

type calibration struct {
	t1     uint16
	t2, t3 int16
	p1     uint16
	p2, p3 int16
	p4, p5 int16
	p6, p7 int16
	p8, p9 int16
}

func parseCalibration(b []byte) calibration {
	u := func(i int) uint16 { return binary.LittleEndian.Uint16(b[i : i+2]) }
	s := func(i int) int16 { return int16(u(i)) }
	return calibration{
		t1: u(0), t2: s(2), t3: s(4),
		p1: u(6), p2: s(8), p3: s(10),
		p4: s(12), p5: s(14), p6: s(16),
		p7: s(18), p8: s(20), p9: s(22),
	}
}

func (c calibration) valid() bool { return c.t1 != 0 && c.p1 != 0 }

// Reading is one compensated sample.
type Reading struct {
	TempC      float64
	PressurePa float64
}

type Sensor struct {
	dev   RegisterIO
	chip  byte
	calib calibration
}

// New probes the chip, resets it, loads calibration and starts continuous
// (normal mode) conversion.
func New(dev RegisterIO) (*Sensor, error) {
	if dev == nil {
		return nil, fmt.Errorf("bmp280: dev is nil")
	}
	s := &Sensor{dev: dev}

	id, err := dev.ReadRegU8(regID)
	if err != nil {
		return nil, fmt.Errorf("bmp280: id read failed: %w", err)
	}
	if id != chipIDBMP280 && id != chipIDBME280 {
		return nil, fmt.Errorf("bmp280: unexpected chip id 0x%02X", id)
	}
	s.chip = id

	// NVM coefficients are copied into the image registers after reset; an
	// early read returns zeros.
	_ = dev.WriteReg(regReset, resetCmd)
	sleep(5 * time.Millisecond)

	var calErr error
	for attempt := 0; attempt < 3; attempt++ {
		buf := make([]byte, calibLen)
		if err := dev.ReadReg(regCalib00, buf); err != nil {
			calErr = fmt.Errorf("bmp280: read calib failed: %w", err)
			sleep(5 * time.Millisecond)
			continue
		}
		c := parseCalibration(buf)
		if c.valid() {
			s.calib = c
			calErr = nil
			break
		}
		calErr = fmt.Errorf("bmp280: calibration invalid (T1=%d P1=%d)", c.t1, c.p1)
		sleep(5 * time.Millisecond)
	}
	if calErr != nil {
		return nil, calErr
	}

	// standby 0.5ms, IIR x4 to smooth pressure spikes from prop wash.
	_ = dev.WriteReg(regConfig, 0x02<<2)

	// osrs_t x2, osrs_p x16, normal mode.
	ctrl := byte(0x02<<5) | byte(0x05<<2) | 0x03
	if err := dev.WriteReg(regCtrlMeas, ctrl); err != nil {
		return nil, fmt.Errorf("bmp280: ctrl_meas write failed: %w", err)
	}
	return s, nil
}

func (s *Sensor) ChipID() byte { return s.chip }

// Read burst-reads the six data registers and returns compensated values.
func (s *Sensor) Read() (Reading, error) {
	buf := make([]byte, 6)
	if err := s.dev.ReadReg(regPressMsb, buf); err != nil {
		return Reading{}, fmt.Errorf("bmp280: read data failed: %w", err)
	}
	adcP := int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4
	adcT := int32(buf[3])<<12 | int32(buf[4])<<4 | int32(buf[5])>>4

	tFine, tempC := s.calib.temperature(adcT)
	return Reading{TempC: tempC, PressurePa: s.calib.pressure(adcP, tFine)}, nil
}

// Floating point compensation from the datasheet (section 8.1).
func (c calibration) temperature(adcT int32) (float64, float64) {
	v1 := (float64(adcT)/16384.0 - float64(c.t1)/1024.0) * float64(c.t2)
	v2 := float64(adcT)/131072.0 - float64(c.t1)/8192.0
	v2 = v2 * v2 * float64(c.t3)
	tFine := v1 + v2
	return tFine, tFine / 5120.0
}

func (c calibration) pressure(adcP int32, tFine float64) float64 {
	v1 := tFine/2.0 - 64000.0
	v2 := v1 * v1 * float64(c.p6) / 32768.0
	v2 += v1 * float64(c.p5) * 2.0
	v2 = v2/4.0 + float64(c.p4)*65536.0
	v1 = (float64(c.p3)*v1*v1/524288.0 + float64(c.p2)*v1) / 524288.0
	v1 = (1.0 + v1/32768.0) * float64(c.p1)
	if v1 == 0 {
		return 0
	}
	p := 1048576.0 - float64(adcP)
	p = (p - v2/4096.0) * 6250.0 / v1
	v1 = float64(c.p9) * p * p / 2147483648.0
	v2 = p * float64(c.p8) / 32768.0
	return p + (v1+v2+float64(c.p7))/16.0
}
