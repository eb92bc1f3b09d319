//go:build !linux

package i2c

import "errors"

var errUnsupported = errors.New("i2c: unsupported OS (need linux)")

type Device struct{}

func Open(path string, addr uint16) (*Device, error) { return nil, errUnsupported }

func (d *Device) String() string                     { return "" }
func (d *Device) Close() error                       { return nil }
func (d *Device) ReadReg(reg byte, dst []byte) error { return errUnsupported }
func (d *Device) ReadRegU8(reg byte) (byte, error)   { return 0, errUnsupported }
func (d *Device) WriteReg(reg, value byte) error     { return errUnsupported }
