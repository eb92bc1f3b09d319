//go:build linux

package i2c

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// message mirrors struct i2c_msg from <linux/i2c.h>.
type message struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

// rdwrArgs mirrors struct i2c_rdwr_ioctl_data.
type rdwrArgs struct {
	msgs  uintptr
	nmsgs uint32
}

// Device is one 7-bit address on a /dev/i2c-N bus. A register read is a
// single I2C_RDWR call: pointer write, repeated start, data read.
// A Device is not safe for concurrent use.
type Device struct {
	f    *os.File
	path string
	addr uint16
}

// Open opens the bus at path for the device at addr.
func Open(path string, addr uint16) (*Device, error) {
	if addr == 0 || addr > 0x7F {
		return nil, fmt.Errorf("i2c: invalid addr 0x%X", addr)
	}
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &Device{f: f, path: path, addr: addr}, nil
}

func (d *Device) String() string {
	return fmt.Sprintf("%s@0x%02X", d.path, d.addr)
}

func (d *Device) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *Device) ReadReg(reg byte, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	ptr := []byte{reg}
	err := d.rdwr(
		message{addr: d.addr, len: 1, buf: uintptr(unsafe.Pointer(&ptr[0]))},
		message{addr: d.addr, flags: unix.I2C_M_RD, len: uint16(len(dst)), buf: uintptr(unsafe.Pointer(&dst[0]))},
	)
	runtime.KeepAlive(ptr)
	runtime.KeepAlive(dst)
	return err
}

func (d *Device) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Device) WriteReg(reg, value byte) error {
	p := []byte{reg, value}
	err := d.rdwr(message{addr: d.addr, len: 2, buf: uintptr(unsafe.Pointer(&p[0]))})
	runtime.KeepAlive(p)
	return err
}

func (d *Device) rdwr(msgs ...message) error {
	if d == nil || d.f == nil {
		return errors.New("i2c: device is not open")
	}
	args := rdwrArgs{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), unix.I2C_RDWR, uintptr(unsafe.Pointer(&args)))
	// The kernel follows the uintptrs; callers keep the data buffers alive.
	runtime.KeepAlive(msgs)
	if errno != 0 {
		return fmt.Errorf("i2c: %s: %w", d, errno)
	}
	return nil
}
