//go:build linux

package ov2680

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// i2c-dev ioctl request selecting the target address.
const i2cSlave = 0x0703

// I2CDev is a Transport on a Linux i2c-dev character device.
type I2CDev struct {
	fd      int
	address uint8

	mu sync.Mutex
}

// OpenI2CDev opens path (default /dev/i2c-1) and binds it to address.
func OpenI2CDev(path string, address uint8) (*I2CDev, error) {
	if path == "" {
		path = "/dev/i2c-1"
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, int(address)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to select address 0x%02X: %w", address, err)
	}
	return &I2CDev{fd: fd, address: address}, nil
}

func openI2CDev(path string, address uint8) (Transport, error) {
	d, err := OpenI2CDev(path, address)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *I2CDev) WriteBurst(addr uint16, data []byte) error {
	buf := make([]byte, 0, len(data)+2)
	buf = append(buf, byte(addr>>8), byte(addr))
	buf = append(buf, data...)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(buf)
}

func (d *I2CDev) Read(addr uint16, width int) (uint32, error) {
	if width < 1 || width > 4 {
		return 0, fmt.Errorf("invalid read width %d", width)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.write([]byte{byte(addr >> 8), byte(addr)}); err != nil {
		return 0, err
	}
	buf := make([]byte, width)
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		return 0, fmt.Errorf("i2c read fail: %w", err)
	}
	if n != width {
		return 0, fmt.Errorf("i2c read fail: got %d byte(s), want %d", n, width)
	}

	var v uint32
	for _, c := range buf {
		v = v<<8 | uint32(c)
	}
	return v, nil
}

func (d *I2CDev) write(buf []byte) error {
	n, err := unix.Write(d.fd, buf)
	if err != nil {
		return fmt.Errorf("i2c write fail: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("i2c write fail: short write %d/%d", n, len(buf))
	}
	return nil
}

func (d *I2CDev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}
