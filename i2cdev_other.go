//go:build !linux

package ov2680

import "errors"

func openI2CDev(path string, address uint8) (Transport, error) {
	return nil, errors.New("i2cdev transport is only supported on linux")
}
