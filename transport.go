package ov2680

import "time"

// Transport moves bytes to and from the sensor's 16 bit register space.
// WriteBurst writes data to consecutive registers starting at addr in one
// bus transaction. Read returns width bytes starting at addr, big-endian.
type Transport interface {
	WriteBurst(addr uint16, data []byte) error
	Read(addr uint16, width int) (uint32, error)
	Close() error
}

// Sleeper blocks the calling goroutine. Register programs use it for their delay entries.
type Sleeper interface {
	Sleep(d time.Duration)
}

type sleepFunc func(time.Duration)

func (f sleepFunc) Sleep(d time.Duration) { f(d) }

var realSleeper Sleeper = sleepFunc(time.Sleep)
