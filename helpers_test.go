package ov2680

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errFakeNack = errors.New("fake NACK")

type burst struct {
	addr uint16
	data []byte
}

// fakeTransport is a register file that records every burst and read.
type fakeTransport struct {
	mu     sync.Mutex
	regs   map[uint16]byte
	bursts []burst
	reads  []uint16
	events *[]string

	// failures makes the next N WriteBurst calls fail.
	failures int
	// failAlways makes every WriteBurst to failAddr fail.
	failAddr   uint16
	failAlways bool
	readErr    error
	closed     bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{regs: map[uint16]byte{
		0x300A: 0x26,
		0x300B: 0x80,
		0x302A: 0xA2,
	}}
}

func (f *fakeTransport) WriteBurst(addr uint16, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAlways && addr == f.failAddr {
		return errFakeNack
	}
	if f.failures > 0 {
		f.failures--
		return errFakeNack
	}
	f.bursts = append(f.bursts, burst{addr: addr, data: append([]byte(nil), data...)})
	for i, b := range data {
		f.regs[addr+uint16(i)] = b
	}
	if f.events != nil {
		*f.events = append(*f.events, fmt.Sprintf("burst 0x%04X/%d", addr, len(data)))
	}
	return nil
}

func (f *fakeTransport) Read(addr uint16, width int) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readErr != nil {
		return 0, f.readErr
	}
	f.reads = append(f.reads, addr)
	var v uint32
	for i := 0; i < width; i++ {
		v = v<<8 | uint32(f.regs[addr+uint16(i)])
	}
	return v, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTransport) burstCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bursts)
}

// writes flattens all bursts into single byte writes in bus order.
func (f *fakeTransport) writes() []RegisterOp {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ops []RegisterOp
	for _, b := range f.bursts {
		for i, v := range b.data {
			ops = append(ops, W8(b.addr+uint16(i), v))
		}
	}
	return ops
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bursts = nil
	f.reads = nil
}

type fakeSleeper struct {
	slept  []time.Duration
	events *[]string
}

func (s *fakeSleeper) Sleep(d time.Duration) {
	s.slept = append(s.slept, d)
	if s.events != nil {
		*s.events = append(*s.events, fmt.Sprintf("sleep %s", d))
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestInterpreter(t *fakeTransport, s Sleeper) *interpreter {
	logger := discardLogger()
	return &interpreter{batch: newBatcher(t, I2CRetryCount, logger, nil), sleep: s, logger: logger}
}

// newTestSensor returns an initialized sensor on a fake bus with the
// initialization traffic cleared.
func newTestSensor(t *testing.T, opts ...Option) (*OV2680, *fakeTransport) {
	t.Helper()

	bus := newFakeTransport()
	base := []Option{WithLogger(discardLogger()), WithSleeper(&fakeSleeper{})}
	s, err := New(bus, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	bus.reset()
	return s, bus
}

// flatten expands a program into the single byte writes it should produce.
func flatten(t *testing.T, prog Program) []RegisterOp {
	t.Helper()

	var ops []RegisterOp
	for _, op := range prog {
		if op.Kind == TokTerm {
			break
		}
		if op.Kind == TokDelay {
			continue
		}
		data, err := op.Bytes()
		if err != nil {
			t.Fatalf("Bytes(%s) error = %v", op, err)
		}
		for i, b := range data {
			ops = append(ops, W8(op.Reg+uint16(i), b))
		}
	}
	return ops
}

func equalOps(a, b []RegisterOp) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
