package ov2680

import "log/slog"

type writeBuffer struct {
	addr uint16
	data [MaxWriteBufSize]byte
	n    int
}

// batcher coalesces single byte register writes to consecutive addresses
// into burst transactions. Writes are never reordered.
type batcher struct {
	transport Transport
	retries   int
	logger    *slog.Logger
	metrics   *Metrics

	buf writeBuffer
}

func newBatcher(t Transport, retries int, logger *slog.Logger, metrics *Metrics) *batcher {
	if retries < 0 {
		retries = 0
	}
	return &batcher{transport: t, retries: retries, logger: logger, metrics: metrics}
}

// Queue appends one byte write. A write that does not continue the pending
// burst, or that would overflow it, flushes the pending burst first.
func (b *batcher) Queue(addr uint16, value byte) error {
	if b.buf.n > 0 && (int(b.buf.addr)+b.buf.n != int(addr) || b.buf.n == len(b.buf.data)) {
		if err := b.Flush(); err != nil {
			return err
		}
	}
	if b.buf.n == 0 {
		b.buf.addr = addr
	}
	b.buf.data[b.buf.n] = value
	b.buf.n++
	return nil
}

// Pending returns the number of queued bytes not yet on the bus.
func (b *batcher) Pending() int {
	return b.buf.n
}

// Flush sends the pending burst, retrying failed transactions. The buffer is
// emptied whether or not the burst succeeds.
func (b *batcher) Flush() error {
	if b.buf.n == 0 {
		return nil
	}
	addr := b.buf.addr
	data := append([]byte(nil), b.buf.data[:b.buf.n]...)
	b.buf.n = 0

	var err error
	attempts := 0
	for attempts <= b.retries {
		attempts++
		if err = b.transport.WriteBurst(addr, data); err == nil {
			b.metrics.burst(len(data))
			b.logger.Debug("burst written", "addr", hex16(addr), "len", len(data), "attempts", attempts)
			return nil
		}
		if attempts <= b.retries {
			b.metrics.retry()
			b.logger.Warn("burst write failed, retrying", "addr", hex16(addr), "len", len(data), "attempt", attempts, "err", err)
		}
	}

	b.metrics.busError()
	return &BusError{Addr: addr, Count: len(data), Attempts: attempts, Err: err}
}

// Discard drops anything still queued, used after an aborted program.
func (b *batcher) Discard() {
	b.buf.n = 0
}
