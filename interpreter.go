package ov2680

import (
	"errors"
	"log/slog"
	"time"
)

// interpreter walks register programs, feeding writes to the batcher in
// program order and honoring delay entries.
type interpreter struct {
	batch  *batcher
	sleep  Sleeper
	logger *slog.Logger
}

// Apply runs prog until its terminator. A delay flushes pending writes and
// then blocks. Bus failures abort the program where they happened; writes
// already on the bus are not rolled back.
func (in *interpreter) Apply(prog Program) error {
	for i, op := range prog {
		switch op.Kind {
		case TokTerm:
			return in.batch.Flush()
		case TokDelay:
			if err := in.batch.Flush(); err != nil {
				return err
			}
			in.sleep.Sleep(time.Duration(op.Val) * time.Millisecond)
		default:
			data, err := op.Bytes()
			if err != nil {
				return in.abort(&DecodeError{Index: i, Op: op, Reason: err.Error()})
			}
			for j, b := range data {
				if err := in.batch.Queue(op.Reg+uint16(j), b); err != nil {
					in.batch.Discard()
					return err
				}
			}
		}
	}
	return in.abort(&DecodeError{Index: len(prog), Reason: "program ended without terminator"})
}

// abort pushes the writes that preceded a malformed entry, keeping the
// partially applied state identical to what the bus has seen.
func (in *interpreter) abort(decodeErr *DecodeError) error {
	if err := in.batch.Flush(); err != nil {
		return errors.Join(decodeErr, err)
	}
	in.logger.Error("register program aborted", "entry", decodeErr.Index, "reason", decodeErr.Reason)
	return decodeErr
}

