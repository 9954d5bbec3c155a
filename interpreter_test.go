package ov2680

import (
	"errors"
	"testing"
	"time"
)

func TestInterpreter_ProgramOrder(t *testing.T) {
	prog := Program{
		W8(0x3086, 0x00),
		W8(0x3501, 0x48),
		W8(0x3502, 0xe0),
		W16(0x3503, 0x0302),
		W8(0x3800, 0x00),
		W32(0x3801, 0x11223344),
		W8(0x0100, 0x01),
		W8(0x0100, 0x00),
		Term(),
	}

	bus := newFakeTransport()
	in := newTestInterpreter(bus, &fakeSleeper{})
	if err := in.Apply(prog); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if got, want := bus.writes(), flatten(t, prog); !equalOps(got, want) {
		t.Errorf("bus order:\n got %v\nwant %v", got, want)
	}
	// 0x3501-0x3504 coalesce, 0x3800-0x3804 coalesce, the repeated 0x0100 does not.
	if bus.burstCount() != 5 {
		t.Errorf("got %d bursts, want 5: %+v", bus.burstCount(), bus.bursts)
	}
}

func TestInterpreter_WidthRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		op    RegisterOp
		width int
	}{
		{"8 bit", W8(0x350B, 0x36), 1},
		{"16 bit", W16(0x380E, 0x050E), 2},
		{"32 bit", W32(0x5004, 0x0400_0fff), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newFakeTransport()
			in := newTestInterpreter(bus, &fakeSleeper{})
			if err := in.Apply(Program{tt.op, Term()}); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			got, _ := bus.Read(tt.op.Reg, tt.width)
			if got != tt.op.Val {
				t.Errorf("read back 0x%X, want 0x%X", got, tt.op.Val)
			}
		})
	}
}

func TestInterpreter_DelayFlushesFirst(t *testing.T) {
	var events []string
	bus := newFakeTransport()
	bus.events = &events
	sleeper := &fakeSleeper{events: &events}
	in := newTestInterpreter(bus, sleeper)

	prog := Program{W8(0x0103, 0x01), Delay(10), W8(0x3002, 0x00), W8(0x3003, 0x01), Term()}
	if err := in.Apply(prog); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := []string{"burst 0x0103/1", "sleep 10ms", "burst 0x3002/2"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, events[i], want[i])
		}
	}
	if sleeper.slept[0] != 10*time.Millisecond {
		t.Errorf("slept %s, want 10ms", sleeper.slept[0])
	}
}

func TestInterpreter_StopsAtTerminator(t *testing.T) {
	bus := newFakeTransport()
	in := newTestInterpreter(bus, &fakeSleeper{})

	if err := in.Apply(Program{W8(0x3000, 1), Term(), W8(0x3001, 2)}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := bus.writes(); len(got) != 1 {
		t.Errorf("entries after the terminator were applied: %v", got)
	}
}

func TestInterpreter_MissingTerminator(t *testing.T) {
	bus := newFakeTransport()
	in := newTestInterpreter(bus, &fakeSleeper{})

	err := in.Apply(Program{W8(0x3000, 1), W8(0x3001, 2)})
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Apply() error = %v, want *DecodeError", err)
	}
	if decodeErr.Index != 2 {
		t.Errorf("Index = %d, want 2", decodeErr.Index)
	}
	// Everything before the end of data reached the bus in order.
	if got := bus.writes(); len(got) != 2 {
		t.Errorf("writes = %v, want the two preceding writes", got)
	}
}

func TestInterpreter_UnknownWidthAborts(t *testing.T) {
	bus := newFakeTransport()
	in := newTestInterpreter(bus, &fakeSleeper{})

	prog := Program{W8(0x3000, 1), {Kind: 0x0008, Reg: 0x3001, Val: 2}, W8(0x3002, 3), Term()}
	err := in.Apply(prog)

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Apply() error = %v, want *DecodeError", err)
	}
	if decodeErr.Index != 1 || decodeErr.Op.Reg != 0x3001 {
		t.Errorf("DecodeError = %+v, want entry 1 at 0x3001", decodeErr)
	}
	for _, w := range bus.writes() {
		if w.Reg == 0x3002 {
			t.Errorf("entry after the malformed one was applied")
		}
	}
}

func TestInterpreter_BusErrorAborts(t *testing.T) {
	bus := newFakeTransport()
	bus.failAlways = true
	bus.failAddr = 0x3800
	sleeper := &fakeSleeper{}
	in := newTestInterpreter(bus, sleeper)

	prog := Program{W8(0x3086, 0), W8(0x3800, 0), W8(0x3801, 0), Delay(5), W8(0x4000, 0x81), Term()}
	err := in.Apply(prog)

	var busErr *BusError
	if !errors.As(err, &busErr) {
		t.Fatalf("Apply() error = %v, want *BusError", err)
	}
	if busErr.Addr != 0x3800 || busErr.Attempts != I2CRetryCount+1 {
		t.Errorf("BusError = %+v, want addr 0x3800 after %d attempts", busErr, I2CRetryCount+1)
	}
	if len(sleeper.slept) != 0 {
		t.Errorf("program continued past the failed burst")
	}
	if got := bus.writes(); len(got) != 1 || got[0].Reg != 0x3086 {
		t.Errorf("writes = %v, want only 0x3086", got)
	}
}

func TestInterpreter_GlobalSetting(t *testing.T) {
	bus := newFakeTransport()
	in := newTestInterpreter(bus, &fakeSleeper{})

	prog := GlobalSetting()
	if err := in.Apply(prog); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got, want := bus.writes(), flatten(t, prog); !equalOps(got, want) {
		t.Errorf("global setting applied out of order")
	}
	if bus.regs[0x0100] != StopStreaming {
		t.Errorf("global setting should leave the stream off")
	}
}
