package ov2680

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// TokenType is the kind of a register program entry. The values match the
// encoding used by the sensor vendor tables.
type TokenType uint16

const (
	Width8   TokenType = 0x0001
	Width16  TokenType = 0x0002
	Width32  TokenType = 0x0004
	TokTerm  TokenType = 0xf000
	TokDelay TokenType = 0xfe00
	TokMask  TokenType = 0xfff0
)

var tokenNames = map[TokenType]string{
	Width8:   "w8",
	Width16:  "w16",
	Width32:  "w32",
	TokDelay: "delay",
	TokTerm:  "term",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(0x%04X)", uint16(t))
}

// Width returns the number of bytes a write token covers, or 0 for anything else.
func (t TokenType) Width() int {
	switch t {
	case Width8:
		return 1
	case Width16:
		return 2
	case Width32:
		return 4
	}
	return 0
}

// RegisterOp is one entry of a register program. For TokDelay, Val is a
// duration in milliseconds and Reg is unused.
type RegisterOp struct {
	Kind TokenType
	Reg  uint16
	Val  uint32
}

func W8(reg uint16, val uint8) RegisterOp {
	return RegisterOp{Kind: Width8, Reg: reg, Val: uint32(val)}
}

func W16(reg uint16, val uint16) RegisterOp {
	return RegisterOp{Kind: Width16, Reg: reg, Val: uint32(val)}
}

func W32(reg uint16, val uint32) RegisterOp {
	return RegisterOp{Kind: Width32, Reg: reg, Val: val}
}

func Delay(ms uint32) RegisterOp {
	return RegisterOp{Kind: TokDelay, Val: ms}
}

func Term() RegisterOp {
	return RegisterOp{Kind: TokTerm}
}

func (op RegisterOp) String() string {
	switch op.Kind {
	case TokTerm:
		return "term"
	case TokDelay:
		return fmt.Sprintf("delay %dms", op.Val)
	}
	return fmt.Sprintf("%s 0x%04X=0x%X", op.Kind, op.Reg, op.Val)
}

// Bytes splits the value of a write entry into big-endian bytes, most
// significant first, destined for Reg, Reg+1, ...
func (op RegisterOp) Bytes() ([]byte, error) {
	n := op.Kind.Width()
	if n == 0 {
		return nil, fmt.Errorf("%s is not a write entry", op.Kind)
	}
	if n < 4 && op.Val>>(8*n) != 0 {
		return nil, fmt.Errorf("value 0x%X does not fit in %d bit", op.Val, 8*n)
	}

	data := make([]byte, n)
	for i := 0; i < n; i++ {
		data[i] = byte(op.Val >> (8 * (n - 1 - i)))
	}
	return data, nil
}

// UnmarshalYAML decodes the compact table form [kind, reg, val], for
// example [w8, 0x3086, 0x00] or [delay, 0, 10].
func (op *RegisterOp) UnmarshalYAML(value *yaml.Node) error {
	var fields []yaml.Node
	if err := value.Decode(&fields); err != nil {
		return fmt.Errorf("line %d: register entry must be a sequence: %w", value.Line, err)
	}
	if len(fields) != 3 {
		return fmt.Errorf("line %d: register entry needs 3 fields, got %d", value.Line, len(fields))
	}

	var kind string
	var reg, val uint32
	if err := fields[0].Decode(&kind); err != nil {
		return fmt.Errorf("line %d: failed to decode entry kind: %w", value.Line, err)
	}
	if err := fields[1].Decode(&reg); err != nil {
		return fmt.Errorf("line %d: failed to decode register: %w", value.Line, err)
	}
	if err := fields[2].Decode(&val); err != nil {
		return fmt.Errorf("line %d: failed to decode value: %w", value.Line, err)
	}
	if reg > 0xFFFF {
		return fmt.Errorf("line %d: register 0x%X out of range", value.Line, reg)
	}

	found := false
	for t, name := range tokenNames {
		if name == kind {
			op.Kind = t
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("line %d: unknown entry kind %q", value.Line, kind)
	}
	op.Reg = uint16(reg)
	op.Val = val
	return nil
}

// Program is an ordered list of register entries ending in a single TokTerm.
type Program []RegisterOp

// Validate checks a program statically: every entry decodes and exactly one
// terminator closes the list.
func (p Program) Validate() error {
	for i, op := range p {
		switch op.Kind {
		case TokTerm:
			if i != len(p)-1 {
				return &DecodeError{Index: i, Op: op, Reason: "terminator before end of program"}
			}
			return nil
		case TokDelay:
		default:
			if _, err := op.Bytes(); err != nil {
				return &DecodeError{Index: i, Op: op, Reason: err.Error()}
			}
		}
	}
	return &DecodeError{Index: len(p), Reason: "missing terminator"}
}

// Writes returns the number of register bytes the program touches.
func (p Program) Writes() int {
	n := 0
	for _, op := range p {
		if op.Kind == TokTerm {
			break
		}
		n += op.Kind.Width()
	}
	return n
}
