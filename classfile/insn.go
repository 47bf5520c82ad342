package classfile

import (
	"encoding/binary"
	"fmt"
)

// Instruction is one decoded instruction. Branch and switch targets are
// absolute code offsets. Short local forms (iload_0 …) report their slot in
// Operand.
type Instruction struct {
	Offset   int
	Len      int
	Op       Opcode
	Operand  int // slot, pool index, immediate, array type or branch target
	Operand2 int // iinc delta, invokeinterface count, multianewarray dimensions
	Wide     bool

	Default int
	Keys    []int32
	Targets []int
}

// Decode decodes the instruction at offset.
func Decode(code []byte, offset int) (Instruction, error) {
	if offset < 0 || offset >= len(code) {
		return Instruction{}, fmt.Errorf("offset %d outside code of %d bytes", offset, len(code))
	}
	in := Instruction{Offset: offset, Op: Opcode(code[offset])}
	if !in.Op.Valid() {
		return in, fmt.Errorf("unknown opcode 0x%02X at offset %d", code[offset], offset)
	}
	need := func(n int) error {
		if offset+n > len(code) {
			return fmt.Errorf("truncated %s at offset %d", in.Op, offset)
		}
		return nil
	}
	u16 := func(at int) int { return int(binary.BigEndian.Uint16(code[at:])) }
	s32 := func(at int) int { return int(int32(binary.BigEndian.Uint32(code[at:]))) }

	switch op := in.Op; {
	case op == OpTableswitch || op == OpLookupswitch:
		pos := offset + 1
		for pos%4 != 0 {
			pos++
		}
		if err := need(pos - offset + 8); err != nil {
			return in, err
		}
		in.Default = offset + s32(pos)
		if op == OpTableswitch {
			low, high := s32(pos+4), s32(pos+8)
			if high < low {
				return in, fmt.Errorf("tableswitch with low %d > high %d at offset %d", low, high, offset)
			}
			n := high - low + 1
			if err := need(pos - offset + 12 + 4*n); err != nil {
				return in, err
			}
			for i := 0; i < n; i++ {
				in.Keys = append(in.Keys, int32(low+i))
				in.Targets = append(in.Targets, offset+s32(pos+12+4*i))
			}
			in.Len = pos - offset + 12 + 4*n
		} else {
			n := s32(pos + 4)
			if n < 0 {
				return in, fmt.Errorf("negative lookupswitch pair count at offset %d", offset)
			}
			if err := need(pos - offset + 8 + 8*n); err != nil {
				return in, err
			}
			for i := 0; i < n; i++ {
				in.Keys = append(in.Keys, int32(s32(pos+8+8*i)))
				in.Targets = append(in.Targets, offset+s32(pos+12+8*i))
			}
			in.Len = pos - offset + 8 + 8*n
		}
		return in, nil

	case op == OpWide:
		if err := need(4); err != nil {
			return in, err
		}
		in.Op = Opcode(code[offset+1])
		in.Wide = true
		in.Operand = u16(offset + 2)
		in.Len = 4
		if in.Op == OpIinc {
			if err := need(6); err != nil {
				return in, err
			}
			in.Operand2 = int(int16(u16(offset + 4)))
			in.Len = 6
		}
		return in, nil

	case op >= OpIload0 && op <= OpAload3:
		in.Operand = int(op-OpIload0) % 4
	case op >= OpIstore0 && op <= OpAstore3:
		in.Operand = int(op-OpIstore0) % 4
	}

	n := in.Op.Info().OperandLen
	if err := need(1 + n); err != nil {
		return in, err
	}
	in.Len = 1 + n
	switch op := in.Op; {
	case op == OpBipush:
		in.Operand = int(int8(code[offset+1]))
	case op == OpSipush:
		in.Operand = int(int16(u16(offset + 1)))
	case op == OpIinc:
		in.Operand = int(code[offset+1])
		in.Operand2 = int(int8(code[offset+2]))
	case op.IsBranch():
		in.Operand = offset + int(int16(u16(offset+1)))
	case op == OpGotoW || op == OpJsrW:
		in.Operand = offset + s32(offset+1)
	case op == OpInvokeinterface:
		in.Operand = u16(offset + 1)
		in.Operand2 = int(code[offset+3])
	case op == OpMultianewarray:
		in.Operand = u16(offset + 1)
		in.Operand2 = int(code[offset+3])
	case n == 1:
		in.Operand = int(code[offset+1])
	case n == 2 || n == 4:
		in.Operand = u16(offset + 1)
	}
	return in, nil
}

// Instructions decodes a whole method body.
func Instructions(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		in, err := Decode(code, pc)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
		pc += in.Len
	}
	return out, nil
}

// BaseLocalOp maps a short or generic local load/store to its generic form
// (iload … astore).
func BaseLocalOp(op Opcode) Opcode {
	switch {
	case op >= OpIload0 && op <= OpAload3:
		return OpIload + (op-OpIload0)/4
	case op >= OpIstore0 && op <= OpAstore3:
		return OpIstore + (op-OpIstore0)/4
	}
	return op
}
