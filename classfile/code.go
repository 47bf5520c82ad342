package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCodeTooLarge is returned when a method body or a branch distance
// exceeds what the class-file format can encode.
var ErrCodeTooLarge = errors.New("method code too large")

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// Label marks a code position. Branches emitted before the label is marked
// are back-patched by Mark.
type Label struct {
	resolved bool
	position int
	refs     []labelRef
}

type labelRef struct {
	insn int  // offset of the branching instruction
	at   int  // offset of the operand to patch
	wide bool // 32-bit operand (switch tables)
}

// ExceptionEntry is one resolved exception-table row.
type ExceptionEntry struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16 // 0 catches everything
}

type handler struct {
	start, end, target *Label
	catchType          uint16
}

// ---------------------------------------------------------------------------
// Code builder
// ---------------------------------------------------------------------------

// Code accumulates the instructions of one method.
type Code struct {
	buf       []byte
	handlers  []handler
	pending   []*Label
	reachable bool
	err       error
}

// NewCode creates an empty code buffer.
func NewCode() *Code {
	return &Code{buf: make([]byte, 0, 64), reachable: true}
}

// Len returns the current code length.
func (c *Code) Len() int { return len(c.buf) }

// Reachable reports whether control can fall into the next emitted
// instruction. It is conservative: marking any label makes code reachable.
func (c *Code) Reachable() bool { return c.reachable }

func (c *Code) setErr(err error) {
	if c.err == nil {
		c.err = err
	}
}

// NewLabel creates an unresolved label.
func (c *Code) NewLabel() *Label {
	return &Label{refs: make([]labelRef, 0, 2)}
}

// Mark resolves a label to the current position.
func (c *Code) Mark(l *Label) {
	if l.resolved {
		panic("label already resolved")
	}
	l.resolved = true
	l.position = len(c.buf)
	for _, ref := range l.refs {
		c.patch(ref, l.position)
	}
	l.refs = nil
	c.reachable = true
}

// Join resolves l like Mark, but the following code stays unreachable when
// control cannot fall into l and no branch to l has been emitted yet.
func (c *Code) Join(l *Label) {
	reachable := c.reachable || len(l.refs) > 0
	c.Mark(l)
	c.reachable = reachable
}

// Here returns a label resolved at the current position without changing
// reachability. It bounds protected ranges.
func (c *Code) Here() *Label {
	return &Label{resolved: true, position: len(c.buf)}
}

// Position returns the offset of a resolved label.
func (c *Code) Position(l *Label) (int, bool) { return l.position, l.resolved }

func (c *Code) patch(ref labelRef, target int) {
	offset := target - ref.insn
	if ref.wide {
		binary.BigEndian.PutUint32(c.buf[ref.at:], uint32(int32(offset)))
		return
	}
	if offset < math.MinInt16 || offset > math.MaxInt16 {
		c.setErr(fmt.Errorf("%w: branch distance %d at offset %d", ErrCodeTooLarge, offset, ref.insn))
		return
	}
	binary.BigEndian.PutUint16(c.buf[ref.at:], uint16(int16(offset)))
}

func (c *Code) refer(l *Label, insn int, wide bool) {
	ref := labelRef{insn: insn, at: len(c.buf), wide: wide}
	if wide {
		c.buf = append(c.buf, 0, 0, 0, 0)
	} else {
		c.buf = append(c.buf, 0xFF, 0xFF) // placeholder
	}
	if l.resolved {
		c.patch(ref, l.position)
		return
	}
	if len(l.refs) == 0 {
		c.pending = append(c.pending, l)
	}
	l.refs = append(l.refs, ref)
}

func (c *Code) after(op Opcode) {
	if op.EndsBlock() {
		c.reachable = false
	}
}

// Emit emits an instruction without operands.
func (c *Code) Emit(op Opcode) {
	c.buf = append(c.buf, byte(op))
	c.after(op)
}

// EmitU8 emits an instruction with an unsigned byte operand.
func (c *Code) EmitU8(op Opcode, v uint8) {
	c.buf = append(c.buf, byte(op), v)
}

// EmitI8 emits an instruction with a signed byte operand (bipush).
func (c *Code) EmitI8(op Opcode, v int8) {
	c.buf = append(c.buf, byte(op), byte(v))
}

// EmitU16 emits an instruction with a 16-bit operand, usually a constant
// pool index.
func (c *Code) EmitU16(op Opcode, v uint16) {
	c.buf = append(c.buf, byte(op))
	c.buf = binary.BigEndian.AppendUint16(c.buf, v)
}

// EmitI16 emits an instruction with a signed 16-bit operand (sipush).
func (c *Code) EmitI16(op Opcode, v int16) { c.EmitU16(op, uint16(v)) }

// EmitInvokeInterface emits invokeinterface with its argument word count.
func (c *Code) EmitInvokeInterface(index uint16, argWords uint8) {
	c.buf = append(c.buf, byte(OpInvokeinterface))
	c.buf = binary.BigEndian.AppendUint16(c.buf, index)
	c.buf = append(c.buf, argWords, 0)
}

// EmitLocal emits a load or store of a local slot. op is the generic form
// (iload … astore); the short _0.._3 forms and wide are chosen here.
func (c *Code) EmitLocal(op Opcode, slot int) {
	var short Opcode
	switch {
	case op >= OpIload && op <= OpAload:
		short = OpIload0 + (op-OpIload)*4
	case op >= OpIstore && op <= OpAstore:
		short = OpIstore0 + (op-OpIstore)*4
	default:
		panic(fmt.Sprintf("classfile: %s is not a local variable instruction", op))
	}
	switch {
	case slot < 4:
		c.buf = append(c.buf, byte(short+Opcode(slot)))
	case slot <= math.MaxUint8:
		c.buf = append(c.buf, byte(op), byte(slot))
	case slot <= math.MaxUint16:
		c.buf = append(c.buf, byte(OpWide), byte(op))
		c.buf = binary.BigEndian.AppendUint16(c.buf, uint16(slot))
	default:
		c.setErr(fmt.Errorf("%w: local slot %d", ErrCodeTooLarge, slot))
	}
}

// EmitJump emits a 16-bit branch to l.
func (c *Code) EmitJump(op Opcode, l *Label) {
	if !op.IsBranch() {
		panic(fmt.Sprintf("classfile: %s is not a branch", op))
	}
	insn := len(c.buf)
	c.buf = append(c.buf, byte(op))
	c.refer(l, insn, false)
	c.after(op)
}

func (c *Code) align() {
	for len(c.buf)%4 != 0 {
		c.buf = append(c.buf, 0)
	}
}

// EmitTableSwitch emits a tableswitch over [low, high]. targets has one
// label per key in the range.
func (c *Code) EmitTableSwitch(low, high int32, dflt *Label, targets []*Label) {
	if int64(high)-int64(low)+1 != int64(len(targets)) {
		panic("classfile: tableswitch target count does not match range")
	}
	insn := len(c.buf)
	c.buf = append(c.buf, byte(OpTableswitch))
	c.align()
	c.refer(dflt, insn, true)
	c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(low))
	c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(high))
	for _, t := range targets {
		c.refer(t, insn, true)
	}
	c.reachable = false
}

// EmitLookupSwitch emits a lookupswitch. keys must be sorted ascending.
func (c *Code) EmitLookupSwitch(dflt *Label, keys []int32, targets []*Label) {
	if len(keys) != len(targets) {
		panic("classfile: lookupswitch key and target counts differ")
	}
	insn := len(c.buf)
	c.buf = append(c.buf, byte(OpLookupswitch))
	c.align()
	c.refer(dflt, insn, true)
	c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(len(keys)))
	for i, k := range keys {
		c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(k))
		c.refer(targets[i], insn, true)
	}
	c.reachable = false
}

// AddHandler registers an exception-table entry covering [start, end).
// Entries are kept in registration order, which is the order the VM
// searches them.
func (c *Code) AddHandler(start, end, target *Label, catchType uint16) {
	c.handlers = append(c.handlers, handler{start: start, end: end, target: target, catchType: catchType})
}

// Finish resolves the code and exception table. Empty protected ranges are
// dropped.
func (c *Code) Finish() ([]byte, []ExceptionEntry, error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	if len(c.buf) == 0 || len(c.buf) > math.MaxUint16 {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrCodeTooLarge, len(c.buf))
	}
	for _, l := range c.pending {
		if !l.resolved {
			return nil, nil, errors.New("branch to an unmarked label")
		}
	}
	var table []ExceptionEntry
	for _, h := range c.handlers {
		if !h.start.resolved || !h.end.resolved || !h.target.resolved {
			return nil, nil, errors.New("exception handler references an unmarked label")
		}
		if h.start.position >= h.end.position {
			continue
		}
		table = append(table, ExceptionEntry{
			StartPC:   uint16(h.start.position),
			EndPC:     uint16(h.end.position),
			HandlerPC: uint16(h.target.position),
			CatchType: h.catchType,
		})
	}
	return c.buf, table, nil
}
