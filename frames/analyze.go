package frames

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/chazu/sourcegen/classfile"
)

// ErrFrameMismatch is wrapped by every *Error.
var ErrFrameMismatch = errors.New("inconsistent stack map frames")

// Error reports an instruction whose operands or incoming frames do not
// type-check.
type Error struct {
	Offset int
	Opcode classfile.Opcode
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at offset %d (%s)", e.Msg, e.Offset, e.Opcode)
}

func (e *Error) Unwrap() error { return ErrFrameMismatch }

// Method is the input to Analyze.
type Method struct {
	Owner    string // internal name of the declaring class
	Desc     string
	Static   bool
	Ctor     bool
	Code     []byte
	Handlers []classfile.ExceptionEntry
	Pool     *classfile.ConstantPool
}

// Result is the outcome of a successful analysis. Code and Handlers are
// copies of the input with unreachable code replaced by nop … athrow and
// removed from the protected ranges.
type Result struct {
	MaxStack  int
	MaxLocals int
	Code      []byte
	Handlers  []classfile.ExceptionEntry
	Initial   []classfile.VerificationType
	Frames    []classfile.StackMapFrame
}

type analyzer struct {
	m     *Method
	h     Hierarchy
	insns []classfile.Instruction
	index map[int]int // code offset to instruction index

	initial *frame
	in      []*frame // merged incoming frame; nil until reached
	queued  []bool
	work    []int
	targets map[int]bool // offsets that need an explicit frame

	maxStack  int
	maxLocals int
}

// Analyze runs the dataflow simulation over m to a fixed point.
func Analyze(m *Method, h Hierarchy) (*Result, error) {
	if len(m.Code) == 0 {
		return nil, &Error{Msg: "empty method body"}
	}
	insns, err := classfile.Instructions(m.Code)
	if err != nil {
		return nil, err
	}
	a := &analyzer{
		m:       m,
		h:       h,
		insns:   insns,
		index:   make(map[int]int, len(insns)),
		in:      make([]*frame, len(insns)),
		queued:  make([]bool, len(insns)),
		targets: make(map[int]bool),
	}
	for i, in := range insns {
		a.index[in.Offset] = i
	}
	if err := a.initialFrame(); err != nil {
		return nil, err
	}
	a.in[0] = a.initial.clone()
	a.enqueue(0)
	for len(a.work) > 0 {
		i := a.work[len(a.work)-1]
		a.work = a.work[:len(a.work)-1]
		a.queued[i] = false
		if err := a.step(i); err != nil {
			return nil, err
		}
	}
	return a.result(), nil
}

func (a *analyzer) initialFrame() error {
	params, _, err := classfile.ParseMethodDescriptor(a.m.Desc)
	if err != nil {
		return err
	}
	f := &frame{}
	if !a.m.Static {
		if a.m.Ctor && a.m.Owner != ObjectClass {
			f.locals = append(f.locals, UninitThis)
		} else {
			f.locals = append(f.locals, Ref(a.m.Owner))
		}
	}
	for _, p := range params {
		v := FromDescriptor(p)
		f.locals = append(f.locals, v)
		if v.Wide() {
			f.locals = append(f.locals, Top)
		}
	}
	a.initial = f
	a.maxLocals = len(f.locals)
	return nil
}

func (a *analyzer) enqueue(i int) {
	if !a.queued[i] {
		a.queued[i] = true
		a.work = append(a.work, i)
	}
}

func (a *analyzer) noteStack(words int) { a.maxStack = max(a.maxStack, words) }

func isStore(op classfile.Opcode) bool {
	base := classfile.BaseLocalOp(op)
	return (base >= classfile.OpIstore && base <= classfile.OpAstore) || op == classfile.OpIinc
}

// step simulates instruction i from its merged incoming frame and
// propagates the result to its successors and handlers.
func (a *analyzer) step(i int) error {
	in := a.insns[i]
	f := a.in[i].clone()
	pre := append([]VType(nil), f.locals...)
	a.noteStack(f.words())

	s := &sim{a: a, in: in, f: f}
	s.exec()
	if s.err != nil {
		return s.err
	}
	a.noteStack(f.words())

	for _, hd := range a.m.Handlers {
		if in.Offset < int(hd.StartPC) || in.Offset >= int(hd.EndPC) {
			continue
		}
		catch := Ref("java/lang/Throwable")
		if hd.CatchType != 0 {
			name, err := a.m.Pool.ClassAt(hd.CatchType)
			if err != nil {
				return &Error{Offset: in.Offset, Opcode: in.Op, Msg: err.Error()}
			}
			catch = Ref(name)
		}
		target := int(hd.HandlerPC)
		a.targets[target] = true
		if err := a.flow(in, target, &frame{locals: pre, stack: []VType{catch}}); err != nil {
			return err
		}
		if isStore(in.Op) {
			if err := a.flow(in, target, &frame{locals: f.locals, stack: []VType{catch}}); err != nil {
				return err
			}
		}
	}

	op := in.Op
	switch {
	case op == classfile.OpTableswitch || op == classfile.OpLookupswitch:
		for _, t := range append([]int{in.Default}, in.Targets...) {
			a.targets[t] = true
			if err := a.flow(in, t, f); err != nil {
				return err
			}
		}
	case op.IsBranch() || op == classfile.OpGotoW:
		a.targets[in.Operand] = true
		if err := a.flow(in, in.Operand, f); err != nil {
			return err
		}
		if op.IsConditional() {
			return a.fallThrough(i, f)
		}
	case op.EndsBlock():
	default:
		return a.fallThrough(i, f)
	}
	if i+1 < len(a.insns) {
		a.targets[a.insns[i+1].Offset] = true
	}
	return nil
}

func (a *analyzer) fallThrough(i int, f *frame) error {
	if i+1 >= len(a.insns) {
		in := a.insns[i]
		return &Error{Offset: in.Offset, Opcode: in.Op, Msg: "execution falls off the end of the code"}
	}
	return a.flow(a.insns[i], a.insns[i+1].Offset, f)
}

// flow merges f into the incoming frame of the instruction at target.
func (a *analyzer) flow(from classfile.Instruction, target int, f *frame) error {
	j, ok := a.index[target]
	if !ok {
		return &Error{Offset: from.Offset, Opcode: from.Op, Msg: fmt.Sprintf("branch target %d is not an instruction", target)}
	}
	if a.in[j] == nil {
		a.in[j] = f.clone()
		a.enqueue(j)
		return nil
	}
	changed, msg := a.merge(a.in[j], f)
	if msg != "" {
		return &Error{Offset: target, Opcode: a.insns[j].Op, Msg: fmt.Sprintf("%s (from offset %d)", msg, from.Offset)}
	}
	if changed {
		a.enqueue(j)
	}
	return nil
}

// merge widens dst to cover src. Stacks must agree in height and category;
// locals that disagree become Top.
func (a *analyzer) merge(dst, src *frame) (changed bool, msg string) {
	if len(dst.stack) != len(src.stack) {
		return false, fmt.Sprintf("stack height %d does not match %d", len(src.stack), len(dst.stack))
	}
	for i := range dst.stack {
		v, ok := a.mergeValue(dst.stack[i], src.stack[i])
		if !ok {
			return false, fmt.Sprintf("stack slot %d: %s does not merge with %s", i, src.stack[i], dst.stack[i])
		}
		if v != dst.stack[i] {
			dst.stack[i] = v
			changed = true
		}
	}
	for i := range dst.locals {
		s := Top
		if i < len(src.locals) {
			s = src.locals[i]
		}
		v, ok := a.mergeValue(dst.locals[i], s)
		if !ok {
			v = Top
		}
		if v != dst.locals[i] {
			dst.locals[i] = v
			changed = true
		}
	}
	return changed, ""
}

func (a *analyzer) mergeValue(x, y VType) (VType, bool) {
	switch {
	case x == y:
		return x, true
	case x.Kind == KindNull && y.Kind == KindRef:
		return y, true
	case y.Kind == KindNull && x.Kind == KindRef:
		return x, true
	case x.Kind == KindRef && y.Kind == KindRef:
		return Ref(CommonSuperClass(a.h, x.Class, y.Class)), true
	}
	return Top, false
}

func (a *analyzer) result() *Result {
	r := &Result{
		MaxLocals: a.maxLocals,
		Code:      append([]byte(nil), a.m.Code...),
		Initial:   compressLocals(a.initial.locals),
	}
	throwable := classfile.VerificationType{Tag: classfile.VTObject, Class: "java/lang/Throwable"}
	for i := 0; i < len(a.insns); {
		if a.in[i] != nil {
			i++
			continue
		}
		j := i
		for j < len(a.insns) && a.in[j] == nil {
			j++
		}
		start, end := a.insns[i].Offset, len(r.Code)
		if j < len(a.insns) {
			end = a.insns[j].Offset
		}
		for k := start; k < end-1; k++ {
			r.Code[k] = byte(classfile.OpNop)
		}
		r.Code[end-1] = byte(classfile.OpAthrow)
		r.Frames = append(r.Frames, classfile.StackMapFrame{
			Offset: start,
			Stack:  []classfile.VerificationType{throwable},
		})
		a.noteStack(1)
		i = j
	}
	r.MaxStack = a.maxStack

	for off := range a.targets {
		j, ok := a.index[off]
		if !ok || a.in[j] == nil {
			continue
		}
		r.Frames = append(r.Frames, classfile.StackMapFrame{
			Offset: off,
			Locals: compressLocals(a.in[j].locals),
			Stack:  compressStack(a.in[j].stack),
		})
	}
	slices.SortFunc(r.Frames, func(x, y classfile.StackMapFrame) int { return x.Offset - y.Offset })

	for _, hd := range a.m.Handlers {
		runStart := -1
		for i, in := range a.insns {
			live := in.Offset >= int(hd.StartPC) && in.Offset < int(hd.EndPC) && a.in[i] != nil
			switch {
			case live && runStart < 0:
				runStart = in.Offset
			case !live && runStart >= 0:
				r.Handlers = append(r.Handlers, splitHandler(hd, runStart, in.Offset))
				runStart = -1
			}
		}
		if runStart >= 0 {
			r.Handlers = append(r.Handlers, splitHandler(hd, runStart, int(hd.EndPC)))
		}
	}
	return r
}

func splitHandler(hd classfile.ExceptionEntry, start, end int) classfile.ExceptionEntry {
	hd.StartPC, hd.EndPC = uint16(start), uint16(end)
	return hd
}

// ---------------------------------------------------------------------------
// Instruction simulation
// ---------------------------------------------------------------------------

// sim applies one instruction to a frame. The first failure sticks.
type sim struct {
	a   *analyzer
	in  classfile.Instruction
	f   *frame
	err error
}

var typed = [4]VType{Int, Long, Float, Double}

// conversions maps i2l … i2s to their operand and result types.
var conversions = map[classfile.Opcode][2]VType{
	classfile.OpI2l: {Int, Long},
	classfile.OpI2f: {Int, Float},
	classfile.OpI2d: {Int, Double},
	classfile.OpL2i: {Long, Int},
	classfile.OpL2f: {Long, Float},
	classfile.OpL2d: {Long, Double},
	classfile.OpF2i: {Float, Int},
	classfile.OpF2l: {Float, Long},
	classfile.OpF2d: {Float, Double},
	classfile.OpD2i: {Double, Int},
	classfile.OpD2l: {Double, Long},
	classfile.OpD2f: {Double, Float},
	classfile.OpI2b: {Int, Int},
	classfile.OpI2c: {Int, Int},
	classfile.OpI2s: {Int, Int},
}

var newarrayTypes = map[int]string{
	4: "[Z", 5: "[C", 6: "[F", 7: "[D", 8: "[B", 9: "[S", 10: "[I", 11: "[J",
}

func (s *sim) fail(format string, args ...any) {
	if s.err == nil {
		s.err = &Error{Offset: s.in.Offset, Opcode: s.in.Op, Msg: fmt.Sprintf(format, args...)}
	}
}

func (s *sim) push(vs ...VType) { s.f.stack = append(s.f.stack, vs...) }

func (s *sim) pop() VType {
	if s.err != nil {
		return Top
	}
	n := len(s.f.stack)
	if n == 0 {
		s.fail("operand stack underflow")
		return Top
	}
	v := s.f.stack[n-1]
	s.f.stack = s.f.stack[:n-1]
	return v
}

// popAs pops a value of the same kind as want; any reference satisfies a
// reference want.
func (s *sim) popAs(want VType) VType {
	v := s.pop()
	if s.err != nil {
		return v
	}
	if want.IsReference() {
		if !v.IsReference() {
			s.fail("expected a reference on the stack, found %s", v)
		}
		return v
	}
	if v.Kind != want.Kind {
		s.fail("expected %s on the stack, found %s", want, v)
	}
	return v
}

func (s *sim) popRef() VType { return s.popAs(Null) }

// popCat1 pops a one-word value.
func (s *sim) popCat1() VType {
	v := s.pop()
	if s.err == nil && v.Wide() {
		s.fail("%s splits a two-word value", s.in.Op)
	}
	return v
}

func (s *sim) load(slot int, want VType) {
	s.a.maxLocals = max(s.a.maxLocals, slot+want.Words())
	if slot >= len(s.f.locals) || s.f.locals[slot].Kind == KindTop {
		s.fail("load of unset or conflicting local %d", slot)
		return
	}
	v := s.f.locals[slot]
	if want.IsReference() {
		if !v.IsReference() {
			s.fail("local %d holds %s, not a reference", slot, v)
			return
		}
	} else if v.Kind != want.Kind {
		s.fail("local %d holds %s, not %s", slot, v, want)
		return
	}
	s.push(v)
}

func (s *sim) store(slot int, v VType) {
	end := slot + v.Words()
	s.a.maxLocals = max(s.a.maxLocals, end)
	for len(s.f.locals) < end {
		s.f.locals = append(s.f.locals, Top)
	}
	if slot > 0 && s.f.locals[slot-1].Wide() {
		s.f.locals[slot-1] = Top
	}
	if s.f.locals[slot].Wide() && !v.Wide() && slot+1 < len(s.f.locals) {
		s.f.locals[slot+1] = Top
	}
	s.f.locals[slot] = v
	if v.Wide() {
		s.f.locals[slot+1] = Top
	}
}

func (s *sim) member() (classfile.MemberRef, bool) {
	m, err := s.a.m.Pool.MemberAt(uint16(s.in.Operand))
	if err != nil {
		s.fail("%v", err)
		return m, false
	}
	return m, true
}

func (s *sim) class() (string, bool) {
	name, err := s.a.m.Pool.ClassAt(uint16(s.in.Operand))
	if err != nil {
		s.fail("%v", err)
		return "", false
	}
	return name, true
}

// replace substitutes every occurrence of an uninitialized value once its
// constructor has run.
func (s *sim) replace(old, with VType) {
	for i, v := range s.f.stack {
		if v == old {
			s.f.stack[i] = with
		}
	}
	for i, v := range s.f.locals {
		if v == old {
			s.f.locals[i] = with
		}
	}
}

func (s *sim) exec() {
	op := s.in.Op
	base := classfile.BaseLocalOp(op)
	switch {
	case op == classfile.OpNop:
	case op == classfile.OpAconstNull:
		s.push(Null)
	case op >= classfile.OpIconstM1 && op <= classfile.OpIconst5,
		op == classfile.OpBipush, op == classfile.OpSipush:
		s.push(Int)
	case op == classfile.OpLconst0 || op == classfile.OpLconst1:
		s.push(Long)
	case op >= classfile.OpFconst0 && op <= classfile.OpFconst2:
		s.push(Float)
	case op == classfile.OpDconst0 || op == classfile.OpDconst1:
		s.push(Double)
	case op == classfile.OpLdc || op == classfile.OpLdcW || op == classfile.OpLdc2W:
		s.ldc()

	case base >= classfile.OpIload && base <= classfile.OpAload:
		s.load(s.in.Operand, localType(base-classfile.OpIload))
	case base >= classfile.OpIstore && base <= classfile.OpAstore:
		want := localType(base - classfile.OpIstore)
		v := s.popAs(want)
		if s.err == nil {
			s.store(s.in.Operand, v)
		}
	case op == classfile.OpIinc:
		s.load(s.in.Operand, Int)
		s.pop()

	case op >= classfile.OpIaload && op <= classfile.OpSaload:
		s.popAs(Int)
		arr := s.popRef()
		s.arrayLoad(op, arr)
	case op >= classfile.OpIastore && op <= classfile.OpSastore:
		s.popAs(arrayElement(op - classfile.OpIastore))
		s.popAs(Int)
		s.popRef()

	case op >= classfile.OpPop && op <= classfile.OpSwap:
		s.stackOp(op)

	case op >= classfile.OpIadd && op <= classfile.OpDrem:
		t := typed[(op-classfile.OpIadd)%4]
		s.popAs(t)
		s.popAs(t)
		s.push(t)
	case op >= classfile.OpIneg && op <= classfile.OpDneg:
		t := typed[op-classfile.OpIneg]
		s.popAs(t)
		s.push(t)
	case op >= classfile.OpIshl && op <= classfile.OpLushr:
		t := typed[(op-classfile.OpIshl)%2]
		s.popAs(Int)
		s.popAs(t)
		s.push(t)
	case op >= classfile.OpIand && op <= classfile.OpLxor:
		t := typed[(op-classfile.OpIand)%2]
		s.popAs(t)
		s.popAs(t)
		s.push(t)
	case op >= classfile.OpI2l && op <= classfile.OpI2s:
		c := conversions[op]
		s.popAs(c[0])
		s.push(c[1])
	case op == classfile.OpLcmp:
		s.popAs(Long)
		s.popAs(Long)
		s.push(Int)
	case op == classfile.OpFcmpl || op == classfile.OpFcmpg:
		s.popAs(Float)
		s.popAs(Float)
		s.push(Int)
	case op == classfile.OpDcmpl || op == classfile.OpDcmpg:
		s.popAs(Double)
		s.popAs(Double)
		s.push(Int)

	case op >= classfile.OpIfeq && op <= classfile.OpIfle:
		s.popAs(Int)
	case op >= classfile.OpIfIcmpeq && op <= classfile.OpIfIcmple:
		s.popAs(Int)
		s.popAs(Int)
	case op == classfile.OpIfAcmpeq || op == classfile.OpIfAcmpne:
		s.popRef()
		s.popRef()
	case op == classfile.OpIfnull || op == classfile.OpIfnonnull:
		s.popRef()
	case op == classfile.OpGoto || op == classfile.OpGotoW:
	case op == classfile.OpTableswitch || op == classfile.OpLookupswitch:
		s.popAs(Int)

	case op.IsReturn():
		s.ret(op)
	case op >= classfile.OpGetstatic && op <= classfile.OpPutfield:
		s.fieldOp(op)
	case op >= classfile.OpInvokevirtual && op <= classfile.OpInvokeinterface:
		s.invoke(op)

	case op == classfile.OpNew:
		if _, ok := s.class(); ok {
			s.push(Uninit(s.in.Offset))
		}
	case op == classfile.OpNewarray:
		s.popAs(Int)
		desc, ok := newarrayTypes[s.in.Operand]
		if !ok {
			s.fail("bad newarray type %d", s.in.Operand)
			return
		}
		s.push(Ref(desc))
	case op == classfile.OpAnewarray:
		s.popAs(Int)
		if name, ok := s.class(); ok {
			s.push(Ref("[" + classDescriptor(name)))
		}
	case op == classfile.OpMultianewarray:
		for range s.in.Operand2 {
			s.popAs(Int)
		}
		if name, ok := s.class(); ok {
			s.push(Ref(name))
		}
	case op == classfile.OpArraylength:
		s.popRef()
		s.push(Int)
	case op == classfile.OpAthrow:
		s.popRef()
	case op == classfile.OpCheckcast:
		s.popRef()
		if name, ok := s.class(); ok {
			s.push(Ref(name))
		}
	case op == classfile.OpInstanceof:
		s.popRef()
		s.push(Int)
	case op == classfile.OpMonitorenter || op == classfile.OpMonitorexit:
		s.popRef()
	default:
		s.fail("unsupported instruction")
	}
}

// localType maps the offset of a typed local instruction from its i-form
// to the loaded type.
func localType(n classfile.Opcode) VType {
	if n == 4 {
		return Null
	}
	return [4]VType{Int, Long, Float, Double}[n]
}

// arrayElement maps the offset of an array store from iastore to the stored
// value's stack type.
func arrayElement(n classfile.Opcode) VType {
	switch n {
	case 1:
		return Long
	case 2:
		return Float
	case 3:
		return Double
	case 4:
		return Null
	}
	return Int
}

func (s *sim) ldc() {
	e, err := s.a.m.Pool.Entry(uint16(s.in.Operand))
	if err != nil {
		s.fail("%v", err)
		return
	}
	wide := s.in.Op == classfile.OpLdc2W
	switch {
	case e.Tag == classfile.TagInteger && !wide:
		s.push(Int)
	case e.Tag == classfile.TagFloat && !wide:
		s.push(Float)
	case e.Tag == classfile.TagString && !wide:
		s.push(Ref("java/lang/String"))
	case e.Tag == classfile.TagClass && !wide:
		s.push(Ref("java/lang/Class"))
	case e.Tag == classfile.TagLong && wide:
		s.push(Long)
	case e.Tag == classfile.TagDouble && wide:
		s.push(Double)
	default:
		s.fail("constant of tag %d cannot be loaded by %s", e.Tag, s.in.Op)
	}
}

func (s *sim) arrayLoad(op classfile.Opcode, arr VType) {
	if s.err != nil {
		return
	}
	switch op {
	case classfile.OpLaload:
		s.push(Long)
	case classfile.OpFaload:
		s.push(Float)
	case classfile.OpDaload:
		s.push(Double)
	case classfile.OpAaload:
		switch {
		case arr.Kind == KindNull:
			s.push(Null)
		case arr.Kind == KindRef && strings.HasPrefix(arr.Class, "["):
			s.push(FromDescriptor(arr.Class[1:]))
		default:
			s.fail("aaload on non-array %s", arr)
		}
	default:
		s.push(Int)
	}
}

func (s *sim) stackOp(op classfile.Opcode) {
	switch op {
	case classfile.OpPop:
		s.popCat1()
	case classfile.OpPop2:
		if v := s.pop(); !v.Wide() {
			s.popCat1()
		}
	case classfile.OpDup:
		v := s.popCat1()
		s.push(v, v)
	case classfile.OpDupX1:
		v1 := s.popCat1()
		v2 := s.popCat1()
		s.push(v1, v2, v1)
	case classfile.OpDupX2:
		v1 := s.popCat1()
		v2 := s.pop()
		if v2.Wide() {
			s.push(v1, v2, v1)
			return
		}
		v3 := s.popCat1()
		s.push(v1, v3, v2, v1)
	case classfile.OpDup2:
		v1 := s.pop()
		if v1.Wide() {
			s.push(v1, v1)
			return
		}
		v2 := s.popCat1()
		s.push(v2, v1, v2, v1)
	case classfile.OpDup2X1:
		v1 := s.pop()
		if v1.Wide() {
			v2 := s.popCat1()
			s.push(v1, v2, v1)
			return
		}
		v2 := s.popCat1()
		v3 := s.popCat1()
		s.push(v2, v1, v3, v2, v1)
	case classfile.OpDup2X2:
		v1 := s.pop()
		if v1.Wide() {
			v2 := s.pop()
			if v2.Wide() {
				s.push(v1, v2, v1)
				return
			}
			v3 := s.popCat1()
			s.push(v1, v3, v2, v1)
			return
		}
		v2 := s.popCat1()
		v3 := s.pop()
		if v3.Wide() {
			s.push(v2, v1, v3, v2, v1)
			return
		}
		v4 := s.popCat1()
		s.push(v2, v1, v4, v3, v2, v1)
	case classfile.OpSwap:
		v1 := s.popCat1()
		v2 := s.popCat1()
		s.push(v1, v2)
	}
}

func (s *sim) ret(op classfile.Opcode) {
	_, want, err := classfile.ParseMethodDescriptor(s.a.m.Desc)
	if err != nil {
		s.fail("%v", err)
		return
	}
	if op == classfile.OpReturn {
		if want != "V" {
			s.fail("void return from a method returning %s", want)
		}
		if s.a.m.Ctor && len(s.f.locals) > 0 && s.f.locals[0] == UninitThis {
			s.fail("constructor returns before calling a super constructor")
		}
		return
	}
	if want == "V" {
		s.fail("value return from a void method")
		return
	}
	expect := FromDescriptor(want)
	if got := localType(op - classfile.OpIreturn); got.IsReference() != expect.IsReference() ||
		(!expect.IsReference() && got.Kind != expect.Kind) {
		s.fail("%s does not match return type %s", op, want)
		return
	}
	s.popAs(expect)
}

func (s *sim) fieldOp(op classfile.Opcode) {
	m, ok := s.member()
	if !ok {
		return
	}
	t := FromDescriptor(m.Desc)
	switch op {
	case classfile.OpGetstatic:
		s.push(t)
	case classfile.OpPutstatic:
		s.popAs(t)
	case classfile.OpGetfield:
		s.popRef()
		s.push(t)
	case classfile.OpPutfield:
		s.popAs(t)
		s.popRef()
	}
}

func (s *sim) invoke(op classfile.Opcode) {
	m, ok := s.member()
	if !ok {
		return
	}
	params, ret, err := classfile.ParseMethodDescriptor(m.Desc)
	if err != nil {
		s.fail("%v", err)
		return
	}
	for i := len(params) - 1; i >= 0; i-- {
		s.popAs(FromDescriptor(params[i]))
	}
	if op != classfile.OpInvokestatic {
		recv := s.popRef()
		if s.err != nil {
			return
		}
		if m.Name == "<init>" {
			s.construct(op, recv, m.Owner)
		}
	}
	if ret != "V" {
		s.push(FromDescriptor(ret))
	}
}

func (s *sim) construct(op classfile.Opcode, recv VType, owner string) {
	if op != classfile.OpInvokespecial {
		s.fail("constructor must be called with invokespecial")
		return
	}
	switch recv.Kind {
	case KindUninitThis:
		s.replace(recv, Ref(s.a.m.Owner))
	case KindUninit:
		j, ok := s.a.index[recv.Offset]
		if !ok || s.a.insns[j].Op != classfile.OpNew {
			s.fail("uninitialized value without a matching new")
			return
		}
		name, err := s.a.m.Pool.ClassAt(uint16(s.a.insns[j].Operand))
		if err != nil {
			s.fail("%v", err)
			return
		}
		if name != owner {
			s.fail("constructor of %s called on a new %s", owner, name)
			return
		}
		s.replace(recv, Ref(name))
	default:
		s.fail("constructor called on initialized %s", recv)
	}
}
