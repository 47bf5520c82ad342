package jvmtest

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/frames"
)

const maxDepth = 512

type initState uint8

const (
	uninitialized initState = iota
	initializing
	initialized
)

// Class is a loaded class file.
type Class struct {
	Name       string
	Super      string
	Interfaces []string
	Access     uint16
	File       *classfile.ClassFile

	methods map[string]*Method // name+descriptor
	statics map[string]Value
	state   initState
}

// IsInterface reports whether the class is an interface.
func (c *Class) IsInterface() bool { return c.Access&classfile.AccInterface != 0 }

type nativeFunc func(vm *VM, args []Value) (Value, error)

// Method is a loaded or platform method. Platform methods run natively.
type Method struct {
	Owner  string
	Name   string
	Desc   string
	Access uint16
	Code   *classfile.CodeAttribute

	native nativeFunc
	insns  map[int]classfile.Instruction
	pool   *classfile.ConstantPool
}

func (m *Method) String() string { return m.Owner + "." + m.Name + m.Desc }

func (m *Method) abstract() bool { return m.native == nil && m.Code == nil }

// VM interprets loaded classes. It is not safe for concurrent use.
type VM struct {
	classes   map[string]*Class
	hierarchy *frames.ClassHierarchy
	classObjs map[string]*Object
	nextID    int32
	depth     int

	monitors map[Value]int
	enters   int
	exits    int

	// Trace prints each executed instruction.
	Trace bool
}

// New creates an interpreter with no loaded classes.
func New() *VM {
	return &VM{
		classes:   make(map[string]*Class),
		hierarchy: frames.NewHierarchy(),
		classObjs: make(map[string]*Object),
		monitors:  make(map[Value]int),
	}
}

// Load parses and registers a class file.
func (vm *VM) Load(data []byte) (*Class, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, err
	}
	name, err := cf.Name()
	if err != nil {
		return nil, err
	}
	super, err := cf.SuperName()
	if err != nil {
		return nil, err
	}
	c := &Class{
		Name:    name,
		Super:   super,
		Access:  cf.Access,
		File:    cf,
		methods: make(map[string]*Method),
		statics: make(map[string]Value),
	}
	for _, i := range cf.Interfaces {
		iname, err := cf.Pool.ClassAt(i)
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, iname)
	}
	for _, mm := range cf.Methods {
		mname, desc, err := cf.MemberName(mm)
		if err != nil {
			return nil, err
		}
		code, err := cf.MethodCode(mm)
		if err != nil {
			return nil, fmt.Errorf("%s.%s%s: %w", name, mname, desc, err)
		}
		m := &Method{Owner: name, Name: mname, Desc: desc, Access: mm.Access, Code: code, pool: cf.Pool}
		if code != nil {
			insns, err := classfile.Instructions(code.Code)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", m, err)
			}
			m.insns = make(map[int]classfile.Instruction, len(insns))
			for _, in := range insns {
				m.insns[in.Offset] = in
			}
		}
		c.methods[mname+desc] = m
	}
	vm.classes[name] = c
	vm.hierarchy.Declare(name, super, c.IsInterface())
	return c, nil
}

// LoadAll registers several class files.
func (vm *VM) LoadAll(classes map[string][]byte) error {
	for name, data := range classes {
		if _, err := vm.Load(data); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// MonitorCounts returns how many monitorenter and monitorexit instructions
// completed.
func (vm *VM) MonitorCounts() (enters, exits int) { return vm.enters, vm.exits }

// HeldMonitors returns the number of monitors still held.
func (vm *VM) HeldMonitors() int {
	n := 0
	for _, c := range vm.monitors {
		n += c
	}
	return n
}

// ---------------------------------------------------------------------------
// Public entry points
// ---------------------------------------------------------------------------

// InvokeStatic calls a static method. Class names are binary or internal.
func (vm *VM) InvokeStatic(class, name, desc string, args ...Value) (Value, error) {
	owner := internal(class)
	m, err := vm.resolveStatic(owner, name, desc)
	if err != nil {
		return nil, err
	}
	if err := vm.initialize(owner); err != nil {
		return nil, err
	}
	return vm.invoke(m, args)
}

// NewInstance allocates an object and runs the constructor with the given
// descriptor.
func (vm *VM) NewInstance(class, desc string, args ...Value) (*Object, error) {
	owner := internal(class)
	if err := vm.initialize(owner); err != nil {
		return nil, err
	}
	obj := vm.newObject(owner)
	m, err := vm.resolveSpecial(owner, "<init>", desc)
	if err != nil {
		return nil, err
	}
	if _, err := vm.invoke(m, append([]Value{obj}, args...)); err != nil {
		return nil, err
	}
	return obj, nil
}

// InvokeVirtual calls an instance method on recv with virtual dispatch.
func (vm *VM) InvokeVirtual(recv Value, name, desc string, args ...Value) (Value, error) {
	if recv == nil {
		return nil, vm.throw("java/lang/NullPointerException", "invoke "+name+" on null")
	}
	m, err := vm.resolveVirtual(vm.classOf(recv), name, desc)
	if err != nil {
		return nil, err
	}
	return vm.invoke(m, append([]Value{recv}, args...))
}

// GetStatic reads a static field, initializing its class.
func (vm *VM) GetStatic(class, name, desc string) (Value, error) {
	owner := internal(class)
	if err := vm.initialize(owner); err != nil {
		return nil, err
	}
	return vm.getStatic(owner, name, desc)
}

// ToString converts a value to a Go string through its toString method.
func (vm *VM) ToString(v Value) (string, error) { return vm.stringOf(v) }

func internal(name string) string { return strings.ReplaceAll(name, ".", "/") }

// ---------------------------------------------------------------------------
// Classes and objects
// ---------------------------------------------------------------------------

func (vm *VM) newObject(class string) *Object {
	vm.nextID++
	return &Object{Class: class, Fields: make(map[string]Value), id: vm.nextID}
}

// throw returns a Thrown error for a new platform exception.
func (vm *VM) throw(class, msg string) error {
	obj := vm.newObject(class)
	if msg != "" {
		obj.Fields[messageField] = msg
	}
	return &Thrown{Exception: obj}
}

func (vm *VM) classObject(name string) *Object {
	if o, ok := vm.classObjs[name]; ok {
		return o
	}
	o := vm.newObject("java/lang/Class")
	o.Native = name
	vm.classObjs[name] = o
	return o
}

func (vm *VM) classOf(v Value) string {
	switch v := v.(type) {
	case string:
		return "java/lang/String"
	case *Object:
		return v.Class
	case *Array:
		return v.Type
	}
	return frames.ObjectClass
}

func (vm *VM) superOf(class string) string {
	if class == frames.ObjectClass {
		return ""
	}
	if c, ok := vm.classes[class]; ok {
		return c.Super
	}
	if super, ok := vm.hierarchy.SuperClass(class); ok && super != "" {
		return super
	}
	return frames.ObjectClass
}

func (vm *VM) interfacesOf(class string) []string {
	if c, ok := vm.classes[class]; ok {
		return c.Interfaces
	}
	return platformInterfaces[class]
}

// initialize runs static initializers, superclass first. Platform classes
// need none.
func (vm *VM) initialize(class string) error {
	c, ok := vm.classes[class]
	if !ok || c.state != uninitialized {
		return nil
	}
	c.state = initializing
	if err := vm.initialize(c.Super); err != nil {
		return err
	}
	if m, ok := c.methods["<clinit>()V"]; ok {
		if _, err := vm.invoke(m, nil); err != nil {
			return err
		}
	}
	c.state = initialized
	return nil
}

func (vm *VM) isAssignable(from, to string) bool {
	if from == to || to == frames.ObjectClass {
		return true
	}
	if strings.HasPrefix(from, "[") {
		if !strings.HasPrefix(to, "[") {
			return to == "java/lang/Cloneable" || to == "java/io/Serializable"
		}
		fe, te := from[1:], to[1:]
		if fe[0] != 'L' && fe[0] != '[' || te[0] != 'L' && te[0] != '[' {
			return fe == te
		}
		return vm.isAssignable(descClass(fe), descClass(te))
	}
	for c := from; c != ""; c = vm.superOf(c) {
		if c == to || vm.implements(c, to) {
			return true
		}
	}
	return false
}

func (vm *VM) implements(class, iface string) bool {
	for _, i := range vm.interfacesOf(class) {
		if i == iface || vm.implements(i, iface) {
			return true
		}
	}
	return false
}

func (vm *VM) instanceOf(v Value, class string) bool {
	return v != nil && vm.isAssignable(vm.classOf(v), class)
}

func descClass(d string) string {
	if d[0] == 'L' {
		return d[1 : len(d)-1]
	}
	return d
}

// ---------------------------------------------------------------------------
// Method resolution
// ---------------------------------------------------------------------------

// declared returns the method a class itself declares, loaded or native.
func (vm *VM) declared(class, name, desc string) *Method {
	if c, ok := vm.classes[class]; ok {
		return c.methods[name+desc]
	}
	if fn, ok := platformMethod(class, name, desc); ok {
		return &Method{Owner: class, Name: name, Desc: desc, native: fn}
	}
	return nil
}

func (vm *VM) resolveStatic(class, name, desc string) (*Method, error) {
	for c := class; c != ""; c = vm.superOf(c) {
		if m := vm.declared(c, name, desc); m != nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: static %s.%s%s", ErrNoMethod, class, name, desc)
}

// resolveSpecial finds constructors, private methods and super calls. Only
// platform constructors are looked up through superclasses.
func (vm *VM) resolveSpecial(class, name, desc string) (*Method, error) {
	if m := vm.declared(class, name, desc); m != nil {
		return m, nil
	}
	if _, loaded := vm.classes[class]; !loaded || name != "<init>" {
		for c := vm.superOf(class); c != ""; c = vm.superOf(c) {
			if _, loaded := vm.classes[c]; loaded && name == "<init>" {
				break
			}
			if m := vm.declared(c, name, desc); m != nil && !m.abstract() {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s.%s%s", ErrNoMethod, class, name, desc)
}

func (vm *VM) resolveVirtual(class, name, desc string) (*Method, error) {
	for c := class; c != ""; c = vm.superOf(c) {
		if m := vm.declared(c, name, desc); m != nil && !m.abstract() {
			return m, nil
		}
	}
	// Default methods.
	for c := class; c != ""; c = vm.superOf(c) {
		if m := vm.defaultMethod(vm.interfacesOf(c), name, desc); m != nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s%s", ErrNoMethod, class, name, desc)
}

func (vm *VM) defaultMethod(ifaces []string, name, desc string) *Method {
	for _, i := range ifaces {
		if m := vm.declared(i, name, desc); m != nil && !m.abstract() {
			return m
		}
		if m := vm.defaultMethod(vm.interfacesOf(i), name, desc); m != nil {
			return m
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// staticOwner returns the loaded class declaring a static field, searching
// superclasses and interfaces.
func (vm *VM) staticOwner(class, name string) (*Class, bool) {
	for c := class; c != ""; c = vm.superOf(c) {
		lc, ok := vm.classes[c]
		if !ok {
			continue
		}
		if _, found := lc.File.FindField(name); found {
			return lc, true
		}
		for _, i := range lc.Interfaces {
			if ic, ok := vm.staticOwner(i, name); ok {
				return ic, true
			}
		}
	}
	return nil, false
}

func (vm *VM) getStatic(class, name, desc string) (Value, error) {
	if c, ok := vm.staticOwner(class, name); ok {
		if err := vm.initialize(c.Name); err != nil {
			return nil, err
		}
		if v, ok := c.statics[name]; ok {
			return v, nil
		}
		return zero(desc), nil
	}
	if prim, ok := primitiveTypes[class]; ok && name == "TYPE" {
		return vm.classObject(prim), nil
	}
	return nil, fmt.Errorf("%w: static field %s.%s", ErrNoClass, class, name)
}

func (vm *VM) putStatic(class, name string, v Value) error {
	c, ok := vm.staticOwner(class, name)
	if !ok {
		return fmt.Errorf("%w: static field %s.%s", ErrNoClass, class, name)
	}
	if err := vm.initialize(c.Name); err != nil {
		return err
	}
	c.statics[name] = v
	return nil
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

type frame struct {
	m      *Method
	locals []Value
	stack  []Value
	result Value
}

func (f *frame) push(v Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() Value {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) peek() Value { return f.stack[len(f.stack)-1] }

func (f *frame) popInt() int32      { return f.pop().(int32) }
func (f *frame) popLong() int64     { return f.pop().(int64) }
func (f *frame) popFloat() float32  { return f.pop().(float32) }
func (f *frame) popDouble() float64 { return f.pop().(float64) }

// popArgs pops the arguments of a method descriptor in call order.
func (f *frame) popArgs(desc string) ([]Value, error) {
	params, _, err := classfile.ParseMethodDescriptor(desc)
	if err != nil {
		return nil, err
	}
	args := make([]Value, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		args[i] = f.pop()
	}
	return args, nil
}

func returnsValue(desc string) bool { return !strings.HasSuffix(desc, ")V") }

// invoke runs a method. args include the receiver of instance methods.
func (vm *VM) invoke(m *Method, args []Value) (result Value, err error) {
	if m.native != nil {
		return m.native(vm, args)
	}
	if m.Code == nil {
		return nil, fmt.Errorf("%w: %s has no code", ErrNoMethod, m)
	}
	if vm.depth >= maxDepth {
		return nil, fmt.Errorf("%w: calling %s", ErrStackDepth, m)
	}
	vm.depth++
	defer func() { vm.depth-- }()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrBadCode, m, r)
		}
	}()

	f := &frame{m: m, locals: make([]Value, int(m.Code.MaxLocals)+1), stack: make([]Value, 0, m.Code.MaxStack)}
	slot := 0
	for _, a := range args {
		f.locals[slot] = a
		slot++
		if wide(a) {
			slot++
		}
	}

	pc := 0
	for {
		in, ok := m.insns[pc]
		if !ok {
			return nil, fmt.Errorf("%w: %s: no instruction at %d", ErrBadCode, m, pc)
		}
		if vm.Trace {
			fmt.Printf("[%04d] %-16s stack=%v\n", pc, in.Op, f.stack)
		}
		next, done, err := vm.step(f, in)
		if err != nil {
			var t *Thrown
			if !errors.As(err, &t) {
				return nil, err
			}
			handler, found, herr := vm.handler(m, in.Offset, t.Exception)
			if herr != nil {
				return nil, herr
			}
			if !found {
				return nil, err
			}
			f.stack = append(f.stack[:0], t.Exception)
			pc = handler
			continue
		}
		if done {
			return f.result, nil
		}
		pc = next
	}
}

func (vm *VM) handler(m *Method, pc int, exc *Object) (int, bool, error) {
	for _, e := range m.Code.Exceptions {
		if pc < int(e.StartPC) || pc >= int(e.EndPC) {
			continue
		}
		if e.CatchType != 0 {
			class, err := m.pool.ClassAt(e.CatchType)
			if err != nil {
				return 0, false, err
			}
			if !vm.instanceOf(exc, class) {
				continue
			}
		}
		return int(e.HandlerPC), true, nil
	}
	return 0, false, nil
}

// step executes one instruction and returns the next pc, or done when the
// method returned.
func (vm *VM) step(f *frame, in classfile.Instruction) (next int, done bool, err error) {
	next = in.Offset + in.Len
	op := classfile.BaseLocalOp(in.Op)
	switch {
	case op >= classfile.OpIload && op <= classfile.OpAload:
		f.push(f.locals[in.Operand])
		return next, false, nil
	case op >= classfile.OpIstore && op <= classfile.OpAstore:
		f.locals[in.Operand] = f.pop()
		return next, false, nil
	case op >= classfile.OpIconstM1 && op <= classfile.OpIconst5:
		f.push(int32(int(op) - int(classfile.OpIconst0)))
		return next, false, nil
	case op >= classfile.OpIaload && op <= classfile.OpSaload:
		return next, false, vm.arrayLoad(f)
	case op >= classfile.OpIastore && op <= classfile.OpSastore:
		return next, false, vm.arrayStore(f, op)
	case op >= classfile.OpIadd && op <= classfile.OpLxor:
		return next, false, vm.arith(f, op)
	case op >= classfile.OpI2l && op <= classfile.OpI2s:
		convert(f, op)
		return next, false, nil
	case op >= classfile.OpIreturn && op <= classfile.OpAreturn:
		f.result = f.pop()
		return next, true, nil
	case op.IsBranch():
		if branch(f, op) {
			return in.Operand, false, nil
		}
		return next, false, nil
	}

	switch op {
	case classfile.OpNop:
	case classfile.OpAconstNull:
		f.push(nil)
	case classfile.OpLconst0, classfile.OpLconst1:
		f.push(int64(op - classfile.OpLconst0))
	case classfile.OpFconst0, classfile.OpFconst1, classfile.OpFconst2:
		f.push(float32(op - classfile.OpFconst0))
	case classfile.OpDconst0, classfile.OpDconst1:
		f.push(float64(op - classfile.OpDconst0))
	case classfile.OpBipush, classfile.OpSipush:
		f.push(int32(in.Operand))
	case classfile.OpLdc, classfile.OpLdcW, classfile.OpLdc2W:
		v, err := vm.constant(f.m.pool, uint16(in.Operand))
		if err != nil {
			return 0, false, err
		}
		f.push(v)
	case classfile.OpIinc:
		f.locals[in.Operand] = f.locals[in.Operand].(int32) + int32(in.Operand2)

	case classfile.OpPop, classfile.OpPop2, classfile.OpDup, classfile.OpDupX1, classfile.OpDupX2,
		classfile.OpDup2, classfile.OpDup2X1, classfile.OpDup2X2, classfile.OpSwap:
		stackOp(f, op)

	case classfile.OpLcmp:
		b, a := f.popLong(), f.popLong()
		f.push(cmp(a < b, a > b, false, 0))
	case classfile.OpFcmpl, classfile.OpFcmpg:
		b, a := f.popFloat(), f.popFloat()
		nan := a != a || b != b
		f.push(cmp(a < b, a > b, nan, nanResult(op == classfile.OpFcmpg)))
	case classfile.OpDcmpl, classfile.OpDcmpg:
		b, a := f.popDouble(), f.popDouble()
		nan := math.IsNaN(a) || math.IsNaN(b)
		f.push(cmp(a < b, a > b, nan, nanResult(op == classfile.OpDcmpg)))

	case classfile.OpGotoW:
		return in.Operand, false, nil
	case classfile.OpTableswitch, classfile.OpLookupswitch:
		key := f.popInt()
		for i, k := range in.Keys {
			if k == key {
				return in.Targets[i], false, nil
			}
		}
		return in.Default, false, nil
	case classfile.OpReturn:
		return next, true, nil

	case classfile.OpGetstatic, classfile.OpPutstatic, classfile.OpGetfield, classfile.OpPutfield:
		return next, false, vm.fieldOp(f, op, uint16(in.Operand))
	case classfile.OpInvokevirtual, classfile.OpInvokespecial, classfile.OpInvokestatic, classfile.OpInvokeinterface:
		return next, false, vm.invokeOp(f, op, uint16(in.Operand))

	case classfile.OpNew:
		class, err := f.m.pool.ClassAt(uint16(in.Operand))
		if err != nil {
			return 0, false, err
		}
		if err := vm.initialize(class); err != nil {
			return 0, false, err
		}
		f.push(vm.newObject(class))
	case classfile.OpNewarray:
		n := f.popInt()
		if n < 0 {
			return 0, false, vm.throw("java/lang/NegativeArraySizeException", fmt.Sprint(n))
		}
		f.push(newArray("["+primitiveArrayTypes[in.Operand], int(n)))
	case classfile.OpAnewarray:
		class, err := f.m.pool.ClassAt(uint16(in.Operand))
		if err != nil {
			return 0, false, err
		}
		n := f.popInt()
		if n < 0 {
			return 0, false, vm.throw("java/lang/NegativeArraySizeException", fmt.Sprint(n))
		}
		f.push(newArray("["+classDescriptor(class), int(n)))
	case classfile.OpMultianewarray:
		desc, err := f.m.pool.ClassAt(uint16(in.Operand))
		if err != nil {
			return 0, false, err
		}
		dims := make([]int, in.Operand2)
		for i := len(dims) - 1; i >= 0; i-- {
			dims[i] = int(f.popInt())
		}
		f.push(newMultiArray(desc, dims))
	case classfile.OpArraylength:
		arr, err := vm.array(f.pop())
		if err != nil {
			return 0, false, err
		}
		f.push(int32(len(arr.Data)))

	case classfile.OpAthrow:
		exc, ok := f.pop().(*Object)
		if !ok || exc == nil {
			return 0, false, vm.throw("java/lang/NullPointerException", "throw null")
		}
		return 0, false, &Thrown{Exception: exc}
	case classfile.OpCheckcast:
		class, err := f.m.pool.ClassAt(uint16(in.Operand))
		if err != nil {
			return 0, false, err
		}
		if v := f.peek(); v != nil && !vm.instanceOf(v, class) {
			return 0, false, vm.throw("java/lang/ClassCastException",
				fmt.Sprintf("class %s cannot be cast to class %s", dotted(vm.classOf(v)), dotted(class)))
		}
	case classfile.OpInstanceof:
		class, err := f.m.pool.ClassAt(uint16(in.Operand))
		if err != nil {
			return 0, false, err
		}
		f.push(boolValue(vm.instanceOf(f.pop(), class)))

	case classfile.OpMonitorenter:
		v := f.pop()
		if v == nil {
			return 0, false, vm.throw("java/lang/NullPointerException", "monitorenter on null")
		}
		vm.monitors[v]++
		vm.enters++
	case classfile.OpMonitorexit:
		v := f.pop()
		if v == nil {
			return 0, false, vm.throw("java/lang/NullPointerException", "monitorexit on null")
		}
		if vm.monitors[v] == 0 {
			return 0, false, vm.throw("java/lang/IllegalMonitorStateException", "")
		}
		vm.monitors[v]--
		vm.exits++

	default:
		return 0, false, fmt.Errorf("%w: unsupported opcode %s at %d", ErrBadCode, in.Op, in.Offset)
	}
	return next, false, nil
}

func (vm *VM) constant(p *classfile.ConstantPool, i uint16) (Value, error) {
	e, err := p.Entry(i)
	if err != nil {
		return nil, err
	}
	switch e.Tag {
	case classfile.TagInteger:
		return int32(uint32(e.Bits)), nil
	case classfile.TagFloat:
		return math.Float32frombits(uint32(e.Bits)), nil
	case classfile.TagLong:
		return int64(e.Bits), nil
	case classfile.TagDouble:
		return math.Float64frombits(e.Bits), nil
	case classfile.TagString:
		return p.Utf8At(e.Ref1)
	case classfile.TagClass:
		name, err := p.ClassAt(i)
		if err != nil {
			return nil, err
		}
		return vm.classObject(name), nil
	}
	return nil, fmt.Errorf("%w: ldc of pool tag %d", ErrBadCode, e.Tag)
}

func (vm *VM) fieldOp(f *frame, op classfile.Opcode, index uint16) error {
	ref, err := f.m.pool.MemberAt(index)
	if err != nil {
		return err
	}
	switch op {
	case classfile.OpGetstatic:
		v, err := vm.getStatic(ref.Owner, ref.Name, ref.Desc)
		if err != nil {
			return err
		}
		f.push(v)
	case classfile.OpPutstatic:
		return vm.putStatic(ref.Owner, ref.Name, f.pop())
	case classfile.OpGetfield:
		obj, err := vm.object(f.pop(), "read field "+ref.Name)
		if err != nil {
			return err
		}
		v, ok := obj.Fields[ref.Name]
		if !ok {
			v = zero(ref.Desc)
		}
		f.push(v)
	case classfile.OpPutfield:
		v := f.pop()
		obj, err := vm.object(f.pop(), "write field "+ref.Name)
		if err != nil {
			return err
		}
		obj.Fields[ref.Name] = v
	}
	return nil
}

func (vm *VM) object(v Value, what string) (*Object, error) {
	obj, ok := v.(*Object)
	if !ok || obj == nil {
		if v == nil {
			return nil, vm.throw("java/lang/NullPointerException", "cannot "+what+" of null")
		}
		return nil, fmt.Errorf("%w: cannot %s of %T", ErrBadCode, what, v)
	}
	return obj, nil
}

func (vm *VM) invokeOp(f *frame, op classfile.Opcode, index uint16) error {
	ref, err := f.m.pool.MemberAt(index)
	if err != nil {
		return err
	}
	args, err := f.popArgs(ref.Desc)
	if err != nil {
		return err
	}
	var m *Method
	if op == classfile.OpInvokestatic {
		if err := vm.initialize(ref.Owner); err != nil {
			return err
		}
		if m, err = vm.resolveStatic(ref.Owner, ref.Name, ref.Desc); err != nil {
			return err
		}
	} else {
		recv := f.pop()
		if recv == nil {
			return vm.throw("java/lang/NullPointerException", fmt.Sprintf("cannot invoke %s.%s on null", dotted(ref.Owner), ref.Name))
		}
		args = append([]Value{recv}, args...)
		switch {
		case op == classfile.OpInvokespecial:
			m, err = vm.resolveSpecial(ref.Owner, ref.Name, ref.Desc)
		case ref.Name == "clone" && strings.HasPrefix(vm.classOf(recv), "["):
			m = &Method{Owner: vm.classOf(recv), Name: "clone", Desc: ref.Desc, native: arrayClone}
		default:
			m, err = vm.resolveVirtual(vm.classOf(recv), ref.Name, ref.Desc)
		}
		if err != nil {
			return err
		}
	}
	v, err := vm.invoke(m, args)
	if err != nil {
		return err
	}
	if returnsValue(ref.Desc) {
		f.push(v)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Instruction helpers
// ---------------------------------------------------------------------------

func boolValue(b bool) Value {
	if b {
		return int32(1)
	}
	return int32(0)
}

func cmp(lt, gt, nan bool, nanValue int32) int32 {
	switch {
	case nan:
		return nanValue
	case lt:
		return -1
	case gt:
		return 1
	}
	return 0
}

func nanResult(g bool) int32 {
	if g {
		return 1
	}
	return -1
}

func branch(f *frame, op classfile.Opcode) bool {
	switch op {
	case classfile.OpIfeq, classfile.OpIfne, classfile.OpIflt, classfile.OpIfge, classfile.OpIfgt, classfile.OpIfle:
		v := f.popInt()
		return compareInts(op-classfile.OpIfeq, v, 0)
	case classfile.OpIfIcmpeq, classfile.OpIfIcmpne, classfile.OpIfIcmplt, classfile.OpIfIcmpge, classfile.OpIfIcmpgt, classfile.OpIfIcmple:
		b, a := f.popInt(), f.popInt()
		return compareInts(op-classfile.OpIfIcmpeq, a, b)
	case classfile.OpIfAcmpeq:
		b, a := f.pop(), f.pop()
		return a == b
	case classfile.OpIfAcmpne:
		b, a := f.pop(), f.pop()
		return a != b
	case classfile.OpIfnull:
		return f.pop() == nil
	case classfile.OpIfnonnull:
		return f.pop() != nil
	}
	return true
}

// compareInts evaluates the condition at offset cond in the eq, ne, lt,
// ge, gt, le order shared by both branch families.
func compareInts(cond classfile.Opcode, a, b int32) bool {
	switch cond {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	}
	return a <= b
}

func stackOp(f *frame, op classfile.Opcode) {
	switch op {
	case classfile.OpPop:
		f.pop()
	case classfile.OpPop2:
		if !wide(f.pop()) {
			f.pop()
		}
	case classfile.OpDup:
		f.push(f.peek())
	case classfile.OpDupX1:
		v1, v2 := f.pop(), f.pop()
		f.stack = append(f.stack, v1, v2, v1)
	case classfile.OpDupX2:
		v1, v2 := f.pop(), f.pop()
		if wide(v2) {
			f.stack = append(f.stack, v1, v2, v1)
			return
		}
		v3 := f.pop()
		f.stack = append(f.stack, v1, v3, v2, v1)
	case classfile.OpDup2:
		v1 := f.pop()
		if wide(v1) {
			f.stack = append(f.stack, v1, v1)
			return
		}
		v2 := f.pop()
		f.stack = append(f.stack, v2, v1, v2, v1)
	case classfile.OpDup2X1:
		v1, v2 := f.pop(), f.pop()
		if wide(v1) {
			f.stack = append(f.stack, v1, v2, v1)
			return
		}
		v3 := f.pop()
		f.stack = append(f.stack, v2, v1, v3, v2, v1)
	case classfile.OpDup2X2:
		v1, v2 := f.pop(), f.pop()
		switch {
		case wide(v1) && wide(v2):
			f.stack = append(f.stack, v1, v2, v1)
		case wide(v1):
			v3 := f.pop()
			f.stack = append(f.stack, v1, v3, v2, v1)
		default:
			v3 := f.pop()
			if wide(v3) {
				f.stack = append(f.stack, v2, v1, v3, v2, v1)
				return
			}
			v4 := f.pop()
			f.stack = append(f.stack, v2, v1, v4, v3, v2, v1)
		}
	case classfile.OpSwap:
		v1, v2 := f.pop(), f.pop()
		f.stack = append(f.stack, v1, v2)
	}
}

func (vm *VM) arith(f *frame, op classfile.Opcode) error {
	switch op {
	case classfile.OpIshl, classfile.OpIshr, classfile.OpIushr:
		s, a := uint(f.popInt()&31), f.popInt()
		switch op {
		case classfile.OpIshl:
			f.push(a << s)
		case classfile.OpIshr:
			f.push(a >> s)
		default:
			f.push(int32(uint32(a) >> s))
		}
		return nil
	case classfile.OpLshl, classfile.OpLshr, classfile.OpLushr:
		s, a := uint(f.popInt()&63), f.popLong()
		switch op {
		case classfile.OpLshl:
			f.push(a << s)
		case classfile.OpLshr:
			f.push(a >> s)
		default:
			f.push(int64(uint64(a) >> s))
		}
		return nil
	case classfile.OpIneg:
		f.push(-f.popInt())
		return nil
	case classfile.OpLneg:
		f.push(-f.popLong())
		return nil
	case classfile.OpFneg:
		f.push(-f.popFloat())
		return nil
	case classfile.OpDneg:
		f.push(-f.popDouble())
		return nil
	}

	b, a := f.pop(), f.pop()
	switch a := a.(type) {
	case int32:
		b := b.(int32)
		if (op == classfile.OpIdiv || op == classfile.OpIrem) && b == 0 {
			return vm.throw("java/lang/ArithmeticException", "/ by zero")
		}
		f.push(intArith(op, a, b))
	case int64:
		b := b.(int64)
		if (op == classfile.OpLdiv || op == classfile.OpLrem) && b == 0 {
			return vm.throw("java/lang/ArithmeticException", "/ by zero")
		}
		f.push(longArith(op, a, b))
	case float32:
		f.push(float32(floatArith(op, float64(a), float64(b.(float32)))))
	case float64:
		f.push(floatArith(op, a, b.(float64)))
	default:
		return fmt.Errorf("%w: %s on %T", ErrBadCode, op, a)
	}
	return nil
}

func intArith(op classfile.Opcode, a, b int32) int32 {
	switch op {
	case classfile.OpIadd:
		return a + b
	case classfile.OpIsub:
		return a - b
	case classfile.OpImul:
		return a * b
	case classfile.OpIdiv:
		return a / b
	case classfile.OpIrem:
		return a % b
	case classfile.OpIand:
		return a & b
	case classfile.OpIor:
		return a | b
	}
	return a ^ b
}

func longArith(op classfile.Opcode, a, b int64) int64 {
	switch op {
	case classfile.OpLadd:
		return a + b
	case classfile.OpLsub:
		return a - b
	case classfile.OpLmul:
		return a * b
	case classfile.OpLdiv:
		return a / b
	case classfile.OpLrem:
		return a % b
	case classfile.OpLand:
		return a & b
	case classfile.OpLor:
		return a | b
	}
	return a ^ b
}

func floatArith(op classfile.Opcode, a, b float64) float64 {
	switch op {
	case classfile.OpFadd, classfile.OpDadd:
		return a + b
	case classfile.OpFsub, classfile.OpDsub:
		return a - b
	case classfile.OpFmul, classfile.OpDmul:
		return a * b
	case classfile.OpFdiv, classfile.OpDdiv:
		return a / b
	}
	return math.Mod(a, b)
}

func convert(f *frame, op classfile.Opcode) {
	v := f.pop()
	switch op {
	case classfile.OpI2l:
		f.push(int64(v.(int32)))
	case classfile.OpI2f:
		f.push(float32(v.(int32)))
	case classfile.OpI2d:
		f.push(float64(v.(int32)))
	case classfile.OpL2i:
		f.push(int32(v.(int64)))
	case classfile.OpL2f:
		f.push(float32(v.(int64)))
	case classfile.OpL2d:
		f.push(float64(v.(int64)))
	case classfile.OpF2i:
		f.push(int32(toInt(float64(v.(float32)), math.MinInt32, math.MaxInt32)))
	case classfile.OpF2l:
		f.push(toInt(float64(v.(float32)), math.MinInt64, math.MaxInt64))
	case classfile.OpF2d:
		f.push(float64(v.(float32)))
	case classfile.OpD2i:
		f.push(int32(toInt(v.(float64), math.MinInt32, math.MaxInt32)))
	case classfile.OpD2l:
		f.push(toInt(v.(float64), math.MinInt64, math.MaxInt64))
	case classfile.OpD2f:
		f.push(float32(v.(float64)))
	case classfile.OpI2b:
		f.push(int32(int8(v.(int32))))
	case classfile.OpI2c:
		f.push(int32(uint16(v.(int32))))
	case classfile.OpI2s:
		f.push(int32(int16(v.(int32))))
	}
}

// toInt converts with Java semantics: NaN is 0 and out-of-range values
// saturate.
func toInt(x float64, lo, hi int64) int64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x <= float64(lo):
		return lo
	case x >= float64(hi):
		return hi
	}
	return int64(x)
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// primitiveArrayTypes maps newarray type codes to element descriptors.
var primitiveArrayTypes = map[int]string{
	4: "Z", 5: "C", 6: "F", 7: "D", 8: "B", 9: "S", 10: "I", 11: "J",
}

func classDescriptor(class string) string {
	if strings.HasPrefix(class, "[") {
		return class
	}
	return "L" + class + ";"
}

func newArray(typ string, n int) *Array {
	a := &Array{Type: typ, Data: make([]Value, n)}
	z := zero(typ[1:])
	for i := range a.Data {
		a.Data[i] = z
	}
	return a
}

func newMultiArray(typ string, dims []int) *Array {
	a := newArray(typ, dims[0])
	if len(dims) > 1 {
		for i := range a.Data {
			a.Data[i] = newMultiArray(typ[1:], dims[1:])
		}
	}
	return a
}

func (vm *VM) array(v Value) (*Array, error) {
	arr, ok := v.(*Array)
	if !ok || arr == nil {
		if v == nil {
			return nil, vm.throw("java/lang/NullPointerException", "array is null")
		}
		return nil, fmt.Errorf("%w: %T is not an array", ErrBadCode, v)
	}
	return arr, nil
}

func (vm *VM) index(arr *Array, i int32) error {
	if i < 0 || int(i) >= len(arr.Data) {
		return vm.throw("java/lang/ArrayIndexOutOfBoundsException",
			fmt.Sprintf("Index %d out of bounds for length %d", i, len(arr.Data)))
	}
	return nil
}

func (vm *VM) arrayLoad(f *frame) error {
	i := f.popInt()
	arr, err := vm.array(f.pop())
	if err != nil {
		return err
	}
	if err := vm.index(arr, i); err != nil {
		return err
	}
	f.push(arr.Data[i])
	return nil
}

func (vm *VM) arrayStore(f *frame, op classfile.Opcode) error {
	v := f.pop()
	i := f.popInt()
	arr, err := vm.array(f.pop())
	if err != nil {
		return err
	}
	if err := vm.index(arr, i); err != nil {
		return err
	}
	switch op {
	case classfile.OpBastore:
		if arr.Elem() == "Z" {
			v = v.(int32) & 1
		} else {
			v = int32(int8(v.(int32)))
		}
	case classfile.OpCastore:
		v = int32(uint16(v.(int32)))
	case classfile.OpSastore:
		v = int32(int16(v.(int32)))
	case classfile.OpAastore:
		if v != nil && !vm.isAssignable(vm.classOf(v), descClass(arr.Elem())) {
			return vm.throw("java/lang/ArrayStoreException", dotted(vm.classOf(v)))
		}
	}
	arr.Data[i] = v
	return nil
}

func arrayClone(_ *VM, args []Value) (Value, error) {
	arr := args[0].(*Array)
	return &Array{Type: arr.Type, Data: append([]Value(nil), arr.Data...)}, nil
}
