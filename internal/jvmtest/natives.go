package jvmtest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// enumState is the Native state of an enum constant.
type enumState struct {
	name    string
	ordinal int32
}

// wrapper describes a box class and its primitive.
type wrapper struct {
	class string
	prim  string // primitive type name
	desc  string // primitive descriptor
}

var wrappers = []wrapper{
	{"java/lang/Boolean", "boolean", "Z"},
	{"java/lang/Byte", "byte", "B"},
	{"java/lang/Short", "short", "S"},
	{"java/lang/Character", "char", "C"},
	{"java/lang/Integer", "int", "I"},
	{"java/lang/Long", "long", "J"},
	{"java/lang/Float", "float", "F"},
	{"java/lang/Double", "double", "D"},
}

// primitiveTypes maps wrapper classes to the primitive named by their TYPE
// field.
var primitiveTypes = map[string]string{}

var platformInterfaces = map[string][]string{
	"java/lang/String":    {"java/io/Serializable", "java/lang/Comparable", "java/lang/CharSequence"},
	"java/lang/Enum":      {"java/lang/Comparable", "java/io/Serializable"},
	"java/lang/Throwable": {"java/io/Serializable"},
	"java/lang/Number":    {"java/io/Serializable"},
	"java/lang/Boolean":   {"java/io/Serializable", "java/lang/Comparable"},
	"java/lang/Character": {"java/io/Serializable", "java/lang/Comparable"},
	"java/lang/Byte":      {"java/lang/Comparable"},
	"java/lang/Short":     {"java/lang/Comparable"},
	"java/lang/Integer":   {"java/lang/Comparable"},
	"java/lang/Long":      {"java/lang/Comparable"},
	"java/lang/Float":     {"java/lang/Comparable"},
	"java/lang/Double":    {"java/lang/Comparable"},
}

var natives = map[string]nativeFunc{}

const (
	descObject = "Ljava/lang/Object;"
	descString = "Ljava/lang/String;"
)

func register(class, name, desc string, fn nativeFunc) {
	natives[class+"."+name+desc] = fn
}

// platformMethod returns the native implementation of a platform method.
func platformMethod(class, name, desc string) (nativeFunc, bool) {
	fn, ok := natives[class+"."+name+desc]
	return fn, ok
}

func init() {
	registerObject()
	registerString()
	registerWrappers()
	registerThrowable()
	registerEnum()
	registerUtil()
}

// ---------------------------------------------------------------------------
// java.lang.Object, Class, Record
// ---------------------------------------------------------------------------

func registerObject() {
	const obj = "java/lang/Object"
	nop := func(*VM, []Value) (Value, error) { return nil, nil }
	register(obj, "<init>", "()V", nop)
	register("java/lang/Record", "<init>", "()V", nop)
	register(obj, "hashCode", "()I", func(vm *VM, args []Value) (Value, error) {
		return identityHash(args[0]), nil
	})
	register(obj, "equals", "("+descObject+")Z", func(vm *VM, args []Value) (Value, error) {
		return boolValue(args[0] == args[1]), nil
	})
	register(obj, "toString", "()"+descString, func(vm *VM, args []Value) (Value, error) {
		h, err := vm.InvokeVirtual(args[0], "hashCode", "()I")
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%s@%x", dotted(vm.classOf(args[0])), uint32(h.(int32))), nil
	})
	register(obj, "getClass", "()Ljava/lang/Class;", func(vm *VM, args []Value) (Value, error) {
		return vm.classObject(vm.classOf(args[0])), nil
	})
	register("java/lang/Class", "getName", "()"+descString, func(vm *VM, args []Value) (Value, error) {
		return dotted(args[0].(*Object).Native.(string)), nil
	})
}

func identityHash(v Value) int32 {
	if o, ok := v.(*Object); ok {
		return o.id
	}
	return 0
}

// ---------------------------------------------------------------------------
// java.lang.String, StringBuilder
// ---------------------------------------------------------------------------

func registerString() {
	const str, sb = "java/lang/String", "java/lang/StringBuilder"
	register(str, "hashCode", "()I", func(vm *VM, args []Value) (Value, error) {
		return stringHash(args[0].(string)), nil
	})
	register(str, "equals", "("+descObject+")Z", func(vm *VM, args []Value) (Value, error) {
		s, ok := args[1].(string)
		return boolValue(ok && s == args[0].(string)), nil
	})
	register(str, "length", "()I", func(vm *VM, args []Value) (Value, error) {
		return int32(len(utf16.Encode([]rune(args[0].(string))))), nil
	})
	register(str, "isEmpty", "()Z", func(vm *VM, args []Value) (Value, error) {
		return boolValue(args[0].(string) == ""), nil
	})
	register(str, "charAt", "(I)C", func(vm *VM, args []Value) (Value, error) {
		units := utf16.Encode([]rune(args[0].(string)))
		i := args[1].(int32)
		if i < 0 || int(i) >= len(units) {
			return nil, vm.throw("java/lang/StringIndexOutOfBoundsException", fmt.Sprintf("index %d, length %d", i, len(units)))
		}
		return int32(units[i]), nil
	})
	register(str, "toString", "()"+descString, func(vm *VM, args []Value) (Value, error) {
		return args[0], nil
	})
	for _, d := range []string{"I", "J", "F", "D", "Z", "C", descObject} {
		register(str, "valueOf", "("+d+")"+descString, func(vm *VM, args []Value) (Value, error) {
			return vm.format(args[0], d)
		})
	}

	register(sb, "<init>", "()V", func(vm *VM, args []Value) (Value, error) {
		args[0].(*Object).Native = &strings.Builder{}
		return nil, nil
	})
	register(sb, "<init>", "("+descString+")V", func(vm *VM, args []Value) (Value, error) {
		b := &strings.Builder{}
		b.WriteString(args[1].(string))
		args[0].(*Object).Native = b
		return nil, nil
	})
	for _, d := range []string{descString, descObject, "I", "J", "F", "D", "Z", "C"} {
		register(sb, "append", "("+d+")L"+sb+";", func(vm *VM, args []Value) (Value, error) {
			s, err := vm.format(args[1], d)
			if err != nil {
				return nil, err
			}
			args[0].(*Object).Native.(*strings.Builder).WriteString(s.(string))
			return args[0], nil
		})
	}
	register(sb, "toString", "()"+descString, func(vm *VM, args []Value) (Value, error) {
		return args[0].(*Object).Native.(*strings.Builder).String(), nil
	})
}

// stringHash is String.hashCode over UTF-16 code units.
func stringHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return h
}

// format renders a value of descriptor desc the way String.valueOf does.
func (vm *VM) format(v Value, desc string) (Value, error) {
	switch desc {
	case "I", "B", "S":
		return strconv.Itoa(int(v.(int32))), nil
	case "J":
		return strconv.FormatInt(v.(int64), 10), nil
	case "Z":
		return strconv.FormatBool(v.(int32) != 0), nil
	case "C":
		return string(utf16.Decode([]uint16{uint16(v.(int32))})), nil
	case "F":
		return javaFloat(float64(v.(float32)), 32), nil
	case "D":
		return javaFloat(v.(float64), 64), nil
	}
	return vm.stringOf(v)
}

func (vm *VM) stringOf(v Value) (string, error) {
	switch v := v.(type) {
	case nil:
		return "null", nil
	case string:
		return v, nil
	}
	s, err := vm.InvokeVirtual(v, "toString", "()"+descString)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "null", nil
	}
	return s.(string), nil
}

// javaFloat formats like Double.toString and Float.toString: plain notation
// between 10^-3 and 10^7, computerized scientific notation outside, and
// always at least one fractional digit.
func javaFloat(x float64, bits int) string {
	switch {
	case math.IsNaN(x):
		return "NaN"
	case math.IsInf(x, 1):
		return "Infinity"
	case math.IsInf(x, -1):
		return "-Infinity"
	case x == 0:
		if math.Signbit(x) {
			return "-0.0"
		}
		return "0.0"
	}
	if a := math.Abs(x); a >= 1e-3 && a < 1e7 {
		s := strconv.FormatFloat(x, 'f', -1, bits)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	s := strconv.FormatFloat(x, 'e', -1, bits)
	mant, exp, _ := strings.Cut(s, "e")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	e, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(e)
}

// ---------------------------------------------------------------------------
// Wrappers
// ---------------------------------------------------------------------------

func registerWrappers() {
	for _, w := range wrappers {
		primitiveTypes[w.class] = w.prim
		self := "L" + w.class + ";"
		register(w.class, "valueOf", "("+w.desc+")"+self, func(vm *VM, args []Value) (Value, error) {
			o := vm.newObject(w.class)
			o.Native = args[0]
			return o, nil
		})
		register(w.class, w.prim+"Value", "()"+w.desc, func(vm *VM, args []Value) (Value, error) {
			return args[0].(*Object).Native, nil
		})
		register(w.class, "hashCode", "("+w.desc+")I", func(vm *VM, args []Value) (Value, error) {
			return primitiveHash(args[0], w.desc), nil
		})
		register(w.class, "hashCode", "()I", func(vm *VM, args []Value) (Value, error) {
			return primitiveHash(args[0].(*Object).Native, w.desc), nil
		})
		register(w.class, "equals", "("+descObject+")Z", func(vm *VM, args []Value) (Value, error) {
			other, ok := args[1].(*Object)
			if !ok || other == nil || other.Class != w.class {
				return boolValue(false), nil
			}
			return boolValue(boxedEqual(args[0].(*Object).Native, other.Native)), nil
		})
		register(w.class, "toString", "()"+descString, func(vm *VM, args []Value) (Value, error) {
			return vm.format(args[0].(*Object).Native, w.desc)
		})
	}
}

// primitiveHash follows the hashCode of each wrapper class.
func primitiveHash(v Value, desc string) int32 {
	if desc == "Z" {
		if v.(int32) != 0 {
			return 1231
		}
		return 1237
	}
	switch v := v.(type) {
	case int32:
		return v
	case int64:
		return int32(v ^ int64(uint64(v)>>32))
	case float32:
		if v != v {
			return 0x7fc00000
		}
		return int32(math.Float32bits(v))
	case float64:
		bits := math.Float64bits(v)
		if v != v {
			bits = 0x7ff8000000000000
		}
		return int32(bits ^ bits>>32)
	}
	return 0
}

// boxedEqual compares like the wrapper equals methods, which compare float
// bit patterns.
func boxedEqual(a, b Value) bool {
	switch a := a.(type) {
	case float32:
		return math.Float32bits(a) == math.Float32bits(b.(float32)) || a != a && b.(float32) != b.(float32)
	case float64:
		return math.Float64bits(a) == math.Float64bits(b.(float64)) || math.IsNaN(a) && math.IsNaN(b.(float64))
	}
	return a == b
}

// ---------------------------------------------------------------------------
// Throwable
// ---------------------------------------------------------------------------

func registerThrowable() {
	const th = "java/lang/Throwable"
	register(th, "<init>", "()V", func(vm *VM, args []Value) (Value, error) { return nil, nil })
	register(th, "<init>", "("+descString+")V", func(vm *VM, args []Value) (Value, error) {
		if args[1] != nil {
			args[0].(*Object).Fields[messageField] = args[1]
		}
		return nil, nil
	})
	register(th, "getMessage", "()"+descString, func(vm *VM, args []Value) (Value, error) {
		return args[0].(*Object).Fields[messageField], nil
	})
	register(th, "toString", "()"+descString, func(vm *VM, args []Value) (Value, error) {
		t := &Thrown{Exception: args[0].(*Object)}
		return t.Error(), nil
	})
}

// ---------------------------------------------------------------------------
// Enum
// ---------------------------------------------------------------------------

func registerEnum() {
	const enum = "java/lang/Enum"
	state := func(v Value) *enumState { return v.(*Object).Native.(*enumState) }
	register(enum, "<init>", "("+descString+"I)V", func(vm *VM, args []Value) (Value, error) {
		args[0].(*Object).Native = &enumState{name: args[1].(string), ordinal: args[2].(int32)}
		return nil, nil
	})
	register(enum, "name", "()"+descString, func(vm *VM, args []Value) (Value, error) {
		return state(args[0]).name, nil
	})
	register(enum, "toString", "()"+descString, func(vm *VM, args []Value) (Value, error) {
		return state(args[0]).name, nil
	})
	register(enum, "ordinal", "()I", func(vm *VM, args []Value) (Value, error) {
		return state(args[0]).ordinal, nil
	})
	register(enum, "valueOf", "(Ljava/lang/Class;"+descString+")Ljava/lang/Enum;", func(vm *VM, args []Value) (Value, error) {
		class := args[0].(*Object).Native.(string)
		name, ok := args[1].(string)
		if !ok {
			return nil, vm.throw("java/lang/NullPointerException", "Name is null")
		}
		values, err := vm.InvokeStatic(class, "values", "()[L"+class+";")
		if err != nil {
			return nil, err
		}
		for _, v := range values.(*Array).Data {
			if state(v).name == name {
				return v, nil
			}
		}
		return nil, vm.throw("java/lang/IllegalArgumentException", "No enum constant "+dotted(class)+"."+name)
	})
}

// ---------------------------------------------------------------------------
// java.util.Objects, Arrays, Math
// ---------------------------------------------------------------------------

func registerUtil() {
	const objects, arrays, jmath = "java/util/Objects", "java/util/Arrays", "java/lang/Math"
	register(objects, "equals", "("+descObject+descObject+")Z", func(vm *VM, args []Value) (Value, error) {
		eq, err := vm.equals(args[0], args[1])
		return boolValue(eq), err
	})
	register(objects, "hashCode", "("+descObject+")I", func(vm *VM, args []Value) (Value, error) {
		return vm.hashCode(args[0])
	})

	for _, d := range []string{"[Z", "[B", "[S", "[C", "[I", "[J", "[F", "[D", "[" + descObject} {
		register(arrays, "equals", "("+d+d+")Z", func(vm *VM, args []Value) (Value, error) {
			eq, err := vm.arraysEqual(args[0], args[1], false)
			return boolValue(eq), err
		})
		register(arrays, "hashCode", "("+d+")I", func(vm *VM, args []Value) (Value, error) {
			return vm.arrayHash(args[0], false)
		})
	}
	register(arrays, "deepEquals", "([Ljava/lang/Object;[Ljava/lang/Object;)Z", func(vm *VM, args []Value) (Value, error) {
		eq, err := vm.arraysEqual(args[0], args[1], true)
		return boolValue(eq), err
	})
	register(arrays, "deepHashCode", "([Ljava/lang/Object;)I", func(vm *VM, args []Value) (Value, error) {
		return vm.arrayHash(args[0], true)
	})

	register(jmath, "max", "(II)I", func(vm *VM, args []Value) (Value, error) {
		return max(args[0].(int32), args[1].(int32)), nil
	})
	register(jmath, "min", "(II)I", func(vm *VM, args []Value) (Value, error) {
		return min(args[0].(int32), args[1].(int32)), nil
	})
	register(jmath, "abs", "(I)I", func(vm *VM, args []Value) (Value, error) {
		if v := args[0].(int32); v < 0 {
			return -v, nil
		}
		return args[0], nil
	})
}

// equals is a null-safe virtual equals.
func (vm *VM) equals(a, b Value) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	if a == b {
		return true, nil
	}
	v, err := vm.InvokeVirtual(a, "equals", "("+descObject+")Z", b)
	if err != nil {
		return false, err
	}
	return Bool(v), nil
}

// hashCode is a null-safe virtual hashCode.
func (vm *VM) hashCode(v Value) (Value, error) {
	if v == nil {
		return int32(0), nil
	}
	return vm.InvokeVirtual(v, "hashCode", "()I")
}

func (vm *VM) arraysEqual(a, b Value, deep bool) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	x, y := a.(*Array), b.(*Array)
	if len(x.Data) != len(y.Data) {
		return false, nil
	}
	for i := range x.Data {
		var eq bool
		var err error
		switch ex, ey := x.Data[i], y.Data[i]; {
		case x.Elem()[0] != 'L' && x.Elem()[0] != '[':
			eq = boxedEqual(ex, ey)
		case deep && isArray(ex) && isArray(ey):
			eq, err = vm.arraysEqual(ex, ey, true)
		default:
			eq, err = vm.equals(ex, ey)
		}
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

func (vm *VM) arrayHash(v Value, deep bool) (Value, error) {
	if v == nil {
		return int32(0), nil
	}
	arr := v.(*Array)
	h := int32(1)
	for _, e := range arr.Data {
		var eh Value
		var err error
		switch {
		case arr.Elem()[0] != 'L' && arr.Elem()[0] != '[':
			eh = primitiveHash(e, arr.Elem())
		case deep && isArray(e):
			eh, err = vm.arrayHash(e, true)
		default:
			eh, err = vm.hashCode(e)
		}
		if err != nil {
			return nil, err
		}
		h = 31*h + eh.(int32)
	}
	return h, nil
}

func isArray(v Value) bool {
	_, ok := v.(*Array)
	return ok
}
