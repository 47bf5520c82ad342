// Package frames simulates the operand stack and local variables of a
// method body to compute max_stack, max_locals and the StackMapTable frames
// the JVM verifier requires.
package frames

import (
	"fmt"
	"strings"

	"github.com/chazu/sourcegen/classfile"
)

// Kind is the verification kind of a value.
type Kind uint8

const (
	KindTop Kind = iota
	KindInt
	KindFloat
	KindLong
	KindDouble
	KindNull
	KindUninitThis
	KindUninit
	KindRef
)

// VType is a verification type. Class holds the internal name or array
// descriptor of KindRef values; Offset holds the allocating `new`
// instruction of KindUninit values.
type VType struct {
	Kind   Kind
	Class  string
	Offset int
}

var (
	Top        = VType{Kind: KindTop}
	Int        = VType{Kind: KindInt}
	Float      = VType{Kind: KindFloat}
	Long       = VType{Kind: KindLong}
	Double     = VType{Kind: KindDouble}
	Null       = VType{Kind: KindNull}
	UninitThis = VType{Kind: KindUninitThis}
)

// Ref returns the reference type for an internal name or array descriptor.
func Ref(class string) VType { return VType{Kind: KindRef, Class: class} }

// Uninit returns the type of an object allocated by the `new` at offset and
// not yet constructed.
func Uninit(offset int) VType { return VType{Kind: KindUninit, Offset: offset} }

// ObjectClass is the root of the class hierarchy.
const ObjectClass = "java/lang/Object"

// Wide reports whether v takes two words.
func (v VType) Wide() bool { return v.Kind == KindLong || v.Kind == KindDouble }

// Words returns the stack or local words of v.
func (v VType) Words() int {
	if v.Wide() {
		return 2
	}
	return 1
}

// IsReference reports whether v is any reference, including null and
// uninitialized objects.
func (v VType) IsReference() bool {
	switch v.Kind {
	case KindNull, KindUninitThis, KindUninit, KindRef:
		return true
	}
	return false
}

func (v VType) String() string {
	switch v.Kind {
	case KindTop:
		return "top"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindNull:
		return "null"
	case KindUninitThis:
		return "uninitializedThis"
	case KindUninit:
		return fmt.Sprintf("uninitialized(%d)", v.Offset)
	}
	return v.Class
}

// FromDescriptor returns the verification type of a field descriptor.
// boolean, byte, char and short are ints on the stack.
func FromDescriptor(desc string) VType {
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return Int
	case 'J':
		return Long
	case 'F':
		return Float
	case 'D':
		return Double
	case 'L':
		return Ref(desc[1 : len(desc)-1])
	}
	return Ref(desc)
}

// classDescriptor converts an internal name or array descriptor into a field
// descriptor.
func classDescriptor(class string) string {
	if strings.HasPrefix(class, "[") {
		return class
	}
	return "L" + class + ";"
}

// verification converts v into its class-file form.
func (v VType) verification() classfile.VerificationType {
	switch v.Kind {
	case KindInt:
		return classfile.VerificationType{Tag: classfile.VTInteger}
	case KindFloat:
		return classfile.VerificationType{Tag: classfile.VTFloat}
	case KindLong:
		return classfile.VerificationType{Tag: classfile.VTLong}
	case KindDouble:
		return classfile.VerificationType{Tag: classfile.VTDouble}
	case KindNull:
		return classfile.VerificationType{Tag: classfile.VTNull}
	case KindUninitThis:
		return classfile.VerificationType{Tag: classfile.VTUninitializedThis}
	case KindUninit:
		return classfile.VerificationType{Tag: classfile.VTUninitialized, Offset: uint16(v.Offset)}
	case KindRef:
		return classfile.VerificationType{Tag: classfile.VTObject, Class: v.Class}
	}
	return classfile.VerificationType{Tag: classfile.VTTop}
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// frame is the state before an instruction. Locals hold one entry per slot;
// the slot after a long or double holds Top. The stack holds one entry per
// value.
type frame struct {
	locals []VType
	stack  []VType
}

func (f *frame) clone() *frame {
	return &frame{
		locals: append([]VType(nil), f.locals...),
		stack:  append([]VType(nil), f.stack...),
	}
}

func (f *frame) words() int {
	n := 0
	for _, v := range f.stack {
		n += v.Words()
	}
	return n
}

// compressLocals returns the locals in StackMapTable form: one entry per
// value and trailing Tops dropped.
func compressLocals(locals []VType) []classfile.VerificationType {
	end := len(locals)
	for end > 0 && locals[end-1].Kind == KindTop {
		// The Top after a trailing long or double belongs to it.
		if end >= 2 && locals[end-2].Wide() {
			break
		}
		end--
	}
	out := make([]classfile.VerificationType, 0, end)
	for i := 0; i < end; i++ {
		out = append(out, locals[i].verification())
		if locals[i].Wide() {
			i++
		}
	}
	return out
}

func compressStack(stack []VType) []classfile.VerificationType {
	out := make([]classfile.VerificationType, len(stack))
	for i, v := range stack {
		out[i] = v.verification()
	}
	return out
}
