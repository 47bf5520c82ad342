// Package model defines the language-neutral IR: type references,
// expressions, statements and declared types.
//
// Type references are immutable values. Declared types are produced by the
// builders in builder.go and are read-only once built.
package model

import (
	"fmt"
	"strings"
)

// TypeDef is a reference to a type. The set of variants is closed.
type TypeDef interface {
	String() string
	isTypeDef()
}

// ---------------------------------------------------------------------------
// Primitive types
// ---------------------------------------------------------------------------

// PrimitiveKind identifies one of the VM's primitive types.
type PrimitiveKind uint8

const (
	PrimVoid PrimitiveKind = iota
	PrimBoolean
	PrimByte
	PrimShort
	PrimChar
	PrimInt
	PrimLong
	PrimFloat
	PrimDouble
)

var primitiveNames = [...]string{
	PrimVoid:    "void",
	PrimBoolean: "boolean",
	PrimByte:    "byte",
	PrimShort:   "short",
	PrimChar:    "char",
	PrimInt:     "int",
	PrimLong:    "long",
	PrimFloat:   "float",
	PrimDouble:  "double",
}

var primitiveDescriptors = [...]string{
	PrimVoid:    "V",
	PrimBoolean: "Z",
	PrimByte:    "B",
	PrimShort:   "S",
	PrimChar:    "C",
	PrimInt:     "I",
	PrimLong:    "J",
	PrimFloat:   "F",
	PrimDouble:  "D",
}

// Primitive is a primitive type, including void.
type Primitive struct {
	Kind PrimitiveKind
}

func (Primitive) isTypeDef() {}

func (p Primitive) String() string { return primitiveNames[p.Kind] }

var (
	Void    = Primitive{PrimVoid}
	Boolean = Primitive{PrimBoolean}
	Byte    = Primitive{PrimByte}
	Short   = Primitive{PrimShort}
	Char    = Primitive{PrimChar}
	Int     = Primitive{PrimInt}
	Long    = Primitive{PrimLong}
	Float   = Primitive{PrimFloat}
	Double  = Primitive{PrimDouble}
)

// ---------------------------------------------------------------------------
// Class types
// ---------------------------------------------------------------------------

// ClassKind is the declared kind of a class type. Dispatch selection for
// invocations is made from it.
type ClassKind uint8

const (
	KindClass ClassKind = iota
	KindInterface
	KindEnum
	KindRecord
	KindAnnotation
)

func (k ClassKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindInterface:
		return "interface"
	case KindEnum:
		return "enum"
	case KindRecord:
		return "record"
	case KindAnnotation:
		return "annotation"
	}
	return fmt.Sprintf("ClassKind(%d)", uint8(k))
}

// ClassType names a class, interface, enum, record or annotation type by its
// binary name ("java.lang.String", "com.example.Outer$Inner").
type ClassType struct {
	Name     string
	Kind     ClassKind
	Nullable bool
}

func (ClassType) isTypeDef() {}

func (c ClassType) String() string { return c.Name }

// Class returns a class type reference.
func Class(name string) ClassType { return ClassType{Name: name, Kind: KindClass} }

// Interface returns an interface type reference.
func Interface(name string) ClassType { return ClassType{Name: name, Kind: KindInterface} }

// Enum returns an enum type reference.
func Enum(name string) ClassType { return ClassType{Name: name, Kind: KindEnum} }

// Record returns a record type reference.
func Record(name string) ClassType { return ClassType{Name: name, Kind: KindRecord} }

// InternalName returns the slash-separated form used in class files.
func (c ClassType) InternalName() string { return strings.ReplaceAll(c.Name, ".", "/") }

// Package returns the package part of the binary name.
func (c ClassType) Package() string {
	if i := strings.LastIndexByte(c.Name, '.'); i >= 0 {
		return c.Name[:i]
	}
	return ""
}

// SimpleName returns the unqualified name, ignoring enclosing types.
func (c ClassType) SimpleName() string {
	n := c.Name[strings.LastIndexByte(c.Name, '.')+1:]
	if i := strings.LastIndexByte(n, '$'); i >= 0 {
		return n[i+1:]
	}
	return n
}

// Nested returns the type reference for a member type of c.
func (c ClassType) Nested(simple string, kind ClassKind) ClassType {
	return ClassType{Name: c.Name + "$" + simple, Kind: kind}
}

// ---------------------------------------------------------------------------
// Generic and structural types
// ---------------------------------------------------------------------------

// Parameterized is a generic class type applied to type arguments.
type Parameterized struct {
	Raw  ClassType
	Args []TypeDef
}

func (Parameterized) isTypeDef() {}

func (p Parameterized) String() string {
	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = a.String()
	}
	return p.Raw.Name + "<" + strings.Join(args, ", ") + ">"
}

// Generic returns a parameterized type. The argument slice is copied.
func Generic(raw ClassType, args ...TypeDef) Parameterized {
	return Parameterized{Raw: raw, Args: append([]TypeDef(nil), args...)}
}

// Wildcard is a type argument wildcard with optional bounds.
type Wildcard struct {
	Upper []TypeDef
	Lower []TypeDef
}

func (Wildcard) isTypeDef() {}

func (w Wildcard) String() string {
	switch {
	case len(w.Lower) > 0:
		return "? super " + w.Lower[0].String()
	case len(w.Upper) > 0:
		return "? extends " + w.Upper[0].String()
	}
	return "?"
}

// TypeVariable is a reference to a declared type parameter.
type TypeVariable struct {
	Name   string
	Bounds []TypeDef
}

func (TypeVariable) isTypeDef() {}

func (v TypeVariable) String() string { return v.Name }

// Array is an array type with one or more dimensions.
type Array struct {
	Component  TypeDef
	Dimensions int
}

func (Array) isTypeDef() {}

func (a Array) String() string { return a.Component.String() + strings.Repeat("[]", a.Dimensions) }

// ArrayOf returns a one-dimensional array of t. Arrays of arrays collapse
// into a single Array value with more dimensions.
func ArrayOf(t TypeDef) Array {
	if a, ok := t.(Array); ok {
		return Array{Component: a.Component, Dimensions: a.Dimensions + 1}
	}
	return Array{Component: t, Dimensions: 1}
}

// Element returns the type of one element of a.
func (a Array) Element() TypeDef {
	if a.Dimensions > 1 {
		return Array{Component: a.Component, Dimensions: a.Dimensions - 1}
	}
	return a.Component
}

// Annotated wraps a type with type-use annotations.
type Annotated struct {
	Type        TypeDef
	Annotations []AnnotationDef
}

func (Annotated) isTypeDef() {}

func (a Annotated) String() string { return a.Type.String() }

// ---------------------------------------------------------------------------
// Well-known types
// ---------------------------------------------------------------------------

var (
	TypeObject           = Class("java.lang.Object")
	TypeString           = Class("java.lang.String")
	TypeClass            = Class("java.lang.Class")
	TypeNumber           = Class("java.lang.Number")
	TypeThrowable        = Class("java.lang.Throwable")
	TypeException        = Class("java.lang.Exception")
	TypeRuntimeException = Class("java.lang.RuntimeException")
	TypeEnum             = Class("java.lang.Enum")
	TypeRecord           = Class("java.lang.Record")
	TypeStringBuilder    = Class("java.lang.StringBuilder")
	TypeArrays           = Class("java.util.Arrays")
	TypeObjects          = Class("java.util.Objects")

	TypeBooleanWrapper   = Class("java.lang.Boolean")
	TypeByteWrapper      = Class("java.lang.Byte")
	TypeShortWrapper     = Class("java.lang.Short")
	TypeCharacterWrapper = Class("java.lang.Character")
	TypeIntegerWrapper   = Class("java.lang.Integer")
	TypeLongWrapper      = Class("java.lang.Long")
	TypeFloatWrapper     = Class("java.lang.Float")
	TypeDoubleWrapper    = Class("java.lang.Double")
)

var wrappers = map[PrimitiveKind]ClassType{
	PrimBoolean: TypeBooleanWrapper,
	PrimByte:    TypeByteWrapper,
	PrimShort:   TypeShortWrapper,
	PrimChar:    TypeCharacterWrapper,
	PrimInt:     TypeIntegerWrapper,
	PrimLong:    TypeLongWrapper,
	PrimFloat:   TypeFloatWrapper,
	PrimDouble:  TypeDoubleWrapper,
}

// Wrapper returns the boxed class type of a primitive. Void has none.
func Wrapper(p Primitive) (ClassType, bool) {
	w, ok := wrappers[p.Kind]
	return w, ok
}

// Unwrap returns the primitive type boxed by t, if t is a wrapper class.
func Unwrap(t TypeDef) (Primitive, bool) {
	c, ok := Erase(t).(ClassType)
	if !ok {
		return Primitive{}, false
	}
	for k, w := range wrappers {
		if w.Name == c.Name {
			return Primitive{k}, true
		}
	}
	return Primitive{}, false
}

// ---------------------------------------------------------------------------
// Type operations
// ---------------------------------------------------------------------------

// Erase returns the runtime type of t: a Primitive, a ClassType or an Array
// of erased components.
func Erase(t TypeDef) TypeDef {
	switch t := t.(type) {
	case Primitive, ClassType:
		return t
	case Parameterized:
		return t.Raw
	case Wildcard:
		if len(t.Upper) > 0 {
			return Erase(t.Upper[0])
		}
		return TypeObject
	case TypeVariable:
		if len(t.Bounds) > 0 {
			return Erase(t.Bounds[0])
		}
		return TypeObject
	case Array:
		return Array{Component: Erase(t.Component), Dimensions: t.Dimensions}
	case Annotated:
		return Erase(t.Type)
	case nil:
		return Void
	}
	panic(fmt.Sprintf("model: unknown type %T", t))
}

// Descriptor returns the field descriptor of t after erasure.
func Descriptor(t TypeDef) string {
	switch e := Erase(t).(type) {
	case Primitive:
		return primitiveDescriptors[e.Kind]
	case ClassType:
		return "L" + e.InternalName() + ";"
	case Array:
		return strings.Repeat("[", e.Dimensions) + Descriptor(e.Component)
	}
	panic("unreachable")
}

// MethodDescriptor returns "(params)ret" for the erased signature.
func MethodDescriptor(params []TypeDef, ret TypeDef) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range params {
		b.WriteString(Descriptor(p))
	}
	b.WriteByte(')')
	b.WriteString(Descriptor(ret))
	return b.String()
}

// InternalName returns the class-file name of a reference type: the internal
// name for classes and the descriptor for arrays.
func InternalName(t TypeDef) string {
	switch e := Erase(t).(type) {
	case ClassType:
		return e.InternalName()
	case Array:
		return Descriptor(e)
	}
	panic(fmt.Sprintf("model: %s is not a reference type", t))
}

// IsGeneric reports whether t needs a generic signature to be described
// precisely.
func IsGeneric(t TypeDef) bool {
	switch t := t.(type) {
	case Parameterized, Wildcard, TypeVariable:
		return true
	case Array:
		return IsGeneric(t.Component)
	case Annotated:
		return IsGeneric(t.Type)
	}
	return false
}

// Signature returns the generic signature of t.
func Signature(t TypeDef) string {
	switch t := t.(type) {
	case Primitive:
		return primitiveDescriptors[t.Kind]
	case ClassType:
		return "L" + t.InternalName() + ";"
	case Parameterized:
		var b strings.Builder
		b.WriteString("L")
		b.WriteString(t.Raw.InternalName())
		b.WriteByte('<')
		for _, a := range t.Args {
			b.WriteString(Signature(a))
		}
		b.WriteString(">;")
		return b.String()
	case Wildcard:
		switch {
		case len(t.Lower) > 0:
			return "-" + Signature(t.Lower[0])
		case len(t.Upper) > 0:
			return "+" + Signature(t.Upper[0])
		}
		return "*"
	case TypeVariable:
		return "T" + t.Name + ";"
	case Array:
		return strings.Repeat("[", t.Dimensions) + Signature(t.Component)
	case Annotated:
		return Signature(t.Type)
	}
	panic(fmt.Sprintf("model: unknown type %T", t))
}

// TypeParamsSignature renders a formal type parameter section, or "" when
// there are no parameters.
func TypeParamsSignature(params []TypeVariable) string {
	if len(params) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('<')
	for _, p := range params {
		b.WriteString(p.Name)
		b.WriteByte(':')
		if len(p.Bounds) == 0 {
			b.WriteString(Signature(TypeObject))
			continue
		}
		for i, bound := range p.Bounds {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(Signature(bound))
		}
	}
	b.WriteByte('>')
	return b.String()
}

// Category is the operand-stack category of an erased type.
type Category uint8

const (
	CatVoid Category = iota
	CatInt           // boolean, byte, short, char, int
	CatLong
	CatFloat
	CatDouble
	CatRef
)

// CategoryOf returns the stack category of t.
func CategoryOf(t TypeDef) Category {
	p, ok := Erase(t).(Primitive)
	if !ok {
		return CatRef
	}
	switch p.Kind {
	case PrimVoid:
		return CatVoid
	case PrimLong:
		return CatLong
	case PrimFloat:
		return CatFloat
	case PrimDouble:
		return CatDouble
	}
	return CatInt
}

// Width returns the number of local slots (and stack words) a value of t
// occupies.
func Width(t TypeDef) int {
	switch CategoryOf(t) {
	case CatVoid:
		return 0
	case CatLong, CatDouble:
		return 2
	}
	return 1
}

// IsPrimitive reports whether t erases to a non-void primitive.
func IsPrimitive(t TypeDef) bool {
	p, ok := Erase(t).(Primitive)
	return ok && p.Kind != PrimVoid
}

// IsVoid reports whether t is void.
func IsVoid(t TypeDef) bool {
	p, ok := Erase(t).(Primitive)
	return ok && p.Kind == PrimVoid
}

// IsReference reports whether t is a class, interface or array type.
func IsReference(t TypeDef) bool {
	_, ok := Erase(t).(Primitive)
	return !ok
}

// PromotionRank orders numeric primitives along the widening chain
// byte/short/char -> int -> long -> float -> double. Non-numeric types
// return -1.
func PromotionRank(p Primitive) int {
	switch p.Kind {
	case PrimByte, PrimShort, PrimChar:
		return 0
	case PrimInt:
		return 1
	case PrimLong:
		return 2
	case PrimFloat:
		return 3
	case PrimDouble:
		return 4
	}
	return -1
}

// IsNumeric reports whether p participates in numeric promotion.
func IsNumeric(p Primitive) bool { return PromotionRank(p) >= 0 }

// IsWidening reports whether from converts to to without loss of range.
func IsWidening(from, to Primitive) bool {
	if from.Kind == to.Kind {
		return true
	}
	if !IsNumeric(from) || !IsNumeric(to) {
		return false
	}
	switch from.Kind {
	case PrimByte:
		return to.Kind != PrimChar
	case PrimShort, PrimChar:
		return PromotionRank(to) > 0
	}
	return PromotionRank(from) < PromotionRank(to)
}

// SameType reports whether a and b denote the same type.
func SameType(a, b TypeDef) bool {
	if an, ok := b.(Annotated); ok {
		b = an.Type
	}
	switch a := a.(type) {
	case Primitive:
		b, ok := b.(Primitive)
		return ok && a == b
	case ClassType:
		b, ok := b.(ClassType)
		return ok && a.Name == b.Name
	case Parameterized:
		b, ok := b.(Parameterized)
		return ok && a.Raw.Name == b.Raw.Name && sameTypes(a.Args, b.Args)
	case Wildcard:
		b, ok := b.(Wildcard)
		return ok && sameTypes(a.Upper, b.Upper) && sameTypes(a.Lower, b.Lower)
	case TypeVariable:
		b, ok := b.(TypeVariable)
		return ok && a.Name == b.Name
	case Array:
		b, ok := b.(Array)
		return ok && a.Dimensions == b.Dimensions && SameType(a.Component, b.Component)
	case Annotated:
		return SameType(a.Type, b)
	}
	return false
}

// SameErasure reports whether a and b have the same runtime type.
func SameErasure(a, b TypeDef) bool {
	return Descriptor(a) == Descriptor(b)
}

func sameTypes(a, b []TypeDef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !SameType(a[i], b[i]) {
			return false
		}
	}
	return true
}
