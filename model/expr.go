package model

import (
	"fmt"
	"math"
)

// Expr is a value-producing IR node. Type reports the declared type of the
// value the node leaves on the operand stack.
type Expr interface {
	Type() TypeDef
	isExpr()
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// Constant is a literal. Value holds nil (null), bool, int64 (all integral
// types), float64 (float and double), string, or a TypeDef for class literals.
type Constant struct {
	Typ   TypeDef
	Value any
}

func (c Constant) Type() TypeDef { return c.Typ }
func (Constant) isExpr()         {}

func (c Constant) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case TypeDef:
		return v.String() + ".class"
	}
	return fmt.Sprint(c.Value)
}

// Int32 returns an int constant.
func Int32(v int32) Constant { return Constant{Typ: Int, Value: int64(v)} }

// IntConst is shorthand for Int32(int32(v)).
func IntConst(v int) Constant { return Int32(int32(v)) }

func LongConst(v int64) Constant      { return Constant{Typ: Long, Value: v} }
func ByteConst(v int8) Constant       { return Constant{Typ: Byte, Value: int64(v)} }
func ShortConst(v int16) Constant     { return Constant{Typ: Short, Value: int64(v)} }
func CharConst(v uint16) Constant     { return Constant{Typ: Char, Value: int64(v)} }
func FloatConst(v float32) Constant   { return Constant{Typ: Float, Value: float64(v)} }
func DoubleConst(v float64) Constant  { return Constant{Typ: Double, Value: v} }
func BoolConst(v bool) Constant       { return Constant{Typ: Boolean, Value: v} }
func StringConst(v string) Constant   { return Constant{Typ: TypeString, Value: v} }
func Null(t TypeDef) Constant         { return Constant{Typ: t} }
func ClassLiteral(t TypeDef) Constant { return Constant{Typ: TypeClass, Value: t} }

var (
	True  = BoolConst(true)
	False = BoolConst(false)
)

// IntValue returns the integral value of c and whether c is integral
// (boolean counts as 0/1).
func (c Constant) IntValue() (int64, bool) {
	switch v := c.Value.(type) {
	case int64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// IsZero reports whether c is an integral zero or false.
func (c Constant) IsZero() bool {
	v, ok := c.IntValue()
	return ok && v == 0
}

// FloatBits returns the IEEE bits of a floating constant in the width of its
// declared type.
func (c Constant) FloatBits() uint64 {
	f, _ := c.Value.(float64)
	if p, ok := c.Typ.(Primitive); ok && p.Kind == PrimFloat {
		return uint64(math.Float32bits(float32(f)))
	}
	return math.Float64bits(f)
}

// ---------------------------------------------------------------------------
// Variable references
// ---------------------------------------------------------------------------

// LocalVar refers to a local declared in an enclosing scope. Lowering falls
// back to a parameter of the same name.
type LocalVar struct {
	Name string
	Typ  TypeDef
}

func (v LocalVar) Type() TypeDef { return v.Typ }
func (LocalVar) isExpr()         {}

// Local returns a local variable reference.
func Local(name string, t TypeDef) LocalVar { return LocalVar{Name: name, Typ: t} }

// ParamRef refers to a parameter of the enclosing method.
type ParamRef struct {
	Name string
	Typ  TypeDef
}

func (p ParamRef) Type() TypeDef { return p.Typ }
func (ParamRef) isExpr()         {}

// Param returns a parameter reference.
func Param(name string, t TypeDef) ParamRef { return ParamRef{Name: name, Typ: t} }

// FieldRef reads an instance field of Owner through Instance.
type FieldRef struct {
	Instance Expr
	Owner    ClassType
	Name     string
	Typ      TypeDef
}

func (f FieldRef) Type() TypeDef { return f.Typ }
func (FieldRef) isExpr()         {}

// StaticFieldRef reads a static field of Owner. It also names enum constants.
type StaticFieldRef struct {
	Owner ClassType
	Name  string
	Typ   TypeDef
}

func (f StaticFieldRef) Type() TypeDef { return f.Typ }
func (StaticFieldRef) isExpr()         {}

// EnumValue returns the reference to an enum constant.
func EnumValue(owner ClassType, name string) StaticFieldRef {
	return StaticFieldRef{Owner: owner, Name: name, Typ: owner}
}

// This is the receiver of the enclosing instance method.
type This struct {
	Typ ClassType
}

func (t This) Type() TypeDef { return t.Typ }
func (This) isExpr()         {}

// Super is the receiver viewed as its superclass. Invocations through it
// bypass virtual dispatch.
type Super struct {
	Typ ClassType
}

func (s Super) Type() TypeDef { return s.Typ }
func (Super) isExpr()         {}

// CaughtException is the exception bound by the innermost enclosing catch
// clause.
type CaughtException struct {
	Typ TypeDef
}

func (c CaughtException) Type() TypeDef { return c.Typ }
func (CaughtException) isExpr()         {}

// ---------------------------------------------------------------------------
// Invocation and allocation
// ---------------------------------------------------------------------------

// MethodRef identifies a method by owner, name and erased signature.
type MethodRef struct {
	Owner   ClassType
	Name    string
	Params  []TypeDef
	Returns TypeDef
}

// Method returns a method reference. The parameter slice is copied.
func Method(owner ClassType, name string, returns TypeDef, params ...TypeDef) MethodRef {
	return MethodRef{Owner: owner, Name: name, Params: append([]TypeDef(nil), params...), Returns: returns}
}

// Descriptor returns the method descriptor.
func (m MethodRef) Descriptor() string { return MethodDescriptor(m.Params, m.returns()) }

func (m MethodRef) returns() TypeDef {
	if m.Returns == nil {
		return Void
	}
	return m.Returns
}

// Call invokes m on instance.
func (m MethodRef) Call(instance Expr, args ...Expr) InvokeInstance {
	return InvokeInstance{Instance: instance, Method: m, Args: args}
}

// CallStatic invokes m as a static method.
func (m MethodRef) CallStatic(args ...Expr) InvokeStatic {
	return InvokeStatic{Method: m, Args: args}
}

// InvokeStatic calls a static method.
type InvokeStatic struct {
	Method MethodRef
	Args   []Expr
}

func (i InvokeStatic) Type() TypeDef { return i.Method.returns() }
func (InvokeStatic) isExpr()         {}

// InvokeInstance calls an instance method on Instance.
type InvokeInstance struct {
	Instance Expr
	Method   MethodRef
	Args     []Expr
}

func (i InvokeInstance) Type() TypeDef { return i.Method.returns() }
func (InvokeInstance) isExpr()         {}

// NewInstance allocates and constructs an object.
type NewInstance struct {
	Typ    ClassType
	Params []TypeDef
	Args   []Expr
}

func (n NewInstance) Type() TypeDef { return n.Typ }
func (NewInstance) isExpr()         {}

// NewArray allocates an array with Size elements in its first dimension.
type NewArray struct {
	Typ  Array
	Size Expr
}

func (n NewArray) Type() TypeDef { return n.Typ }
func (NewArray) isExpr()         {}

// NewArrayInit allocates an array holding Elements.
type NewArrayInit struct {
	Typ      Array
	Elements []Expr
}

func (n NewArrayInit) Type() TypeDef { return n.Typ }
func (NewArrayInit) isExpr()         {}

// ---------------------------------------------------------------------------
// Conversions and tests
// ---------------------------------------------------------------------------

// Cast converts Value to Target. Unlike implicit coercion it may narrow.
type Cast struct {
	Target TypeDef
	Value  Expr
}

func (c Cast) Type() TypeDef { return c.Target }
func (Cast) isExpr()         {}

// InstanceOf tests whether Value is an instance of Target.
type InstanceOf struct {
	Value  Expr
	Target TypeDef
}

func (InstanceOf) Type() TypeDef { return Boolean }
func (InstanceOf) isExpr()       {}

// And is the short-circuit conjunction.
type And struct{ Left, Right Expr }

func (And) Type() TypeDef { return Boolean }
func (And) isExpr()       {}

// Or is the short-circuit disjunction.
type Or struct{ Left, Right Expr }

func (Or) Type() TypeDef { return Boolean }
func (Or) isExpr()       {}

// IsNull tests a reference against null.
type IsNull struct{ Value Expr }

func (IsNull) Type() TypeDef { return Boolean }
func (IsNull) isExpr()       {}

// IsNotNull is the negation of IsNull.
type IsNotNull struct{ Value Expr }

func (IsNotNull) Type() TypeDef { return Boolean }
func (IsNotNull) isExpr()       {}

// IsTrue tests a boolean value.
type IsTrue struct{ Value Expr }

func (IsTrue) Type() TypeDef { return Boolean }
func (IsTrue) isExpr()       {}

// IsFalse negates a boolean value.
type IsFalse struct{ Value Expr }

func (IsFalse) Type() TypeDef { return Boolean }
func (IsFalse) isExpr()       {}

// Not is shorthand for IsFalse.
func Not(e Expr) IsFalse { return IsFalse{Value: e} }

// CompareOp is a relational operator.
type CompareOp uint8

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var compareNames = [...]string{OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">="}

func (op CompareOp) String() string { return compareNames[op] }

// Negate returns the operator testing the opposite outcome.
func (op CompareOp) Negate() CompareOp {
	switch op {
	case OpEq:
		return OpNe
	case OpNe:
		return OpEq
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	case OpGt:
		return OpLe
	}
	return OpLt
}

// Compare applies a relational operator to two operands.
type Compare struct {
	Op          CompareOp
	Left, Right Expr
}

func (Compare) Type() TypeDef { return Boolean }
func (Compare) isExpr()       {}

// Relational constructors.
func Eq(l, r Expr) Compare { return Compare{Op: OpEq, Left: l, Right: r} }
func Ne(l, r Expr) Compare { return Compare{Op: OpNe, Left: l, Right: r} }
func Lt(l, r Expr) Compare { return Compare{Op: OpLt, Left: l, Right: r} }
func Le(l, r Expr) Compare { return Compare{Op: OpLe, Left: l, Right: r} }
func Gt(l, r Expr) Compare { return Compare{Op: OpGt, Left: l, Right: r} }
func Ge(l, r Expr) Compare { return Compare{Op: OpGe, Left: l, Right: r} }

// MathOperator is an arithmetic or bitwise operator.
type MathOperator uint8

const (
	MathAdd MathOperator = iota
	MathSub
	MathMul
	MathDiv
	MathRem
	MathAnd
	MathOr
	MathXor
	MathShl
	MathShr
	MathUshr
)

var mathNames = [...]string{
	MathAdd: "+", MathSub: "-", MathMul: "*", MathDiv: "/", MathRem: "%",
	MathAnd: "&", MathOr: "|", MathXor: "^", MathShl: "<<", MathShr: ">>", MathUshr: ">>>",
}

func (op MathOperator) String() string { return mathNames[op] }

// IsShift reports whether op is a shift.
func (op MathOperator) IsShift() bool { return op >= MathShl }

// IsBitwise reports whether op is &, | or ^.
func (op MathOperator) IsBitwise() bool { return op >= MathAnd && op <= MathXor }

// MathOp applies an arithmetic or bitwise operator.
type MathOp struct {
	Op          MathOperator
	Left, Right Expr
}

// Type follows binary numeric promotion. Shifts take the promoted left type;
// bitwise operators on booleans yield boolean.
func (m MathOp) Type() TypeDef {
	l := unboxed(m.Left.Type())
	if m.Op.IsShift() {
		return UnaryPromote(l)
	}
	r := unboxed(m.Right.Type())
	if m.Op.IsBitwise() && l.Kind == PrimBoolean && r.Kind == PrimBoolean {
		return Boolean
	}
	return BinaryPromote(l, r)
}

func (MathOp) isExpr() {}

// Neg is arithmetic negation.
type Neg struct{ Value Expr }

func (n Neg) Type() TypeDef { return UnaryPromote(unboxed(n.Value.Type())) }
func (Neg) isExpr()         {}

func unboxed(t TypeDef) Primitive {
	if p, ok := Erase(t).(Primitive); ok {
		return p
	}
	if p, ok := Unwrap(t); ok {
		return p
	}
	return Void
}

// UnaryPromote widens byte, short and char to int.
func UnaryPromote(p Primitive) Primitive {
	if PromotionRank(p) == 0 {
		return Int
	}
	return p
}

// BinaryPromote returns the common operand type for a numeric binary
// operation.
func BinaryPromote(a, b Primitive) Primitive {
	a, b = UnaryPromote(a), UnaryPromote(b)
	if PromotionRank(a) >= PromotionRank(b) {
		return a
	}
	return b
}

// ---------------------------------------------------------------------------
// Conditional values
// ---------------------------------------------------------------------------

// Conditional is the ternary expression.
type Conditional struct {
	Cond       Expr
	Then, Else Expr
	Typ        TypeDef
}

func (c Conditional) Type() TypeDef { return c.Typ }
func (Conditional) isExpr()         {}

// ExprCase is one arm of a switch expression. Keys are Constants, or
// StaticFieldRefs naming enum constants.
type ExprCase struct {
	Keys  []Expr
	Value Expr
}

// SwitchExpr selects a value by matching Subject against case keys.
type SwitchExpr struct {
	Subject Expr
	Typ     TypeDef
	Cases   []ExprCase
	Default Expr
}

func (s SwitchExpr) Type() TypeDef { return s.Typ }
func (SwitchExpr) isExpr()         {}

// YieldBlock is a switch arm computed by statements. A Return inside Body
// yields the arm's value instead of returning from the method.
type YieldBlock struct {
	Typ  TypeDef
	Body Stmt
}

func (y YieldBlock) Type() TypeDef { return y.Typ }
func (YieldBlock) isExpr()         {}

// ---------------------------------------------------------------------------
// Equality, hashing and object helpers
// ---------------------------------------------------------------------------

// EqualsStructurally compares values: primitives by value, arrays element
// wise, other references null-safely through equals.
type EqualsStructurally struct{ Left, Right Expr }

func (EqualsStructurally) Type() TypeDef { return Boolean }
func (EqualsStructurally) isExpr()       {}

// NotEqualsStructurally negates EqualsStructurally.
type NotEqualsStructurally struct{ Left, Right Expr }

func (NotEqualsStructurally) Type() TypeDef { return Boolean }
func (NotEqualsStructurally) isExpr()       {}

// EqualsReferentially compares identity (or primitive value).
type EqualsReferentially struct{ Left, Right Expr }

func (EqualsReferentially) Type() TypeDef { return Boolean }
func (EqualsReferentially) isExpr()       {}

// NotEqualsReferentially negates EqualsReferentially.
type NotEqualsReferentially struct{ Left, Right Expr }

func (NotEqualsReferentially) Type() TypeDef { return Boolean }
func (NotEqualsReferentially) isExpr()       {}

// HashCode computes a null-safe hash of Value.
type HashCode struct{ Value Expr }

func (HashCode) Type() TypeDef { return Int }
func (HashCode) isExpr()       {}

// GetClass returns the runtime class of Value.
type GetClass struct{ Value Expr }

func (GetClass) Type() TypeDef { return Generic(TypeClass, Wildcard{}) }
func (GetClass) isExpr()       {}

// PropertyGet reads a property through its accessor.
type PropertyGet struct {
	Instance Expr
	Owner    ClassType
	Name     string
	Typ      TypeDef
}

func (p PropertyGet) Type() TypeDef { return p.Typ }
func (PropertyGet) isExpr()         {}

// ArrayElement reads Array[Index].
type ArrayElement struct {
	Array Expr
	Index Expr
}

func (a ArrayElement) Type() TypeDef {
	if arr, ok := Erase(a.Array.Type()).(Array); ok {
		return arr.Element()
	}
	return TypeObject
}

func (ArrayElement) isExpr() {}

// ArrayLength reads the length of Array.
type ArrayLength struct{ Array Expr }

func (ArrayLength) Type() TypeDef { return Int }
func (ArrayLength) isExpr()       {}
