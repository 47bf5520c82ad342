package lower

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/model"
)

// ---------------------------------------------------------------------------
// Expression lowering
// ---------------------------------------------------------------------------

// lowerExpr emits e, leaving one value of e's erased type on the stack, or
// nothing for void invocations.
func (mc *MethodContext) lowerExpr(e model.Expr) error {
	if err := mc.expr(e); err != nil {
		return mc.wrap(e, err)
	}
	return nil
}

// exprAs emits e and coerces the result to t.
func (mc *MethodContext) exprAs(e model.Expr, t model.TypeDef) error {
	if err := mc.lowerExpr(e); err != nil {
		return err
	}
	if err := mc.coerce(e.Type(), t); err != nil {
		return mc.wrap(e, err)
	}
	return nil
}

func (mc *MethodContext) expr(e model.Expr) error {
	switch e := e.(type) {
	case model.Constant:
		return mc.lowerConstant(e)
	case model.LocalVar:
		l, ok := mc.Lookup(e.Name)
		if !ok {
			return fmt.Errorf("%w: local %s", ErrUnresolved, e.Name)
		}
		mc.load(l)
		return mc.coerce(l.Type, e.Typ)
	case model.ParamRef:
		l, ok := mc.Param(e.Name)
		if !ok {
			return fmt.Errorf("%w: parameter %s", ErrUnresolved, e.Name)
		}
		mc.load(l)
		return mc.coerce(l.Type, e.Typ)
	case model.FieldRef:
		return mc.lowerFieldGet(e)
	case model.StaticFieldRef:
		ft, err := mc.resolveField(e.Owner, e.Name, e.Typ, true)
		if err != nil {
			return err
		}
		mc.fieldInsn(classfile.OpGetstatic, e.Owner, e.Name, ft)
		return mc.coerce(ft, e.Typ)
	case model.This, model.Super:
		if mc.method.IsStatic() {
			return fmt.Errorf("%w: receiver in a static method", ErrUnresolved)
		}
		mc.code.Emit(classfile.OpAload0)
		return nil
	case model.CaughtException:
		if len(mc.catches) == 0 {
			return fmt.Errorf("%w: caught exception outside a catch clause", ErrUnresolved)
		}
		l := mc.catches[len(mc.catches)-1]
		mc.load(l)
		return mc.coerce(l.Type, e.Typ)
	case model.InvokeStatic:
		return mc.lowerInvokeStatic(e)
	case model.InvokeInstance:
		return mc.lowerInvokeInstance(e)
	case model.NewInstance:
		return mc.lowerNew(e)
	case model.NewArray:
		if err := mc.exprAs(e.Size, model.Int); err != nil {
			return err
		}
		mc.newArray(e.Typ)
		return nil
	case model.NewArrayInit:
		return mc.lowerArrayInit(e)
	case model.Cast:
		if err := mc.lowerExpr(e.Value); err != nil {
			return err
		}
		return mc.cast(e.Value.Type(), e.Target)
	case model.InstanceOf:
		if err := mc.lowerRef(e.Value); err != nil {
			return err
		}
		if model.IsPrimitive(e.Target) {
			return fmt.Errorf("%w: instanceof %s", ErrTypeMismatch, e.Target)
		}
		mc.code.EmitU16(classfile.OpInstanceof, mc.classRef(e.Target))
		return nil
	case model.And, model.Or, model.IsNull, model.IsNotNull, model.IsTrue, model.IsFalse,
		model.Compare, model.EqualsReferentially, model.NotEqualsReferentially, model.NotEqualsStructurally:
		return mc.materialize(e)
	case model.EqualsStructurally:
		if valueEquality(e.Left, e.Right) {
			return mc.materialize(e)
		}
		return mc.structuralEquals(e.Left, e.Right)
	case model.MathOp:
		return mc.lowerMath(e)
	case model.Neg:
		t, ok := model.Erase(e.Type()).(model.Primitive)
		if !ok || !model.IsNumeric(t) {
			return fmt.Errorf("%w: negation of %s", ErrTypeMismatch, e.Value.Type())
		}
		if err := mc.exprAs(e.Value, t); err != nil {
			return err
		}
		mc.code.Emit(classfile.OpIneg + typeOffset(model.CategoryOf(t)))
		return nil
	case model.Conditional:
		els, end := mc.NewLabel(), mc.NewLabel()
		if err := mc.jump(e.Cond, false, els); err != nil {
			return err
		}
		if err := mc.exprAs(e.Then, e.Typ); err != nil {
			return err
		}
		mc.code.EmitJump(classfile.OpGoto, end)
		mc.label(els)
		if err := mc.exprAs(e.Else, e.Typ); err != nil {
			return err
		}
		mc.label(end)
		return nil
	case model.SwitchExpr:
		return mc.lowerSwitchExpr(e)
	case model.YieldBlock:
		return mc.lowerYieldBlock(e)
	case model.HashCode:
		return mc.lowerHashCode(e.Value)
	case model.GetClass:
		if err := mc.lowerRef(e.Value); err != nil {
			return err
		}
		mc.invokeVirtual("java/lang/Object", "getClass", "()Ljava/lang/Class;")
		return nil
	case model.PropertyGet:
		return mc.lowerPropertyGet(e)
	case model.ArrayElement:
		elem, err := mc.lowerArrayIndex(e)
		if err != nil {
			return err
		}
		mc.code.Emit(arrayLoadOp(elem))
		return nil
	case model.ArrayLength:
		if _, ok := model.Erase(e.Array.Type()).(model.Array); !ok {
			return fmt.Errorf("%w: length of non-array %s", ErrTypeMismatch, e.Array.Type())
		}
		if err := mc.lowerExpr(e.Array); err != nil {
			return err
		}
		mc.code.Emit(classfile.OpArraylength)
		return nil
	case nil:
		return fmt.Errorf("%w: nil expression", ErrUnsupported)
	}
	return fmt.Errorf("%w: expression %T", ErrUnsupported, e)
}

// lowerRef emits e, which must be a reference.
func (mc *MethodContext) lowerRef(e model.Expr) error {
	if !model.IsReference(e.Type()) {
		return fmt.Errorf("%w: %s is not a reference", ErrTypeMismatch, e.Type())
	}
	return mc.lowerExpr(e)
}

func (mc *MethodContext) lowerConstant(c model.Constant) error {
	cat := model.CategoryOf(c.Typ)
	switch v := c.Value.(type) {
	case nil:
		if cat != model.CatRef {
			return fmt.Errorf("%w: null of type %s", ErrTypeMismatch, c.Typ)
		}
		mc.code.Emit(classfile.OpAconstNull)
	case bool:
		if v {
			mc.code.Emit(classfile.OpIconst1)
		} else {
			mc.code.Emit(classfile.OpIconst0)
		}
	case int64:
		switch cat {
		case model.CatInt:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return fmt.Errorf("%w: constant %d overflows %s", ErrTypeMismatch, v, c.Typ)
			}
			mc.pushInt(int32(v))
		case model.CatLong:
			mc.pushLong(v)
		case model.CatFloat:
			mc.pushFloat(float32(v))
		case model.CatDouble:
			mc.pushDouble(float64(v))
		default:
			return fmt.Errorf("%w: integer constant of type %s", ErrTypeMismatch, c.Typ)
		}
	case float64:
		switch cat {
		case model.CatFloat:
			mc.pushFloat(float32(v))
		case model.CatDouble:
			mc.pushDouble(v)
		default:
			return fmt.Errorf("%w: floating constant of type %s", ErrTypeMismatch, c.Typ)
		}
	case string:
		mc.ldc(mc.pool().String(v))
	case model.TypeDef:
		if p, ok := model.Erase(v).(model.Primitive); ok {
			// int.class is Integer.TYPE.
			box := model.Class("java.lang.Void")
			if w, ok := model.Wrapper(p); ok {
				box = w
			}
			mc.fieldInsn(classfile.OpGetstatic, box, "TYPE", model.TypeClass)
			return nil
		}
		mc.ldc(mc.classRef(v))
	default:
		return fmt.Errorf("%w: constant of Go type %T", ErrUnsupported, v)
	}
	return nil
}

// resolveField checks a field of a declared owner and returns the declared
// type used in its descriptor. Fields of other types are taken as given.
func (mc *MethodContext) resolveField(owner model.ClassType, name string, t model.TypeDef, static bool) (model.TypeDef, error) {
	f, declared, found := mc.unit.field(owner.Name, name)
	if !declared {
		return t, nil
	}
	if !found {
		return nil, fmt.Errorf("%w: field %s.%s", ErrUnresolved, owner.Name, name)
	}
	if isStatic := f.Modifiers.Has(model.ModStatic); isStatic != static {
		return nil, fmt.Errorf("%w: field %s.%s static=%v", ErrTypeMismatch, owner.Name, name, isStatic)
	}
	return f.Type, nil
}

func (mc *MethodContext) lowerFieldGet(f model.FieldRef) error {
	ft, err := mc.resolveField(f.Owner, f.Name, f.Typ, false)
	if err != nil {
		return err
	}
	recv := f.Instance
	if recv == nil {
		recv = model.This{Typ: f.Owner}
	}
	if err := mc.lowerRef(recv); err != nil {
		return err
	}
	mc.fieldInsn(classfile.OpGetfield, f.Owner, f.Name, ft)
	return mc.coerce(ft, f.Typ)
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

func (mc *MethodContext) newArray(t model.Array) {
	a := model.Erase(t).(model.Array)
	elem := a.Element()
	if p, ok := elem.(model.Primitive); ok {
		mc.code.EmitU8(classfile.OpNewarray, newarrayCodes[p.Kind])
		return
	}
	mc.code.EmitU16(classfile.OpAnewarray, mc.classRef(elem))
}

func (mc *MethodContext) lowerArrayInit(n model.NewArrayInit) error {
	if len(n.Elements) > math.MaxInt32 {
		return fmt.Errorf("%w: array initializer too large", ErrUnsupported)
	}
	mc.pushInt(int32(len(n.Elements)))
	mc.newArray(n.Typ)
	elem := n.Typ.Element()
	for i, e := range n.Elements {
		mc.code.Emit(classfile.OpDup)
		mc.pushInt(int32(i))
		if err := mc.exprAs(e, elem); err != nil {
			return err
		}
		mc.code.Emit(arrayStoreOp(elem))
	}
	return nil
}

// lowerArrayIndex emits the array and index of e and returns the element
// type.
func (mc *MethodContext) lowerArrayIndex(e model.ArrayElement) (model.TypeDef, error) {
	a, ok := model.Erase(e.Array.Type()).(model.Array)
	if !ok {
		return nil, fmt.Errorf("%w: indexing non-array %s", ErrTypeMismatch, e.Array.Type())
	}
	if err := mc.lowerExpr(e.Array); err != nil {
		return nil, err
	}
	if err := mc.exprAs(e.Index, model.Int); err != nil {
		return nil, err
	}
	return a.Element(), nil
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

var mathOps = [...]classfile.Opcode{
	model.MathAdd:  classfile.OpIadd,
	model.MathSub:  classfile.OpIsub,
	model.MathMul:  classfile.OpImul,
	model.MathDiv:  classfile.OpIdiv,
	model.MathRem:  classfile.OpIrem,
	model.MathAnd:  classfile.OpIand,
	model.MathOr:   classfile.OpIor,
	model.MathXor:  classfile.OpIxor,
	model.MathShl:  classfile.OpIshl,
	model.MathShr:  classfile.OpIshr,
	model.MathUshr: classfile.OpIushr,
}

func (mc *MethodContext) lowerMath(m model.MathOp) error {
	t, _ := model.Erase(m.Type()).(model.Primitive)
	base := mathOps[m.Op]
	switch {
	case t.Kind == model.PrimBoolean:
		if err := mc.exprAs(m.Left, model.Boolean); err != nil {
			return err
		}
		if err := mc.exprAs(m.Right, model.Boolean); err != nil {
			return err
		}
		mc.code.Emit(base)
		return nil
	case !model.IsNumeric(t):
		return fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, m.Left.Type(), m.Op, m.Right.Type())
	}
	cat := model.CategoryOf(t)
	if (m.Op.IsShift() || m.Op.IsBitwise()) && cat != model.CatInt && cat != model.CatLong {
		return fmt.Errorf("%w: %s on %s", ErrTypeMismatch, m.Op, t)
	}
	if err := mc.exprAs(m.Left, t); err != nil {
		return err
	}
	if m.Op.IsShift() {
		// The distance is an int; long distances are truncated.
		rp, ok := unboxedPrim(m.Right.Type())
		rp = model.UnaryPromote(rp)
		if !ok || (rp.Kind != model.PrimInt && rp.Kind != model.PrimLong) {
			return fmt.Errorf("%w: shift distance of type %s", ErrTypeMismatch, m.Right.Type())
		}
		if err := mc.exprAs(m.Right, rp); err != nil {
			return err
		}
		if rp.Kind == model.PrimLong {
			mc.code.Emit(classfile.OpL2i)
		}
	} else if err := mc.exprAs(m.Right, t); err != nil {
		return err
	}
	mc.code.Emit(base + typeOffset(cat))
	return nil
}

// ---------------------------------------------------------------------------
// Equality and hashing
// ---------------------------------------------------------------------------

// valueEquality reports whether structural equality of l and r compares
// values rather than objects.
func valueEquality(l, r model.Expr) bool {
	return model.IsPrimitive(l.Type()) || model.IsPrimitive(r.Type())
}

// structuralEquals pushes the null-safe equality of two references: arrays
// element-wise through java.util.Arrays, other objects through
// java.util.Objects.equals.
func (mc *MethodContext) structuralEquals(l, r model.Expr) error {
	if err := mc.lowerRef(l); err != nil {
		return err
	}
	if err := mc.lowerRef(r); err != nil {
		return err
	}
	la, lok := model.Erase(l.Type()).(model.Array)
	ra, rok := model.Erase(r.Type()).(model.Array)
	if lok && rok && model.SameErasure(la, ra) {
		name, desc := arrayHelper(la, "equals", "Z", 2)
		mc.invokeStatic(model.TypeArrays, name, desc)
		return nil
	}
	mc.invokeStatic(model.TypeObjects, "equals", "(Ljava/lang/Object;Ljava/lang/Object;)Z")
	return nil
}

// arrayHelper returns the java.util.Arrays method and descriptor for an
// operation over arrays of a: equals and hashCode for one dimension,
// deepEquals and deepHashCode for nested arrays.
func arrayHelper(a model.Array, op, ret string, arity int) (string, string) {
	param := "[Ljava/lang/Object;"
	switch {
	case a.Dimensions > 1:
		op = "deep" + strings.ToUpper(op[:1]) + op[1:]
	case model.IsPrimitive(a.Component):
		param = model.Descriptor(a)
	}
	desc := "("
	for range arity {
		desc += param
	}
	return op, desc + ")" + ret
}

func (mc *MethodContext) lowerHashCode(v model.Expr) error {
	switch t := model.Erase(v.Type()).(type) {
	case model.Primitive:
		w, ok := model.Wrapper(t)
		if !ok {
			return ErrVoidValue
		}
		if err := mc.lowerExpr(v); err != nil {
			return err
		}
		mc.invokeStatic(w, "hashCode", "("+model.Descriptor(t)+")I")
	case model.Array:
		if err := mc.lowerExpr(v); err != nil {
			return err
		}
		name, desc := arrayHelper(t, "hashCode", "I", 1)
		mc.invokeStatic(model.TypeArrays, name, desc)
	default:
		if err := mc.lowerExpr(v); err != nil {
			return err
		}
		mc.invokeStatic(model.TypeObjects, "hashCode", "(Ljava/lang/Object;)I")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Switch-expression arms
// ---------------------------------------------------------------------------

// lowerYieldBlock runs statements whose Return yields the block's value.
func (mc *MethodContext) lowerYieldBlock(y model.YieldBlock) error {
	target := &yieldTarget{typ: y.Typ, end: mc.NewLabel()}
	mc.yields = append(mc.yields, target)
	err := mc.scoped(func() error { return mc.lowerStmt(y.Body) })
	mc.yields = mc.yields[:len(mc.yields)-1]
	if err != nil {
		return err
	}
	if mc.code.Reachable() {
		return fmt.Errorf("%w: block completes without yielding a value", ErrMissingReturn)
	}
	mc.label(target.end)
	return nil
}
