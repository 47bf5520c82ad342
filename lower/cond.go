package lower

import (
	"fmt"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/model"
)

// brancher is the branching capability shared by every construct that
// transfers control on a condition: if, while, conditional values,
// materialized booleans and switch dispatch.
type brancher interface {
	// jump branches to target when cond evaluates to want and falls
	// through otherwise.
	jump(cond model.Expr, want bool, target *classfile.Label) error
	// label resolves l at the current position.
	label(l *classfile.Label)
	// compare branches to target when left op right holds.
	compare(op model.CompareOp, left, right model.Expr, target *classfile.Label) error
}

var _ brancher = (*MethodContext)(nil)

var (
	ifOps = [...]classfile.Opcode{
		model.OpEq: classfile.OpIfeq,
		model.OpNe: classfile.OpIfne,
		model.OpLt: classfile.OpIflt,
		model.OpLe: classfile.OpIfle,
		model.OpGt: classfile.OpIfgt,
		model.OpGe: classfile.OpIfge,
	}
	icmpOps = [...]classfile.Opcode{
		model.OpEq: classfile.OpIfIcmpeq,
		model.OpNe: classfile.OpIfIcmpne,
		model.OpLt: classfile.OpIfIcmplt,
		model.OpLe: classfile.OpIfIcmple,
		model.OpGt: classfile.OpIfIcmpgt,
		model.OpGe: classfile.OpIfIcmpge,
	}
)

func (mc *MethodContext) label(l *classfile.Label) { mc.code.Join(l) }

func (mc *MethodContext) compare(op model.CompareOp, left, right model.Expr, target *classfile.Label) error {
	return mc.compareJump(op, left, right, true, target)
}

// jump emits the branch form of a boolean expression. And and Or
// short-circuit; negations are pushed down instead of computed.
func (mc *MethodContext) jump(cond model.Expr, want bool, target *classfile.Label) error {
	if err := mc.branch(cond, want, target); err != nil {
		return mc.wrap(cond, err)
	}
	return nil
}

func (mc *MethodContext) branch(cond model.Expr, want bool, target *classfile.Label) error {
	switch c := cond.(type) {
	case model.Constant:
		v, ok := c.Value.(bool)
		if !ok {
			return fmt.Errorf("%w: condition %s is not boolean", ErrTypeMismatch, c)
		}
		if v == want {
			mc.code.EmitJump(classfile.OpGoto, target)
		}
		return nil
	case model.And:
		if !want {
			if err := mc.jump(c.Left, false, target); err != nil {
				return err
			}
			return mc.jump(c.Right, false, target)
		}
		skip := mc.NewLabel()
		if err := mc.jump(c.Left, false, skip); err != nil {
			return err
		}
		if err := mc.jump(c.Right, true, target); err != nil {
			return err
		}
		mc.label(skip)
		return nil
	case model.Or:
		if want {
			if err := mc.jump(c.Left, true, target); err != nil {
				return err
			}
			return mc.jump(c.Right, true, target)
		}
		skip := mc.NewLabel()
		if err := mc.jump(c.Left, true, skip); err != nil {
			return err
		}
		if err := mc.jump(c.Right, false, target); err != nil {
			return err
		}
		mc.label(skip)
		return nil
	case model.IsTrue:
		return mc.jump(c.Value, want, target)
	case model.IsFalse:
		return mc.jump(c.Value, !want, target)
	case model.IsNull:
		return mc.nullJump(c.Value, want, target)
	case model.IsNotNull:
		return mc.nullJump(c.Value, !want, target)
	case model.Compare:
		return mc.compareJump(c.Op, c.Left, c.Right, want, target)
	case model.EqualsReferentially:
		return mc.compareJump(model.OpEq, c.Left, c.Right, want, target)
	case model.NotEqualsReferentially:
		return mc.compareJump(model.OpEq, c.Left, c.Right, !want, target)
	case model.EqualsStructurally:
		if valueEquality(c.Left, c.Right) {
			return mc.compareJump(model.OpEq, c.Left, c.Right, want, target)
		}
		if err := mc.structuralEquals(c.Left, c.Right); err != nil {
			return err
		}
		return mc.testInt(want, target)
	case model.NotEqualsStructurally:
		return mc.jump(model.EqualsStructurally(c), !want, target)
	}
	if err := mc.exprAs(cond, model.Boolean); err != nil {
		return err
	}
	return mc.testInt(want, target)
}

// testInt branches on the boolean on top of the stack.
func (mc *MethodContext) testInt(want bool, target *classfile.Label) error {
	if want {
		mc.code.EmitJump(classfile.OpIfne, target)
	} else {
		mc.code.EmitJump(classfile.OpIfeq, target)
	}
	return nil
}

func (mc *MethodContext) nullJump(v model.Expr, wantNull bool, target *classfile.Label) error {
	if err := mc.lowerRef(v); err != nil {
		return err
	}
	if wantNull {
		mc.code.EmitJump(classfile.OpIfnull, target)
	} else {
		mc.code.EmitJump(classfile.OpIfnonnull, target)
	}
	return nil
}

func isNull(e model.Expr) bool {
	c, ok := e.(model.Constant)
	return ok && c.Value == nil
}

// compareJump branches when (left op right) == want. Two references compare
// by identity; anything else compares numerically after unboxing. Float
// comparisons pick fcmpg for < and <= so that NaN makes them false.
func (mc *MethodContext) compareJump(op model.CompareOp, left, right model.Expr, want bool, target *classfile.Label) error {
	jop := op
	if !want {
		jop = op.Negate()
	}
	lt, rt := left.Type(), right.Type()
	if model.IsReference(lt) && model.IsReference(rt) && (op == model.OpEq || op == model.OpNe) {
		return mc.identityJump(jop, left, right, target)
	}

	lp, lok := unboxedPrim(lt)
	rp, rok := unboxedPrim(rt)
	if !lok || !rok {
		return fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, lt, op, rt)
	}
	var t model.Primitive
	switch {
	case lp.Kind == model.PrimBoolean || rp.Kind == model.PrimBoolean:
		if lp != rp || (op != model.OpEq && op != model.OpNe) {
			return fmt.Errorf("%w: %s %s %s", ErrTypeMismatch, lt, op, rt)
		}
		t = model.Boolean
	default:
		t = model.BinaryPromote(lp, rp)
	}

	if err := mc.exprAs(left, t); err != nil {
		return err
	}
	switch model.CategoryOf(t) {
	case model.CatInt:
		if c, ok := right.(model.Constant); ok && c.IsZero() {
			mc.code.EmitJump(ifOps[jop], target)
			return nil
		}
		if err := mc.exprAs(right, t); err != nil {
			return err
		}
		mc.code.EmitJump(icmpOps[jop], target)
		return nil
	case model.CatLong:
		if err := mc.exprAs(right, t); err != nil {
			return err
		}
		mc.code.Emit(classfile.OpLcmp)
	case model.CatFloat:
		if err := mc.exprAs(right, t); err != nil {
			return err
		}
		if op == model.OpLt || op == model.OpLe {
			mc.code.Emit(classfile.OpFcmpg)
		} else {
			mc.code.Emit(classfile.OpFcmpl)
		}
	case model.CatDouble:
		if err := mc.exprAs(right, t); err != nil {
			return err
		}
		if op == model.OpLt || op == model.OpLe {
			mc.code.Emit(classfile.OpDcmpg)
		} else {
			mc.code.Emit(classfile.OpDcmpl)
		}
	}
	mc.code.EmitJump(ifOps[jop], target)
	return nil
}

func (mc *MethodContext) identityJump(op model.CompareOp, left, right model.Expr, target *classfile.Label) error {
	switch {
	case isNull(right):
		return mc.nullJump(left, op == model.OpEq, target)
	case isNull(left):
		return mc.nullJump(right, op == model.OpEq, target)
	}
	if err := mc.lowerExpr(left); err != nil {
		return err
	}
	if err := mc.lowerExpr(right); err != nil {
		return err
	}
	if op == model.OpEq {
		mc.code.EmitJump(classfile.OpIfAcmpeq, target)
	} else {
		mc.code.EmitJump(classfile.OpIfAcmpne, target)
	}
	return nil
}

// materialize pushes 1 or 0 for a boolean expression lowered in branch
// form.
func (mc *MethodContext) materialize(cond model.Expr) error {
	f, end := mc.NewLabel(), mc.NewLabel()
	if err := mc.jump(cond, false, f); err != nil {
		return err
	}
	mc.code.Emit(classfile.OpIconst1)
	mc.code.EmitJump(classfile.OpGoto, end)
	mc.label(f)
	mc.code.Emit(classfile.OpIconst0)
	mc.label(end)
	return nil
}
