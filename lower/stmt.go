package lower

import (
	"fmt"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/model"
)

// ---------------------------------------------------------------------------
// Statement lowering
// ---------------------------------------------------------------------------

func (mc *MethodContext) lowerStmt(s model.Stmt) error {
	if err := mc.stmt(s); err != nil {
		return mc.wrap(s, err)
	}
	return nil
}

func (mc *MethodContext) stmt(s model.Stmt) error {
	switch s := s.(type) {
	case model.Return:
		return mc.lowerReturn(s)
	case model.Throw:
		if err := mc.exprAs(s.Value, model.TypeThrowable); err != nil {
			return err
		}
		mc.code.Emit(classfile.OpAthrow)
		return nil
	case model.Assign:
		return mc.lowerAssign(s)
	case model.Define:
		return mc.lowerDefine(s)
	case model.If:
		skip := mc.NewLabel()
		if err := mc.jump(s.Cond, false, skip); err != nil {
			return err
		}
		if err := mc.scoped(func() error { return mc.lowerStmt(s.Then) }); err != nil {
			return err
		}
		mc.label(skip)
		return nil
	case model.IfElse:
		return mc.lowerIfElse(s)
	case model.While:
		return mc.lowerWhile(s)
	case model.Switch:
		return mc.lowerSwitchStmt(s)
	case model.Synchronized:
		return mc.lowerSynchronized(s)
	case model.Try:
		return mc.lowerTry(s)
	case model.Multi:
		for _, st := range s.Stmts {
			if err := mc.lowerStmt(st); err != nil {
				return err
			}
		}
		return nil
	case model.ExprStmt:
		if err := mc.lowerExpr(s.X); err != nil {
			return err
		}
		mc.discard(s.X.Type())
		return nil
	case nil:
		return nil
	}
	return fmt.Errorf("%w: statement %T", ErrUnsupported, s)
}

// lowerReturn exits the method through every open cleanup, or yields the
// arm value when inside a switch-expression block.
func (mc *MethodContext) lowerReturn(r model.Return) error {
	if n := len(mc.yields); n > 0 {
		y := mc.yields[n-1]
		if r.Value == nil {
			return fmt.Errorf("%w: yield without a value", ErrVoidValue)
		}
		if err := mc.exprAs(r.Value, y.typ); err != nil {
			return err
		}
		mc.code.EmitJump(classfile.OpGoto, y.end)
		return nil
	}

	rt := mc.method.ReturnType()
	if r.Value == nil {
		if !model.IsVoid(rt) {
			return fmt.Errorf("%w: %s method returns no value", ErrTypeMismatch, rt)
		}
		return mc.leave(func() error {
			mc.code.Emit(classfile.OpReturn)
			return nil
		})
	}
	if model.IsVoid(rt) {
		return fmt.Errorf("%w: void method returns a value", ErrTypeMismatch)
	}
	if err := mc.exprAs(r.Value, rt); err != nil {
		return err
	}
	if !mc.needsCleanup() {
		mc.code.Emit(returnOp(rt))
		return nil
	}
	// The value outlives the cleanups in a temporary.
	tmp, err := mc.temp("ret", rt)
	if err != nil {
		return err
	}
	mc.store(tmp)
	return mc.leave(func() error {
		mc.load(tmp)
		mc.code.Emit(returnOp(rt))
		return nil
	})
}

// lowerAssign stores into a local, parameter, field, array element or
// property setter.
func (mc *MethodContext) lowerAssign(a model.Assign) error {
	switch t := a.Target.(type) {
	case model.LocalVar:
		l, ok := mc.Lookup(t.Name)
		if !ok {
			return fmt.Errorf("%w: local %s", ErrUnresolved, t.Name)
		}
		return mc.storeLocal(l, a.Value)
	case model.ParamRef:
		l, ok := mc.Param(t.Name)
		if !ok {
			return fmt.Errorf("%w: parameter %s", ErrUnresolved, t.Name)
		}
		return mc.storeLocal(l, a.Value)
	case model.FieldRef:
		ft, err := mc.resolveField(t.Owner, t.Name, t.Typ, false)
		if err != nil {
			return err
		}
		recv := t.Instance
		if recv == nil {
			recv = model.This{Typ: t.Owner}
		}
		if err := mc.lowerRef(recv); err != nil {
			return err
		}
		if err := mc.exprAs(a.Value, ft); err != nil {
			return err
		}
		mc.fieldInsn(classfile.OpPutfield, t.Owner, t.Name, ft)
		return nil
	case model.StaticFieldRef:
		ft, err := mc.resolveField(t.Owner, t.Name, t.Typ, true)
		if err != nil {
			return err
		}
		if err := mc.exprAs(a.Value, ft); err != nil {
			return err
		}
		mc.fieldInsn(classfile.OpPutstatic, t.Owner, t.Name, ft)
		return nil
	case model.ArrayElement:
		elem, err := mc.lowerArrayIndex(t)
		if err != nil {
			return err
		}
		if err := mc.exprAs(a.Value, elem); err != nil {
			return err
		}
		mc.code.Emit(arrayStoreOp(elem))
		return nil
	case model.PropertyGet:
		recv := t.Instance
		if recv == nil {
			recv = model.This{Typ: t.Owner}
		}
		setter := model.PropertyDef{Name: t.Name}.SetterName()
		return mc.lowerStmt(model.Do(model.Method(t.Owner, setter, model.Void, t.Typ).Call(recv, a.Value)))
	}
	return fmt.Errorf("%w: cannot assign to %s", ErrUnsupported, nodeName(a.Target))
}

func (mc *MethodContext) storeLocal(l Local, v model.Expr) error {
	if err := mc.exprAs(v, l.Type); err != nil {
		return err
	}
	mc.store(l)
	return nil
}

// lowerDefine evaluates the initializer before the name comes into scope.
func (mc *MethodContext) lowerDefine(d model.Define) error {
	t := d.Var.Typ
	if t == nil && d.Value != nil {
		t = d.Value.Type()
	}
	if _, ok := mc.Lookup(d.Var.Name); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, d.Var.Name)
	}
	if d.Value != nil {
		if err := mc.exprAs(d.Value, t); err != nil {
			return err
		}
	}
	l, err := mc.DeclareLocal(d.Var.Name, t)
	if err != nil {
		return err
	}
	if d.Value != nil {
		mc.store(l)
	}
	return nil
}

func (mc *MethodContext) lowerIfElse(s model.IfElse) error {
	els, end := mc.NewLabel(), mc.NewLabel()
	if err := mc.jump(s.Cond, false, els); err != nil {
		return err
	}
	if err := mc.scoped(func() error { return mc.lowerStmt(s.Then) }); err != nil {
		return err
	}
	if mc.code.Reachable() {
		mc.code.EmitJump(classfile.OpGoto, end)
	}
	mc.label(els)
	if err := mc.scoped(func() error { return mc.lowerStmt(s.Else) }); err != nil {
		return err
	}
	mc.label(end)
	return nil
}

// lowerWhile tests at the bottom: one unconditional jump into the test,
// then a single conditional branch per iteration.
func (mc *MethodContext) lowerWhile(w model.While) error {
	body, test := mc.NewLabel(), mc.NewLabel()
	mc.code.EmitJump(classfile.OpGoto, test)
	mc.code.Mark(body)
	if err := mc.scoped(func() error { return mc.lowerStmt(w.Body) }); err != nil {
		return err
	}
	mc.code.Mark(test)
	// A constant true condition becomes a goto, leaving the loop exit
	// unreachable.
	return mc.jump(w.Cond, true, body)
}
