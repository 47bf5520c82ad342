package lower

import (
	"fmt"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/model"
)

// isInterface reports the declared kind of owner. A type declared in the
// batch is authoritative; otherwise the kind recorded on the reference is
// used, then the platform table.
func (mc *MethodContext) isInterface(owner model.ClassType) bool {
	if d, ok := mc.unit.lookupType(owner.Name); ok {
		return d.Kind() == model.KindInterface || d.Kind() == model.KindAnnotation
	}
	return owner.Kind == model.KindInterface || owner.Kind == model.KindAnnotation ||
		mc.unit.Hierarchy.IsInterface(owner.InternalName())
}

func (mc *MethodContext) lowerArgs(args []model.Expr, params []model.TypeDef) error {
	if len(args) != len(params) {
		return fmt.Errorf("%w: %d arguments for %d parameters", ErrTypeMismatch, len(args), len(params))
	}
	for i, a := range args {
		if err := mc.exprAs(a, params[i]); err != nil {
			return err
		}
	}
	return nil
}

func (mc *MethodContext) methodref(owner string, m model.MethodRef, iface bool) uint16 {
	return mc.pool().Methodref(owner, m.Name, m.Descriptor(), iface)
}

func (mc *MethodContext) lowerInvokeStatic(e model.InvokeStatic) error {
	if err := mc.lowerArgs(e.Args, e.Method.Params); err != nil {
		return err
	}
	owner := e.Method.Owner
	mc.code.EmitU16(classfile.OpInvokestatic, mc.methodref(owner.InternalName(), e.Method, mc.isInterface(owner)))
	return nil
}

// lowerInvokeInstance selects the dispatch from the owner's kind: super
// calls and constructors are special, interface owners use
// invokeinterface and everything else is virtual.
func (mc *MethodContext) lowerInvokeInstance(e model.InvokeInstance) error {
	m := e.Method
	iface := mc.isInterface(m.Owner)
	if _, ok := e.Instance.(model.Super); ok {
		if mc.method.IsStatic() {
			return fmt.Errorf("%w: super in a static method", ErrUnresolved)
		}
		mc.code.Emit(classfile.OpAload0)
		if err := mc.lowerArgs(e.Args, m.Params); err != nil {
			return err
		}
		mc.code.EmitU16(classfile.OpInvokespecial, mc.methodref(m.Owner.InternalName(), m, iface))
		return nil
	}

	recv := e.Instance
	if recv == nil {
		recv = model.This{Typ: mc.unit.Decl.Type()}
	}
	if err := mc.lowerExpr(recv); err != nil {
		return err
	}
	if model.IsPrimitive(recv.Type()) {
		return fmt.Errorf("%w: method %s called on %s", ErrTypeMismatch, m.Name, recv.Type())
	}
	if err := mc.lowerArgs(e.Args, m.Params); err != nil {
		return err
	}
	switch {
	case m.Name == model.ConstructorName:
		mc.code.EmitU16(classfile.OpInvokespecial, mc.methodref(m.Owner.InternalName(), m, iface))
	case iface:
		words := 1
		for _, p := range m.Params {
			words += model.Width(p)
		}
		mc.code.EmitInvokeInterface(mc.methodref(m.Owner.InternalName(), m, true), uint8(words))
	default:
		owner := m.Owner.InternalName()
		// Arrays inherit clone from Object but it is public on them.
		if _, isArray := model.Erase(recv.Type()).(model.Array); isArray && m.Owner.Name == model.TypeObject.Name && m.Name == "clone" {
			owner = model.InternalName(recv.Type())
		}
		mc.code.EmitU16(classfile.OpInvokevirtual, mc.methodref(owner, m, false))
	}
	return nil
}

func (mc *MethodContext) lowerNew(n model.NewInstance) error {
	if mc.isInterface(n.Typ) {
		return fmt.Errorf("%w: cannot instantiate interface %s", ErrTypeMismatch, n.Typ)
	}
	mc.code.EmitU16(classfile.OpNew, mc.classRef(n.Typ))
	mc.code.Emit(classfile.OpDup)
	if err := mc.lowerArgs(n.Args, n.Params); err != nil {
		return err
	}
	desc := model.MethodDescriptor(n.Params, model.Void)
	mc.code.EmitU16(classfile.OpInvokespecial, mc.pool().Methodref(n.Typ.InternalName(), model.ConstructorName, desc, false))
	return nil
}

// lowerPropertyGet calls the accessor of a property.
func (mc *MethodContext) lowerPropertyGet(p model.PropertyGet) error {
	recv := p.Instance
	if recv == nil {
		recv = model.This{Typ: p.Owner}
	}
	kind := p.Owner.Kind
	if d, ok := mc.unit.lookupType(p.Owner.Name); ok {
		kind = d.Kind()
	}
	getter := model.PropertyDef{Name: p.Name}.GetterName(kind)
	return mc.lowerInvokeInstance(model.Method(p.Owner, getter, p.Typ).Call(recv))
}
