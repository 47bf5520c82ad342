package lower

import (
	"fmt"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/frames"
	"github.com/chazu/sourcegen/model"
)

// conversions maps (from, to) stack categories to the conversion opcode.
var conversions = map[[2]model.Category]classfile.Opcode{
	{model.CatInt, model.CatLong}:     classfile.OpI2l,
	{model.CatInt, model.CatFloat}:    classfile.OpI2f,
	{model.CatInt, model.CatDouble}:   classfile.OpI2d,
	{model.CatLong, model.CatInt}:     classfile.OpL2i,
	{model.CatLong, model.CatFloat}:   classfile.OpL2f,
	{model.CatLong, model.CatDouble}:  classfile.OpL2d,
	{model.CatFloat, model.CatInt}:    classfile.OpF2i,
	{model.CatFloat, model.CatLong}:   classfile.OpF2l,
	{model.CatFloat, model.CatDouble}: classfile.OpF2d,
	{model.CatDouble, model.CatInt}:   classfile.OpD2i,
	{model.CatDouble, model.CatLong}:  classfile.OpD2l,
	{model.CatDouble, model.CatFloat}: classfile.OpD2f,
}

// unboxedPrim returns the primitive a value of type t yields after
// unboxing.
func unboxedPrim(t model.TypeDef) (model.Primitive, bool) {
	if p, ok := model.Erase(t).(model.Primitive); ok {
		return p, p.Kind != model.PrimVoid
	}
	return model.Unwrap(t)
}

// coerce converts the value on the stack from one declared type to another
// at an assignment, argument or return boundary. It boxes, unboxes and
// widens; narrowing needs an explicit Cast.
func (mc *MethodContext) coerce(from, to model.TypeDef) error {
	if model.IsVoid(from) {
		return ErrVoidValue
	}
	if model.IsVoid(to) {
		return fmt.Errorf("%w: %s used where no value is expected", ErrTypeMismatch, from)
	}
	fe, te := model.Erase(from), model.Erase(to)
	fp, fPrim := fe.(model.Primitive)
	tp, tPrim := te.(model.Primitive)
	switch {
	case fPrim && tPrim:
		return mc.widen(fp, tp)
	case fPrim:
		return mc.box(fp, te)
	case tPrim:
		p, ok := model.Unwrap(fe)
		if !ok {
			return fmt.Errorf("%w: cannot unbox %s to %s", ErrTypeMismatch, from, to)
		}
		mc.unbox(fe, p)
		return mc.widen(p, tp)
	}
	return mc.coerceRef(fe, te)
}

func (mc *MethodContext) widen(from, to model.Primitive) error {
	if from == to {
		return nil
	}
	if from.Kind == model.PrimBoolean || to.Kind == model.PrimBoolean {
		return fmt.Errorf("%w: %s to %s", ErrTypeMismatch, from, to)
	}
	if !model.IsWidening(from, to) {
		return fmt.Errorf("%w: %s to %s", ErrNarrowing, from, to)
	}
	mc.convert(from, to)
	return nil
}

// convert emits the primitive conversion from one numeric type to another,
// widening or narrowing.
func (mc *MethodContext) convert(from, to model.Primitive) {
	src, dst := model.CategoryOf(from), model.CategoryOf(to)
	if src != dst {
		mc.code.Emit(conversions[[2]model.Category{src, dst}])
	}
	if dst != model.CatInt {
		return
	}
	switch to.Kind {
	case model.PrimByte:
		if from.Kind != model.PrimByte {
			mc.code.Emit(classfile.OpI2b)
		}
	case model.PrimShort:
		if from.Kind != model.PrimShort && from.Kind != model.PrimByte {
			mc.code.Emit(classfile.OpI2s)
		}
	case model.PrimChar:
		if from.Kind != model.PrimChar {
			mc.code.Emit(classfile.OpI2c)
		}
	}
}

func (mc *MethodContext) box(p model.Primitive, to model.TypeDef) error {
	w, _ := model.Wrapper(p)
	if !mc.assignable(w, to) {
		return fmt.Errorf("%w: cannot box %s as %s", ErrTypeMismatch, p, to)
	}
	mc.invokeStatic(w, "valueOf", "("+model.Descriptor(p)+")"+model.Descriptor(w))
	return nil
}

// unbox calls the xxxValue accessor of a wrapper on the stack.
func (mc *MethodContext) unbox(wrapper model.TypeDef, p model.Primitive) {
	mc.invokeVirtual(model.InternalName(wrapper), p.String()+"Value", "()"+model.Descriptor(p))
}

// assignable reports whether a value of reference type a verifies as b
// without a checkcast.
func (mc *MethodContext) assignable(a, b model.TypeDef) bool {
	if model.SameErasure(a, b) {
		return true
	}
	bc, ok := model.Erase(b).(model.ClassType)
	if !ok {
		return false
	}
	if bc.Name == model.TypeObject.Name || mc.isInterface(bc) {
		return true
	}
	if _, ok := model.Erase(a).(model.ClassType); !ok {
		return false
	}
	sub, known := frames.IsSubclass(mc.unit.Hierarchy, model.InternalName(a), bc.InternalName())
	return sub && known
}

// coerceRef accepts upcasts silently and inserts a checkcast for downcasts.
// Types the hierarchy proves unrelated are rejected.
func (mc *MethodContext) coerceRef(from, to model.TypeDef) error {
	if mc.assignable(from, to) {
		return nil
	}
	_, fromClass := from.(model.ClassType)
	if _, toClass := to.(model.ClassType); fromClass && toClass &&
		frames.Unrelated(mc.unit.Hierarchy, model.InternalName(from), model.InternalName(to)) {
		return fmt.Errorf("%w: %s is unrelated to %s", ErrTypeMismatch, from, to)
	}
	mc.checkcast(to)
	return nil
}

// cast lowers an explicit conversion, which may narrow.
func (mc *MethodContext) cast(from, to model.TypeDef) error {
	if model.IsVoid(from) {
		return ErrVoidValue
	}
	fe, te := model.Erase(from), model.Erase(to)
	fp, fPrim := fe.(model.Primitive)
	tp, tPrim := te.(model.Primitive)
	switch {
	case fPrim && tPrim:
		if fp == tp {
			return nil
		}
		if !model.IsNumeric(fp) || !model.IsNumeric(tp) {
			return fmt.Errorf("%w: cannot cast %s to %s", ErrTypeMismatch, fp, tp)
		}
		mc.convert(fp, tp)
		return nil
	case fPrim:
		if p, ok := model.Unwrap(te); ok {
			if err := mc.cast(fp, p); err != nil {
				return err
			}
			fp = p
		}
		return mc.box(fp, te)
	case tPrim:
		p, ok := model.Unwrap(fe)
		if !ok {
			w, ok := model.Wrapper(tp)
			if !ok {
				return fmt.Errorf("%w: cannot cast %s to %s", ErrTypeMismatch, from, to)
			}
			mc.checkcast(w)
			fe, p = w, tp
		}
		mc.unbox(fe, p)
		return mc.cast(p, tp)
	}
	if mc.assignable(fe, te) {
		return nil
	}
	mc.checkcast(te)
	return nil
}
