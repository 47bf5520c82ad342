package lower

import (
	"math"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/model"
)

// ---------------------------------------------------------------------------
// Typed instruction selection
// ---------------------------------------------------------------------------

// typeOffset is the distance of a category's opcode from the int form in the
// i/l/f/d/a instruction families.
func typeOffset(cat model.Category) classfile.Opcode {
	switch cat {
	case model.CatLong:
		return 1
	case model.CatFloat:
		return 2
	case model.CatDouble:
		return 3
	case model.CatRef:
		return 4
	}
	return 0
}

func loadOp(t model.TypeDef) classfile.Opcode {
	return classfile.OpIload + typeOffset(model.CategoryOf(t))
}

func storeOp(t model.TypeDef) classfile.Opcode {
	return classfile.OpIstore + typeOffset(model.CategoryOf(t))
}

func returnOp(t model.TypeDef) classfile.Opcode {
	if model.IsVoid(t) {
		return classfile.OpReturn
	}
	return classfile.OpIreturn + typeOffset(model.CategoryOf(t))
}

func arrayLoadOp(elem model.TypeDef) classfile.Opcode {
	if p, ok := model.Erase(elem).(model.Primitive); ok {
		switch p.Kind {
		case model.PrimBoolean, model.PrimByte:
			return classfile.OpBaload
		case model.PrimChar:
			return classfile.OpCaload
		case model.PrimShort:
			return classfile.OpSaload
		}
	}
	return classfile.OpIaload + typeOffset(model.CategoryOf(elem))
}

func arrayStoreOp(elem model.TypeDef) classfile.Opcode {
	if p, ok := model.Erase(elem).(model.Primitive); ok {
		switch p.Kind {
		case model.PrimBoolean, model.PrimByte:
			return classfile.OpBastore
		case model.PrimChar:
			return classfile.OpCastore
		case model.PrimShort:
			return classfile.OpSastore
		}
	}
	return classfile.OpIastore + typeOffset(model.CategoryOf(elem))
}

var newarrayCodes = map[model.PrimitiveKind]uint8{
	model.PrimBoolean: 4,
	model.PrimChar:    5,
	model.PrimFloat:   6,
	model.PrimDouble:  7,
	model.PrimByte:    8,
	model.PrimShort:   9,
	model.PrimInt:     10,
	model.PrimLong:    11,
}

// ---------------------------------------------------------------------------
// Emit helpers
// ---------------------------------------------------------------------------

func (mc *MethodContext) pool() *classfile.ConstantPool { return mc.unit.Pool }

func (mc *MethodContext) ldc(index uint16) {
	if index <= math.MaxUint8 {
		mc.code.EmitU8(classfile.OpLdc, uint8(index))
		return
	}
	mc.code.EmitU16(classfile.OpLdcW, index)
}

func (mc *MethodContext) pushInt(v int32) {
	c := mc.code
	switch {
	case v == -1:
		c.Emit(classfile.OpIconstM1)
	case v >= 0 && v <= 5:
		c.Emit(classfile.OpIconst0 + classfile.Opcode(v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		c.EmitI8(classfile.OpBipush, int8(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		c.EmitI16(classfile.OpSipush, int16(v))
	default:
		mc.ldc(mc.pool().Integer(v))
	}
}

func (mc *MethodContext) pushLong(v int64) {
	if v == 0 || v == 1 {
		mc.code.Emit(classfile.OpLconst0 + classfile.Opcode(v))
		return
	}
	mc.code.EmitU16(classfile.OpLdc2W, mc.pool().Long(v))
}

func (mc *MethodContext) pushFloat(f float32) {
	bits := math.Float32bits(f)
	switch {
	case bits == 0:
		mc.code.Emit(classfile.OpFconst0)
	case f == 1:
		mc.code.Emit(classfile.OpFconst1)
	case f == 2:
		mc.code.Emit(classfile.OpFconst2)
	default:
		mc.ldc(mc.pool().Float(bits))
	}
}

func (mc *MethodContext) pushDouble(d float64) {
	bits := math.Float64bits(d)
	switch {
	case bits == 0:
		mc.code.Emit(classfile.OpDconst0)
	case d == 1:
		mc.code.Emit(classfile.OpDconst1)
	default:
		mc.code.EmitU16(classfile.OpLdc2W, mc.pool().Double(bits))
	}
}

func (mc *MethodContext) load(l Local) { mc.code.EmitLocal(loadOp(l.Type), l.Slot) }

func (mc *MethodContext) store(l Local) { mc.code.EmitLocal(storeOp(l.Type), l.Slot) }

// discard pops a value of type t.
func (mc *MethodContext) discard(t model.TypeDef) {
	switch model.Width(t) {
	case 1:
		mc.code.Emit(classfile.OpPop)
	case 2:
		mc.code.Emit(classfile.OpPop2)
	}
}

// dupValue duplicates a value of type t.
func (mc *MethodContext) dupValue(t model.TypeDef) {
	if model.Width(t) == 2 {
		mc.code.Emit(classfile.OpDup2)
		return
	}
	mc.code.Emit(classfile.OpDup)
}

func (mc *MethodContext) classRef(t model.TypeDef) uint16 {
	return mc.pool().Class(model.InternalName(t))
}

func (mc *MethodContext) checkcast(t model.TypeDef) {
	mc.code.EmitU16(classfile.OpCheckcast, mc.classRef(t))
}

func (mc *MethodContext) fieldInsn(op classfile.Opcode, owner model.ClassType, name string, t model.TypeDef) {
	mc.code.EmitU16(op, mc.pool().Fieldref(owner.InternalName(), name, model.Descriptor(t)))
}

// invokeStatic calls a static method of a class (never an interface).
func (mc *MethodContext) invokeStatic(owner model.ClassType, name, desc string) {
	mc.code.EmitU16(classfile.OpInvokestatic, mc.pool().Methodref(owner.InternalName(), name, desc, false))
}

func (mc *MethodContext) invokeVirtual(owner, name, desc string) {
	mc.code.EmitU16(classfile.OpInvokevirtual, mc.pool().Methodref(owner, name, desc, false))
}
