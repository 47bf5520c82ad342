package lower

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/frames"
	"github.com/chazu/sourcegen/model"
)

// Lower compiles the body of m, a method of u.Decl, into a Code attribute
// with its exception table, maximum stack and locals, and stack map frames.
// Failures are returned as *Error.
func Lower(u *Unit, m model.MethodDef) (*classfile.CodeAttribute, error) {
	mc := NewMethodContext(u, m)
	for _, s := range m.Body {
		if err := mc.lowerStmt(s); err != nil {
			return nil, err
		}
	}
	if mc.code.Reachable() {
		if !model.IsVoid(m.ReturnType()) {
			return nil, mc.wrap(nil, fmt.Errorf("%w: control reaches the end of a %s method", ErrMissingReturn, m.ReturnType()))
		}
		mc.code.Emit(classfile.OpReturn)
	}
	return mc.Finish()
}

// Finish resolves the emitted code and computes its frames.
func (mc *MethodContext) Finish() (*classfile.CodeAttribute, error) {
	code, handlers, err := mc.code.Finish()
	if err != nil {
		return nil, mc.wrap(nil, err)
	}
	res, err := frames.Analyze(&frames.Method{
		Owner:    mc.unit.Decl.Type().InternalName(),
		Desc:     mc.method.Descriptor(),
		Static:   mc.method.IsStatic(),
		Ctor:     mc.method.IsConstructor(),
		Code:     code,
		Handlers: handlers,
		Pool:     mc.unit.Pool,
	}, mc.unit.Hierarchy)
	if err != nil {
		return nil, mc.wrap(nil, err)
	}
	maxLocals := max(res.MaxLocals, mc.maxLocals)
	if res.MaxStack > math.MaxUint16 || maxLocals > math.MaxUint16 {
		return nil, mc.wrap(nil, classfile.ErrCodeTooLarge)
	}
	attr := &classfile.CodeAttribute{
		MaxStack:   uint16(res.MaxStack),
		MaxLocals:  uint16(maxLocals),
		Code:       res.Code,
		Exceptions: res.Handlers,
	}
	if len(res.Frames) > 0 {
		attr.Attributes = append(attr.Attributes, classfile.StackMapTable(mc.unit.Pool, res.Initial, res.Frames))
	}
	return attr, nil
}

// wrap attributes err to the innermost node it arose in. Errors already
// attributed keep their node.
func (mc *MethodContext) wrap(node any, err error) error {
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{
		Type:   mc.unit.Decl.Name(),
		Member: mc.method.Name + mc.method.Descriptor(),
		Node:   nodeName(node),
		Err:    err,
	}
}
