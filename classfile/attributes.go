package classfile

import (
	"fmt"
	"slices"
)

// Attribute names.
const (
	AttrCode                      = "Code"
	AttrStackMapTable             = "StackMapTable"
	AttrSignature                 = "Signature"
	AttrInnerClasses              = "InnerClasses"
	AttrNestHost                  = "NestHost"
	AttrNestMembers               = "NestMembers"
	AttrRecord                    = "Record"
	AttrRuntimeVisibleAnnotations = "RuntimeVisibleAnnotations"
	AttrSourceFile                = "SourceFile"
)

// CodeAttribute is the decoded form of a Code attribute.
type CodeAttribute struct {
	MaxStack   uint16
	MaxLocals  uint16
	Code       []byte
	Exceptions []ExceptionEntry
	Attributes []Attribute
}

// Encode returns the attribute.
func (c *CodeAttribute) Encode(p *ConstantPool) (Attribute, error) {
	w := &writer{}
	w.u16(c.MaxStack)
	w.u16(c.MaxLocals)
	w.u32(uint32(len(c.Code)))
	w.bytes(c.Code)
	if err := w.count(len(c.Exceptions), "exception handlers"); err != nil {
		return Attribute{}, err
	}
	for _, e := range c.Exceptions {
		w.u16(e.StartPC)
		w.u16(e.EndPC)
		w.u16(e.HandlerPC)
		w.u16(e.CatchType)
	}
	if err := w.attributes(c.Attributes); err != nil {
		return Attribute{}, err
	}
	return Attribute{Name: p.Utf8(AttrCode), Data: w.buf}, nil
}

// Signature returns a Signature attribute.
func Signature(p *ConstantPool, sig string) Attribute {
	w := &writer{}
	w.u16(p.Utf8(sig))
	return Attribute{Name: p.Utf8(AttrSignature), Data: w.buf}
}

// SourceFile returns a SourceFile attribute.
func SourceFile(p *ConstantPool, name string) Attribute {
	w := &writer{}
	w.u16(p.Utf8(name))
	return Attribute{Name: p.Utf8(AttrSourceFile), Data: w.buf}
}

// InnerClass is one InnerClasses row, in internal names.
type InnerClass struct {
	Inner  string
	Outer  string
	Simple string
	Access uint16
}

// InnerClasses returns an InnerClasses attribute.
func InnerClasses(p *ConstantPool, classes []InnerClass) Attribute {
	w := &writer{}
	w.u16(uint16(len(classes)))
	for _, c := range classes {
		w.u16(p.Class(c.Inner))
		w.u16(p.Class(c.Outer))
		w.u16(p.Utf8(c.Simple))
		w.u16(c.Access)
	}
	return Attribute{Name: p.Utf8(AttrInnerClasses), Data: w.buf}
}

// NestHost returns a NestHost attribute.
func NestHost(p *ConstantPool, host string) Attribute {
	w := &writer{}
	w.u16(p.Class(host))
	return Attribute{Name: p.Utf8(AttrNestHost), Data: w.buf}
}

// NestMembers returns a NestMembers attribute.
func NestMembers(p *ConstantPool, members []string) Attribute {
	w := &writer{}
	w.u16(uint16(len(members)))
	for _, m := range members {
		w.u16(p.Class(m))
	}
	return Attribute{Name: p.Utf8(AttrNestMembers), Data: w.buf}
}

// RecordComponent is one component of a Record attribute.
type RecordComponent struct {
	Name       string
	Desc       string
	Attributes []Attribute
}

// Record returns a Record attribute.
func Record(p *ConstantPool, components []RecordComponent) (Attribute, error) {
	w := &writer{}
	w.u16(uint16(len(components)))
	for _, c := range components {
		w.u16(p.Utf8(c.Name))
		w.u16(p.Utf8(c.Desc))
		if err := w.attributes(c.Attributes); err != nil {
			return Attribute{}, err
		}
	}
	return Attribute{Name: p.Utf8(AttrRecord), Data: w.buf}, nil
}

// ---------------------------------------------------------------------------
// Annotations
// ---------------------------------------------------------------------------

// Annotation is an annotation in class-file terms. Type is a field
// descriptor.
type Annotation struct {
	Type     string
	Elements []ElementPair
}

// ElementPair is one named element value.
type ElementPair struct {
	Name  string
	Value ElementValue
}

// ElementValue is a tagged annotation element value. Tag is one of
// B C D F I J S Z s e c @ [.
type ElementValue struct {
	Tag        byte
	Const      uint16 // pool index of the constant for primitive and string tags
	EnumType   string // descriptor, for 'e'
	EnumName   string
	Class      string // return descriptor, for 'c'
	Annotation *Annotation
	Array      []ElementValue
}

// RuntimeVisibleAnnotations returns the annotations attribute.
func RuntimeVisibleAnnotations(p *ConstantPool, anns []Annotation) (Attribute, error) {
	w := &writer{}
	w.u16(uint16(len(anns)))
	for i := range anns {
		if err := writeAnnotation(w, p, &anns[i]); err != nil {
			return Attribute{}, err
		}
	}
	return Attribute{Name: p.Utf8(AttrRuntimeVisibleAnnotations), Data: w.buf}, nil
}

func writeAnnotation(w *writer, p *ConstantPool, a *Annotation) error {
	w.u16(p.Utf8(a.Type))
	w.u16(uint16(len(a.Elements)))
	for _, e := range a.Elements {
		w.u16(p.Utf8(e.Name))
		if err := writeElementValue(w, p, e.Value); err != nil {
			return err
		}
	}
	return nil
}

func writeElementValue(w *writer, p *ConstantPool, v ElementValue) error {
	w.u8(v.Tag)
	switch v.Tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		w.u16(v.Const)
	case 'e':
		w.u16(p.Utf8(v.EnumType))
		w.u16(p.Utf8(v.EnumName))
	case 'c':
		w.u16(p.Utf8(v.Class))
	case '@':
		if v.Annotation == nil {
			return fmt.Errorf("nested annotation element without annotation")
		}
		return writeAnnotation(w, p, v.Annotation)
	case '[':
		w.u16(uint16(len(v.Array)))
		for _, e := range v.Array {
			if err := writeElementValue(w, p, e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown element value tag %q", v.Tag)
	}
	return nil
}

// ---------------------------------------------------------------------------
// StackMapTable
// ---------------------------------------------------------------------------

// VerificationTag is the tag of a verification type.
type VerificationTag uint8

const (
	VTTop               VerificationTag = 0
	VTInteger           VerificationTag = 1
	VTFloat             VerificationTag = 2
	VTDouble            VerificationTag = 3
	VTLong              VerificationTag = 4
	VTNull              VerificationTag = 5
	VTUninitializedThis VerificationTag = 6
	VTObject            VerificationTag = 7
	VTUninitialized     VerificationTag = 8
)

// VerificationType is one entry of a stack map frame. Class is the internal
// name (or array descriptor) for VTObject; Offset is the new instruction
// for VTUninitialized.
type VerificationType struct {
	Tag    VerificationTag
	Class  string
	Offset uint16
}

// StackMapFrame is a full frame at Offset. Locals and Stack use the
// compressed form: long and double take one entry.
type StackMapFrame struct {
	Offset int
	Locals []VerificationType
	Stack  []VerificationType
}

// StackMapTable encodes frames, sorted by offset, against the implicit
// initial frame. The most compact frame kind is chosen for each entry.
func StackMapTable(p *ConstantPool, initial []VerificationType, frames []StackMapFrame) Attribute {
	w := &writer{}
	w.u16(uint16(len(frames)))
	prevLocals := initial
	prevOffset := -1
	for _, f := range frames {
		delta := f.Offset - prevOffset - 1
		prevOffset = f.Offset
		writeFrame(w, p, delta, prevLocals, f)
		prevLocals = f.Locals
	}
	return Attribute{Name: p.Utf8(AttrStackMapTable), Data: w.buf}
}

func writeFrame(w *writer, p *ConstantPool, delta int, prev []VerificationType, f StackMapFrame) {
	sameLocals := slices.Equal(prev, f.Locals)
	switch {
	case sameLocals && len(f.Stack) == 0 && delta < 64:
		w.u8(uint8(delta))
		return
	case sameLocals && len(f.Stack) == 0:
		w.u8(251)
		w.u16(uint16(delta))
		return
	case sameLocals && len(f.Stack) == 1 && delta < 64:
		w.u8(uint8(64 + delta))
		writeVerificationType(w, p, f.Stack[0])
		return
	case sameLocals && len(f.Stack) == 1:
		w.u8(247)
		w.u16(uint16(delta))
		writeVerificationType(w, p, f.Stack[0])
		return
	}
	if len(f.Stack) == 0 {
		diff := len(f.Locals) - len(prev)
		switch {
		case diff < 0 && diff >= -3 && slices.Equal(prev[:len(f.Locals)], f.Locals):
			w.u8(uint8(251 + diff))
			w.u16(uint16(delta))
			return
		case diff > 0 && diff <= 3 && slices.Equal(f.Locals[:len(prev)], prev):
			w.u8(uint8(251 + diff))
			w.u16(uint16(delta))
			for _, v := range f.Locals[len(prev):] {
				writeVerificationType(w, p, v)
			}
			return
		}
	}
	w.u8(255)
	w.u16(uint16(delta))
	w.u16(uint16(len(f.Locals)))
	for _, v := range f.Locals {
		writeVerificationType(w, p, v)
	}
	w.u16(uint16(len(f.Stack)))
	for _, v := range f.Stack {
		writeVerificationType(w, p, v)
	}
}

func writeVerificationType(w *writer, p *ConstantPool, v VerificationType) {
	w.u8(uint8(v.Tag))
	switch v.Tag {
	case VTObject:
		w.u16(p.Class(v.Class))
	case VTUninitialized:
		w.u16(v.Offset)
	}
}
