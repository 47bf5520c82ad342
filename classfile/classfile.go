// Package classfile encodes and decodes JVM class files: the constant pool,
// instructions with label back-patching, attributes and the top-level
// layout.
package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Magic is the class-file signature.
const Magic uint32 = 0xCAFEBABE

// Class-file major versions.
const (
	V11 uint16 = 55
	V17 uint16 = 61
	V21 uint16 = 65
)

// Access flags. Several values are shared between classes, fields and
// methods with different meanings.
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSuper        uint16 = 0x0020
	AccSynchronized uint16 = 0x0020
	AccVolatile     uint16 = 0x0040
	AccBridge       uint16 = 0x0040
	AccTransient    uint16 = 0x0080
	AccVarargs      uint16 = 0x0080
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
	AccStrict       uint16 = 0x0800
	AccSynthetic    uint16 = 0x1000
	AccAnnotation   uint16 = 0x2000
	AccEnum         uint16 = 0x4000
	AccMandated     uint16 = 0x8000
)

// Attribute is a named attribute with its encoded body.
type Attribute struct {
	Name uint16
	Data []byte
}

// Member is a field or method.
type Member struct {
	Access     uint16
	Name       uint16
	Desc       uint16
	Attributes []Attribute
}

// ClassFile is a class file in pool-index form.
type ClassFile struct {
	Minor      uint16
	Major      uint16
	Pool       *ConstantPool
	Access     uint16
	This       uint16
	Super      uint16
	Interfaces []uint16
	Fields     []Member
	Methods    []Member
	Attributes []Attribute
}

// New creates a class file for the given internal names. super may be
// empty only for java/lang/Object.
func New(major uint16, access uint16, name, super string, interfaces ...string) *ClassFile {
	cf := &ClassFile{Major: major, Pool: NewConstantPool(), Access: access}
	cf.This = cf.Pool.Class(name)
	if super != "" {
		cf.Super = cf.Pool.Class(super)
	}
	for _, i := range interfaces {
		cf.Interfaces = append(cf.Interfaces, cf.Pool.Class(i))
	}
	return cf
}

// AddField appends a field.
func (cf *ClassFile) AddField(access uint16, name, desc string, attrs ...Attribute) {
	cf.Fields = append(cf.Fields, Member{
		Access: access, Name: cf.Pool.Utf8(name), Desc: cf.Pool.Utf8(desc), Attributes: attrs,
	})
}

// AddMethod appends a method.
func (cf *ClassFile) AddMethod(access uint16, name, desc string, attrs ...Attribute) {
	cf.Methods = append(cf.Methods, Member{
		Access: access, Name: cf.Pool.Utf8(name), Desc: cf.Pool.Utf8(desc), Attributes: attrs,
	})
}

// Name returns the internal name of this class.
func (cf *ClassFile) Name() (string, error) { return cf.Pool.ClassAt(cf.This) }

// SuperName returns the internal name of the superclass, "" for none.
func (cf *ClassFile) SuperName() (string, error) {
	if cf.Super == 0 {
		return "", nil
	}
	return cf.Pool.ClassAt(cf.Super)
}

// Bytes encodes the class file.
func (cf *ClassFile) Bytes() ([]byte, error) {
	body := &writer{}
	body.u16(cf.Access)
	body.u16(cf.This)
	body.u16(cf.Super)
	if err := body.count(len(cf.Interfaces), "interfaces"); err != nil {
		return nil, err
	}
	for _, i := range cf.Interfaces {
		body.u16(i)
	}
	for _, members := range [][]Member{cf.Fields, cf.Methods} {
		if err := body.count(len(members), "members"); err != nil {
			return nil, err
		}
		for _, m := range members {
			body.u16(m.Access)
			body.u16(m.Name)
			body.u16(m.Desc)
			if err := body.attributes(m.Attributes); err != nil {
				return nil, err
			}
		}
	}
	if err := body.attributes(cf.Attributes); err != nil {
		return nil, err
	}

	// The pool precedes the body in the file.
	w := &writer{buf: make([]byte, 0, 1024+len(body.buf))}
	w.u32(Magic)
	w.u16(cf.Minor)
	w.u16(cf.Major)
	if err := cf.Pool.encode(w); err != nil {
		return nil, err
	}
	w.bytes(body.buf)
	return w.buf, nil
}

// ---------------------------------------------------------------------------
// Big-endian writer
// ---------------------------------------------------------------------------

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)     { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16)   { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32)   { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64)   { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) count(n int, what string) error {
	if n > math.MaxUint16 {
		return fmt.Errorf("too many %s: %d", what, n)
	}
	w.u16(uint16(n))
	return nil
}

func (w *writer) attributes(attrs []Attribute) error {
	if err := w.count(len(attrs), "attributes"); err != nil {
		return err
	}
	for _, a := range attrs {
		w.u16(a.Name)
		w.u32(uint32(len(a.Data)))
		w.bytes(a.Data)
	}
	return nil
}
