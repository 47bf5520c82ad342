package classfile

import (
	"encoding/binary"
	"fmt"
)

// reader is the decoding counterpart of writer.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) need(n int, what string) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("unexpected end of class file reading %s", what)
		return false
	}
	return true
}

func (r *reader) u8(what string) uint8 {
	if !r.need(1, what) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *reader) u16(what string) uint16 {
	if !r.need(2, what) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u32(what string) uint32 {
	if !r.need(4, what) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) u64(what string) uint64 {
	if !r.need(8, what) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) bytes(n int, what string) []byte {
	if !r.need(n, what) {
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) attributes() []Attribute {
	n := int(r.u16("attribute count"))
	attrs := make([]Attribute, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		name := r.u16("attribute name")
		size := int(r.u32("attribute length"))
		attrs = append(attrs, Attribute{Name: name, Data: r.bytes(size, "attribute body")})
	}
	return attrs
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	r := &reader{data: data}
	if magic := r.u32("magic"); r.err == nil && magic != Magic {
		return nil, fmt.Errorf("bad magic 0x%08X", magic)
	}
	cf := &ClassFile{}
	cf.Minor = r.u16("minor version")
	cf.Major = r.u16("major version")
	cf.Pool = NewConstantPool()
	if err := r.pool(cf.Pool); err != nil {
		return nil, err
	}
	cf.Access = r.u16("access flags")
	cf.This = r.u16("this class")
	cf.Super = r.u16("super class")
	n := int(r.u16("interface count"))
	for i := 0; i < n && r.err == nil; i++ {
		cf.Interfaces = append(cf.Interfaces, r.u16("interface"))
	}
	for _, dst := range []*[]Member{&cf.Fields, &cf.Methods} {
		n := int(r.u16("member count"))
		for i := 0; i < n && r.err == nil; i++ {
			m := Member{Access: r.u16("member access"), Name: r.u16("member name"), Desc: r.u16("member descriptor")}
			m.Attributes = r.attributes()
			*dst = append(*dst, m)
		}
	}
	cf.Attributes = r.attributes()
	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after class file", len(data)-r.pos)
	}
	return cf, nil
}

func (r *reader) pool(p *ConstantPool) error {
	count := int(r.u16("constant pool count"))
	for i := 1; i < count && r.err == nil; i++ {
		e := PoolEntry{Tag: Tag(r.u8("constant tag"))}
		switch e.Tag {
		case TagUtf8:
			n := int(r.u16("utf8 length"))
			s, err := decodeModifiedUTF8(r.bytes(n, "utf8 bytes"))
			if err != nil {
				return err
			}
			e.Utf8 = s
		case TagInteger, TagFloat:
			e.Bits = uint64(r.u32("constant"))
		case TagLong, TagDouble:
			e.Bits = r.u64("constant")
		case TagClass, TagString:
			e.Ref1 = r.u16("constant reference")
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType:
			e.Ref1 = r.u16("constant reference")
			e.Ref2 = r.u16("constant reference")
		default:
			return fmt.Errorf("unsupported constant pool tag %d at index %d", e.Tag, i)
		}
		p.entries = append(p.entries, e)
		if _, dup := p.index[e]; !dup {
			p.index[e] = uint16(i)
		}
		if e.Wide() {
			p.entries = append(p.entries, PoolEntry{})
			i++
		}
	}
	return r.err
}

// ParseCode decodes a Code attribute body.
func ParseCode(a Attribute) (*CodeAttribute, error) {
	r := &reader{data: a.Data}
	c := &CodeAttribute{MaxStack: r.u16("max stack"), MaxLocals: r.u16("max locals")}
	n := int(r.u32("code length"))
	c.Code = r.bytes(n, "code")
	m := int(r.u16("exception table length"))
	for i := 0; i < m && r.err == nil; i++ {
		c.Exceptions = append(c.Exceptions, ExceptionEntry{
			StartPC:   r.u16("start pc"),
			EndPC:     r.u16("end pc"),
			HandlerPC: r.u16("handler pc"),
			CatchType: r.u16("catch type"),
		})
	}
	c.Attributes = r.attributes()
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// FindAttribute returns the first attribute named name.
func (cf *ClassFile) FindAttribute(attrs []Attribute, name string) (Attribute, bool) {
	for _, a := range attrs {
		if n, err := cf.Pool.Utf8At(a.Name); err == nil && n == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// MemberName returns the name and descriptor of a field or method.
func (cf *ClassFile) MemberName(m Member) (name, desc string, err error) {
	if name, err = cf.Pool.Utf8At(m.Name); err != nil {
		return "", "", err
	}
	desc, err = cf.Pool.Utf8At(m.Desc)
	return name, desc, err
}

// FindMethod looks up a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, desc string) (Member, bool) {
	for _, m := range cf.Methods {
		n, d, err := cf.MemberName(m)
		if err == nil && n == name && d == desc {
			return m, true
		}
	}
	return Member{}, false
}

// FindField looks up a field by name.
func (cf *ClassFile) FindField(name string) (Member, bool) {
	for _, m := range cf.Fields {
		if n, _, err := cf.MemberName(m); err == nil && n == name {
			return m, true
		}
	}
	return Member{}, false
}

// MethodCode returns the decoded Code attribute of a method, or nil when it
// has none.
func (cf *ClassFile) MethodCode(m Member) (*CodeAttribute, error) {
	a, ok := cf.FindAttribute(m.Attributes, AttrCode)
	if !ok {
		return nil, nil
	}
	return ParseCode(a)
}
