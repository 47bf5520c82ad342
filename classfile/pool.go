package classfile

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf16"
)

// Tag identifies the kind of a constant pool entry.
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
)

// ErrPoolOverflow is returned when a class needs more than 65535 constant
// pool slots.
var ErrPoolOverflow = errors.New("constant pool overflow")

// PoolEntry is one constant pool entry. Utf8 holds the string of Utf8
// entries; Bits holds the raw value of numeric entries; Ref1 and Ref2 hold
// the indices referenced by structured entries.
type PoolEntry struct {
	Tag  Tag
	Utf8 string
	Bits uint64
	Ref1 uint16
	Ref2 uint16
}

// Wide reports whether the entry occupies two pool slots.
func (e PoolEntry) Wide() bool { return e.Tag == TagLong || e.Tag == TagDouble }

// ConstantPool is an insertion-ordered, deduplicating constant pool.
// Index 0 is unused, as are the slots following long and double entries.
type ConstantPool struct {
	entries  []PoolEntry
	index    map[PoolEntry]uint16
	overflow bool
}

// NewConstantPool creates an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{
		entries: make([]PoolEntry, 1, 64),
		index:   make(map[PoolEntry]uint16),
	}
}

// Count returns the constant_pool_count value: one more than the highest
// index.
func (p *ConstantPool) Count() int { return len(p.entries) }

// Err returns ErrPoolOverflow if the pool grew past its limit.
func (p *ConstantPool) Err() error {
	if p.overflow {
		return ErrPoolOverflow
	}
	return nil
}

func (p *ConstantPool) add(e PoolEntry) uint16 {
	if i, ok := p.index[e]; ok {
		return i
	}
	n := 1
	if e.Wide() {
		n = 2
	}
	if len(p.entries)+n > math.MaxUint16 {
		p.overflow = true
		return 0
	}
	i := uint16(len(p.entries))
	p.entries = append(p.entries, e)
	if n == 2 {
		p.entries = append(p.entries, PoolEntry{})
	}
	p.index[e] = i
	return i
}

// Utf8 adds a string entry.
func (p *ConstantPool) Utf8(s string) uint16 { return p.add(PoolEntry{Tag: TagUtf8, Utf8: s}) }

// Class adds a class entry for an internal name or array descriptor.
func (p *ConstantPool) Class(internalName string) uint16 {
	return p.add(PoolEntry{Tag: TagClass, Ref1: p.Utf8(internalName)})
}

// String adds a String constant.
func (p *ConstantPool) String(s string) uint16 {
	return p.add(PoolEntry{Tag: TagString, Ref1: p.Utf8(s)})
}

// Integer adds an int constant.
func (p *ConstantPool) Integer(v int32) uint16 {
	return p.add(PoolEntry{Tag: TagInteger, Bits: uint64(uint32(v))})
}

// Float adds a float constant from its IEEE bits.
func (p *ConstantPool) Float(bits uint32) uint16 {
	return p.add(PoolEntry{Tag: TagFloat, Bits: uint64(bits)})
}

// Long adds a long constant.
func (p *ConstantPool) Long(v int64) uint16 { return p.add(PoolEntry{Tag: TagLong, Bits: uint64(v)}) }

// Double adds a double constant from its IEEE bits.
func (p *ConstantPool) Double(bits uint64) uint16 {
	return p.add(PoolEntry{Tag: TagDouble, Bits: bits})
}

// NameAndType adds a name-and-type entry.
func (p *ConstantPool) NameAndType(name, desc string) uint16 {
	return p.add(PoolEntry{Tag: TagNameAndType, Ref1: p.Utf8(name), Ref2: p.Utf8(desc)})
}

// Fieldref adds a field reference.
func (p *ConstantPool) Fieldref(owner, name, desc string) uint16 {
	return p.add(PoolEntry{Tag: TagFieldref, Ref1: p.Class(owner), Ref2: p.NameAndType(name, desc)})
}

// Methodref adds a method reference; iface selects InterfaceMethodref.
func (p *ConstantPool) Methodref(owner, name, desc string, iface bool) uint16 {
	tag := TagMethodref
	if iface {
		tag = TagInterfaceMethodref
	}
	return p.add(PoolEntry{Tag: tag, Ref1: p.Class(owner), Ref2: p.NameAndType(name, desc)})
}

// ---------------------------------------------------------------------------
// Lookup
// ---------------------------------------------------------------------------

// Entry returns the entry at index i.
func (p *ConstantPool) Entry(i uint16) (PoolEntry, error) {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Tag == 0 {
		return PoolEntry{}, fmt.Errorf("invalid constant pool index %d", i)
	}
	return p.entries[i], nil
}

func (p *ConstantPool) tagged(i uint16, tags ...Tag) (PoolEntry, error) {
	e, err := p.Entry(i)
	if err != nil {
		return e, err
	}
	for _, t := range tags {
		if e.Tag == t {
			return e, nil
		}
	}
	return e, fmt.Errorf("constant pool index %d has tag %d, want %v", i, e.Tag, tags)
}

// Utf8At returns the string at a Utf8 index.
func (p *ConstantPool) Utf8At(i uint16) (string, error) {
	e, err := p.tagged(i, TagUtf8)
	return e.Utf8, err
}

// ClassAt returns the internal name at a Class index.
func (p *ConstantPool) ClassAt(i uint16) (string, error) {
	e, err := p.tagged(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8At(e.Ref1)
}

// MemberRef is a resolved field or method reference.
type MemberRef struct {
	Owner     string
	Name      string
	Desc      string
	Interface bool
}

// MemberAt resolves a Fieldref, Methodref or InterfaceMethodref index.
func (p *ConstantPool) MemberAt(i uint16) (MemberRef, error) {
	e, err := p.tagged(i, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return MemberRef{}, err
	}
	owner, err := p.ClassAt(e.Ref1)
	if err != nil {
		return MemberRef{}, err
	}
	nt, err := p.tagged(e.Ref2, TagNameAndType)
	if err != nil {
		return MemberRef{}, err
	}
	name, err := p.Utf8At(nt.Ref1)
	if err != nil {
		return MemberRef{}, err
	}
	desc, err := p.Utf8At(nt.Ref2)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Owner: owner, Name: name, Desc: desc, Interface: e.Tag == TagInterfaceMethodref}, nil
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func (p *ConstantPool) encode(w *writer) error {
	if p.overflow {
		return ErrPoolOverflow
	}
	w.u16(uint16(len(p.entries)))
	for i := 1; i < len(p.entries); i++ {
		e := p.entries[i]
		if e.Tag == 0 {
			continue // second slot of a long or double
		}
		w.u8(uint8(e.Tag))
		switch e.Tag {
		case TagUtf8:
			b := encodeModifiedUTF8(e.Utf8)
			if len(b) > math.MaxUint16 {
				return fmt.Errorf("string constant of %d bytes exceeds 65535", len(b))
			}
			w.u16(uint16(len(b)))
			w.bytes(b)
		case TagInteger, TagFloat:
			w.u32(uint32(e.Bits))
		case TagLong, TagDouble:
			w.u64(e.Bits)
		case TagClass, TagString:
			w.u16(e.Ref1)
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType:
			w.u16(e.Ref1)
			w.u16(e.Ref2)
		default:
			return fmt.Errorf("cannot encode constant pool tag %d", e.Tag)
		}
	}
	return nil
}

// encodeModifiedUTF8 encodes s the way class files store strings: NUL as two
// bytes and supplementary characters as surrogate pairs.
func encodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r >= 0x10000 {
			hi, lo := utf16.EncodeRune(r)
			out = appendModifiedUTF8Unit(out, uint16(hi))
			out = appendModifiedUTF8Unit(out, uint16(lo))
			continue
		}
		out = appendModifiedUTF8Unit(out, uint16(r))
	}
	return out
}

func appendModifiedUTF8Unit(out []byte, c uint16) []byte {
	switch {
	case c != 0 && c < 0x80:
		return append(out, byte(c))
	case c < 0x800:
		return append(out, byte(0xC0|c>>6), byte(0x80|c&0x3F))
	}
	return append(out, byte(0xE0|c>>12), byte(0x80|(c>>6)&0x3F), byte(0x80|c&0x3F))
}

// decodeModifiedUTF8 reverses encodeModifiedUTF8.
func decodeModifiedUTF8(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) {
				return "", fmt.Errorf("truncated utf8 sequence at %d", i)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) {
				return "", fmt.Errorf("truncated utf8 sequence at %d", i)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("invalid utf8 byte 0x%02X at %d", c, i)
		}
	}
	return string(utf16.Decode(units)), nil
}
