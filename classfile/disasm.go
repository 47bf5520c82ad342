package classfile

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of a method body. Pool
// references are resolved through p when it is non-nil.
func Disassemble(code []byte, p *ConstantPool) (string, error) {
	insns, err := Instructions(code)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, in := range insns {
		fmt.Fprintf(&sb, "%04d  %s", in.Offset, in.Op)
		switch op := in.Op; {
		case op == OpTableswitch || op == OpLookupswitch:
			sb.WriteString(" {")
			for i, k := range in.Keys {
				fmt.Fprintf(&sb, " %d: %d", k, in.Targets[i])
			}
			fmt.Fprintf(&sb, " default: %d }", in.Default)
		case op.IsBranch() || op == OpGotoW:
			fmt.Fprintf(&sb, " %d", in.Operand)
		case op == OpLdc || op == OpLdcW || op == OpLdc2W:
			sb.WriteString(" " + describeConstant(p, uint16(in.Operand)))
		case op >= OpGetstatic && op <= OpInvokeinterface:
			sb.WriteString(" " + describeMember(p, uint16(in.Operand)))
		case op == OpNew || op == OpAnewarray || op == OpCheckcast || op == OpInstanceof:
			sb.WriteString(" " + describeClass(p, uint16(in.Operand)))
		case op == OpIinc:
			fmt.Fprintf(&sb, " %d %d", in.Operand, in.Operand2)
		case in.Len > 1 || in.Wide:
			fmt.Fprintf(&sb, " %d", in.Operand)
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func describeClass(p *ConstantPool, i uint16) string {
	if p == nil {
		return fmt.Sprintf("#%d", i)
	}
	if name, err := p.ClassAt(i); err == nil {
		return name
	}
	return fmt.Sprintf("#%d", i)
}

func describeMember(p *ConstantPool, i uint16) string {
	if p == nil {
		return fmt.Sprintf("#%d", i)
	}
	m, err := p.MemberAt(i)
	if err != nil {
		return fmt.Sprintf("#%d", i)
	}
	return m.Owner + "." + m.Name + ":" + m.Desc
}

func describeConstant(p *ConstantPool, i uint16) string {
	if p == nil {
		return fmt.Sprintf("#%d", i)
	}
	e, err := p.Entry(i)
	if err != nil {
		return fmt.Sprintf("#%d", i)
	}
	switch e.Tag {
	case TagString:
		s, _ := p.Utf8At(e.Ref1)
		return fmt.Sprintf("%q", s)
	case TagClass:
		return describeClass(p, i) + ".class"
	case TagInteger:
		return fmt.Sprint(int32(uint32(e.Bits)))
	case TagLong:
		return fmt.Sprint(int64(e.Bits))
	}
	return fmt.Sprintf("#%d", i)
}
