package classfile

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	ops := AllOpcodes()
	if len(ops) != 202 {
		t.Errorf("expected 202 opcodes, got %d", len(ops))
	}
	for _, op := range ops {
		if strings.HasPrefix(op.String(), "unknown") {
			t.Errorf("opcode 0x%02X has no metadata", byte(op))
		}
	}
	if got := Opcode(0xEE).String(); !strings.HasPrefix(got, "unknown") {
		t.Errorf("undefined opcode should be unknown, got %q", got)
	}
}

func TestInvertBranch(t *testing.T) {
	tests := []struct{ op, want Opcode }{
		{OpIfeq, OpIfne},
		{OpIfne, OpIfeq},
		{OpIflt, OpIfge},
		{OpIfgt, OpIfle},
		{OpIfIcmplt, OpIfIcmpge},
		{OpIfIcmpgt, OpIfIcmple},
		{OpIfAcmpeq, OpIfAcmpne},
		{OpIfnull, OpIfnonnull},
	}
	for _, tt := range tests {
		if got := InvertBranch(tt.op); got != tt.want {
			t.Errorf("InvertBranch(%s) = %s, want %s", tt.op, got, tt.want)
		}
		if got := InvertBranch(tt.want); got != tt.op {
			t.Errorf("InvertBranch(%s) = %s, want %s", tt.want, got, tt.op)
		}
	}
}

func TestPoolDedup(t *testing.T) {
	p := NewConstantPool()
	a := p.Methodref("java/lang/Object", "<init>", "()V", false)
	b := p.Methodref("java/lang/Object", "<init>", "()V", false)
	if a != b {
		t.Errorf("identical method refs got indices %d and %d", a, b)
	}
	if p.Methodref("java/lang/Object", "<init>", "()V", true) == a {
		t.Error("interface method ref must not share an entry with a class method ref")
	}

	before := p.Count()
	l := p.Long(42)
	if p.Count() != before+2 {
		t.Errorf("long should take two slots, count %d -> %d", before, p.Count())
	}
	if next := p.Utf8("after"); int(next) != int(l)+2 {
		t.Errorf("entry after long at %d, want %d", next, l+2)
	}
}

func TestPoolMemberLookup(t *testing.T) {
	p := NewConstantPool()
	i := p.Methodref("java/util/List", "size", "()I", true)
	m, err := p.MemberAt(i)
	if err != nil {
		t.Fatalf("MemberAt: %v", err)
	}
	if m.Owner != "java/util/List" || m.Name != "size" || m.Desc != "()I" || !m.Interface {
		t.Errorf("unexpected member %+v", m)
	}
	if _, err := p.MemberAt(p.Utf8("x")); err == nil {
		t.Error("MemberAt on a Utf8 entry should fail")
	}
}

func TestModifiedUTF8(t *testing.T) {
	for _, s := range []string{"plain", "nul\x00inside", "é", "日本", "emoji 😀"} {
		enc := encodeModifiedUTF8(s)
		if bytes.IndexByte(enc, 0) >= 0 {
			t.Errorf("%q: encoding contains a NUL byte", s)
		}
		dec, err := decodeModifiedUTF8(enc)
		if err != nil {
			t.Fatalf("%q: decode: %v", s, err)
		}
		if dec != s {
			t.Errorf("round trip %q -> %q", s, dec)
		}
	}
}

func TestLocalForms(t *testing.T) {
	tests := []struct {
		op   Opcode
		slot int
		want []byte
	}{
		{OpIload, 0, []byte{byte(OpIload0)}},
		{OpAload, 3, []byte{byte(OpAload3)}},
		{OpLstore, 2, []byte{byte(OpLstore2)}},
		{OpDload, 4, []byte{byte(OpDload), 4}},
		{OpAstore, 300, []byte{byte(OpWide), byte(OpAstore), 0x01, 0x2C}},
	}
	for _, tt := range tests {
		c := NewCode()
		c.EmitLocal(tt.op, tt.slot)
		if !bytes.Equal(c.buf, tt.want) {
			t.Errorf("EmitLocal(%s, %d) = % x, want % x", tt.op, tt.slot, c.buf, tt.want)
		}
		in, err := Decode(c.buf, 0)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if in.Operand != tt.slot || BaseLocalOp(in.Op) != tt.op {
			t.Errorf("decoded %s slot %d, want %s slot %d", BaseLocalOp(in.Op), in.Operand, tt.op, tt.slot)
		}
	}
}

func TestLabels(t *testing.T) {
	c := NewCode()
	loop := c.NewLabel()
	end := c.NewLabel()
	c.Mark(loop)
	c.Emit(OpIconst0)
	c.EmitJump(OpIfeq, end)
	c.EmitJump(OpGoto, loop)
	if c.Reachable() {
		t.Error("code after goto should be unreachable")
	}
	c.Mark(end)
	c.Emit(OpReturn)

	code, _, err := c.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	insns, err := Instructions(code)
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	if insns[1].Op != OpIfeq || insns[1].Operand != 7 {
		t.Errorf("forward branch: %s -> %d, want ifeq -> 7", insns[1].Op, insns[1].Operand)
	}
	if insns[2].Op != OpGoto || insns[2].Operand != 0 {
		t.Errorf("backward branch: %s -> %d, want goto -> 0", insns[2].Op, insns[2].Operand)
	}
}

func TestJoinReachability(t *testing.T) {
	c := NewCode()
	c.Emit(OpReturn)
	c.Join(c.NewLabel())
	if c.Reachable() {
		t.Error("join of an unused label after return should stay unreachable")
	}

	c = NewCode()
	used := c.NewLabel()
	c.Emit(OpIconst0)
	c.EmitJump(OpIfeq, used)
	c.Emit(OpReturn)
	c.Join(used)
	if !c.Reachable() {
		t.Error("join of a branch target should be reachable")
	}

	here := c.Here()
	if pos, ok := c.Position(here); !ok || pos != c.Len() {
		t.Errorf("Here = %d, %v; want %d", pos, ok, c.Len())
	}
}

func TestUnmarkedLabel(t *testing.T) {
	c := NewCode()
	c.EmitJump(OpGoto, c.NewLabel())
	if _, _, err := c.Finish(); err == nil {
		t.Error("expected error for branch to unmarked label")
	}
}

func TestSwitchEncoding(t *testing.T) {
	c := NewCode()
	c.Emit(OpIconst1)
	dflt := c.NewLabel()
	arms := []*Label{c.NewLabel(), c.NewLabel(), c.NewLabel()}
	c.EmitTableSwitch(0, 2, dflt, arms)
	for _, l := range arms {
		c.Mark(l)
		c.Emit(OpNop)
	}
	c.Mark(dflt)
	c.Emit(OpIconst0)
	sparse := []*Label{c.NewLabel(), c.NewLabel()}
	c.EmitLookupSwitch(dflt, []int32{-5, 10000}, sparse)
	for _, l := range sparse {
		c.Mark(l)
	}
	c.Emit(OpReturn)

	code, _, err := c.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	insns, err := Instructions(code)
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	table := insns[1]
	if table.Op != OpTableswitch || table.Len != 3+12+12 {
		t.Fatalf("tableswitch decoded as %s len %d", table.Op, table.Len)
	}
	for i, target := range table.Targets {
		if pos, _ := c.Position(arms[i]); target != pos {
			t.Errorf("table key %d -> %d, want %d", table.Keys[i], target, pos)
		}
	}
	var lookup Instruction
	for _, in := range insns {
		if in.Op == OpLookupswitch {
			lookup = in
		}
	}
	if len(lookup.Keys) != 2 || lookup.Keys[0] != -5 || lookup.Keys[1] != 10000 {
		t.Errorf("lookupswitch keys = %v", lookup.Keys)
	}
	if pos, _ := c.Position(dflt); lookup.Default != pos {
		t.Errorf("lookupswitch default = %d, want %d", lookup.Default, pos)
	}
}

func TestEmptyHandlerRangeDropped(t *testing.T) {
	c := NewCode()
	start, end, h := c.NewLabel(), c.NewLabel(), c.NewLabel()
	c.Mark(start)
	c.Mark(end)
	c.Emit(OpReturn)
	c.Mark(h)
	c.Emit(OpAthrow)
	c.AddHandler(start, end, h, 0)
	_, table, err := c.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if len(table) != 0 {
		t.Errorf("empty range should be dropped, got %v", table)
	}
}

func TestBranchTooFar(t *testing.T) {
	c := NewCode()
	end := c.NewLabel()
	c.EmitJump(OpGoto, end)
	for i := 0; i < 40000; i++ {
		c.Emit(OpNop)
	}
	c.Mark(end)
	c.Emit(OpReturn)
	if _, _, err := c.Finish(); !errors.Is(err, ErrCodeTooLarge) {
		t.Errorf("err = %v, want ErrCodeTooLarge", err)
	}
}

func TestClassFileRoundTrip(t *testing.T) {
	cf := New(V17, AccPublic|AccSuper, "com/example/Hello", "java/lang/Object", "java/lang/Runnable")
	cf.AddField(AccPrivate, "count", "I")

	c := NewCode()
	c.EmitLocal(OpAload, 0)
	c.EmitU16(OpInvokespecial, cf.Pool.Methodref("java/lang/Object", "<init>", "()V", false))
	c.Emit(OpReturn)
	code, table, err := c.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	ca := &CodeAttribute{MaxStack: 1, MaxLocals: 1, Code: code, Exceptions: table}
	attr, err := ca.Encode(cf.Pool)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	cf.AddMethod(AccPublic, "<init>", "()V", attr)
	cf.Attributes = append(cf.Attributes, SourceFile(cf.Pool, "Hello.java"))

	data, err := cf.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0, 0, 61}) {
		t.Fatalf("bad header % x", data[:8])
	}

	back, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if name, _ := back.Name(); name != "com/example/Hello" {
		t.Errorf("name = %q", name)
	}
	if super, _ := back.SuperName(); super != "java/lang/Object" {
		t.Errorf("super = %q", super)
	}
	m, ok := back.FindMethod("<init>", "()V")
	if !ok {
		t.Fatal("constructor not found")
	}
	parsed, err := back.MethodCode(m)
	if err != nil || parsed == nil {
		t.Fatalf("MethodCode: %v", err)
	}
	if !bytes.Equal(parsed.Code, code) || parsed.MaxStack != 1 {
		t.Errorf("code attribute did not round trip: %+v", parsed)
	}
	if _, ok := back.FindField("count"); !ok {
		t.Error("field not found")
	}

	again, err := back.Bytes()
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(again, data) {
		t.Error("parse/encode is not byte-identical")
	}
}

func TestStackMapFrameKinds(t *testing.T) {
	p := NewConstantPool()
	intT := VerificationType{Tag: VTInteger}
	str := VerificationType{Tag: VTObject, Class: "java/lang/String"}
	initial := []VerificationType{str}
	frames := []StackMapFrame{
		{Offset: 5, Locals: initial},                                  // same_frame
		{Offset: 9, Locals: initial, Stack: []VerificationType{intT}}, // same_locals_1_stack_item
		{Offset: 20, Locals: []VerificationType{str, intT}},           // append 1
		{Offset: 30, Locals: initial},                                 // chop 1
		{Offset: 200, Locals: []VerificationType{intT}},               // full_frame
	}
	a := StackMapTable(p, initial, frames)
	data := a.Data
	// count, then frame type bytes at known positions.
	if data[0] != 0 || data[1] != 5 {
		t.Fatalf("frame count = % x", data[:2])
	}
	if data[2] != 5 {
		t.Errorf("same_frame type = %d, want 5", data[2])
	}
	if data[3] != 64+3 || data[4] != byte(VTInteger) {
		t.Errorf("same_locals_1_stack_item = % x", data[3:5])
	}
	if data[5] != 252 || data[6] != 0 || data[7] != 10 || data[8] != byte(VTInteger) {
		t.Errorf("append frame = % x", data[5:9])
	}
	if data[9] != 250 || data[10] != 0 || data[11] != 9 {
		t.Errorf("chop frame = % x", data[9:12])
	}
	if data[12] != 255 {
		t.Errorf("full frame type = %d", data[12])
	}
}

func TestParseMethodDescriptor(t *testing.T) {
	params, ret, err := ParseMethodDescriptor("(I[JLjava/lang/String;[[Ljava/lang/Object;D)Z")
	if err != nil {
		t.Fatalf("ParseMethodDescriptor: %v", err)
	}
	want := []string{"I", "[J", "Ljava/lang/String;", "[[Ljava/lang/Object;", "D"}
	if strings.Join(params, ",") != strings.Join(want, ",") || ret != "Z" {
		t.Errorf("params = %v ret = %s", params, ret)
	}
	if n, _ := ArgWords("(IJD)V"); n != 5 {
		t.Errorf("ArgWords = %d, want 5", n)
	}
	for _, bad := range []string{"", "I", "(I", "(Q)V", "(Ljava/lang/String)V"} {
		if _, _, err := ParseMethodDescriptor(bad); err == nil {
			t.Errorf("%q should not parse", bad)
		}
	}
}
