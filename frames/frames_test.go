package frames

import (
	"errors"
	"slices"
	"testing"

	"github.com/chazu/sourcegen/classfile"
)

type fixture struct {
	code *classfile.Code
	pool *classfile.ConstantPool
}

func newFixture() *fixture {
	return &fixture{code: classfile.NewCode(), pool: classfile.NewConstantPool()}
}

func (f *fixture) pos(t *testing.T, l *classfile.Label) int {
	t.Helper()
	p, ok := f.code.Position(l)
	if !ok {
		t.Fatal("label not marked")
	}
	return p
}

func (f *fixture) method(t *testing.T, owner, desc string, static bool) *Method {
	t.Helper()
	code, handlers, err := f.code.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return &Method{Owner: owner, Desc: desc, Static: static, Code: code, Handlers: handlers, Pool: f.pool}
}

func analyze(t *testing.T, m *Method) *Result {
	t.Helper()
	r, err := Analyze(m, NewHierarchy())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return r
}

func vt(tag classfile.VerificationTag, class string) classfile.VerificationType {
	return classfile.VerificationType{Tag: tag, Class: class}
}

var (
	vInt  = vt(classfile.VTInteger, "")
	vLong = vt(classfile.VTLong, "")
)

func frameAt(t *testing.T, r *Result, offset int) classfile.StackMapFrame {
	t.Helper()
	for _, f := range r.Frames {
		if f.Offset == offset {
			return f
		}
	}
	t.Fatalf("no frame at offset %d; frames %+v", offset, r.Frames)
	return classfile.StackMapFrame{}
}

func TestMaxFrames(t *testing.T) {
	f := newFixture()
	c := f.code
	other := c.NewLabel()
	c.EmitLocal(classfile.OpIload, 0)
	c.EmitLocal(classfile.OpIload, 1)
	c.EmitJump(classfile.OpIfIcmplt, other)
	c.EmitLocal(classfile.OpIload, 0)
	c.Emit(classfile.OpIreturn)
	c.Mark(other)
	c.EmitLocal(classfile.OpIload, 1)
	c.Emit(classfile.OpIreturn)

	r := analyze(t, f.method(t, "Max", "(II)I", true))
	if r.MaxStack != 2 || r.MaxLocals != 2 {
		t.Errorf("max stack/locals = %d/%d, want 2/2", r.MaxStack, r.MaxLocals)
	}
	if len(r.Frames) != 1 {
		t.Fatalf("frames = %+v, want one", r.Frames)
	}
	got := frameAt(t, r, f.pos(t, other))
	if !slices.Equal(got.Locals, []classfile.VerificationType{vInt, vInt}) || len(got.Stack) != 0 {
		t.Errorf("frame = %+v", got)
	}
	if !slices.Equal(r.Initial, []classfile.VerificationType{vInt, vInt}) {
		t.Errorf("initial = %+v", r.Initial)
	}
}

func TestReferenceMerge(t *testing.T) {
	f := newFixture()
	c := f.code
	elseL, join := c.NewLabel(), c.NewLabel()
	construct := func(class string) {
		c.EmitU16(classfile.OpNew, f.pool.Class(class))
		c.Emit(classfile.OpDup)
		c.EmitU16(classfile.OpInvokespecial, f.pool.Methodref(class, "<init>", "()V", false))
	}
	c.EmitLocal(classfile.OpIload, 0)
	c.EmitJump(classfile.OpIfeq, elseL)
	construct("java/lang/IllegalArgumentException")
	c.EmitJump(classfile.OpGoto, join)
	c.Mark(elseL)
	construct("java/lang/IllegalStateException")
	c.Mark(join)
	c.Emit(classfile.OpAreturn)

	r := analyze(t, f.method(t, "Pick", "(Z)Ljava/lang/Object;", true))
	got := frameAt(t, r, f.pos(t, join))
	want := []classfile.VerificationType{vt(classfile.VTObject, "java/lang/RuntimeException")}
	if !slices.Equal(got.Stack, want) {
		t.Errorf("join stack = %+v, want %+v", got.Stack, want)
	}
	if r.MaxStack != 2 {
		t.Errorf("max stack = %d, want 2", r.MaxStack)
	}
}

func TestStackMismatch(t *testing.T) {
	f := newFixture()
	c := f.code
	elseL, join := c.NewLabel(), c.NewLabel()
	c.EmitLocal(classfile.OpIload, 0)
	c.EmitJump(classfile.OpIfeq, elseL)
	c.Emit(classfile.OpIconst1)
	c.EmitJump(classfile.OpGoto, join)
	c.Mark(elseL)
	c.Emit(classfile.OpFconst0)
	c.Mark(join)
	c.Emit(classfile.OpPop)
	c.Emit(classfile.OpReturn)

	_, err := Analyze(f.method(t, "Bad", "(Z)V", true), NewHierarchy())
	if !errors.Is(err, ErrFrameMismatch) {
		t.Fatalf("err = %v, want ErrFrameMismatch", err)
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Offset != f.pos(t, join) {
		t.Errorf("error = %#v, want offset %d", fe, f.pos(t, join))
	}
}

func TestConflictingLocalLoad(t *testing.T) {
	f := newFixture()
	c := f.code
	elseL, join := c.NewLabel(), c.NewLabel()
	c.EmitLocal(classfile.OpIload, 0)
	c.EmitJump(classfile.OpIfeq, elseL)
	c.Emit(classfile.OpIconst1)
	c.EmitLocal(classfile.OpIstore, 1)
	c.EmitJump(classfile.OpGoto, join)
	c.Mark(elseL)
	c.Emit(classfile.OpFconst0)
	c.EmitLocal(classfile.OpFstore, 1)
	c.Mark(join)
	c.EmitLocal(classfile.OpIload, 1)
	c.Emit(classfile.OpIreturn)

	if _, err := Analyze(f.method(t, "Bad", "(Z)I", true), NewHierarchy()); !errors.Is(err, ErrFrameMismatch) {
		t.Fatalf("err = %v, want ErrFrameMismatch", err)
	}
}

func TestConflictingLocalUnused(t *testing.T) {
	f := newFixture()
	c := f.code
	elseL, join := c.NewLabel(), c.NewLabel()
	c.EmitLocal(classfile.OpIload, 0)
	c.EmitJump(classfile.OpIfeq, elseL)
	c.Emit(classfile.OpIconst1)
	c.EmitLocal(classfile.OpIstore, 1)
	c.EmitJump(classfile.OpGoto, join)
	c.Mark(elseL)
	c.Emit(classfile.OpFconst0)
	c.EmitLocal(classfile.OpFstore, 1)
	c.Mark(join)
	c.Emit(classfile.OpReturn)

	r := analyze(t, f.method(t, "Ok", "(Z)V", true))
	got := frameAt(t, r, f.pos(t, join))
	if !slices.Equal(got.Locals, []classfile.VerificationType{vInt}) {
		t.Errorf("join locals = %+v, want the conflicting slot dropped", got.Locals)
	}
	if r.MaxLocals != 2 {
		t.Errorf("max locals = %d, want 2", r.MaxLocals)
	}
}

func TestDeadCodeRewritten(t *testing.T) {
	f := newFixture()
	c := f.code
	c.Emit(classfile.OpReturn)
	c.Emit(classfile.OpIconst0)
	c.Emit(classfile.OpPop)
	c.Emit(classfile.OpReturn)

	r := analyze(t, f.method(t, "Dead", "()V", true))
	want := []byte{byte(classfile.OpReturn), byte(classfile.OpNop), byte(classfile.OpNop), byte(classfile.OpAthrow)}
	if !slices.Equal(r.Code, want) {
		t.Errorf("code = % x, want % x", r.Code, want)
	}
	got := frameAt(t, r, 1)
	throwable := vt(classfile.VTObject, "java/lang/Throwable")
	if len(got.Locals) != 0 || !slices.Equal(got.Stack, []classfile.VerificationType{throwable}) {
		t.Errorf("dead frame = %+v", got)
	}
	if r.MaxStack != 1 {
		t.Errorf("max stack = %d, want 1", r.MaxStack)
	}
}

func TestHandlerFrameAndSplit(t *testing.T) {
	f := newFixture()
	c := f.code
	start, end, handler, done := c.NewLabel(), c.NewLabel(), c.NewLabel(), c.NewLabel()
	run := f.pool.Methodref("com/example/T", "run", "()V", false)
	c.Mark(start)
	c.EmitLocal(classfile.OpAload, 0)
	c.EmitU16(classfile.OpInvokevirtual, run)
	c.EmitJump(classfile.OpGoto, done)
	c.EmitLocal(classfile.OpAload, 0)
	c.EmitU16(classfile.OpInvokevirtual, run)
	c.Mark(end)
	c.Mark(handler)
	c.EmitLocal(classfile.OpAstore, 1)
	c.Mark(done)
	c.Emit(classfile.OpReturn)
	c.AddHandler(start, end, handler, f.pool.Class("java/lang/IllegalStateException"))

	r := analyze(t, f.method(t, "com/example/T", "()V", false))
	hf := frameAt(t, r, f.pos(t, handler))
	self := vt(classfile.VTObject, "com/example/T")
	if !slices.Equal(hf.Locals, []classfile.VerificationType{self}) ||
		!slices.Equal(hf.Stack, []classfile.VerificationType{vt(classfile.VTObject, "java/lang/IllegalStateException")}) {
		t.Errorf("handler frame = %+v", hf)
	}
	if len(r.Handlers) != 1 || r.Handlers[0].StartPC != 0 || r.Handlers[0].EndPC != 7 {
		t.Errorf("handlers = %+v, want one entry covering [0, 7)", r.Handlers)
	}
	if r.Code[10] != byte(classfile.OpAthrow) {
		t.Errorf("dead call not replaced: % x", r.Code)
	}
	if r.MaxLocals != 2 {
		t.Errorf("max locals = %d, want 2", r.MaxLocals)
	}
}

func TestConstructor(t *testing.T) {
	tests := []struct {
		name    string
		callSup bool
		wantErr bool
	}{
		{"calls super", true, false},
		{"skips super", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			c := f.code
			if tt.callSup {
				c.EmitLocal(classfile.OpAload, 0)
				c.EmitU16(classfile.OpInvokespecial, f.pool.Methodref(ObjectClass, "<init>", "()V", false))
			}
			c.Emit(classfile.OpReturn)
			m := f.method(t, "com/example/T", "()V", false)
			m.Ctor = true
			r, err := Analyze(m, NewHierarchy())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !slices.Equal(r.Initial, []classfile.VerificationType{{Tag: classfile.VTUninitializedThis}}) {
				t.Errorf("initial = %+v", r.Initial)
			}
		})
	}
}

func TestWideValues(t *testing.T) {
	f := newFixture()
	c := f.code
	c.EmitLocal(classfile.OpLload, 0)
	c.EmitLocal(classfile.OpIload, 2)
	c.Emit(classfile.OpI2l)
	c.Emit(classfile.OpLadd)
	c.Emit(classfile.OpDup2)
	c.Emit(classfile.OpLadd)
	c.Emit(classfile.OpLreturn)

	r := analyze(t, f.method(t, "W", "(JI)J", true))
	if r.MaxStack != 4 || r.MaxLocals != 3 {
		t.Errorf("max stack/locals = %d/%d, want 4/3", r.MaxStack, r.MaxLocals)
	}
	if !slices.Equal(r.Initial, []classfile.VerificationType{vLong, vInt}) {
		t.Errorf("initial = %+v", r.Initial)
	}
}

func TestFallOffEnd(t *testing.T) {
	f := newFixture()
	f.code.Emit(classfile.OpNop)
	if _, err := Analyze(f.method(t, "F", "()V", true), NewHierarchy()); !errors.Is(err, ErrFrameMismatch) {
		t.Errorf("err = %v, want ErrFrameMismatch", err)
	}
}

func TestCommonSuperClass(t *testing.T) {
	h := NewHierarchy()
	h.Declare("com/example/A", "", false)
	h.Declare("com/example/B", "com/example/A", false)
	h.Declare("com/example/C", "com/example/A", false)
	tests := []struct{ a, b, want string }{
		{"java/lang/String", "java/lang/String", "java/lang/String"},
		{"java/lang/String", "java/lang/Integer", ObjectClass},
		{"java/lang/Integer", "java/lang/Long", "java/lang/Number"},
		{"java/lang/IllegalArgumentException", "java/lang/IllegalStateException", "java/lang/RuntimeException"},
		{"java/lang/NumberFormatException", "java/lang/IllegalStateException", "java/lang/RuntimeException"},
		{"java/lang/Error", "java/io/IOException", "java/lang/Throwable"},
		{"[Ljava/lang/Integer;", "[Ljava/lang/Long;", "[Ljava/lang/Number;"},
		{"[I", "[J", ObjectClass},
		{"[I", "java/lang/String", ObjectClass},
		{"com/example/Unknown", "java/lang/String", ObjectClass},
		{"com/example/B", "com/example/C", "com/example/A"},
		{"java/util/List", "java/lang/String", ObjectClass},
	}
	for _, tt := range tests {
		if got := CommonSuperClass(h, tt.a, tt.b); got != tt.want {
			t.Errorf("CommonSuperClass(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestUnrelated(t *testing.T) {
	h := NewHierarchy()
	tests := []struct {
		a, b string
		want bool
	}{
		{"java/lang/String", "java/lang/Integer", true},
		{"java/lang/Number", "java/lang/Integer", false},
		{"java/lang/Integer", "java/lang/Number", false},
		{"com/example/Unknown", "java/lang/String", false},
		{"java/lang/String", "java/lang/CharSequence", false},
		{"java/lang/String", ObjectClass, false},
	}
	for _, tt := range tests {
		if got := Unrelated(h, tt.a, tt.b); got != tt.want {
			t.Errorf("Unrelated(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
