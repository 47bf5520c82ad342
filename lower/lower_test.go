package lower

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/model"
)

var sample = model.Class("demo.Sample")

func newUnit(t *testing.T, methods ...model.MethodDef) *Unit {
	t.Helper()
	b := model.NewClass(sample.Name)
	for _, m := range methods {
		b.Method(m)
	}
	decl, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return &Unit{Decl: decl, Pool: classfile.NewConstantPool()}
}

func static(name string) *model.MethodBuilder {
	return model.NewMethod(name).Modifiers(model.ModPublic | model.ModStatic)
}

func lowerOne(t *testing.T, m model.MethodDef) (*classfile.CodeAttribute, *Unit) {
	t.Helper()
	u := newUnit(t, m)
	attr, err := Lower(u, m)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	return attr, u
}

func decode(t *testing.T, code []byte) []classfile.Instruction {
	t.Helper()
	insns, err := classfile.Instructions(code)
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	return insns
}

func opcodes(t *testing.T, code []byte) []classfile.Opcode {
	t.Helper()
	var ops []classfile.Opcode
	for _, in := range decode(t, code) {
		ops = append(ops, in.Op)
	}
	return ops
}

func count(ops []classfile.Opcode, op classfile.Opcode) int {
	n := 0
	for _, o := range ops {
		if o == op {
			n++
		}
	}
	return n
}

func find(t *testing.T, insns []classfile.Instruction, op classfile.Opcode) classfile.Instruction {
	t.Helper()
	for _, in := range insns {
		if in.Op == op {
			return in
		}
	}
	t.Fatalf("no %s in method body", op)
	return classfile.Instruction{}
}

func TestMaxOfTwo(t *testing.T) {
	a, b := model.Param("a", model.Int), model.Param("b", model.Int)
	m := static("max").Param("a", model.Int).Param("b", model.Int).Returns(model.Int).Body(
		model.If{Cond: model.Gt(a, b), Then: model.Ret(a)},
		model.Ret(b),
	).MustBuild()

	attr, _ := lowerOne(t, m)
	want := []classfile.Opcode{
		classfile.OpIload0, classfile.OpIload1, classfile.OpIfIcmple,
		classfile.OpIload0, classfile.OpIreturn,
		classfile.OpIload1, classfile.OpIreturn,
	}
	if got := opcodes(t, attr.Code); !slices.Equal(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
	if attr.MaxStack != 2 || attr.MaxLocals != 2 {
		t.Errorf("max stack/locals = %d/%d, want 2/2", attr.MaxStack, attr.MaxLocals)
	}
	if len(attr.Attributes) != 1 {
		t.Errorf("got %d code attributes, want a StackMapTable", len(attr.Attributes))
	}
}

func TestLocalSlots(t *testing.T) {
	m := static("f").Param("a", model.Long).MustBuild()
	mc := NewMethodContext(newUnit(t, m), m)

	x, err := mc.DeclareLocal("x", model.Double)
	if err != nil || x.Slot != 2 {
		t.Fatalf("x = %+v, %v; want slot 2", x, err)
	}
	mc.PushScope()
	y, _ := mc.DeclareLocal("y", model.Int)
	if y.Slot != 4 {
		t.Errorf("y slot = %d, want 4", y.Slot)
	}
	if _, err := mc.DeclareLocal("x", model.Int); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("shadowing x: err = %v, want ErrDuplicateName", err)
	}
	mc.PopScope()
	z, _ := mc.DeclareLocal("z", model.Int)
	if z.Slot != 4 {
		t.Errorf("z slot = %d, want 4 (reused after scope)", z.Slot)
	}
	if _, ok := mc.Lookup("y"); ok {
		t.Error("y still visible after its scope closed")
	}
	if _, err := mc.DeclareLocal("a", model.Int); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("redeclaring parameter: err = %v, want ErrDuplicateName", err)
	}
	if _, err := mc.DeclareLocal("v", model.Void); !errors.Is(err, ErrVoidValue) {
		t.Errorf("void local: err = %v, want ErrVoidValue", err)
	}
	if got := mc.MaxLocals(); got != 5 {
		t.Errorf("MaxLocals = %d, want 5", got)
	}
	if a, b := mc.FreshName("tmp"), mc.FreshName("tmp"); a == b {
		t.Errorf("FreshName returned %q twice", a)
	}
}

func TestInstanceReceiverSlot(t *testing.T) {
	m := model.NewMethod("f").Param("a", model.Int).MustBuild()
	mc := NewMethodContext(newUnit(t, m), m)
	a, ok := mc.Param("a")
	if !ok || a.Slot != 1 {
		t.Errorf("a = %+v, want slot 1 after the receiver", a)
	}
}

func TestShortCircuit(t *testing.T) {
	a, b := model.Param("a", model.Int), model.Param("b", model.Int)
	zero := model.IntConst(0)
	tests := []struct {
		name string
		cond model.Expr
		want []classfile.Opcode
	}{
		{
			name: "and",
			cond: model.And{Left: model.Gt(a, zero), Right: model.Gt(b, zero)},
			want: []classfile.Opcode{
				classfile.OpIload0, classfile.OpIfle, classfile.OpIload1, classfile.OpIfle,
				classfile.OpIconst1, classfile.OpGoto, classfile.OpIconst0, classfile.OpIreturn,
			},
		},
		{
			name: "or",
			cond: model.Or{Left: model.Gt(a, zero), Right: model.Gt(b, zero)},
			want: []classfile.Opcode{
				classfile.OpIload0, classfile.OpIfgt, classfile.OpIload1, classfile.OpIfle,
				classfile.OpIconst1, classfile.OpGoto, classfile.OpIconst0, classfile.OpIreturn,
			},
		},
		{
			name: "not pushed down",
			cond: model.Not(model.Lt(a, b)),
			want: []classfile.Opcode{
				classfile.OpIload0, classfile.OpIload1, classfile.OpIfIcmplt,
				classfile.OpIconst1, classfile.OpGoto, classfile.OpIconst0, classfile.OpIreturn,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := static("f").Param("a", model.Int).Param("b", model.Int).Returns(model.Boolean).
				Body(model.Ret(tt.cond)).MustBuild()
			attr, _ := lowerOne(t, m)
			if got := opcodes(t, attr.Code); !slices.Equal(got, tt.want) {
				t.Errorf("opcodes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrSkipsRightOperand(t *testing.T) {
	a := model.Param("a", model.Int)
	cond := model.Or{Left: model.Gt(a, model.IntConst(0)), Right: model.Lt(a, model.IntConst(-5))}
	m := static("f").Param("a", model.Int).Returns(model.Boolean).Body(model.Ret(cond)).MustBuild()
	attr, _ := lowerOne(t, m)
	insns := decode(t, attr.Code)
	first := find(t, insns, classfile.OpIfgt)
	// The left operand's success branch lands on the true constant, past
	// the evaluation of the right operand.
	var target classfile.Instruction
	for _, in := range insns {
		if in.Offset == first.Operand {
			target = in
		}
	}
	if target.Op != classfile.OpIconst1 {
		t.Errorf("ifgt lands on %s, want iconst_1", target.Op)
	}
}

func switchMethod(keys []int, opts Options) (*classfile.CodeAttribute, error) {
	var cases []model.StmtCase
	for _, k := range keys {
		cases = append(cases, model.StmtCase{Keys: []model.Expr{model.IntConst(k)}, Body: model.Ret(model.IntConst(k))})
	}
	m := static("f").Param("x", model.Int).Returns(model.Int).Body(
		model.Switch{Subject: model.Param("x", model.Int), Cases: cases, Default: model.Ret(model.IntConst(-1))},
	).MustBuild()
	decl := model.NewClass(sample.Name).Method(m).MustBuild()
	return Lower(&Unit{Decl: decl, Pool: classfile.NewConstantPool(), Options: opts}, m)
}

func TestSwitchDensity(t *testing.T) {
	tests := []struct {
		name string
		keys []int
		opts Options
		want classfile.Opcode
	}{
		{"dense", []int{0, 1, 2, 3, 4}, Options{}, classfile.OpTableswitch},
		{"sparse", []int{0, 100, 10000}, Options{}, classfile.OpLookupswitch},
		{"single", []int{7}, Options{}, classfile.OpTableswitch},
		{"threshold raised", []int{0, 1, 3}, Options{SwitchDensity: 0.9}, classfile.OpLookupswitch},
		{"threshold default", []int{0, 1, 3}, Options{}, classfile.OpTableswitch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr, err := switchMethod(tt.keys, tt.opts)
			if err != nil {
				t.Fatalf("Lower: %v", err)
			}
			ops := opcodes(t, attr.Code)
			if count(ops, tt.want) != 1 {
				t.Errorf("opcodes = %v, want one %s", ops, tt.want)
			}
		})
	}
}

func TestSwitchTableTargets(t *testing.T) {
	attr, err := switchMethod([]int{0, 2}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	sw := find(t, decode(t, attr.Code), classfile.OpTableswitch)
	if !slices.Equal(sw.Keys, []int32{0, 1, 2}) {
		t.Fatalf("keys = %v, want 0..2", sw.Keys)
	}
	if sw.Targets[1] != sw.Default {
		t.Errorf("gap key 1 goes to %d, want default %d", sw.Targets[1], sw.Default)
	}
	if sw.Targets[0] == sw.Default || sw.Targets[2] == sw.Default {
		t.Error("case keys routed to default")
	}
}

func TestSwitchDuplicateKey(t *testing.T) {
	_, err := switchMethod([]int{1, 2, 1}, Options{})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("err = %v, want ErrDuplicateKey", err)
	}
}

func TestJavaHash(t *testing.T) {
	tests := []struct {
		s    string
		want int32
	}{
		{"", 0},
		{"a", 97},
		{"Aa", 2112},
		{"BB", 2112},
		{"other", 106069776},
	}
	for _, tt := range tests {
		if got := javaHash(tt.s); got != tt.want {
			t.Errorf("javaHash(%q) = %d, want %d", tt.s, got, tt.want)
		}
	}
}

func TestStringSwitchCollision(t *testing.T) {
	s := model.Param("s", model.TypeString)
	m := static("f").Param("s", model.TypeString).Returns(model.Int).Body(
		model.Ret(model.SwitchExpr{
			Subject: s,
			Typ:     model.Int,
			Cases: []model.ExprCase{
				{Keys: []model.Expr{model.StringConst("Aa")}, Value: model.IntConst(1)},
				{Keys: []model.Expr{model.StringConst("BB")}, Value: model.IntConst(2)},
			},
			Default: model.IntConst(0),
		}),
	).MustBuild()
	attr, _ := lowerOne(t, m)
	insns := decode(t, attr.Code)
	sw := find(t, insns, classfile.OpTableswitch)
	if len(sw.Keys) != 1 || sw.Keys[0] != 2112 {
		t.Errorf("hash keys = %v, want the single shared hash", sw.Keys)
	}
	ops := opcodes(t, attr.Code)
	if n := count(ops, classfile.OpInvokevirtual); n != 3 {
		t.Errorf("got %d virtual calls, want hashCode plus two equals", n)
	}
}

func TestSwitchExpression(t *testing.T) {
	x := model.Param("x", model.Int)
	expr := model.SwitchExpr{
		Subject: x,
		Typ:     model.TypeString,
		Cases: []model.ExprCase{
			{Keys: []model.Expr{model.IntConst(10)}, Value: model.StringConst("ten")},
			{Keys: []model.Expr{model.IntConst(20)}, Value: model.StringConst("twenty")},
		},
		Default: model.StringConst("other"),
	}
	m := static("name").Param("x", model.Int).Returns(model.TypeString).Body(model.Ret(expr)).MustBuild()
	attr, _ := lowerOne(t, m)
	ops := opcodes(t, attr.Code)
	if ops[len(ops)-1] != classfile.OpAreturn || count(ops, classfile.OpAreturn) != 1 {
		t.Errorf("opcodes = %v, want a single areturn of the selected value", ops)
	}

	expr.Default = nil
	m = static("name").Param("x", model.Int).Returns(model.TypeString).Body(model.Ret(expr)).MustBuild()
	if _, err := Lower(newUnit(t, m), m); !errors.Is(err, ErrUnsupported) {
		t.Errorf("switch expression without default: err = %v, want ErrUnsupported", err)
	}
}

func TestYieldBlock(t *testing.T) {
	x := model.Param("x", model.Int)
	arm := model.YieldBlock{Typ: model.Int, Body: model.Block(
		model.Define{Var: model.Local("y", model.Int), Value: x},
		model.Ret(model.MathOp{Op: model.MathMul, Left: model.Local("y", model.Int), Right: model.IntConst(2)}),
	)}
	expr := model.SwitchExpr{
		Subject: x, Typ: model.Int,
		Cases:   []model.ExprCase{{Keys: []model.Expr{model.IntConst(1)}, Value: arm}},
		Default: model.IntConst(0),
	}
	m := static("f").Param("x", model.Int).Returns(model.Int).Body(model.Ret(expr)).MustBuild()
	attr, _ := lowerOne(t, m)
	if n := count(opcodes(t, attr.Code), classfile.OpIreturn); n != 1 {
		t.Errorf("got %d ireturn, want the yield to jump to the single method return", n)
	}

	bad := model.YieldBlock{Typ: model.Int, Body: model.Try{
		Body:    model.Ret(model.IntConst(1)),
		Finally: model.Do(model.Method(sample, "h", model.Void).CallStatic()),
	}}
	expr.Cases[0].Value = bad
	m = static("f").Param("x", model.Int).Returns(model.Int).Body(model.Ret(expr)).MustBuild()
	if _, err := Lower(newUnit(t, m), m); !errors.Is(err, ErrUnsupported) {
		t.Errorf("try inside yield block: err = %v, want ErrUnsupported", err)
	}
}

func TestWhileTestsAtBottom(t *testing.T) {
	i, s, n := model.Local("i", model.Int), model.Local("s", model.Int), model.Param("n", model.Int)
	m := static("sum").Param("n", model.Int).Returns(model.Int).Body(
		model.Define{Var: i, Value: model.IntConst(0)},
		model.Define{Var: s, Value: model.IntConst(0)},
		model.While{Cond: model.Lt(i, n), Body: model.Block(
			model.Assign{Target: s, Value: model.MathOp{Op: model.MathAdd, Left: s, Right: i}},
			model.Assign{Target: i, Value: model.MathOp{Op: model.MathAdd, Left: i, Right: model.IntConst(1)}},
		)},
		model.Ret(s),
	).MustBuild()
	attr, _ := lowerOne(t, m)
	insns := decode(t, attr.Code)
	if insns[4].Op != classfile.OpGoto {
		t.Fatalf("loop entry is %s, want goto", insns[4].Op)
	}
	back := find(t, insns, classfile.OpIfIcmplt)
	if back.Operand != insns[5].Offset {
		t.Errorf("loop branch targets %d, want body start %d", back.Operand, insns[5].Offset)
	}
	if n := count(opcodes(t, attr.Code), classfile.OpGoto); n != 1 {
		t.Errorf("got %d gotos, want 1", n)
	}
}

func TestInfiniteLoopNeedsNoReturn(t *testing.T) {
	m := static("f").Returns(model.Int).Body(
		model.While{Cond: model.BoolConst(true), Body: model.Ret(model.IntConst(1))},
	).MustBuild()
	if _, err := Lower(newUnit(t, m), m); err != nil {
		t.Fatalf("Lower: %v", err)
	}
}

func TestTryCatch(t *testing.T) {
	g := model.Method(sample, "g", model.Int)
	rte := model.TypeRuntimeException
	m := static("f").Returns(model.Int).Body(model.Try{
		Body: model.Ret(g.CallStatic()),
		Catches: []model.Catch{
			{Exception: rte, Name: "e", Body: model.Ret(model.IntConst(-1))},
		},
	}).MustBuild()

	attr, u := lowerOne(t, m)
	want := []classfile.ExceptionEntry{{StartPC: 0, EndPC: 4, HandlerPC: 4, CatchType: u.Pool.Class("java/lang/RuntimeException")}}
	if !slices.Equal(attr.Exceptions, want) {
		t.Errorf("exceptions = %+v, want %+v", attr.Exceptions, want)
	}
	wantOps := []classfile.Opcode{
		classfile.OpInvokestatic, classfile.OpIreturn,
		classfile.OpAstore0, classfile.OpIconstM1, classfile.OpIreturn,
	}
	if got := opcodes(t, attr.Code); !slices.Equal(got, wantOps) {
		t.Errorf("opcodes = %v, want %v", got, wantOps)
	}
}

func TestCatchOrder(t *testing.T) {
	g := model.Method(sample, "g", model.Void)
	m := static("f").Body(model.Try{
		Body: model.Do(g.CallStatic()),
		Catches: []model.Catch{
			{Exception: model.Class("java.lang.IllegalStateException"), Body: model.Do(g.CallStatic())},
			{Exception: model.TypeRuntimeException, Body: model.Do(g.CallStatic())},
		},
	}).MustBuild()
	attr, u := lowerOne(t, m)
	if len(attr.Exceptions) != 2 {
		t.Fatalf("exceptions = %+v, want 2", attr.Exceptions)
	}
	first, _ := u.Pool.ClassAt(attr.Exceptions[0].CatchType)
	second, _ := u.Pool.ClassAt(attr.Exceptions[1].CatchType)
	if first != "java/lang/IllegalStateException" || second != "java/lang/RuntimeException" {
		t.Errorf("handler order = %s, %s", first, second)
	}
}

func TestTryFinally(t *testing.T) {
	g := model.Method(sample, "g", model.Void)
	h := model.Method(sample, "h", model.Void)
	m := static("f").Body(model.Try{
		Body:    model.Do(g.CallStatic()),
		Finally: model.Do(h.CallStatic()),
	}).MustBuild()

	attr, _ := lowerOne(t, m)
	want := []classfile.Opcode{
		classfile.OpInvokestatic,
		classfile.OpInvokestatic, classfile.OpGoto,
		classfile.OpAstore0, classfile.OpInvokestatic, classfile.OpAload0, classfile.OpAthrow,
		classfile.OpReturn,
	}
	if got := opcodes(t, attr.Code); !slices.Equal(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
	wantEx := []classfile.ExceptionEntry{{StartPC: 0, EndPC: 3, HandlerPC: 9}}
	if !slices.Equal(attr.Exceptions, wantEx) {
		t.Errorf("exceptions = %+v, want %+v", attr.Exceptions, wantEx)
	}
}

func TestFinallyRunsBeforeReturn(t *testing.T) {
	h := model.Method(sample, "h", model.Void)
	m := static("f").Returns(model.Int).Body(model.Try{
		Body:    model.Ret(model.IntConst(1)),
		Finally: model.Do(h.CallStatic()),
	}).MustBuild()

	attr, _ := lowerOne(t, m)
	want := []classfile.Opcode{
		classfile.OpIconst1, classfile.OpIstore0,
		classfile.OpInvokestatic, classfile.OpIload0, classfile.OpIreturn,
		classfile.OpAstore0, classfile.OpInvokestatic, classfile.OpAload0, classfile.OpAthrow,
	}
	if got := opcodes(t, attr.Code); !slices.Equal(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
	// The inlined finally is not protected by its own handler.
	wantEx := []classfile.ExceptionEntry{{StartPC: 0, EndPC: 2, HandlerPC: 7}}
	if !slices.Equal(attr.Exceptions, wantEx) {
		t.Errorf("exceptions = %+v, want %+v", attr.Exceptions, wantEx)
	}
}

func TestSynchronizedReleasesOnThrow(t *testing.T) {
	lock := model.Param("lock", model.TypeObject)
	m := static("f").Param("lock", model.TypeObject).Body(model.Synchronized{
		Monitor: lock,
		Body:    model.Throw{Value: model.NewInstance{Typ: model.TypeRuntimeException}},
	}).MustBuild()

	attr, _ := lowerOne(t, m)
	ops := opcodes(t, attr.Code)
	if n := count(ops, classfile.OpMonitorenter); n != 1 {
		t.Errorf("got %d monitorenter, want 1", n)
	}
	if n := count(ops, classfile.OpMonitorexit); n != 1 {
		t.Errorf("got %d monitorexit, want exactly one on the exceptional path", n)
	}
	wantEx := []classfile.ExceptionEntry{{StartPC: 4, EndPC: 12, HandlerPC: 12}}
	if !slices.Equal(attr.Exceptions, wantEx) {
		t.Errorf("exceptions = %+v, want %+v", attr.Exceptions, wantEx)
	}
	if ops[len(ops)-1] != classfile.OpAthrow {
		t.Errorf("handler does not rethrow: %v", ops)
	}
}

func TestSynchronizedExits(t *testing.T) {
	lock := model.Param("lock", model.TypeObject)
	g := model.Method(sample, "g", model.Void)
	tests := []struct {
		name string
		body model.Stmt
		ret  model.TypeDef
	}{
		{"normal", model.Do(g.CallStatic()), model.Void},
		{"return", model.Ret(model.IntConst(3)), model.Int},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := static("f").Param("lock", model.TypeObject).Returns(tt.ret).
				Body(model.Synchronized{Monitor: lock, Body: tt.body})
			if !model.IsVoid(tt.ret) {
				b.Body(model.Ret(model.IntConst(0)))
			}
			attr, _ := lowerOne(t, b.MustBuild())
			if n := count(opcodes(t, attr.Code), classfile.OpMonitorexit); n != 2 {
				t.Errorf("got %d monitorexit, want one inline and one in the handler", n)
			}
		})
	}
}

func TestCoercions(t *testing.T) {
	tests := []struct {
		name  string
		param model.TypeDef
		ret   model.TypeDef
		want  classfile.Opcode
	}{
		{"box", model.Int, model.TypeObject, classfile.OpInvokestatic},
		{"unbox", model.TypeIntegerWrapper, model.Int, classfile.OpInvokevirtual},
		{"widen", model.Int, model.Long, classfile.OpI2l},
		{"downcast", model.TypeObject, model.TypeString, classfile.OpCheckcast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := static("f").Param("x", tt.param).Returns(tt.ret).Body(model.Ret(model.Param("x", tt.param))).MustBuild()
			attr, _ := lowerOne(t, m)
			if count(opcodes(t, attr.Code), tt.want) != 1 {
				t.Errorf("opcodes = %v, want one %s", opcodes(t, attr.Code), tt.want)
			}
		})
	}
}

func TestInterfaceDispatch(t *testing.T) {
	// The reference says class; the declared kind wins.
	shape := model.Class("demo.Shape")
	iface := model.NewInterface(shape.Name).Method(model.NewMethod("area").Returns(model.Double).MustBuild()).MustBuild()
	m := static("f").Param("s", shape).Returns(model.Double).Body(
		model.Ret(model.Method(shape, "area", model.Double).Call(model.Param("s", shape))),
	).MustBuild()
	u := newUnit(t, m)
	u.Types = map[string]*model.TypeDecl{shape.Name: iface}
	attr, err := Lower(u, m)
	if err != nil {
		t.Fatal(err)
	}
	in := find(t, decode(t, attr.Code), classfile.OpInvokeinterface)
	if in.Operand2 != 1 {
		t.Errorf("invokeinterface count = %d, want 1", in.Operand2)
	}
}

func TestLowerErrors(t *testing.T) {
	tests := []struct {
		name string
		m    model.MethodDef
		want error
		node string
	}{
		{
			name: "narrowing",
			m:    static("f").Param("x", model.Long).Returns(model.Int).Body(model.Ret(model.Param("x", model.Long))).MustBuild(),
			want: ErrNarrowing,
			node: "ParamRef",
		},
		{
			name: "missing return",
			m:    static("f").Returns(model.Int).MustBuild(),
			want: ErrMissingReturn,
		},
		{
			name: "unresolved local",
			m:    static("f").Returns(model.Int).Body(model.Ret(model.Local("nope", model.Int))).MustBuild(),
			want: ErrUnresolved,
			node: "LocalVar",
		},
		{
			name: "duplicate local",
			m: static("f").Body(
				model.Define{Var: model.Local("x", model.Int), Value: model.IntConst(1)},
				model.Define{Var: model.Local("x", model.Int), Value: model.IntConst(2)},
			).MustBuild(),
			want: ErrDuplicateName,
			node: "Define",
		},
		{
			name: "void value",
			m: static("f").Body(
				model.Define{Var: model.Local("x", model.Int), Value: model.Method(sample, "g", model.Void).CallStatic()},
			).MustBuild(),
			want: ErrVoidValue,
		},
		{
			name: "boolean to int",
			m:    static("f").Returns(model.Int).Body(model.Ret(model.BoolConst(true))).MustBuild(),
			want: ErrTypeMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Lower(newUnit(t, tt.m), tt.m)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var le *Error
			if !errors.As(err, &le) {
				t.Fatalf("err %T is not *Error", err)
			}
			if le.Type != sample.Name || le.Member != tt.m.Name+tt.m.Descriptor() {
				t.Errorf("attributed to %s.%s", le.Type, le.Member)
			}
			if tt.node != "" && le.Node != tt.node {
				t.Errorf("node = %q, want %q", le.Node, tt.node)
			}
		})
	}
}

func TestLowerIsDeterministic(t *testing.T) {
	s := model.Param("s", model.TypeString)
	m := static("f").Param("s", model.TypeString).Returns(model.Int).Body(
		model.Switch{
			Subject: s,
			Cases: []model.StmtCase{
				{Keys: []model.Expr{model.StringConst("a"), model.StringConst("b")}, Body: model.Ret(model.IntConst(1))},
				{Keys: []model.Expr{model.StringConst("c")}, Body: model.Ret(model.IntConst(2))},
			},
		},
		model.Ret(model.IntConst(0)),
	).MustBuild()
	first, _ := lowerOne(t, m)
	second, _ := lowerOne(t, m)
	if !bytes.Equal(first.Code, second.Code) || !slices.Equal(first.Exceptions, second.Exceptions) {
		t.Error("lowering the same method twice produced different code")
	}
}
