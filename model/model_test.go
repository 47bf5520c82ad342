package model

import (
	"errors"
	"testing"
)

func TestDescriptor(t *testing.T) {
	tests := []struct {
		typ  TypeDef
		want string
	}{
		{Int, "I"},
		{Boolean, "Z"},
		{Void, "V"},
		{Long, "J"},
		{TypeString, "Ljava/lang/String;"},
		{ArrayOf(Int), "[I"},
		{ArrayOf(ArrayOf(TypeString)), "[[Ljava/lang/String;"},
		{Generic(Interface("java.util.List"), TypeString), "Ljava/util/List;"},
		{TypeVariable{Name: "T"}, "Ljava/lang/Object;"},
		{TypeVariable{Name: "T", Bounds: []TypeDef{TypeNumber}}, "Ljava/lang/Number;"},
		{Annotated{Type: Double}, "D"},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := Descriptor(tt.typ); got != tt.want {
				t.Errorf("Descriptor(%s) = %q, want %q", tt.typ, got, tt.want)
			}
		})
	}
}

func TestSignature(t *testing.T) {
	list := Interface("java.util.List")
	tests := []struct {
		typ  TypeDef
		want string
	}{
		{Generic(list, TypeString), "Ljava/util/List<Ljava/lang/String;>;"},
		{Generic(list, Wildcard{}), "Ljava/util/List<*>;"},
		{Generic(list, Wildcard{Upper: []TypeDef{TypeNumber}}), "Ljava/util/List<+Ljava/lang/Number;>;"},
		{Generic(list, Wildcard{Lower: []TypeDef{TypeIntegerWrapper}}), "Ljava/util/List<-Ljava/lang/Integer;>;"},
		{ArrayOf(TypeVariable{Name: "T"}), "[TT;"},
	}
	for _, tt := range tests {
		if got := Signature(tt.typ); got != tt.want {
			t.Errorf("Signature(%s) = %q, want %q", tt.typ, got, tt.want)
		}
	}

	params := []TypeVariable{{Name: "T"}, {Name: "N", Bounds: []TypeDef{TypeNumber, Interface("java.lang.Comparable")}}}
	want := "<T:Ljava/lang/Object;N:Ljava/lang/Number;:Ljava/lang/Comparable;>"
	if got := TypeParamsSignature(params); got != want {
		t.Errorf("TypeParamsSignature = %q, want %q", got, want)
	}
}

func TestWidening(t *testing.T) {
	tests := []struct {
		from, to Primitive
		want     bool
	}{
		{Int, Long, true},
		{Int, Double, true},
		{Long, Float, true},
		{Byte, Short, true},
		{Byte, Char, false},
		{Char, Int, true},
		{Char, Short, false},
		{Long, Int, false},
		{Double, Float, false},
		{Boolean, Int, false},
		{Int, Int, true},
	}
	for _, tt := range tests {
		if got := IsWidening(tt.from, tt.to); got != tt.want {
			t.Errorf("IsWidening(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestSameType(t *testing.T) {
	list := Interface("java.util.List")
	if !SameType(Generic(list, TypeString), Generic(list, TypeString)) {
		t.Error("equal parameterized types should be the same")
	}
	if SameType(Generic(list, TypeString), Generic(list, TypeObject)) {
		t.Error("different type arguments should differ")
	}
	if !SameType(Annotated{Type: Int}, Int) || !SameType(Int, Annotated{Type: Int}) {
		t.Error("annotations should not affect identity")
	}
	if SameType(ArrayOf(Int), ArrayOf(Long)) {
		t.Error("int[] and long[] should differ")
	}
}

func TestMathOpType(t *testing.T) {
	tests := []struct {
		name string
		e    Expr
		want TypeDef
	}{
		{"int+long", MathOp{Op: MathAdd, Left: IntConst(1), Right: LongConst(2)}, Long},
		{"byte*byte", MathOp{Op: MathMul, Left: ByteConst(1), Right: ByteConst(2)}, Int},
		{"long<<int", MathOp{Op: MathShl, Left: LongConst(1), Right: IntConst(2)}, Long},
		{"bool&bool", MathOp{Op: MathAnd, Left: True, Right: False}, Boolean},
		{"Integer+int", MathOp{Op: MathAdd, Left: Local("x", TypeIntegerWrapper), Right: IntConst(1)}, Int},
		{"neg short", Neg{Value: ShortConst(3)}, Int},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Type(); !SameType(got, tt.want) {
				t.Errorf("type = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuildClass(t *testing.T) {
	b := NewClass("com.example.Point")
	d, err := b.
		Modifiers(ModPublic).
		Field(FieldDef{Name: "x", Type: Int, Modifiers: ModPrivate}).
		Property(PropertyDef{Name: "label", Type: TypeString}).
		Method(NewMethod("getX").Modifiers(ModPublic).Returns(Int).
			Body(Ret(FieldRef{Instance: This{Typ: b.Type()}, Owner: b.Type(), Name: "x", Typ: Int})).
			MustBuild()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if d.Name() != "com.example.Point" || d.Kind() != KindClass {
		t.Errorf("unexpected decl %s (%s)", d.Name(), d.Kind())
	}
	if !SameType(d.Superclass(), TypeObject) {
		t.Errorf("superclass = %s, want Object", d.Superclass())
	}
	if _, ok := d.Field("label"); !ok {
		t.Error("property backing field should be visible through Field")
	}

	// Accessors hand out copies.
	fields := d.Fields()
	fields[0].Name = "mutated"
	if d.Fields()[0].Name != "x" {
		t.Error("Fields() exposed internal storage")
	}

	// A built declaration is frozen.
	b.Field(FieldDef{Name: "y", Type: Int})
	if !errors.Is(b.Err(), ErrInvalidDecl) {
		t.Errorf("mutation after Build: err = %v, want ErrInvalidDecl", b.Err())
	}
	if len(d.Fields()) != 1 {
		t.Error("mutation after Build changed the declaration")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*TypeDecl, error)
		want  error
		call  string
	}{
		{
			name:  "empty enum",
			build: NewEnum("com.example.Empty").Build,
			want:  ErrEmptyEnum,
			call:  "Build",
		},
		{
			name: "duplicate field",
			build: NewClass("com.example.Dup").
				Field(FieldDef{Name: "a", Type: Int}).
				Field(FieldDef{Name: "a", Type: Long}).Build,
			want: ErrDuplicateMember,
			call: "Field",
		},
		{
			name: "field clashes with property",
			build: NewClass("com.example.Dup").
				Property(PropertyDef{Name: "a", Type: Int}).
				Field(FieldDef{Name: "a", Type: Int}).Build,
			want: ErrDuplicateMember,
			call: "Field",
		},
		{
			name: "duplicate enum constant",
			build: NewEnum("com.example.Color").
				Constant("RED").Constant("RED").Build,
			want: ErrDuplicateMember,
			call: "Constant",
		},
		{
			name: "duplicate method signature",
			build: NewClass("com.example.M").
				Method(MethodDef{Name: "f", Params: []ParameterDef{{Name: "a", Type: Int}}}).
				Method(MethodDef{Name: "f", Params: []ParameterDef{{Name: "b", Type: Int}}, Returns: Long}).Build,
			want: ErrDuplicateMember,
			call: "Method",
		},
		{
			name:  "invalid type name",
			build: NewClass("com.example.9lives").Build,
			want:  ErrInvalidIdentifier,
			call:  "NewClass",
		},
		{
			name:  "reserved field name",
			build: NewClass("com.example.R").Field(FieldDef{Name: "class", Type: Int}).Build,
			want:  ErrInvalidIdentifier,
			call:  "Field",
		},
		{
			name:  "record instance field",
			build: NewRecord("com.example.R").Field(FieldDef{Name: "x", Type: Int}).Build,
			want:  ErrInvalidDecl,
			call:  "Field",
		},
		{
			name: "property accessor clash",
			build: NewClass("com.example.P").
				Property(PropertyDef{Name: "name", Type: TypeString}).
				Method(MethodDef{Name: "getName", Returns: TypeString, Body: []Stmt{Ret(Null(TypeString))}}).Build,
			want: ErrDuplicateMember,
			call: "Build",
		},
		{
			name:  "abstract method in concrete class",
			build: NewClass("com.example.C").Method(MethodDef{Name: "f", Modifiers: ModAbstract}).Build,
			want:  ErrInvalidDecl,
			call:  "Method",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var be *BuildError
			if !errors.As(err, &be) {
				t.Fatalf("err %T is not a *BuildError", err)
			}
			if be.Call != tt.call {
				t.Errorf("Call = %q, want %q", be.Call, tt.call)
			}
		})
	}
}

func TestDeclOwnsItsTree(t *testing.T) {
	body := []Stmt{Block(Ret(IntConst(1)))}
	m := NewMethod("one").Modifiers(ModPublic|ModStatic).Param("a", Int).Returns(Int).
		Annotate(Annotation(Class("com.example.Marker"), Elem("v", ArrayValue{StringConst("x")}))).
		Body(body...).MustBuild()
	d := NewClass("com.example.Frozen").Method(m).MustBuild()

	// The builder's inputs no longer reach the declaration.
	m.Body[0] = Ret(IntConst(2))
	body[0] = Ret(IntConst(3))

	got := d.Methods()[0]
	got.Body[0].(Multi).Stmts[0] = Ret(IntConst(4))
	got.Params[0].Name = "zzz"
	got.Annotations[0].Elements[0].Value.(ArrayValue)[0] = StringConst("y")

	again := d.Methods()[0]
	multi, ok := again.Body[0].(Multi)
	if !ok {
		t.Fatalf("body[0] = %#v, want Multi", again.Body[0])
	}
	if r := multi.Stmts[0].(Return); r.Value.(Constant).Value != int64(1) {
		t.Errorf("body = %v, want return 1", r.Value)
	}
	if again.Params[0].Name != "a" {
		t.Errorf("param = %s, want a", again.Params[0].Name)
	}
	if v := again.Annotations[0].Elements[0].Value.(ArrayValue)[0].(Constant); v.Value != "x" {
		t.Errorf("annotation element = %v, want x", v.Value)
	}
}

func TestStickyError(t *testing.T) {
	b := NewClass("com.example.S").
		Field(FieldDef{Name: "a", Type: Int}).
		Field(FieldDef{Name: "a", Type: Int}).
		Field(FieldDef{Name: "b", Type: Int})
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error")
	}
	var be *BuildError
	if !errors.As(b.Err(), &be) || be.Call != "Field" {
		t.Fatalf("first violation should be kept, got %v", b.Err())
	}
}

func TestNest(t *testing.T) {
	outer := Class("com.example.Outer")
	inner := NewRecord(NestedName(outer, "Pair")).Component("a", Int).MustBuild()
	d, err := NewClass(outer.Name).Nest(inner).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var names []string
	d.Walk(func(t *TypeDecl) { names = append(names, t.Name()) })
	if len(names) != 2 || names[1] != "com.example.Outer$Pair" {
		t.Errorf("walk = %v", names)
	}

	other := NewClass("com.example.Other$X").MustBuild()
	if _, err := NewClass(outer.Name).Nest(other).Build(); !errors.Is(err, ErrInvalidDecl) {
		t.Errorf("foreign nested type: err = %v, want ErrInvalidDecl", err)
	}
}

func TestMethodBuilder(t *testing.T) {
	m, err := NewMethod("max").Modifiers(ModPublic|ModStatic).
		Param("a", Int).Param("b", Int).Returns(Int).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := m.Descriptor(); got != "(II)I" {
		t.Errorf("Descriptor = %q", got)
	}

	_, err = NewMethod("f").Param("a", Int).Param("a", Long).Build()
	if !errors.Is(err, ErrDuplicateMember) {
		t.Errorf("duplicate param: err = %v", err)
	}

	_, err = NewConstructor().Returns(Int).Build()
	if !errors.Is(err, ErrInvalidDecl) {
		t.Errorf("constructor return type: err = %v", err)
	}
}

func TestHashComposition(t *testing.T) {
	a, b := Local("a", Int), Local("b", TypeString)
	h, ok := HashComposition(a, b).(MathOp)
	if !ok || h.Op != MathAdd {
		t.Fatalf("composition = %#v", h)
	}
	if _, ok := h.Right.(HashCode); !ok {
		t.Errorf("last term should hash b, got %T", h.Right)
	}
	if c, ok := HashComposition().(Constant); !ok || !c.IsZero() {
		t.Errorf("empty composition should be 0")
	}
}
