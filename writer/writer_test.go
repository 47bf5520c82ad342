package writer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/chazu/sourcegen/catalog"
	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/config"
	"github.com/chazu/sourcegen/lower"
	"github.com/chazu/sourcegen/model"
)

func sample(t *testing.T, name string) *model.TypeDecl {
	t.Helper()
	s, ok := catalog.Lookup(name)
	if !ok {
		t.Fatalf("no sample %s", name)
	}
	d, err := s.Build()
	if err != nil {
		t.Fatalf("build %s: %v", name, err)
	}
	return d
}

func generate(t *testing.T, d *model.TypeDecl) []Artifact {
	t.Helper()
	artifacts, err := New(nil).Generate(d)
	if err != nil {
		t.Fatalf("Generate(%s): %v", d.Name(), err)
	}
	return artifacts
}

func parse(t *testing.T, a Artifact) *classfile.ClassFile {
	t.Helper()
	cf, err := classfile.Parse(a.Data)
	if err != nil {
		t.Fatalf("Parse(%s): %v", a.Name, err)
	}
	return cf
}

func findMethod(t *testing.T, cf *classfile.ClassFile, name, desc string) classfile.Member {
	t.Helper()
	m, ok := cf.FindMethod(name, desc)
	if !ok {
		t.Fatalf("no method %s%s", name, desc)
	}
	return m
}

func findField(t *testing.T, cf *classfile.ClassFile, name string) classfile.Member {
	t.Helper()
	f, ok := cf.FindField(name)
	if !ok {
		t.Fatalf("no field %s", name)
	}
	return f
}

func hasAttribute(cf *classfile.ClassFile, attrs []classfile.Attribute, name string) bool {
	_, ok := cf.FindAttribute(attrs, name)
	return ok
}

func broken(t *testing.T, name string) *model.TypeDecl {
	t.Helper()
	d, err := model.NewClass(name).Method(
		model.NewMethod("bad").Modifiers(model.ModStatic).Returns(model.Int).Body(
			model.Ret(model.Local("missing", model.Int)),
		).MustBuild(),
	).Build()
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestGenerateClass(t *testing.T) {
	artifacts := generate(t, sample(t, "Calc"))
	if len(artifacts) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(artifacts))
	}
	a := artifacts[0]
	if a.Name != "demo.Calc" || a.Path != "demo/Calc.class" {
		t.Errorf("artifact %s at %s", a.Name, a.Path)
	}
	if !bytes.HasPrefix(a.Data, []byte{0xCA, 0xFE, 0xBA, 0xBE}) {
		t.Error("missing magic")
	}

	cf := parse(t, a)
	if cf.Major != classfile.V17 {
		t.Errorf("major = %d, want %d", cf.Major, classfile.V17)
	}
	if want := classfile.AccPublic | classfile.AccFinal | classfile.AccSuper; cf.Access != want {
		t.Errorf("class access = %#x, want %#x", cf.Access, want)
	}
	if super, _ := cf.SuperName(); super != "java/lang/Object" {
		t.Errorf("super = %s", super)
	}

	maxOf := findMethod(t, cf, "max", "(II)I")
	if want := classfile.AccPublic | classfile.AccStatic; maxOf.Access != want {
		t.Errorf("max access = %#x, want %#x", maxOf.Access, want)
	}
	code, err := cf.MethodCode(maxOf)
	if err != nil || code == nil {
		t.Fatalf("max has no code: %v", err)
	}
	if !hasAttribute(cf, code.Attributes, classfile.AttrStackMapTable) {
		t.Error("branching method has no StackMapTable")
	}

	// Default constructor.
	ctor := findMethod(t, cf, "<init>", "()V")
	if ctor.Access != classfile.AccPublic {
		t.Errorf("constructor access = %#x", ctor.Access)
	}
	if f := findField(t, cf, "touches"); f.Access != classfile.AccPublic|classfile.AccStatic {
		t.Errorf("touches access = %#x", f.Access)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	for _, s := range catalog.Samples {
		t.Run(s.Name, func(t *testing.T) {
			first := generate(t, sample(t, s.Name))
			second := generate(t, sample(t, s.Name))
			if len(first) != len(second) {
				t.Fatalf("%d artifacts, then %d", len(first), len(second))
			}
			for i := range first {
				if !bytes.Equal(first[i].Data, second[i].Data) {
					t.Errorf("%s differs between runs", first[i].Name)
				}
			}
		})
	}
}

func TestGenerateEnum(t *testing.T) {
	cf := parse(t, generate(t, sample(t, "Color"))[0])
	if want := classfile.AccPublic | classfile.AccFinal | classfile.AccSuper | classfile.AccEnum; cf.Access != want {
		t.Errorf("enum access = %#x, want %#x", cf.Access, want)
	}
	if super, _ := cf.SuperName(); super != "java/lang/Enum" {
		t.Errorf("super = %s", super)
	}

	red := findField(t, cf, "RED")
	if want := classfile.AccPublic | classfile.AccStatic | classfile.AccFinal | classfile.AccEnum; red.Access != want {
		t.Errorf("RED access = %#x, want %#x", red.Access, want)
	}
	values := findField(t, cf, "$VALUES")
	if values.Access&classfile.AccSynthetic == 0 || values.Access&classfile.AccPrivate == 0 {
		t.Errorf("$VALUES access = %#x", values.Access)
	}

	ctor := findMethod(t, cf, "<init>", "(Ljava/lang/String;II)V")
	if ctor.Access != classfile.AccPrivate {
		t.Errorf("enum constructor access = %#x, want private", ctor.Access)
	}
	findMethod(t, cf, "values", "()[Ldemo/Color;")
	findMethod(t, cf, "valueOf", "(Ljava/lang/String;)Ldemo/Color;")
	findMethod(t, cf, "<clinit>", "()V")
}

func TestGenerateRecord(t *testing.T) {
	cf := parse(t, generate(t, sample(t, "Point"))[0])
	if super, _ := cf.SuperName(); super != "java/lang/Record" {
		t.Errorf("super = %s", super)
	}
	if !hasAttribute(cf, cf.Attributes, classfile.AttrRecord) {
		t.Error("no Record attribute")
	}
	if f := findField(t, cf, "x"); f.Access != classfile.AccPrivate|classfile.AccFinal {
		t.Errorf("component field access = %#x", f.Access)
	}
	findMethod(t, cf, "<init>", "(II)V")
	findMethod(t, cf, "x", "()I")
	findMethod(t, cf, "y", "()I")
	for _, m := range []struct{ name, desc string }{
		{"equals", "(Ljava/lang/Object;)Z"},
		{"hashCode", "()I"},
		{"toString", "()Ljava/lang/String;"},
	} {
		if got := findMethod(t, cf, m.name, m.desc); got.Access != classfile.AccPublic|classfile.AccFinal {
			t.Errorf("%s access = %#x", m.name, got.Access)
		}
	}
}

func TestGenerateInterface(t *testing.T) {
	cf := parse(t, generate(t, sample(t, "Shape"))[0])
	if want := classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract; cf.Access != want {
		t.Errorf("interface access = %#x, want %#x", cf.Access, want)
	}
	area := findMethod(t, cf, "area", "()I")
	if area.Access != classfile.AccPublic|classfile.AccAbstract {
		t.Errorf("area access = %#x", area.Access)
	}
	if code, _ := cf.MethodCode(area); code != nil {
		t.Error("abstract method has code")
	}
	describe := findMethod(t, cf, "describe", "()Ljava/lang/String;")
	if code, _ := cf.MethodCode(describe); code == nil {
		t.Error("default method has no code")
	}
	if _, ok := cf.FindMethod("<init>", "()V"); ok {
		t.Error("interface has a constructor")
	}
}

func TestGenerateProperty(t *testing.T) {
	cf := parse(t, generate(t, sample(t, "Counter"))[0])
	if f := findField(t, cf, "count"); f.Access != classfile.AccPrivate {
		t.Errorf("backing field access = %#x", f.Access)
	}
	findMethod(t, cf, "getCount", "()I")
	findMethod(t, cf, "setCount", "(I)V")
}

func TestGenerateNested(t *testing.T) {
	artifacts := generate(t, sample(t, "Outer"))
	if len(artifacts) != 2 {
		t.Fatalf("got %d artifacts, want 2", len(artifacts))
	}
	if artifacts[0].Name != "demo.Outer" || artifacts[1].Name != "demo.Outer$Inner" {
		t.Fatalf("artifacts %s, %s", artifacts[0].Name, artifacts[1].Name)
	}
	if artifacts[1].Path != "demo/Outer$Inner.class" {
		t.Errorf("nested path = %s", artifacts[1].Path)
	}

	outer, inner := parse(t, artifacts[0]), parse(t, artifacts[1])
	for _, attr := range []string{classfile.AttrInnerClasses, classfile.AttrNestMembers} {
		if !hasAttribute(outer, outer.Attributes, attr) {
			t.Errorf("outer has no %s", attr)
		}
	}
	if !hasAttribute(inner, inner.Attributes, classfile.AttrInnerClasses) {
		t.Error("inner has no InnerClasses")
	}
	a, ok := inner.FindAttribute(inner.Attributes, classfile.AttrNestHost)
	if !ok {
		t.Fatal("inner has no NestHost")
	}
	host, err := inner.Pool.ClassAt(binary.BigEndian.Uint16(a.Data))
	if err != nil || host != "demo/Outer" {
		t.Errorf("NestHost = %s, %v", host, err)
	}
	// ACC_STATIC is only valid in InnerClasses.
	if inner.Access&classfile.AccStatic != 0 {
		t.Errorf("inner class access = %#x has ACC_STATIC", inner.Access)
	}
}

func TestSourceFile(t *testing.T) {
	cfg := config.Default()
	cfg.ClassFile.SourceFile = true
	artifacts, err := New(cfg).Generate(sample(t, "Outer"))
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range artifacts {
		cf := parse(t, a)
		attr, ok := cf.FindAttribute(cf.Attributes, classfile.AttrSourceFile)
		if !ok {
			t.Fatalf("%s has no SourceFile", a.Name)
		}
		name, _ := cf.Pool.Utf8At(binary.BigEndian.Uint16(attr.Data))
		if name != "Outer.java" {
			t.Errorf("%s SourceFile = %s", a.Name, name)
		}
	}
}

func TestGenerateFailure(t *testing.T) {
	artifacts, err := New(nil).Generate(broken(t, "demo.Broken"))
	if err == nil {
		t.Fatal("Generate succeeded")
	}
	if artifacts != nil {
		t.Errorf("got %d artifacts on failure", len(artifacts))
	}
	if !errors.Is(err, lower.ErrUnresolved) {
		t.Errorf("err = %v, want ErrUnresolved", err)
	}
	var le *lower.Error
	if !errors.As(err, &le) {
		t.Fatalf("err %v is not a *lower.Error", err)
	}
	if le.Type != "demo.Broken" || le.Member != "bad()I" {
		t.Errorf("error located at %s.%s", le.Type, le.Member)
	}
}

func TestNestedFailureFailsUnit(t *testing.T) {
	outer := model.NewClass("demo.Host")
	outer.Nest(broken(t, "demo.Host$Bad"))
	d, err := outer.Build()
	if err != nil {
		t.Fatal(err)
	}
	artifacts, err := New(nil).Generate(d)
	if err == nil || artifacts != nil {
		t.Fatalf("Generate = %d artifacts, %v; want nothing and an error", len(artifacts), err)
	}
}
