// Package catalog holds sample declarations built with the model builders.
// The CLI writes them out and the tests execute them.
package catalog

import (
	"fmt"

	"github.com/chazu/sourcegen/model"
)

// Package is the Java package of every sample.
const Package = "demo"

// Sample is a named declaration factory.
type Sample struct {
	Name  string
	Build func() (*model.TypeDecl, error)
}

// Samples lists every sample in a stable order.
var Samples = []Sample{
	{"Calc", Calc},
	{"Numbers", Numbers},
	{"Guard", Guard},
	{"Color", Color},
	{"Point", Point},
	{"Counter", Counter},
	{"Shape", Shape},
	{"Square", Square},
	{"Outer", Outer},
}

// All builds every sample.
func All() ([]*model.TypeDecl, error) {
	out := make([]*model.TypeDecl, 0, len(Samples))
	for _, s := range Samples {
		d, err := s.Build()
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", s.Name, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Lookup returns the sample with the given simple name.
func Lookup(name string) (Sample, bool) {
	for _, s := range Samples {
		if s.Name == name {
			return s, true
		}
	}
	return Sample{}, false
}

func qualified(simple string) string { return Package + "." + simple }

func static(name string) *model.MethodBuilder {
	return model.NewMethod(name).Modifiers(model.ModPublic | model.ModStatic)
}

func public(name string) *model.MethodBuilder {
	return model.NewMethod(name).Modifiers(model.ModPublic)
}

func add(l, r model.Expr) model.MathOp { return model.MathOp{Op: model.MathAdd, Left: l, Right: r} }

func newException(class, msg string) model.NewInstance {
	return model.NewInstance{
		Typ:    model.Class(class),
		Params: []model.TypeDef{model.TypeString},
		Args:   []model.Expr{model.StringConst(msg)},
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// Calc exercises conditionals, loops, short-circuit evaluation and
// exception handling through static methods:
//
//	max(int, int) int         larger argument
//	sumTo(int) int            0 + 1 + ... + n
//	touch() boolean           counts its calls in the static field touches
//	andFalse() boolean        false && touch()
//	orTrue() boolean          true || touch()
//	safeDivide(int, int) int  a / b, or -1 when b is zero
//	withCleanup(int) int      100 / x; increments cleanups in finally
//	escape(int) int           100 / k catching ArithmeticException; throws
//	                          IllegalStateException when k != 0
//	restore(int) int          8, or 9 when k != 0, read back in a handler
//	sumLongs(long, int) long  wide locals and widening
func Calc() (*model.TypeDecl, error) {
	b := model.NewClass(qualified("Calc")).Modifiers(model.ModPublic | model.ModFinal)
	self := b.Type()
	touches := model.StaticFieldRef{Owner: self, Name: "touches", Typ: model.Int}
	cleanups := model.StaticFieldRef{Owner: self, Name: "cleanups", Typ: model.Int}
	touch := model.Method(self, "touch", model.Boolean)

	b.Field(model.FieldDef{Name: "touches", Type: model.Int, Modifiers: model.ModPublic | model.ModStatic})
	b.Field(model.FieldDef{Name: "cleanups", Type: model.Int, Modifiers: model.ModPublic | model.ModStatic})

	x, y := model.Param("a", model.Int), model.Param("b", model.Int)
	b.Method(static("max").Param("a", model.Int).Param("b", model.Int).Returns(model.Int).Body(
		model.If{Cond: model.Gt(x, y), Then: model.Ret(x)},
		model.Ret(y),
	).MustBuild())

	n := model.Param("n", model.Int)
	i, sum := model.Local("i", model.Int), model.Local("sum", model.Int)
	b.Method(static("sumTo").Param("n", model.Int).Returns(model.Int).Body(
		model.Define{Var: i, Value: model.IntConst(0)},
		model.Define{Var: sum, Value: model.IntConst(0)},
		model.While{Cond: model.Le(i, n), Body: model.Block(
			model.Assign{Target: sum, Value: add(sum, i)},
			model.Assign{Target: i, Value: add(i, model.IntConst(1))},
		)},
		model.Ret(sum),
	).MustBuild())

	b.Method(static("touch").Returns(model.Boolean).Body(
		model.Assign{Target: touches, Value: add(touches, model.IntConst(1))},
		model.Ret(model.True),
	).MustBuild())
	b.Method(static("andFalse").Returns(model.Boolean).Body(
		model.Ret(model.And{Left: model.False, Right: touch.CallStatic()}),
	).MustBuild())
	b.Method(static("orTrue").Returns(model.Boolean).Body(
		model.Ret(model.Or{Left: model.True, Right: touch.CallStatic()}),
	).MustBuild())

	b.Method(static("safeDivide").Param("a", model.Int).Param("b", model.Int).Returns(model.Int).Body(
		model.Try{
			Body: model.Ret(model.MathOp{Op: model.MathDiv, Left: x, Right: y}),
			Catches: []model.Catch{{
				Exception: model.Class("java.lang.ArithmeticException"),
				Body:      model.Ret(model.IntConst(-1)),
			}},
		},
	).MustBuild())

	b.Method(static("withCleanup").Param("x", model.Int).Returns(model.Int).Body(
		model.Try{
			Body:    model.Ret(model.MathOp{Op: model.MathDiv, Left: model.IntConst(100), Right: model.Param("x", model.Int)}),
			Finally: model.Assign{Target: cleanups, Value: add(cleanups, model.IntConst(1))},
		},
	).MustBuild())

	k := model.Param("k", model.Int)
	b.Method(static("escape").Param("k", model.Int).Returns(model.Int).Body(
		model.Try{
			Body: model.Block(
				model.If{Cond: model.Ne(k, model.IntConst(0)), Then: model.Throw{Value: newException("java.lang.IllegalStateException", "escape")}},
				model.Ret(model.MathOp{Op: model.MathDiv, Left: model.IntConst(100), Right: k}),
			),
			Catches: []model.Catch{{
				Exception: model.Class("java.lang.ArithmeticException"),
				Body:      model.Ret(model.IntConst(-1)),
			}},
		},
	).MustBuild())

	v := model.Local("v", model.Int)
	b.Method(static("restore").Param("k", model.Int).Returns(model.Int).Body(
		model.Define{Var: v, Value: model.IntConst(8)},
		model.Try{
			Body: model.Block(
				model.If{Cond: model.Ne(k, model.IntConst(0)), Then: model.Assign{Target: v, Value: model.IntConst(9)}},
				model.Ret(model.MathOp{Op: model.MathDiv, Left: v, Right: model.IntConst(0)}),
			),
			Catches: []model.Catch{{
				Exception: model.Class("java.lang.ArithmeticException"),
				Body:      model.Ret(v),
			}},
		},
	).MustBuild())

	total := model.Local("total", model.Long)
	b.Method(static("sumLongs").Param("base", model.Long).Param("k", model.Int).Returns(model.Long).Body(
		model.Define{Var: total, Value: model.Param("base", model.Long)},
		model.Assign{Target: total, Value: add(total, model.Param("k", model.Int))},
		model.Ret(total),
	).MustBuild())

	return b.Build()
}

// Numbers dispatches on ints and strings:
//
//	name(int) String     10 → "ten", 20 → "twenty", otherwise "other"
//	digit(int) int       dense switch statement over 0..4
//	code(String) int     string switch including the colliding "Aa"/"BB"
func Numbers() (*model.TypeDecl, error) {
	b := model.NewClass(qualified("Numbers")).Modifiers(model.ModPublic)
	n := model.Param("n", model.Int)

	b.Method(static("name").Param("n", model.Int).Returns(model.TypeString).Body(
		model.Ret(model.SwitchExpr{
			Subject: n,
			Typ:     model.TypeString,
			Cases: []model.ExprCase{
				{Keys: []model.Expr{model.IntConst(10)}, Value: model.StringConst("ten")},
				{Keys: []model.Expr{model.IntConst(20)}, Value: model.StringConst("twenty")},
			},
			Default: model.StringConst("other"),
		}),
	).MustBuild())

	var cases []model.StmtCase
	for k := range 5 {
		cases = append(cases, model.StmtCase{
			Keys: []model.Expr{model.IntConst(k)},
			Body: model.Ret(model.IntConst(k * k)),
		})
	}
	b.Method(static("digit").Param("n", model.Int).Returns(model.Int).Body(
		model.Switch{Subject: n, Cases: cases},
		model.Ret(model.IntConst(-1)),
	).MustBuild())

	s := model.Param("s", model.TypeString)
	b.Method(static("code").Param("s", model.TypeString).Returns(model.Int).Body(
		model.Switch{
			Subject: s,
			Cases: []model.StmtCase{
				{Keys: []model.Expr{model.StringConst("Aa")}, Body: model.Ret(model.IntConst(1))},
				{Keys: []model.Expr{model.StringConst("BB")}, Body: model.Ret(model.IntConst(2))},
				{Keys: []model.Expr{model.StringConst("zebra"), model.StringConst("zed")}, Body: model.Ret(model.IntConst(3))},
			},
			Default: model.Ret(model.IntConst(0)),
		},
	).MustBuild())

	return b.Build()
}

// Guard throws from inside a synchronized block:
//
//	fail(Object lock)       synchronized (lock) { throw new IllegalStateException("boom") }
//	locked(Object, int) int synchronized (lock) { return n + 1 }
func Guard() (*model.TypeDecl, error) {
	b := model.NewClass(qualified("Guard")).Modifiers(model.ModPublic)
	lock := model.Param("lock", model.TypeObject)

	b.Method(static("fail").Param("lock", model.TypeObject).Body(
		model.Synchronized{
			Monitor: lock,
			Body:    model.Throw{Value: newException("java.lang.IllegalStateException", "boom")},
		},
	).MustBuild())

	b.Method(static("locked").Param("lock", model.TypeObject).Param("n", model.Int).Returns(model.Int).Body(
		model.Synchronized{
			Monitor: lock,
			Body:    model.Ret(add(model.Param("n", model.Int), model.IntConst(1))),
		},
	).MustBuild())

	return b.Build()
}

// ---------------------------------------------------------------------------
// Declared kinds
// ---------------------------------------------------------------------------

// Color is an enum whose constants carry an int:
//
//	RED(0xff0000), GREEN(0x00ff00), BLUE(0x0000ff)
//	rgb() int
//	isWarm() boolean   switch over this
func Color() (*model.TypeDecl, error) {
	b := model.NewEnum(qualified("Color")).Modifiers(model.ModPublic)
	self := b.Type()
	rgb := model.FieldRef{Instance: model.This{Typ: self}, Owner: self, Name: "rgb", Typ: model.Int}

	b.Constant("RED", model.IntConst(0xff0000))
	b.Constant("GREEN", model.IntConst(0x00ff00))
	b.Constant("BLUE", model.IntConst(0x0000ff))
	b.Field(model.FieldDef{Name: "rgb", Type: model.Int, Modifiers: model.ModPrivate | model.ModFinal})

	b.Method(model.NewConstructor().Param("rgb", model.Int).Body(
		model.Assign{Target: rgb, Value: model.Param("rgb", model.Int)},
	).MustBuild())
	b.Method(public("rgb").Returns(model.Int).Body(model.Ret(rgb)).MustBuild())
	b.Method(public("isWarm").Returns(model.Boolean).Body(
		model.Ret(model.SwitchExpr{
			Subject: model.This{Typ: self},
			Typ:     model.Boolean,
			Cases: []model.ExprCase{
				{Keys: []model.Expr{model.EnumValue(self, "RED")}, Value: model.True},
			},
			Default: model.False,
		}),
	).MustBuild())

	return b.Build()
}

// Point is the record (int x, int y) with a derived method:
//
//	sum() int   x + y
func Point() (*model.TypeDecl, error) {
	b := model.NewRecord(qualified("Point")).Modifiers(model.ModPublic)
	self := b.Type()
	b.Component("x", model.Int)
	b.Component("y", model.Int)
	this := model.This{Typ: self}
	x := model.FieldRef{Instance: this, Owner: self, Name: "x", Typ: model.Int}
	y := model.FieldRef{Instance: this, Owner: self, Name: "y", Typ: model.Int}
	b.Method(public("sum").Returns(model.Int).Body(model.Ret(add(x, y))).MustBuild())
	return b.Build()
}

// Counter is a class with a property and a field initializer:
//
//	property int count
//	String label = "counter"
//	increment() int   count = count + 1, returns it
func Counter() (*model.TypeDecl, error) {
	b := model.NewClass(qualified("Counter")).Modifiers(model.ModPublic)
	self := b.Type()
	this := model.This{Typ: self}
	b.Property(model.PropertyDef{Name: "count", Type: model.Int})
	b.Field(model.FieldDef{
		Name:        "label",
		Type:        model.TypeString,
		Modifiers:   model.ModPublic,
		Initializer: model.StringConst("counter"),
	})
	count := model.PropertyGet{Instance: this, Owner: self, Name: "count", Typ: model.Int}
	b.Method(public("increment").Returns(model.Int).Body(
		model.Assign{Target: count, Value: add(count, model.IntConst(1))},
		model.Ret(count),
	).MustBuild())
	return b.Build()
}

// Shape is an interface with one abstract method and a default method:
//
//	area() int
//	describe() String   "area=" + area()
func Shape() (*model.TypeDecl, error) {
	b := model.NewInterface(qualified("Shape")).Modifiers(model.ModPublic)
	self := b.Type()
	b.Method(public("area").Returns(model.Int).MustBuild())
	area := model.Method(self, "area", model.Int)
	b.Method(public("describe").Returns(model.TypeString).Body(
		model.Ret(model.Concat(model.StringConst("area="), area.Call(model.This{Typ: self}))),
	).MustBuild())
	return b.Build()
}

// Square implements Shape:
//
//	Square(int side)
//	area() int   side * side
func Square() (*model.TypeDecl, error) {
	b := model.NewClass(qualified("Square")).Modifiers(model.ModPublic).Implements(model.Interface(qualified("Shape")))
	self := b.Type()
	side := model.FieldRef{Instance: model.This{Typ: self}, Owner: self, Name: "side", Typ: model.Int}
	b.Field(model.FieldDef{Name: "side", Type: model.Int, Modifiers: model.ModPrivate | model.ModFinal})
	b.Method(model.NewConstructor().Modifiers(model.ModPublic).Param("side", model.Int).Body(
		model.Assign{Target: side, Value: model.Param("side", model.Int)},
	).MustBuild())
	b.Method(public("area").Returns(model.Int).Body(
		model.Ret(model.MathOp{Op: model.MathMul, Left: side, Right: side}),
	).MustBuild())
	return b.Build()
}

// Outer nests a static member class:
//
//	Outer.Inner.twice(int) int
//	Outer.viaInner(int) int   calls Inner.twice
func Outer() (*model.TypeDecl, error) {
	outer := model.NewClass(qualified("Outer")).Modifiers(model.ModPublic)
	inner := model.NewClass(model.NestedName(outer.Type(), "Inner")).Modifiers(model.ModPublic | model.ModStatic)
	v := model.Param("v", model.Int)
	inner.Method(static("twice").Param("v", model.Int).Returns(model.Int).Body(
		model.Ret(add(v, v)),
	).MustBuild())
	innerDecl, err := inner.Build()
	if err != nil {
		return nil, err
	}
	outer.Nest(innerDecl)
	twice := model.Method(innerDecl.Type(), "twice", model.Int, model.Int)
	outer.Method(static("viaInner").Param("v", model.Int).Returns(model.Int).Body(
		model.Ret(twice.CallStatic(v)),
	).MustBuild())
	return outer.Build()
}
