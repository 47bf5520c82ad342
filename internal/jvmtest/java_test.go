package jvmtest

import (
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/chazu/sourcegen/catalog"
	"github.com/chazu/sourcegen/model"
	"github.com/chazu/sourcegen/writer"
)

// mainClass prints the results of the scenario methods, one per line.
func mainClass(t *testing.T) *model.TypeDecl {
	t.Helper()
	out := model.StaticFieldRef{Owner: model.Class("java.lang.System"), Name: "out", Typ: model.Class("java.io.PrintStream")}
	printLine := model.Method(model.Class("java.io.PrintStream"), "println", model.Void, model.TypeString)
	show := func(x model.Expr) model.Stmt { return model.Do(printLine.Call(out, model.StringOf(x))) }

	calc, numbers := model.Class("demo.Calc"), model.Class("demo.Numbers")
	maxOf := model.Method(calc, "max", model.Int, model.Int, model.Int)
	name := model.Method(numbers, "name", model.TypeString, model.Int)
	point := model.Record("demo.Point")
	p := model.NewInstance{Typ: point, Params: []model.TypeDef{model.Int, model.Int}, Args: []model.Expr{model.IntConst(1), model.IntConst(2)}}

	d, err := model.NewClass("demo.Main").Modifiers(model.ModPublic).Method(
		model.NewMethod("main").Modifiers(model.ModPublic|model.ModStatic).
			Param("args", model.ArrayOf(model.TypeString)).
			Body(
				show(maxOf.CallStatic(model.IntConst(3), model.IntConst(5))),
				show(name.CallStatic(model.IntConst(20))),
				show(name.CallStatic(model.IntConst(99))),
				show(model.Method(calc, "sumTo", model.Int, model.Int).CallStatic(model.IntConst(10))),
				show(p),
			).MustBuild(),
	).Build()
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// TestRealJVM runs the generated classes on the java binary, which also
// checks them with the bytecode verifier. Set SOURCEGEN_JVM=1 to enable.
func TestRealJVM(t *testing.T) {
	if os.Getenv("SOURCEGEN_JVM") == "" {
		t.Skip("SOURCEGEN_JVM not set")
	}
	java, err := exec.LookPath("java")
	if err != nil {
		t.Skip("java not on PATH")
	}

	decls, err := catalog.All()
	if err != nil {
		t.Fatal(err)
	}
	decls = append(decls, mainClass(t))
	dir := t.TempDir()
	if err := writer.New(nil).WriteAll(decls, writer.NewDirSink(dir)).Err(); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	cmd := exec.Command(java, "-Xverify:all", "-cp", dir, "demo.Main")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("java: %v\n%s", err, out)
	}
	want := "5\ntwenty\nother\n55\nPoint[x=1, y=2]\n"
	if got := strings.ReplaceAll(string(out), "\r\n", "\n"); got != want {
		t.Errorf("output:\n%s\nwant:\n%s", got, want)
	}
}
