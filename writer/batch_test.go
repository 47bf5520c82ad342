package writer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/sourcegen/catalog"
	"github.com/chazu/sourcegen/config"
	"github.com/chazu/sourcegen/lower"
	"github.com/chazu/sourcegen/model"
)

func TestWriteAll(t *testing.T) {
	decls, err := catalog.All()
	if err != nil {
		t.Fatal(err)
	}
	sink := NewMemorySink()
	r := New(nil).WriteAll(decls, sink)
	if err := r.Err(); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if r.RunID == "" {
		t.Error("report has no run ID")
	}
	if len(r.Outcomes) != len(decls) {
		t.Fatalf("%d outcomes for %d types", len(r.Outcomes), len(decls))
	}
	for i, o := range r.Outcomes {
		if o.Type != decls[i].Name() {
			t.Errorf("outcome %d is %s, want %s", i, o.Type, decls[i].Name())
		}
	}
	// Outer contributes two classes.
	if want := len(decls) + 1; r.Written() != want || len(sink.Artifacts()) != want {
		t.Errorf("written %d, sink holds %d, want %d", r.Written(), len(sink.Artifacts()), want)
	}
}

func TestWriteAllIsolatesFailures(t *testing.T) {
	good := sample(t, "Calc")
	bad := broken(t, "demo.Broken")
	point := sample(t, "Point")

	cfg := config.Default()
	cfg.Output.Workers = 1
	sink := NewMemorySink()
	r := New(cfg).WriteAll([]*model.TypeDecl{good, bad, point}, sink)

	failed := r.Failed()
	if len(failed) != 1 || failed[0].Type != "demo.Broken" {
		t.Fatalf("failed = %+v", failed)
	}
	if !errors.Is(r.Err(), lower.ErrUnresolved) {
		t.Errorf("Err = %v, want ErrUnresolved", r.Err())
	}
	if len(r.Outcomes[1].Paths) != 0 {
		t.Errorf("failed type wrote %v", r.Outcomes[1].Paths)
	}
	for _, name := range []string{"demo.Calc", "demo.Point"} {
		if _, ok := sink.Get(name); !ok {
			t.Errorf("%s not written", name)
		}
	}
	if _, ok := sink.Get("demo.Broken"); ok {
		t.Error("failing type reached the sink")
	}
}

func TestWriteAllDuplicateType(t *testing.T) {
	first, second := sample(t, "Calc"), sample(t, "Calc")
	r := New(nil).WriteAll([]*model.TypeDecl{first, second}, NewMemorySink())
	if r.Outcomes[0].Err != nil {
		t.Errorf("first declaration failed: %v", r.Outcomes[0].Err)
	}
	if !errors.Is(r.Outcomes[1].Err, ErrDuplicateType) {
		t.Errorf("second declaration err = %v, want ErrDuplicateType", r.Outcomes[1].Err)
	}
}

// nestedFailSink refuses every unit that carries a member type.
type nestedFailSink struct{ *MemorySink }

func (s nestedFailSink) WriteUnit(as []Artifact) error {
	for _, a := range as {
		if strings.Contains(a.Name, "$") {
			return errors.New("disk full")
		}
	}
	return s.MemorySink.WriteUnit(as)
}

func TestWriteAllUnitWrite(t *testing.T) {
	sink := nestedFailSink{NewMemorySink()}
	r := New(nil).WriteAll([]*model.TypeDecl{sample(t, "Outer"), sample(t, "Calc")}, sink)

	outer := r.Outcomes[0]
	if outer.Err == nil || len(outer.Paths) != 0 {
		t.Fatalf("Outer outcome = %+v, want an error and no paths", outer)
	}
	if _, ok := sink.Get("demo.Outer"); ok {
		t.Error("Outer reached the sink without its member type")
	}
	if err := r.Outcomes[1].Err; err != nil {
		t.Errorf("Calc failed: %v", err)
	}
	if _, ok := sink.Get("demo.Calc"); !ok {
		t.Error("Calc not written")
	}
}

// Types of one batch resolve each other: Square implements Shape.
func TestWriteAllCrossReferences(t *testing.T) {
	sink := NewMemorySink()
	r := New(nil).WriteAll([]*model.TypeDecl{sample(t, "Square"), sample(t, "Shape")}, sink)
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	a, ok := sink.Get("demo.Square")
	if !ok {
		t.Fatal("Square not written")
	}
	cf := parse(t, a)
	if len(cf.Interfaces) != 1 {
		t.Fatalf("Square implements %d interfaces", len(cf.Interfaces))
	}
	if name, _ := cf.Pool.ClassAt(cf.Interfaces[0]); name != "demo/Shape" {
		t.Errorf("Square implements %s", name)
	}
}

func TestWriteAllToDirectory(t *testing.T) {
	root := t.TempDir()
	dir := NewDirSink(root)
	indexed, err := NewIndexedSink(dir, filepath.Join(root, ".index.cbor"))
	if err != nil {
		t.Fatal(err)
	}
	w := New(nil)
	decls := []*model.TypeDecl{sample(t, "Outer")}
	r := w.WriteAll(decls, indexed)
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"demo/Outer.class", "demo/Outer$Inner.class"} {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(p))); err != nil {
			t.Errorf("%s: %v", p, err)
		}
		if e, ok := indexed.Entry(p); !ok || e.RunID != r.RunID {
			t.Errorf("index entry %s = %+v, %v", p, e, ok)
		}
	}
	if err := indexed.Save(); err != nil {
		t.Fatal(err)
	}

	// Regenerating identical output writes nothing.
	again, err := NewIndexedSink(NewDirSink(root), filepath.Join(root, ".index.cbor"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteAll(decls, again).Err(); err != nil {
		t.Fatal(err)
	}
	if again.Skipped() != 2 {
		t.Errorf("skipped %d unchanged artifacts, want 2", again.Skipped())
	}
}
