// Package writer turns declared types into class files. Each top-level
// type is lowered together with its nested types and handed to a Sink only
// when every member of the unit lowers successfully.
package writer

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/sourcegen/config"
	"github.com/chazu/sourcegen/frames"
	"github.com/chazu/sourcegen/lower"
	"github.com/chazu/sourcegen/model"
)

// Artifact is one generated class file.
type Artifact struct {
	Name string // binary name, com.example.Outer$Inner
	Path string // slash-separated output path, com/example/Outer$Inner.class
	Data []byte
}

// ArtifactPath returns the output path of a class.
func ArtifactPath(t model.ClassType) string { return t.InternalName() + ".class" }

// Writer generates artifacts with a fixed configuration. It holds no
// mutable state and may be shared between goroutines.
type Writer struct {
	major      uint16
	sourceFile bool
	options    lower.Options
	workers    int
	log        commonlog.Logger
}

// New creates a writer. A nil configuration means config.Default().
func New(cfg *config.Config) *Writer {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Writer{
		major:      cfg.ClassFile.Major,
		sourceFile: cfg.ClassFile.SourceFile,
		options:    cfg.LoweringOptions(),
		workers:    cfg.Output.Workers,
		log:        commonlog.GetLogger("sourcegen.writer"),
	}
}

// Generate returns the class files of decl and its nested types, outermost
// first. On failure no artifact is returned.
func (w *Writer) Generate(decl *model.TypeDecl) ([]Artifact, error) {
	return w.generate(decl, newBatch([]*model.TypeDecl{decl}))
}

func (w *Writer) generate(decl *model.TypeDecl, b *batch) ([]Artifact, error) {
	u := &unit{host: decl, outer: make(map[string]*model.TypeDecl)}
	var link func(d *model.TypeDecl)
	link = func(d *model.TypeDecl) {
		for _, n := range d.Nested() {
			u.outer[n.Name()] = d
			u.members = append(u.members, n)
			link(n)
		}
	}
	link(decl)

	var artifacts []Artifact
	var err error
	decl.Walk(func(d *model.TypeDecl) {
		if err != nil {
			return
		}
		var data []byte
		if data, err = w.assemble(d, u, b); err != nil {
			return
		}
		artifacts = append(artifacts, Artifact{Name: d.Name(), Path: ArtifactPath(d.Type()), Data: data})
		w.log.Debugf("assembled %s (%d bytes)", d.Name(), len(data))
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", decl.Name(), err)
	}
	return artifacts, nil
}

// unit is a top-level type with its nest of member types.
type unit struct {
	host    *model.TypeDecl
	members []*model.TypeDecl          // every nested type, depth-first
	outer   map[string]*model.TypeDecl // nested binary name -> enclosing type
}

// batch is the read-only knowledge shared by every type generated
// together: the declarations by name and their class hierarchy.
type batch struct {
	types     map[string]*model.TypeDecl
	hierarchy *frames.ClassHierarchy
}

func newBatch(decls []*model.TypeDecl) *batch {
	b := &batch{
		types:     make(map[string]*model.TypeDecl),
		hierarchy: frames.NewHierarchy(),
	}
	for _, decl := range decls {
		decl.Walk(func(d *model.TypeDecl) {
			b.types[d.Name()] = d
			if isInterface(d) {
				b.hierarchy.Declare(d.Type().InternalName(), "", true)
				return
			}
			b.hierarchy.Declare(d.Type().InternalName(), model.InternalName(d.Superclass()), false)
		})
	}
	return b
}

func isInterface(d *model.TypeDecl) bool {
	return d.Kind() == model.KindInterface || d.Kind() == model.KindAnnotation
}
