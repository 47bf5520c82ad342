package writer

import (
	"fmt"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/lower"
	"github.com/chazu/sourcegen/model"
)

// ---------------------------------------------------------------------------
// Access flags
// ---------------------------------------------------------------------------

type flagBit struct {
	mod model.Modifiers
	acc uint16
}

var (
	visibilityFlags = []flagBit{
		{model.ModPublic, classfile.AccPublic},
		{model.ModPrivate, classfile.AccPrivate},
		{model.ModProtected, classfile.AccProtected},
	}
	memberFlags = []flagBit{
		{model.ModStatic, classfile.AccStatic},
		{model.ModFinal, classfile.AccFinal},
	}
	fieldFlags = []flagBit{
		{model.ModVolatile, classfile.AccVolatile},
		{model.ModTransient, classfile.AccTransient},
	}
	methodFlags = []flagBit{
		{model.ModAbstract, classfile.AccAbstract},
		{model.ModSynchronized, classfile.AccSynchronized},
	}
)

func accessFlags(m model.Modifiers, tables ...[]flagBit) uint16 {
	var acc uint16
	for _, t := range tables {
		for _, f := range t {
			if m.Has(f.mod) {
				acc |= f.acc
			}
		}
	}
	return acc
}

// kindFlags returns the flags implied by a type's kind and modifiers,
// without visibility.
func kindFlags(d *model.TypeDecl) uint16 {
	switch d.Kind() {
	case model.KindInterface:
		return classfile.AccInterface | classfile.AccAbstract
	case model.KindAnnotation:
		return classfile.AccInterface | classfile.AccAbstract | classfile.AccAnnotation
	case model.KindEnum:
		return classfile.AccEnum | classfile.AccFinal
	case model.KindRecord:
		return classfile.AccFinal
	}
	var acc uint16
	if d.Modifiers().Has(model.ModFinal) {
		acc |= classfile.AccFinal
	}
	if d.Modifiers().Has(model.ModAbstract) {
		acc |= classfile.AccAbstract
	}
	return acc
}

// classAccess returns the class-level access flags. The class file only
// distinguishes public from package access; member visibility of nested
// types lives in InnerClasses.
func classAccess(d *model.TypeDecl) uint16 {
	acc := kindFlags(d)
	if !isInterface(d) {
		acc |= classfile.AccSuper
	}
	if d.Modifiers().Has(model.ModPublic) || d.Modifiers().Has(model.ModProtected) {
		acc |= classfile.AccPublic
	}
	return acc
}

// innerAccess returns the InnerClasses flags of a member type. Member types
// are always static.
func innerAccess(d *model.TypeDecl) uint16 {
	return kindFlags(d) | classfile.AccStatic | accessFlags(d.Modifiers(), visibilityFlags)
}

// ---------------------------------------------------------------------------
// Class assembly
// ---------------------------------------------------------------------------

// assembler builds the class file of one declared type.
type assembler struct {
	decl *model.TypeDecl
	cf   *classfile.ClassFile
	lu   *lower.Unit
}

func (w *Writer) assemble(d *model.TypeDecl, u *unit, b *batch) ([]byte, error) {
	super := "java/lang/Object"
	if !isInterface(d) {
		super = model.InternalName(d.Superclass())
	}
	var ifaces []string
	for _, i := range d.Interfaces() {
		ifaces = append(ifaces, model.InternalName(i))
	}
	if d.Kind() == model.KindAnnotation {
		ifaces = append(ifaces, "java/lang/annotation/Annotation")
	}
	cf := classfile.New(w.major, classAccess(d), d.Type().InternalName(), super, ifaces...)

	m, err := synthesize(d)
	if err != nil {
		return nil, err
	}
	a := &assembler{
		decl: d,
		cf:   cf,
		lu: &lower.Unit{
			Decl:      d,
			Pool:      cf.Pool,
			Hierarchy: b.hierarchy,
			Options:   w.options,
			Types:     b.types,
			Fields:    m.synthetic,
		},
	}
	for _, f := range m.fields {
		if err := a.field(f); err != nil {
			return nil, err
		}
	}
	for _, mm := range m.methods {
		if err := a.method(mm); err != nil {
			return nil, err
		}
	}
	if err := a.classAttributes(u, w.sourceFile); err != nil {
		return nil, err
	}
	return cf.Bytes()
}

func (a *assembler) field(f field) error {
	acc := accessFlags(f.Modifiers, visibilityFlags, memberFlags, fieldFlags) | f.extra
	if isInterface(a.decl) {
		acc |= classfile.AccPublic | classfile.AccStatic | classfile.AccFinal
	}
	var attrs []classfile.Attribute
	if model.IsGeneric(f.Type) {
		attrs = append(attrs, classfile.Signature(a.cf.Pool, model.Signature(f.Type)))
	}
	ann, err := a.annotations(f.Annotations)
	if err != nil {
		return fmt.Errorf("field %s.%s: %w", a.decl.Name(), f.Name, err)
	}
	attrs = append(attrs, ann...)
	a.cf.AddField(acc, f.Name, model.Descriptor(f.Type), attrs...)
	return nil
}

func (a *assembler) method(m method) error {
	acc := accessFlags(m.Modifiers, visibilityFlags, memberFlags, methodFlags) | m.extra
	if isInterface(a.decl) && !m.Modifiers.Has(model.ModPrivate) && m.Name != model.StaticInitName {
		acc |= classfile.AccPublic
	}
	var attrs []classfile.Attribute
	if !m.IsAbstract() {
		code, err := lower.Lower(a.lu, m.MethodDef)
		if err != nil {
			return err
		}
		attr, err := code.Encode(a.cf.Pool)
		if err != nil {
			return fmt.Errorf("method %s.%s: %w", a.decl.Name(), m.Name, err)
		}
		attrs = append(attrs, attr)
	}
	if m.IsGeneric() {
		attrs = append(attrs, classfile.Signature(a.cf.Pool, m.GenericSignature()))
	}
	ann, err := a.annotations(m.Annotations)
	if err != nil {
		return fmt.Errorf("method %s.%s: %w", a.decl.Name(), m.Name, err)
	}
	attrs = append(attrs, ann...)
	a.cf.AddMethod(acc, m.Name, m.Descriptor(), attrs...)
	return nil
}

func (a *assembler) classAttributes(u *unit, sourceFile bool) error {
	p := a.cf.Pool
	d := a.decl
	if sourceFile {
		a.cf.Attributes = append(a.cf.Attributes, classfile.SourceFile(p, u.host.Type().SimpleName()+".java"))
	}
	if d.IsGeneric() {
		a.cf.Attributes = append(a.cf.Attributes, classfile.Signature(p, d.GenericSignature()))
	}
	if d.Kind() == model.KindRecord {
		attr, err := a.record()
		if err != nil {
			return err
		}
		a.cf.Attributes = append(a.cf.Attributes, attr)
	}
	ann, err := a.annotations(d.Annotations())
	if err != nil {
		return fmt.Errorf("type %s: %w", d.Name(), err)
	}
	a.cf.Attributes = append(a.cf.Attributes, ann...)

	if inner := innerClasses(d, u); len(inner) > 0 {
		a.cf.Attributes = append(a.cf.Attributes, classfile.InnerClasses(p, inner))
	}
	switch {
	case d != u.host:
		a.cf.Attributes = append(a.cf.Attributes, classfile.NestHost(p, u.host.Type().InternalName()))
	case len(u.members) > 0:
		names := make([]string, len(u.members))
		for i, m := range u.members {
			names[i] = m.Type().InternalName()
		}
		a.cf.Attributes = append(a.cf.Attributes, classfile.NestMembers(p, names))
	}
	return nil
}

// innerClasses lists d's enclosing chain, outermost first, then d's direct
// member types.
func innerClasses(d *model.TypeDecl, u *unit) []classfile.InnerClass {
	entry := func(n *model.TypeDecl) classfile.InnerClass {
		return classfile.InnerClass{
			Inner:  n.Type().InternalName(),
			Outer:  u.outer[n.Name()].Type().InternalName(),
			Simple: n.Type().SimpleName(),
			Access: innerAccess(n),
		}
	}
	var chain []classfile.InnerClass
	for n := d; n != u.host; n = u.outer[n.Name()] {
		chain = append([]classfile.InnerClass{entry(n)}, chain...)
	}
	for _, n := range d.Nested() {
		chain = append(chain, entry(n))
	}
	return chain
}

func (a *assembler) record() (classfile.Attribute, error) {
	var comps []classfile.RecordComponent
	for _, c := range a.decl.Components() {
		rc := classfile.RecordComponent{Name: c.Name, Desc: model.Descriptor(c.Type)}
		if model.IsGeneric(c.Type) {
			rc.Attributes = append(rc.Attributes, classfile.Signature(a.cf.Pool, model.Signature(c.Type)))
		}
		ann, err := a.annotations(c.Annotations)
		if err != nil {
			return classfile.Attribute{}, fmt.Errorf("record component %s.%s: %w", a.decl.Name(), c.Name, err)
		}
		rc.Attributes = append(rc.Attributes, ann...)
		comps = append(comps, rc)
	}
	return classfile.Record(a.cf.Pool, comps)
}

// ---------------------------------------------------------------------------
// Annotations
// ---------------------------------------------------------------------------

// annotations returns a RuntimeVisibleAnnotations attribute, or nothing for
// an empty list.
func (a *assembler) annotations(anns []model.AnnotationDef) ([]classfile.Attribute, error) {
	if len(anns) == 0 {
		return nil, nil
	}
	out := make([]classfile.Annotation, len(anns))
	for i, ad := range anns {
		ann, err := a.annotation(ad)
		if err != nil {
			return nil, err
		}
		out[i] = ann
	}
	attr, err := classfile.RuntimeVisibleAnnotations(a.cf.Pool, out)
	if err != nil {
		return nil, err
	}
	return []classfile.Attribute{attr}, nil
}

func (a *assembler) annotation(ad model.AnnotationDef) (classfile.Annotation, error) {
	ann := classfile.Annotation{Type: model.Descriptor(ad.Type)}
	for _, e := range ad.Elements {
		v, err := a.elementValue(e.Value)
		if err != nil {
			return classfile.Annotation{}, fmt.Errorf("@%s(%s): %w", ad.Type, e.Name, err)
		}
		ann.Elements = append(ann.Elements, classfile.ElementPair{Name: e.Name, Value: v})
	}
	return ann, nil
}

func (a *assembler) elementValue(v model.AnnotationValue) (classfile.ElementValue, error) {
	switch v := v.(type) {
	case model.Constant:
		return a.constantValue(v)
	case model.EnumConstantValue:
		return classfile.ElementValue{Tag: 'e', EnumType: model.Descriptor(v.Type), EnumName: v.Name}, nil
	case model.AnnotationDef:
		nested, err := a.annotation(v)
		if err != nil {
			return classfile.ElementValue{}, err
		}
		return classfile.ElementValue{Tag: '@', Annotation: &nested}, nil
	case model.ArrayValue:
		arr := classfile.ElementValue{Tag: '[', Array: make([]classfile.ElementValue, 0, len(v))}
		for _, e := range v {
			ev, err := a.elementValue(e)
			if err != nil {
				return classfile.ElementValue{}, err
			}
			arr.Array = append(arr.Array, ev)
		}
		return arr, nil
	}
	return classfile.ElementValue{}, fmt.Errorf("%w: annotation value %T", lower.ErrUnsupported, v)
}

func (a *assembler) constantValue(c model.Constant) (classfile.ElementValue, error) {
	p := a.cf.Pool
	switch v := c.Value.(type) {
	case string:
		return classfile.ElementValue{Tag: 's', Const: p.Utf8(v)}, nil
	case model.TypeDef:
		return classfile.ElementValue{Tag: 'c', Class: model.Descriptor(v)}, nil
	case nil:
		return classfile.ElementValue{}, fmt.Errorf("%w: null annotation value", lower.ErrUnsupported)
	}
	prim, ok := c.Typ.(model.Primitive)
	if !ok {
		return classfile.ElementValue{}, fmt.Errorf("%w: annotation constant of type %s", lower.ErrTypeMismatch, c.Typ)
	}
	tag := model.Descriptor(prim)[0]
	switch prim.Kind {
	case model.PrimLong:
		n, _ := c.IntValue()
		return classfile.ElementValue{Tag: tag, Const: p.Long(n)}, nil
	case model.PrimFloat:
		return classfile.ElementValue{Tag: tag, Const: p.Float(uint32(c.FloatBits()))}, nil
	case model.PrimDouble:
		return classfile.ElementValue{Tag: tag, Const: p.Double(c.FloatBits())}, nil
	}
	n, ok := c.IntValue()
	if !ok {
		return classfile.ElementValue{}, fmt.Errorf("%w: annotation constant %s", lower.ErrTypeMismatch, c)
	}
	return classfile.ElementValue{Tag: tag, Const: p.Integer(int32(n))}, nil
}
