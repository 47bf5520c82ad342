package model

import (
	"fmt"
	"strings"
	"unicode"
)

// TypeBuilder assembles a TypeDecl. Every call validates eagerly: the first
// violation is recorded as a *BuildError, later calls become no-ops and
// Build returns the error.
type TypeBuilder struct {
	decl  TypeDecl
	err   error
	built *TypeDecl

	fieldNames  map[string]string // field namespace: name -> declaring call
	methodSigs  map[string]bool   // name + erased parameter descriptor
	nestedNames map[string]bool
	typeParams  map[string]bool
	staticInit  bool
}

func newTypeBuilder(name string, kind ClassKind, call string) *TypeBuilder {
	b := &TypeBuilder{
		decl:        TypeDecl{typ: ClassType{Name: name, Kind: kind}},
		fieldNames:  make(map[string]string),
		methodSigs:  make(map[string]bool),
		nestedNames: make(map[string]bool),
		typeParams:  make(map[string]bool),
	}
	if err := CheckBinaryName(name); err != nil {
		b.fail(call, err)
	}
	return b
}

// NewClass starts a class declaration.
func NewClass(name string) *TypeBuilder { return newTypeBuilder(name, KindClass, "NewClass") }

// NewInterface starts an interface declaration.
func NewInterface(name string) *TypeBuilder {
	return newTypeBuilder(name, KindInterface, "NewInterface")
}

// NewEnum starts an enum declaration.
func NewEnum(name string) *TypeBuilder { return newTypeBuilder(name, KindEnum, "NewEnum") }

// NewRecord starts a record declaration.
func NewRecord(name string) *TypeBuilder { return newTypeBuilder(name, KindRecord, "NewRecord") }

// Type returns the class type being declared, for use in member bodies.
func (b *TypeBuilder) Type() ClassType { return b.decl.typ }

// Err returns the first recorded violation.
func (b *TypeBuilder) Err() error { return b.err }

func (b *TypeBuilder) fail(call string, err error) {
	if b.err == nil {
		b.err = &BuildError{Decl: b.decl.typ.Name, Call: call, Err: err}
	}
}

// accept reports whether call may proceed.
func (b *TypeBuilder) accept(call string) bool {
	if b.err != nil {
		return false
	}
	if b.built != nil {
		b.fail(call, fmt.Errorf("%w: declaration already built", ErrInvalidDecl))
		return false
	}
	return true
}

// Modifiers sets the declaration modifiers.
func (b *TypeBuilder) Modifiers(m Modifiers) *TypeBuilder {
	if b.accept("Modifiers") {
		if m.Has(ModAbstract) && m.Has(ModFinal) {
			b.fail("Modifiers", fmt.Errorf("%w: abstract and final", ErrInvalidDecl))
			return b
		}
		b.decl.modifiers = m
	}
	return b
}

// Extends sets the superclass. Only classes may extend.
func (b *TypeBuilder) Extends(t TypeDef) *TypeBuilder {
	if !b.accept("Extends") {
		return b
	}
	if b.decl.typ.Kind != KindClass {
		b.fail("Extends", fmt.Errorf("%w: a %s cannot declare a superclass", ErrInvalidDecl, b.decl.typ.Kind))
		return b
	}
	c, ok := Erase(t).(ClassType)
	if !ok || c.Kind == KindInterface {
		b.fail("Extends", fmt.Errorf("%w: %s is not a class", ErrInvalidDecl, t))
		return b
	}
	b.decl.superclass = t
	return b
}

// Implements adds superinterfaces.
func (b *TypeBuilder) Implements(ts ...TypeDef) *TypeBuilder {
	if !b.accept("Implements") {
		return b
	}
	for _, t := range ts {
		if c, ok := Erase(t).(ClassType); !ok || c.Kind != KindInterface {
			b.fail("Implements", fmt.Errorf("%w: %s is not an interface", ErrInvalidDecl, t))
			return b
		}
	}
	b.decl.interfaces = append(b.decl.interfaces, ts...)
	return b
}

// TypeParam declares a type parameter.
func (b *TypeBuilder) TypeParam(v TypeVariable) *TypeBuilder {
	if !b.accept("TypeParam") {
		return b
	}
	if err := CheckIdentifier(v.Name); err != nil {
		b.fail("TypeParam", err)
		return b
	}
	if b.typeParams[v.Name] {
		b.fail("TypeParam", fmt.Errorf("%w: type parameter %s", ErrDuplicateMember, v.Name))
		return b
	}
	b.typeParams[v.Name] = true
	b.decl.typeParams = append(b.decl.typeParams, v)
	return b
}

func (b *TypeBuilder) claimField(call, name string) bool {
	if err := CheckIdentifier(name); err != nil {
		b.fail(call, err)
		return false
	}
	if prev, ok := b.fieldNames[name]; ok {
		b.fail(call, fmt.Errorf("%w: %s already declared by %s", ErrDuplicateMember, name, prev))
		return false
	}
	b.fieldNames[name] = call
	return true
}

// Field declares a field. Interface fields are implicitly public static
// final.
func (b *TypeBuilder) Field(f FieldDef) *TypeBuilder {
	if !b.accept("Field") {
		return b
	}
	if f.Type == nil || IsVoid(f.Type) {
		b.fail("Field", fmt.Errorf("%w: field %s has no type", ErrInvalidDecl, f.Name))
		return b
	}
	switch b.decl.typ.Kind {
	case KindInterface:
		f.Modifiers |= ModPublic | ModStatic | ModFinal
	case KindRecord:
		if !f.Modifiers.Has(ModStatic) {
			b.fail("Field", fmt.Errorf("%w: record field %s must be static", ErrInvalidDecl, f.Name))
			return b
		}
	}
	if !b.claimField("Field", f.Name) {
		return b
	}
	f.Annotations = append([]AnnotationDef(nil), f.Annotations...)
	b.decl.fields = append(b.decl.fields, f)
	return b
}

// Method declares a method or constructor. Interface methods without a body
// that are not static become abstract.
func (b *TypeBuilder) Method(m MethodDef) *TypeBuilder {
	if !b.accept("Method") {
		return b
	}
	kind := b.decl.typ.Kind
	if kind == KindInterface {
		if m.IsConstructor() {
			b.fail("Method", fmt.Errorf("%w: interfaces have no constructors", ErrInvalidDecl))
			return b
		}
		if len(m.Body) == 0 && !m.Modifiers.Has(ModStatic) {
			m.Modifiers |= ModAbstract
		}
		if !m.Modifiers.Has(ModPrivate) {
			m.Modifiers |= ModPublic
		}
	}
	if err := validateMethod(m); err != nil {
		b.fail("Method", err)
		return b
	}
	if m.IsAbstract() && kind != KindInterface && !b.decl.modifiers.Has(ModAbstract) {
		b.fail("Method", fmt.Errorf("%w: abstract method %s in non-abstract %s", ErrInvalidDecl, m.Name, kind))
		return b
	}
	sig := m.Name + MethodDescriptor(m.ParamTypes(), Void)
	if b.methodSigs[sig] {
		b.fail("Method", fmt.Errorf("%w: method %s%s", ErrDuplicateMember, m.Name, m.Descriptor()))
		return b
	}
	b.methodSigs[sig] = true
	m.Params = append([]ParameterDef(nil), m.Params...)
	m.Body = append([]Stmt(nil), m.Body...)
	b.decl.methods = append(b.decl.methods, m)
	return b
}

// Property declares a property backed by a private field.
func (b *TypeBuilder) Property(p PropertyDef) *TypeBuilder {
	if !b.accept("Property") {
		return b
	}
	if p.Type == nil || IsVoid(p.Type) {
		b.fail("Property", fmt.Errorf("%w: property %s has no type", ErrInvalidDecl, p.Name))
		return b
	}
	if b.decl.typ.Kind == KindEnum || b.decl.typ.Kind == KindRecord {
		b.fail("Property", fmt.Errorf("%w: a %s cannot declare properties", ErrInvalidDecl, b.decl.typ.Kind))
		return b
	}
	if !b.claimField("Property", p.Name) {
		return b
	}
	b.decl.properties = append(b.decl.properties, p)
	return b
}

// Annotate adds a declaration annotation.
func (b *TypeBuilder) Annotate(a AnnotationDef) *TypeBuilder {
	if !b.accept("Annotate") {
		return b
	}
	if err := CheckBinaryName(a.Type.Name); err != nil {
		b.fail("Annotate", err)
		return b
	}
	b.decl.annotations = append(b.decl.annotations, a)
	return b
}

// Constant declares an enum constant with constructor arguments.
func (b *TypeBuilder) Constant(name string, args ...Expr) *TypeBuilder {
	if !b.accept("Constant") {
		return b
	}
	if b.decl.typ.Kind != KindEnum {
		b.fail("Constant", fmt.Errorf("%w: only enums declare constants", ErrInvalidDecl))
		return b
	}
	if !b.claimField("Constant", name) {
		return b
	}
	b.decl.constants = append(b.decl.constants, EnumConstant{Name: name, Args: append([]Expr(nil), args...)})
	return b
}

// Component declares a record component.
func (b *TypeBuilder) Component(name string, t TypeDef) *TypeBuilder {
	if !b.accept("Component") {
		return b
	}
	if b.decl.typ.Kind != KindRecord {
		b.fail("Component", fmt.Errorf("%w: only records declare components", ErrInvalidDecl))
		return b
	}
	if t == nil || IsVoid(t) {
		b.fail("Component", fmt.Errorf("%w: component %s has no type", ErrInvalidDecl, name))
		return b
	}
	if !b.claimField("Component", name) {
		return b
	}
	b.decl.components = append(b.decl.components, ParameterDef{Name: name, Type: t})
	return b
}

// StaticInit sets the static initializer body.
func (b *TypeBuilder) StaticInit(stmts ...Stmt) *TypeBuilder {
	if !b.accept("StaticInit") {
		return b
	}
	if b.staticInit {
		b.fail("StaticInit", fmt.Errorf("%w: static initializer", ErrDuplicateMember))
		return b
	}
	b.staticInit = true
	b.decl.staticInit = append([]Stmt(nil), stmts...)
	return b
}

// Nest adds a member type. Its binary name must be this type's name, '$',
// and a simple identifier.
func (b *TypeBuilder) Nest(d *TypeDecl) *TypeBuilder {
	if !b.accept("Nest") {
		return b
	}
	prefix := b.decl.typ.Name + "$"
	simple, ok := strings.CutPrefix(d.Name(), prefix)
	if !ok || strings.ContainsRune(simple, '$') {
		b.fail("Nest", fmt.Errorf("%w: %s is not a member type name of %s", ErrInvalidDecl, d.Name(), b.decl.typ.Name))
		return b
	}
	if b.nestedNames[simple] {
		b.fail("Nest", fmt.Errorf("%w: nested type %s", ErrDuplicateMember, simple))
		return b
	}
	b.nestedNames[simple] = true
	b.decl.nested = append(b.decl.nested, d)
	return b
}

// Build finalizes the declaration. Building twice returns the same value.
func (b *TypeBuilder) Build() (*TypeDecl, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.built != nil {
		return b.built, nil
	}
	if b.decl.typ.Kind == KindEnum && len(b.decl.constants) == 0 {
		b.fail("Build", ErrEmptyEnum)
		return nil, b.err
	}
	for _, p := range b.decl.properties {
		names := []string{p.GetterName(b.decl.typ.Kind)}
		if !p.ReadOnly {
			names = append(names, p.SetterName())
		}
		for _, n := range names {
			for _, m := range b.decl.methods {
				if m.Name == n {
					b.fail("Build", fmt.Errorf("%w: accessor %s of property %s", ErrDuplicateMember, n, p.Name))
					return nil, b.err
				}
			}
		}
	}
	b.built = b.decl.clone()
	return b.built, nil
}

// MustBuild is Build for declarations known to be valid; it panics on a
// violation.
func (b *TypeBuilder) MustBuild() *TypeDecl {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}

// NestedName returns the binary name of a member type.
func NestedName(outer ClassType, simple string) string { return outer.Name + "$" + simple }

// ---------------------------------------------------------------------------
// Method builder
// ---------------------------------------------------------------------------

// MethodBuilder assembles a MethodDef with the same sticky-error rules as
// TypeBuilder.
type MethodBuilder struct {
	m   MethodDef
	err error
}

// NewMethod starts a method declaration.
func NewMethod(name string) *MethodBuilder {
	b := &MethodBuilder{m: MethodDef{Name: name, Returns: Void}}
	if err := CheckIdentifier(name); err != nil {
		b.fail("NewMethod", err)
	}
	return b
}

// NewConstructor starts a constructor declaration.
func NewConstructor() *MethodBuilder {
	return &MethodBuilder{m: MethodDef{Name: ConstructorName, Returns: Void}}
}

func (b *MethodBuilder) fail(call string, err error) {
	if b.err == nil {
		b.err = &BuildError{Decl: b.m.Name, Call: call, Err: err}
	}
}

// Modifiers sets the method modifiers.
func (b *MethodBuilder) Modifiers(m Modifiers) *MethodBuilder {
	b.m.Modifiers = m
	return b
}

// Param appends a parameter.
func (b *MethodBuilder) Param(name string, t TypeDef, anns ...AnnotationDef) *MethodBuilder {
	if b.err != nil {
		return b
	}
	if err := CheckIdentifier(name); err != nil {
		b.fail("Param", err)
		return b
	}
	if t == nil || IsVoid(t) {
		b.fail("Param", fmt.Errorf("%w: parameter %s has no type", ErrInvalidDecl, name))
		return b
	}
	for _, p := range b.m.Params {
		if p.Name == name {
			b.fail("Param", fmt.Errorf("%w: parameter %s", ErrDuplicateMember, name))
			return b
		}
	}
	b.m.Params = append(b.m.Params, ParameterDef{Name: name, Type: t, Annotations: anns})
	return b
}

// Returns sets the return type.
func (b *MethodBuilder) Returns(t TypeDef) *MethodBuilder {
	if b.err == nil && b.m.IsConstructor() && !IsVoid(t) {
		b.fail("Returns", fmt.Errorf("%w: constructors return void", ErrInvalidDecl))
		return b
	}
	b.m.Returns = t
	return b
}

// TypeParam declares a method type parameter.
func (b *MethodBuilder) TypeParam(v TypeVariable) *MethodBuilder {
	if b.err != nil {
		return b
	}
	if err := CheckIdentifier(v.Name); err != nil {
		b.fail("TypeParam", err)
		return b
	}
	b.m.TypeParams = append(b.m.TypeParams, v)
	return b
}

// Annotate adds an annotation.
func (b *MethodBuilder) Annotate(a AnnotationDef) *MethodBuilder {
	b.m.Annotations = append(b.m.Annotations, a)
	return b
}

// Body appends statements to the body.
func (b *MethodBuilder) Body(stmts ...Stmt) *MethodBuilder {
	b.m.Body = append(b.m.Body, stmts...)
	return b
}

// Build finalizes the method.
func (b *MethodBuilder) Build() (MethodDef, error) {
	if b.err != nil {
		return MethodDef{}, b.err
	}
	if err := validateMethod(b.m); err != nil {
		return MethodDef{}, &BuildError{Decl: b.m.Name, Call: "Build", Err: err}
	}
	return b.m.clone(), nil
}

// MustBuild is Build for methods known to be valid.
func (b *MethodBuilder) MustBuild() MethodDef {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}
	return m
}

func validateMethod(m MethodDef) error {
	if !m.IsConstructor() {
		if err := CheckIdentifier(m.Name); err != nil {
			return err
		}
	} else if !IsVoid(m.ReturnType()) {
		return fmt.Errorf("%w: constructors return void", ErrInvalidDecl)
	}
	seen := make(map[string]bool, len(m.Params))
	for _, p := range m.Params {
		if err := CheckIdentifier(p.Name); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: parameter %s of %s", ErrDuplicateMember, p.Name, m.Name)
		}
		seen[p.Name] = true
	}
	if m.IsAbstract() {
		switch {
		case len(m.Body) > 0:
			return fmt.Errorf("%w: abstract method %s has a body", ErrInvalidDecl, m.Name)
		case m.Modifiers.Has(ModStatic):
			return fmt.Errorf("%w: abstract method %s is static", ErrInvalidDecl, m.Name)
		case m.IsConstructor():
			return fmt.Errorf("%w: abstract constructor", ErrInvalidDecl)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Name validation
// ---------------------------------------------------------------------------

var reserved = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`abstract assert boolean break byte case catch char class
		const continue default do double else enum extends final finally float for goto if
		implements import instanceof int interface long native new package private protected
		public return short static strictfp super switch synchronized this throw throws
		transient try void volatile while true false null _`) {
		reserved[w] = true
	}
}

// CheckIdentifier validates a simple identifier.
func CheckIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	}
	if reserved[name] {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidIdentifier, name)
	}
	for i, r := range name {
		switch {
		case unicode.IsLetter(r), r == '_', r == '$':
		case i > 0 && unicode.IsDigit(r):
		default:
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
		}
	}
	return nil
}

// CheckBinaryName validates a dotted binary type name whose last segment
// may contain '$'-separated member type names.
func CheckBinaryName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty type name", ErrInvalidIdentifier)
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		segs := []string{part}
		if i == len(parts)-1 {
			segs = strings.Split(part, "$")
		}
		for _, s := range segs {
			if err := CheckIdentifier(s); err != nil {
				return fmt.Errorf("type name %q: %w", name, err)
			}
		}
	}
	return nil
}
