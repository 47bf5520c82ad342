package model

import "strings"

// Modifiers is a set of declaration modifiers.
type Modifiers uint16

const (
	ModPublic Modifiers = 1 << iota
	ModPrivate
	ModProtected
	ModStatic
	ModFinal
	ModAbstract
	ModSynchronized
	ModVolatile
	ModTransient
)

// Has reports whether all of m2 are set in m.
func (m Modifiers) Has(m2 Modifiers) bool { return m&m2 == m2 }

// ---------------------------------------------------------------------------
// Annotations
// ---------------------------------------------------------------------------

// AnnotationValue is an annotation element value: a Constant, an
// EnumConstantValue, a nested AnnotationDef or an ArrayValue.
type AnnotationValue interface {
	isAnnotationValue()
}

func (Constant) isAnnotationValue() {}

// EnumConstantValue names an enum constant in an annotation.
type EnumConstantValue struct {
	Type ClassType
	Name string
}

func (EnumConstantValue) isAnnotationValue() {}

// ArrayValue is an array of element values.
type ArrayValue []AnnotationValue

func (ArrayValue) isAnnotationValue() {}

// AnnotationElement is one named element of an annotation.
type AnnotationElement struct {
	Name  string
	Value AnnotationValue
}

// AnnotationDef is an annotation usage. Elements keep declaration order.
type AnnotationDef struct {
	Type     ClassType
	Elements []AnnotationElement
}

func (AnnotationDef) isAnnotationValue() {}

// Annotation returns an annotation usage with the given elements.
func Annotation(t ClassType, elems ...AnnotationElement) AnnotationDef {
	return AnnotationDef{Type: t, Elements: append([]AnnotationElement(nil), elems...)}
}

// Elem returns a named annotation element.
func Elem(name string, v AnnotationValue) AnnotationElement {
	return AnnotationElement{Name: name, Value: v}
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// FieldDef declares a field. Instance initializers run in every constructor
// after the super call; static ones run in the static initializer.
type FieldDef struct {
	Name        string
	Type        TypeDef
	Modifiers   Modifiers
	Initializer Expr
	Annotations []AnnotationDef
}

// ParameterDef declares a method parameter.
type ParameterDef struct {
	Name        string
	Type        TypeDef
	Annotations []AnnotationDef
}

// ConstructorName is the method name of constructors.
const ConstructorName = "<init>"

// StaticInitName is the method name of the static initializer.
const StaticInitName = "<clinit>"

// MethodDef declares a method or constructor.
type MethodDef struct {
	Name        string
	Modifiers   Modifiers
	TypeParams  []TypeVariable
	Params      []ParameterDef
	Returns     TypeDef
	Body        []Stmt
	Annotations []AnnotationDef
}

// IsConstructor reports whether m is a constructor.
func (m MethodDef) IsConstructor() bool { return m.Name == ConstructorName }

// IsStatic reports whether m has no receiver.
func (m MethodDef) IsStatic() bool { return m.Modifiers.Has(ModStatic) || m.Name == StaticInitName }

// IsAbstract reports whether m has no body.
func (m MethodDef) IsAbstract() bool { return m.Modifiers.Has(ModAbstract) }

// ReturnType returns the declared return type, void when unset.
func (m MethodDef) ReturnType() TypeDef {
	if m.Returns == nil {
		return Void
	}
	return m.Returns
}

// ParamTypes returns the parameter types in order.
func (m MethodDef) ParamTypes() []TypeDef {
	ts := make([]TypeDef, len(m.Params))
	for i, p := range m.Params {
		ts[i] = p.Type
	}
	return ts
}

// Descriptor returns the erased method descriptor.
func (m MethodDef) Descriptor() string { return MethodDescriptor(m.ParamTypes(), m.ReturnType()) }

// Ref returns a reference to m as declared by owner.
func (m MethodDef) Ref(owner ClassType) MethodRef {
	return MethodRef{Owner: owner, Name: m.Name, Params: m.ParamTypes(), Returns: m.ReturnType()}
}

// IsGeneric reports whether m needs a Signature attribute.
func (m MethodDef) IsGeneric() bool {
	if len(m.TypeParams) > 0 || IsGeneric(m.ReturnType()) {
		return true
	}
	for _, p := range m.Params {
		if IsGeneric(p.Type) {
			return true
		}
	}
	return false
}

// GenericSignature returns the method's generic signature.
func (m MethodDef) GenericSignature() string {
	var b strings.Builder
	b.WriteString(TypeParamsSignature(m.TypeParams))
	b.WriteByte('(')
	for _, p := range m.Params {
		b.WriteString(Signature(p.Type))
	}
	b.WriteByte(')')
	b.WriteString(Signature(m.ReturnType()))
	return b.String()
}

// PropertyDef declares a property: a private field with accessors.
type PropertyDef struct {
	Name        string
	Type        TypeDef
	ReadOnly    bool
	Annotations []AnnotationDef
}

// GetterName returns the accessor method name for p on a type of kind k.
func (p PropertyDef) GetterName(k ClassKind) string {
	if k == KindRecord {
		return p.Name
	}
	return AccessorName("get", p.Name)
}

// SetterName returns the mutator method name for p.
func (p PropertyDef) SetterName() string { return AccessorName("set", p.Name) }

// AccessorName joins prefix with a capitalized property name.
func AccessorName(prefix, name string) string {
	if name == "" {
		return prefix
	}
	return prefix + strings.ToUpper(name[:1]) + name[1:]
}

// EnumConstant declares one constant of an enum with its constructor
// arguments.
type EnumConstant struct {
	Name string
	Args []Expr
}

// ---------------------------------------------------------------------------
// Declared types
// ---------------------------------------------------------------------------

// TypeDecl is a declared class, interface, enum or record. It is created by
// a TypeBuilder and is read-only; accessors return copies.
type TypeDecl struct {
	typ         ClassType
	modifiers   Modifiers
	superclass  TypeDef
	interfaces  []TypeDef
	typeParams  []TypeVariable
	fields      []FieldDef
	methods     []MethodDef
	properties  []PropertyDef
	annotations []AnnotationDef
	constants   []EnumConstant
	components  []ParameterDef
	staticInit  []Stmt
	nested      []*TypeDecl
}

// Type returns the class type this declaration defines.
func (d *TypeDecl) Type() ClassType { return d.typ }

// Name returns the binary name.
func (d *TypeDecl) Name() string { return d.typ.Name }

// Kind returns the declared kind.
func (d *TypeDecl) Kind() ClassKind { return d.typ.Kind }

// Modifiers returns the declaration modifiers.
func (d *TypeDecl) Modifiers() Modifiers { return d.modifiers }

// Superclass returns the declared superclass, defaulting by kind.
func (d *TypeDecl) Superclass() TypeDef {
	switch {
	case d.superclass != nil:
		return d.superclass
	case d.typ.Kind == KindEnum:
		return Generic(TypeEnum, d.typ)
	case d.typ.Kind == KindRecord:
		return TypeRecord
	}
	return TypeObject
}

// Interfaces returns the declared superinterfaces.
func (d *TypeDecl) Interfaces() []TypeDef { return cloneTypes(d.interfaces) }

// TypeParams returns the declared type parameters.
func (d *TypeDecl) TypeParams() []TypeVariable { return cloneTypeVars(d.typeParams) }

// Fields returns the declared fields.
func (d *TypeDecl) Fields() []FieldDef { return cloneEach(d.fields, FieldDef.clone) }

// Methods returns the declared methods and constructors.
func (d *TypeDecl) Methods() []MethodDef { return cloneEach(d.methods, MethodDef.clone) }

// Properties returns the declared properties.
func (d *TypeDecl) Properties() []PropertyDef {
	return cloneEach(d.properties, PropertyDef.clone)
}

// Annotations returns the type annotations.
func (d *TypeDecl) Annotations() []AnnotationDef { return cloneAnnotations(d.annotations) }

// EnumConstants returns the enum constants in declaration order.
func (d *TypeDecl) EnumConstants() []EnumConstant {
	return cloneEach(d.constants, EnumConstant.clone)
}

// Components returns the record components.
func (d *TypeDecl) Components() []ParameterDef {
	return cloneEach(d.components, ParameterDef.clone)
}

// StaticInit returns the static initializer body.
func (d *TypeDecl) StaticInit() []Stmt { return cloneStmts(d.staticInit) }

// Nested returns the member types. They are finalized declarations.
func (d *TypeDecl) Nested() []*TypeDecl { return append([]*TypeDecl(nil), d.nested...) }

// Field looks up a declared field, property-backing field, enum constant
// or record component by name.
func (d *TypeDecl) Field(name string) (FieldDef, bool) {
	for _, f := range d.fields {
		if f.Name == name {
			return f, true
		}
	}
	for _, p := range d.properties {
		if p.Name == name {
			return FieldDef{Name: p.Name, Type: p.Type, Modifiers: ModPrivate}, true
		}
	}
	for _, c := range d.components {
		if c.Name == name {
			return FieldDef{Name: c.Name, Type: c.Type, Modifiers: ModPrivate | ModFinal}, true
		}
	}
	for _, c := range d.constants {
		if c.Name == name {
			return FieldDef{Name: c.Name, Type: d.typ, Modifiers: ModPublic | ModStatic | ModFinal}, true
		}
	}
	return FieldDef{}, false
}

// HasConstructor reports whether a constructor is declared explicitly.
func (d *TypeDecl) HasConstructor() bool {
	for _, m := range d.methods {
		if m.IsConstructor() {
			return true
		}
	}
	return false
}

// IsGeneric reports whether the declaration needs a class Signature
// attribute.
func (d *TypeDecl) IsGeneric() bool {
	if len(d.typeParams) > 0 || IsGeneric(d.Superclass()) {
		return true
	}
	for _, i := range d.interfaces {
		if IsGeneric(i) {
			return true
		}
	}
	return false
}

// GenericSignature returns the class signature.
func (d *TypeDecl) GenericSignature() string {
	var b strings.Builder
	b.WriteString(TypeParamsSignature(d.typeParams))
	b.WriteString(Signature(d.Superclass()))
	for _, i := range d.interfaces {
		b.WriteString(Signature(i))
	}
	return b.String()
}

// Walk visits d and all nested declarations depth-first.
func (d *TypeDecl) Walk(fn func(*TypeDecl)) {
	fn(d)
	for _, n := range d.nested {
		n.Walk(fn)
	}
}
