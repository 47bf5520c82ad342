package writer

import (
	"fmt"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/lower"
	"github.com/chazu/sourcegen/model"
)

// field is a field to emit. extra carries flags with no modifier, such as
// ACC_ENUM.
type field struct {
	model.FieldDef
	extra uint16
}

type method struct {
	model.MethodDef
	extra uint16
}

// members is the complete member list of a class file: declared members
// plus everything the kind implies.
type members struct {
	fields    []field
	methods   []method
	synthetic []model.FieldDef // fields lowering must resolve beyond the declaration
}

// Names of the hidden enum constructor parameters and constant array.
const (
	enumNameParam    = "$name"
	enumOrdinalParam = "$ordinal"
	enumValuesField  = "$VALUES"
)

type synth struct {
	d   *model.TypeDecl
	typ model.ClassType
	out members
}

func synthesize(d *model.TypeDecl) (*members, error) {
	s := &synth{d: d, typ: d.Type()}
	s.fields()
	if err := s.methods(); err != nil {
		return nil, err
	}
	return &s.out, nil
}

func (s *synth) this() model.This { return model.This{Typ: s.typ} }

func (s *synth) self(name string, t model.TypeDef) model.FieldRef {
	return model.FieldRef{Instance: s.this(), Owner: s.typ, Name: name, Typ: t}
}

// declares reports whether the type declares a method with this name and
// descriptor, which then replaces the synthesized one.
func (s *synth) declares(name, desc string) bool {
	for _, m := range s.d.Methods() {
		if m.Name == name && m.Descriptor() == desc {
			return true
		}
	}
	return false
}

func (s *synth) addMethod(m model.MethodDef) {
	if s.declares(m.Name, m.Descriptor()) {
		return
	}
	s.out.methods = append(s.out.methods, method{MethodDef: m})
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

func (s *synth) fields() {
	d := s.d
	for _, c := range d.EnumConstants() {
		s.out.fields = append(s.out.fields, field{
			FieldDef: model.FieldDef{Name: c.Name, Type: s.typ, Modifiers: model.ModPublic | model.ModStatic | model.ModFinal},
			extra:    classfile.AccEnum,
		})
	}
	for _, f := range d.Fields() {
		s.out.fields = append(s.out.fields, field{FieldDef: f})
	}
	if !isInterface(d) {
		for _, p := range d.Properties() {
			s.out.fields = append(s.out.fields, field{FieldDef: model.FieldDef{
				Name: p.Name, Type: p.Type, Modifiers: model.ModPrivate, Annotations: p.Annotations,
			}})
		}
	}
	for _, c := range d.Components() {
		s.out.fields = append(s.out.fields, field{FieldDef: model.FieldDef{
			Name: c.Name, Type: c.Type, Modifiers: model.ModPrivate | model.ModFinal, Annotations: c.Annotations,
		}})
	}
	if d.Kind() == model.KindEnum {
		values := model.FieldDef{
			Name:      enumValuesField,
			Type:      model.ArrayOf(s.typ),
			Modifiers: model.ModPrivate | model.ModStatic | model.ModFinal,
		}
		s.out.fields = append(s.out.fields, field{FieldDef: values, extra: classfile.AccSynthetic})
		s.out.synthetic = append(s.out.synthetic, values)
	}
}

// ---------------------------------------------------------------------------
// Methods
// ---------------------------------------------------------------------------

func (s *synth) methods() error {
	d := s.d
	if d.Kind() == model.KindEnum {
		s.enumAccessors()
	}
	if !isInterface(d) {
		if err := s.constructors(); err != nil {
			return err
		}
	}
	for _, m := range d.Methods() {
		if m.IsConstructor() {
			continue
		}
		if isInterface(d) && len(m.Body) == 0 && !m.IsStatic() && !m.Modifiers.Has(model.ModPrivate) {
			m.Modifiers |= model.ModAbstract
		}
		s.out.methods = append(s.out.methods, method{MethodDef: m})
	}
	s.properties()
	if d.Kind() == model.KindRecord {
		s.recordMembers()
	}
	clinit, err := s.staticInit()
	if err != nil {
		return err
	}
	if len(clinit) > 0 {
		s.out.methods = append(s.out.methods, method{MethodDef: model.MethodDef{
			Name:      model.StaticInitName,
			Modifiers: model.ModStatic,
			Body:      clinit,
		}})
	}
	return nil
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func (s *synth) constructors() error {
	d := s.d
	if !d.HasConstructor() {
		ctor := model.MethodDef{Name: model.ConstructorName, Modifiers: s.defaultCtorAccess()}
		if d.Kind() == model.KindRecord {
			ctor.Modifiers = model.ModPublic
			for _, c := range d.Components() {
				ctor.Params = append(ctor.Params, model.ParameterDef{Name: c.Name, Type: c.Type})
				ctor.Body = append(ctor.Body, model.Assign{Target: s.self(c.Name, c.Type), Value: model.Param(c.Name, c.Type)})
			}
		}
		m, err := s.constructor(ctor)
		if err != nil {
			return err
		}
		s.out.methods = append(s.out.methods, method{MethodDef: m})
		return nil
	}
	for _, ctor := range d.Methods() {
		if !ctor.IsConstructor() {
			continue
		}
		m, err := s.constructor(ctor)
		if err != nil {
			return err
		}
		s.out.methods = append(s.out.methods, method{MethodDef: m})
	}
	return nil
}

func (s *synth) defaultCtorAccess() model.Modifiers {
	if s.d.Kind() == model.KindEnum {
		return model.ModPrivate
	}
	return s.d.Modifiers() & (model.ModPublic | model.ModProtected | model.ModPrivate)
}

// constructor completes a constructor body: a super call is added unless
// the body starts with an explicit super(...) or this(...), and instance
// field initializers run right after the super call. Enum constructors gain
// the name and ordinal parameters and are private.
func (s *synth) constructor(m model.MethodDef) (model.MethodDef, error) {
	body := m.Body
	call, explicit := explicitConstructorCall(body)
	var head []model.Stmt
	if explicit {
		_, delegates := call.Instance.(model.This)
		if s.d.Kind() == model.KindEnum {
			if !delegates {
				return m, s.errorf(m, "ExprStmt", "%w: explicit super constructor call in enum %s", lower.ErrUnsupported, s.typ)
			}
			call.Method.Params = append([]model.TypeDef{model.TypeString, model.Int}, call.Method.Params...)
			call.Args = append([]model.Expr{model.Param(enumNameParam, model.TypeString), model.Param(enumOrdinalParam, model.Int)}, call.Args...)
		}
		head = append(head, model.ExprStmt{X: call})
		if !delegates {
			head = append(head, s.instanceInits()...)
		}
		body = body[1:]
	} else {
		head = append(head, model.ExprStmt{X: s.superCall()})
		head = append(head, s.instanceInits()...)
	}
	m.Body = append(head, body...)

	if s.d.Kind() == model.KindEnum {
		m.Params = append([]model.ParameterDef{
			{Name: enumNameParam, Type: model.TypeString},
			{Name: enumOrdinalParam, Type: model.Int},
		}, m.Params...)
		m.Modifiers = m.Modifiers&^(model.ModPublic|model.ModProtected) | model.ModPrivate
	}
	return m, nil
}

func explicitConstructorCall(body []model.Stmt) (model.InvokeInstance, bool) {
	if len(body) == 0 {
		return model.InvokeInstance{}, false
	}
	es, ok := body[0].(model.ExprStmt)
	if !ok {
		return model.InvokeInstance{}, false
	}
	call, ok := es.X.(model.InvokeInstance)
	if !ok || call.Method.Name != model.ConstructorName {
		return model.InvokeInstance{}, false
	}
	switch call.Instance.(type) {
	case model.This, model.Super:
		return call, true
	}
	return model.InvokeInstance{}, false
}

func (s *synth) superType() model.ClassType {
	if c, ok := model.Erase(s.d.Superclass()).(model.ClassType); ok {
		return c
	}
	return model.TypeObject
}

func (s *synth) superCall() model.InvokeInstance {
	super := s.superType()
	if s.d.Kind() == model.KindEnum {
		return model.Method(model.TypeEnum, model.ConstructorName, model.Void, model.TypeString, model.Int).
			Call(model.Super{Typ: model.TypeEnum}, model.Param(enumNameParam, model.TypeString), model.Param(enumOrdinalParam, model.Int))
	}
	return model.Method(super, model.ConstructorName, model.Void).Call(model.Super{Typ: super})
}

func (s *synth) instanceInits() []model.Stmt {
	var out []model.Stmt
	for _, f := range s.d.Fields() {
		if f.Initializer == nil || f.Modifiers.Has(model.ModStatic) {
			continue
		}
		out = append(out, model.Assign{Target: s.self(f.Name, f.Type), Value: f.Initializer})
	}
	return out
}

// ---------------------------------------------------------------------------
// Static initializer
// ---------------------------------------------------------------------------

func (s *synth) staticInit() ([]model.Stmt, error) {
	var out []model.Stmt
	if s.d.Kind() == model.KindEnum {
		consts, err := s.enumConstants()
		if err != nil {
			return nil, err
		}
		out = append(out, consts...)
	}
	for _, f := range s.d.Fields() {
		if f.Initializer == nil || !(f.Modifiers.Has(model.ModStatic) || isInterface(s.d)) {
			continue
		}
		out = append(out, model.Assign{
			Target: model.StaticFieldRef{Owner: s.typ, Name: f.Name, Typ: f.Type},
			Value:  f.Initializer,
		})
	}
	return append(out, s.d.StaticInit()...), nil
}

// enumConstants constructs every constant with its name and ordinal, then
// fills $VALUES.
func (s *synth) enumConstants() ([]model.Stmt, error) {
	var (
		out    []model.Stmt
		values []model.Expr
	)
	for i, c := range s.d.EnumConstants() {
		params, err := s.enumConstructor(c)
		if err != nil {
			return nil, err
		}
		args := append([]model.Expr{model.StringConst(c.Name), model.IntConst(i)}, c.Args...)
		out = append(out, model.Assign{
			Target: model.EnumValue(s.typ, c.Name),
			Value: model.NewInstance{
				Typ:    s.typ,
				Params: append([]model.TypeDef{model.TypeString, model.Int}, params...),
				Args:   args,
			},
		})
		values = append(values, model.EnumValue(s.typ, c.Name))
	}
	out = append(out, model.Assign{
		Target: model.StaticFieldRef{Owner: s.typ, Name: enumValuesField, Typ: model.ArrayOf(s.typ)},
		Value:  model.NewArrayInit{Typ: model.ArrayOf(s.typ), Elements: values},
	})
	return out, nil
}

// enumConstructor returns the declared parameter types of the first
// constructor taking as many arguments as the constant passes.
func (s *synth) enumConstructor(c model.EnumConstant) ([]model.TypeDef, error) {
	if !s.d.HasConstructor() && len(c.Args) == 0 {
		return nil, nil
	}
	for _, m := range s.d.Methods() {
		if m.IsConstructor() && len(m.Params) == len(c.Args) {
			return m.ParamTypes(), nil
		}
	}
	return nil, s.errorf(model.MethodDef{Name: model.StaticInitName, Modifiers: model.ModStatic}, "EnumConstant",
		"%w: no constructor of %s takes %d arguments for constant %s", lower.ErrUnresolved, s.typ, len(c.Args), c.Name)
}

func (s *synth) enumAccessors() {
	arr := model.ArrayOf(s.typ)
	s.addMethod(model.MethodDef{
		Name:      "values",
		Modifiers: model.ModPublic | model.ModStatic,
		Returns:   arr,
		Body: []model.Stmt{model.Ret(model.Cast{
			Target: arr,
			Value: model.Method(model.TypeObject, "clone", model.TypeObject).
				Call(model.StaticFieldRef{Owner: s.typ, Name: enumValuesField, Typ: arr}),
		})},
	})
	s.addMethod(model.MethodDef{
		Name:      "valueOf",
		Modifiers: model.ModPublic | model.ModStatic,
		Params:    []model.ParameterDef{{Name: "name", Type: model.TypeString}},
		Returns:   s.typ,
		Body: []model.Stmt{model.Ret(model.Cast{
			Target: s.typ,
			Value: model.Method(model.TypeEnum, "valueOf", model.TypeEnum, model.TypeClass, model.TypeString).
				CallStatic(model.ClassLiteral(s.typ), model.Param("name", model.TypeString)),
		})},
	})
}

// ---------------------------------------------------------------------------
// Properties and records
// ---------------------------------------------------------------------------

func (s *synth) properties() {
	iface := isInterface(s.d)
	for _, p := range s.d.Properties() {
		getter := model.MethodDef{Name: p.GetterName(s.d.Kind()), Modifiers: model.ModPublic, Returns: p.Type}
		setter := model.MethodDef{
			Name:      p.SetterName(),
			Modifiers: model.ModPublic,
			Params:    []model.ParameterDef{{Name: p.Name, Type: p.Type}},
		}
		if iface {
			getter.Modifiers |= model.ModAbstract
			setter.Modifiers |= model.ModAbstract
		} else {
			getter.Body = []model.Stmt{model.Ret(s.self(p.Name, p.Type))}
			setter.Body = []model.Stmt{model.Assign{Target: s.self(p.Name, p.Type), Value: model.Param(p.Name, p.Type)}}
		}
		s.addMethod(getter)
		if !p.ReadOnly {
			s.addMethod(setter)
		}
	}
}

func (s *synth) recordMembers() {
	comps := s.d.Components()
	var mine, theirs, text []model.Expr
	other := model.Local("that", s.typ)
	for i, c := range comps {
		s.addMethod(model.MethodDef{
			Name:      c.Name,
			Modifiers: model.ModPublic,
			Returns:   c.Type,
			Body:      []model.Stmt{model.Ret(s.self(c.Name, c.Type))},
		})
		mine = append(mine, s.self(c.Name, c.Type))
		theirs = append(theirs, model.FieldRef{Instance: other, Owner: s.typ, Name: c.Name, Typ: c.Type})

		sep := ", "
		if i == 0 {
			sep = s.typ.SimpleName() + "["
		}
		text = append(text, model.StringConst(sep+c.Name+"="), s.self(c.Name, c.Type))
	}
	if len(comps) == 0 {
		text = append(text, model.StringConst(s.typ.SimpleName()+"["))
	}
	text = append(text, model.StringConst("]"))

	o := model.Param("o", model.TypeObject)
	s.addMethod(model.MethodDef{
		Name:      "equals",
		Modifiers: model.ModPublic | model.ModFinal,
		Params:    []model.ParameterDef{{Name: "o", Type: model.TypeObject}},
		Returns:   model.Boolean,
		Body: []model.Stmt{
			model.If{Cond: model.EqualsReferentially{Left: s.this(), Right: o}, Then: model.Ret(model.True)},
			model.If{Cond: model.Not(model.InstanceOf{Value: o, Target: s.typ}), Then: model.Ret(model.False)},
			model.Define{Var: other, Value: model.Cast{Target: s.typ, Value: o}},
			model.Ret(model.EqualsAll(mine, theirs)),
		},
	})
	s.addMethod(model.MethodDef{
		Name:      "hashCode",
		Modifiers: model.ModPublic | model.ModFinal,
		Returns:   model.Int,
		Body:      []model.Stmt{model.Ret(model.HashComposition(mine...))},
	})
	s.addMethod(model.MethodDef{
		Name:      "toString",
		Modifiers: model.ModPublic | model.ModFinal,
		Returns:   model.TypeString,
		Body:      []model.Stmt{model.Ret(model.Concat(text...))},
	})
}

func (s *synth) errorf(m model.MethodDef, node, format string, args ...any) error {
	return &lower.Error{
		Type:   s.d.Name(),
		Member: m.Name + m.Descriptor(),
		Node:   node,
		Err:    fmt.Errorf(format, args...),
	}
}
