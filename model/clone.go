package model

// Deep copies. A finalized TypeDecl owns every slice reachable from it, so
// Build copies what the builder collected and accessors copy what they
// hand out.

func cloneType(t TypeDef) TypeDef {
	switch t := t.(type) {
	case Parameterized:
		t.Args = cloneTypes(t.Args)
		return t
	case Wildcard:
		t.Upper = cloneTypes(t.Upper)
		t.Lower = cloneTypes(t.Lower)
		return t
	case TypeVariable:
		return cloneTypeVar(t)
	case Array:
		t.Component = cloneType(t.Component)
		return t
	case Annotated:
		t.Type = cloneType(t.Type)
		t.Annotations = cloneAnnotations(t.Annotations)
		return t
	}
	return t
}

func cloneTypes(ts []TypeDef) []TypeDef {
	if ts == nil {
		return nil
	}
	out := make([]TypeDef, len(ts))
	for i, t := range ts {
		out[i] = cloneType(t)
	}
	return out
}

func cloneTypeVar(v TypeVariable) TypeVariable {
	v.Bounds = cloneTypes(v.Bounds)
	return v
}

func cloneTypeVars(vs []TypeVariable) []TypeVariable {
	if vs == nil {
		return nil
	}
	out := make([]TypeVariable, len(vs))
	for i, v := range vs {
		out[i] = cloneTypeVar(v)
	}
	return out
}

// ---------------------------------------------------------------------------
// Expressions and statements
// ---------------------------------------------------------------------------

func cloneMethodRef(m MethodRef) MethodRef {
	m.Params = cloneTypes(m.Params)
	m.Returns = cloneType(m.Returns)
	return m
}

func cloneExpr(e Expr) Expr {
	switch e := e.(type) {
	case Constant:
		if t, ok := e.Value.(TypeDef); ok {
			e.Value = cloneType(t)
		}
		e.Typ = cloneType(e.Typ)
		return e
	case LocalVar:
		e.Typ = cloneType(e.Typ)
		return e
	case ParamRef:
		e.Typ = cloneType(e.Typ)
		return e
	case CaughtException:
		e.Typ = cloneType(e.Typ)
		return e
	case FieldRef:
		e.Instance = cloneExpr(e.Instance)
		e.Typ = cloneType(e.Typ)
		return e
	case StaticFieldRef:
		e.Typ = cloneType(e.Typ)
		return e
	case PropertyGet:
		e.Instance = cloneExpr(e.Instance)
		e.Typ = cloneType(e.Typ)
		return e
	case InvokeStatic:
		e.Method = cloneMethodRef(e.Method)
		e.Args = cloneExprs(e.Args)
		return e
	case InvokeInstance:
		e.Instance = cloneExpr(e.Instance)
		e.Method = cloneMethodRef(e.Method)
		e.Args = cloneExprs(e.Args)
		return e
	case NewInstance:
		e.Params = cloneTypes(e.Params)
		e.Args = cloneExprs(e.Args)
		return e
	case NewArray:
		e.Typ = cloneType(e.Typ).(Array)
		e.Size = cloneExpr(e.Size)
		return e
	case NewArrayInit:
		e.Typ = cloneType(e.Typ).(Array)
		e.Elements = cloneExprs(e.Elements)
		return e
	case Cast:
		e.Target = cloneType(e.Target)
		e.Value = cloneExpr(e.Value)
		return e
	case InstanceOf:
		e.Target = cloneType(e.Target)
		e.Value = cloneExpr(e.Value)
		return e
	case And:
		return And{Left: cloneExpr(e.Left), Right: cloneExpr(e.Right)}
	case Or:
		return Or{Left: cloneExpr(e.Left), Right: cloneExpr(e.Right)}
	case IsNull:
		return IsNull{Value: cloneExpr(e.Value)}
	case IsNotNull:
		return IsNotNull{Value: cloneExpr(e.Value)}
	case IsTrue:
		return IsTrue{Value: cloneExpr(e.Value)}
	case IsFalse:
		return IsFalse{Value: cloneExpr(e.Value)}
	case Compare:
		e.Left, e.Right = cloneExpr(e.Left), cloneExpr(e.Right)
		return e
	case MathOp:
		e.Left, e.Right = cloneExpr(e.Left), cloneExpr(e.Right)
		return e
	case Neg:
		return Neg{Value: cloneExpr(e.Value)}
	case Conditional:
		e.Cond, e.Then, e.Else = cloneExpr(e.Cond), cloneExpr(e.Then), cloneExpr(e.Else)
		e.Typ = cloneType(e.Typ)
		return e
	case SwitchExpr:
		e.Subject = cloneExpr(e.Subject)
		e.Typ = cloneType(e.Typ)
		e.Default = cloneExpr(e.Default)
		if e.Cases != nil {
			cases := make([]ExprCase, len(e.Cases))
			for i, c := range e.Cases {
				cases[i] = ExprCase{Keys: cloneExprs(c.Keys), Value: cloneExpr(c.Value)}
			}
			e.Cases = cases
		}
		return e
	case YieldBlock:
		e.Typ = cloneType(e.Typ)
		e.Body = cloneStmt(e.Body)
		return e
	case EqualsStructurally:
		return EqualsStructurally{Left: cloneExpr(e.Left), Right: cloneExpr(e.Right)}
	case NotEqualsStructurally:
		return NotEqualsStructurally{Left: cloneExpr(e.Left), Right: cloneExpr(e.Right)}
	case EqualsReferentially:
		return EqualsReferentially{Left: cloneExpr(e.Left), Right: cloneExpr(e.Right)}
	case NotEqualsReferentially:
		return NotEqualsReferentially{Left: cloneExpr(e.Left), Right: cloneExpr(e.Right)}
	case HashCode:
		return HashCode{Value: cloneExpr(e.Value)}
	case GetClass:
		return GetClass{Value: cloneExpr(e.Value)}
	case ArrayElement:
		return ArrayElement{Array: cloneExpr(e.Array), Index: cloneExpr(e.Index)}
	case ArrayLength:
		return ArrayLength{Array: cloneExpr(e.Array)}
	}
	// This, Super and nil hold no slices.
	return e
}

func cloneExprs(es []Expr) []Expr {
	if es == nil {
		return nil
	}
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = cloneExpr(e)
	}
	return out
}

func cloneStmt(s Stmt) Stmt {
	switch s := s.(type) {
	case Return:
		return Return{Value: cloneExpr(s.Value)}
	case Throw:
		return Throw{Value: cloneExpr(s.Value)}
	case Assign:
		return Assign{Target: cloneExpr(s.Target), Value: cloneExpr(s.Value)}
	case Define:
		s.Var.Typ = cloneType(s.Var.Typ)
		s.Value = cloneExpr(s.Value)
		return s
	case If:
		return If{Cond: cloneExpr(s.Cond), Then: cloneStmt(s.Then)}
	case IfElse:
		return IfElse{Cond: cloneExpr(s.Cond), Then: cloneStmt(s.Then), Else: cloneStmt(s.Else)}
	case While:
		return While{Cond: cloneExpr(s.Cond), Body: cloneStmt(s.Body)}
	case Switch:
		s.Subject = cloneExpr(s.Subject)
		s.Default = cloneStmt(s.Default)
		if s.Cases != nil {
			cases := make([]StmtCase, len(s.Cases))
			for i, c := range s.Cases {
				cases[i] = StmtCase{Keys: cloneExprs(c.Keys), Body: cloneStmt(c.Body)}
			}
			s.Cases = cases
		}
		return s
	case Synchronized:
		return Synchronized{Monitor: cloneExpr(s.Monitor), Body: cloneStmt(s.Body)}
	case Try:
		s.Body = cloneStmt(s.Body)
		s.Finally = cloneStmt(s.Finally)
		if s.Catches != nil {
			catches := make([]Catch, len(s.Catches))
			for i, c := range s.Catches {
				c.Body = cloneStmt(c.Body)
				catches[i] = c
			}
			s.Catches = catches
		}
		return s
	case Multi:
		return Multi{Stmts: cloneStmts(s.Stmts)}
	case ExprStmt:
		return ExprStmt{X: cloneExpr(s.X)}
	}
	return s
}

func cloneStmts(ss []Stmt) []Stmt {
	if ss == nil {
		return nil
	}
	out := make([]Stmt, len(ss))
	for i, s := range ss {
		out[i] = cloneStmt(s)
	}
	return out
}

// ---------------------------------------------------------------------------
// Annotations and members
// ---------------------------------------------------------------------------

func cloneAnnotationValue(v AnnotationValue) AnnotationValue {
	switch v := v.(type) {
	case Constant:
		return cloneExpr(v).(Constant)
	case AnnotationDef:
		return cloneAnnotation(v)
	case ArrayValue:
		out := make(ArrayValue, len(v))
		for i, e := range v {
			out[i] = cloneAnnotationValue(e)
		}
		return out
	}
	return v
}

func cloneAnnotation(a AnnotationDef) AnnotationDef {
	if a.Elements != nil {
		elems := make([]AnnotationElement, len(a.Elements))
		for i, e := range a.Elements {
			elems[i] = AnnotationElement{Name: e.Name, Value: cloneAnnotationValue(e.Value)}
		}
		a.Elements = elems
	}
	return a
}

func cloneAnnotations(as []AnnotationDef) []AnnotationDef {
	if as == nil {
		return nil
	}
	out := make([]AnnotationDef, len(as))
	for i, a := range as {
		out[i] = cloneAnnotation(a)
	}
	return out
}

func (f FieldDef) clone() FieldDef {
	f.Type = cloneType(f.Type)
	f.Initializer = cloneExpr(f.Initializer)
	f.Annotations = cloneAnnotations(f.Annotations)
	return f
}

func (p ParameterDef) clone() ParameterDef {
	p.Type = cloneType(p.Type)
	p.Annotations = cloneAnnotations(p.Annotations)
	return p
}

func (m MethodDef) clone() MethodDef {
	m.TypeParams = cloneTypeVars(m.TypeParams)
	m.Params = cloneEach(m.Params, ParameterDef.clone)
	m.Returns = cloneType(m.Returns)
	m.Body = cloneStmts(m.Body)
	m.Annotations = cloneAnnotations(m.Annotations)
	return m
}

func (p PropertyDef) clone() PropertyDef {
	p.Type = cloneType(p.Type)
	p.Annotations = cloneAnnotations(p.Annotations)
	return p
}

func (c EnumConstant) clone() EnumConstant {
	c.Args = cloneExprs(c.Args)
	return c
}

func cloneEach[T any](xs []T, clone func(T) T) []T {
	if xs == nil {
		return nil
	}
	out := make([]T, len(xs))
	for i, x := range xs {
		out[i] = clone(x)
	}
	return out
}

// clone copies every slice of d. Nested declarations are already
// finalized and are shared.
func (d *TypeDecl) clone() *TypeDecl {
	c := *d
	d = &c
	d.superclass = cloneType(d.superclass)
	d.interfaces = cloneTypes(d.interfaces)
	d.typeParams = cloneTypeVars(d.typeParams)
	d.fields = cloneEach(d.fields, FieldDef.clone)
	d.methods = cloneEach(d.methods, MethodDef.clone)
	d.properties = cloneEach(d.properties, PropertyDef.clone)
	d.annotations = cloneAnnotations(d.annotations)
	d.constants = cloneEach(d.constants, EnumConstant.clone)
	d.components = cloneEach(d.components, ParameterDef.clone)
	d.staticInit = cloneStmts(d.staticInit)
	d.nested = append([]*TypeDecl(nil), d.nested...)
	return d
}
