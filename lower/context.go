// Package lower turns IR method bodies into JVM bytecode. A MethodContext
// holds the per-method state: local slots and scopes, labels, synthetic
// names, open protected regions and switch-expression yield targets.
package lower

import (
	"fmt"
	"slices"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/frames"
	"github.com/chazu/sourcegen/model"
)

// DefaultSwitchDensity is the minimum ratio of keys to key range for which
// an integer switch is lowered to tableswitch.
const DefaultSwitchDensity = 0.5

// Options tune lowering decisions that do not affect behavior.
type Options struct {
	SwitchDensity float64
}

// Unit is the state shared by the methods of one declared type. It is
// read-only during lowering except for the constant pool and a defaulted
// Hierarchy.
type Unit struct {
	Decl      *model.TypeDecl
	Pool      *classfile.ConstantPool
	Hierarchy frames.Hierarchy
	Options   Options

	// Types holds every declared type of the generation batch by binary
	// name. Dispatch and field checks consult it before the type reference.
	Types map[string]*model.TypeDecl

	// Fields lists fields synthesized for Decl, such as an enum's $VALUES.
	Fields []model.FieldDef
}

func (u *Unit) lookupType(name string) (*model.TypeDecl, bool) {
	if u.Decl != nil && u.Decl.Name() == name {
		return u.Decl, true
	}
	d, ok := u.Types[name]
	return d, ok
}

// field resolves a field declared by owner. ok is false when owner is not a
// declared type; found is false when it is but has no such field.
func (u *Unit) field(owner, name string) (f model.FieldDef, ok, found bool) {
	d, ok := u.lookupType(owner)
	if !ok {
		return model.FieldDef{}, false, false
	}
	if f, found := d.Field(name); found {
		if d.Kind() == model.KindInterface {
			f.Modifiers |= model.ModStatic
		}
		return f, true, true
	}
	if d == u.Decl {
		for _, f := range u.Fields {
			if f.Name == name {
				return f, true, true
			}
		}
	}
	return model.FieldDef{}, true, false
}

func (u *Unit) density() float64 {
	if u.Options.SwitchDensity <= 0 {
		return DefaultSwitchDensity
	}
	return u.Options.SwitchDensity
}

// Local is a variable bound to a slot.
type Local struct {
	Name string
	Slot int
	Type model.TypeDef
}

type scope struct {
	vars map[string]Local
	base int // first slot owned by the scope
}

// span is one contiguous protected range of a region.
type span struct{ start, end *classfile.Label }

// region is an open try or synchronized body. Its protected code is split
// into spans so that inlined cleanups can be excluded from the handlers.
type region struct {
	spans   []span
	open    *classfile.Label
	cleanup func() error // nil for try without finally
}

type yieldTarget struct {
	typ model.TypeDef
	end *classfile.Label
}

// MethodContext is the mutable lowering state of one method. It is created
// per method and never shared.
type MethodContext struct {
	unit   *Unit
	method model.MethodDef
	code   *classfile.Code

	params    map[string]Local
	scopes    []*scope
	next      int
	maxLocals int
	names     int

	regions []*region
	yields  []*yieldTarget
	catches []Local
}

// NewMethodContext binds the receiver and parameters of m to their slots.
// A unit without a hierarchy gets one that knows only the platform classes.
func NewMethodContext(u *Unit, m model.MethodDef) *MethodContext {
	if u.Hierarchy == nil {
		u.Hierarchy = frames.NewHierarchy()
	}
	mc := &MethodContext{
		unit:   u,
		method: m,
		code:   classfile.NewCode(),
		params: make(map[string]Local, len(m.Params)),
	}
	if !m.IsStatic() {
		mc.next = 1
	}
	for _, p := range m.Params {
		mc.params[p.Name] = Local{Name: p.Name, Slot: mc.next, Type: p.Type}
		mc.next += model.Width(p.Type)
	}
	mc.maxLocals = mc.next
	mc.scopes = []*scope{{vars: make(map[string]Local), base: mc.next}}
	return mc
}

// Code returns the instruction buffer.
func (mc *MethodContext) Code() *classfile.Code { return mc.code }

// MaxLocals returns the highest slot count used so far.
func (mc *MethodContext) MaxLocals() int { return mc.maxLocals }

// NewLabel allocates an unresolved label.
func (mc *MethodContext) NewLabel() *classfile.Label { return mc.code.NewLabel() }

// ---------------------------------------------------------------------------
// Scopes and slots
// ---------------------------------------------------------------------------

// PushScope opens a lexical scope.
func (mc *MethodContext) PushScope() {
	mc.scopes = append(mc.scopes, &scope{vars: make(map[string]Local), base: mc.next})
}

// PopScope closes the innermost scope and frees its slots for later
// siblings. The method scope is never popped.
func (mc *MethodContext) PopScope() {
	if len(mc.scopes) == 1 {
		return
	}
	top := mc.scopes[len(mc.scopes)-1]
	mc.scopes = mc.scopes[:len(mc.scopes)-1]
	mc.next = top.base
}

// DeclareLocal binds name in the innermost scope to the next free slots.
// Names visible from an enclosing scope or as parameters may not be
// redeclared.
func (mc *MethodContext) DeclareLocal(name string, t model.TypeDef) (Local, error) {
	if model.IsVoid(t) {
		return Local{}, fmt.Errorf("%w: local %s", ErrVoidValue, name)
	}
	if _, ok := mc.Lookup(name); ok {
		return Local{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	l := Local{Name: name, Slot: mc.next, Type: t}
	mc.scopes[len(mc.scopes)-1].vars[name] = l
	mc.next += model.Width(t)
	mc.maxLocals = max(mc.maxLocals, mc.next)
	return l, nil
}

// Lookup resolves a local, innermost scope first, then the parameters.
func (mc *MethodContext) Lookup(name string) (Local, bool) {
	for i := len(mc.scopes) - 1; i >= 0; i-- {
		if l, ok := mc.scopes[i].vars[name]; ok {
			return l, true
		}
	}
	l, ok := mc.params[name]
	return l, ok
}

// Param resolves a parameter by name.
func (mc *MethodContext) Param(name string) (Local, bool) {
	l, ok := mc.params[name]
	return l, ok
}

// FreshName returns a synthetic local name that no visible local uses.
func (mc *MethodContext) FreshName(prefix string) string {
	for {
		name := fmt.Sprintf("$%s%d", prefix, mc.names)
		mc.names++
		if _, taken := mc.Lookup(name); !taken {
			return name
		}
	}
}

// temp declares a synthetic local in the innermost scope.
func (mc *MethodContext) temp(prefix string, t model.TypeDef) (Local, error) {
	return mc.DeclareLocal(mc.FreshName(prefix), t)
}

// scoped runs fn inside a fresh scope.
func (mc *MethodContext) scoped(fn func() error) error {
	mc.PushScope()
	defer mc.PopScope()
	return fn()
}

// ---------------------------------------------------------------------------
// Protected regions
// ---------------------------------------------------------------------------

func (mc *MethodContext) openRegion(cleanup func() error) *region {
	r := &region{open: mc.code.Here(), cleanup: cleanup}
	mc.regions = append(mc.regions, r)
	return r
}

// closeRegion ends the innermost region, which must be r.
func (mc *MethodContext) closeRegion(r *region) {
	r.pause(mc.code)
	if n := len(mc.regions); n > 0 && mc.regions[n-1] == r {
		mc.regions = mc.regions[:n-1]
	}
}

func (r *region) pause(c *classfile.Code) {
	if r.open != nil {
		r.spans = append(r.spans, span{start: r.open, end: c.Here()})
		r.open = nil
	}
}

func (r *region) resume(c *classfile.Code) {
	if r.open == nil {
		r.open = c.Here()
	}
}

// covers reports whether any span protects at least one instruction.
func (r *region) covers(c *classfile.Code) bool {
	for _, s := range r.spans {
		start, _ := c.Position(s.start)
		end, _ := c.Position(s.end)
		if start < end {
			return true
		}
	}
	return false
}

func (mc *MethodContext) needsCleanup() bool {
	for _, r := range mc.regions {
		if r.cleanup != nil {
			return true
		}
	}
	return false
}

// leave emits the cleanups of all open regions innermost first, then exit.
// Each cleanup is kept out of the ranges of the regions it leaves and is
// lowered with only the enclosing regions open. The ranges reopen after
// exit for code that follows.
func (mc *MethodContext) leave(exit func() error) error {
	open := mc.regions
	defer func() { mc.regions = open }()
	for i := len(open) - 1; i >= 0; i-- {
		r := open[i]
		r.pause(mc.code)
		if r.cleanup == nil {
			continue
		}
		mc.regions = slices.Clone(open[:i])
		if err := r.cleanup(); err != nil {
			return err
		}
	}
	mc.regions = open
	if err := exit(); err != nil {
		return err
	}
	for _, r := range open {
		r.resume(mc.code)
	}
	return nil
}
