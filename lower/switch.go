package lower

import (
	"fmt"
	"math"
	"slices"
	"unicode/utf16"

	"github.com/chazu/sourcegen/classfile"
	"github.com/chazu/sourcegen/model"
)

// maxTableRange bounds the size of a tableswitch regardless of density.
const maxTableRange = 1 << 16

// switchArm is one case of a switch statement or expression. body emits the
// arm: a statement, or a value coerced to the switch type.
type switchArm struct {
	keys []model.Expr
	body func() error
}

type intCase struct {
	key    int32
	target *classfile.Label
}

func (mc *MethodContext) lowerSwitchStmt(s model.Switch) error {
	arms := make([]switchArm, len(s.Cases))
	for i, c := range s.Cases {
		arms[i] = switchArm{keys: c.Keys, body: func() error { return mc.lowerStmt(c.Body) }}
	}
	var dflt func() error
	if s.Default != nil {
		dflt = func() error { return mc.lowerStmt(s.Default) }
	}
	return mc.lowerSwitch(s.Subject, arms, dflt)
}

func (mc *MethodContext) lowerSwitchExpr(e model.SwitchExpr) error {
	if e.Default == nil {
		return fmt.Errorf("%w: switch expression without a default", ErrUnsupported)
	}
	arms := make([]switchArm, len(e.Cases))
	for i, c := range e.Cases {
		arms[i] = switchArm{keys: c.Keys, body: func() error { return mc.exprAs(c.Value, e.Typ) }}
	}
	return mc.lowerSwitch(e.Subject, arms, func() error { return mc.exprAs(e.Default, e.Typ) })
}

// lowerSwitch dispatches on subject and lays out the arms in order, each
// ending with a jump past the switch. Without dflt, unmatched subjects skip
// the switch.
func (mc *MethodContext) lowerSwitch(subject model.Expr, arms []switchArm, dflt func() error) error {
	targets := make([]*classfile.Label, len(arms))
	for i := range targets {
		targets[i] = mc.NewLabel()
	}
	end := mc.NewLabel()
	dfltLabel := end
	if dflt != nil {
		dfltLabel = mc.NewLabel()
	}

	// The subject holder is dead once dispatch is done, so its scope ends
	// before the arms.
	if err := mc.scoped(func() error { return mc.dispatch(subject, arms, targets, dfltLabel) }); err != nil {
		return err
	}
	for i, arm := range arms {
		mc.label(targets[i])
		if err := mc.scoped(arm.body); err != nil {
			return err
		}
		if mc.code.Reachable() {
			mc.code.EmitJump(classfile.OpGoto, end)
		}
	}
	if dflt != nil {
		mc.label(dfltLabel)
		if err := mc.scoped(dflt); err != nil {
			return err
		}
	}
	mc.label(end)
	return nil
}

func (mc *MethodContext) dispatch(subject model.Expr, arms []switchArm, targets []*classfile.Label, dflt *classfile.Label) error {
	st := model.Erase(subject.Type())
	if p, ok := unboxedPrim(st); ok {
		switch p.Kind {
		case model.PrimInt, model.PrimShort, model.PrimByte, model.PrimChar:
			return mc.intDispatch(subject, arms, targets, dflt)
		}
		return fmt.Errorf("%w: switch on %s", ErrUnsupported, st)
	}
	if model.SameErasure(st, model.TypeString) {
		return mc.stringDispatch(subject, arms, targets, dflt)
	}
	if ct, ok := st.(model.ClassType); ok && mc.isEnum(ct) {
		return mc.enumDispatch(subject, ct, arms, targets, dflt)
	}
	return fmt.Errorf("%w: switch on %s", ErrUnsupported, st)
}

func (mc *MethodContext) isEnum(t model.ClassType) bool {
	if d, ok := mc.unit.lookupType(t.Name); ok {
		return d.Kind() == model.KindEnum
	}
	return t.Kind == model.KindEnum
}

// intDispatch switches on integral constant keys.
func (mc *MethodContext) intDispatch(subject model.Expr, arms []switchArm, targets []*classfile.Label, dflt *classfile.Label) error {
	var cases []intCase
	seen := make(map[int64]bool)
	for i, arm := range arms {
		for _, k := range arm.keys {
			c, ok := k.(model.Constant)
			v, isInt := c.IntValue()
			if _, isBool := c.Value.(bool); !ok || !isInt || isBool {
				return fmt.Errorf("%w: switch key %v is not an integral constant", ErrTypeMismatch, k)
			}
			if v < math.MinInt32 || v > math.MaxInt32 {
				return fmt.Errorf("%w: switch key %d overflows int", ErrTypeMismatch, v)
			}
			if seen[v] {
				return fmt.Errorf("%w: %d", ErrDuplicateKey, v)
			}
			seen[v] = true
			cases = append(cases, intCase{key: int32(v), target: targets[i]})
		}
	}
	if err := mc.exprAs(subject, model.Int); err != nil {
		return err
	}
	mc.intSwitch(cases, dflt)
	return nil
}

// intSwitch dispatches the int on the stack. Key sets at least as dense as
// the configured threshold use tableswitch; sparser ones use lookupswitch.
func (mc *MethodContext) intSwitch(cases []intCase, dflt *classfile.Label) {
	if len(cases) == 0 {
		mc.code.Emit(classfile.OpPop)
		mc.code.EmitJump(classfile.OpGoto, dflt)
		return
	}
	slices.SortFunc(cases, func(a, b intCase) int { return int(int64(a.key) - int64(b.key)) })
	low, high := cases[0].key, cases[len(cases)-1].key
	keyRange := int64(high) - int64(low) + 1
	if keyRange <= maxTableRange && float64(len(cases))/float64(keyRange) >= mc.unit.density() {
		table := make([]*classfile.Label, keyRange)
		for i := range table {
			table[i] = dflt
		}
		for _, c := range cases {
			table[int64(c.key)-int64(low)] = c.target
		}
		mc.code.EmitTableSwitch(low, high, dflt, table)
		return
	}
	keys := make([]int32, len(cases))
	labels := make([]*classfile.Label, len(cases))
	for i, c := range cases {
		keys[i], labels[i] = c.key, c.target
	}
	mc.code.EmitLookupSwitch(dflt, keys, labels)
}

// javaHash is String.hashCode over UTF-16 code units.
func javaHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return h
}

// stringDispatch switches on the subject's hashCode, then confirms each
// candidate with equals. A null subject throws, as in Java.
func (mc *MethodContext) stringDispatch(subject model.Expr, arms []switchArm, targets []*classfile.Label, dflt *classfile.Label) error {
	type candidate struct {
		key    string
		target *classfile.Label
	}
	buckets := make(map[int32][]candidate)
	var order []int32
	seen := make(map[string]bool)
	for i, arm := range arms {
		for _, k := range arm.keys {
			c, ok := k.(model.Constant)
			s, isStr := c.Value.(string)
			if !ok || !isStr {
				return fmt.Errorf("%w: switch key %v is not a string constant", ErrTypeMismatch, k)
			}
			if seen[s] {
				return fmt.Errorf("%w: %q", ErrDuplicateKey, s)
			}
			seen[s] = true
			h := javaHash(s)
			if _, ok := buckets[h]; !ok {
				order = append(order, h)
			}
			buckets[h] = append(buckets[h], candidate{key: s, target: targets[i]})
		}
	}

	tmp, err := mc.temp("switch", model.TypeString)
	if err != nil {
		return err
	}
	if err := mc.exprAs(subject, model.TypeString); err != nil {
		return err
	}
	mc.store(tmp)
	mc.load(tmp)
	mc.invokeVirtual("java/lang/String", "hashCode", "()I")

	cases := make([]intCase, len(order))
	for i, h := range order {
		cases[i] = intCase{key: h, target: mc.NewLabel()}
	}
	mc.intSwitch(slices.Clone(cases), dflt)
	for _, c := range cases {
		mc.label(c.target)
		for _, cand := range buckets[c.key] {
			mc.load(tmp)
			mc.ldc(mc.pool().String(cand.key))
			mc.invokeVirtual("java/lang/String", "equals", "(Ljava/lang/Object;)Z")
			mc.code.EmitJump(classfile.OpIfne, cand.target)
		}
		mc.code.EmitJump(classfile.OpGoto, dflt)
	}
	return nil
}

// enumDispatch compares the subject against each constant by identity. A
// null subject reaches the default.
func (mc *MethodContext) enumDispatch(subject model.Expr, enum model.ClassType, arms []switchArm, targets []*classfile.Label, dflt *classfile.Label) error {
	tmp, err := mc.temp("switch", enum)
	if err != nil {
		return err
	}
	if err := mc.exprAs(subject, enum); err != nil {
		return err
	}
	mc.store(tmp)
	seen := make(map[string]bool)
	for i, arm := range arms {
		for _, k := range arm.keys {
			ref, ok := k.(model.StaticFieldRef)
			if !ok || ref.Owner.Name != enum.Name {
				return fmt.Errorf("%w: switch key %v is not a constant of %s", ErrTypeMismatch, k, enum)
			}
			if seen[ref.Name] {
				return fmt.Errorf("%w: %s", ErrDuplicateKey, ref.Name)
			}
			seen[ref.Name] = true
			mc.load(tmp)
			if err := mc.lowerExpr(ref); err != nil {
				return err
			}
			mc.code.EmitJump(classfile.OpIfAcmpeq, targets[i])
		}
	}
	mc.code.EmitJump(classfile.OpGoto, dflt)
	return nil
}
