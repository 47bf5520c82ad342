package model

// HashPrime is the multiplier used when composing member hashes.
const HashPrime = 31

// HashComposition combines the null-safe hashes of values into one int:
// h = 31*h + hash(v) for each value in order. No values hash to 0.
func HashComposition(values ...Expr) Expr {
	if len(values) == 0 {
		return IntConst(0)
	}
	var h Expr = HashCode{Value: values[0]}
	for _, v := range values[1:] {
		h = MathOp{
			Op:    MathAdd,
			Left:  MathOp{Op: MathMul, Left: IntConst(HashPrime), Right: h},
			Right: HashCode{Value: v},
		}
	}
	return h
}

// EqualsAll is the conjunction of pairwise structural equality. No pairs is
// true.
func EqualsAll(left, right []Expr) Expr {
	if len(left) == 0 {
		return True
	}
	var e Expr = EqualsStructurally{Left: left[0], Right: right[0]}
	for i := 1; i < len(left); i++ {
		e = And{Left: e, Right: EqualsStructurally{Left: left[i], Right: right[i]}}
	}
	return e
}

// StringOf returns a String.valueOf call appropriate for t. char values keep
// their character form and other small integers widen to int.
func StringOf(x Expr) Expr {
	t := x.Type()
	param := TypeDef(TypeObject)
	if p, ok := Erase(t).(Primitive); ok {
		switch p.Kind {
		case PrimByte, PrimShort:
			param = Int
		default:
			param = p
		}
	} else if SameErasure(t, TypeString) {
		return x
	}
	return Method(TypeString, "valueOf", TypeString, param).CallStatic(x)
}

// Concat builds a string by appending parts to a StringBuilder.
func Concat(parts ...Expr) Expr {
	var sb Expr = NewInstance{Typ: TypeStringBuilder}
	for _, p := range parts {
		sb = Method(TypeStringBuilder, "append", TypeStringBuilder, TypeString).Call(sb, StringOf(p))
	}
	return Method(TypeStringBuilder, "toString", TypeString).Call(sb)
}
