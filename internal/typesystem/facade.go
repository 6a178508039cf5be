package typesystem

// AnyType is the top type: every other type is a subtype of it, and no
// leaf-type test can ever conclude more for it than "assume it matches".
var AnyType Type = TCon{Name: "Any"}

// IsAny reports whether t is the top type.
func IsAny(t Type) bool {
	c, ok := t.(TCon)
	return ok && c.Name == "Any" && c.UnderlyingType == nil
}

// IsSubtype reports whether sub is a subtype of super. Every type is a
// subtype of Any; a union sub needs every member under super; a union
// super needs sub under one of its members. Otherwise it is a thin,
// directional wrapper over UnifyAllowExtra(super, sub): sub <: super iff
// that unification succeeds while binding only super's own free variables
// (never sub's), so a type variable in sub is not a subtype of a concrete
// type.
func IsSubtype(sub, super Type) bool {
	if IsAny(super) {
		return true
	}
	if u, ok := sub.(TUnion); ok {
		for _, m := range u.Types {
			if !IsSubtype(m, super) {
				return false
			}
		}
		return true
	}
	if u, ok := super.(TUnion); ok {
		for _, m := range u.Types {
			if IsSubtype(sub, m) {
				return true
			}
		}
		return false
	}
	s, err := UnifyAllowExtra(super, sub)
	if err != nil {
		return false
	}
	for _, v := range sub.FreeTypeVariables() {
		if _, bound := s[v.Name]; bound {
			return false
		}
	}
	return true
}

// Intersect computes a type representing the overlap between a and b, and
// reports whether that overlap is non-empty. For leaf and tuple types this
// is exact; for the parts of the lattice this facade does not model in
// full generality (higher-rank polymorphism, row-polymorphic records under
// open union members) it conservatively reports "may intersect" by falling
// back to AnyType, which callers in internal/typemap treat as "must keep
// this entry as an ambiguity candidate" rather than silently dropping it.
func Intersect(a, b Type) (Type, bool) {
	if IsAny(a) {
		return b, true
	}
	if IsAny(b) {
		return a, true
	}
	if s, err := Unify(a, b); err == nil {
		return a.Apply(s), true
	}
	if IsSubtype(a, b) {
		return a, true
	}
	if IsSubtype(b, a) {
		return b, true
	}
	if ua, ok := a.(TUnion); ok {
		for _, m := range ua.Types {
			if _, ok := Intersect(m, b); ok {
				return AnyType, true
			}
		}
		return nil, false
	}
	if ub, ok := b.(TUnion); ok {
		for _, m := range ub.Types {
			if _, ok := Intersect(a, m); ok {
				return AnyType, true
			}
		}
		return nil, false
	}
	return nil, false
}

// Instantiate substitutes static parameter bindings into a (possibly
// polymorphic) signature, stripping a leading TForall quantifier over the
// variables being bound.
func Instantiate(t Type, bindings Subst) Type {
	if forall, ok := t.(TForall); ok {
		remaining := make([]TVar, 0, len(forall.Vars))
		for _, v := range forall.Vars {
			if _, bound := bindings[v.Name]; !bound {
				remaining = append(remaining, v)
			}
		}
		body := forall.Type.Apply(bindings)
		if len(remaining) == 0 {
			return body
		}
		return TForall{Vars: remaining, Constraints: forall.Constraints, Type: body}
	}
	return t.Apply(bindings)
}

// IsLeaf reports whether t is a concrete, non-parametric, non-variable
// type: a valid dispatch leaf with no further specialization possible.
func IsLeaf(t Type) bool {
	switch typ := t.(type) {
	case TCon:
		return typ.UnderlyingType == nil
	case TApp:
		for _, a := range typ.Args {
			if !IsLeaf(a) {
				return false
			}
		}
		return IsLeaf(typ.Constructor)
	default:
		return false
	}
}

// IsTuple reports whether t is a tuple type (an argument-type signature).
func IsTuple(t Type) bool {
	_, ok := t.(TTuple)
	return ok
}

// IsVararg reports whether t is a TFunc flagged as variadic. Tuples carry
// no variadic marker, so a TTuple always reports false.
func IsVararg(t Type) bool {
	f, ok := t.(TFunc)
	return ok && f.IsVariadic
}

// IsUnion reports whether t is a union type.
func IsUnion(t Type) bool {
	_, ok := t.(TUnion)
	return ok
}

// IsTypeVar reports whether t is an unbound type variable.
func IsTypeVar(t Type) bool {
	_, ok := t.(TVar)
	return ok
}

// IsTypeOfType reports whether t is a meta-type (Type{X}), and if so
// returns the wrapped type X.
func IsTypeOfType(t Type) (Type, bool) {
	tt, ok := t.(TType)
	if !ok {
		return nil, false
	}
	return tt.Type, true
}
