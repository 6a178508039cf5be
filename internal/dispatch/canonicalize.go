package dispatch

import (
	"github.com/gendispatch/gf/internal/config"
	"github.com/gendispatch/gf/internal/typesystem"
)

// Staged marks a method whose body must see the exact call signature
// (e.g. a method implementing compile-time code generation over its own
// argument types) and therefore must never be cached under a generalized
// signature. Grounded on the staged-method passthrough rule of
// cache_method in original_source/src/gf.c.
func (m *Method) Staged() bool { return m.staged }

// MarkStaged flags m as staged.
func (m *Method) MarkStaged() { m.staged = true }

// canonResult is what CacheMethod produces: the signature to actually
// key the dispatch cache under, a "simplesig" recorded alongside it on the
// cache entry (the call's own argument types, keeping the concrete type at
// any slot Rule 5 despecialized, with Rule 8's variadic-tail collapse
// applied as in CacheSig), and whether the cached entry is variadic.
type canonResult struct {
	CacheSig  []typesystem.Type
	Simplesig []typesystem.Type
	Vararg    bool

	// Generalized is set whenever any rule actually coarsened a slot away
	// from the call's own concrete type. A leaf signature (Generalized
	// false) can never be shadowed by a later, more specific definition —
	// it IS the most specific signature possible for this call — so it
	// needs no guardsigs. A generalized signature can be, and must be
	// guarded (see MethodTable.CacheAndStore).
	Generalized bool
}

// CacheMethod computes the signature a dispatch decision should be cached
// under, given the concrete call argument types and the method that was
// selected for them. This is a Go-native port of cache_method in
// original_source/src/gf.c (lines ~369-671): the eight ordered policy
// rules that keep the dispatch cache from growing one entry per distinct
// concrete call when a coarser signature would dispatch identically.
func CacheMethod(callTypes []typesystem.Type, m *Method) canonResult {
	if m.Staged() {
		// Rule 2: staged-method passthrough — cache the exact call, no
		// generalization, since the method body depends on it.
		return canonResult{CacheSig: callTypes, Simplesig: callTypes, Vararg: false}
	}

	declared, _ := argTypesOf(m.Sig)
	sig := append([]typesystem.Type(nil), callTypes...)
	simple := append([]typesystem.Type(nil), callTypes...)
	generalized := false

	for i, t := range sig {
		declSlot := declaredSlotAt(declared, m.Vararg, i)

		// Rule 1: kind-slot correction. A meta-type argument (Type{X})
		// is always cached as TType{X}, never as the bare X it might
		// structurally resemble, so Type-dispatching methods key
		// consistently regardless of how the caller constructed X.
		if wrapped, ok := typesystem.IsTypeOfType(t); ok {
			t = typesystem.TType{Type: wrapped}

			// Rule 3: Tuple-in-Type de-specialization. Type{(A, B, ...)}
			// would otherwise produce one cache entry per distinct tuple
			// shape seen; once the declared slot doesn't itself require
			// a specific tuple arity, generalize the wrapped tuple's
			// element types to Any.
			if tup, ok := wrapped.(typesystem.TTuple); ok && !requiresExactTuple(declSlot) {
				t = typesystem.TType{Type: genericTuple(len(tup.Elements))}
			}

			// Rule 6: Type{Type{...}} nesting bound. Cap nested meta-type
			// depth; beyond the bound, collapse to Type{Any}.
			if depth := typeOfTypeDepth(t); depth > config.MaxTupleDepth {
				t = typesystem.TType{Type: typesystem.AnyType}
			}

			// Rule 7: very-general Type slot collapsing. If the wrapped
			// type is already the top type, there's nothing left to
			// specialize on.
			if inner, ok := typesystem.IsTypeOfType(t); ok && typesystem.IsAny(inner) {
				t = typesystem.TType{Type: typesystem.AnyType}
			}
		}

		// Rule 4: ANY-flag collapsing. If the method's own declared slot
		// is exactly Any (no constraint at all), the concrete argument
		// type carries no dispatch-relevant information at this
		// position; cache Any instead of whatever concrete leaf type
		// happened to be passed.
		if declSlot != nil && typesystem.IsAny(declSlot) {
			t = typesystem.AnyType
		}

		// Rule 5: uncalled-function-argument despecialization. If the
		// declared slot is a function type, and the callee (per
		// bodyCallsArgument) never invokes that parameter, cache the
		// declared function type itself rather than the concrete
		// closure's type, and keep the concrete type only in simplesig
		// for ambiguity comparisons.
		if isFuncType(declSlot) && !m.bodyCallsArgument(i) {
			simple[i] = t
			t = declSlot
		}

		if t.String() != callTypes[i].String() {
			generalized = true
		}
		sig[i] = t
	}

	vararg := m.Vararg
	if vararg && len(sig) > len(declared) {
		generalized = true
		// Rule 8: variadic tail collapse with lasttype generalization.
		// Once the call supplies more arguments than the declared
		// signature has slots, the declared vararg slot and every
		// argument after it collapse into one trailing slot: their shared
		// type when all of them are the same type, otherwise Any. The cut
		// is always made at the declared vararg position; the method
		// table's MaxArgs is not consulted, so no leading run of the
		// trailing arguments is kept separately in the cache key.
		prefix := len(declared) - 1
		if prefix < 0 {
			prefix = 0
		}
		lastType := generalizeTrailing(sig[prefix:])
		sig = append(append([]typesystem.Type(nil), sig[:prefix]...), lastType)
		simple = append(append([]typesystem.Type(nil), simple[:prefix]...), lastType)
	}

	return canonResult{CacheSig: sig, Simplesig: simple, Vararg: vararg, Generalized: generalized}
}

func declaredSlotAt(declared []typesystem.Type, vararg bool, i int) typesystem.Type {
	if i < len(declared) {
		return declared[i]
	}
	if vararg && len(declared) > 0 {
		return declared[len(declared)-1]
	}
	return nil
}

func requiresExactTuple(declSlot typesystem.Type) bool {
	if declSlot == nil {
		return false
	}
	wrapped, ok := typesystem.IsTypeOfType(declSlot)
	if !ok {
		return false
	}
	_, isTuple := wrapped.(typesystem.TTuple)
	return isTuple
}

func genericTuple(n int) typesystem.Type {
	elems := make([]typesystem.Type, n)
	for i := range elems {
		elems[i] = typesystem.AnyType
	}
	return typesystem.TTuple{Elements: elems}
}

func typeOfTypeDepth(t typesystem.Type) int {
	depth := 0
	for {
		inner, ok := typesystem.IsTypeOfType(t)
		if !ok {
			return depth
		}
		depth++
		t = inner
	}
}

func isFuncType(t typesystem.Type) bool {
	if t == nil {
		return false
	}
	_, ok := t.(typesystem.TFunc)
	return ok
}

// bodyCallsArgument reports whether the method's body invokes its i'th
// parameter as a function. This engine has no access to the generated
// code's call graph (code generation is an out-of-scope external
// collaborator); callers that know their argument is never invoked mark
// it via NeverCallsArgument so the despecialization rule can still apply.
func (m *Method) bodyCallsArgument(i int) bool {
	for _, n := range m.neverCalls {
		if n == i {
			return false
		}
	}
	return true
}

// NeverCallsArgument records that the method body never invokes the
// argument at position i as a function, enabling the uncalled-function
// despecialization rule (Rule 5) for that slot.
func (m *Method) NeverCallsArgument(i int) {
	m.neverCalls = append(m.neverCalls, i)
}

func generalizeTrailing(types []typesystem.Type) typesystem.Type {
	if len(types) == 0 {
		return typesystem.AnyType
	}
	result := types[0]
	for _, t := range types[1:] {
		if result.String() != t.String() {
			return typesystem.AnyType
		}
	}
	return result
}
