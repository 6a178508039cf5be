package dispatch

import (
	"testing"

	"github.com/gendispatch/gf/internal/typesystem"
)

func TestApplyGenericSimpleConcreteDispatch(t *testing.T) {
	rt := NewRuntime()
	rt.MethodTableFor("f")
	mt := rt.MethodTableFor("f")
	if _, err := mt.DefineMethod("f", fn(tcon("Int")), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cs := NewCallSite()
	result, err := rt.ApplyGeneric("f", cs, []Value{constVal(tcon("Int"))})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if result.RuntimeType().String() != "Int" {
		t.Fatalf("expected echoed Int value, got %s", result.RuntimeType())
	}
}

func TestApplyGenericSpecificityTieBreak(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	pickGeneral := false
	generalFn := func(sparams typesystem.Subst, args []Value) (Value, error) {
		pickGeneral = true
		return args[0], nil
	}
	pickSpecific := false
	specificFn := func(sparams typesystem.Subst, args []Value) (Value, error) {
		pickSpecific = true
		return args[0], nil
	}
	if _, err := mt.DefineMethod("f", fn(typesystem.AnyType), nil, false, generalFn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mt.DefineMethod("f", fn(tcon("Int")), nil, false, specificFn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cs := NewCallSite()
	if _, err := rt.ApplyGeneric("f", cs, []Value{constVal(tcon("Int"))}); err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if !pickSpecific || pickGeneral {
		t.Fatalf("expected the more specific Int method to win over Any")
	}
}

func TestApplyGenericNoMatchReturnsMethodError(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	if _, err := mt.DefineMethod("f", fn(tcon("Int")), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cs := NewCallSite()
	_, err := rt.ApplyGeneric("f", cs, []Value{constVal(tcon("String"))})
	if _, ok := err.(*MethodError); !ok {
		t.Fatalf("expected a MethodError for an unmatched call, got %v", err)
	}
}

func TestApplyGenericVarargCap(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	if _, err := mt.DefineMethod("f", fnVar(tcon("Int")), nil, true, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cs := NewCallSite()
	args := []Value{constVal(tcon("Int")), constVal(tcon("Int")), constVal(tcon("Int"))}
	if _, err := rt.ApplyGeneric("f", cs, args); err != nil {
		t.Fatalf("expected a variadic method to accept extra trailing args: %v", err)
	}
}

func TestApplyGenericCallsiteCacheServesRepeatedCalls(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	calls := 0
	counting := func(sparams typesystem.Subst, args []Value) (Value, error) {
		calls++
		return args[0], nil
	}
	if _, err := mt.DefineMethod("f", fn(tcon("Int")), nil, false, counting); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cs := NewCallSite()
	for i := 0; i < 3; i++ {
		if _, err := rt.ApplyGeneric("f", cs, []Value{constVal(tcon("Int"))}); err != nil {
			t.Fatalf("unexpected dispatch error: %v", err)
		}
	}
	if calls != 3 {
		t.Fatalf("expected the body to run on every call regardless of cache, got %d", calls)
	}
	if cs.Stats().Hits == 0 {
		t.Fatalf("expected the callsite micro-cache to register at least one hit across repeated calls")
	}
}

func TestRedefinitionInvalidatesCache(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	original := func(sparams typesystem.Subst, args []Value) (Value, error) {
		return constVal(tcon("Original")), nil
	}
	if _, err := mt.DefineMethod("f", fn(tcon("Int")), nil, false, original); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cs := NewCallSite()
	first, err := rt.ApplyGeneric("f", cs, []Value{constVal(tcon("Int"))})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if first.RuntimeType().String() != "Original" {
		t.Fatalf("expected the original method's result, got %s", first.RuntimeType())
	}

	redefined := func(sparams typesystem.Subst, args []Value) (Value, error) {
		return constVal(tcon("Redefined")), nil
	}
	if _, err := mt.DefineMethod("f", fn(tcon("Int")), nil, false, redefined); err != nil {
		t.Fatalf("unexpected error redefining method: %v", err)
	}

	// A brand new callsite cache (simulating a different call location, or
	// one whose micro-cache missed) must observe the redefinition via the
	// method table's own cache, which invalidateConflicting purged.
	cs2 := NewCallSite()
	second, err := rt.ApplyGeneric("f", cs2, []Value{constVal(tcon("Int"))})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if second.RuntimeType().String() != "Redefined" {
		t.Fatalf("expected the redefined method's result after invalidation, got %s", second.RuntimeType())
	}
}

func TestRedefinitionInvalidatesSameCallsiteCache(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("p")
	original := func(sparams typesystem.Subst, args []Value) (Value, error) {
		return constVal(tcon("One")), nil
	}
	if _, err := mt.DefineMethod("p", fn(tcon("Int")), nil, false, original); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cs := NewCallSite()
	first, err := rt.ApplyGeneric("p", cs, []Value{constVal(tcon("Int"))})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if first.RuntimeType().String() != "One" {
		t.Fatalf("expected the original method's result, got %s", first.RuntimeType())
	}
	if cs.Stats().Occupied == 0 {
		t.Fatalf("expected the callsite micro-cache to have populated a slot")
	}

	redefined := func(sparams typesystem.Subst, args []Value) (Value, error) {
		return constVal(tcon("Two")), nil
	}
	if _, err := mt.DefineMethod("p", fn(tcon("Int")), nil, false, redefined); err != nil {
		t.Fatalf("unexpected error redefining method: %v", err)
	}

	// The very same callsite that had cached the original dispatch decision
	// must observe the redefinition: its cached slot was stored under the
	// method table's pre-redefinition generation, so the generation bump on
	// insert makes the slot a miss, falling through to the (already
	// invalidated) method table cache and landing on the new method.
	second, err := rt.ApplyGeneric("p", cs, []Value{constVal(tcon("Int"))})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if second.RuntimeType().String() != "Two" {
		t.Fatalf("expected the redefined method's result on the same callsite, got %s", second.RuntimeType())
	}
}

func TestInvokeExplicitSignature(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	if _, err := mt.DefineMethod("f", fn(tcon("Int")), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := rt.Invoke("f", []typesystem.Type{tcon("Int")}, []Value{constVal(tcon("Int"))})
	if err != nil {
		t.Fatalf("unexpected invoke error: %v", err)
	}
	if result.RuntimeType().String() != "Int" {
		t.Fatalf("expected Int, got %s", result.RuntimeType())
	}

	_, err = rt.Invoke("f", []typesystem.Type{tcon("String")}, []Value{constVal(tcon("String"))})
	if _, ok := err.(*MethodError); !ok {
		t.Fatalf("expected Invoke to reject a signature no definition matches, got %v", err)
	}
}

// TestInvokeUsesSubtypeLookup pins §4.C7's invoke semantics: the types
// passed to Invoke need only be a subtype match against some definition's
// declared signature, not identical to it, matching ordinary dispatch's
// own assoc_by_type(exact=false, subtype=true) lookup.
func TestInvokeUsesSubtypeLookup(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("q")
	if _, err := mt.DefineMethod("q", fn(typesystem.AnyType), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := rt.Invoke("q", []typesystem.Type{tcon("Int")}, []Value{constVal(tcon("Int"))})
	if err != nil {
		t.Fatalf("expected Invoke to dispatch Int against a method declared for Any, got %v", err)
	}
	if result.RuntimeType().String() != "Int" {
		t.Fatalf("expected Int, got %s", result.RuntimeType())
	}
}

// TestCacheGuardRejectsGeneralizedEntryForMoreSpecificSibling pins spec
// §4.C4 / invariant 3: a dispatch-cache entry built for a method whose own
// declared slot is Any, and therefore coarsened away from the call's own
// concrete type, must not be reused for a later call that a more specific
// sibling (defined at the same position) also matches.
//
// g(Any, Int) and g(Int, Int) together make g(Int,Int) strictly more
// specific than g(Any,Int). Calling g(String, Int) only matches the Any
// method and caches it under the generalized signature (Any, Int), guarded
// by g(Int, Int)'s signature. A later call g(Int, Int), on a fresh callsite,
// must not be served by that generalized entry — it must re-dispatch and
// land on the Int method instead.
func TestCacheGuardRejectsGeneralizedEntryForMoreSpecificSibling(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("g")

	ranAny := false
	anyFn := func(sparams typesystem.Subst, args []Value) (Value, error) {
		ranAny = true
		return constVal(tcon("FromAny")), nil
	}
	ranInt := false
	intFn := func(sparams typesystem.Subst, args []Value) (Value, error) {
		ranInt = true
		return constVal(tcon("FromInt")), nil
	}

	if _, err := mt.DefineMethod("g", fn(typesystem.AnyType, tcon("Int")), nil, false, anyFn); err != nil {
		t.Fatalf("unexpected error defining g(Any, Int): %v", err)
	}
	if _, err := mt.DefineMethod("g", fn(tcon("Int"), tcon("Int")), nil, false, intFn); err != nil {
		t.Fatalf("unexpected error defining g(Int, Int): %v", err)
	}

	cs1 := NewCallSite()
	if _, err := rt.ApplyGeneric("g", cs1, []Value{constVal(tcon("String")), constVal(tcon("Int"))}); err != nil {
		t.Fatalf("unexpected dispatch error for g(String, Int): %v", err)
	}
	if !ranAny || ranInt {
		t.Fatalf("expected g(String, Int) to dispatch to the Any method")
	}

	entry, ok := mt.LookupExact([]typesystem.Type{tcon("String"), tcon("Int")})
	if !ok || !entry.Generalized || len(entry.Guardsigs) == 0 {
		t.Fatalf("expected a generalized cache entry guarded by the more specific Int sibling, got %+v", entry)
	}

	ranAny, ranInt = false, false
	cs2 := NewCallSite()
	if _, err := rt.ApplyGeneric("g", cs2, []Value{constVal(tcon("Int")), constVal(tcon("Int"))}); err != nil {
		t.Fatalf("unexpected dispatch error for g(Int, Int): %v", err)
	}
	if ranAny || !ranInt {
		t.Fatalf("expected the guard to reject the generalized entry so g(Int, Int) dispatches to the Int method, but ranAny=%v ranInt=%v", ranAny, ranInt)
	}
}

func TestMethodExistsAndMatchingMethods(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	if _, err := mt.DefineMethod("f", fn(tcon("Int")), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rt.MethodExists("f", []typesystem.Type{tcon("Int")}) {
		t.Fatalf("expected MethodExists to report true for a matching call")
	}
	if rt.MethodExists("f", []typesystem.Type{tcon("String")}) {
		t.Fatalf("expected MethodExists to report false for a non-matching call")
	}

	matches, overflowed := rt.MatchingMethods("f", []typesystem.Type{tcon("Int")}, 0, true)
	if len(matches) != 1 || overflowed {
		t.Fatalf("expected exactly one matching method, got %d (overflowed=%v)", len(matches), overflowed)
	}
}

func TestPrependFunctionType(t *testing.T) {
	fnType := fn(tcon("Int"))
	out := PrependFunctionType(fnType, []typesystem.Type{tcon("Int")})
	if len(out) != 2 || out[0].String() != fnType.String() {
		t.Fatalf("expected the function's own type prepended to the argument types, got %v", out)
	}
}
