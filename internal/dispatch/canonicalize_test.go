package dispatch

import (
	"testing"

	"github.com/gendispatch/gf/internal/typesystem"
)

func TestCacheMethodAnyFlagCollapsing(t *testing.T) {
	m := newMethod("f", fn(typesystem.AnyType), nil, false, echo)
	result := CacheMethod([]typesystem.Type{tcon("Int")}, m)
	if result.CacheSig[0].String() != typesystem.AnyType.String() {
		t.Fatalf("expected Any-declared slot to collapse to Any, got %s", result.CacheSig[0])
	}
}

func TestCacheMethodStagedPassthrough(t *testing.T) {
	m := newMethod("f", fn(tcon("Int")), nil, false, echo)
	m.MarkStaged()
	call := []typesystem.Type{tcon("Int")}
	result := CacheMethod(call, m)
	if result.CacheSig[0].String() != "Int" {
		t.Fatalf("expected staged method to cache exact call signature, got %s", result.CacheSig[0])
	}
}

func TestCacheMethodTypeOfTypeNestingBound(t *testing.T) {
	declSlot := typesystem.TType{Type: typesystem.AnyType}
	m := newMethod("f", fn(declSlot), nil, false, echo)
	// Nest Type{} four levels deep, past config.MaxTupleDepth (3); rule 6
	// should collapse it to Type{Any} rather than caching the full nesting.
	deep := typesystem.Type(tcon("Int"))
	for i := 0; i < 4; i++ {
		deep = typesystem.TType{Type: deep}
	}
	result := CacheMethod([]typesystem.Type{deep}, m)
	wrapped, ok := typesystem.IsTypeOfType(result.CacheSig[0])
	if !ok {
		t.Fatalf("expected cached slot to remain a meta-type, got %s", result.CacheSig[0])
	}
	if !typesystem.IsAny(wrapped) {
		t.Fatalf("expected deeply nested Type{} to collapse to Type{Any}, got Type{%s}", wrapped)
	}
}

func TestCacheMethodTypeOfTypeAlreadyAnyStaysAny(t *testing.T) {
	declSlot := typesystem.TType{Type: typesystem.AnyType}
	m := newMethod("f", fn(declSlot), nil, false, echo)
	call := []typesystem.Type{typesystem.TType{Type: typesystem.AnyType}}
	result := CacheMethod(call, m)
	wrapped, ok := typesystem.IsTypeOfType(result.CacheSig[0])
	if !ok || !typesystem.IsAny(wrapped) {
		t.Fatalf("expected Type{Any} call to stay Type{Any}, got %s", result.CacheSig[0])
	}
}

func TestCacheMethodUncalledFunctionArgDespecializes(t *testing.T) {
	declFn := fn(tcon("Int"))
	m := newMethod("f", fn(declFn), nil, false, echo)
	m.NeverCallsArgument(0)
	concreteFn := fn(tcon("String"))
	result := CacheMethod([]typesystem.Type{concreteFn}, m)
	if result.CacheSig[0].String() != declFn.String() {
		t.Fatalf("expected uncalled function argument to cache the declared type, got %s", result.CacheSig[0])
	}
	if result.Simplesig[0].String() != concreteFn.String() {
		t.Fatalf("expected simplesig to retain the concrete closure type, got %s", result.Simplesig[0])
	}
}

func TestCacheMethodVariadicCapGeneralizesTrailing(t *testing.T) {
	m := newMethod("f", fnVar(tcon("Int")), nil, true, echo)
	call := []typesystem.Type{tcon("Int"), tcon("Int"), tcon("Int")}
	result := CacheMethod(call, m)
	if len(result.CacheSig) != 1 {
		t.Fatalf("expected trailing variadic args collapsed to one slot, got %d", len(result.CacheSig))
	}
	if result.CacheSig[0].String() != "Int" {
		t.Fatalf("expected generalized trailing type Int, got %s", result.CacheSig[0])
	}
}

func TestCacheMethodVariadicCapFallsBackToAnyOnMismatch(t *testing.T) {
	m := newMethod("f", fnVar(tcon("Int")), nil, true, echo)
	call := []typesystem.Type{tcon("Int"), tcon("String")}
	result := CacheMethod(call, m)
	last := result.CacheSig[len(result.CacheSig)-1]
	if !typesystem.IsAny(last) {
		t.Fatalf("expected mismatched trailing types to generalize to Any, got %s", last)
	}
}
