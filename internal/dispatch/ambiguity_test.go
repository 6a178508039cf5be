package dispatch

import (
	"testing"

	"github.com/gendispatch/gf/internal/typemap"
	"github.com/gendispatch/gf/internal/typesystem"
)

func TestAmbiguitySymmetricEdgeRecorded(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")

	a, err := mt.DefineMethod("f", fn(tcon("Int"), typesystem.AnyType), nil, false, echo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := mt.DefineMethod("f", fn(typesystem.AnyType, tcon("Int")), nil, false, echo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	foundA := false
	for _, x := range a.ambiguousWith {
		if x == b {
			foundA = true
		}
	}
	foundB := false
	for _, x := range b.ambiguousWith {
		if x == a {
			foundB = true
		}
	}
	if !foundA || !foundB {
		t.Fatalf("expected a symmetric ambiguity edge between (Int,Any) and (Any,Int)")
	}
}

func TestAmbiguityShadowingIsNotAmbiguous(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")

	general, err := mt.DefineMethod("f", fn(typesystem.AnyType), nil, false, echo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	specific, err := mt.DefineMethod("f", fn(tcon("Int")), nil, false, echo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(general.ambiguousWith) != 0 || len(specific.ambiguousWith) != 0 {
		t.Fatalf("expected a strictly narrower signature to shadow, not be ambiguous with, the general one")
	}
}

func TestAmbiguityCoveredByThirdMethodSuppressesEdge(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")

	// The covering method must already be in the table before the pair it
	// covers is inserted: coveredByThirdMethod only suppresses the edge at
	// the moment the second of the pair is defined, it does not retroactively
	// prune an edge recorded earlier.
	if _, err := mt.DefineMethod("f", fn(tcon("Int"), tcon("Int")), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mt.DefineMethod("f", fn(tcon("Int"), typesystem.AnyType), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mt.DefineMethod("f", fn(typesystem.AnyType, tcon("Int")), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var a, b *Method
	mt.AllMethods(func(m *Method) bool {
		sig, _ := argTypesOf(m.Sig)
		if len(sig) == 2 {
			if sig[0].String() == "Int" && sig[1].String() == "Any" {
				a = m
			}
			if sig[0].String() == "Any" && sig[1].String() == "Int" {
				b = m
			}
		}
		return true
	})
	if a == nil || b == nil {
		t.Fatalf("expected to find both two-argument methods")
	}
	for _, x := range a.ambiguousWith {
		if x == b {
			t.Fatalf("expected the (Int,Int) method to cover the ambiguity between (Int,Any) and (Any,Int)")
		}
	}
}

func TestHasCallAmbiguitiesDetectsGenuinelyAmbiguousCall(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")

	if _, err := mt.DefineMethod("f", fn(tcon("Int"), typesystem.AnyType), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mt.DefineMethod("f", fn(typesystem.AnyType, tcon("Int")), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err := mt.LookupDefinition([]typesystem.Type{tcon("Int"), tcon("Int")}, typemap.Inexact)
	if _, ok := err.(*AmbiguousMethodError); !ok {
		t.Fatalf("expected an AmbiguousMethodError for the call (Int, Int), got %v", err)
	}
}
