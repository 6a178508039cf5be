package typemap

import (
	"testing"

	"github.com/gendispatch/gf/internal/typesystem"
)

func sig(types ...typesystem.Type) []typesystem.Type { return types }

func TestAssocExact(t *testing.T) {
	m := New()
	intT := typesystem.TCon{Name: "Int"}
	strT := typesystem.TCon{Name: "String"}

	e1 := &Entry{Sig: sig(intT, intT), Payload: "int,int"}
	e2 := &Entry{Sig: sig(intT, strT), Payload: "int,string"}
	m.Insert(e1)
	m.Insert(e2)

	got, ok := m.AssocExact(sig(intT, intT))
	if !ok || got.Payload != "int,int" {
		t.Fatalf("AssocExact(int,int) = %v, %v", got, ok)
	}

	got, ok = m.AssocExact(sig(intT, strT))
	if !ok || got.Payload != "int,string" {
		t.Fatalf("AssocExact(int,string) = %v, %v", got, ok)
	}

	if _, ok := m.AssocExact(sig(strT, strT)); ok {
		t.Fatalf("AssocExact(string,string) should miss")
	}
}

func TestAssocByTypeSubtyping(t *testing.T) {
	m := New()
	tv := typesystem.TVar{Name: "a"}
	intT := typesystem.TCon{Name: "Int"}

	m.Insert(&Entry{Sig: sig(tv), Payload: "generic"})

	var hits []string
	m.AssocByType(sig(intT), Inexact, func(e *Entry) bool {
		hits = append(hits, e.Payload.(string))
		return true
	})

	if len(hits) != 1 || hits[0] != "generic" {
		t.Fatalf("expected the generic entry to match Int, got %v", hits)
	}
}

func TestAssocByTypeShadowingOrder(t *testing.T) {
	m := New()
	tv := typesystem.TVar{Name: "a"}
	m.Insert(&Entry{Sig: sig(tv), Payload: "first"})
	m.Insert(&Entry{Sig: sig(tv), Payload: "second"})

	var hits []string
	m.AssocByType(sig(typesystem.TCon{Name: "Int"}), Inexact, func(e *Entry) bool {
		hits = append(hits, e.Payload.(string))
		return true
	})

	if len(hits) != 2 || hits[0] != "second" {
		t.Fatalf("expected most-recent-first order, got %v", hits)
	}
}

func TestIntersectionVisitor(t *testing.T) {
	m := New()
	intT := typesystem.TCon{Name: "Int"}
	strT := typesystem.TCon{Name: "String"}
	union := typesystem.TUnion{Types: []typesystem.Type{intT, strT}}

	m.Insert(&Entry{Sig: sig(intT), Payload: "int"})
	m.Insert(&Entry{Sig: sig(strT), Payload: "string"})

	var hits []string
	m.IntersectionVisitor(sig(union), func(e *Entry) bool {
		hits = append(hits, e.Payload.(string))
		return true
	})

	if len(hits) != 2 {
		t.Fatalf("expected both entries to intersect Int|String, got %v", hits)
	}
}

// TestAssocByTypeFindsBroaderConcreteLeafBySubtype pins AssocByType's
// Inexact descent into the concrete trie: a signature stored under a
// broader leaf type (Any, itself a concrete TCon and therefore a trie key
// like any other) must still be found for a query of some narrower,
// unrelated-by-name leaf type, since Inexact matching is subtype-based, not
// string-equality-based, at every trie level, not only at the root.
func TestAssocByTypeFindsBroaderConcreteLeafBySubtype(t *testing.T) {
	m := New()
	m.Insert(&Entry{Sig: sig(typesystem.AnyType), Payload: "any"})

	var hits []string
	m.AssocByType(sig(typesystem.TCon{Name: "Int"}), Inexact, func(e *Entry) bool {
		hits = append(hits, e.Payload.(string))
		return true
	})

	if len(hits) != 1 || hits[0] != "any" {
		t.Fatalf("expected the Any-keyed entry to match Int by subtyping, got %v", hits)
	}
}

func TestVarargEntryMatchesExtraArgs(t *testing.T) {
	m := New()
	intT := typesystem.TCon{Name: "Int"}
	m.Insert(&Entry{Sig: sig(intT), Vararg: true, Payload: "varargs"})

	var hits []string
	m.AssocByType(sig(intT, intT, intT), Inexact, func(e *Entry) bool {
		hits = append(hits, e.Payload.(string))
		return true
	})

	if len(hits) != 1 {
		t.Fatalf("expected the variadic entry to match three Ints, got %v", hits)
	}
}
