package dispatch

import (
	"testing"

	"github.com/gendispatch/gf/internal/typesystem"
)

func TestPrecompileCompilesDispatchedSpecializations(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	if _, err := mt.DefineMethod("f", fn(tcon("Int")), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cs := NewCallSite()
	if _, err := rt.ApplyGeneric("f", cs, []Value{constVal(tcon("Int"))}); err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}

	if err := rt.Precompile(false); err != nil {
		t.Fatalf("unexpected precompile error: %v", err)
	}

	var li *LambdaInfo
	mt.AllMethods(func(m *Method) bool {
		m.specializationsMu.Lock()
		for _, l := range m.specializations {
			li = l
		}
		m.specializationsMu.Unlock()
		return true
	})
	if li == nil || !li.IsCompiled() {
		t.Fatalf("expected the already-dispatched specialization to be compiled")
	}
}

func TestPrecompileAllExpandsUnionParameters(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	union := typesystem.TUnion{Types: []typesystem.Type{tcon("Int"), tcon("String")}}
	if _, err := mt.DefineMethod("f", fn(union), nil, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := rt.Precompile(true); err != nil {
		t.Fatalf("unexpected precompile error: %v", err)
	}

	compiledTypes := map[string]bool{}
	mt.AllMethods(func(m *Method) bool {
		m.specializationsMu.Lock()
		for _, li := range m.specializations {
			if li.IsCompiled() && len(li.Types) == 1 {
				compiledTypes[li.Types[0].String()] = true
			}
		}
		m.specializationsMu.Unlock()
		return true
	})
	if !compiledTypes["Int"] || !compiledTypes["String"] {
		t.Fatalf("expected both union members to be compiled as separate specializations, got %v", compiledTypes)
	}
}

func TestPrecompileFallsBackForUnboundTypeVar(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	tv := typesystem.TVar{Name: "t"}
	if _, err := mt.DefineMethod("f", fn(tv), []typesystem.TVar{tv}, false, echo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := rt.Precompile(true); err != nil {
		t.Fatalf("unexpected precompile error: %v", err)
	}

	compiled := false
	mt.AllMethods(func(m *Method) bool {
		m.specializationsMu.Lock()
		for _, li := range m.specializations {
			if li.IsCompiled() {
				compiled = true
			}
		}
		m.specializationsMu.Unlock()
		return true
	})
	if !compiled {
		t.Fatalf("expected the unspecialized_ducttape fallback to still compile one specialization")
	}
}
