package dispatch

import (
	"github.com/gendispatch/gf/internal/config"
	"github.com/gendispatch/gf/internal/typesystem"
)

// Precompile drives every method table's specializations to compiled
// state ahead of time, in two sequential phases grounded on
// jl_compile_all / jl_compile_all_union / jl_compile_all_tvar_union in
// original_source/src/gf.c:
//
//  1. Enumerate every specialization that has already been inferred (by
//     an earlier call, or by a prior precompile pass) but not yet
//     compiled, and compile it.
//  2. If all is true or config.CompileAll is set, additionally expand
//     every method's own declared signature over its union-typed
//     parameters into their concrete combinations and compile those too.
//     Type variables are not expanded: a method with any type-variable
//     parameter falls back to compiling its single, most general
//     unspecialized form instead of being skipped (unspecialized_ducttape).
//
// The phases run sequentially, not concurrently: phase 2's expansion can
// register new LambdaInfos that phase 1 would otherwise have wanted to
// see, and running them as two barrier-separated stages keeps that
// visibility simple. See DESIGN.md Open Question 6 for why an
// errgroup-based parallel version was tried and dropped.
func (rt *Runtime) Precompile(all bool) error {
	rt.mu.RLock()
	tables := make([]*MethodTable, 0, len(rt.tables))
	for _, mt := range rt.tables {
		tables = append(tables, mt)
	}
	rt.mu.RUnlock()

	for _, mt := range tables {
		if err := rt.precompileInferred(mt); err != nil {
			return err
		}
	}

	if !all && !config.CompileAll {
		return nil
	}

	for _, mt := range tables {
		if err := rt.precompileExpanded(mt); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) precompileInferred(mt *MethodTable) error {
	var pending []*LambdaInfo
	mt.AllMethods(func(m *Method) bool {
		m.specializationsMu.Lock()
		for _, li := range m.specializations {
			if li.IsInferred() && !li.IsCompiled() {
				pending = append(pending, li)
			}
		}
		m.specializationsMu.Unlock()
		return true
	})
	for _, li := range pending {
		if err := rt.EnsureCompiled(li); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) precompileExpanded(mt *MethodTable) error {
	var targets []*Method
	mt.AllMethods(func(m *Method) bool { targets = append(targets, m); return true })

	for _, m := range targets {
		declared, err := argTypesOf(m.Sig)
		if err != nil {
			continue
		}
		combos := expandUnionCombinations(declared)
		if combos == nil {
			// unspecialized_ducttape: compile the method's own most
			// general form instead of skipping it outright.
			bindings, _ := InferSparams(m, declared)
			li := m.getOrCreateLinfo(declared, bindings)
			if err := rt.EnsureCompiled(li); err != nil {
				return err
			}
			continue
		}
		for _, combo := range combos {
			bindings, err := InferSparams(m, combo)
			if err != nil {
				continue
			}
			li := m.getOrCreateLinfo(combo, bindings)
			if err := rt.EnsureCompiled(li); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandUnionCombinations enumerates the Cartesian product of each
// parameter's union members (a non-union parameter contributes a single
// choice: itself). Returns nil if any parameter is an unbound type
// variable with nothing concrete to enumerate, signaling the caller
// should fall back to unspecialized_ducttape instead.
func expandUnionCombinations(params []typesystem.Type) [][]typesystem.Type {
	choices := make([][]typesystem.Type, len(params))
	for i, p := range params {
		switch t := p.(type) {
		case typesystem.TUnion:
			choices[i] = append([]typesystem.Type(nil), t.Types...)
		case typesystem.TVar:
			return nil
		default:
			choices[i] = []typesystem.Type{p}
		}
	}

	combos := [][]typesystem.Type{{}}
	for _, opts := range choices {
		var next [][]typesystem.Type
		for _, combo := range combos {
			for _, o := range opts {
				extended := append(append([]typesystem.Type(nil), combo...), o)
				next = append(next, extended)
			}
		}
		combos = next
	}
	return combos
}
