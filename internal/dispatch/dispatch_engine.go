package dispatch

import (
	"github.com/gendispatch/gf/internal/typemap"
	"github.com/gendispatch/gf/internal/typesystem"
)

// ArgTypeTuple returns the runtime type of each argument, the shape every
// dispatch decision is keyed on. Grounded on arg_type_tuple in
// original_source/src/gf.c.
func ArgTypeTuple(args []Value) []typesystem.Type {
	types := make([]typesystem.Type, len(args))
	for i, a := range args {
		types[i] = a.RuntimeType()
	}
	return types
}

// ApplyGeneric is the hot dispatch path (C7): it resolves fn's method
// table against args, specializing and compiling on a miss, and invokes
// the winning method. cs is the calling textual call site's micro-cache
// (pass a fresh *CallSite per distinct call location; the same call site
// reused across calls is what makes the cache useful).
func (rt *Runtime) ApplyGeneric(name string, cs *CallSite, args []Value) (Value, error) {
	mt := rt.MethodTableFor(name)
	types := ArgTypeTuple(args)

	if mt.MaxArgs >= 0 && len(types) > mt.MaxArgs {
		return rt.dispatchSlow(mt, types, args)
	}

	key := rt.interns.internAll(types)
	gen := mt.Generation()
	if entry, ok := cs.lookup(key, gen); ok {
		return rt.invokeEntry(entry, types, args)
	}

	if entry, ok := mt.LookupExact(types); ok {
		cs.store(key, gen, entry)
		return rt.invokeEntry(entry, types, args)
	}

	entry, value, err := rt.dispatchMiss(mt, types, args)
	if err != nil {
		return value, err
	}
	cs.store(key, gen, entry)
	return value, nil
}

// dispatchSlow handles calls whose arity exceeds every non-variadic
// method's width (and no variadic method exists either): there is no
// point consulting the callsite micro-cache since MethodExists will
// already say no, so this always goes straight to a definite MethodError.
func (rt *Runtime) dispatchSlow(mt *MethodTable, types []typesystem.Type, args []Value) (Value, error) {
	_, value, err := rt.dispatchMiss(mt, types, args)
	return value, err
}

// dispatchMiss performs the full lookup-canonicalize-specialize-invoke
// sequence for a call the callsite cache and the method table's own
// cache both missed.
func (rt *Runtime) dispatchMiss(mt *MethodTable, types []typesystem.Type, args []Value) (*TypemapEntry, Value, error) {
	m, found, err := mt.LookupDefinition(types, typemap.Inexact)
	if !found {
		return nil, nil, &MethodError{Name: mt.Name, Types: types}
	}
	if err != nil {
		return nil, nil, err
	}

	if m.traced {
		rt.tracer.printf("dispatch %s%s -> %s", mt.Name, typeTupleString(types), m)
	}

	bindings, err := InferSparams(m, types)
	if err != nil {
		return nil, nil, err
	}
	li := m.getOrCreateLinfo(types, bindings)
	if err := rt.EnsureCompiled(li); err != nil {
		return nil, nil, err
	}

	entry := mt.CacheAndStore(types, m, li)
	value, callErr := m.Fn(bindings, args)
	return entry, value, callErr
}

func (rt *Runtime) invokeEntry(entry *TypemapEntry, types []typesystem.Type, args []Value) (Value, error) {
	if err := rt.EnsureCompiled(entry.Linfo); err != nil {
		return nil, err
	}
	return entry.Method.Fn(entry.Linfo.Sparam, args)
}

// Invoke dispatches args against the most specific method of fn whose
// declared signature matches types — the `f(::T1, ::T2)(args...)`
// explicit-signature call form. types need not equal a method's declared
// signature exactly: invoke resolves it the same way ordinary dispatch
// resolves a call, via assoc_by_type(types, exact=false, subtype=true),
// it just bypasses the callsite/method-table caches and keys its own
// private cache on the literal types given. Each method keeps its own
// small cache for repeated explicit-signature invocations (Method.invokes),
// separate from the method table's cache, matching invoke's private cache
// in original_source/src/gf.c.
func (rt *Runtime) Invoke(name string, types []typesystem.Type, args []Value) (Value, error) {
	mt := rt.MethodTableFor(name)

	m, found, err := mt.LookupDefinition(types, typemap.Inexact)
	if !found {
		return nil, &MethodError{Name: name, Types: types}
	}
	if err != nil {
		return nil, err
	}

	key := specializationKey(types, nil)
	m.invokesMu.Lock()
	li, ok := m.invokes[key]
	m.invokesMu.Unlock()

	if !ok {
		bindings, err := InferSparams(m, types)
		if err != nil {
			return nil, err
		}
		li = m.getOrCreateLinfo(types, bindings)
		m.invokesMu.Lock()
		m.invokes[key] = li
		m.invokesMu.Unlock()
	}

	if err := rt.EnsureCompiled(li); err != nil {
		return nil, err
	}
	return m.Fn(li.Sparam, args)
}

// MethodExists reports whether some method of fn would match types
// without actually dispatching. Grounded on jl_method_exists in
// original_source/src/gf.c.
func (rt *Runtime) MethodExists(name string, types []typesystem.Type) bool {
	mt := rt.MethodTableFor(name)
	_, found, _ := mt.LookupDefinition(types, typemap.Inexact)
	return found
}

// MatchingMethods returns every method of fn whose signature intersects
// types, up to lim entries (lim <= 0 means unbounded), and reports
// whether the result was truncated. includeAmbiguous controls whether
// methods that are ambiguous with the winning candidate are included
// alongside it or filtered out. Grounded on jl_matching_methods in
// original_source/src/gf.c.
func (rt *Runtime) MatchingMethods(name string, types []typesystem.Type, lim int, includeAmbiguous bool) ([]MatchResult, bool) {
	mt := rt.MethodTableFor(name)
	var out []MatchResult
	overflowed := false
	best, found, _ := mt.LookupDefinition(types, typemap.Inexact)

	mt.AllMethods(func(m *Method) bool {
		sig, err := argTypesOf(m.Sig)
		if err != nil {
			return true
		}
		if !signaturesIntersect(types, false, sig, m.Vararg) {
			return true
		}
		if !includeAmbiguous && found {
			for _, x := range best.ambiguousWith {
				if x == m {
					return true
				}
			}
		}
		if lim > 0 && len(out) >= lim {
			overflowed = true
			return false
		}
		out = append(out, MatchResult{Method: m, Types: sig})
		return true
	})
	return out, overflowed
}

// PrependFunctionType builds the argument-type tuple Invoke and
// MatchingMethods actually key lookups on: the generic function's own
// type prepended to its argument types, matching
// jl_argtype_with_function's role in original_source/src/gf.c.
func PrependFunctionType(fnType typesystem.Type, types []typesystem.Type) []typesystem.Type {
	out := make([]typesystem.Type, 0, len(types)+1)
	out = append(out, fnType)
	out = append(out, types...)
	return out
}

// GfInvokeLookup resolves the TypemapEntry that an explicit-signature
// invocation would use, without actually invoking it — the reflective
// half of Invoke, mirroring jl_gf_invoke_lookup in
// original_source/src/gf.c. Uses the same subtype lookup as Invoke so the
// reported entry matches what a real call would resolve to.
func (rt *Runtime) GfInvokeLookup(name string, types []typesystem.Type) (*TypemapEntry, bool) {
	mt := rt.MethodTableFor(name)
	m, found, _ := mt.LookupDefinition(types, typemap.Inexact)
	if !found {
		return nil, false
	}
	bindings, err := InferSparams(m, types)
	if err != nil {
		return nil, false
	}
	li := m.getOrCreateLinfo(types, bindings)
	return &TypemapEntry{Method: m, Specialized: types, Linfo: li}, true
}
