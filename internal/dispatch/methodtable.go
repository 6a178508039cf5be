package dispatch

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gendispatch/gf/internal/config"
	"github.com/gendispatch/gf/internal/typemap"
	"github.com/gendispatch/gf/internal/typesystem"
)

// MethodTable holds every method defined for one generic function, the
// dispatch cache built on top of those definitions, and the callsite
// bookkeeping (MaxArgs) the hot path needs.
type MethodTable struct {
	ID   uuid.UUID
	Name string

	defs  *typemap.Map // method definitions, payload *Method
	cache *typemap.Map // canonicalized dispatch cache, payload *TypemapEntry

	MaxArgs int

	// generation counts every mutation (insertion) of this table. Callsite
	// micro-cache slots (CallSite) record the generation in effect when
	// they were populated; a generation mismatch on lookup means the
	// table has been redefined since and the slot must be treated as a
	// miss, which is what makes invalidateConflicting's cache purge
	// observable through callsites that already cached the stale entry.
	generation uint64

	// tableMu serializes Insert against itself and against cache reads
	// that must never observe a half-mutated table; see DESIGN.md Open
	// Question 3 (signal-atomic section -> mutex).
	tableMu sync.RWMutex

	rt *Runtime // back-reference for tracing/diagnostics
}

// NewMethodTable creates an empty method table named name.
func NewMethodTable(name string, rt *Runtime) *MethodTable {
	return &MethodTable{
		ID:    uuid.New(),
		Name:  name,
		defs:  typemap.New(),
		cache: typemap.New(),
		rt:    rt,
	}
}

// DefineMethod adds a new method definition to the table: signature
// mt.tableMu is held for the duration so no lookup can observe the table
// mid-insert, ambiguity bookkeeping is updated, and any cache entries the
// new method shadows are purged.
func (mt *MethodTable) DefineMethod(name string, sig typesystem.Type, sparam []typesystem.TVar, vararg bool, fn Body) (*Method, error) {
	m := newMethod(name, sig, sparam, vararg, fn)
	return m, mt.insert(m)
}

func (mt *MethodTable) insert(m *Method) error {
	sigTypes, err := argTypesOf(m.Sig)
	if err != nil {
		return err
	}
	if err := kindCheckSignature(sigTypes); err != nil {
		return err
	}

	mt.tableMu.Lock()
	defer mt.tableMu.Unlock()

	old := mt.findOverwritten(sigTypes, m.Vararg)
	if old != nil {
		m.ambiguousWith = old.ambiguousWith
		if mt.rt != nil {
			mt.rt.tracer.onMethodOverwritten(mt, old, m)
		}
	}

	mt.defs.Insert(&typemap.Entry{Sig: sigTypes, Vararg: m.Vararg, Payload: m})
	mt.updateMaxArgs(len(sigTypes), m.Vararg)
	mt.invalidateConflicting(sigTypes, m.Vararg, m)
	mt.generation++

	if mt.rt != nil {
		mt.rt.ambiguity.onMethodInserted(mt, m)
		mt.rt.tracer.onMethodCreated(m)
	}
	return nil
}

// findOverwritten returns the previously-defined method with an identical
// signature, if any, so its ambiguity list can be inherited and a
// diagnostic emitted (method_overwrite in original_source/src/gf.c).
func (mt *MethodTable) findOverwritten(sig []typesystem.Type, vararg bool) *Method {
	var found *Method
	mt.defs.AssocByType(sig, typemap.Exact, func(e *typemap.Entry) bool {
		if e.Vararg == vararg && len(e.Sig) == len(sig) {
			found = e.Payload.(*Method)
			return false
		}
		return true
	})
	return found
}

// updateMaxArgs tracks the widest non-variadic arity (or -1, meaning
// unbounded, once any variadic method is defined) any definition in this
// table accepts, so the hot path knows how many positional arguments a
// call site must carry before it can even consult the cache.
func (mt *MethodTable) updateMaxArgs(n int, vararg bool) {
	if vararg {
		mt.MaxArgs = -1
		return
	}
	if mt.MaxArgs >= 0 && n > mt.MaxArgs {
		mt.MaxArgs = n
	}
}

// invalidateConflicting purges every cache entry whose cached signature
// intersects the newly-inserted method's signature and whose owning
// method is shadowed by the new definition (i.e. the cached dispatch
// decision may now be wrong). Grounded on invalidate_conflicting in
// original_source/src/gf.c.
func (mt *MethodTable) invalidateConflicting(newSig []typesystem.Type, vararg bool, newMethod *Method) {
	var stale []*typemap.Entry
	mt.cache.IntersectionVisitor(newSig, func(e *typemap.Entry) bool {
		entry := e.Payload.(*TypemapEntry)
		if entry.Method == newMethod {
			return true
		}
		if moreSpecific(newSig, vararg, entry.Method) {
			stale = append(stale, e)
		}
		return true
	})
	if len(stale) == 0 {
		return
	}
	fresh := typemap.New()
	stillValid := make(map[*typemap.Entry]bool)
	mt.cache.All(func(e *typemap.Entry) bool {
		stillValid[e] = true
		return true
	})
	for _, e := range stale {
		delete(stillValid, e)
	}
	mt.cache.All(func(e *typemap.Entry) bool {
		if stillValid[e] {
			fresh.Insert(e)
		}
		return true
	})
	mt.cache = fresh

	if mt.rt != nil {
		mt.rt.tracer.onCacheInvalidated(mt, len(stale))
	}
}

// moreSpecific reports whether a method declared with signature newSig is
// at least as specific as candidate everywhere they overlap, meaning a
// cache entry built against candidate could now be shadowed by newSig.
func moreSpecific(newSig []typesystem.Type, newVararg bool, candidate *Method) bool {
	candSig, err := argTypesOf(candidate.Sig)
	if err != nil {
		return false
	}
	if len(newSig) != len(candSig) && !newVararg && !candidate.Vararg {
		return false
	}
	n := len(newSig)
	if len(candSig) < n {
		n = len(candSig)
	}
	for i := 0; i < n; i++ {
		if !typesystem.IsSubtype(newSig[i], candSig[i]) {
			return false
		}
	}
	return true
}

// argTypesOf extracts the positional argument types from a method's
// (possibly TForall-quantified) TFunc signature.
func argTypesOf(sig typesystem.Type) ([]typesystem.Type, error) {
	if forall, ok := sig.(typesystem.TForall); ok {
		return argTypesOf(forall.Type)
	}
	fn, ok := sig.(typesystem.TFunc)
	if !ok {
		return nil, fmt.Errorf("method signature must be a function type, got %s", sig)
	}
	return fn.Params, nil
}

// kindCheckSignature rejects a method signature that applies a type
// constructor to the wrong number or shape of arguments (e.g. List<List>,
// since List itself has kind * -> * rather than *). Dispatch only ever
// sees fully-applied argument types, so a kind error here always means the
// declaration itself is malformed rather than something runtime dispatch
// could ever recover from.
func kindCheckSignature(sig []typesystem.Type) error {
	for _, t := range sig {
		if _, err := typesystem.KindCheck(t); err != nil {
			return fmt.Errorf("ill-kinded method signature: %w", err)
		}
	}
	return nil
}

// Generation returns the table's current mutation count, for callsite
// micro-cache staleness checks (see the generation field above).
func (mt *MethodTable) Generation() uint64 {
	mt.tableMu.RLock()
	defer mt.tableMu.RUnlock()
	return mt.generation
}

// LookupExact finds the dispatch-cache entry that serves types: first by
// literal signature identity (the fast path every entry, leaf or
// generalized, supports), then by falling back to a subtype search among
// entries the canonicalizer deliberately coarsened past the call's own
// concrete types (Generalized), since those are meant to serve more than
// the one call that first created them. Any entry whose guardsigs match
// types is rejected (treated as a miss) either way: it was cached under a
// signature that also covers a more specific, still-applicable definition,
// so it cannot be trusted for this particular call (invariant 3, guard
// soundness).
func (mt *MethodTable) LookupExact(types []typesystem.Type) (*TypemapEntry, bool) {
	mt.tableMu.RLock()
	defer mt.tableMu.RUnlock()

	if e, ok := mt.cache.AssocExact(types); ok {
		entry := e.Payload.(*TypemapEntry)
		if !guardRejects(entry, types) {
			return entry, true
		}
	}

	var best *TypemapEntry
	mt.cache.AssocByType(types, typemap.Inexact, func(e *typemap.Entry) bool {
		entry := e.Payload.(*TypemapEntry)
		if !entry.Generalized || guardRejects(entry, types) {
			return true
		}
		if best == nil || isMoreSpecificMethod(entry.Method, best.Method) {
			best = entry
		}
		return true
	})
	return best, best != nil
}

// guardRejects reports whether types matches any of entry's guard
// signatures, meaning some other, more specific definition could also
// apply to this exact call and entry's generalized signature must not be
// trusted for it.
func guardRejects(entry *TypemapEntry, types []typesystem.Type) bool {
	for _, g := range entry.Guardsigs {
		if allSubtype(types, g.Sig, g.Vararg) {
			return true
		}
	}
	return false
}

// CacheAndStore canonicalizes callTypes against the method that was
// selected to handle them and inserts the resulting dispatch decision
// into the table's cache. When canonicalization actually generalized some
// slot (result.Generalized), the cached entry is only sound if it carries
// guardsigs: the signatures of every other, distinct definition whose
// intersection with the generalized signature is non-empty (spec §4.C4).
// A later LookupExact rejects the entry for any call that also matches a
// guard, so a more specific definition can never be shadowed undetected
// (invariant 3). If collecting guards would require guarding against more
// intersecting definitions than config.MaxUnspecializedConflicts allows,
// the cheaper policy is to give up on coarsening and cache the call's own
// unmodified argument tuple instead — a leaf signature needs no guards at
// all, since nothing can be more specific than the call itself.
func (mt *MethodTable) CacheAndStore(callTypes []typesystem.Type, m *Method, li *LambdaInfo) *TypemapEntry {
	result := CacheMethod(callTypes, m)

	cacheSig := result.CacheSig
	vararg := result.Vararg
	generalized := result.Generalized
	var guards []GuardSig

	if result.Generalized {
		mt.tableMu.RLock()
		mt.defs.IntersectionVisitor(cacheSig, func(e *typemap.Entry) bool {
			if other, ok := e.Payload.(*Method); !ok || other != m {
				guards = append(guards, GuardSig{Sig: e.Sig, Vararg: e.Vararg})
			}
			return len(guards) <= config.MaxUnspecializedConflicts
		})
		mt.tableMu.RUnlock()

		if len(guards) > config.MaxUnspecializedConflicts {
			cacheSig = callTypes
			vararg = false
			guards = nil
			generalized = false
		}
	}

	entry := &TypemapEntry{Method: m, Simplesig: result.Simplesig, Specialized: cacheSig, Generalized: generalized, Guardsigs: guards, Linfo: li}
	mt.StoreCache(cacheSig, vararg, entry)
	return entry
}

// StoreCache inserts a canonicalized dispatch decision into the table's
// cache.
func (mt *MethodTable) StoreCache(cacheSig []typesystem.Type, vararg bool, entry *TypemapEntry) {
	mt.tableMu.Lock()
	defer mt.tableMu.Unlock()
	mt.cache.Insert(&typemap.Entry{Sig: cacheSig, Vararg: vararg, Payload: entry})
}

// LookupDefinition finds the single most specific method definition
// applicable to types, reporting false if none applies. When the winner
// has an ambiguous sibling that also matches types, it returns the winner
// together with an *AmbiguousMethodError. mode controls subtyping
// strictness exactly as typemap.MatchMode does.
func (mt *MethodTable) LookupDefinition(types []typesystem.Type, mode typemap.MatchMode) (*Method, bool, error) {
	mt.tableMu.RLock()
	defer mt.tableMu.RUnlock()

	var candidates []*Method
	mt.defs.AssocByType(types, mode, func(e *typemap.Entry) bool {
		candidates = append(candidates, e.Payload.(*Method))
		return true
	})
	if len(candidates) == 0 {
		return nil, false, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if isMoreSpecificMethod(c, best) {
			best = c
		}
	}

	if mt.rt != nil && mt.rt.ambiguity.HasCallAmbiguities(types, best) {
		return best, true, &AmbiguousMethodError{Name: mt.Name, Types: types}
	}
	return best, true, nil
}

// AllMethods visits every method defined in the table.
func (mt *MethodTable) AllMethods(visit func(*Method) bool) {
	mt.tableMu.RLock()
	defer mt.tableMu.RUnlock()
	mt.defs.All(func(e *typemap.Entry) bool {
		return visit(e.Payload.(*Method))
	})
}
