package dispatch

import (
	"sync"

	"github.com/gendispatch/gf/internal/config"
	"github.com/gendispatch/gf/internal/typesystem"
)

// internTable hash-conses leaf types by canonical string form so the
// callsite micro-cache can compare cached signatures by pointer equality
// instead of deep structural comparison. See DESIGN.md Open Question 1.
type internTable struct {
	mu    sync.Mutex
	table map[string]*internedType
}

type internedType struct {
	key string
	typ typesystem.Type
}

func newInternTable() *internTable {
	return &internTable{table: make(map[string]*internedType)}
}

func (it *internTable) intern(t typesystem.Type) *internedType {
	key := t.String()
	it.mu.Lock()
	defer it.mu.Unlock()
	if existing, ok := it.table[key]; ok {
		return existing
	}
	entry := &internedType{key: key, typ: t}
	it.table[key] = entry
	return entry
}

func (it *internTable) internAll(types []typesystem.Type) []*internedType {
	out := make([]*internedType, len(types))
	for i, t := range types {
		out[i] = it.intern(t)
	}
	return out
}

// callCacheSlot is one entry of a call site's 4-way micro-cache. generation
// records the owning method table's generation at store time, so a
// redefinition that bumps the table's generation makes every callsite slot
// stored under an older generation unobservable without having to walk and
// purge every CallSite that ever cached against that table (see
// DESIGN.md's note on callsite-cache invalidation).
type callCacheSlot struct {
	key        []*internedType
	entry      *TypemapEntry
	generation uint64
}

// CallSite is the per-callsite dispatch hint described in spec.md §3: a
// small, fixed-size cache of the last few (argument-type-tuple ->
// resolved specialization) pairs seen at one textual call location,
// guarded by its own mutex. It is a hint, not a source of truth — a miss,
// or a slot stored under an older table generation, just causes a
// fallback to the method table.
type CallSite struct {
	mu    sync.Mutex
	slots [config.N_CALL_CACHE]callCacheSlot
	next  int // round-robin replacement pointer (pick_which)

	hits   uint64
	misses uint64
}

// NewCallSite returns an empty callsite cache.
func NewCallSite() *CallSite { return &CallSite{} }

// lookup returns the cached entry for key if one of the 4 slots matches by
// interned-pointer identity at every position and was stored under the
// method table's current generation. A slot stored under a stale
// generation (the table was mutated since) is treated as a miss, falling
// through to the authoritative method table cache — this is what makes a
// redefinition observable even through a callsite that already cached the
// old dispatch decision, per spec.md §5/§8's invalidation guarantees.
func (cs *CallSite) lookup(key []*internedType, generation uint64) (*TypemapEntry, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, slot := range cs.slots {
		if slot.entry != nil && slot.generation == generation && sameKey(slot.key, key) {
			cs.hits++
			return slot.entry, true
		}
	}
	cs.misses++
	return nil, false
}

func sameKey(a, b []*internedType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// store records a resolved dispatch decision, evicting the slot at the
// current round-robin position (pick_which replacement policy).
func (cs *CallSite) store(key []*internedType, generation uint64, entry *TypemapEntry) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.slots[cs.next] = callCacheSlot{key: key, entry: entry, generation: generation}
	cs.next = (cs.next + 1) % config.N_CALL_CACHE
}

// CacheStats is a read-only snapshot of a callsite's hit/miss counters,
// supplemented from call_cache_stats in original_source/src/gf.c for the
// same diagnostic purpose its debug build served.
type CacheStats struct {
	Hits, Misses uint64
	Occupied     int
}

// Stats returns the current cache statistics for cs.
func (cs *CallSite) Stats() CacheStats {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	occ := 0
	for _, s := range cs.slots {
		if s.entry != nil {
			occ++
		}
	}
	return CacheStats{Hits: cs.hits, Misses: cs.misses, Occupied: occ}
}
