package dispatch

import (
	"testing"

	"github.com/gendispatch/gf/internal/typesystem"
)

func TestCallSiteHitAfterStore(t *testing.T) {
	cs := NewCallSite()
	it := newInternTable()

	key := it.internAll([]typesystem.Type{tcon("Int")})
	entry := &TypemapEntry{}
	cs.store(key, 0, entry)

	got, ok := cs.lookup(it.internAll([]typesystem.Type{tcon("Int")}), 0)
	if !ok || got != entry {
		t.Fatalf("expected a cache hit for a re-interned identical key")
	}
}

func TestCallSiteMissOnDifferentKey(t *testing.T) {
	cs := NewCallSite()
	it := newInternTable()

	cs.store(it.internAll([]typesystem.Type{tcon("Int")}), 0, &TypemapEntry{})

	_, ok := cs.lookup(it.internAll([]typesystem.Type{tcon("String")}), 0)
	if ok {
		t.Fatalf("expected a miss for a differently-typed key")
	}
}

func TestCallSiteRoundRobinEvictsOldestSlot(t *testing.T) {
	cs := NewCallSite()
	it := newInternTable()

	names := []string{"T0", "T1", "T2", "T3", "T4"}
	var keys [][]*internedType
	for _, n := range names {
		k := it.internAll([]typesystem.Type{tcon(n)})
		keys = append(keys, k)
		cs.store(k, 0, &TypemapEntry{})
	}

	// Only config.N_CALL_CACHE (4) slots exist; the first key (T0) must
	// have been evicted by the fifth store (T4), round-robin.
	if _, ok := cs.lookup(keys[0], 0); ok {
		t.Fatalf("expected the oldest entry to have been evicted")
	}
	if _, ok := cs.lookup(keys[4], 0); !ok {
		t.Fatalf("expected the most recently stored entry to still be cached")
	}
}

func TestCallSiteStatsTracksHitsAndMisses(t *testing.T) {
	cs := NewCallSite()
	it := newInternTable()
	key := it.internAll([]typesystem.Type{tcon("Int")})
	cs.store(key, 0, &TypemapEntry{})

	cs.lookup(key, 0)
	cs.lookup(it.internAll([]typesystem.Type{tcon("String")}), 0)

	stats := cs.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %+v", stats)
	}
	if stats.Occupied != 1 {
		t.Fatalf("expected 1 occupied slot, got %d", stats.Occupied)
	}
}
