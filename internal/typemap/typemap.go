// Package typemap implements the method-definition store: a trie keyed by
// argument type, with concrete leaf types resolved through a fast
// persistent map and everything else (type variables, unions, variadic
// tails) falling back to an ordered linear list.
package typemap

import (
	"github.com/gendispatch/gf/internal/typesystem"
)

// Entry is anything the typemap can store at a signature: callers attach
// their own payload and get it back from lookups/visits.
type Entry struct {
	Sig     []typesystem.Type
	Vararg  bool // last element of Sig repeats for any further positional args
	Payload interface{}
}

// Map is a method-definition store for one generic function / method
// table. It is not safe for concurrent mutation without external locking
// (internal/dispatch serializes inserts under MethodTable.tableMu); reads
// are safe to run concurrently with other reads.
type Map struct {
	root *node
}

// node is one trie level, keyed on the concrete leaf type at this argument
// position. Entries whose type at this position is not a concrete leaf
// (a type variable, a union, the tail of a variadic signature) live in
// others instead of being hashed.
type node struct {
	concrete *hamtNode
	others   []*Entry // preserves insertion order: most specific/most recent wins ties
	arity    int
}

// New returns an empty typemap.
func New() *Map {
	return &Map{root: newNode(0)}
}

func newNode(arity int) *node {
	return &node{concrete: emptyHamt(), arity: arity}
}

// Insert adds an entry to the map. Within one trie node, entries are tried
// in reverse insertion order during AssocByType, so a later Insert of an
// identical signature is seen before the earlier one (internal/dispatch
// makes the actual shadowing/ambiguity decision; Insert here just records
// order).
func (m *Map) Insert(e *Entry) {
	if len(e.Sig) == 0 || !typesystem.IsLeaf(e.Sig[0]) || (e.Vararg && len(e.Sig) == 1) {
		m.root.others = append(m.root.others, e)
		return
	}
	insertConcrete(m.root, e, 0)
}

func insertConcrete(n *node, e *Entry, pos int) {
	key := e.Sig[pos].String()
	child, ok := n.concrete.get(key)
	var cn *node
	if ok {
		cn = child.(*node)
	} else {
		cn = newNode(pos + 1)
		n.concrete = n.concrete.put(key, cn)
	}
	if pos == len(e.Sig)-1 {
		cn.others = append(cn.others, e)
		return
	}
	if pos+1 < len(e.Sig) && typesystem.IsLeaf(e.Sig[pos+1]) {
		insertConcrete(cn, e, pos+1)
		return
	}
	cn.others = append(cn.others, e)
}

// AssocExact looks up an entry whose signature is identical to types,
// comparing each position by its canonical String() form. It never matches
// a broader or narrower signature — only the precise tuple.
func (m *Map) AssocExact(types []typesystem.Type) (*Entry, bool) {
	n := m.root
	for _, t := range types {
		if !typesystem.IsLeaf(t) {
			break
		}
		child, ok := n.concrete.get(t.String())
		if !ok {
			break
		}
		n = child.(*node)
	}
	// Insert stores an entry at the node reached by its leading run of leaf
	// types, which is exactly where the walk above stops for an identical
	// signature.
	if n != m.root {
		for j := len(n.others) - 1; j >= 0; j-- {
			if sigEqual(n.others[j].Sig, types) {
				return n.others[j], true
			}
		}
	}
	for j := len(m.root.others) - 1; j >= 0; j-- {
		if sigEqual(m.root.others[j].Sig, types) {
			return m.root.others[j], true
		}
	}
	return nil, false
}

func sigEqual(sig []typesystem.Type, types []typesystem.Type) bool {
	if len(sig) != len(types) {
		return false
	}
	for i := range sig {
		if sig[i].String() != types[i].String() {
			return false
		}
	}
	return true
}

// MatchMode selects how AssocByType treats subtyping at each argument
// position.
type MatchMode int

const (
	// Exact requires each argument type to equal the stored signature's
	// type exactly (used for re-specialization lookups).
	Exact MatchMode = iota
	// Inexact allows each argument type to be a subtype of the stored
	// signature's type (ordinary dispatch).
	Inexact
	// Loose additionally allows a stored type variable to match any
	// argument (used for ambiguity/intersection scans, not dispatch).
	Loose
)

// AssocByType finds entries applicable to types under mode. At every trie
// level it checks that level's linear others list (most recently inserted
// first) and then descends into the concrete children, so type-variable
// and union entries are never skipped. Each entry is matched on its whole
// signature. It calls visit for every candidate that the mode accepts;
// entries held in different trie nodes come out in no particular order
// relative to each other. visit returning false stops the walk early.
func (m *Map) AssocByType(types []typesystem.Type, mode MatchMode, visit func(*Entry) bool) {
	assocByType(m.root, types, 0, mode, visit)
}

func assocByType(n *node, types []typesystem.Type, pos int, mode MatchMode, visit func(*Entry) bool) bool {
	for i := len(n.others) - 1; i >= 0; i-- {
		e := n.others[i]
		// e.Sig is the entry's full signature, not the part below this trie
		// level, so it is matched against types from position 0.
		if len(e.Sig) <= len(types) || e.Vararg {
			if entryMatches(e, types, 0, mode) {
				if !visit(e) {
					return false
				}
			}
		}
	}
	if pos >= len(types) {
		return true
	}
	for _, key := range n.concrete.keys() {
		childIface, _ := n.concrete.get(key)
		child := childIface.(*node)
		// Exact mode can prune by key equality: a stored leaf only ever
		// matches a query of the identical leaf. Inexact/Loose cannot prune
		// this way, since a concrete key narrower or broader than the
		// query's type at this position may still be reachable by
		// subtyping (e.g. a method declared for Any, keyed "Any", matching
		// a query of "Int") — every child is walked and entryMatches makes
		// the real subtype decision once a candidate entry is found,
		// mirroring IntersectionVisitor's own unconditional descent below.
		if mode == Exact && types[pos].String() != key {
			continue
		}
		if !assocByType(child, types, pos+1, mode, visit) {
			return false
		}
	}
	return true
}

func entryMatches(e *Entry, types []typesystem.Type, pos int, mode MatchMode) bool {
	for i, st := range e.Sig {
		argIdx := pos + i
		if argIdx >= len(types) {
			if e.Vararg && i == len(e.Sig)-1 {
				return true
			}
			return false
		}
		arg := types[argIdx]
		if i == len(e.Sig)-1 && e.Vararg {
			for j := argIdx; j < len(types); j++ {
				if !matchOne(st, types[j], mode) {
					return false
				}
			}
			return true
		}
		if !matchOne(st, arg, mode) {
			return false
		}
	}
	return pos+len(e.Sig) == len(types) || (e.Vararg && pos+len(e.Sig) <= len(types)+1)
}

func matchOne(stored, arg typesystem.Type, mode MatchMode) bool {
	switch mode {
	case Exact:
		return stored.String() == arg.String()
	case Loose:
		if typesystem.IsTypeVar(stored) {
			return true
		}
		fallthrough
	default: // Inexact
		return typesystem.IsSubtype(arg, stored) || stored.String() == arg.String()
	}
}

// IntersectionVisitor calls visit for every stored entry whose signature
// may intersect query (a non-empty type-wise overlap at every position).
// Used by internal/dispatch's cache invalidation and guard-signature
// collection, not by ordinary dispatch.
func (m *Map) IntersectionVisitor(query []typesystem.Type, visit func(*Entry) bool) {
	var walk func(n *node, pos int) bool
	walk = func(n *node, pos int) bool {
		for i := len(n.others) - 1; i >= 0; i-- {
			e := n.others[i]
			if sigMayIntersect(e.Sig, e.Vararg, query) {
				if !visit(e) {
					return false
				}
			}
		}
		for _, key := range n.concrete.keys() {
			childIface, _ := n.concrete.get(key)
			child := childIface.(*node)
			if !walk(child, pos+1) {
				return false
			}
		}
		return true
	}
	walk(m.root, 0)
}

func sigMayIntersect(sig []typesystem.Type, vararg bool, query []typesystem.Type) bool {
	n := len(sig)
	if !vararg && n != len(query) {
		return false
	}
	if vararg && len(query) < n-1 {
		return false
	}
	for i := 0; i < n; i++ {
		st := sig[i]
		if vararg && i == n-1 {
			for j := i; j < len(query); j++ {
				if _, ok := typesystem.Intersect(st, query[j]); !ok {
					return false
				}
			}
			return true
		}
		if _, ok := typesystem.Intersect(st, query[i]); !ok {
			return false
		}
	}
	return true
}

// All visits every entry in the map regardless of type: each trie node's
// others list in insertion order, the root's first, then the concrete
// children in no particular order. Used by the ambiguity analyzer to build
// the full pairwise graph and by the precompile driver to enumerate
// specializations.
func (m *Map) All(visit func(*Entry) bool) {
	var walk func(n *node) bool
	walk = func(n *node) bool {
		for _, e := range n.others {
			if !visit(e) {
				return false
			}
		}
		for _, key := range n.concrete.keys() {
			childIface, _ := n.concrete.get(key)
			if !walk(childIface.(*node)) {
				return false
			}
		}
		return true
	}
	walk(m.root)
}
