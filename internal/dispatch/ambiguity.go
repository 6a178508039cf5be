package dispatch

import (
	"github.com/gendispatch/gf/internal/typemap"
	"github.com/gendispatch/gf/internal/typesystem"
)

// ambiguityAnalyzer tracks, for each MethodTable, the pairwise ambiguity
// graph between its method definitions: two methods are ambiguous if
// their signatures intersect (some call would match both) and neither is
// more specific than the other across that intersection. Grounded on
// check_ambiguous_visitor / check_ambiguous_matches in
// original_source/src/gf.c (lines ~737-906).
type ambiguityAnalyzer struct{}

func newAmbiguityAnalyzer() *ambiguityAnalyzer { return &ambiguityAnalyzer{} }

// onMethodInserted recomputes m's ambiguity edges against every other
// method already in mt. Classifies each overlapping pair into one of
// three outcomes:
//   - shadowing: one method's signature is a strict subtype of the
//     other's everywhere they overlap -> no ambiguity, the more specific
//     one simply wins at dispatch time.
//   - covered: some third method already in the table is at least as
//     specific as both and its signature contains their whole
//     intersection -> not ambiguous in practice, the covering method
//     always wins.
//   - true ambiguity: neither dominates and nothing covers the
//     intersection -> recorded as a symmetric edge on both methods.
func (a *ambiguityAnalyzer) onMethodInserted(mt *MethodTable, m *Method) {
	mSig, err := argTypesOf(m.Sig)
	if err != nil {
		return
	}

	// Called from MethodTable.insert while mt.tableMu is already held for
	// writing, so this walks mt.defs directly instead of going through
	// the exported, locking AllMethods (which would deadlock re-taking
	// the same non-reentrant lock).
	mt.defs.All(func(e *typemap.Entry) bool {
		other := e.Payload.(*Method)
		if other == m {
			return true
		}
		otherSig, err := argTypesOf(other.Sig)
		if err != nil {
			return true
		}
		if !signaturesIntersect(mSig, m.Vararg, otherSig, other.Vararg) {
			return true
		}
		if moreSpecific(mSig, m.Vararg, other) || moreSpecific(otherSig, other.Vararg, m) {
			return true // shadowing, not ambiguous
		}
		if a.coveredByThirdMethod(mt, m, other) {
			return true
		}
		addAmbiguousEdge(mt, m, other)
		return true
	})
}

func addAmbiguousEdge(mt *MethodTable, a, b *Method) {
	for _, x := range a.ambiguousWith {
		if x == b {
			return
		}
	}
	a.ambiguousWith = append(a.ambiguousWith, b)
	b.ambiguousWith = append(b.ambiguousWith, a)
	if mt.rt != nil {
		mt.rt.tracer.onAmbiguous(mt, a, b)
	}
}

// coveredByThirdMethod reports whether some other method in the table is
// more specific than both a and b and matches their whole intersection,
// making the ambiguity between a and b unreachable in practice. Pairs of
// different signature length are never treated as covered.
func (a *ambiguityAnalyzer) coveredByThirdMethod(mt *MethodTable, m1, m2 *Method) bool {
	sig1, err1 := argTypesOf(m1.Sig)
	sig2, err2 := argTypesOf(m2.Sig)
	if err1 != nil || err2 != nil || len(sig1) != len(sig2) {
		return false
	}
	isect := make([]typesystem.Type, len(sig1))
	for i := range isect {
		t, ok := typesystem.Intersect(sig1[i], sig2[i])
		if !ok {
			return false
		}
		isect[i] = t
	}
	covered := false
	mt.defs.All(func(e *typemap.Entry) bool {
		other := e.Payload.(*Method)
		if other == m1 || other == m2 {
			return true
		}
		otherSig, err := argTypesOf(other.Sig)
		if err != nil {
			return true
		}
		if moreSpecific(otherSig, other.Vararg, m1) && moreSpecific(otherSig, other.Vararg, m2) &&
			allSubtype(isect, otherSig, other.Vararg) {
			covered = true
			return false
		}
		return true
	})
	return covered
}

func signaturesIntersect(a []typesystem.Type, aVararg bool, b []typesystem.Type, bVararg bool) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	if !aVararg && len(a) < n {
		return false
	}
	if !bVararg && len(b) < n {
		return false
	}
	for i := 0; i < n; i++ {
		ta := elemAt(a, aVararg, i)
		tb := elemAt(b, bVararg, i)
		if ta == nil || tb == nil {
			continue
		}
		if _, ok := typesystem.Intersect(ta, tb); !ok {
			return false
		}
	}
	return true
}

func elemAt(sig []typesystem.Type, vararg bool, i int) typesystem.Type {
	if i < len(sig) {
		return sig[i]
	}
	if vararg && len(sig) > 0 {
		return sig[len(sig)-1]
	}
	return nil
}

// isMoreSpecificMethod reports whether a should be preferred over b when
// both match a call (morespecific in original_source/src/gf.c): a is
// preferred if its signature is a subtype of b's at every overlapping
// position and strictly narrower at at least one.
func isMoreSpecificMethod(a, b *Method) bool {
	sigA, errA := argTypesOf(a.Sig)
	sigB, errB := argTypesOf(b.Sig)
	if errA != nil || errB != nil {
		return false
	}
	aWins := moreSpecific(sigA, a.Vararg, b)
	bWins := moreSpecific(sigB, b.Vararg, a)
	if aWins && !bWins {
		return true
	}
	if bWins && !aWins {
		return false
	}
	// Tied on subtyping in both directions (identical signatures or a
	// genuine ambiguity): prefer the non-variadic one; otherwise report
	// false, so a caller scanning candidates keeps the one it saw first.
	if a.Vararg != b.Vararg {
		return !a.Vararg
	}
	return false
}

// HasCallAmbiguities reports whether, for the given call argument types,
// the winning method best has an ambiguous sibling that also matches —
// meaning the call itself is genuinely ambiguous and must raise a
// MethodError rather than silently pick one. Supplemented from
// jl_has_call_ambiguities in original_source/src/gf.c.
func (a *ambiguityAnalyzer) HasCallAmbiguities(types []typesystem.Type, best *Method) bool {
	for _, sibling := range best.ambiguousWith {
		sig, err := argTypesOf(sibling.Sig)
		if err != nil {
			continue
		}
		if allSubtype(types, sig, sibling.Vararg) {
			return true
		}
	}
	return false
}

func allSubtype(call []typesystem.Type, sig []typesystem.Type, vararg bool) bool {
	if !vararg && len(call) != len(sig) {
		return false
	}
	if vararg && len(call) < len(sig)-1 {
		return false
	}
	for i, t := range call {
		st := elemAt(sig, vararg, i)
		if st == nil {
			return false
		}
		if !typesystem.IsSubtype(t, st) {
			return false
		}
	}
	return true
}
