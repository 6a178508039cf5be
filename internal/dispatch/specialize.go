package dispatch

import (
	"sort"
	"strings"

	"github.com/gendispatch/gf/internal/typesystem"
)

// SpecializationsGetLinfo returns the LambdaInfo for m specialized against
// the given call argument types, creating and registering a new one (via
// getOrCreateLinfo) if this exact binding has not been produced before.
// sparamVals are bound positionally to m.Sparam (extra values are ignored;
// a variable with no value stays unbound); no unification is performed.
func SpecializationsGetLinfo(m *Method, types []typesystem.Type, sparamVals []typesystem.Type) *LambdaInfo {
	bindings := typesystem.Subst{}
	for i, tv := range m.Sparam {
		if i < len(sparamVals) {
			bindings[tv.Name] = sparamVals[i]
		}
	}
	return m.getOrCreateLinfo(types, bindings)
}

func (m *Method) getOrCreateLinfo(types []typesystem.Type, bindings typesystem.Subst) *LambdaInfo {
	key := specializationKey(types, bindings)

	m.specializationsMu.Lock()
	defer m.specializationsMu.Unlock()

	if li, ok := m.specializations[key]; ok {
		return li
	}
	li := newLambdaInfo(m, types, bindings)
	m.specializations[key] = li
	return li
}

func specializationKey(types []typesystem.Type, bindings typesystem.Subst) string {
	var b strings.Builder
	for i, t := range types {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.String())
	}
	if len(bindings) > 0 {
		b.WriteString("|")
		names := make([]string, 0, len(bindings))
		for n := range bindings {
			names = append(names, n)
		}
		// Deterministic ordering: map iteration order is not stable.
		sort.Strings(names)
		for _, n := range names {
			b.WriteString(n)
			b.WriteByte('=')
			b.WriteString(bindings[n].String())
			b.WriteByte(';')
		}
	}
	return b.String()
}

// InferSparams unifies the method's declared signature against the
// concrete call argument types and returns the resulting static-parameter
// bindings. A position whose declared type does not unify with the call
// type (for example a declared Any or union slot that the call matched by
// subtyping) contributes no binding and is skipped; the only error
// returned is for a method signature that is not a function type.
func InferSparams(m *Method, callTypes []typesystem.Type) (typesystem.Subst, error) {
	declared, err := argTypesOf(m.Sig)
	if err != nil {
		return nil, err
	}
	bindings := typesystem.Subst{}
	n := len(declared)
	if m.Vararg {
		n--
	}
	for i := 0; i < n && i < len(callTypes); i++ {
		s, err := typesystem.Unify(declared[i], callTypes[i])
		if err != nil {
			continue
		}
		bindings = bindings.Compose(s)
	}
	if m.Vararg && len(declared) > 0 {
		last := declared[len(declared)-1]
		for i := len(declared) - 1; i < len(callTypes); i++ {
			s, err := typesystem.Unify(last, callTypes[i])
			if err != nil {
				continue
			}
			bindings = bindings.Compose(s)
		}
	}
	return bindings, nil
}
