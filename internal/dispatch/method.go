// Package dispatch implements the method table, specialization registry,
// and the hot dispatch path that apply a generic function's method table
// to a concrete argument-type tuple.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gendispatch/gf/internal/typesystem"
)

// Value is the minimal stand-in for a runtime argument the engine
// dispatches on. Constructing, printing, and otherwise manipulating
// values is the evaluator's job; dispatch only needs each value's
// runtime type.
type Value interface {
	RuntimeType() typesystem.Type
}

// Body is the callable a Method ultimately resolves to. It receives the
// bound static-parameter substitution alongside the arguments so a
// generated LambdaInfo can close over its own specialization.
type Body func(sparams typesystem.Subst, args []Value) (Value, error)

// Method is one method definition in a MethodTable: a signature, the
// static parameters it is polymorphic over, and the code that runs once
// dispatch selects it.
type Method struct {
	ID   uuid.UUID
	Name string

	// Sig is the declared argument-type signature, possibly containing
	// free type variables (static parameters) and TForall quantification.
	Sig    typesystem.Type // TFunc or TForall{TFunc}
	Sparam []typesystem.TVar
	Vararg bool

	Fn Body

	// ambiguousWith lists methods this one is symmetrically ambiguous
	// with (neither is more specific for every element of their pairwise
	// intersection), per the Open Question decision in DESIGN.md.
	ambiguousWith []*Method

	// traced marks this method for per-call diagnostic tracing (C10).
	traced bool

	// staged marks a method whose cache entry must never be generalized
	// (see CacheMethod's staged-method passthrough rule).
	staged bool

	// neverCalls lists argument positions the method body is known not
	// to invoke as a function, enabling canonicalize.go's uncalled-
	// function-argument despecialization rule.
	neverCalls []int

	// invokes is this method's private re-dispatch cache, used only by
	// Invoke(types, args) to avoid re-walking the method table when the
	// same explicit signature is invoked repeatedly.
	invokes   map[string]*LambdaInfo
	invokesMu sync.Mutex

	// specializations is the method's specialization registry (C3): one
	// LambdaInfo per distinct static-parameter binding this method has
	// ever been instantiated with, keyed by the binding's canonical
	// string form so repeated calls reuse the same specialization.
	specializations   map[string]*LambdaInfo
	specializationsMu sync.Mutex
}

func (m *Method) String() string {
	return fmt.Sprintf("%s%s", m.Name, m.Sig.String())
}

func newMethod(name string, sig typesystem.Type, sparam []typesystem.TVar, vararg bool, fn Body) *Method {
	return &Method{
		ID:              uuid.New(),
		Name:            name,
		Sig:             sig,
		Sparam:          sparam,
		Vararg:          vararg,
		Fn:              fn,
		invokes:         make(map[string]*LambdaInfo),
		specializations: make(map[string]*LambdaInfo),
	}
}

// LambdaInfo is one specialization of a Method: the method plus a
// concrete static-parameter binding, along with the cached/compiled state
// that binding produced.
type LambdaInfo struct {
	ID     uuid.UUID
	Method *Method
	Types  []typesystem.Type // the specialized argument-type tuple
	Sparam typesystem.Subst  // bound static parameters

	inferred bool
	compiled bool

	// inInference guards against the inference bridge being re-entered
	// recursively on the method that is itself inference's own target.
	inInference bool

	mu sync.Mutex
}

func newLambdaInfo(m *Method, types []typesystem.Type, sparam typesystem.Subst) *LambdaInfo {
	return &LambdaInfo{ID: uuid.New(), Method: m, Types: types, Sparam: sparam}
}

// IsInferred reports whether type inference has already run for this
// specialization.
func (li *LambdaInfo) IsInferred() bool {
	li.mu.Lock()
	defer li.mu.Unlock()
	return li.inferred
}

// IsCompiled reports whether this specialization has been compiled.
func (li *LambdaInfo) IsCompiled() bool {
	li.mu.Lock()
	defer li.mu.Unlock()
	return li.compiled
}

// GuardSig is another definition's signature recorded alongside a
// generalized dispatch-cache entry: if a later call's argument types also
// match this signature, the generalized entry must not be trusted for that
// call, since a more specific definition could apply to it. Grounded on
// the guard-entry mechanism cache_method builds when it coarsens a slot
// past the call's own concrete type (original_source/src/gf.c).
type GuardSig struct {
	Sig    []typesystem.Type
	Vararg bool
}

// TypemapEntry is the payload stored in a MethodTable's typemap.Entry:
// it points back at the defining Method and carries the guard/simplesig
// the canonicalizer computed for this particular cache insertion.
type TypemapEntry struct {
	Method      *Method
	Simplesig   []typesystem.Type
	Specialized []typesystem.Type // the canonicalized signature actually cached
	Generalized bool              // Specialized was coarsened past the call's own concrete types
	Guardsigs   []GuardSig        // other definitions this generalized entry must yield to
	Linfo       *LambdaInfo
}
