package dispatch

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gendispatch/gf/internal/typesystem"
)

// Runtime is the engine's process-wide context: every method table it
// manages, the concurrency primitives spec.md §5 requires
// (codegen/typeinf locks, singleflight-based inference coalescing), the
// diagnostic tracer, and the ambiguity analyzer shared across tables.
type Runtime struct {
	mu      sync.RWMutex
	tables  map[string]*MethodTable
	kwsort  map[string]*MethodTable

	interns   *internTable
	tracer    *tracer
	ambiguity *ambiguityAnalyzer

	// codegenLock serializes specialization, inference, and compilation:
	// only one goroutine may be turning a LambdaInfo from "uninferred"
	// into "compiled" at a time. typeinfLock additionally serializes
	// entry into the external inference service itself, since the
	// inference bridge may recursively trigger specialization of its own
	// helper methods. Grounded on spec.md §5's concurrency model.
	codegenLock sync.Mutex
	typeinfLock sync.Mutex

	inferGroup singleflight.Group
	inferFn    InferFunc
}

// InferFunc is the external type-inference service's entry point: given a
// LambdaInfo awaiting inference, it returns once inference (and any
// transitively required specialization) has completed, or an error if
// inference failed.
type InferFunc func(li *LambdaInfo) error

// NewRuntime creates an empty dispatch runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		tables:    make(map[string]*MethodTable),
		kwsort:    make(map[string]*MethodTable),
		interns:   newInternTable(),
		tracer:    newTracer(),
		ambiguity: newAmbiguityAnalyzer(),
	}
}

// MethodTableFor returns the named generic function's method table,
// creating it if this is the first method ever defined under that name.
func (rt *Runtime) MethodTableFor(name string) *MethodTable {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	mt, ok := rt.tables[name]
	if !ok {
		mt = NewMethodTable(name, rt)
		rt.tables[name] = mt
	}
	return mt
}

// GetKwsorter returns the synthetic method table that dispatches on a
// type's keyword-argument sorter function, creating it on first access.
// Supplemented from get_kwsorter in original_source/src/gf.c: Julia
// generates one extra method table per generic function to route calls
// carrying keyword arguments to a positional "sorter" method after
// resolving defaults and reordering keys; this engine exposes the same
// per-type table lazily rather than eagerly for every definition.
func (rt *Runtime) GetKwsorter(typeName string) *MethodTable {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	mt, ok := rt.kwsort[typeName]
	if !ok {
		mt = NewMethodTable(typeName+"#kw", rt)
		rt.kwsort[typeName] = mt
	}
	return mt
}

// SetTypeInferFunc installs the external inference service entry point
// C8 calls into on a cache miss.
func (rt *Runtime) SetTypeInferFunc(f InferFunc) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.inferFn = f
}

// RegisterMethodTracer / RegisterLinfoCreationTracer / RegisterLinfoCompileTracer
// forward to the runtime's tracer.
func (rt *Runtime) RegisterMethodTracer(cb TracerFunc)       { rt.tracer.RegisterMethodCreationTracer(cb) }
func (rt *Runtime) RegisterLinfoCreationTracer(cb TracerFunc) { rt.tracer.RegisterLinfoCreationTracer(cb) }
func (rt *Runtime) RegisterLinfoCompileTracer(cb TracerFunc)  { rt.tracer.RegisterLinfoCompileTracer(cb) }

// TraceMethod / UntraceMethod forward to the runtime's tracer.
func (rt *Runtime) TraceMethod(m *Method)   { rt.tracer.TraceMethod(m) }
func (rt *Runtime) UntraceMethod(m *Method) { rt.tracer.UntraceMethod(m) }

// MatchResult is one entry returned by MatchingMethods.
type MatchResult struct {
	Method *Method
	Types  []typesystem.Type
}
