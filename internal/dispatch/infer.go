package dispatch

import (
	"fmt"

	"github.com/gendispatch/gf/internal/typemap"
	"github.com/gendispatch/gf/internal/typesystem"
)

// EnsureCompiled drives a LambdaInfo from freshly created through inferred
// to compiled, serialized the way spec.md §5 requires: codegenLock
// guards the whole specialize-infer-compile sequence, typeinfLock
// additionally guards entry into the external inference service, and
// concurrent callers racing to compile the *same* LambdaInfo are
// coalesced onto one another's in-flight work via singleflight instead of
// each independently re-running inference.
func (rt *Runtime) EnsureCompiled(li *LambdaInfo) error {
	if li.IsCompiled() {
		return nil
	}

	key := li.Method.Name + "|" + specializationKey(li.Types, li.Sparam)
	_, err, _ := rt.inferGroup.Do(key, func() (interface{}, error) {
		rt.codegenLock.Lock()
		defer rt.codegenLock.Unlock()

		if li.IsCompiled() {
			return nil, nil
		}

		if err := rt.runInference(li); err != nil {
			return nil, err
		}

		li.mu.Lock()
		li.compiled = true
		li.mu.Unlock()
		rt.tracer.onLinfoCompiled(li)
		return nil, nil
	})
	return err
}

func (rt *Runtime) runInference(li *LambdaInfo) error {
	if li.IsInferred() {
		return nil
	}

	li.mu.Lock()
	if li.inInference {
		// Re-entrant inference request for the same LambdaInfo: the
		// caller that is already inferring it will mark it inferred.
		// Mirrors the original's inInference re-entrancy guard.
		li.mu.Unlock()
		return nil
	}
	li.inInference = true
	li.mu.Unlock()

	defer func() {
		li.mu.Lock()
		li.inInference = false
		li.mu.Unlock()
	}()

	if rt.inferFn == nil {
		// No inference service configured: fall back to treating the
		// method's declared signature as already fully resolved. This is
		// the bootstrap path spec.md §7 marks fatal only if no method at
		// all can be found; here a method was found, so proceeding
		// without inference is a valid (if unoptimized) degraded mode.
		li.mu.Lock()
		li.inferred = true
		li.mu.Unlock()
		rt.tracer.onLinfoCreated(li)
		return nil
	}

	rt.typeinfLock.Lock()
	err := rt.inferFn(li)
	rt.typeinfLock.Unlock()
	if err != nil {
		return fmt.Errorf("inference failed for %s%s: %w", li.Method.Name, typeTupleString(li.Types), err)
	}

	li.mu.Lock()
	li.inferred = true
	li.mu.Unlock()
	rt.tracer.onLinfoCreated(li)
	return nil
}

// CompileHint forces a specialization to exist for the given argument
// types without dispatching a call, reporting whether a (possibly new)
// specialization was produced. Supplemented from jl_compile_hint in
// original_source/src/gf.c; exposed per spec.md §6's external interface
// list.
func (rt *Runtime) CompileHint(mtName string, types []typesystem.Type) (bool, error) {
	rt.mu.RLock()
	mt, ok := rt.tables[mtName]
	rt.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("no method table named %s", mtName)
	}

	m, found, err := mt.LookupDefinition(types, typemap.Inexact)
	if !found {
		return false, nil
	}
	if err != nil {
		if _, ok := err.(*AmbiguousMethodError); !ok {
			return false, err
		}
	}

	bindings, err := InferSparams(m, types)
	if err != nil {
		return false, err
	}
	li := m.getOrCreateLinfo(types, bindings)
	wasCompiled := li.IsCompiled()
	if err := rt.EnsureCompiled(li); err != nil {
		return false, err
	}
	return !wasCompiled, nil
}
