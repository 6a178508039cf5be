package dispatch

import (
	"fmt"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// TracerFunc is a diagnostic callback. Registered callbacks are invoked
// synchronously from the thread performing the triggering operation;
// callbacks must not re-enter the engine (in_pure_callback in
// original_source/src/gf.c guards the same reentrancy hazard).
type TracerFunc func(event string, detail string)

// tracer owns the engine's diagnostic sink: method-creation,
// linfo-creation, and linfo-compile callback slots, plus the
// redefinition/ambiguity warnings emitted directly to stderr.
type tracer struct {
	mu sync.Mutex

	methodCreation     []TracerFunc
	linfoCreation      []TracerFunc
	linfoCompile       []TracerFunc
	tracedMethods      map[*Method]bool
	inCallback         bool

	out      *os.File
	colorize bool

	counters struct {
		invalidated uint64
		overwritten uint64
		ambiguous   uint64
	}
}

func newTracer() *tracer {
	out := os.Stderr
	return &tracer{
		out:           out,
		colorize:      isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()),
		tracedMethods: make(map[*Method]bool),
	}
}

func (t *tracer) emphasize(s string) string {
	if !t.colorize {
		return s
	}
	return "\x1b[33m" + s + "\x1b[0m"
}

func (t *tracer) printf(format string, args ...interface{}) {
	fmt.Fprintf(t.out, "[gf] "+format+"\n", args...)
}

// RegisterMethodCreationTracer appends cb to the method-creation callback
// list.
func (t *tracer) RegisterMethodCreationTracer(cb TracerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.methodCreation = append(t.methodCreation, cb)
}

// RegisterLinfoCreationTracer appends cb to the specialization-creation
// callback list.
func (t *tracer) RegisterLinfoCreationTracer(cb TracerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.linfoCreation = append(t.linfoCreation, cb)
}

// RegisterLinfoCompileTracer appends cb to the specialization-compile
// callback list.
func (t *tracer) RegisterLinfoCompileTracer(cb TracerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.linfoCompile = append(t.linfoCompile, cb)
}

// TraceMethod/UntraceMethod flag m for per-call tracing.
func (t *tracer) TraceMethod(m *Method)   { t.mu.Lock(); defer t.mu.Unlock(); m.traced = true }
func (t *tracer) UntraceMethod(m *Method) { t.mu.Lock(); defer t.mu.Unlock(); m.traced = false }

func (t *tracer) dispatch(cbs []TracerFunc, event, detail string) {
	t.mu.Lock()
	if t.inCallback {
		t.mu.Unlock()
		return
	}
	t.inCallback = true
	t.mu.Unlock()

	for _, cb := range cbs {
		t.callGuarded(cb, event, detail)
	}

	t.mu.Lock()
	t.inCallback = false
	t.mu.Unlock()
}

// callGuarded invokes cb, catching and reporting a panic rather than
// letting it unwind into the engine — spec.md §4.C10/§7's "tracer/callback
// failure: caught, reported, swallowed" requirement, the Go analogue of
// the original's JL_TRY/JL_CATCH around tracer invocations.
func (t *tracer) callGuarded(cb TracerFunc, event, detail string) {
	defer func() {
		if r := recover(); r != nil {
			t.printf("%s: tracer callback for %s panicked: %v", t.emphasize("WARNING"), event, r)
		}
	}()
	cb(event, detail)
}

func (t *tracer) onMethodCreated(m *Method) {
	t.dispatch(t.methodCreation, "method-created", m.String())
}

func (t *tracer) onLinfoCreated(li *LambdaInfo) {
	t.dispatch(t.linfoCreation, "linfo-created", fmt.Sprintf("%s%s", li.Method.Name, typeTupleString(li.Types)))
}

func (t *tracer) onLinfoCompiled(li *LambdaInfo) {
	t.dispatch(t.linfoCompile, "linfo-compiled", fmt.Sprintf("%s%s", li.Method.Name, typeTupleString(li.Types)))
}

func (t *tracer) onMethodOverwritten(mt *MethodTable, old, new *Method) {
	t.mu.Lock()
	t.counters.overwritten++
	n := t.counters.overwritten
	t.mu.Unlock()
	t.printf("%s: redefinition of %s (%s total)", t.emphasize("WARNING"), new, humanize.Comma(int64(n)))
}

func (t *tracer) onAmbiguous(mt *MethodTable, a, b *Method) {
	t.mu.Lock()
	t.counters.ambiguous++
	t.mu.Unlock()
	t.printf("%s: %s and %s are ambiguous for some calls", t.emphasize("WARNING"), a, b)
}

func (t *tracer) onCacheInvalidated(mt *MethodTable, n int) {
	if n == 0 {
		return
	}
	t.mu.Lock()
	t.counters.invalidated += uint64(n)
	t.mu.Unlock()
	t.printf("invalidated %s cache %s in %s after redefinition",
		humanize.Comma(int64(n)), pluralize(n, "entry", "entries"), mt.Name)
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
