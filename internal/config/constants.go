package config

// Version is the current engine version.
var Version = "0.1.0"

// IsTestMode indicates if the program is running in test mode.
// The typesystem package consults this to normalize generated type-variable
// and skolem-constant names (t1, t2, ... -> t?) so golden test output is
// deterministic across runs.
var IsTestMode = false

// IsLSPMode indicates if output is being rendered for an editor-facing
// surface rather than a diagnostic log. The typesystem package consults
// this to hide explicit quantifiers in pretty-printed types.
var IsLSPMode = false

// ListTypeName is the type constructor the typesystem pretty-printer treats
// specially: List<Char> prints as String.
const ListTypeName = "List"

// N_CALL_CACHE is the number of call-site micro-cache slots attached to
// each call site. A cache miss falls through to the method table's own
// cache.
const N_CALL_CACHE = 4

// MaxUnspecializedConflicts bounds how many ambiguous guard candidates a
// single cache insertion will collect before giving up on a specific guard
// signature and caching under the call's original, unmodified argument
// tuple instead.
const MaxUnspecializedConflicts = 32

// MaxTupleDepth bounds how deeply a Type{Type{...}} nesting is allowed to
// specialize: an argument nested more deeply than this is cached by the
// canonicalizer as Type{Any} as a whole.
const MaxTupleDepth = 3

// CompileAll makes the precompile driver run its expansion phase even when
// Precompile is called with all=false: every concrete combination of each
// method's union-typed parameters is compiled. When false, that phase runs
// only for Precompile(true). Type-variable parameters are not expanded
// either way; a method with one is compiled once in its unspecialized form.
var CompileAll = false
