// Command gfdemo exercises a small generic function built on top of
// internal/dispatch: a "describe" function with methods for Int, String,
// and a catch-all Any, dispatched against a sequence of type names given
// on the command line.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/gendispatch/gf/internal/dispatch"
	"github.com/gendispatch/gf/internal/typesystem"
)

type demoValue struct {
	name string
	typ  typesystem.Type
}

func (v demoValue) RuntimeType() typesystem.Type { return v.typ }

func tcon(name string) typesystem.Type { return typesystem.TCon{Name: name} }

func fnType(params ...typesystem.Type) typesystem.Type {
	return typesystem.TFunc{Params: params, ReturnType: tcon("String")}
}

func buildRuntime() (*dispatch.Runtime, *dispatch.MethodTable) {
	rt := dispatch.NewRuntime()
	mt := rt.MethodTableFor("describe")

	mt.DefineMethod("describe", fnType(tcon("Int")), nil, false,
		func(sparams typesystem.Subst, args []dispatch.Value) (dispatch.Value, error) {
			return demoValue{name: "an Int", typ: tcon("String")}, nil
		})
	mt.DefineMethod("describe", fnType(tcon("String")), nil, false,
		func(sparams typesystem.Subst, args []dispatch.Value) (dispatch.Value, error) {
			return demoValue{name: "a String", typ: tcon("String")}, nil
		})
	mt.DefineMethod("describe", fnType(typesystem.AnyType), nil, false,
		func(sparams typesystem.Subst, args []dispatch.Value) (dispatch.Value, error) {
			return demoValue{name: "something else entirely", typ: tcon("String")}, nil
		})

	return rt, mt
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [-trace] [-precompile] <TypeName>...\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Dispatches describe(x) once per named type (e.g. Int, String, Bool).")
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			if os.Getenv("DEBUG") == "1" {
				panic(r)
			}
			fmt.Fprintf(os.Stderr, "gfdemo: internal error: %v\n", r)
			os.Exit(1)
		}
	}()

	trace := false
	precompile := false
	var typeNames []string

	for _, arg := range os.Args[1:] {
		switch {
		case arg == "-trace" || arg == "--trace":
			trace = true
		case arg == "-precompile" || arg == "--precompile":
			precompile = true
		case arg == "-help" || arg == "--help":
			usage()
			return
		case strings.HasPrefix(arg, "-"):
			fmt.Fprintf(os.Stderr, "gfdemo: unknown flag %s\n", arg)
			usage()
			os.Exit(1)
		default:
			typeNames = append(typeNames, arg)
		}
	}

	if len(typeNames) == 0 {
		usage()
		os.Exit(1)
	}

	rt, mt := buildRuntime()

	if trace {
		rt.RegisterMethodTracer(func(event, detail string) {
			fmt.Fprintf(os.Stderr, "trace: %s %s\n", event, detail)
		})
		mt.AllMethods(func(m *dispatch.Method) bool {
			rt.TraceMethod(m)
			return true
		})
	}

	if precompile {
		if err := rt.Precompile(true); err != nil {
			fmt.Fprintf(os.Stderr, "gfdemo: precompile failed: %s\n", err)
			os.Exit(1)
		}
	}

	cs := dispatch.NewCallSite()
	for _, name := range typeNames {
		arg := demoValue{name: name, typ: tcon(name)}
		result, err := rt.ApplyGeneric("describe", cs, []dispatch.Value{arg})
		if err != nil {
			fmt.Fprintf(os.Stderr, "describe(%s): %s\n", name, err)
			continue
		}
		dv, ok := result.(demoValue)
		if !ok {
			fmt.Fprintf(os.Stderr, "describe(%s): unexpected result type\n", name)
			continue
		}
		fmt.Printf("%s is %s\n", name, dv.name)
	}

	stats := cs.Stats()
	if trace {
		fmt.Fprintf(os.Stderr, "callsite cache: %d hits, %d misses, %d occupied\n", stats.Hits, stats.Misses, stats.Occupied)
	}
}
