package dispatch

import (
	"testing"

	"github.com/gendispatch/gf/internal/typemap"
	"github.com/gendispatch/gf/internal/typesystem"
)

func tcon(name string) typesystem.Type { return typesystem.TCon{Name: name} }

func fn(params ...typesystem.Type) typesystem.Type {
	return typesystem.TFunc{Params: params, ReturnType: typesystem.AnyType}
}

func fnVar(params ...typesystem.Type) typesystem.Type {
	return typesystem.TFunc{Params: params, ReturnType: typesystem.AnyType, IsVariadic: true}
}

func constVal(t typesystem.Type) Value { return constValue{t} }

type constValue struct{ t typesystem.Type }

func (c constValue) RuntimeType() typesystem.Type { return c.t }

func echo(sparams typesystem.Subst, args []Value) (Value, error) {
	if len(args) == 0 {
		return nil, nil
	}
	return args[0], nil
}

func TestNewMethodTableIsEmpty(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	if mt.Name != "f" {
		t.Fatalf("expected table name f, got %s", mt.Name)
	}
	if mt.MaxArgs != 0 {
		t.Fatalf("expected MaxArgs 0 on empty table, got %d", mt.MaxArgs)
	}
}

func TestDefineMethodRegistersDefinition(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	m, err := mt.DefineMethod("f", fn(tcon("Int")), nil, false, echo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mt.MaxArgs != 1 {
		t.Fatalf("expected MaxArgs 1, got %d", mt.MaxArgs)
	}
	found, ok, err := mt.LookupDefinition([]typesystem.Type{tcon("Int")}, typemap.Inexact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || found != m {
		t.Fatalf("expected to find the defined method")
	}
}

// TestDefineMethodRejectsIllKindedSignature pins §4.C1's type-system
// adapter boundary: a declared signature that misapplies a type
// constructor (List itself has kind * -> *, not *) must be rejected at
// definition time rather than silently accepted and left to fail in some
// later, harder-to-diagnose way during dispatch.
func TestDefineMethodRejectsIllKindedSignature(t *testing.T) {
	rt := NewRuntime()
	mt := rt.MethodTableFor("f")
	illKinded := typesystem.TApp{Constructor: tcon("List"), Args: []typesystem.Type{tcon("List")}}
	if _, err := mt.DefineMethod("f", fn(illKinded), nil, false, echo); err == nil {
		t.Fatalf("expected List<List> to be rejected as ill-kinded")
	}
}

func TestLambdaInfoStartsUncompiled(t *testing.T) {
	m := newMethod("f", fn(tcon("Int")), nil, false, echo)
	li := newLambdaInfo(m, []typesystem.Type{tcon("Int")}, typesystem.Subst{})
	if li.IsInferred() || li.IsCompiled() {
		t.Fatalf("expected a freshly created LambdaInfo to be neither inferred nor compiled")
	}
}
