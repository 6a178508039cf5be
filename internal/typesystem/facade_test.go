package typesystem

import "testing"

func TestIsSubtype(t *testing.T) {
	intT := TCon{Name: "Int"}
	strT := TCon{Name: "String"}
	union := TUnion{Types: []Type{intT, strT}}

	tests := []struct {
		name string
		sub  Type
		sup  Type
		want bool
	}{
		{"Int <: Any", intT, AnyType, true},
		{"Int <: Int", intT, intT, true},
		{"Int <: String", intT, strT, false},
		{"Int <: Int|String", intT, union, true},
		{"Bool <: Int|String", TCon{Name: "Bool"}, union, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSubtype(tt.sub, tt.sup); got != tt.want {
				t.Errorf("IsSubtype(%s, %s) = %v, want %v", tt.sub, tt.sup, got, tt.want)
			}
		})
	}
}

func TestIntersect(t *testing.T) {
	intT := TCon{Name: "Int"}
	strT := TCon{Name: "String"}

	if _, ok := Intersect(intT, strT); ok {
		t.Errorf("Int and String should not intersect")
	}

	if res, ok := Intersect(intT, AnyType); !ok || res.String() != "Int" {
		t.Errorf("Int and Any should intersect to Int, got %v ok=%v", res, ok)
	}

	union := TUnion{Types: []Type{intT, strT}}
	if _, ok := Intersect(intT, union); !ok {
		t.Errorf("Int should intersect Int|String")
	}
}

func TestIsLeaf(t *testing.T) {
	listCon := TCon{Name: "List", KindVal: MakeArrow(Star, Star)}
	intT := TCon{Name: "Int"}
	alias := TCon{Name: "StringResult", UnderlyingType: TApp{Constructor: TCon{Name: "Result"}, Args: []Type{TCon{Name: "String"}}}}

	if !IsLeaf(intT) {
		t.Errorf("Int should be a leaf")
	}
	if !IsLeaf(TApp{Constructor: listCon, Args: []Type{intT}}) {
		t.Errorf("List<Int> should be a leaf")
	}
	if IsLeaf(TVar{Name: "a"}) {
		t.Errorf("type variable should not be a leaf")
	}
	if IsLeaf(alias) {
		t.Errorf("a type alias should not be a dispatch leaf")
	}
}

func TestInstantiate(t *testing.T) {
	tv := TVar{Name: "t"}
	forall := TForall{Vars: []TVar{tv}, Type: TFunc{Params: []Type{tv}, ReturnType: tv}}

	got := Instantiate(forall, Subst{"t": TCon{Name: "Int"}})
	fn, ok := got.(TFunc)
	if !ok {
		t.Fatalf("Instantiate did not strip TForall, got %T", got)
	}
	if fn.Params[0].String() != "Int" || fn.ReturnType.String() != "Int" {
		t.Errorf("Instantiate() = %s, want (Int) -> Int", fn)
	}
}
