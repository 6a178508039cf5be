package dispatch

import (
	"fmt"
	"strings"

	"github.com/gendispatch/gf/internal/typesystem"
)

func typeTupleString(types []typesystem.Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// MethodError reports that no method of a generic function applies to a
// given argument-type tuple. Constructed the way
// typesystem.SymbolNotFoundError is: a small named struct implementing
// error, per spec.md's error-handling design.
type MethodError struct {
	Name  string
	Types []typesystem.Type
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("no method matching %s(%s)", e.Name, typeTupleString(e.Types))
}

// AmbiguousMethodError reports that more than one method applies to a
// given argument-type tuple and neither is more specific than the other.
type AmbiguousMethodError struct {
	Name  string
	Types []typesystem.Type
}

func (e *AmbiguousMethodError) Error() string {
	return fmt.Sprintf("ambiguous call to %s(%s): multiple methods apply and none is more specific", e.Name, typeTupleString(e.Types))
}
