// Package variable implements the Variable Resolver (component A): an
// ordered chain of property sources that resolve named, typed values for
// the Expansion Engine and the Controller's Refresh path.
package variable

import "fmt"

// Kind identifies the dynamic type carried by a Variable's Value.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindJSON   Kind = "json"
)

// Variable is a named, typed value resolved from a PropertySource.
//
// Immutable==true means a change to this variable forces a full graph
// rebuild (Controller.ChangeDefinition/Restart); otherwise Refresh patches
// the bound node property in place.
type Variable struct {
	Name      string
	Kind      Kind
	Value     interface{}
	Immutable bool
}

// String renders Value as its textual substitution form, used by the
// Expansion Engine when splicing a variable into a launch string.
func (v Variable) String() string {
	switch v.Kind {
	case KindString:
		s, _ := v.Value.(string)
		return s
	default:
		return fmt.Sprintf("%v", v.Value)
	}
}
