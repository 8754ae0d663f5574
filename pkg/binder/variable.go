package binder

import (
	"fmt"
)

// Kind is the resolution strategy of a Variable.
type Kind int

const (
	// KindFixed variables hold a constant value.
	KindFixed Kind = iota
	// KindGetter variables call a caller-supplied function.
	KindGetter
	// KindSubquery variables run a statement and take the first column of the first row.
	KindSubquery
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindGetter:
		return "getter"
	case KindSubquery:
		return "subquery"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// GetterFunc produces the value of a Getter variable.
type GetterFunc func() (interface{}, error)

// Variable is a named value referenced from statements as ?name.
// Variables are created per call; their resolved value never outlives one execution.
type Variable struct {
	name   string
	kind   Kind
	value  interface{}
	getter GetterFunc
	query  string
}

// Fixed creates a variable bound to a constant.
func Fixed(name string, value interface{}) *Variable {
	return &Variable{name: name, kind: KindFixed, value: value}
}

// Getter creates a variable whose value is produced by fn when first needed.
func Getter(name string, fn GetterFunc) *Variable {
	return &Variable{name: name, kind: KindGetter, getter: fn}
}

// Subquery creates a variable whose value is the first column of the first
// row returned by query.
func Subquery(name, query string) *Variable {
	return &Variable{name: name, kind: KindSubquery, query: query}
}

// Name returns the variable name without the leading '?'.
func (v *Variable) Name() string { return v.name }

// Kind returns the resolution strategy.
func (v *Variable) Kind() Kind { return v.kind }

// Query returns the statement of a Subquery variable.
func (v *Variable) Query() string { return v.query }

// KeyPart returns the contribution of the variable to a result cache key.
// Fixed variables contribute their value and Subquery variables their text.
// Getter values are only known at execution time, so the variable itself is
// the identity.
func (v *Variable) KeyPart() interface{} {
	switch v.kind {
	case KindFixed:
		return []interface{}{v.name, v.value}
	case KindSubquery:
		return []interface{}{v.name, "subquery", v.query}
	default:
		return fmt.Sprintf("%s@%p", v.name, v)
	}
}

func (v *Variable) String() string {
	return fmt.Sprintf("?%s(%s)", v.name, v.kind)
}

// FromArgs turns call arguments into variables. *Variable arguments are kept
// as is; any other argument becomes a Fixed variable named after its
// argument index, so the third argument binds ?v2 whatever precedes it. A
// single []interface{} argument is flattened first.
func FromArgs(args ...interface{}) []*Variable {
	if len(args) == 1 {
		if list, ok := args[0].([]interface{}); ok {
			args = list
		}
	}

	vars := make([]*Variable, 0, len(args))
	for i, arg := range args {
		switch a := arg.(type) {
		case *Variable:
			if a != nil {
				vars = append(vars, a)
			}
		case []*Variable:
			vars = append(vars, a...)
		default:
			vars = append(vars, Fixed(fmt.Sprintf("v%d", i), arg))
		}
	}
	return vars
}

func validName(name string) bool {
	if name == "" || !isIdentStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isIdentPart(name[i]) {
			return false
		}
	}
	return true
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
