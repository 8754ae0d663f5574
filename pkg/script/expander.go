// Package script expands expression blocks embedded in templated statements.
//
// A block is written between single braces and evaluated against the
// variables of the execution:
//
//	select * from orders_{year} where region = ?region {limit > 0 ? 'limit ' + limit : ''}
//
// Doubled braces ({{ and }}) stand for literal brace characters. Statements
// without a '{' are returned untouched.
//
// The expression language is deliberately small: numbers, quoted strings,
// true/false/null, variable names, arithmetic, string concatenation with +,
// comparisons, && || ! and the ternary operator. Nothing else is reachable
// from a statement.
package script

import (
	"strings"

	"github.com/ajitpratap0/sqlrt/pkg/errors"
)

// Marker opens an expression block.
const Marker = "{"

// Scope resolves identifiers used inside expression blocks.
type Scope interface {
	// Lookup returns the value for name; ok is false for unknown names.
	Lookup(name string) (value interface{}, ok bool, err error)
}

// MapScope is a Scope backed by a plain map.
type MapScope map[string]interface{}

// Lookup implements Scope.
func (m MapScope) Lookup(name string) (interface{}, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

// HasMarker reports whether statement contains an expression block marker.
func HasMarker(statement string) bool {
	return strings.Contains(statement, Marker)
}

// Expand substitutes every expression block in statement with its value.
// The whole statement is compiled into a single composite expression and
// evaluated once. Failures are EvaluationErrors carrying the original
// statement text.
func Expand(statement string, scope Scope) (string, error) {
	if !HasMarker(statement) {
		return statement, nil
	}

	composite, err := Compose(statement)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeEvaluation, "malformed expression block").
			WithStatement(statement)
	}

	tree, err := parse(composite)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeEvaluation, "invalid expression").
			WithStatement(statement)
	}

	v, err := tree.eval(scope)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeEvaluation, "expression evaluation failed").
			WithStatement(statement)
	}
	return Format(v), nil
}

// Compose turns a templated statement into one expression: literal spans
// become quoted strings and expression spans are kept raw, all joined by +.
func Compose(statement string) (string, error) {
	var out strings.Builder
	var lit strings.Builder

	out.WriteString("''")
	flushLiteral := func() {
		if lit.Len() == 0 {
			return
		}
		out.WriteString(" + '")
		out.WriteString(quoteLiteral(lit.String()))
		out.WriteString("'")
		lit.Reset()
	}

	for i := 0; i < len(statement); {
		c := statement[i]
		switch {
		case c == '{' && i+1 < len(statement) && statement[i+1] == '{':
			lit.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(statement) && statement[i+1] == '}':
			lit.WriteByte('}')
			i += 2
		case c == '}':
			return "", errors.Newf(errors.ErrorTypeEvaluation, "unbalanced '}' at offset %d", i)
		case c == '{':
			end, err := blockEnd(statement, i+1)
			if err != nil {
				return "", err
			}
			expr := strings.TrimSpace(statement[i+1 : end])
			if expr == "" {
				return "", errors.Newf(errors.ErrorTypeEvaluation, "empty expression block at offset %d", i)
			}
			flushLiteral()
			out.WriteString(" + (")
			out.WriteString(expr)
			out.WriteString(")")
			i = end + 1
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flushLiteral()
	return out.String(), nil
}

// blockEnd finds the '}' closing a block whose body starts at from, skipping
// braces inside quoted strings.
func blockEnd(s string, from int) (int, error) {
	var quote byte
	for i := from; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '{':
			return 0, errors.Newf(errors.ErrorTypeEvaluation, "nested '{' at offset %d", i)
		case c == '}':
			return i, nil
		}
	}
	return 0, errors.Newf(errors.ErrorTypeEvaluation, "unterminated expression block starting at offset %d", from-1)
}

// quoteLiteral escapes backslashes and quotes so text survives as a
// single-quoted string literal.
func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
