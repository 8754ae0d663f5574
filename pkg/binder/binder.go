// Package binder rewrites ?name tokens into positional placeholders and
// collects the values bound to them.
//
// Variables are matched longest name first, so ?id never matches inside
// ?id2. Every matched token is blanked out in a working copy of the
// statement (same length, offsets preserved) so shorter names cannot match
// it again; the recorded occurrences are then sorted by offset to produce
// the placeholders and the argument list left to right.
//
// Tokens inside single- or double-quoted literals are left alone; a doubled
// quote inside a literal is an escaped quote.
//
//	b := binder.New(binder.Options{Style: binder.StyleDollar})
//	r := binder.NewResolver(ctx, []*binder.Variable{
//		binder.Fixed("id", 5),
//		binder.Fixed("id2", 6),
//	})
//	bound, err := b.Bind("select * from t where ?id = ?id2", r)
//	// bound.SQL  == "select * from t where $1 = $2"
//	// bound.Args == []interface{}{5, 6}
package binder

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ajitpratap0/sqlrt/pkg/errors"
)

// Style is the positional placeholder syntax of a driver.
type Style int

const (
	// StyleQuestion renders every placeholder as '?'.
	StyleQuestion Style = iota
	// StyleDollar renders placeholders as $1, $2, ...
	StyleDollar
)

// Placeholder renders the n-th (1-based) placeholder.
func (s Style) Placeholder(n int) string {
	if s == StyleDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Policy decides what happens to a ?name token no variable matches.
type Policy int

const (
	// PolicyFail rejects the statement with a bind error.
	PolicyFail Policy = iota
	// PolicyPassThrough leaves the token in the statement untouched.
	PolicyPassThrough
)

// ParsePolicy maps a configuration value ("fail", "pass_through") to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail":
		return PolicyFail, nil
	case "pass_through":
		return PolicyPassThrough, nil
	}
	return PolicyFail, errors.Newf(errors.ErrorTypeValidation, "unknown unresolved-token policy %q", s)
}

// Options configures a Binder.
type Options struct {
	Style           Style
	CaseInsensitive bool
	Unresolved      Policy
}

// Bound is a statement ready for execution.
type Bound struct {
	SQL  string
	Args []interface{}
}

// Binder rewrites statements. It holds no per-call state and is safe for
// concurrent use.
type Binder struct {
	opts Options
}

// New creates a binder.
func New(opts Options) *Binder {
	return &Binder{opts: opts}
}

// Options returns the binder configuration.
func (b *Binder) Options() Options {
	return b.opts
}

type occurrence struct {
	pos    int
	length int
	v      *Variable
}

// Bind rewrites statement against the resolver's variables.
func (b *Binder) Bind(statement string, r *Resolver) (*Bound, error) {
	return b.BindStyle(statement, r, b.opts.Style)
}

// BindStyle is Bind with an explicit placeholder style.
func (b *Binder) BindStyle(statement string, r *Resolver, style Style) (*Bound, error) {
	vars := make([]*Variable, len(r.vars))
	copy(vars, r.vars)
	sort.SliceStable(vars, func(i, j int) bool {
		return len(vars[i].name) > len(vars[j].name)
	})

	work := []byte(statement)
	literal := literalMask(statement)
	var occs []occurrence

	for _, v := range vars {
		if !validName(v.name) {
			return nil, errors.Newf(errors.ErrorTypeBind, "malformed variable name %q", v.name).
				WithStatement(statement)
		}
		token := "?" + v.name
		for i := 0; i+len(token) <= len(work); i++ {
			if work[i] != '?' || literal[i] || !b.tokenAt(work, i, token) {
				continue
			}
			occs = append(occs, occurrence{pos: i, length: len(token), v: v})
			for j := i + 1; j < i+len(token); j++ {
				work[j] = ' '
			}
			i += len(token) - 1
		}
	}

	if unresolved := unresolvedTokens(work, literal); len(unresolved) > 0 && b.opts.Unresolved == PolicyFail {
		return nil, errors.Newf(errors.ErrorTypeBind, "unresolved tokens: %s", strings.Join(unresolved, ", ")).
			WithDetail("tokens", unresolved).
			WithStatement(statement)
	}

	sort.Slice(occs, func(i, j int) bool { return occs[i].pos < occs[j].pos })

	var sb strings.Builder
	sb.Grow(len(statement))
	args := make([]interface{}, 0, len(occs))
	last := 0
	for n, o := range occs {
		value, err := r.Resolve(o.v)
		if err != nil {
			if e, ok := err.(*errors.Error); ok {
				if _, has := errors.Statement(e); !has {
					e.WithStatement(statement)
				}
			}
			return nil, err
		}
		sb.WriteString(statement[last:o.pos])
		sb.WriteString(style.Placeholder(n + 1))
		args = append(args, value)
		last = o.pos + o.length
	}
	sb.WriteString(statement[last:])

	return &Bound{SQL: sb.String(), Args: args}, nil
}

// tokenAt reports whether token starts at i and is not followed by another
// identifier character.
func (b *Binder) tokenAt(work []byte, i int, token string) bool {
	seg := string(work[i : i+len(token)])
	if seg != token && !(b.opts.CaseInsensitive && strings.EqualFold(seg, token)) {
		return false
	}
	end := i + len(token)
	return end >= len(work) || !isIdentPart(work[end])
}

func unresolvedTokens(work []byte, literal []bool) []string {
	var out []string
	for i := 0; i < len(work)-1; i++ {
		if work[i] != '?' || literal[i] || !isIdentStart(work[i+1]) {
			continue
		}
		j := i + 1
		for j < len(work) && isIdentPart(work[j]) {
			j++
		}
		out = append(out, string(work[i:j]))
		i = j - 1
	}
	return out
}

// literalMask marks the bytes of s that belong to quoted literals. An
// unterminated literal runs to the end of s.
func literalMask(s string) []bool {
	mask := make([]bool, len(s))
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote == 0 {
			if c == '\'' || c == '"' {
				quote = c
				mask[i] = true
			}
			continue
		}
		mask[i] = true
		if c != quote {
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			mask[i+1] = true
			i++
			continue
		}
		quote = 0
	}
	return mask
}
