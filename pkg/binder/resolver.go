package binder

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/ajitpratap0/sqlrt/pkg/errors"
)

// SubqueryFunc runs a Subquery variable's statement and returns the first
// column of the first row.
type SubqueryFunc func(ctx context.Context, query string) (interface{}, error)

type resolved struct {
	value interface{}
	err   error
}

// Resolver resolves variables for one statement execution. Every variable is
// resolved at most once no matter how often it is referenced, whether from a
// ?name token or an expression block. A Resolver must not be shared between
// executions or goroutines.
type Resolver struct {
	ctx             context.Context
	vars            []*Variable
	caseInsensitive bool
	subquery        SubqueryFunc
	memo            map[*Variable]resolved
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCaseInsensitiveNames makes name lookups ignore ASCII case.
func WithCaseInsensitiveNames(on bool) ResolverOption {
	return func(r *Resolver) { r.caseInsensitive = on }
}

// WithSubquery sets the function used to resolve Subquery variables.
func WithSubquery(fn SubqueryFunc) ResolverOption {
	return func(r *Resolver) { r.subquery = fn }
}

// NewResolver creates a resolver over vars. Common variables are expected
// first, followed by per-call variables; the list is not deduplicated.
func NewResolver(ctx context.Context, vars []*Variable, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		ctx:  ctx,
		vars: vars,
		memo: make(map[*Variable]resolved, len(vars)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Variables returns the variables in resolution order.
func (r *Resolver) Variables() []*Variable {
	return r.vars
}

// Resolve returns the value of v, computing it on first use.
func (r *Resolver) Resolve(v *Variable) (interface{}, error) {
	if res, ok := r.memo[v]; ok {
		return res.value, res.err
	}

	var res resolved
	switch v.kind {
	case KindFixed:
		res.value = v.value
	case KindGetter:
		if v.getter == nil {
			res.err = errors.Newf(errors.ErrorTypeBind, "getter variable %q has no function", v.name)
			break
		}
		res.value, res.err = v.getter()
		if res.err != nil {
			res.err = errors.Wrap(res.err, errors.ErrorTypeBind, "getter for ?"+v.name+" failed")
		}
	case KindSubquery:
		if r.subquery == nil {
			res.err = errors.Newf(errors.ErrorTypeBind, "no data source to resolve subquery variable %q", v.name)
			break
		}
		res.value, res.err = r.subquery(r.ctx, v.query)
		if res.err != nil {
			res.err = errors.Wrap(res.err, errors.ErrorTypeBind, "subquery for ?"+v.name+" failed").
				WithStatement(v.query)
		}
	default:
		res.err = errors.Newf(errors.ErrorTypeBind, "variable %q has unknown kind %s", v.name, v.kind)
	}

	if res.err == nil {
		res.value = normalizeValue(res.value)
	}
	r.memo[v] = res
	return res.value, res.err
}

// Find returns the variable registered under name. When several variables
// share a name the first one wins, matching the binder which lets common
// variables claim a token before per-call ones.
func (r *Resolver) Find(name string) (*Variable, bool) {
	for _, v := range r.vars {
		if v.name == name || (r.caseInsensitive && strings.EqualFold(v.name, name)) {
			return v, true
		}
	}
	return nil, false
}

// Lookup resolves name for expression blocks.
func (r *Resolver) Lookup(name string) (interface{}, bool, error) {
	v, ok := r.Find(name)
	if !ok {
		return nil, false, nil
	}
	value, err := r.Resolve(v)
	return value, true, err
}

type timer interface {
	Time() time.Time
}

// normalizeValue converts date/time-like values to time.Time and nil
// pointers to nil.
func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x.Round(0)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.Round(0)
	case timer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
			return nil
		}
		return x.Time().Round(0)
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil
	}
	return v
}
