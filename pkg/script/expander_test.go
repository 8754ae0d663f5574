package script

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/sqlrt/pkg/errors"
)

type countingScope struct {
	values map[string]interface{}
	calls  map[string]int
}

func (c *countingScope) Lookup(name string) (interface{}, bool, error) {
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[name]++
	v, ok := c.values[name]
	return v, ok, nil
}

func TestExpand_IdentityWithoutMarker(t *testing.T) {
	statements := []string{
		"select * from t where id = ?id",
		"update t set name = 'a}b' where id = ?v0",
		"",
		"select '\\' || x from t",
	}
	for _, s := range statements {
		scope := &countingScope{}
		out, err := Expand(s, scope)
		require.NoError(t, err)
		assert.Equal(t, s, out)
		assert.Empty(t, scope.calls, "no lookups for %q", s)
	}
}

func TestExpand(t *testing.T) {
	scope := MapScope{
		"year":   2024,
		"limit":  10,
		"zero":   0,
		"name":   "o'brien",
		"region": "eu",
		"rate":   1.5,
		"flag":   true,
		"when":   time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"variable", "select * from orders_{year}", "select * from orders_2024"},
		{"arithmetic", "select * from orders_{year - 1}", "select * from orders_2023"},
		{"precedence", "limit {2 + limit * 3}", "limit 32"},
		{"parentheses", "limit {(2 + limit) * 3}", "limit 36"},
		{"integer division stays integral", "limit {limit / 2}", "limit 5"},
		{"fractional division", "ratio {limit / 4}", "ratio 2.5"},
		{"float", "x {rate * 2}", "x 3"},
		{"modulo", "shard {year % 4}", "shard 0"},
		{"string concatenation", "t_{region + '_' + year}", "t_eu_2024"},
		{"ternary true", "select 1 {limit > 0 ? 'limit ' + limit : ''}", "select 1 limit 10"},
		{"ternary false", "select 1 {zero > 0 ? 'limit ' + zero : ''}", "select 1 "},
		{"logical", "{flag && limit == 10 ? 'y' : 'n'}", "y"},
		{"negation", "{!flag ? 'y' : 'n'}", "n"},
		{"unary minus", "{-limit}", "-10"},
		{"strict equality alias", "{region === 'eu' ? 1 : 2}", "1"},
		{"quotes in literal spans survive", "where name = 'x' and y = {year}", "where name = 'x' and y = 2024"},
		{"backslash in literal spans survive", `like 'a\_b' {year}`, `like 'a\_b' 2024`},
		{"value with quote", "{name}", "o'brien"},
		{"escaped braces", "select '{{\"k\": 1}}' as j, {limit}", `select '{"k": 1}' as j, 10`},
		{"brace inside string", "{'}' + region}", "}eu"},
		{"time value", "{when}", "2024-03-01 12:30:00"},
		{"null literal", "{null}", "null"},
		{"several blocks", "{year}-{limit}-{region}", "2024-10-eu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.template, scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpand_Errors(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{"unterminated block", "select {year"},
		{"unbalanced close", "select year}"},
		{"empty block", "select {  }"},
		{"nested block", "select {a{b}}"},
		{"syntax error", "select {year +}"},
		{"unknown identifier", "select {missing}"},
		{"division by zero", "select {1 / zero}"},
		{"bad operand", "select {region * 2}"},
		{"unterminated string", "select {'abc}"},
		{"illegal character", "select {year; drop}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Expand(tt.template, MapScope{"year": 2024, "zero": 0, "region": "eu"})
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeEvaluation))

			stmt, ok := errors.Statement(err)
			require.True(t, ok)
			assert.Equal(t, tt.template, stmt)
		})
	}
}

func TestExpand_LazyLookup(t *testing.T) {
	scope := &countingScope{values: map[string]interface{}{"a": 1, "b": 2, "c": 3}}

	out, err := Expand("{a > 0 ? a : b} {a} {a}", scope)
	require.NoError(t, err)
	assert.Equal(t, "1 1 1", out)
	assert.NotContains(t, scope.calls, "b", "short-circuited branch must not be resolved")
	assert.NotContains(t, scope.calls, "c")
}

func TestCompose(t *testing.T) {
	got, err := Compose("a'b {x} c")
	require.NoError(t, err)
	assert.Equal(t, `'' + 'a\'b ' + (x) + ' c'`, got)
}
