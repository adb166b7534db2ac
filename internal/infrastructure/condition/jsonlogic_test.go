package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func cartData(subtotal float64, count int) map[string]any {
	return map[string]any{
		"subtotal":   subtotal,
		"item_count": count,
		"currency":   "USD",
	}
}

func TestEvaluate_Comparison(t *testing.T) {
	e := NewJSONLogicEvaluator()
	cond := map[string]any{">=": []any{map[string]any{"var": "subtotal"}, 50}}

	ok, err := e.Evaluate(cond, cartData(75, 2))
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate(cond, cartData(25, 2))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_CompoundLogic(t *testing.T) {
	e := NewJSONLogicEvaluator()
	cond := map[string]any{"and": []any{
		map[string]any{">": []any{map[string]any{"var": "subtotal"}, 50}},
		map[string]any{"==": []any{map[string]any{"var": "currency"}, "USD"}},
	}}

	ok, err := e.Evaluate(cond, cartData(75, 2))
	assert.NoError(t, err)
	assert.True(t, ok)

	data := cartData(75, 2)
	data["currency"] = "EUR"
	ok, err = e.Evaluate(cond, data)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_MissingVariableIsFalsy(t *testing.T) {
	e := NewJSONLogicEvaluator()
	cond := map[string]any{"var": "no_such_field"}

	ok, err := e.Evaluate(cond, cartData(75, 2))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestTruthyResult(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"true", "true", true},
		{"false", "false", false},
		{"null", "null", false},
		{"zero", "0", false},
		{"number", "42", true},
		{"empty string", `""`, false},
		{"blank string", `"  "`, false},
		{"string", `"yes"`, true},
		{"empty array", "[]", false},
		{"array", "[1]", true},
		{"empty object", "{}", false},
		{"object", `{"a":1}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := truthyResult([]byte(tt.raw))
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruthyResult_Malformed(t *testing.T) {
	_, err := truthyResult([]byte("not json"))
	assert.Error(t, err)
}
