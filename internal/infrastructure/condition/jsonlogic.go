// Package condition adapts the JsonLogic engine to rule custom conditions.
// Merchants express extra eligibility constraints as JsonLogic documents
// evaluated against a projection of the cart snapshot.
package condition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"

	"github.com/cartperks/cartperks-engine/internal/domain/rule"
)

// JSONLogicEvaluator implements rule.ConditionEvaluator using JsonLogic.
type JSONLogicEvaluator struct{}

// NewJSONLogicEvaluator creates the evaluator.
func NewJSONLogicEvaluator() *JSONLogicEvaluator {
	return &JSONLogicEvaluator{}
}

var _ rule.ConditionEvaluator = (*JSONLogicEvaluator)(nil)

// Evaluate applies the condition to the data projection. The result is
// coerced to a boolean with JsonLogic truthiness: false, null, zero, empty
// string and empty array are all false.
func (e *JSONLogicEvaluator) Evaluate(cond map[string]any, data map[string]any) (bool, error) {
	condJSON, err := json.Marshal(cond)
	if err != nil {
		return false, fmt.Errorf("condition: encode rule: %w", err)
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("condition: encode data: %w", err)
	}

	var result bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(condJSON), bytes.NewReader(dataJSON), &result); err != nil {
		return false, fmt.Errorf("condition: apply: %w", err)
	}
	return truthyResult(result.Bytes())
}

func truthyResult(raw []byte) (bool, error) {
	var value any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &value); err != nil {
		return false, fmt.Errorf("condition: decode result: %w", err)
	}
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		return strings.TrimSpace(v) != "", nil
	case []any:
		return len(v) > 0, nil
	case map[string]any:
		return len(v) > 0, nil
	default:
		return false, fmt.Errorf("condition: unexpected result type %T", value)
	}
}
