package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/hupe1980/crmflow/core"
)

// conditionOperators is the closed set accepted by condition steps.
var conditionOperators = map[string]bool{
	"=": true, "==": true, "!=": true,
	">": true, "<": true, ">=": true, "<=": true,
	"contains": true,
	"expr":     true,
}

// evalCondition evaluates one condition step against the run scope.
//
// For comparison operators the configured field is resolved through the
// scope (bare names read the trigger data); values are compared numerically
// when both sides parse as numbers, otherwise as strings. The "expr"
// operator treats the configured value as a boolean expression evaluated
// with "trigger" and "steps" bound in the environment.
func evalCondition(cfg *core.ConditionStepConfig, scope *Scope) (bool, error) {
	if cfg.Operator == "expr" {
		return evalExprCondition(cfg, scope)
	}

	fieldVal, err := scope.Resolve(cfg.Field)
	if err != nil {
		return false, err
	}

	switch cfg.Operator {
	case "=", "==":
		return compareEqual(fieldVal, cfg.Value), nil
	case "!=":
		return !compareEqual(fieldVal, cfg.Value), nil
	case ">", "<", ">=", "<=":
		left, lok := toFloat(fieldVal)
		right, rok := toFloat(cfg.Value)
		if !lok || !rok {
			return false, fmt.Errorf("operator %q requires numeric operands, got %v and %v", cfg.Operator, fieldVal, cfg.Value)
		}
		switch cfg.Operator {
		case ">":
			return left > right, nil
		case "<":
			return left < right, nil
		case ">=":
			return left >= right, nil
		default:
			return left <= right, nil
		}
	case "contains":
		return strings.Contains(toString(fieldVal), toString(cfg.Value)), nil
	default:
		return false, fmt.Errorf("unknown condition operator %q", cfg.Operator)
	}
}

// evalExprCondition compiles and runs a boolean expression with the trigger
// data and recorded step outputs in scope.
func evalExprCondition(cfg *core.ConditionStepConfig, scope *Scope) (bool, error) {
	src, ok := cfg.Value.(string)
	if !ok || src == "" {
		return false, fmt.Errorf("expr condition requires a non-empty expression string")
	}

	env := map[string]any{
		"trigger": scope.Trigger,
		"steps":   scope.Steps,
	}
	prg, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition expression %q: %w", src, err)
	}
	out, err := expr.Run(prg, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition expression %q: %w", src, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition expression %q did not produce a boolean", src)
	}
	return result, nil
}

// compareEqual compares numerically when possible, falling back to string
// comparison so "85" equals 85 regardless of how the trigger payload was
// serialized.
func compareEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
