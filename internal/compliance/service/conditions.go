package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"

	"chaintrace/internal/compliance/models"
)

// evaluateConditions applies a rule's structural constraints to the request
// payload and returns one violation per breach. Pure function of the rule
// and the payload; no I/O, deterministic.
//
// Check order is stable so violation lists are reproducible: required
// fields first, then allowed values, then numeric limits, then the optional
// expression.
func evaluateConditions(rule models.Rule, data map[string]any) []string {
	var violations []string

	for _, path := range rule.Conditions.RequiredFields {
		value, ok := lookupPath(data, path)
		if !ok || isEmpty(value) {
			violations = append(violations, models.MissingFieldViolation(path))
		}
	}

	for _, path := range sortedKeys(rule.Conditions.AllowedValues) {
		allowed := rule.Conditions.AllowedValues[path]
		value, ok := lookupPath(data, path)
		if !ok || isEmpty(value) {
			continue // absence is the required-fields check's concern
		}
		text := fmt.Sprint(value)
		if !contains(allowed, text) {
			violations = append(violations, models.DisallowedValueViolation(path, text, allowed))
		}
	}

	for _, path := range sortedKeys(rule.Conditions.NumericLimits) {
		limit := rule.Conditions.NumericLimits[path]
		value, ok := lookupPath(data, path)
		if !ok || isEmpty(value) {
			continue
		}
		number, ok := toFloat(value)
		if !ok {
			violations = append(violations, fmt.Sprintf("Value for %s must be numeric", path))
			continue
		}
		if (limit.Max != nil && number > *limit.Max) || (limit.Min != nil && number < *limit.Min) {
			violations = append(violations, models.LimitViolation(path, number, limit))
		}
	}

	if len(rule.Conditions.Expression) > 0 {
		if !expressionHolds(rule.Conditions.Expression, data) {
			violations = append(violations, models.ExpressionViolation(rule.Action))
		}
	}

	return violations
}

// expressionHolds evaluates a jsonlogic document against the payload.
// Fail-closed: an unparsable expression or a falsy result both reject.
func expressionHolds(expression map[string]any, data map[string]any) bool {
	ruleJSON, err := json.Marshal(expression)
	if err != nil {
		return false
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return false
	}

	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(ruleJSON), bytes.NewReader(dataJSON), &out); err != nil {
		return false
	}

	var result any
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		return false
	}
	return truthy(result)
}

func truthy(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case float64:
		return value != 0
	case string:
		return value != ""
	default:
		return false
	}
}

// lookupPath resolves a dot-separated path against nested payload maps.
func lookupPath(data map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = data
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// isEmpty reports whether a present value still counts as missing.
func isEmpty(v any) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(value) == ""
	case map[string]any:
		return len(value) == 0
	case []any:
		return len(value) == 0
	default:
		return false
	}
}

// toFloat coerces the numeric shapes JSON decoding and YAML fixtures
// produce. Numeric strings are accepted since upstream systems often
// stringify quantities.
func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
