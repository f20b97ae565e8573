package models

import (
	"fmt"
	"strings"
)

// Violation category prefixes. Every violation string starts with a
// machine-parseable marker so UI layers can route messages by category.
const (
	CategorySequence      = "SEQUENCE_VIOLATION"
	CategoryRulesNotFound = "RULES_NOT_FOUND"
)

// RulesNotFoundViolation reports a (role, action) pair with no configured rules.
func RulesNotFoundViolation(role RoleType, action string) string {
	return fmt.Sprintf("%s: no compliance rules defined for role %s and action %s",
		CategoryRulesNotFound, role, action)
}

// MissingFieldViolation reports an absent or empty required field.
func MissingFieldViolation(path string) string {
	return fmt.Sprintf("Missing required field: %s", path)
}

// DisallowedValueViolation reports a field value outside its enumeration.
func DisallowedValueViolation(path, value string, allowed []string) string {
	return fmt.Sprintf("Invalid value for %s: %q is not one of [%s]",
		path, value, strings.Join(allowed, ", "))
}

// LimitViolation reports a numeric bound breach. The limit's Message, when
// non-empty, is the rule author's wording and wins over the generated text.
func LimitViolation(path string, value float64, limit NumericLimit) string {
	if limit.Message != "" {
		return limit.Message
	}
	if limit.Max != nil && value > *limit.Max {
		return fmt.Sprintf("Value for %s exceeds maximum of %g (got %g)", path, *limit.Max, value)
	}
	return fmt.Sprintf("Value for %s is below minimum of %g (got %g)", path, *limit.Min, value)
}

// ExpressionViolation reports a failed rule expression.
func ExpressionViolation(action string) string {
	return fmt.Sprintf("Rule expression not satisfied for action %s", action)
}

// DuplicateStageViolation reports a repeated position-1 action with no
// intervening position-2 action.
func DuplicateStageViolation(productID string) string {
	return fmt.Sprintf("%s: Multiple Producer actions detected for product %s without Processor intervention",
		CategorySequence, productID)
}

// MissingProducerViolation reports a position-2 or position-3 action arriving
// before the product was initialized by a Producer.
func MissingProducerViolation(role RoleType) string {
	return fmt.Sprintf("%s: %s action attempted before Producer initialization",
		CategorySequence, role)
}

// MissingProcessorViolation reports a Verifier action arriving before a
// Processor completed its stage.
func MissingProcessorViolation(role RoleType) string {
	return fmt.Sprintf("%s: %s action attempted before Processor completion",
		CategorySequence, role)
}

// UnmetDependencyViolation reports an explicit rule dependency on a stage
// identifier that has not been recorded for the product.
func UnmetDependencyViolation(stageID, productID string) string {
	return fmt.Sprintf("%s: required stage %s not completed for product %s",
		CategorySequence, stageID, productID)
}
