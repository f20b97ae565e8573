// Package models defines the shared domain types for the compliance module.
// Subpackages (rules, sequence, audit, service, handler) depend on this
// package and never on each other's internals.
package models

import "time"

// RoleType identifies a workflow participant. The set is closed; anything
// else is an unknown role and resolves to zero applicable rules.
type RoleType string

const (
	RoleProducer  RoleType = "Producer"
	RoleProcessor RoleType = "Processor"
	RoleVerifier  RoleType = "Verifier"
)

// SequencePosition returns the rank this role occupies in the
// Producer -> Processor -> Verifier chain, or 0 for unknown roles.
func (r RoleType) SequencePosition() int {
	switch r {
	case RoleProducer:
		return 1
	case RoleProcessor:
		return 2
	case RoleVerifier:
		return 3
	default:
		return 0
	}
}

// IsValid reports whether the role belongs to the closed set.
func (r RoleType) IsValid() bool {
	return r.SequencePosition() != 0
}

// Rule is an immutable compliance rule for one (role, action) pair.
// Rules are versioned configuration: loaded from the rule source, cached
// with a TTL, never mutated at runtime.
type Rule struct {
	RoleType         RoleType   `json:"roleType" yaml:"role"`
	Action           string     `json:"action" yaml:"action"`
	SequencePosition int        `json:"sequencePosition" yaml:"sequence_position"`
	StageID          string     `json:"stageId" yaml:"stage_id"`
	Dependencies     []string   `json:"dependencies,omitempty" yaml:"dependencies"`
	Conditions       Conditions `json:"conditions" yaml:"conditions"`
}

// Conditions holds the structural constraints a request payload must satisfy.
// Expression is an optional jsonlogic document evaluated against the payload
// for constraints the structured fields cannot express.
type Conditions struct {
	RequiredFields []string                `json:"requiredFields,omitempty" yaml:"required_fields"`
	AllowedValues  map[string][]string     `json:"allowedValues,omitempty" yaml:"allowed_values"`
	NumericLimits  map[string]NumericLimit `json:"numericLimits,omitempty" yaml:"numeric_limits"`
	Expression     map[string]any          `json:"expression,omitempty" yaml:"expression"`
}

// NumericLimit bounds a numeric payload field. Message, when set, replaces
// the generated violation text (rule authors word limits in business terms,
// e.g. "Daily production limit exceeded").
type NumericLimit struct {
	Min     *float64 `json:"min,omitempty" yaml:"min"`
	Max     *float64 `json:"max,omitempty" yaml:"max"`
	Message string   `json:"message,omitempty" yaml:"message"`
}

// Actor is the claimed identity submitting an action. Authenticity is
// enforced upstream by the wallet-signing flow; this engine trusts the claim.
type Actor struct {
	WalletAddress string   `json:"walletAddress"`
	Role          RoleType `json:"role"`
}

// ActionRequest is one action submitted for validation. Transient; it is
// not persisted beyond the audit record it produces.
type ActionRequest struct {
	Action    string         `json:"action"`
	ProductID string         `json:"productId"`
	Actor     Actor          `json:"actor"`
	Data      map[string]any `json:"data"`
}

// ValidationResult is the outcome of one validation attempt. A rejected
// action is a result, not an error; only infrastructure faults surface as
// errors from the validator.
type ValidationResult struct {
	IsValid      bool      `json:"isValid"`
	Violations   []string  `json:"violations"`
	ComplianceID string    `json:"complianceId"`
	SequenceStep int       `json:"sequenceStep"`
	ValidatedAt  time.Time `json:"validatedAt"`
}
