package handler

import (
	"strings"

	"chaintrace/internal/compliance/models"
	dErrors "chaintrace/pkg/domain-errors"
)

// ValidateRequest is the HTTP request body for POST /compliance/validate.
type ValidateRequest struct {
	Action    string         `json:"action"`
	ProductID string         `json:"productId"`
	Actor     ActorRequest   `json:"actor"`
	Data      map[string]any `json:"data"`
}

// ActorRequest identifies the submitting participant.
type ActorRequest struct {
	WalletAddress string `json:"walletAddress"`
	Role          string `json:"role"`
}

// Validate checks required fields and normalizes whitespace.
func (r *ValidateRequest) Validate() error {
	r.Action = strings.TrimSpace(r.Action)
	r.ProductID = strings.TrimSpace(r.ProductID)
	r.Actor.WalletAddress = strings.TrimSpace(r.Actor.WalletAddress)
	r.Actor.Role = strings.TrimSpace(r.Actor.Role)

	switch {
	case r.Action == "":
		return dErrors.New(dErrors.CodeBadRequest, "action is required")
	case r.ProductID == "":
		return dErrors.New(dErrors.CodeBadRequest, "productId is required")
	case r.Actor.WalletAddress == "":
		return dErrors.New(dErrors.CodeBadRequest, "actor.walletAddress is required")
	case r.Actor.Role == "":
		return dErrors.New(dErrors.CodeBadRequest, "actor.role is required")
	}
	return nil
}

// Domain converts the wire request into the validator's input. The role is
// passed through even when unknown; unknown roles resolve to a
// RULES_NOT_FOUND rejection, not a transport error.
func (r *ValidateRequest) Domain() models.ActionRequest {
	return models.ActionRequest{
		Action:    r.Action,
		ProductID: r.ProductID,
		Actor: models.Actor{
			WalletAddress: r.Actor.WalletAddress,
			Role:          models.RoleType(r.Actor.Role),
		},
		Data: r.Data,
	}
}

// ruleQuery holds the parsed query parameters shared by the rule lookup and
// cache invalidation endpoints.
type ruleQuery struct {
	Role   models.RoleType
	Action string
}

func parseRuleQuery(role, action string) (ruleQuery, error) {
	role = strings.TrimSpace(role)
	action = strings.TrimSpace(action)

	switch {
	case role == "":
		return ruleQuery{}, dErrors.New(dErrors.CodeBadRequest, "role query parameter is required")
	case action == "":
		return ruleQuery{}, dErrors.New(dErrors.CodeBadRequest, "action query parameter is required")
	}
	return ruleQuery{Role: models.RoleType(role), Action: action}, nil
}
