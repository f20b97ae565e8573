package handler

import (
	"time"

	"chaintrace/internal/compliance/models"
	"chaintrace/internal/compliance/sequence"
)

// ValidateResponse is the HTTP response for POST /compliance/validate.
// Rejections return 200; the verdict lives in the body, not the status.
type ValidateResponse struct {
	IsValid      bool      `json:"isValid"`
	Violations   []string  `json:"violations"`
	ComplianceID string    `json:"complianceId"`
	SequenceStep int       `json:"sequenceStep"`
	ValidatedAt  time.Time `json:"validatedAt"`
}

// FromResult converts a validation result to its wire shape.
func FromResult(result *models.ValidationResult) *ValidateResponse {
	return &ValidateResponse{
		IsValid:      result.IsValid,
		Violations:   result.Violations,
		ComplianceID: result.ComplianceID,
		SequenceStep: result.SequenceStep,
		ValidatedAt:  result.ValidatedAt,
	}
}

// RulesResponse is the HTTP response for GET /compliance/rules.
type RulesResponse struct {
	Role   string        `json:"role"`
	Action string        `json:"action"`
	Rules  []models.Rule `json:"rules"`
}

// StateResponse is the HTTP response for GET /compliance/state/{productId}.
type StateResponse struct {
	ProductID string          `json:"productId"`
	Stages    []StageResponse `json:"stages"`
}

// StageResponse is one completed workflow stage.
type StageResponse struct {
	Role             string    `json:"role"`
	SequencePosition int       `json:"sequencePosition"`
	StageID          string    `json:"stageId"`
	Actor            string    `json:"actor"`
	RecordedAt       time.Time `json:"recordedAt"`
}

// FromState converts tracker state to its wire shape.
func FromState(state *sequence.State) *StateResponse {
	resp := &StateResponse{
		ProductID: state.ProductID,
		Stages:    make([]StageResponse, 0, len(state.Stages)),
	}
	for _, stage := range state.Stages {
		resp.Stages = append(resp.Stages, StageResponse{
			Role:             string(stage.Role),
			SequencePosition: stage.SequencePosition,
			StageID:          stage.StageID,
			Actor:            stage.Actor,
			RecordedAt:       stage.RecordedAt,
		})
	}
	return resp
}
