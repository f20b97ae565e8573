package sequence

import (
	"time"

	"chaintrace/internal/compliance/models"
)

// Stage is one completed workflow step for a product.
type Stage struct {
	Role             models.RoleType `json:"role"`
	SequencePosition int             `json:"sequencePosition"`
	StageID          string          `json:"stageId"`
	Actor            string          `json:"actor"`
	RecordedAt       time.Time       `json:"recordedAt"`
}

// State is the per-product record of completed stages, appended in the
// order they were committed. Created lazily on the first action for a
// product; expiry is cache-driven, the engine never deletes it.
type State struct {
	ProductID string  `json:"productId"`
	Stages    []Stage `json:"stages"`
}

// hasPosition reports whether any completed stage holds the given position.
func (s *State) hasPosition(position int) bool {
	for _, stage := range s.Stages {
		if stage.SequencePosition == position {
			return true
		}
	}
	return false
}

// hasStage reports whether the given stage identifier has been recorded.
func (s *State) hasStage(stageID string) bool {
	for _, stage := range s.Stages {
		if stage.StageID == stageID {
			return true
		}
	}
	return false
}

// latest returns the most recently committed stage, or nil for a fresh product.
func (s *State) latest() *Stage {
	if len(s.Stages) == 0 {
		return nil
	}
	return &s.Stages[len(s.Stages)-1]
}

// checkOrder applies the ordering rules for one attempted action against the
// completed stages. It returns the violation message, or "" when the action
// is in order. Pure; no I/O.
//
// Positions encode the Producer(1) -> Processor(2) -> Verifier(3) chain:
// a repeated position-1 action needs an intervening position-2 stage,
// position 2 needs a prior position 1, and position 3 needs both. Explicit
// rule dependencies generalize the chain to named stage identifiers.
func checkOrder(state *State, role models.RoleType, position int, dependencies []string) string {
	switch position {
	case 1:
		if last := state.latest(); last != nil && last.SequencePosition == 1 {
			return models.DuplicateStageViolation(state.ProductID)
		}
	case 2:
		if !state.hasPosition(1) {
			return models.MissingProducerViolation(role)
		}
	case 3:
		if !state.hasPosition(1) {
			return models.MissingProducerViolation(role)
		}
		if !state.hasPosition(2) {
			return models.MissingProcessorViolation(role)
		}
	}

	for _, dep := range dependencies {
		if !state.hasStage(dep) {
			return models.UnmetDependencyViolation(dep, state.ProductID)
		}
	}
	return ""
}
