// Package audit serializes validation outcomes and submits them to the
// compliance ledger. Every validation attempt, approved or rejected,
// produces exactly one ledger event.
package audit

import (
	"time"

	"chaintrace/internal/compliance/models"
)

// Result is the recorded decision for one validation attempt.
type Result string

const (
	ResultApproved Result = "APPROVED"
	ResultRejected Result = "REJECTED"
)

// ResultFor maps a validation outcome to its ledger representation.
func ResultFor(isValid bool) Result {
	if isValid {
		return ResultApproved
	}
	return ResultRejected
}

// Event is the ledger payload for one compliance decision. Violations are
// attached only on rejection.
type Event struct {
	ComplianceID  string          `json:"complianceId"`
	Action        string          `json:"action"`
	ProductID     string          `json:"productId"`
	Result        Result          `json:"result"`
	WalletAddress string          `json:"walletAddress"`
	RoleType      models.RoleType `json:"roleType"`
	SequenceStep  int             `json:"sequenceStep"`
	Violations    []string        `json:"violations,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Receipt correlates a recorded event with its ledger transaction.
type Receipt struct {
	TransactionID string    `json:"transactionId"`
	TopicID       string    `json:"topicId"`
	LoggedAt      time.Time `json:"loggedAt"`
}
