// Package ledger abstracts the append-only event log that durably records
// every compliance decision. The production client publishes to Kafka; an
// in-memory client serves dev mode and tests. Delivery is at-least-once;
// the engine never reads the ledger back.
package ledger

import (
	"context"
	"time"
)

// Submission is the ledger's acknowledgement of one recorded event.
type Submission struct {
	TransactionID string    `json:"transactionId"`
	TopicID       string    `json:"topicId"`
	SubmittedAt   time.Time `json:"submittedAt"`
	MessageSize   int       `json:"messageSize"`
}

// Client submits compliance check events to the ledger. payload is the
// serialized event; correlationID joins the ledger entry with the
// ValidationResult that produced it.
type Client interface {
	SubmitComplianceCheck(ctx context.Context, productID string, payload []byte, correlationID string) (*Submission, error)
}
