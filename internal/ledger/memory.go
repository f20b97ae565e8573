package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Entry is one event held by the in-memory ledger.
type Entry struct {
	ProductID     string
	Payload       []byte
	CorrelationID string
	SubmittedAt   time.Time
}

// Memory is an in-memory ledger for dev mode and tests. Append-only;
// entries are retained for the life of the process.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{}
}

// Fail makes every subsequent submission return err. Tests use it to
// exercise the infrastructure failure path; a nil err restores normal
// operation.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Memory) SubmitComplianceCheck(_ context.Context, productID string, payload []byte, correlationID string) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	now := time.Now().UTC()
	m.entries = append(m.entries, Entry{
		ProductID:     productID,
		Payload:       append([]byte(nil), payload...),
		CorrelationID: correlationID,
		SubmittedAt:   now,
	})

	return &Submission{
		TransactionID: fmt.Sprintf("mem-%d", len(m.entries)),
		TopicID:       "memory",
		SubmittedAt:   now,
		MessageSize:   len(payload),
	}, nil
}

// Entries returns a snapshot of everything submitted so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
