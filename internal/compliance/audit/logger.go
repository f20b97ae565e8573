package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"chaintrace/internal/ledger"
	dErrors "chaintrace/pkg/domain-errors"
)

// Logger records compliance decisions on the external ledger. It does not
// re-validate what the ledger returns; the transaction ID is forwarded
// upward for observability only.
type Logger struct {
	ledger ledger.Client
	logger *slog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) {
		l.logger = logger
	}
}

// New constructs the audit logger on top of a ledger client.
func New(client ledger.Client, opts ...Option) (*Logger, error) {
	if client == nil {
		return nil, fmt.Errorf("ledger client is required")
	}

	l := &Logger{
		ledger: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Record serializes the event and submits it synchronously. A ledger fault
// is an infrastructure error (unavailable), never a compliance rejection:
// callers must be able to tell "your action was non-compliant" apart from
// "we could not record the decision".
func (l *Logger) Record(ctx context.Context, productID string, event Event) (*Receipt, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode audit event")
	}

	submission, err := l.ledger.SubmitComplianceCheck(ctx, productID, payload, event.ComplianceID)
	if err != nil {
		l.logger.ErrorContext(ctx, "ledger submission failed",
			"product_id", productID,
			"compliance_id", event.ComplianceID,
			"result", event.Result,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "audit record not persisted")
	}

	l.logger.InfoContext(ctx, "compliance decision recorded",
		"product_id", productID,
		"compliance_id", event.ComplianceID,
		"result", event.Result,
		"sequence_step", event.SequenceStep,
		"transaction_id", submission.TransactionID,
	)

	return &Receipt{
		TransactionID: submission.TransactionID,
		TopicID:       submission.TopicID,
		LoggedAt:      submission.SubmittedAt,
	}, nil
}
