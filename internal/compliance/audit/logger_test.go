package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaintrace/internal/compliance/models"
	"chaintrace/internal/ledger"
	dErrors "chaintrace/pkg/domain-errors"
)

func TestNew(t *testing.T) {
	t.Run("nil ledger returns error", func(t *testing.T) {
		_, err := New(nil)
		assert.Error(t, err)
	})
}

func TestRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("approved event reaches the ledger keyed by product", func(t *testing.T) {
		mem := ledger.NewMemory()
		logger, err := New(mem)
		require.NoError(t, err)

		event := Event{
			ComplianceID:  "CMP-123",
			Action:        "product_creation",
			ProductID:     "CT-2024-001-ABC123",
			Result:        ResultApproved,
			WalletAddress: "0xabc",
			RoleType:      models.RoleProducer,
			SequenceStep:  1,
			Timestamp:     time.Now().UTC(),
		}

		receipt, err := logger.Record(ctx, event.ProductID, event)
		require.NoError(t, err)
		assert.NotEmpty(t, receipt.TransactionID)
		assert.False(t, receipt.LoggedAt.IsZero())

		entries := mem.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "CT-2024-001-ABC123", entries[0].ProductID)
		assert.Equal(t, "CMP-123", entries[0].CorrelationID)

		var recorded Event
		require.NoError(t, json.Unmarshal(entries[0].Payload, &recorded))
		assert.Equal(t, ResultApproved, recorded.Result)
		assert.Equal(t, 1, recorded.SequenceStep)
		assert.Empty(t, recorded.Violations)
	})

	t.Run("rejected event carries violations", func(t *testing.T) {
		mem := ledger.NewMemory()
		logger, err := New(mem)
		require.NoError(t, err)

		event := Event{
			ComplianceID: "CMP-456",
			Action:       "quality_check",
			ProductID:    "CT-2",
			Result:       ResultRejected,
			RoleType:     models.RoleProcessor,
			Violations:   []string{"SEQUENCE_VIOLATION: Processor action attempted before Producer initialization"},
			Timestamp:    time.Now().UTC(),
		}

		_, err = logger.Record(ctx, event.ProductID, event)
		require.NoError(t, err)

		var recorded Event
		require.NoError(t, json.Unmarshal(mem.Entries()[0].Payload, &recorded))
		assert.Equal(t, ResultRejected, recorded.Result)
		require.Len(t, recorded.Violations, 1)
	})

	t.Run("ledger fault is classified unavailable", func(t *testing.T) {
		mem := ledger.NewMemory()
		mem.Fail(errors.New("broker unreachable"))

		logger, err := New(mem)
		require.NoError(t, err)

		_, err = logger.Record(ctx, "CT-3", Event{ComplianceID: "CMP-789", Result: ResultApproved})
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeUnavailable, dErrors.CodeOf(err))
		assert.Empty(t, mem.Entries())
	})
}

func TestResultFor(t *testing.T) {
	assert.Equal(t, ResultApproved, ResultFor(true))
	assert.Equal(t, ResultRejected, ResultFor(false))
}
