package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chaintrace/internal/cache"
	"chaintrace/internal/compliance/audit"
	"chaintrace/internal/compliance/models"
	"chaintrace/internal/compliance/rules"
	"chaintrace/internal/compliance/sequence"
	"chaintrace/internal/ledger"
	dErrors "chaintrace/pkg/domain-errors"
)

// staticSource serves a fixed rule set keyed by role and action.
type staticSource struct {
	byKey map[string][]models.Rule
}

func (s *staticSource) Rules(_ context.Context, role models.RoleType, action string) ([]models.Rule, error) {
	return s.byKey[string(role)+":"+action], nil
}

func workflowRules() *staticSource {
	return &staticSource{byKey: map[string][]models.Rule{
		"Producer:product_creation": {{
			RoleType:         models.RoleProducer,
			Action:           "product_creation",
			SequencePosition: 1,
			StageID:          "producer_initial_creation",
			Conditions: models.Conditions{
				RequiredFields: []string{"productType", "quantity"},
				AllowedValues: map[string][]string{
					"productType": {"organic_cocoa", "conventional_cocoa"},
				},
				NumericLimits: map[string]models.NumericLimit{
					"quantity": {
						Min:     floatPtr(1),
						Max:     floatPtr(1000),
						Message: "Daily production limit exceeded: quantity must not exceed 1000kg per day",
					},
				},
			},
		}},
		"Processor:quality_check": {{
			RoleType:         models.RoleProcessor,
			Action:           "quality_check",
			SequencePosition: 2,
			StageID:          "processor_verification",
			Dependencies:     []string{"producer_initial_creation"},
			Conditions: models.Conditions{
				RequiredFields: []string{"batchId", "qualityGrade"},
				AllowedValues:  map[string][]string{"qualityGrade": {"A", "B", "C"}},
			},
		}},
		"Verifier:final_verification": {{
			RoleType:         models.RoleVerifier,
			Action:           "final_verification",
			SequencePosition: 3,
			StageID:          "verifier_final_approval",
			Dependencies:     []string{"producer_initial_creation", "processor_verification"},
			Conditions: models.Conditions{
				RequiredFields: []string{"inspectionReport"},
			},
		}},
	}}
}

type ServiceSuite struct {
	suite.Suite
	service *Service
	ledger  *ledger.Memory
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(testWriter{s.T()}, nil))
	store := cache.NewMemory()

	repo, err := rules.New(workflowRules(), store, time.Hour, rules.WithLogger(logger))
	s.Require().NoError(err)

	tracker, err := sequence.New(store, 24*time.Hour, sequence.WithLogger(logger))
	s.Require().NoError(err)

	s.ledger = ledger.NewMemory()
	auditLogger, err := audit.New(s.ledger, audit.WithLogger(logger))
	s.Require().NoError(err)

	s.service, err = New(repo, tracker, auditLogger, WithLogger(logger))
	s.Require().NoError(err)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

// producerRequest is the canonical compliant first action of a workflow.
func producerRequest(productID string, quantity float64) models.ActionRequest {
	return models.ActionRequest{
		Action:    "product_creation",
		ProductID: productID,
		Actor:     models.Actor{WalletAddress: "0.0.12345", Role: models.RoleProducer},
		Data: map[string]any{
			"productType": "organic_cocoa",
			"quantity":    quantity,
		},
	}
}

func (s *ServiceSuite) TestCompliantProducerAction() {
	result, err := s.service.ValidateAction(context.Background(), producerRequest("CT-2024-001-ABC123", 100))
	s.Require().NoError(err)

	s.True(result.IsValid)
	s.Empty(result.Violations)
	s.Equal(1, result.SequenceStep)
	s.True(strings.HasPrefix(result.ComplianceID, "CMP-"))
	s.False(result.ValidatedAt.IsZero())
}

func (s *ServiceSuite) TestQuantityOverLimit() {
	result, err := s.service.ValidateAction(context.Background(), producerRequest("CT-2024-002", 1500))
	s.Require().NoError(err)

	s.False(result.IsValid)
	s.Require().Len(result.Violations, 1)
	s.Contains(result.Violations[0], "Daily production limit exceeded")
	s.Equal(0, result.SequenceStep, "field rejection happens before sequence evaluation")
	s.True(strings.HasPrefix(result.ComplianceID, "CMP-"))
}

func (s *ServiceSuite) TestUnknownRoleYieldsRulesNotFound() {
	req := producerRequest("CT-2024-003", 100)
	req.Actor.Role = "Auditor"

	result, err := s.service.ValidateAction(context.Background(), req)
	s.Require().NoError(err)

	s.False(result.IsValid)
	s.Require().Len(result.Violations, 1)
	s.Contains(result.Violations[0], models.CategoryRulesNotFound)
	s.Equal(0, result.SequenceStep)
	s.True(strings.HasPrefix(result.ComplianceID, "CMP-"))
}

func (s *ServiceSuite) TestUnconfiguredActionYieldsRulesNotFound() {
	req := producerRequest("CT-2024-004", 100)
	req.Action = "product_destruction"

	result, err := s.service.ValidateAction(context.Background(), req)
	s.Require().NoError(err)
	s.False(result.IsValid)
	s.Contains(result.Violations[0], models.CategoryRulesNotFound)
}

func (s *ServiceSuite) TestDuplicateProducerActionRejected() {
	ctx := context.Background()
	const productID = "CT-2024-005"

	first, err := s.service.ValidateAction(ctx, producerRequest(productID, 100))
	s.Require().NoError(err)
	s.Require().True(first.IsValid)

	second, err := s.service.ValidateAction(ctx, producerRequest(productID, 200))
	s.Require().NoError(err)

	s.False(second.IsValid)
	s.Require().Len(second.Violations, 1)
	s.Equal(fmt.Sprintf(
		"SEQUENCE_VIOLATION: Multiple Producer actions detected for product %s without Processor intervention",
		productID), second.Violations[0])
	s.Equal(1, second.SequenceStep)
}

func (s *ServiceSuite) TestProcessorBeforeProducerRejected() {
	req := models.ActionRequest{
		Action:    "quality_check",
		ProductID: "CT-2024-006",
		Actor:     models.Actor{WalletAddress: "0.0.22222", Role: models.RoleProcessor},
		Data:      map[string]any{"batchId": "B-1", "qualityGrade": "A"},
	}

	result, err := s.service.ValidateAction(context.Background(), req)
	s.Require().NoError(err)

	s.False(result.IsValid)
	s.Require().Len(result.Violations, 1)
	s.Equal("SEQUENCE_VIOLATION: Processor action attempted before Producer initialization",
		result.Violations[0])
	s.Equal(2, result.SequenceStep)
}

func (s *ServiceSuite) TestFullWorkflowInOrder() {
	ctx := context.Background()
	const productID = "CT-2024-007"

	steps := []struct {
		req  models.ActionRequest
		step int
	}{
		{producerRequest(productID, 400), 1},
		{models.ActionRequest{
			Action:    "quality_check",
			ProductID: productID,
			Actor:     models.Actor{WalletAddress: "0.0.22222", Role: models.RoleProcessor},
			Data:      map[string]any{"batchId": "B-9", "qualityGrade": "B"},
		}, 2},
		{models.ActionRequest{
			Action:    "final_verification",
			ProductID: productID,
			Actor:     models.Actor{WalletAddress: "0.0.33333", Role: models.RoleVerifier},
			Data:      map[string]any{"inspectionReport": "all clear"},
		}, 3},
	}

	for _, step := range steps {
		result, err := s.service.ValidateAction(ctx, step.req)
		s.Require().NoError(err)
		s.Require().True(result.IsValid, "violations: %v", result.Violations)
		s.Equal(step.step, result.SequenceStep)
	}

	state, err := s.service.SequenceState(ctx, productID)
	s.Require().NoError(err)
	s.Len(state.Stages, 3)
}

func (s *ServiceSuite) TestVerifierBeforeProcessorRejected() {
	ctx := context.Background()
	const productID = "CT-2024-008"

	_, err := s.service.ValidateAction(ctx, producerRequest(productID, 100))
	s.Require().NoError(err)

	result, err := s.service.ValidateAction(ctx, models.ActionRequest{
		Action:    "final_verification",
		ProductID: productID,
		Actor:     models.Actor{WalletAddress: "0.0.33333", Role: models.RoleVerifier},
		Data:      map[string]any{"inspectionReport": "premature"},
	})
	s.Require().NoError(err)

	s.False(result.IsValid)
	s.Equal("SEQUENCE_VIOLATION: Verifier action attempted before Processor completion",
		result.Violations[0])
}

func (s *ServiceSuite) TestRejectedActionDoesNotAdvanceSequence() {
	ctx := context.Background()
	const productID = "CT-2024-009"

	rejected, err := s.service.ValidateAction(ctx, producerRequest(productID, 1500))
	s.Require().NoError(err)
	s.Require().False(rejected.IsValid)

	// The over-limit attempt must not have recorded a stage.
	retry, err := s.service.ValidateAction(ctx, producerRequest(productID, 100))
	s.Require().NoError(err)
	s.True(retry.IsValid, "violations: %v", retry.Violations)
}

func (s *ServiceSuite) TestEveryAttemptProducesOneAuditRecord() {
	ctx := context.Background()

	approved, err := s.service.ValidateAction(ctx, producerRequest("CT-2024-010", 100))
	s.Require().NoError(err)
	rejected, err := s.service.ValidateAction(ctx, producerRequest("CT-2024-011", 1500))
	s.Require().NoError(err)

	entries := s.ledger.Entries()
	s.Require().Len(entries, 2)

	var first, second audit.Event
	s.Require().NoError(json.Unmarshal(entries[0].Payload, &first))
	s.Require().NoError(json.Unmarshal(entries[1].Payload, &second))

	s.Equal(audit.ResultApproved, first.Result)
	s.Equal(approved.ComplianceID, first.ComplianceID)
	s.Empty(first.Violations)

	s.Equal(audit.ResultRejected, second.Result)
	s.Equal(rejected.ComplianceID, second.ComplianceID)
	s.Equal(rejected.Violations, second.Violations)
	s.Equal("CT-2024-011", second.ProductID)
}

func (s *ServiceSuite) TestLedgerFaultIsAnErrorNotARejection() {
	s.ledger.Fail(errors.New("broker unreachable"))

	result, err := s.service.ValidateAction(context.Background(), producerRequest("CT-2024-012", 100))
	s.Require().Error(err)
	s.Nil(result)
	s.Equal(dErrors.CodeUnavailable, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestRequestValidation() {
	cases := []struct {
		name    string
		mutate  func(*models.ActionRequest)
		message string
	}{
		{"missing action", func(r *models.ActionRequest) { r.Action = "" }, "action is required"},
		{"missing product", func(r *models.ActionRequest) { r.ProductID = " " }, "productId is required"},
		{"missing wallet", func(r *models.ActionRequest) { r.Actor.WalletAddress = "" }, "actor.walletAddress is required"},
		{"missing role", func(r *models.ActionRequest) { r.Actor.Role = "" }, "actor.role is required"},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			req := producerRequest("CT-2024-013", 100)
			tc.mutate(&req)

			_, err := s.service.ValidateAction(context.Background(), req)
			s.Require().Error(err)
			s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))
			s.Contains(err.Error(), tc.message)
		})
	}

	s.Empty(s.ledger.Entries(), "invalid requests must not reach the ledger")
}

func (s *ServiceSuite) TestConcurrentProducerActionsExactlyOneWins() {
	ctx := context.Background()
	const productID = "CT-2024-014"
	const attempts = 16

	var wg sync.WaitGroup
	results := make([]*models.ValidationResult, attempts)
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.service.ValidateAction(ctx, producerRequest(productID, 100))
		}(i)
	}
	wg.Wait()

	approved := 0
	for i := 0; i < attempts; i++ {
		if !s.NoError(errs[i]) {
			continue
		}
		if results[i].IsValid {
			approved++
		} else {
			s.Contains(results[i].Violations[0], models.CategorySequence)
		}
	}
	s.Equal(1, approved)
	s.Len(s.ledger.Entries(), attempts)
}

// testWriter routes slog output through the test log.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
