// Package service implements the action validator: the orchestrator that
// loads rules, enforces workflow ordering, evaluates field conditions and
// records every decision on the ledger before answering.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chaintrace/internal/compliance/audit"
	"chaintrace/internal/compliance/metrics"
	"chaintrace/internal/compliance/models"
	"chaintrace/internal/compliance/rules"
	"chaintrace/internal/compliance/sequence"
	dErrors "chaintrace/pkg/domain-errors"
)

// Service validates supply chain actions against the configured compliance
// rules. A rejection is a result, not an error; errors mean the engine could
// not reach a decision (cache, source or ledger fault).
type Service struct {
	rules   *rules.Repository
	tracker *sequence.Tracker
	audit   *audit.Logger
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics attaches validation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs the validator service.
func New(repo *rules.Repository, tracker *sequence.Tracker, auditLogger *audit.Logger, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("rule repository is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("sequence tracker is required")
	}
	if auditLogger == nil {
		return nil, fmt.Errorf("audit logger is required")
	}

	s := &Service{
		rules:   repo,
		tracker: tracker,
		audit:   auditLogger,
		logger:  slog.Default(),
		tracer:  otel.Tracer("chaintrace/compliance"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ValidateAction runs the full compliance pipeline for one submitted action.
// Every attempt, approved or rejected, receives a compliance ID and is
// recorded on the ledger before the result is returned.
func (s *Service) ValidateAction(ctx context.Context, req models.ActionRequest) (*models.ValidationResult, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "compliance.ValidateAction",
		trace.WithAttributes(
			attribute.String("compliance.action", req.Action),
			attribute.String("compliance.product_id", req.ProductID),
			attribute.String("compliance.role", string(req.Actor.Role)),
		))
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	complianceID := newComplianceID()
	span.SetAttributes(attribute.String("compliance.id", complianceID))

	applicable, err := s.rules.LoadRules(ctx, req.Actor.Role, req.Action)
	if err != nil {
		return nil, err
	}

	if len(applicable) == 0 {
		violation := models.RulesNotFoundViolation(req.Actor.Role, req.Action)
		return s.conclude(ctx, req, complianceID, 0, []string{violation}, start)
	}

	// Rules for one (role, action) pair share a sequence identity; the
	// first rule carries it and the rest only add conditions.
	primary := applicable[0]

	// Field and value checks run before the ordering check, so a payload
	// rejection never holds the product reservation. An action rejected
	// here failed before sequence evaluation and reports step 0.
	var violations []string
	for _, rule := range applicable {
		violations = append(violations, evaluateConditions(rule, req.Data)...)
	}
	if len(violations) > 0 {
		return s.conclude(ctx, req, complianceID, 0, violations, start)
	}

	reservation, err := s.tracker.CheckAndReserve(ctx, req.ProductID, req.Actor.Role, primary.SequencePosition, primary.Dependencies)
	if err != nil {
		return nil, err
	}
	defer reservation.Release()

	if violation := reservation.Violation(); violation != "" {
		return s.conclude(ctx, req, complianceID, primary.SequencePosition, []string{violation}, start)
	}

	lost, err := reservation.Commit(ctx, primary.StageID, req.Actor.WalletAddress, s.now())
	if err != nil {
		return nil, err
	}
	if lost != "" {
		return s.conclude(ctx, req, complianceID, primary.SequencePosition, []string{lost}, start)
	}

	return s.conclude(ctx, req, complianceID, primary.SequencePosition, nil, start)
}

// conclude records the decision on the ledger, emits metrics and builds the
// result. Audit failure surfaces as an error so callers never see a decision
// that was not persisted.
func (s *Service) conclude(ctx context.Context, req models.ActionRequest, complianceID string, step int, violations []string, start time.Time) (*models.ValidationResult, error) {
	isValid := len(violations) == 0
	validatedAt := s.now().UTC()

	receipt, err := s.audit.Record(ctx, req.ProductID, audit.Event{
		ComplianceID:  complianceID,
		Action:        req.Action,
		ProductID:     req.ProductID,
		Result:        audit.ResultFor(isValid),
		WalletAddress: req.Actor.WalletAddress,
		RoleType:      req.Actor.Role,
		SequenceStep:  step,
		Violations:    violations,
		Timestamp:     validatedAt,
	})
	if err != nil {
		return nil, err
	}

	result := "approved"
	if !isValid {
		result = "rejected"
		for _, v := range violations {
			s.metrics.IncrementViolation(categoryOf(v))
		}
	}
	s.metrics.IncrementOutcome(string(req.Actor.Role), result)
	s.metrics.ObserveValidateLatency(s.now().Sub(start))

	s.logger.InfoContext(ctx, "action validated",
		"compliance_id", complianceID,
		"product_id", req.ProductID,
		"action", req.Action,
		"role", req.Actor.Role,
		"result", result,
		"sequence_step", step,
		"violations", len(violations),
		"transaction_id", receipt.TransactionID,
	)

	if violations == nil {
		violations = []string{}
	}
	return &models.ValidationResult{
		IsValid:      isValid,
		Violations:   violations,
		ComplianceID: complianceID,
		SequenceStep: step,
		ValidatedAt:  validatedAt,
	}, nil
}

// LoadRules exposes the configured rules for a (role, action) pair.
func (s *Service) LoadRules(ctx context.Context, role models.RoleType, action string) ([]models.Rule, error) {
	return s.rules.LoadRules(ctx, role, action)
}

// SequenceState returns the recorded workflow stages for a product.
func (s *Service) SequenceState(ctx context.Context, productID string) (*sequence.State, error) {
	return s.tracker.State(ctx, productID)
}

// InvalidateRules drops the cached rule list for a (role, action) pair.
func (s *Service) InvalidateRules(ctx context.Context, role models.RoleType, action string) error {
	return s.rules.Invalidate(ctx, role, action)
}

func validateRequest(req models.ActionRequest) error {
	switch {
	case strings.TrimSpace(req.Action) == "":
		return dErrors.New(dErrors.CodeBadRequest, "action is required")
	case strings.TrimSpace(req.ProductID) == "":
		return dErrors.New(dErrors.CodeBadRequest, "productId is required")
	case strings.TrimSpace(req.Actor.WalletAddress) == "":
		return dErrors.New(dErrors.CodeBadRequest, "actor.walletAddress is required")
	case req.Actor.Role == "":
		return dErrors.New(dErrors.CodeBadRequest, "actor.role is required")
	}
	return nil
}

func newComplianceID() string {
	return "CMP-" + uuid.NewString()
}

// categoryOf extracts the machine-parseable marker from a violation string.
func categoryOf(violation string) string {
	if marker, _, ok := strings.Cut(violation, ":"); ok {
		switch marker {
		case models.CategorySequence, models.CategoryRulesNotFound:
			return marker
		}
	}
	return "CONDITION_VIOLATION"
}
