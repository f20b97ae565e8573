// Package handler wires the compliance endpoints to the validator service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chaintrace/internal/compliance/models"
	"chaintrace/internal/compliance/sequence"
	dErrors "chaintrace/pkg/domain-errors"
	"chaintrace/pkg/platform/httputil"
	"chaintrace/pkg/requestcontext"
)

// Service defines the validator operations the transport layer relies on.
type Service interface {
	ValidateAction(ctx context.Context, req models.ActionRequest) (*models.ValidationResult, error)
	LoadRules(ctx context.Context, role models.RoleType, action string) ([]models.Rule, error)
	SequenceState(ctx context.Context, productID string) (*sequence.State, error)
	InvalidateRules(ctx context.Context, role models.RoleType, action string) error
}

// Handler exposes the compliance API over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a compliance handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts compliance endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/compliance/validate", h.HandleValidate)
	r.Get("/compliance/rules", h.HandleRules)
	r.Get("/compliance/state/{productId}", h.HandleState)
	r.Delete("/compliance/rules/cache", h.HandleInvalidate)
}

// HandleValidate handles POST /compliance/validate requests.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.Decode[ValidateRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.ValidateAction(ctx, req.Domain())
	if err != nil {
		h.logger.ErrorContext(ctx, "action validation failed",
			"request_id", requestID,
			"product_id", req.ProductID,
			"action", req.Action,
			"role", req.Actor.Role,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "action validation completed",
		"request_id", requestID,
		"product_id", req.ProductID,
		"compliance_id", result.ComplianceID,
		"is_valid", result.IsValid,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}

// HandleRules handles GET /compliance/rules?role=&action= requests.
func (h *Handler) HandleRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, err := parseRuleQuery(r.URL.Query().Get("role"), r.URL.Query().Get("action"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rules, err := h.service.LoadRules(ctx, query.Role, query.Action)
	if err != nil {
		h.logger.ErrorContext(ctx, "rule lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"role", query.Role,
			"action", query.Action,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, RulesResponse{
		Role:   string(query.Role),
		Action: query.Action,
		Rules:  rules,
	})
}

// HandleState handles GET /compliance/state/{productId} requests.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "productId is required"))
		return
	}

	state, err := h.service.SequenceState(ctx, productID)
	if err != nil {
		h.logger.ErrorContext(ctx, "sequence state lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"product_id", productID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromState(state))
}

// HandleInvalidate handles DELETE /compliance/rules/cache?role=&action= requests.
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, err := parseRuleQuery(r.URL.Query().Get("role"), r.URL.Query().Get("action"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.InvalidateRules(ctx, query.Role, query.Action); err != nil {
		h.logger.ErrorContext(ctx, "rule cache invalidation failed",
			"request_id", requestcontext.RequestID(ctx),
			"role", query.Role,
			"action", query.Action,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "rule cache invalidated",
		"request_id", requestcontext.RequestID(ctx),
		"role", query.Role,
		"action", query.Action,
	)
	w.WriteHeader(http.StatusNoContent)
}
