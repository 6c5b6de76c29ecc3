package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/liamcoop/wisepay/internal/logger"
	"github.com/liamcoop/wisepay/payments"
	"github.com/liamcoop/wisepay/registry"
	"github.com/liamcoop/wisepay/requirements"
	"github.com/liamcoop/wisepay/rules"
	"github.com/liamcoop/wisepay/schema"
	"github.com/liamcoop/wisepay/wise"
	"schneider.vip/problem"
)

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]any{"status": "healthy", "database": "memory", "cache": "memory"}
	if s.db != nil {
		status["database"] = "postgres"
		if err := s.db.PingContext(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	if s.redis != nil {
		status["cache"] = "redis"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, logger.Counters())
}

// Requirements handler: the compiled field list of one recipient type
func (s *Server) handleGetRequirements(w http.ResponseWriter, r *http.Request) {
	corridor, err := corridorFromQuery(r)
	if err != nil {
		respondError(w, "invalid corridor", err)
		return
	}

	entry, err := s.registry.Schema(r.Context(), corridor, r.URL.Query().Get("type"))
	if err != nil {
		respondError(w, "failed to load requirements", err)
		return
	}

	respondJSON(w, http.StatusOK, RequirementsResponse{
		Corridor: entry.Corridor,
		Types:    entry.Types,
		Type:     entry.Schema.Type(),
		Title:    entry.Requirements.Title,
		Checksum: entry.Checksum,
		Fields:   fieldResponses(entry.Schema.Fields()),
	})
}

func (s *Server) handleRefreshRequirements(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", badRequest(err))
		return
	}

	doc, err := s.registry.Refresh(r.Context(), req.Corridor)
	if err != nil {
		respondError(w, "failed to refresh requirements", err)
		return
	}
	respondJSON(w, http.StatusOK, RefreshResponse{
		Corridor: req.Corridor.Normalize().Key(),
		Types:    doc.Types(),
		Checksum: doc.Checksum(),
	})
}

// Validation handler: 200 with the normalized record or 400 with every field error
func (s *Server) handleValidateRecipient(w http.ResponseWriter, r *http.Request) {
	entry, res, ok := s.validate(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, ValidateResponse{
		Valid:  true,
		Type:   entry.Schema.Type(),
		Record: schema.Expand(res.Record),
	})
}

// Create recipient handler: validates before anything reaches the provider
func (s *Server) handleCreateRecipient(w http.ResponseWriter, r *http.Request) {
	entry, res, ok := s.validate(w, r)
	if !ok {
		return
	}

	req := wise.NewRecipientRequest(entry.Corridor.Target, entry.Schema.Type(), schema.Expand(res.Record))
	recipient, err := s.recipients.CreateRecipient(r.Context(), req)
	if err != nil {
		respondError(w, "failed to create recipient", err)
		return
	}
	respondJSON(w, http.StatusCreated, recipient)
}

// validate decodes a RecipientRequest and writes the error response when the
// record is rejected.
func (s *Server) validate(w http.ResponseWriter, r *http.Request) (*registry.Entry, schema.Result, bool) {
	var req RecipientRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		respondError(w, "invalid request body", badRequest(err))
		return nil, schema.Result{}, false
	}
	if req.Record == nil {
		respondError(w, "invalid request body", badRequest(errors.New("record is required")))
		return nil, schema.Result{}, false
	}
	rec, err := schema.Flatten(req.Record)
	if err != nil {
		respondError(w, "invalid record", badRequest(err))
		return nil, schema.Result{}, false
	}

	entry, res, err := s.registry.Validate(r.Context(), req.Corridor, req.Type, rec)
	if err != nil {
		respondError(w, "failed to load requirements", err)
		return nil, schema.Result{}, false
	}
	if !res.OK() {
		respondValidation(w, entry.Schema.Type(), res.Errors)
		return nil, schema.Result{}, false
	}
	return entry, res, true
}

func (s *Server) handleExampleRecipient(w http.ResponseWriter, r *http.Request) {
	corridor, err := corridorFromQuery(r)
	if err != nil {
		respondError(w, "invalid corridor", err)
		return
	}
	q := r.URL.Query()
	opts := schema.GenerateOptions{IncludeOptional: q.Get("includeOptional") == "true"}

	entry, rec, gaps, err := s.registry.Example(r.Context(), corridor, q.Get("type"), opts)
	if err != nil {
		respondError(w, "failed to load requirements", err)
		return
	}
	if gaps == nil {
		gaps = []schema.Gap{}
	}
	respondJSON(w, http.StatusOK, ExampleResponse{
		Type:   entry.Schema.Type(),
		Record: schema.Expand(rec),
		Gaps:   gaps,
	})
}

// Payment handlers
func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req payments.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", badRequest(err))
		return
	}

	p, err := s.payments.Create(r.Context(), req)
	if err != nil {
		respondError(w, "failed to create payment", err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.payments.Get(r.Context(), chi.URLParam(r, "paymentId"))
	if err != nil {
		respondError(w, "payment not found", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, "userId is required", badRequest(errors.New("missing userId query parameter")))
		return
	}
	list, err := s.payments.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, "failed to list payments", err)
		return
	}
	if list == nil {
		list = []*payments.Payment{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"payments": list})
}

// Rule handlers
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.rules.Rules()
	if err != nil {
		respondError(w, "failed to list rules", err)
		return
	}
	if list == nil {
		list = []*rules.Rule{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": list})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", badRequest(err))
		return
	}

	now := time.Now().UTC()
	rule := &rules.Rule{
		ID:            uuid.NewString(),
		Name:          req.Name,
		RecipientType: req.RecipientType,
		Key:           req.Key,
		Expression:    req.Expression,
		Message:       req.Message,
		Active:        req.Active == nil || *req.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// AddRule validates and compiles the expression
	if err := s.rules.AddRule(rule); err != nil {
		respondError(w, "failed to add rule", ruleError(err))
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Rule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	existing, err := s.rules.Rule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, "rule not found", err)
		return
	}

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", badRequest(err))
		return
	}

	rule := *existing
	if req.Name != "" {
		rule.Name = req.Name
	}
	if req.Key != "" {
		rule.Key = req.Key
	}
	if req.Expression != "" {
		rule.Expression = req.Expression
	}
	if req.Message != "" {
		rule.Message = req.Message
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	if req.RecipientType != nil {
		rule.RecipientType = *req.RecipientType
	}
	rule.UpdatedAt = time.Now().UTC()

	if err := s.rules.UpdateRule(&rule); err != nil {
		respondError(w, "failed to update rule", ruleError(err))
		return
	}
	respondJSON(w, http.StatusOK, &rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, "rule not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

func corridorFromQuery(r *http.Request) (wise.Corridor, error) {
	q := r.URL.Query()
	c := wise.Corridor{Source: q.Get("source"), Target: q.Get("target")}
	raw := q.Get("amount")
	if raw == "" {
		return c, fmt.Errorf("%w: amount is required", wise.ErrInvalidCorridor)
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return c, fmt.Errorf("%w: amount %q is not a number", wise.ErrInvalidCorridor, raw)
	}
	c.Amount = amount
	return c, nil
}

// errBadRequest marks client mistakes that have no sentinel of their own.
var errBadRequest = errors.New("bad request")

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

// ruleError maps rule validation and compile errors to client errors, the
// not found and conflict sentinels keep their own status.
func ruleError(err error) error {
	if errors.Is(err, rules.ErrRuleNotFound) || errors.Is(err, rules.ErrRuleExists) {
		return err
	}
	return badRequest(err)
}

func statusOf(err error) int {
	var apiErr *wise.APIError
	var malformed *requirements.MalformedDescriptorError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, wise.ErrInvalidCorridor),
		errors.Is(err, registry.ErrInvalidRecipientType),
		errors.Is(err, payments.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, requirements.ErrUnknownRecipientType),
		errors.Is(err, payments.ErrNotFound),
		errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrRuleExists):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr):
		if apiErr.Retryable() {
			return http.StatusBadGateway
		}
		return http.StatusUnprocessableEntity
	case errors.Is(err, requirements.ErrEmptyDescriptor), errors.As(err, &malformed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes err as a problem document. Server side failures are
// logged, client errors only counted.
func respondError(w http.ResponseWriter, title string, err error) {
	status := statusOf(err)
	if status >= 500 {
		logger.Error(title, "status", status, "error", err.Error())
	}
	_, _ = problem.New(problem.Title(title), problem.Status(status), problem.Detail(err.Error())).WriteTo(w)
}

func respondValidation(w http.ResponseWriter, recipientType string, errs []schema.FieldError) {
	_, _ = problem.New(
		problem.Title("invalid recipient details"),
		problem.Status(http.StatusBadRequest),
		problem.Detail(fmt.Sprintf("%d problem(s) with the %s recipient details", len(errs), recipientType)),
		problem.Custom("errors", errs),
	).WriteTo(w)
}
