package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/traceprint/api/internal/app"
	"github.com/traceprint/api/pkg/domain/budget"
	"github.com/traceprint/api/pkg/domain/provider"
	pkgvalidator "github.com/traceprint/api/pkg/validator"
)

// BudgetHandler handles budget policy administration.
type BudgetHandler struct {
	budgets  *app.BudgetService
	validate *pkgvalidator.Validator
}

// NewBudgetHandler creates a budget handler.
func NewBudgetHandler(budgets *app.BudgetService, validate *pkgvalidator.Validator) *BudgetHandler {
	return &BudgetHandler{budgets: budgets, validate: validate}
}

type setPolicyRequest struct {
	DailyQuota            int   `json:"daily_quota" validate:"min=0"`
	MonthlyBudgetPence    int64 `json:"monthly_budget_pence" validate:"min=0"`
	WarnThresholdPct      int   `json:"warn_threshold_pct" validate:"min=0,max=100"`
	CriticalThresholdPct  int   `json:"critical_threshold_pct" validate:"min=0,max=100"`
	BlockOnQuotaExceeded  bool  `json:"block_on_quota_exceeded"`
	BlockOnBudgetExceeded bool  `json:"block_on_budget_exceeded"`
}

// SetPolicy handles PUT /budgets/{provider}.
func (h *BudgetHandler) SetPolicy(w http.ResponseWriter, r *http.Request) {
	wsID, err := workspaceID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req setPolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.budgets.SetPolicy(r.Context(), app.SetPolicyInput{
		WorkspaceID:           wsID,
		ProviderID:            provider.ID(chi.URLParam(r, "provider")),
		DailyQuota:            req.DailyQuota,
		MonthlyBudgetPence:    req.MonthlyBudgetPence,
		WarnThresholdPct:      req.WarnThresholdPct,
		CriticalThresholdPct:  req.CriticalThresholdPct,
		BlockOnQuotaExceeded:  req.BlockOnQuotaExceeded,
		BlockOnBudgetExceeded: req.BlockOnBudgetExceeded,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// GetPolicy handles GET /budgets/{provider}.
func (h *BudgetHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	wsID, err := workspaceID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.budgets.GetPolicy(r.Context(), wsID, provider.ID(chi.URLParam(r, "provider")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ListPolicies handles GET /budgets.
func (h *BudgetHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	wsID, err := workspaceID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	policies, err := h.budgets.ListPolicies(r.Context(), wsID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ListResponse[*budget.Policy]{
		Data:    policies,
		Total:   len(policies),
		Page:    1,
		PerPage: len(policies),
	})
}

type usageResponse struct {
	Provider provider.ID  `json:"provider"`
	Usage    budget.Usage `json:"usage"`
}

// Usage handles GET /budgets/{provider}/usage.
func (h *BudgetHandler) Usage(w http.ResponseWriter, r *http.Request) {
	wsID, err := workspaceID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	providerID := provider.ID(chi.URLParam(r, "provider"))
	usage, err := h.budgets.Usage(r.Context(), wsID, providerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, usageResponse{Provider: providerID, Usage: usage})
}

// ListAlerts handles GET /budget-alerts.
func (h *BudgetHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	wsID, err := workspaceID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	limit := parseQueryInt(r.URL.Query().Get("limit"), 100)
	alerts, err := h.budgets.ListAlerts(r.Context(), wsID, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ListResponse[*budget.Alert]{
		Data:    alerts,
		Total:   len(alerts),
		Page:    1,
		PerPage: len(alerts),
	})
}
