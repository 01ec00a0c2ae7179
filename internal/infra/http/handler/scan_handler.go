package handler

import (
	"net/http"

	"github.com/traceprint/api/internal/app"
	"github.com/traceprint/api/pkg/domain/finding"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/scan"
	pkgvalidator "github.com/traceprint/api/pkg/validator"
)

// ScanHandler handles scan submission and retrieval.
type ScanHandler struct {
	scans    *app.ScanService
	validate *pkgvalidator.Validator
	// syncProviderLimit is the largest provider set executed inline on a
	// ?wait=true request; larger sets always go through the queue.
	syncProviderLimit int
}

// NewScanHandler creates a scan handler.
func NewScanHandler(scans *app.ScanService, validate *pkgvalidator.Validator, syncProviderLimit int) *ScanHandler {
	return &ScanHandler{
		scans:             scans,
		validate:          validate,
		syncProviderLimit: syncProviderLimit,
	}
}

type createScanRequest struct {
	IdentifierType  string   `json:"identifier_type" validate:"required,identifier_type"`
	IdentifierValue string   `json:"identifier_value" validate:"required,min=1,max=512"`
	Providers       []string `json:"providers" validate:"max=50"`
	Tier            string   `json:"tier" validate:"omitempty,tier"`
	ScheduleType    string   `json:"schedule_type" validate:"omitempty,schedule_type"`
	ScheduleCron    string   `json:"schedule_cron" validate:"omitempty,max=128"`
}

type scanResponse struct {
	Scan *scan.Scan `json:"scan"`
	// State aggregates the stored status with the provider results reported
	// so far, distinguishing pending from running before the scan is terminal.
	State   scan.Status        `json:"state,omitempty"`
	Results []*provider.Result `json:"results,omitempty"`
}

// Create handles POST /scans. With ?wait=true and a provider set no larger
// than the sync limit the scan runs inline and the response carries the
// terminal state; otherwise the scan is queued and returned as pending.
func (h *ScanHandler) Create(w http.ResponseWriter, r *http.Request) {
	wsID, err := workspaceID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req createScanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, r, err)
		return
	}

	tier := provider.Tier(req.Tier)
	if tier == "" {
		tier = provider.TierFree
	}

	providers := make([]provider.ID, 0, len(req.Providers))
	for _, p := range req.Providers {
		providers = append(providers, provider.ID(p))
	}

	in := app.SubmitScanInput{
		WorkspaceID:     wsID,
		IdentifierType:  provider.IdentifierType(req.IdentifierType),
		IdentifierValue: req.IdentifierValue,
		Providers:       providers,
		Tier:            tier,
		ScheduleType:    scan.ScheduleType(req.ScheduleType),
		ScheduleCron:    req.ScheduleCron,
	}

	sc, err := h.scans.Submit(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}

	wait := r.URL.Query().Get("wait") == "true"
	if wait && len(sc.RequestedProviders) <= h.syncProviderLimit {
		if err := h.scans.Execute(r.Context(), sc.ID); err != nil {
			respondError(w, r, err)
			return
		}
		done, results, err := h.scans.GetScan(r.Context(), wsID, sc.ID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, scanResponse{
			Scan:    done,
			State:   scan.DeriveStatus(done, len(results)),
			Results: results,
		})
		return
	}

	if err := h.scans.Enqueue(r.Context(), sc.ID); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, scanResponse{Scan: sc})
}

// Get handles GET /scans/{scanID}.
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	wsID, err := workspaceID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	scanID, err := pathID(r, "scanID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	sc, results, err := h.scans.GetScan(r.Context(), wsID, scanID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, scanResponse{
		Scan:    sc,
		State:   scan.DeriveStatus(sc, len(results)),
		Results: results,
	})
}

// List handles GET /scans.
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	wsID, err := workspaceID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	page, perPage := pagination(r)
	filter := scan.ListFilter{
		WorkspaceID: wsID,
		Status:      scan.Status(r.URL.Query().Get("status")),
		Limit:       perPage,
		Offset:      (page - 1) * perPage,
	}

	scans, total, err := h.scans.ListScans(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ListResponse[*scan.Scan]{
		Data:    scans,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// Cancel handles POST /scans/{scanID}/cancel.
func (h *ScanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	wsID, err := workspaceID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	scanID, err := pathID(r, "scanID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	sc, err := h.scans.Cancel(r.Context(), wsID, scanID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, scanResponse{Scan: sc})
}

// ListFindings handles GET /scans/{scanID}/findings.
func (h *ScanHandler) ListFindings(w http.ResponseWriter, r *http.Request) {
	wsID, err := workspaceID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	scanID, err := pathID(r, "scanID")
	if err != nil {
		respondError(w, r, err)
		return
	}

	findings, err := h.scans.ListFindings(r.Context(), wsID, scanID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ListResponse[*finding.Finding]{
		Data:    findings,
		Total:   len(findings),
		Page:    1,
		PerPage: len(findings),
	})
}
