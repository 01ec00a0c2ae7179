package handler

import (
	"net/http"

	"github.com/traceprint/api/pkg/domain/provider"
)

// ProviderHandler exposes the provider catalog.
type ProviderHandler struct {
	catalog *provider.Catalog
}

// NewProviderHandler creates a provider handler.
func NewProviderHandler(catalog *provider.Catalog) *ProviderHandler {
	return &ProviderHandler{catalog: catalog}
}

// providerInfo is the wire shape of one catalog entry. Credential keys stay
// server-side.
type providerInfo struct {
	ID           provider.ID               `json:"id"`
	Name         string                    `json:"name"`
	RequiredTier provider.Tier             `json:"required_tier"`
	CostPence    int64                     `json:"cost_pence"`
	Identifiers  []provider.IdentifierType `json:"identifiers"`
}

// List handles GET /providers.
func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	ids := h.catalog.IDs()
	infos := make([]providerInfo, 0, len(ids))
	for _, id := range ids {
		spec, ok := h.catalog.Get(id)
		if !ok {
			continue
		}
		infos = append(infos, providerInfo{
			ID:           spec.ID,
			Name:         spec.Name,
			RequiredTier: spec.RequiredTier,
			CostPence:    spec.CostPence,
			Identifiers:  spec.Identifiers,
		})
	}

	respondJSON(w, http.StatusOK, ListResponse[providerInfo]{
		Data:    infos,
		Total:   len(infos),
		Page:    1,
		PerPage: len(infos),
	})
}
