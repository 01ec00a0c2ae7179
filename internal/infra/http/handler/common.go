// Package handler implements the HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/traceprint/api/internal/infra/http/middleware"
	"github.com/traceprint/api/pkg/apierror"
	"github.com/traceprint/api/pkg/domain/shared"
	pkgvalidator "github.com/traceprint/api/pkg/validator"
)

// ListResponse is the paginated list envelope shared by all list endpoints.
type ListResponse[T any] struct {
	Data    []T `json:"data"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// defaultPerPage bounds list endpoints when the caller gives no page size.
const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// pagination extracts page/per_page query parameters.
func pagination(r *http.Request) (page, perPage int) {
	page = parseQueryInt(r.URL.Query().Get("page"), 1)
	if page < 1 {
		page = 1
	}
	perPage = parseQueryInt(r.URL.Query().Get("per_page"), defaultPerPage)
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func parseQueryInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return val
}

// respondJSON writes v as a JSON response.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps err to an API error response. Validation errors carry
// their field details; unknown errors become an opaque 500.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())

	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		apierror.Write(w, apiErr, requestID)
		return
	}

	var fieldErrs pkgvalidator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		apierror.Write(w, apierror.Validation("request validation failed", fieldErrs), requestID)
		return
	}

	apierror.Write(w, apierror.FromDomain(err), requestID)
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apierror.BadRequest("request body is required")
		}
		return apierror.BadRequest("invalid JSON: " + err.Error())
	}
	return nil
}

// workspaceID reads the caller's workspace identity set by the middleware.
func workspaceID(r *http.Request) (shared.ID, error) {
	raw := middleware.GetWorkspaceID(r.Context())
	if raw == "" {
		return shared.ID{}, apierror.BadRequest("workspace id is required")
	}
	id, err := shared.ParseID(raw)
	if err != nil {
		return shared.ID{}, apierror.BadRequest("workspace id must be a UUID")
	}
	return id, nil
}

// pathID parses a UUID path parameter.
func pathID(r *http.Request, name string) (shared.ID, error) {
	raw := chi.URLParam(r, name)
	id, err := shared.ParseID(raw)
	if err != nil {
		return shared.ID{}, apierror.BadRequest(name + " must be a UUID")
	}
	return id, nil
}
