package middleware

import (
	"context"
	"net/http"

	"github.com/traceprint/api/pkg/apierror"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

// WorkspaceHeader carries the caller's workspace identity. Authentication is
// delegated to an upstream gateway; this API trusts the header it forwards.
const WorkspaceHeader = "X-Workspace-ID"

// WorkspaceIDKey is the context key holding the caller's workspace ID.
const WorkspaceIDKey = logger.ContextKeyWorkspaceID

// WorkspaceContext extracts the workspace ID from the request header and
// stores it in the context. Requests without a valid workspace ID are
// rejected, so downstream handlers can rely on GetWorkspaceID being set.
func WorkspaceContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(WorkspaceHeader)
			if raw == "" {
				apierror.Write(w, apierror.BadRequest("X-Workspace-ID header is required"), GetRequestID(r.Context()))
				return
			}

			id, err := shared.ParseID(raw)
			if err != nil {
				apierror.Write(w, apierror.BadRequest("X-Workspace-ID must be a UUID"), GetRequestID(r.Context()))
				return
			}

			ctx := context.WithValue(r.Context(), WorkspaceIDKey, id.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetWorkspaceID extracts the workspace ID from context. Empty when the
// request did not pass through WorkspaceContext.
func GetWorkspaceID(ctx context.Context) string {
	if id, ok := ctx.Value(WorkspaceIDKey).(string); ok {
		return id
	}
	return ""
}
