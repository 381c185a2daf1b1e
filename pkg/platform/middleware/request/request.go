// Package request provides request ID middleware and accessors. Every
// request gets a stable ID, propagated from the X-Request-ID header when
// the caller supplies one, so log lines and audit events correlate across
// services.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/requestcontext"
)

// HeaderName is the canonical request ID header.
const HeaderName = "X-Request-ID"

// Middleware assigns the request ID and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderName)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderName, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
