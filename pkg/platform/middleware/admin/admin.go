// Package admin guards the reporting endpoints with a shared bearer token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"simkyc/pkg/platform/httputil"
	"simkyc/pkg/requestcontext"
)

// RequireAdminToken rejects requests whose bearer token does not match
// expectedToken. An empty expected token rejects everything.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || expectedToken == "" || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteFail(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
