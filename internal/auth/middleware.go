package auth

import (
	"log/slog"
	"net/http"

	"github.com/parley-chat/parley/internal/shared"
)

// Middleware authenticates each inbound request once, before any business
// logic runs. A valid bearer token installs the principal into the request
// context for the duration of the call; anything else leaves the context
// anonymous. Rejecting anonymous access to protected operations is the
// responsibility of the handlers downstream.
func Middleware(extractor *Extractor, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p := extractor.Authenticate(r.Header.Get(HeaderName)); p != nil {
				ctx := shared.ContextWithPrincipal(r.Context(), p)
				if logger != nil {
					logger.Debug("authenticated request",
						slog.String("subject", p.Subject),
						slog.String("path", r.URL.Path))
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
