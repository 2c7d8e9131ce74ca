package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hongminglow/rdbs-admin-be/internal/session"
)

// Session resolves the request's session and stores the accessor in the
// request context. Tokens past the refresh age are re-validated silently.
func Session(mgr *session.Manager, log *zap.Logger, next http.Handler) http.Handler {
	log = log.Named("session")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc := mgr.ForRequest(w, r)
		if acc.Resolve().Authenticated() {
			if _, err := acc.Refresh(r.Context()); err != nil && !errors.Is(err, session.ErrSuperseded) {
				log.Debug("silent refresh failed", zap.Error(err))
			}
		}
		next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), acc)))
	})
}
