package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/hongminglow/rdbs-admin-be/internal/guard"
	"github.com/hongminglow/rdbs-admin-be/internal/http/respond"
	"github.com/hongminglow/rdbs-admin-be/internal/metrics"
	"github.com/hongminglow/rdbs-admin-be/internal/session"
)

const waitingPage = `<!doctype html><html><head><meta charset="utf-8"><meta http-equiv="refresh" content="1"><title>Loading</title></head><body><p>Loading…</p></body></html>`

// RequireSession is the full-page guard. Unauthenticated browser navigation is
// redirected to loginPath with a callbackUrl; API calls receive 401.
func RequireSession(loginPath string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch guard.Page(session.SnapshotFromContextOrLoading(r.Context())) {
		case guard.PageContent:
			next.ServeHTTP(w, r)
		case guard.PageRedirect:
			metrics.RecordGuardDenial("page")
			if wantsHTML(r) {
				http.Redirect(w, r, loginURL(loginPath, r), http.StatusFound)
				return
			}
			respond.Error(w, http.StatusUnauthorized, "authentication required")
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(waitingPage))
		}
	})
}

// Require is the inline guard. Denied requests get the fallback handler when
// the guard shows one, otherwise an empty 403.
func Require(g guard.Inline, fallback http.Handler, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch g.Decide(session.SnapshotFromContext(r.Context())) {
		case guard.InlineChildren:
			next.ServeHTTP(w, r)
		case guard.InlineFallback:
			metrics.RecordGuardDenial("inline")
			if fallback != nil {
				fallback.ServeHTTP(w, r)
				return
			}
			w.WriteHeader(http.StatusForbidden)
		default:
			metrics.RecordGuardDenial("inline")
			w.WriteHeader(http.StatusForbidden)
		}
	})
}

func wantsHTML(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

func loginURL(loginPath string, r *http.Request) string {
	q := url.Values{}
	q.Set("callbackUrl", r.URL.RequestURI())
	return loginPath + "?" + q.Encode()
}
