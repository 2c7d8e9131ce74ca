package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/hongminglow/rdbs-admin-be/internal/http/respond"
	"github.com/hongminglow/rdbs-admin-be/internal/middleware"
	"github.com/hongminglow/rdbs-admin-be/internal/models"
	"github.com/hongminglow/rdbs-admin-be/internal/session"
	"github.com/hongminglow/rdbs-admin-be/internal/storage"
)

// SessionExpiredHeader marks responses where the backend rejected the bearer
// and the session was dropped.
const SessionExpiredHeader = "X-Session-Expired"

var errForcedReauth = errors.New("backend rejected bearer token")

// ProxyHandler forwards resource calls to the backend with the session's
// bearer token attached.
type ProxyHandler struct {
	target    *url.URL
	channel   string
	prefix    string
	loginPath string
	audit     storage.AuditLog
	log       *zap.Logger
	proxy     *httputil.ReverseProxy
}

// NewProxyHandler builds a reverse proxy to baseURL.
func NewProxyHandler(baseURL, channel, loginPath string, audit storage.AuditLog, log *zap.Logger) (*ProxyHandler, error) {
	target, err := url.Parse(baseURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", baseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	h := &ProxyHandler{
		target:    target,
		channel:   channel,
		loginPath: loginPath,
		audit:     audit,
		log:       log.Named("proxy"),
	}
	h.proxy = &httputil.ReverseProxy{
		Rewrite:        h.rewrite,
		ModifyResponse: h.modifyResponse,
		ErrorHandler:   h.handleError,
	}
	return h, nil
}

// Register mounts the proxy under prefix. Only authenticated sessions reach
// the backend.
func (h *ProxyHandler) Register(r *mux.Router, prefix string) {
	h.prefix = strings.TrimSuffix(prefix, "/")
	r.PathPrefix(h.prefix + "/").Handler(middleware.RequireSession(h.loginPath, h.proxy))
}

func (h *ProxyHandler) rewrite(pr *httputil.ProxyRequest) {
	// Keep the escaped form so encoded separators like %2F survive the hop.
	escaped := strings.TrimPrefix(pr.In.URL.EscapedPath(), h.prefix)
	if path, err := url.PathUnescape(escaped); err == nil {
		pr.Out.URL.Path, pr.Out.URL.RawPath = path, escaped
	} else {
		pr.Out.URL.Path, pr.Out.URL.RawPath = strings.TrimPrefix(pr.In.URL.Path, h.prefix), ""
	}
	pr.SetURL(h.target)
	pr.SetXForwarded()

	pr.Out.Header.Del("Cookie")
	pr.Out.Header.Del("Authorization")
	pr.Out.Header.Set("X-Channel", h.channel)
	if acc := session.FromContext(pr.In.Context()); acc != nil {
		if creds, ok := acc.Credentials(); ok {
			pr.Out.Header.Set("Authorization", "Bearer "+creds.AccessToken)
		}
	}
}

func (h *ProxyHandler) modifyResponse(resp *http.Response) error {
	if resp.StatusCode != http.StatusUnauthorized {
		return nil
	}
	acc := session.FromContext(resp.Request.Context())
	if acc == nil {
		return nil
	}
	before := acc.Current()
	acc.Invalidate()

	event := models.AuthEvent{Type: models.EventForcedReauth, RemoteAddr: resp.Request.Header.Get("X-Forwarded-For"), OccurredAt: time.Now().UTC()}
	if before.User != nil {
		event.Email, event.UserID = before.User.Email, before.User.ID
	}
	if err := h.audit.RecordAuthEvent(resp.Request.Context(), event); err != nil {
		h.log.Warn("record auth event", zap.String("type", event.Type), zap.Error(err))
	}
	return errForcedReauth
}

func (h *ProxyHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errForcedReauth) {
		w.Header().Set(SessionExpiredHeader, "true")
		respond.Reason(w, http.StatusUnauthorized, "session_expired", "session is no longer valid")
		return
	}
	h.log.Warn("backend unreachable", zap.String("path", r.URL.Path), zap.Error(err))
	respond.Reason(w, http.StatusBadGateway, "network_error", "backend is unreachable")
}
