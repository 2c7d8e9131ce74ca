package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/hongminglow/rdbs-admin-be/internal/authz"
	"github.com/hongminglow/rdbs-admin-be/internal/backend"
	"github.com/hongminglow/rdbs-admin-be/internal/guard"
	"github.com/hongminglow/rdbs-admin-be/internal/http/respond"
	"github.com/hongminglow/rdbs-admin-be/internal/metrics"
	"github.com/hongminglow/rdbs-admin-be/internal/middleware"
	"github.com/hongminglow/rdbs-admin-be/internal/models"
	"github.com/hongminglow/rdbs-admin-be/internal/models/dto"
	"github.com/hongminglow/rdbs-admin-be/internal/session"
	"github.com/hongminglow/rdbs-admin-be/internal/storage"
)

// AuthHandler owns the session endpoints. It expects the session middleware
// to have placed an accessor in the request context.
type AuthHandler struct {
	roles     storage.RoleCatalog
	audit     storage.AuditLog
	loginPath string
	log       *zap.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(store storage.Store, loginPath string, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{roles: store, audit: store, loginPath: loginPath, log: log.Named("auth")}
}

// Register attaches auth routes below basePath.
func (h *AuthHandler) Register(r *mux.Router, basePath string) {
	sub := r.PathPrefix(basePath).Subrouter()
	sub.HandleFunc("/login", h.handleLogin).Methods(http.MethodPost)
	sub.HandleFunc("/logout", h.handleLogout).Methods(http.MethodPost)
	sub.HandleFunc("/session", h.handleSession).Methods(http.MethodGet)
	sub.Handle("/permissions/refresh",
		middleware.RequireSession(h.loginPath, http.HandlerFunc(h.handleReloadPermissions))).
		Methods(http.MethodPost)

	viewRoles := guard.Inline{Requirement: authz.Permission(models.PermViewRoles), ShowFallback: true}
	sub.Handle("/roles",
		middleware.RequireSession(h.loginPath,
			middleware.Require(viewRoles, http.HandlerFunc(forbidden), http.HandlerFunc(h.handleRoles)))).
		Methods(http.MethodGet)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	acc := session.FromContext(r.Context())
	if acc == nil {
		respond.Error(w, http.StatusInternalServerError, "session unavailable")
		return
	}

	// The login page posts a plain form; the console posts JSON.
	form := isFormPost(r)
	var req dto.LoginRequest
	callback := "/"
	if form {
		if !sameOrigin(r) {
			respond.Error(w, http.StatusForbidden, "cross-origin form post")
			return
		}
		if err := r.ParseForm(); err != nil {
			respond.Error(w, http.StatusBadRequest, "invalid form payload")
			return
		}
		req = dto.LoginRequest{Email: r.PostFormValue("email"), Password: r.PostFormValue("password")}
		callback = SafeCallback(r.PostFormValue("callbackUrl"))
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	email := strings.TrimSpace(req.Email)
	var (
		snap session.Snapshot
		err  error
	)
	if email == "" || req.Password == "" {
		err = backend.ErrMissingCredentials
	} else {
		snap, err = acc.Login(r.Context(), email, req.Password)
	}
	if err != nil {
		status, reason, message := h.loginFailed(r, email, err)
		if form {
			view := loginView{Endpoint: r.URL.Path, Callback: callback, Email: email, Error: message}
			if rerr := renderLogin(w, status, view); rerr != nil {
				h.log.Warn("render login page", zap.Error(rerr))
			}
			return
		}
		respond.Reason(w, status, reason, message)
		return
	}

	metrics.RecordLogin(backend.Category(nil))
	h.record(r, models.AuthEvent{Type: models.EventLoginSucceeded, Email: snap.User.Email, UserID: snap.User.ID})
	if form {
		http.Redirect(w, r, callback, http.StatusSeeOther)
		return
	}
	respond.JSON(w, http.StatusOK, "login successful", sessionResponse(snap))
}

// loginFailed records a failed attempt and maps it to a status, a stable
// reason and the message shown next to the form.
func (h *AuthHandler) loginFailed(r *http.Request, email string, err error) (int, string, string) {
	category := backend.Category(err)
	if errors.Is(err, session.ErrSuperseded) {
		category = "superseded"
	}
	metrics.RecordLogin(category)
	if !errors.Is(err, backend.ErrMissingCredentials) {
		h.record(r, models.AuthEvent{Type: models.EventLoginFailed, Email: email, Category: category})
	}

	switch {
	case errors.Is(err, backend.ErrMissingCredentials):
		return http.StatusBadRequest, category, "Email and password are required."
	case errors.Is(err, backend.ErrInvalidCredentials):
		return http.StatusUnauthorized, category, "Invalid email or password."
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict, category, "A newer sign-in or sign-out took precedence."
	case backend.Unavailable(err):
		return http.StatusServiceUnavailable, "endpoint_unavailable", "The authentication service is unavailable. Try again shortly."
	default:
		h.log.Error("login failed", zap.String("category", category), zap.Error(err))
		return http.StatusInternalServerError, category, "Sign-in failed."
	}
}

func isFormPost(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "application/x-www-form-urlencoded"
}

// sameOrigin rejects form posts sent from another site. Requests without an
// Origin header come from same-site navigation or non-browser clients.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	acc := session.FromContext(r.Context())
	if acc == nil {
		respond.JSON(w, http.StatusOK, "logged out", dto.LogoutResponse{Redirect: h.loginPath})
		return
	}
	before := acc.Current()
	acc.Logout()
	if before.Authenticated() {
		h.record(r, models.AuthEvent{Type: models.EventLogout, Email: before.User.Email, UserID: before.User.ID})
	}

	// Form posts follow the navigation; XHR callers get the target instead.
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		w.WriteHeader(http.StatusSeeOther)
		return
	}
	w.Header().Del("Location")
	respond.JSON(w, http.StatusOK, "logged out", dto.LogoutResponse{Redirect: acc.LoginPath()})
}

func (h *AuthHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	snap := session.SnapshotFromContext(r.Context())
	respond.JSON(w, http.StatusOK, string(snap.Status), sessionResponse(snap))
}

func (h *AuthHandler) handleReloadPermissions(w http.ResponseWriter, r *http.Request) {
	acc := session.FromContext(r.Context())
	snap, err := acc.ReloadPermissions(r.Context())
	switch {
	case err == nil:
		respond.JSON(w, http.StatusOK, "permissions reloaded", sessionResponse(snap))
	case errors.Is(err, session.ErrSuperseded):
		respond.Reason(w, http.StatusConflict, "superseded", "a newer session operation took precedence")
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, backend.ErrInvalidCredentials):
		h.record(r, models.AuthEvent{Type: models.EventForcedReauth, Category: backend.Category(err)})
		respond.Reason(w, http.StatusUnauthorized, "session_expired", "session is no longer valid")
	case backend.Unavailable(err):
		respond.Reason(w, http.StatusServiceUnavailable, "endpoint_unavailable", "permission service is unavailable")
	default:
		h.log.Error("reload permissions", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "failed to reload permissions")
	}
}

func (h *AuthHandler) handleRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		h.log.Error("list roles", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, "failed to list roles")
		return
	}
	respond.JSON(w, http.StatusOK, "roles", roles)
}

func (h *AuthHandler) record(r *http.Request, event models.AuthEvent) {
	event.RemoteAddr = r.RemoteAddr
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := h.audit.RecordAuthEvent(r.Context(), event); err != nil {
		h.log.Warn("record auth event", zap.String("type", event.Type), zap.Error(err))
	}
}

func forbidden(w http.ResponseWriter, _ *http.Request) {
	respond.Reason(w, http.StatusForbidden, "forbidden", "missing required permission")
}

func sessionResponse(s session.Snapshot) dto.SessionResponse {
	out := dto.SessionResponse{Status: string(s.Status), User: s.User}
	if s.Authenticated() && !s.ExpiresAt.IsZero() {
		expires := s.ExpiresAt
		out.Expires = &expires
	}
	return out
}
