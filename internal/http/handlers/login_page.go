package handlers

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/hongminglow/rdbs-admin-be/internal/session"
)

var loginTemplate = template.Must(template.New("login").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Sign in</title></head>
<body>
<form id="login" method="post" action="{{.Endpoint}}">
<input type="hidden" name="callbackUrl" value="{{.Callback}}">
<label>Email <input name="email" type="email" autocomplete="username" value="{{.Email}}" required></label>
<label>Password <input name="password" type="password" autocomplete="current-password" required></label>
<button type="submit">Sign in</button>
{{if .Error}}<p id="error" role="alert">{{.Error}}</p>{{end}}
</form>
</body></html>`))

// loginView is the data the login form renders.
type loginView struct {
	Endpoint string
	Callback string
	Email    string
	Error    string
}

func renderLogin(w http.ResponseWriter, status int, view loginView) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	return loginTemplate.Execute(w, view)
}

// LoginPageHandler serves the login surface. Signed-in users are sent on to
// their callback target.
type LoginPageHandler struct {
	path     string
	endpoint string
	log      *zap.Logger
}

// NewLoginPageHandler constructs the handler. endpoint is the login API path.
func NewLoginPageHandler(path, endpoint string, log *zap.Logger) *LoginPageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoginPageHandler{path: path, endpoint: endpoint, log: log}
}

// Register wires the login surface.
func (h *LoginPageHandler) Register(r *mux.Router) {
	r.HandleFunc(h.path, h.handle).Methods(http.MethodGet)
}

func (h *LoginPageHandler) handle(w http.ResponseWriter, r *http.Request) {
	callback := SafeCallback(r.URL.Query().Get("callbackUrl"))
	if session.SnapshotFromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, callback, http.StatusFound)
		return
	}
	if err := renderLogin(w, http.StatusOK, loginView{Endpoint: h.endpoint, Callback: callback}); err != nil {
		h.log.Warn("render login page", zap.Error(err))
	}
}

// SafeCallback returns target when it is a same-origin path and "/" otherwise.
func SafeCallback(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
