package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/rdbs-admin-be/internal/config"
	"github.com/hongminglow/rdbs-admin-be/internal/devbackend"
	"github.com/hongminglow/rdbs-admin-be/internal/models"
	"github.com/hongminglow/rdbs-admin-be/internal/models/dto"
	"github.com/hongminglow/rdbs-admin-be/internal/storage/memory"
)

const cookieName = "rdbs.session-token"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	t       *testing.T
	url     string
	client  *http.Client
	backend *devbackend.Server
	store   *memory.Store
}

func testConfig(apiBaseURL string) config.Config {
	return config.Config{
		Port:              "0",
		AppEnv:            config.EnvDevelopment,
		APIBaseURL:        apiBaseURL,
		Channel:           "ADMIN_WEB",
		CORSOrigins:       []string{"http://console.test"},
		SessionSecret:     "test-secret-with-enough-entropy",
		SessionIssuer:     "rdbs-admin",
		SessionTTL:        24 * time.Hour,
		SessionRefreshAge: time.Hour,
		CookieName:        cookieName,
		LoginPath:         "/login",
		AuthBasePath:      "/api/auth",
		BackendTimeout:    5 * time.Second,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith runs the dev backend behind wrap, e.g. to slow it down.
func newHarnessWith(t *testing.T, wrap func(http.Handler) http.Handler) *harness {
	t.Helper()
	be, err := devbackend.New("ADMIN_WEB", devbackend.DefaultUsers(), bcrypt.MinCost, nil)
	require.NoError(t, err)
	var handler http.Handler = be
	if wrap != nil {
		handler = wrap(be)
	}
	beServer := httptest.NewServer(handler)
	t.Cleanup(beServer.Close)

	h := newGateway(t, beServer.URL)
	h.backend = be
	return h
}

func newGateway(t *testing.T, apiBaseURL string) *harness {
	t.Helper()
	store := memory.NewStore()
	srv, err := New(testConfig(apiBaseURL), store, nil)
	require.NoError(t, err)
	gw := httptest.NewServer(srv.Handler())
	t.Cleanup(gw.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &harness{t: t, url: gw.URL, client: client, store: store}
}

func (h *harness) do(method, path string, body any, headers ...string) (*http.Response, envelope) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.url+path, reader)
	require.NoError(h.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(h.t, json.Unmarshal(raw, &env))
	} else {
		env.Data = raw
	}
	return resp, env
}

func (h *harness) login(email, password string) (*http.Response, envelope) {
	h.t.Helper()
	return h.do(http.MethodPost, "/api/auth/login", dto.LoginRequest{Email: email, Password: password})
}

func (h *harness) session() dto.SessionResponse {
	h.t.Helper()
	resp, env := h.do(http.MethodGet, "/api/auth/session", nil)
	require.Equal(h.t, http.StatusOK, resp.StatusCode)
	var out dto.SessionResponse
	require.NoError(h.t, json.Unmarshal(env.Data, &out))
	return out
}

func findCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func TestLoginEstablishesSession(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "unauthenticated", h.session().Status)

	resp, env := h.login("admin@example.com", "correct")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := findCookie(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.InDelta(t, (24 * time.Hour).Seconds(), cookie.MaxAge, 2)

	var body dto.SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "authenticated", body.Status)
	require.NotNil(t, body.User)
	assert.Equal(t, "usr_0001", body.User.ID)
	assert.ElementsMatch(t, models.AllPermissions, body.User.Permissions)
	require.NotNil(t, body.Expires)

	current := h.session()
	assert.Equal(t, "authenticated", current.Status)
	assert.Equal(t, "admin@example.com", current.User.Email)

	events := h.store.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventLoginSucceeded, events[len(events)-1].Type)
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t)

	resp, env := h.login("admin@example.com", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", env.Reason)
	assert.Nil(t, findCookie(resp))
	assert.Equal(t, "unauthenticated", h.session().Status)

	resp, env = h.login("admin@example.com", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing_credentials", env.Reason)

	events := h.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventLoginFailed, events[0].Type)
	assert.Equal(t, "invalid_credentials", events[0].Category)
}

func TestLoginBackendUnavailable(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	base := down.URL
	down.Close()

	h := newGateway(t, base)
	resp, env := h.login("admin@example.com", "correct")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "endpoint_unavailable", env.Reason)
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.login("admin@example.com", "correct")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env := h.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"))
	var out dto.LogoutResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "/login", out.Redirect)

	cookie := findCookie(resp)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
	assert.Equal(t, "unauthenticated", h.session().Status)
}

func TestLogoutFromFormRedirects(t *testing.T) {
	h := newHarness(t)
	h.login("support@example.com", "support-pass")

	resp, _ := h.do(http.MethodPost, "/api/auth/logout", nil, "Accept", "text/html")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestRolesRequirePermission(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(http.MethodGet, "/api/auth/roles", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.login("support@example.com", "support-pass")
	resp, env := h.do(http.MethodGet, "/api/auth/roles", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", env.Reason)

	h.login("admin@example.com", "correct")
	resp, env = h.do(http.MethodGet, "/api/auth/roles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var roles []models.Role
	require.NoError(t, json.Unmarshal(env.Data, &roles))
	assert.Len(t, roles, len(models.DefaultRoles()))
}

func TestReloadPermissionsPicksUpBackendChanges(t *testing.T) {
	h := newHarness(t)
	h.login("support@example.com", "support-pass")

	resp, _ := h.do(http.MethodGet, "/api/auth/roles", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.NoError(t, h.backend.SetPermissions("support@example.com", []string{models.PermViewUsers, models.PermViewRoles}))
	resp, env := h.do(http.MethodPost, "/api/auth/permissions/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body dto.SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, []string{models.PermViewUsers, models.PermViewRoles}, body.User.Permissions)

	resp, _ = h.do(http.MethodGet, "/api/auth/roles", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProxyAttachesBearer(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(http.MethodGet, "/api/proxy/transactions", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.login("admin@example.com", "correct")
	resp, env := h.do(http.MethodGet, "/api/proxy/transactions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), "TXN-000184")
}

func TestProxyKeepsEncodedPathSegments(t *testing.T) {
	seen := make(chan string, 1)
	h := newHarnessWith(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/items/") {
				seen <- r.URL.EscapedPath() + "?" + r.URL.RawQuery
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	h.login("admin@example.com", "correct")

	resp, _ := h.do(http.MethodGet, "/api/proxy/items/a%2Fb/c%20d?q=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	select {
	case got := <-seen:
		assert.Equal(t, "/items/a%2Fb/c%20d?q=1", got)
	default:
		t.Fatal("backend never received the proxied request")
	}
}

func TestProxyForcesReauthOnBackend401(t *testing.T) {
	h := newHarness(t)
	h.login("admin@example.com", "correct")
	h.backend.RevokeAll()

	resp, env := h.do(http.MethodGet, "/api/proxy/transactions", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "session_expired", env.Reason)
	assert.Equal(t, "true", resp.Header.Get("X-Session-Expired"))
	cookie := findCookie(resp)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)

	assert.Equal(t, "unauthenticated", h.session().Status)
	events := h.store.Events()
	assert.Equal(t, models.EventForcedReauth, events[len(events)-1].Type)
	assert.Equal(t, "usr_0001", events[len(events)-1].UserID)
}

func TestLoginPage(t *testing.T) {
	h := newHarness(t)

	resp, env := h.do(http.MethodGet, "/login?callbackUrl=%2Fusers", nil, "Accept", "text/html")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := string(env.Data)
	assert.Contains(t, page, `method="post" action="/api/auth/login"`)
	assert.Contains(t, page, `name="callbackUrl" value="/users"`)

	h.login("admin@example.com", "correct")
	resp, _ = h.do(http.MethodGet, "/login?callbackUrl=%2Fusers", nil, "Accept", "text/html")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/users", resp.Header.Get("Location"))

	resp, _ = h.do(http.MethodGet, "/login?callbackUrl=https%3A%2F%2Fevil.test", nil, "Accept", "text/html")
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestHealthMetricsAndCORS(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	h.login("admin@example.com", "correct")
	resp, env := h.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), "rdbs_admin_logins_total")

	resp, _ = h.do(http.MethodOptions, "/api/auth/login", nil,
		"Origin", "http://console.test", "Access-Control-Request-Method", "POST")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://console.test", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func delayLogin(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/auth/login" {
				time.Sleep(d)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func TestLogoutWhileLoginInFlightWins(t *testing.T) {
	for name, visited := range map[string]bool{"returning client": true, "first contact": false} {
		t.Run(name, func(t *testing.T) {
			h := newHarnessWith(t, delayLogin(300*time.Millisecond))
			if visited {
				resp, _ := h.do(http.MethodGet, "/login", nil, "Accept", "text/html")
				require.Equal(t, http.StatusOK, resp.StatusCode)
			}

			loginStatus := make(chan int, 1)
			go func() {
				raw, _ := json.Marshal(dto.LoginRequest{Email: "admin@example.com", Password: "correct"})
				req, _ := http.NewRequest(http.MethodPost, h.url+"/api/auth/login", bytes.NewReader(raw))
				req.Header.Set("Content-Type", "application/json")
				resp, err := h.client.Do(req)
				if err != nil {
					loginStatus <- 0
					return
				}
				resp.Body.Close()
				loginStatus <- resp.StatusCode
			}()

			time.Sleep(50 * time.Millisecond)
			resp, _ := h.do(http.MethodPost, "/api/auth/logout", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			assert.Equal(t, http.StatusConflict, <-loginStatus)
			assert.Equal(t, "unauthenticated", h.session().Status)
		})
	}
}

func TestLogoutRevokesCopiedSessionCookie(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.login("admin@example.com", "correct")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stolen := findCookie(resp)
	require.NotNil(t, stolen)

	resp, _ = h.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	gw, err := url.Parse(h.url)
	require.NoError(t, err)
	h.client.Jar.SetCookies(gw, []*http.Cookie{{Name: cookieName, Value: stolen.Value, Path: "/"}})
	assert.Equal(t, "unauthenticated", h.session().Status)
}

func (h *harness) postForm(path string, form url.Values, headers ...string) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.url+path, strings.NewReader(form.Encode()))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp, string(raw)
}

func TestLoginFormPost(t *testing.T) {
	h := newHarness(t)

	resp, page := h.postForm("/api/auth/login", url.Values{
		"email": {"admin@example.com"}, "password": {"wrong"}, "callbackUrl": {"/users"},
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, page, "Invalid email or password.")
	assert.Contains(t, page, `value="admin@example.com"`)
	assert.Contains(t, page, `name="callbackUrl" value="/users"`)
	assert.Nil(t, findCookie(resp))

	resp, page = h.postForm("/api/auth/login", url.Values{"email": {"admin@example.com"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, page, "Email and password are required.")

	resp, _ = h.postForm("/api/auth/login", url.Values{
		"email": {"admin@example.com"}, "password": {"correct"}, "callbackUrl": {"https://evil.test/"},
	}, "Origin", "https://evil.test")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "unauthenticated", h.session().Status)

	resp, _ = h.postForm("/api/auth/login", url.Values{
		"email": {"admin@example.com"}, "password": {"correct"}, "callbackUrl": {"/users"},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/users", resp.Header.Get("Location"))
	require.NotNil(t, findCookie(resp))
	assert.Equal(t, "authenticated", h.session().Status)
}
