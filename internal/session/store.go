package session

import (
	"net/http"
	"sync"
	"time"
)

// TokenStore persists the raw session token for one client.
type TokenStore interface {
	Load() (string, bool)
	Save(token string, maxAge time.Duration)
	Clear()
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStore returns a store seeded with token, which may be empty.
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (s *MemoryStore) Load() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *MemoryStore) Save(token string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name       string
	// ClientName is the client id cookie; defaults to Name + "-client".
	ClientName string
	Path       string
	Secure     bool
}

// CookieStore reads the token from the request cookie and writes updates to
// the response. Writes are visible to later Loads within the same request.
type CookieStore struct {
	w   http.ResponseWriter
	r   *http.Request
	cfg CookieConfig

	written bool
	value   string
}

// NewCookieStore binds a store to one request/response pair.
func NewCookieStore(w http.ResponseWriter, r *http.Request, cfg CookieConfig) *CookieStore {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &CookieStore{w: w, r: r, cfg: cfg}
}

func (s *CookieStore) Load() (string, bool) {
	if s.written {
		return s.value, s.value != ""
	}
	cookie, err := s.r.Cookie(s.cfg.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (s *CookieStore) Save(token string, maxAge time.Duration) {
	s.written, s.value = true, token
	http.SetCookie(s.w, &http.Cookie{
		Name:     s.cfg.Name,
		Value:    token,
		Path:     s.cfg.Path,
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *CookieStore) Clear() {
	if s.written && s.value == "" {
		return
	}
	if _, present := s.Load(); !present && !s.written {
		return
	}
	s.written, s.value = true, ""
	http.SetCookie(s.w, &http.Cookie{
		Name:     s.cfg.Name,
		Value:    "",
		Path:     s.cfg.Path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
