// Package devbackend is a local stand-in for the RDBS back-office auth API.
// It serves the endpoints the gateway calls so the console can run without
// the real backend.
package devbackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/rdbs-admin-be/internal/models"
)

// SeedUser is an account available on the dev backend.
type SeedUser struct {
	Password string
	User     models.UserIdentity
}

type account struct {
	hash []byte
	user models.UserIdentity
}

// Server implements the backend auth endpoints in memory.
type Server struct {
	router  *mux.Router
	channel string
	log     *zap.Logger

	mu       sync.Mutex
	accounts map[string]*account
	access   map[string]string
	refresh  map[string]string
}

// DefaultUsers returns the seeded development accounts.
func DefaultUsers() []SeedUser {
	created := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	phone := "+2348030000001"
	return []SeedUser{
		{
			Password: "correct",
			User: models.UserIdentity{
				ID: "usr_0001", Email: "admin@example.com", Phone: &phone,
				Role: models.RoleSuperAdmin, UserType: "STAFF", Status: models.StatusActive,
				IsVerified: true, KYCStatus: "APPROVED", VerificationLevel: "TIER_3",
				CreatedAt: created, UpdatedAt: created,
				Permissions: append([]string(nil), models.AllPermissions...),
			},
		},
		{
			Password: "support-pass",
			User: models.UserIdentity{
				ID: "usr_0002", Email: "support@example.com",
				Role: models.RoleSupport, UserType: "STAFF", Status: models.StatusActive,
				IsVerified: true, KYCStatus: "APPROVED", VerificationLevel: "TIER_1",
				CreatedAt: created, UpdatedAt: created,
				Permissions: []string{models.PermViewUsers},
			},
		},
	}
}

// New hashes the seed passwords with the given bcrypt cost and returns a
// ready handler. Requests must carry channel.
func New(channel string, users []SeedUser, cost int, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		router:   mux.NewRouter(),
		channel:  channel,
		log:      log.Named("devbackend"),
		accounts: make(map[string]*account, len(users)),
		access:   make(map[string]string),
		refresh:  make(map[string]string),
	}
	for _, seed := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", seed.User.Email, err)
		}
		s.accounts[strings.ToLower(seed.User.Email)] = &account{hash: hash, user: seed.User.Normalized()}
	}

	s.router.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	s.router.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	s.router.HandleFunc("/auth/me/permissions", s.withBearer(s.handlePermissions)).Methods(http.MethodGet)
	s.router.HandleFunc("/transactions", s.withBearer(s.handleTransactions)).Methods(http.MethodGet)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetPermissions replaces the permission list of an account.
func (s *Server) SetPermissions(email string, perms []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return errors.New("unknown account")
	}
	acct.user.Permissions = append([]string{}, perms...)
	return nil
}

// RevokeAll invalidates every issued access and refresh token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]string)
	s.refresh = make(map[string]string)
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Channel  string `json:"channel"`
}

type tokenPair struct {
	User         *models.UserIdentity `json:"user,omitempty"`
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid JSON payload"})
		return
	}
	if body.Channel != s.channel {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "unknown channel"})
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(body.Email))]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(body.Password)) != nil {
		s.log.Info("rejected login", zap.String("email", body.Email))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
		return
	}

	s.mu.Lock()
	now := time.Now().UTC()
	acct.user.LastLoginAt = &now
	user := acct.user.Normalized()
	pair := s.issueLocked(user.Email)
	s.mu.Unlock()

	pair.User = &user
	writeJSON(w, http.StatusOK, map[string]any{"data": pair})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid JSON payload"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.refresh[body.RefreshToken]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid refresh token"})
		return
	}
	delete(s.refresh, body.RefreshToken)
	writeJSON(w, http.StatusOK, s.issueLocked(email))
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request, acct *account) {
	writeJSON(w, http.StatusOK, map[string]any{"permissions": acct.user.Permissions})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, acct *account) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data": []map[string]string{
			{"reference": "TXN-000184", "amount": "15000.00", "currency": "NGN", "status": "SUCCESSFUL"},
			{"reference": "TXN-000185", "amount": "2500.00", "currency": "NGN", "status": "REVERSAL_PENDING"},
		},
	})
}

func (s *Server) withBearer(next func(http.ResponseWriter, *http.Request, *account)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		email, known := s.access[token]
		var snapshot account
		if known {
			snapshot = *s.accounts[email]
			snapshot.user = snapshot.user.Normalized()
		}
		s.mu.Unlock()
		if !ok || !known {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		next(w, r, &snapshot)
	}
}

func (s *Server) issueLocked(email string) tokenPair {
	key := strings.ToLower(email)
	pair := tokenPair{AccessToken: "dev_at_" + uuid.NewString(), RefreshToken: "dev_rt_" + uuid.NewString()}
	s.access[pair.AccessToken] = key
	s.refresh[pair.RefreshToken] = key
	return pair
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
