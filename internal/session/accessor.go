package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/rdbs-admin-be/internal/auth"
	"github.com/hongminglow/rdbs-admin-be/internal/backend"
	"github.com/hongminglow/rdbs-admin-be/internal/metrics"
	"github.com/hongminglow/rdbs-admin-be/internal/models"
)

// Status is the lifecycle state of a session accessor.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

var (
	// ErrSuperseded is returned when a later operation began before this one completed.
	ErrSuperseded = errors.New("session operation superseded")
	// ErrNotAuthenticated is returned by operations that need a live session.
	ErrNotAuthenticated = errors.New("no authenticated session")
	errNoAuthenticator  = errors.New("session: no authenticator configured")
)

// Snapshot is a consistent view of the session at one point in time.
type Snapshot struct {
	Status    Status
	User      *models.UserIdentity
	ExpiresAt time.Time
}

// Authenticated reports whether the snapshot carries a live user.
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// Authenticator exchanges credentials with the backend.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (models.UserIdentity, models.Credentials, error)
}

// Refresher rotates backend credentials.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.Credentials, error)
}

// PermissionFetcher returns the bearer's current permission list.
type PermissionFetcher interface {
	FetchPermissions(ctx context.Context, accessToken string) ([]string, error)
}

// Options carries the collaborators of an Accessor. Every field is optional.
type Options struct {
	Authenticator Authenticator
	Refresher     Refresher
	Permissions   PermissionFetcher
	Logger        *zap.Logger
	LoginPath     string
	// Sequence orders writes across every accessor of the same client. A nil
	// Sequence gives the accessor one of its own.
	Sequence *Sequence
	// Navigate is invoked with LoginPath after an explicit logout.
	Navigate func(path string)
}

// Accessor owns the single authoritative session state for one client.
// Writes go through Login, Logout, Invalidate, Refresh and ReloadPermissions;
// each takes the state lock, so observers see transitions in order.
type Accessor struct {
	tokens *auth.TokenManager
	store  TokenStore
	opts   Options
	log    *zap.Logger

	mu        sync.Mutex
	status    Status
	claims    *auth.Claims
	seq       *Sequence
	listeners []func(Snapshot)
}

// NewAccessor creates an accessor in the loading state.
func NewAccessor(tokens *auth.TokenManager, store TokenStore, opts Options) *Accessor {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	seq := opts.Sequence
	if seq == nil {
		seq = NewSequence()
	}
	return &Accessor{
		seq:    seq,
		tokens: tokens,
		store:  store,
		opts:   opts,
		log:    log.Named("session"),
		status: StatusLoading,
	}
}

// Watch registers fn to receive every transition. fn runs under the state
// lock and must not call back into the accessor.
func (a *Accessor) Watch(fn func(Snapshot)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// LoginPath returns the login surface used for redirects.
func (a *Accessor) LoginPath() string {
	return a.opts.LoginPath
}

// Resolve performs the initial resolution from the token store. Expired or
// invalid tokens are cleared and treated as absent. Later calls return the
// current snapshot.
func (a *Accessor) Resolve() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != StatusLoading {
		return a.currentLocked()
	}

	raw, ok := a.store.Load()
	if !ok {
		a.transitionLocked(StatusUnauthenticated, nil)
		metrics.RecordResolution("absent")
		return a.snapshotLocked()
	}
	claims, err := a.tokens.Decode(raw)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, auth.ErrTokenExpired) {
			reason = "expired"
		}
		a.log.Debug("discarding session token", zap.String("reason", reason), zap.Error(err))
		a.store.Clear()
		a.transitionLocked(StatusUnauthenticated, nil)
		metrics.RecordResolution(reason)
		return a.snapshotLocked()
	}
	if !a.seq.admits(claims.Generation) {
		a.log.Debug("discarding session token", zap.String("reason", "revoked"))
		a.store.Clear()
		a.transitionLocked(StatusUnauthenticated, nil)
		metrics.RecordResolution("revoked")
		return a.snapshotLocked()
	}
	a.transitionLocked(StatusAuthenticated, claims)
	metrics.RecordResolution(string(StatusAuthenticated))
	return a.snapshotLocked()
}

// Current returns the session snapshot, moving to unauthenticated when the
// token has passed its absolute expiry.
func (a *Accessor) Current() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentLocked()
}

// Credentials returns the backend credentials of a live session.
func (a *Accessor) Credentials() (models.Credentials, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentLocked().Status != StatusAuthenticated {
		return models.Credentials{}, false
	}
	return a.claims.Credentials, true
}

// Login authenticates against the backend and, unless a later operation began
// in the meantime, issues and stores a new session token. A failed login
// leaves the current state untouched.
func (a *Accessor) Login(ctx context.Context, email, password string) (Snapshot, error) {
	if a.opts.Authenticator == nil {
		return a.Current(), errNoAuthenticator
	}
	op := a.begin()

	user, creds, err := a.opts.Authenticator.Authenticate(ctx, email, password)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		return a.snapshotLocked(), err
	}
	err = a.seq.commit(op, func(gen uint64) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return a.reissueLocked(user, creds, gen)
	})
	if errors.Is(err, ErrSuperseded) {
		a.log.Info("discarding superseded login", zap.String("user_id", user.ID))
	}
	return a.snapshotLocked(), err
}

// Logout clears the token, moves to unauthenticated and then navigates to the
// login surface. Logins still in flight for the same client are discarded and
// tokens issued before the logout no longer resolve.
func (a *Accessor) Logout() {
	a.seq.revoke()
	a.invalidate("logout")
	if a.opts.Navigate != nil {
		a.opts.Navigate(a.opts.LoginPath)
	}
}

// Invalidate drops the session without navigating, e.g. when the backend
// rejects the bearer token.
func (a *Accessor) Invalidate() {
	a.invalidate("invalidated")
}

func (a *Accessor) invalidate(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.Clear()
	if a.status != StatusUnauthenticated {
		a.log.Debug("session cleared", zap.String("reason", reason))
	}
	a.transitionLocked(StatusUnauthenticated, nil)
}

// Refresh silently re-validates a session older than the refresh age: the
// backend credentials are rotated and the token is re-issued wholesale. A
// rejected refresh ends the session; an unreachable backend keeps it until its
// absolute expiry.
func (a *Accessor) Refresh(ctx context.Context) (Snapshot, error) {
	a.mu.Lock()
	if a.currentLocked().Status != StatusAuthenticated || !a.tokens.NeedsRefresh(a.claims) {
		snap := a.snapshotLocked()
		a.mu.Unlock()
		return snap, nil
	}
	op, claims := a.seq.current(), a.claims
	a.mu.Unlock()

	creds := claims.Credentials
	var err error
	if a.opts.Refresher != nil && creds.RefreshToken != "" {
		creds, err = a.opts.Refresher.Refresh(ctx, creds.RefreshToken)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claims != claims {
		metrics.RecordRefresh("superseded")
		return a.snapshotLocked(), ErrSuperseded
	}
	if err != nil {
		return a.snapshotLocked(), a.backgroundFailureLocked("refresh", err)
	}
	err = a.seq.commit(op, func(gen uint64) error {
		return a.reissueLocked(claims.User, creds, gen)
	})
	switch {
	case errors.Is(err, ErrSuperseded):
		metrics.RecordRefresh("superseded")
	case err != nil:
		metrics.RecordRefresh("error")
	default:
		metrics.RecordRefresh("ok")
	}
	return a.snapshotLocked(), err
}

// ReloadPermissions refetches the permission list from the backend and
// re-issues the token with it.
func (a *Accessor) ReloadPermissions(ctx context.Context) (Snapshot, error) {
	a.mu.Lock()
	if a.currentLocked().Status != StatusAuthenticated {
		snap := a.snapshotLocked()
		a.mu.Unlock()
		return snap, ErrNotAuthenticated
	}
	op, claims := a.seq.current(), a.claims
	a.mu.Unlock()

	if a.opts.Permissions == nil {
		return a.Current(), errors.New("session: no permission source configured")
	}
	perms, err := a.opts.Permissions.FetchPermissions(ctx, claims.Credentials.AccessToken)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claims != claims {
		return a.snapshotLocked(), ErrSuperseded
	}
	if err != nil {
		return a.snapshotLocked(), a.backgroundFailureLocked("permissions", err)
	}
	user := claims.User
	user.Permissions = perms
	err = a.seq.commit(op, func(gen uint64) error {
		return a.reissueLocked(user, claims.Credentials, gen)
	})
	return a.snapshotLocked(), err
}

func (a *Accessor) backgroundFailureLocked(op string, err error) error {
	if errors.Is(err, backend.ErrInvalidCredentials) {
		a.log.Info("backend rejected session credentials", zap.String("op", op))
		a.store.Clear()
		a.transitionLocked(StatusUnauthenticated, nil)
		if op == "refresh" {
			metrics.RecordRefresh("rejected")
		}
		return err
	}
	a.log.Warn("keeping session after backend failure", zap.String("op", op), zap.String("category", backend.Category(err)), zap.Error(err))
	if op == "refresh" {
		metrics.RecordRefresh("unavailable")
	}
	return err
}

func (a *Accessor) begin() uint64 {
	return a.seq.begin()
}

func (a *Accessor) reissueLocked(user models.UserIdentity, creds models.Credentials, gen uint64) error {
	raw, err := a.tokens.IssueGeneration(user, creds, gen)
	if err != nil {
		return err
	}
	claims, err := a.tokens.Decode(raw)
	if err != nil {
		return err
	}
	a.store.Save(raw, auth.ExpiresAt(claims).Sub(a.tokens.Now()))
	a.transitionLocked(StatusAuthenticated, claims)
	return nil
}

func (a *Accessor) currentLocked() Snapshot {
	if a.status == StatusAuthenticated && !a.tokens.Now().Before(auth.ExpiresAt(a.claims)) {
		a.log.Debug("session expired")
		a.store.Clear()
		a.transitionLocked(StatusUnauthenticated, nil)
	}
	return a.snapshotLocked()
}

func (a *Accessor) transitionLocked(status Status, claims *auth.Claims) {
	a.status = status
	a.claims = claims
	if len(a.listeners) == 0 {
		return
	}
	snap := a.snapshotLocked()
	for _, fn := range a.listeners {
		fn(snap)
	}
}

func (a *Accessor) snapshotLocked() Snapshot {
	snap := Snapshot{Status: a.status}
	if a.status == StatusAuthenticated && a.claims != nil {
		user := a.claims.User.Normalized()
		snap.User = &user
		snap.ExpiresAt = auth.ExpiresAt(a.claims)
	}
	return snap
}
