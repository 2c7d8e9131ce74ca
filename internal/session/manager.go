package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/hongminglow/rdbs-admin-be/internal/auth"
	"github.com/hongminglow/rdbs-admin-be/internal/models"
)

// clientCookieMaxAge bounds how long a browser keeps its client id.
const clientCookieMaxAge = 400 * 24 * time.Hour

// Manager builds per-request accessors from shared collaborators. Requests of
// the same client, identified by a client id cookie, share one Sequence so a
// logout in one request defeats a login still running in another.
type Manager struct {
	tokens    *auth.TokenManager
	cookie    CookieConfig
	opts      Options
	clients   *clientRegistry
	anonymous *Sequence
}

// NewManager wires the shared collaborators. Concurrent refreshes of the same
// refresh token are collapsed into one backend call.
func NewManager(tokens *auth.TokenManager, cookie CookieConfig, opts Options) *Manager {
	if opts.Refresher != nil {
		opts.Refresher = &coalescingRefresher{next: opts.Refresher}
	}
	if cookie.ClientName == "" {
		cookie.ClientName = cookie.Name + "-client"
	}
	return &Manager{
		tokens:    tokens,
		cookie:    cookie,
		opts:      opts,
		clients:   newClientRegistry(tokens.TTL(), tokens.Now),
		anonymous: newSharedSequence(),
	}
}

// Tokens returns the token codec.
func (m *Manager) Tokens() *auth.TokenManager {
	return m.tokens
}

// ForRequest returns an unresolved accessor backed by the request cookie.
// Logout navigation is expressed as a Location header on w.
func (m *Manager) ForRequest(w http.ResponseWriter, r *http.Request) *Accessor {
	opts := m.opts
	opts.Sequence = m.sequenceFor(w, r)
	opts.Navigate = func(path string) {
		w.Header().Set("Location", path)
	}
	return NewAccessor(m.tokens, NewCookieStore(w, r, m.cookie), opts)
}

// sequenceFor returns the client's shared Sequence. A request without a client
// id is given one for its next request and served by the anonymous sequence.
func (m *Manager) sequenceFor(w http.ResponseWriter, r *http.Request) *Sequence {
	if c, err := r.Cookie(m.cookie.ClientName); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return m.clients.get(id.String())
		}
	}
	path := m.cookie.Path
	if path == "" {
		path = "/"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie.ClientName,
		Value:    uuid.NewString(),
		Path:     path,
		MaxAge:   int(clientCookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return m.anonymous
}

type clientEntry struct {
	seq  *Sequence
	seen time.Time
}

// clientRegistry keeps one Sequence per client id. Entries idle for longer
// than a session lifetime are dropped: no token of theirs can still resolve.
type clientRegistry struct {
	idle time.Duration
	now  func() time.Time

	mu        sync.Mutex
	entries   map[string]*clientEntry
	lastSweep time.Time
}

func newClientRegistry(idle time.Duration, now func() time.Time) *clientRegistry {
	return &clientRegistry{idle: idle, now: now, entries: make(map[string]*clientEntry), lastSweep: now()}
}

func (c *clientRegistry) get(id string) *Sequence {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Sub(c.lastSweep) >= c.idle/4 {
		for key, e := range c.entries {
			if now.Sub(e.seen) > c.idle {
				delete(c.entries, key)
			}
		}
		c.lastSweep = now
	}
	e, ok := c.entries[id]
	if !ok {
		e = &clientEntry{seq: NewSequence()}
		c.entries[id] = e
	}
	e.seen = now
	return e.seq
}

func (c *clientRegistry) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type coalescingRefresher struct {
	next  Refresher
	group singleflight.Group
}

func (c *coalescingRefresher) Refresh(ctx context.Context, refreshToken string) (models.Credentials, error) {
	v, err, _ := c.group.Do(refreshToken, func() (any, error) {
		return c.next.Refresh(ctx, refreshToken)
	})
	if err != nil {
		return models.Credentials{}, err
	}
	return v.(models.Credentials), nil
}

type contextKey struct{}

// NewContext returns ctx carrying the accessor.
func NewContext(ctx context.Context, a *Accessor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext retrieves the accessor placed by the session middleware.
func FromContext(ctx context.Context) *Accessor {
	a, _ := ctx.Value(contextKey{}).(*Accessor)
	return a
}

// SnapshotFromContext returns the current snapshot, or an unauthenticated one
// when no accessor is present.
func SnapshotFromContext(ctx context.Context) Snapshot {
	if a := FromContext(ctx); a != nil {
		return a.Current()
	}
	return Snapshot{Status: StatusUnauthenticated}
}

// SnapshotFromContextOrLoading is like SnapshotFromContext but reports loading
// when the session has not been resolved for this request.
func SnapshotFromContextOrLoading(ctx context.Context) Snapshot {
	if a := FromContext(ctx); a != nil {
		return a.Current()
	}
	return Snapshot{Status: StatusLoading}
}
