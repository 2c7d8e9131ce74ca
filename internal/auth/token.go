package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hongminglow/rdbs-admin-be/internal/models"
)

// claimsVersion is bumped whenever the embedded identity shape changes.
const claimsVersion = 1

var (
	// ErrTokenExpired indicates a well-signed token past its absolute lifetime.
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenInvalid indicates a token that failed signature or shape validation.
	ErrTokenInvalid = errors.New("session token invalid")
)

// Claims is the decoded content of a session token.
type Claims struct {
	Version     int                 `json:"ver"`
	User        models.UserIdentity `json:"user"`
	Credentials models.Credentials  `json:"creds"`
	// Generation orders tokens of one client; logout refuses older ones.
	Generation  uint64              `json:"gen,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and decodes signed session tokens.
type TokenManager struct {
	secret     []byte
	issuer     string
	ttl        time.Duration
	refreshAge time.Duration
	now        func() time.Time
}

// NewTokenManager creates a manager with the provided secret, issuer, absolute
// lifetime, and the age after which a token is due for silent refresh.
func NewTokenManager(secret, issuer string, ttl, refreshAge time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		ttl:        ttl,
		refreshAge: refreshAge,
		now:        time.Now,
	}
}

// WithClock returns a copy of the manager that reads time from now.
func (t *TokenManager) WithClock(now func() time.Time) *TokenManager {
	cp := *t
	cp.now = now
	return &cp
}

// TTL returns the absolute token lifetime.
func (t *TokenManager) TTL() time.Duration {
	return t.ttl
}

// Now returns the manager's notion of the current time.
func (t *TokenManager) Now() time.Time {
	return t.now()
}

// Issue signs a token embedding the user and backend credentials.
func (t *TokenManager) Issue(user models.UserIdentity, creds models.Credentials) (string, error) {
	return t.IssueGeneration(user, creds, 0)
}

// IssueGeneration is Issue with the client's session generation stamped in.
func (t *TokenManager) IssueGeneration(user models.UserIdentity, creds models.Credentials, gen uint64) (string, error) {
	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.Email) == "" {
		return "", errors.New("issue session token: user id and email are required")
	}
	now := t.now()
	claims := Claims{
		Version:     claimsVersion,
		User:        user.Normalized(),
		Credentials: creds,
		Generation:  gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Decode verifies the token and returns its claims. Expiry is reported as
// ErrTokenExpired; every other failure as ErrTokenInvalid.
func (t *TokenManager) Decode(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrTokenInvalid
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Version != claimsVersion {
		return nil, fmt.Errorf("%w: claims version %d", ErrTokenInvalid, claims.Version)
	}
	if claims.User.ID == "" || claims.User.Email == "" || claims.Subject != claims.User.ID {
		return nil, fmt.Errorf("%w: identity missing", ErrTokenInvalid)
	}
	claims.User = claims.User.Normalized()
	return claims, nil
}

// NeedsRefresh reports whether the token is old enough for silent refresh.
func (t *TokenManager) NeedsRefresh(claims *Claims) bool {
	if claims == nil || claims.IssuedAt == nil {
		return false
	}
	return t.now().Sub(claims.IssuedAt.Time) >= t.refreshAge
}

// ExpiresAt returns the absolute expiry carried by claims.
func ExpiresAt(claims *Claims) time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
