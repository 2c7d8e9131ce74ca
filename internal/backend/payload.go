package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/rdbs-admin-be/internal/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Channel  string `json:"channel"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// loginEnvelope accepts the login body either at the top level or wrapped in "data".
type loginEnvelope struct {
	User         *backendUser   `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	Data         *loginEnvelope `json:"data"`
}

func (e *loginEnvelope) unwrap() *loginEnvelope {
	for e.User == nil && e.AccessToken == "" && e.Data != nil {
		e = e.Data
	}
	return e
}

type permissionsEnvelope struct {
	Permissions []json.RawMessage    `json:"permissions"`
	Data        *permissionsEnvelope `json:"data"`
}

type backendUser struct {
	ID                json.RawMessage   `json:"id"`
	Email             string            `json:"email"`
	Phone             *string           `json:"phone"`
	PhoneNumber       *string           `json:"phoneNumber"`
	Role              json.RawMessage   `json:"role"`
	UserType          string            `json:"userType"`
	Status            string            `json:"status"`
	IsVerified        bool              `json:"isVerified"`
	KYCStatus         string            `json:"kycStatus"`
	VerificationLevel string            `json:"verificationLevel"`
	CanHaveWallet     bool              `json:"canHaveWallet"`
	LastLoginAt       json.RawMessage   `json:"lastLoginAt"`
	CreatedAt         json.RawMessage   `json:"createdAt"`
	UpdatedAt         json.RawMessage   `json:"updatedAt"`
	Permissions       []json.RawMessage `json:"permissions"`
}

// namedRef covers backend objects that are referenced by name, e.g. {"name": "VIEW_USERS"}.
type namedRef struct {
	Name string `json:"name"`
}

// identity maps the untrusted backend user onto the canonical shape.
// id and email are mandatory; every other field falls back to its zero value
// and permissions default to an empty list.
func (u *backendUser) identity(log *zap.Logger) (models.UserIdentity, error) {
	if u == nil {
		return models.UserIdentity{}, fmt.Errorf("%w: user object missing", ErrMalformedResponse)
	}
	id, err := stringOrNumber(u.ID)
	if err != nil || id == "" {
		return models.UserIdentity{}, fmt.Errorf("%w: user id missing", ErrMalformedResponse)
	}
	email := strings.TrimSpace(u.Email)
	if email == "" {
		return models.UserIdentity{}, fmt.Errorf("%w: user email missing", ErrMalformedResponse)
	}
	role, err := stringOrName(u.Role)
	if err != nil {
		return models.UserIdentity{}, fmt.Errorf("%w: role: %v", ErrMalformedResponse, err)
	}
	perms, err := permissionNames(u.Permissions)
	if err != nil {
		return models.UserIdentity{}, err
	}

	user := models.UserIdentity{
		ID:                id,
		Email:             email,
		Phone:             firstNonEmpty(u.Phone, u.PhoneNumber),
		Role:              role,
		UserType:          u.UserType,
		Status:            u.Status,
		IsVerified:        u.IsVerified,
		KYCStatus:         u.KYCStatus,
		VerificationLevel: u.VerificationLevel,
		CanHaveWallet:     u.CanHaveWallet,
		Permissions:       perms,
	}
	if t, ok := timestamp(log, "lastLoginAt", u.LastLoginAt); ok {
		user.LastLoginAt = &t
	}
	user.CreatedAt, _ = timestamp(log, "createdAt", u.CreatedAt)
	user.UpdatedAt, _ = timestamp(log, "updatedAt", u.UpdatedAt)
	return user, nil
}

// timestampLayouts are the string forms seen from backend timestamp columns.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// timestamp parses RFC 3339, SQL-style and epoch (seconds or milliseconds)
// values. Anything else is dropped rather than failing the payload.
func timestamp(log *zap.Logger, field string, raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), true
		}
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil && n > 0 {
		if n >= 1e12 {
			return time.UnixMilli(int64(n)).UTC(), true
		}
		return time.Unix(int64(n), 0).UTC(), true
	}
	log.Debug("ignoring unparseable timestamp", zap.String("field", field), zap.String("value", text))
	return time.Time{}, false
}

func permissionNames(raw []json.RawMessage) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		name, err := stringOrName(item)
		if err != nil {
			return nil, fmt.Errorf("%w: permission: %v", ErrMalformedResponse, err)
		}
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

func stringOrNumber(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func stringOrName(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var ref namedRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", err
	}
	return strings.TrimSpace(ref.Name), nil
}

func firstNonEmpty(values ...*string) *string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			trimmed := strings.TrimSpace(*v)
			return &trimmed
		}
	}
	return nil
}
