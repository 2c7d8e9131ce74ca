package dto

import (
	"time"

	"github.com/hongminglow/rdbs-admin-be/internal/models"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse mirrors the accessor snapshot on the wire.
type SessionResponse struct {
	Status  string               `json:"status"`
	User    *models.UserIdentity `json:"user,omitempty"`
	Expires *time.Time           `json:"expires,omitempty"`
}

type LogoutResponse struct {
	Redirect string `json:"redirect"`
}
