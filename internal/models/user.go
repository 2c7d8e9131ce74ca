package models

import "time"

// UserIdentity captures the canonical staff record embedded in a session.
type UserIdentity struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Phone             *string    `json:"phone"`
	Role              string     `json:"role"`
	UserType          string     `json:"userType"`
	Status            string     `json:"status"`
	IsVerified        bool       `json:"isVerified"`
	KYCStatus         string     `json:"kycStatus"`
	VerificationLevel string     `json:"verificationLevel"`
	CanHaveWallet     bool       `json:"canHaveWallet"`
	LastLoginAt       *time.Time `json:"lastLoginAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	Permissions       []string   `json:"permissions"`
}

// StatusActive is the only status the backend reports for usable accounts.
const StatusActive = "ACTIVE"

// Normalized returns a copy whose permission list is never nil.
func (u UserIdentity) Normalized() UserIdentity {
	if u.Permissions == nil {
		u.Permissions = []string{}
		return u
	}
	perms := make([]string, len(u.Permissions))
	copy(perms, u.Permissions)
	u.Permissions = perms
	return u
}

// Credentials are the backend artifacts used to call the API on the user's behalf.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
