package model

import "time"

// User is a row from the users table joined with its role name.
// PasswordHash is nil until the user completes the set-password flow.
type User struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	PasswordHash         *string    `json:"-"`
	RoleID               int        `json:"role_id"`
	RoleName             string     `json:"role_name"`
	ResetToken           *string    `json:"-"`
	ResetTokenExpiration *time.Time `json:"-"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// AuthClaims is the verified claim set of an access or refresh token.
type AuthClaims struct {
	UserID int64
	Name   string
	Role   string
}

// RefreshTokenRow mirrors a refresh_tokens row. TokenHash holds the
// SHA-256 of the raw signed token; the raw form is never persisted.
type RefreshTokenRow struct {
	ID        int64
	TokenHash string
	ExpiresAt time.Time
	UserID    int64
	Used      bool
	CreatedAt time.Time
}

// TokenPair is what authenticate and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// SessionUser is the shape returned by GET /api/auth/user.
type SessionUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	RoleName string `json:"role_name"`
}
