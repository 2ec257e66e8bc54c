package model

import "time"

// Roles carried in access tokens.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// User represents an account as stored in the `users` table.  The json
// tags are omitted because handlers define their own response types.
//
// Fields:
//  ID           – UUID of the user, used as the booking owner id.
//  Username     – unique login name.
//  PasswordHash – bcrypt hash of the password.
//  Role         – ADMIN or USER.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           string    // users.id
	Username     string    // users.username
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is never stored, only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    string     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
