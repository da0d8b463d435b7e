package auth

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// adminDomain grants the admin role to addresses under it.
const adminDomain = "@admin.com"

// User is the domain representation of an account in app_users.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Activities   []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	Name       string   `json:"name"`
	Activities []string `json:"activities"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Claims is what VerifyToken extracts from an access token.
type Claims struct {
	UserID    string
	Email     string
	Role      Role
	TokenID   string
	ExpiresAt time.Time
}
