package models

import (
	"time"
)

// Roles assigned to users.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an office employee who submits found-item forms.
// Users belong to one or more offices via office memberships.
type User struct {
	UserID       int64
	FirstName    string
	LastName     string
	Email        string // Lowercased, unique
	PasswordHash string // bcrypt
	Role         string

	CreatedAt time.Time
}
