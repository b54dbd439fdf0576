package auth

import "time"

// RoleAdmin is the only role admitted to the dashboard.
const RoleAdmin = "admin"

// NoAccessMessage is shown when an authenticated user lacks the admin role.
const NoAccessMessage = "You do not have access to this dashboard."

// User represents a staff account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionRecord is a row from the sessions audit table.
type SessionRecord struct {
	ID     string
	UserID int64
}
