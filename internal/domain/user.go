package domain

import "time"

// User is an account able to authenticate. Role decides ticket privileges.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Skills       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the request identity for the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Role: u.Role}
}

// AssigneeRef is the display-safe form of an assigned actor.
type AssigneeRef struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}
