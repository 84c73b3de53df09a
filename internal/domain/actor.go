package domain

import "github.com/google/uuid"

type Role string

const (
	RoleGuest  Role = "guest"
	RoleHost   Role = "host"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleGuest, RoleHost, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Actor is whoever asked for a state change. Background jobs act as RoleSystem.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

var SystemActor = Actor{Role: RoleSystem}

func (a Actor) IsPrivileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}
