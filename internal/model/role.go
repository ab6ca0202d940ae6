package model

import (
	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin         Role = "admin"
	RoleDoctor        Role = "doctor"
	RoleSecretary     Role = "secretary"
	RoleLabTechnician Role = "lab_technician"
	RoleAccountant    Role = "accountant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleSecretary, RoleLabTechnician, RoleAccountant:
		return true
	}
	return false
}

// Actor is the authenticated staff member performing an action
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name,omitempty"`
	Roles  []Role    `json:"roles"`
}

func (a Actor) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
