package assignment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Bed struct {
	ID        uuid.UUID `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Zone      string    `json:"zone"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

// BedAssignment places an encounter in a bed. A row is active while
// UnassignedAt is nil; a bed and an encounter each have at most one active row.
type BedAssignment struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         string     `json:"tenant_id"`
	EncounterID      uuid.UUID  `json:"encounter_id"`
	BedID            uuid.UUID  `json:"bed_id"`
	AssignedAt       time.Time  `json:"assigned_at"`
	UnassignedAt     *time.Time `json:"unassigned_at"`
	AssignedByUserID string     `json:"assigned_by_user_id"`
}

func (a *BedAssignment) Active() bool { return a.UnassignedAt == nil }

type StaffRole string

const (
	RolePrimaryDoctor StaffRole = "PRIMARY_DOCTOR"
	RolePrimaryNurse  StaffRole = "PRIMARY_NURSE"
	RoleDoctor        StaffRole = "DOCTOR"
	RoleNurse         StaffRole = "NURSE"
	RoleConsultant    StaffRole = "CONSULTANT"
)

var staffRoles = map[StaffRole]bool{
	RolePrimaryDoctor: true,
	RolePrimaryNurse:  true,
	RoleDoctor:        true,
	RoleNurse:         true,
	RoleConsultant:    true,
}

func ParseStaffRole(s string) (StaffRole, bool) {
	r := StaffRole(strings.ToUpper(strings.TrimSpace(s)))
	return r, staffRoles[r]
}

// StaffAssignment gives a user a role on an encounter. At most one row per
// (encounter, role) is active.
type StaffAssignment struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         string     `json:"tenant_id"`
	EncounterID      uuid.UUID  `json:"encounter_id"`
	UserID           string     `json:"user_id"`
	Role             StaffRole  `json:"role"`
	AssignedAt       time.Time  `json:"assigned_at"`
	UnassignedAt     *time.Time `json:"unassigned_at"`
	AssignedByUserID string     `json:"assigned_by_user_id"`
}

// BedOccupancy is a bed with its active assignment, if any. Vacant beds carry
// nil occupancy fields.
type BedOccupancy struct {
	Bed               *Bed           `json:"bed"`
	Assignment        *BedAssignment `json:"assignment"`
	ActiveEncounterID *uuid.UUID     `json:"active_encounter_id"`
	PatientName       *string        `json:"patient_name"`
}

// UnassignTarget selects the active bed assignment to close. Exactly one
// field must be set.
type UnassignTarget struct {
	BedID       *uuid.UUID `json:"bed_id"`
	EncounterID *uuid.UUID `json:"encounter_id"`
}
