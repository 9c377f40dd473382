package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionAssign Action = "ASSIGN"
)

// Entity types recorded in the audit log.
const (
	EntityPatient         = "patient"
	EntityEncounter       = "encounter"
	EntityNote            = "encounter_note"
	EntityTriage          = "triage_assessment"
	EntityBed             = "bed"
	EntityBedAssignment   = "bed_assignment"
	EntityStaffAssignment = "staff_assignment"
)

// Entry is one append-only audit record. Before is null exactly for
// first-time creations. RelatedID names a second row of the same entity type
// that the change closed, so queries for that row find the entry too.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   string          `json:"tenant_id"`
	UserID     string          `json:"user_id"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	RelatedID  *uuid.UUID      `json:"related_id,omitempty"`
	Action     Action          `json:"action"`
	Before     json.RawMessage `json:"before"`
	After      json.RawMessage `json:"after"`
	IP         *string         `json:"ip,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

type Query struct {
	EntityType string
	EntityID   uuid.UUID
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
