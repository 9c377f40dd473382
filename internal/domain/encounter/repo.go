package encounter

import (
	"context"

	"github.com/google/uuid"
)

// Repository reads and writes encounters and their dependent documents.
// Every method is scoped to tenantID; rows of other tenants behave as absent
// and yield db.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, e *Encounter) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Encounter, error)
	// GetForUpdate locks the encounter row until the surrounding unit ends.
	GetForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*Encounter, error)
	GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*Encounter, error)
	GetMany(ctx context.Context, tenantID string, ids []uuid.UUID) (map[uuid.UUID]*Encounter, error)
	Update(ctx context.Context, e *Encounter) error
	ListOpen(ctx context.Context, tenantID string) ([]*Encounter, error)

	AddStatusHistory(ctx context.Context, h *StatusHistory) error
	ListStatusHistory(ctx context.Context, tenantID string, encounterID uuid.UUID) ([]*StatusHistory, error)

	GetNote(ctx context.Context, tenantID string, encounterID uuid.UUID) (*Note, error)
	CreateNote(ctx context.Context, n *Note) error
	UpdateNote(ctx context.Context, n *Note) error

	GetTriage(ctx context.Context, tenantID string, encounterID uuid.UUID) (*TriageAssessment, error)
	ListTriage(ctx context.Context, tenantID string, encounterIDs []uuid.UUID) (map[uuid.UUID]*TriageAssessment, error)
	CreateTriage(ctx context.Context, t *TriageAssessment) error
	UpdateTriage(ctx context.Context, t *TriageAssessment) error
}
