package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BedRepository stores beds and bed assignments. Active* lookups return
// db.ErrNotFound when no active row exists and lock the row they return until
// the surrounding unit ends.
type BedRepository interface {
	CreateBed(ctx context.Context, b *Bed) error
	GetBed(ctx context.Context, tenantID string, id uuid.UUID) (*Bed, error)
	GetBedForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*Bed, error)
	// ListBeds returns the tenant's beds ordered by zone then label.
	ListBeds(ctx context.Context, tenantID string) ([]*Bed, error)

	ActiveByBed(ctx context.Context, tenantID string, bedID uuid.UUID) (*BedAssignment, error)
	ActiveByEncounter(ctx context.Context, tenantID string, encounterID uuid.UUID) (*BedAssignment, error)
	ListActive(ctx context.Context, tenantID string) ([]*BedAssignment, error)
	Insert(ctx context.Context, a *BedAssignment) error
	// Close sets unassigned_at on an active row. It returns db.ErrNotFound if
	// the row is no longer active.
	Close(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error
}

type StaffRepository interface {
	ActiveByRole(ctx context.Context, tenantID string, encounterID uuid.UUID, role StaffRole) (*StaffAssignment, error)
	ListActive(ctx context.Context, tenantID string, encounterIDs []uuid.UUID) ([]*StaffAssignment, error)
	Insert(ctx context.Context, a *StaffAssignment) error
	Close(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error
}
