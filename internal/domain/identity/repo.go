package identity

import (
	"context"

	"github.com/google/uuid"
)

// Repository methods return db.ErrNotFound for rows missing in the tenant.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error)
	GetByMRN(ctx context.Context, tenantID, mrn string) (*Patient, error)
	GetMany(ctx context.Context, tenantID string, ids []uuid.UUID) (map[uuid.UUID]*Patient, error)
	// Search matches query case-insensitively as a substring of full name,
	// MRN or temporary MRN.
	Search(ctx context.Context, tenantID, query string, limit int) ([]*Patient, error)
	// NextTempMRN atomically increments and returns the counter for
	// (tenant, prefix). Values start at 1.
	NextTempMRN(ctx context.Context, tenantID, prefix string) (int64, error)
}
