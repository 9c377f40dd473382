package assignment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
)

type bedRepoMem struct {
	mu          sync.RWMutex
	beds        map[uuid.UUID]*Bed
	assignments map[uuid.UUID]*BedAssignment
}

// NewBedRepoMem returns an in-process BedRepository that enforces the same
// active-row uniqueness as the Postgres partial indexes.
func NewBedRepoMem() BedRepository {
	return &bedRepoMem{
		beds:        make(map[uuid.UUID]*Bed),
		assignments: make(map[uuid.UUID]*BedAssignment),
	}
}

func (r *bedRepoMem) CreateBed(ctx context.Context, b *Bed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.beds {
		if x.TenantID == b.TenantID && x.Zone == b.Zone && x.Label == b.Label {
			return db.ErrUniqueViolation
		}
	}
	cp := *b
	r.beds[b.ID] = &cp
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.beds, b.ID)
		r.mu.Unlock()
	})
	return nil
}

func (r *bedRepoMem) GetBed(_ context.Context, tenantID string, id uuid.UUID) (*Bed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.beds[id]
	if !ok || b.TenantID != tenantID {
		return nil, db.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *bedRepoMem) GetBedForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*Bed, error) {
	return r.GetBed(ctx, tenantID, id)
}

func (r *bedRepoMem) ListBeds(_ context.Context, tenantID string) ([]*Bed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Bed
	for _, b := range r.beds {
		if b.TenantID == tenantID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Zone != out[j].Zone {
			return out[i].Zone < out[j].Zone
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

func (r *bedRepoMem) findActive(match func(a *BedAssignment) bool) (*BedAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.assignments {
		if a.Active() && match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (r *bedRepoMem) ActiveByBed(_ context.Context, tenantID string, bedID uuid.UUID) (*BedAssignment, error) {
	return r.findActive(func(a *BedAssignment) bool { return a.TenantID == tenantID && a.BedID == bedID })
}

func (r *bedRepoMem) ActiveByEncounter(_ context.Context, tenantID string, encounterID uuid.UUID) (*BedAssignment, error) {
	return r.findActive(func(a *BedAssignment) bool { return a.TenantID == tenantID && a.EncounterID == encounterID })
}

func (r *bedRepoMem) ListActive(_ context.Context, tenantID string) ([]*BedAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*BedAssignment
	for _, a := range r.assignments {
		if a.TenantID == tenantID && a.Active() {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *bedRepoMem) Insert(ctx context.Context, a *BedAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Active() {
		for _, x := range r.assignments {
			if x.TenantID == a.TenantID && x.Active() && (x.BedID == a.BedID || x.EncounterID == a.EncounterID) {
				return db.ErrUniqueViolation
			}
		}
	}
	cp := *a
	r.assignments[a.ID] = &cp
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.assignments, a.ID)
		r.mu.Unlock()
	})
	return nil
}

func (r *bedRepoMem) Close(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok || a.TenantID != tenantID || !a.Active() {
		return db.ErrNotFound
	}
	closedAt := at
	a.UnassignedAt = &closedAt
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		a.UnassignedAt = nil
		r.mu.Unlock()
	})
	return nil
}

type staffRepoMem struct {
	mu          sync.RWMutex
	assignments map[uuid.UUID]*StaffAssignment
}

func NewStaffRepoMem() StaffRepository {
	return &staffRepoMem{assignments: make(map[uuid.UUID]*StaffAssignment)}
}

func (r *staffRepoMem) ActiveByRole(_ context.Context, tenantID string, encounterID uuid.UUID, role StaffRole) (*StaffAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.assignments {
		if a.TenantID == tenantID && a.EncounterID == encounterID && a.Role == role && a.UnassignedAt == nil {
			cp := *a
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (r *staffRepoMem) ListActive(_ context.Context, tenantID string, encounterIDs []uuid.UUID) ([]*StaffAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := make(map[uuid.UUID]bool, len(encounterIDs))
	for _, id := range encounterIDs {
		want[id] = true
	}
	var out []*StaffAssignment
	for _, a := range r.assignments {
		if a.TenantID == tenantID && want[a.EncounterID] && a.UnassignedAt == nil {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out, nil
}

func (r *staffRepoMem) Insert(ctx context.Context, a *StaffAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.UnassignedAt == nil {
		for _, x := range r.assignments {
			if x.TenantID == a.TenantID && x.EncounterID == a.EncounterID && x.Role == a.Role && x.UnassignedAt == nil {
				return db.ErrUniqueViolation
			}
		}
	}
	cp := *a
	r.assignments[a.ID] = &cp
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.assignments, a.ID)
		r.mu.Unlock()
	})
	return nil
}

func (r *staffRepoMem) Close(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok || a.TenantID != tenantID || a.UnassignedAt != nil {
		return db.ErrNotFound
	}
	closedAt := at
	a.UnassignedAt = &closedAt
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		a.UnassignedAt = nil
		r.mu.Unlock()
	})
	return nil
}
