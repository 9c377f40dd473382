package encounter

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
)

type memRepo struct {
	mu         sync.RWMutex
	encounters map[uuid.UUID]*Encounter
	history    []*StatusHistory
	notes      map[uuid.UUID]*Note
	triage     map[uuid.UUID]*TriageAssessment
}

// NewMemoryRepo returns a Repository kept in process memory. Row locks are
// provided by db.LocalTxRunner, which serialises units of work.
func NewMemoryRepo() Repository {
	return &memRepo{
		encounters: make(map[uuid.UUID]*Encounter),
		notes:      make(map[uuid.UUID]*Note),
		triage:     make(map[uuid.UUID]*TriageAssessment),
	}
}

func (r *memRepo) Create(ctx context.Context, e *Encounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.IdempotencyKey != nil {
		for _, x := range r.encounters {
			if x.TenantID == e.TenantID && x.IdempotencyKey != nil && *x.IdempotencyKey == *e.IdempotencyKey {
				return db.ErrUniqueViolation
			}
		}
	}
	r.encounters[e.ID] = e.clone()
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.encounters, e.ID)
		r.mu.Unlock()
	})
	return nil
}

func (r *memRepo) get(tenantID string, id uuid.UUID) (*Encounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.encounters[id]
	if !ok || e.TenantID != tenantID {
		return nil, db.ErrNotFound
	}
	return e.clone(), nil
}

func (r *memRepo) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Encounter, error) {
	return r.get(tenantID, id)
}

func (r *memRepo) GetForUpdate(_ context.Context, tenantID string, id uuid.UUID) (*Encounter, error) {
	return r.get(tenantID, id)
}

func (r *memRepo) GetByIdempotencyKey(_ context.Context, tenantID, key string) (*Encounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.encounters {
		if e.TenantID == tenantID && e.IdempotencyKey != nil && *e.IdempotencyKey == key {
			return e.clone(), nil
		}
	}
	return nil, db.ErrNotFound
}

func (r *memRepo) GetMany(_ context.Context, tenantID string, ids []uuid.UUID) (map[uuid.UUID]*Encounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uuid.UUID]*Encounter, len(ids))
	for _, id := range ids {
		if e, ok := r.encounters[id]; ok && e.TenantID == tenantID {
			out[id] = e.clone()
		}
	}
	return out, nil
}

func (r *memRepo) Update(ctx context.Context, e *Encounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.encounters[e.ID]
	if !ok || prev.TenantID != e.TenantID {
		return db.ErrNotFound
	}
	r.encounters[e.ID] = e.clone()
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		r.encounters[e.ID] = prev
		r.mu.Unlock()
	})
	return nil
}

func (r *memRepo) ListOpen(_ context.Context, tenantID string) ([]*Encounter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Encounter
	for _, e := range r.encounters {
		if e.TenantID == tenantID && e.ClosedAt == nil {
			out = append(out, e.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (r *memRepo) AddStatusHistory(ctx context.Context, h *StatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *h
	r.history = append(r.history, &cp)
	n := len(r.history)
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		r.history = r.history[:n-1]
		r.mu.Unlock()
	})
	return nil
}

func (r *memRepo) ListStatusHistory(_ context.Context, tenantID string, encounterID uuid.UUID) ([]*StatusHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*StatusHistory
	for _, h := range r.history {
		if h.TenantID == tenantID && h.EncounterID == encounterID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) GetNote(_ context.Context, tenantID string, encounterID uuid.UUID) (*Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notes[encounterID]
	if !ok || n.TenantID != tenantID {
		return nil, db.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *memRepo) CreateNote(ctx context.Context, n *Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.notes[n.EncounterID]; exists {
		return db.ErrUniqueViolation
	}
	cp := *n
	r.notes[n.EncounterID] = &cp
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.notes, n.EncounterID)
		r.mu.Unlock()
	})
	return nil
}

func (r *memRepo) UpdateNote(ctx context.Context, n *Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.notes[n.EncounterID]
	if !ok || prev.TenantID != n.TenantID {
		return db.ErrNotFound
	}
	cp := *n
	r.notes[n.EncounterID] = &cp
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		r.notes[n.EncounterID] = prev
		r.mu.Unlock()
	})
	return nil
}

func (r *memRepo) GetTriage(_ context.Context, tenantID string, encounterID uuid.UUID) (*TriageAssessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.triage[encounterID]
	if !ok || t.TenantID != tenantID {
		return nil, db.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) ListTriage(_ context.Context, tenantID string, encounterIDs []uuid.UUID) (map[uuid.UUID]*TriageAssessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uuid.UUID]*TriageAssessment, len(encounterIDs))
	for _, id := range encounterIDs {
		if t, ok := r.triage[id]; ok && t.TenantID == tenantID {
			cp := *t
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *memRepo) CreateTriage(ctx context.Context, t *TriageAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.triage[t.EncounterID]; exists {
		return db.ErrUniqueViolation
	}
	cp := *t
	r.triage[t.EncounterID] = &cp
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.triage, t.EncounterID)
		r.mu.Unlock()
	})
	return nil
}

func (r *memRepo) UpdateTriage(ctx context.Context, t *TriageAssessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.triage[t.EncounterID]
	if !ok || prev.TenantID != t.TenantID {
		return db.ErrNotFound
	}
	cp := *t
	r.triage[t.EncounterID] = &cp
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		r.triage[t.EncounterID] = prev
		r.mu.Unlock()
	})
	return nil
}
