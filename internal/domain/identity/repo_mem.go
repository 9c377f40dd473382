package identity

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
)

type memRepo struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient
	counters map[string]int64
}

func NewMemoryRepo() Repository {
	return &memRepo{
		patients: make(map[uuid.UUID]*Patient),
		counters: make(map[string]int64),
	}
}

func (r *memRepo) Create(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.patients {
		if existing.TenantID != p.TenantID {
			continue
		}
		if p.MRN != nil && existing.MRN != nil && *p.MRN == *existing.MRN {
			return db.ErrUniqueViolation
		}
		if p.TempMRN != nil && existing.TempMRN != nil && *p.TempMRN == *existing.TempMRN {
			return db.ErrUniqueViolation
		}
	}
	cp := *p
	r.patients[p.ID] = &cp
	db.OnRollback(ctx, func() {
		r.mu.Lock()
		delete(r.patients, p.ID)
		r.mu.Unlock()
	})
	return nil
}

func (r *memRepo) GetByID(_ context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok || p.TenantID != tenantID {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) GetByMRN(_ context.Context, tenantID, mrn string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patients {
		if p.TenantID == tenantID && p.MRN != nil && *p.MRN == mrn {
			cp := *p
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (r *memRepo) GetMany(_ context.Context, tenantID string, ids []uuid.UUID) (map[uuid.UUID]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uuid.UUID]*Patient, len(ids))
	for _, id := range ids {
		if p, ok := r.patients[id]; ok && p.TenantID == tenantID {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *memRepo) Search(_ context.Context, tenantID, query string, limit int) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(query)
	contains := func(s *string) bool {
		return s != nil && strings.Contains(strings.ToLower(*s), q)
	}

	var out []*Patient
	for _, p := range r.patients {
		if p.TenantID != tenantID {
			continue
		}
		if contains(&p.FullName) || contains(p.MRN) || contains(p.TempMRN) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) NextTempMRN(ctx context.Context, tenantID, prefix string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tenantID + "/" + prefix
	r.counters[key]++
	return r.counters[key], nil
}
