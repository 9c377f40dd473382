package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/Yousefxll/HospitalOS2-sub009/pkg/pagination"
)

type memRepo struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryRepo returns an in-process audit log.
func NewMemoryRepo() Repository {
	return &memRepo{}
}

func (r *memRepo) Append(_ context.Context, entries []Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *memRepo) Query(_ context.Context, tenantID string, q Query) ([]*Entry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Entry
	for i := range r.entries {
		e := r.entries[i]
		if e.TenantID != tenantID || e.EntityType != q.EntityType {
			continue
		}
		if e.EntityID != q.EntityID && (e.RelatedID == nil || *e.RelatedID != q.EntityID) {
			continue
		}
		if q.From != nil && e.Timestamp.Before(*q.From) {
			continue
		}
		if q.To != nil && e.Timestamp.After(*q.To) {
			continue
		}
		matched = append(matched, &e)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	return pagination.Page(matched, pagination.Params{Limit: q.Limit, Offset: q.Offset}), len(matched), nil
}
