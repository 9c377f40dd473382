package audit

import "context"

// Repository only appends and reads; entries are never updated or deleted.
type Repository interface {
	// Append writes entries atomically and in order.
	Append(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, tenantID string, q Query) ([]*Entry, int, error)
}
