package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Append(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
				INSERT INTO ed_audit_log (
					id, tenant_id, user_id, entity_type, entity_id, related_id, action, before, after, ip, recorded_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				e.ID, e.TenantID, e.UserID, e.EntityType, e.EntityID, e.RelatedID, e.Action,
				nullJSON(e.Before), []byte(e.After), e.IP, e.Timestamp,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func nullJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func (r *repoPG) Query(ctx context.Context, tenantID string, q Query) ([]*Entry, int, error) {
	where := `tenant_id = $1 AND entity_type = $2 AND (entity_id = $3 OR related_id = $3)
		AND ($4::timestamptz IS NULL OR recorded_at >= $4)
		AND ($5::timestamptz IS NULL OR recorded_at <= $5)`
	args := []any{tenantID, q.EntityType, q.EntityID, q.From, q.To}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ed_audit_log WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, entity_type, entity_id, related_id, action, before, after, ip, recorded_at
		FROM ed_audit_log WHERE `+where+`
		ORDER BY recorded_at, seq
		LIMIT $6 OFFSET $7`, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var before, after []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.EntityType, &e.EntityID,
			&e.RelatedID, &e.Action, &before, &after, &e.IP, &e.Timestamp); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Before, e.After = before, after
		out = append(out, &e)
	}
	return out, total, rows.Err()
}
