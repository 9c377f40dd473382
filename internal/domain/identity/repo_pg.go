package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, tenant_id, mrn, temp_mrn, is_unknown, full_name, gender, dob, approx_age, created_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ed_patient (`+patientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.TenantID, p.MRN, p.TempMRN, p.IsUnknown, p.FullName, p.Gender, p.DOB, p.ApproxAge, p.CreatedAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM ed_patient WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (r *repoPG) GetByMRN(ctx context.Context, tenantID, mrn string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM ed_patient WHERE tenant_id = $1 AND mrn = $2`, tenantID, mrn))
}

func (r *repoPG) GetMany(ctx context.Context, tenantID string, ids []uuid.UUID) (map[uuid.UUID]*Patient, error) {
	out := make(map[uuid.UUID]*Patient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM ed_patient WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *repoPG) Search(ctx context.Context, tenantID, query string, limit int) ([]*Patient, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM ed_patient
		WHERE tenant_id = $1
		  AND (full_name ILIKE $2 OR mrn ILIKE $2 OR temp_mrn ILIKE $2)
		ORDER BY full_name, created_at
		LIMIT $3`, tenantID, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) NextTempMRN(ctx context.Context, tenantID, prefix string) (int64, error) {
	var n int64
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ed_temp_mrn_counter (tenant_id, gender_prefix, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, gender_prefix)
		DO UPDATE SET value = ed_temp_mrn_counter.value + 1
		RETURNING value`, tenantID, prefix).Scan(&n)
	return n, err
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.TenantID, &p.MRN, &p.TempMRN, &p.IsUnknown, &p.FullName,
		&p.Gender, &p.DOB, &p.ApproxAge, &p.CreatedAt)
	if db.IsNotFound(err) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
