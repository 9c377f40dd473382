package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
)

type bedRepoPG struct{ pool *pgxpool.Pool }

func NewBedRepoPG(pool *pgxpool.Pool) BedRepository { return &bedRepoPG{pool: pool} }

func (r *bedRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const bedCols = `id, tenant_id, zone, label, created_at`

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.TenantID, &b.Zone, &b.Label, &b.CreatedAt)
	if db.IsNotFound(err) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bedRepoPG) CreateBed(ctx context.Context, b *Bed) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO ed_bed (`+bedCols+`) VALUES ($1,$2,$3,$4,$5)`,
		b.ID, b.TenantID, b.Zone, b.Label, b.CreatedAt)
	return err
}

func (r *bedRepoPG) GetBed(ctx context.Context, tenantID string, id uuid.UUID) (*Bed, error) {
	return scanBed(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bedCols+` FROM ed_bed WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (r *bedRepoPG) GetBedForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*Bed, error) {
	return scanBed(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bedCols+` FROM ed_bed WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
}

func (r *bedRepoPG) ListBeds(ctx context.Context, tenantID string) ([]*Bed, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+bedCols+` FROM ed_bed WHERE tenant_id = $1 ORDER BY zone, label`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const bedAssignCols = `id, tenant_id, encounter_id, bed_id, assigned_at, unassigned_at, assigned_by_user_id`

func scanBedAssignment(row pgx.Row) (*BedAssignment, error) {
	var a BedAssignment
	err := row.Scan(&a.ID, &a.TenantID, &a.EncounterID, &a.BedID, &a.AssignedAt, &a.UnassignedAt, &a.AssignedByUserID)
	if db.IsNotFound(err) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *bedRepoPG) ActiveByBed(ctx context.Context, tenantID string, bedID uuid.UUID) (*BedAssignment, error) {
	return scanBedAssignment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+bedAssignCols+` FROM ed_bed_assignment
		WHERE tenant_id = $1 AND bed_id = $2 AND unassigned_at IS NULL
		FOR UPDATE`, tenantID, bedID))
}

func (r *bedRepoPG) ActiveByEncounter(ctx context.Context, tenantID string, encounterID uuid.UUID) (*BedAssignment, error) {
	return scanBedAssignment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+bedAssignCols+` FROM ed_bed_assignment
		WHERE tenant_id = $1 AND encounter_id = $2 AND unassigned_at IS NULL
		FOR UPDATE`, tenantID, encounterID))
}

func (r *bedRepoPG) ListActive(ctx context.Context, tenantID string) ([]*BedAssignment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+bedAssignCols+` FROM ed_bed_assignment
		WHERE tenant_id = $1 AND unassigned_at IS NULL`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*BedAssignment
	for rows.Next() {
		a, err := scanBedAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *bedRepoPG) Insert(ctx context.Context, a *BedAssignment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ed_bed_assignment (`+bedAssignCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.TenantID, a.EncounterID, a.BedID, a.AssignedAt, a.UnassignedAt, a.AssignedByUserID)
	return err
}

func (r *bedRepoPG) Close(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE ed_bed_assignment SET unassigned_at = $3
		WHERE tenant_id = $1 AND id = $2 AND unassigned_at IS NULL`, tenantID, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

type staffRepoPG struct{ pool *pgxpool.Pool }

func NewStaffRepoPG(pool *pgxpool.Pool) StaffRepository { return &staffRepoPG{pool: pool} }

func (r *staffRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const staffCols = `id, tenant_id, encounter_id, user_id, role, assigned_at, unassigned_at, assigned_by_user_id`

func scanStaff(row pgx.Row) (*StaffAssignment, error) {
	var a StaffAssignment
	err := row.Scan(&a.ID, &a.TenantID, &a.EncounterID, &a.UserID, &a.Role, &a.AssignedAt, &a.UnassignedAt, &a.AssignedByUserID)
	if db.IsNotFound(err) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *staffRepoPG) ActiveByRole(ctx context.Context, tenantID string, encounterID uuid.UUID, role StaffRole) (*StaffAssignment, error) {
	return scanStaff(r.conn(ctx).QueryRow(ctx, `
		SELECT `+staffCols+` FROM ed_staff_assignment
		WHERE tenant_id = $1 AND encounter_id = $2 AND role = $3 AND unassigned_at IS NULL
		FOR UPDATE`, tenantID, encounterID, role))
}

func (r *staffRepoPG) ListActive(ctx context.Context, tenantID string, encounterIDs []uuid.UUID) ([]*StaffAssignment, error) {
	if len(encounterIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+staffCols+` FROM ed_staff_assignment
		WHERE tenant_id = $1 AND encounter_id = ANY($2) AND unassigned_at IS NULL
		ORDER BY assigned_at`, tenantID, encounterIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*StaffAssignment
	for rows.Next() {
		a, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *staffRepoPG) Insert(ctx context.Context, a *StaffAssignment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ed_staff_assignment (`+staffCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.TenantID, a.EncounterID, a.UserID, a.Role, a.AssignedAt, a.UnassignedAt, a.AssignedByUserID)
	return err
}

func (r *staffRepoPG) Close(ctx context.Context, tenantID string, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE ed_staff_assignment SET unassigned_at = $3
		WHERE tenant_id = $1 AND id = $2 AND unassigned_at IS NULL`, tenantID, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}
