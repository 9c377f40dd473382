package encounter

import (
	"context"
	"encoding/json"
	"fmt"

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

const encCols = `id, tenant_id, patient_id, type, status, arrival_method, payment_status,
	triage_level, chief_complaint, started_at, closed_at, created_by_user_id, idempotency_key, updated_at`

func (r *repoPG) scanEnc(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.ID, &e.TenantID, &e.PatientID, &e.Type, &e.Status, &e.ArrivalMethod, &e.PaymentStatus,
		&e.TriageLevel, &e.ChiefComplaint, &e.StartedAt, &e.ClosedAt, &e.CreatedByUserID, &e.IdempotencyKey, &e.UpdatedAt)
	if db.IsNotFound(err) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repoPG) Create(ctx context.Context, e *Encounter) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ed_encounter (`+encCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.TenantID, e.PatientID, e.Type, e.Status, e.ArrivalMethod, e.PaymentStatus,
		e.TriageLevel, e.ChiefComplaint, e.StartedAt, e.ClosedAt, e.CreatedByUserID, e.IdempotencyKey, e.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Encounter, error) {
	return r.scanEnc(r.conn(ctx).QueryRow(ctx,
		`SELECT `+encCols+` FROM ed_encounter WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, tenantID string, id uuid.UUID) (*Encounter, error) {
	return r.scanEnc(r.conn(ctx).QueryRow(ctx,
		`SELECT `+encCols+` FROM ed_encounter WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
}

func (r *repoPG) GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*Encounter, error) {
	return r.scanEnc(r.conn(ctx).QueryRow(ctx,
		`SELECT `+encCols+` FROM ed_encounter WHERE tenant_id = $1 AND idempotency_key = $2`, tenantID, key))
}

func (r *repoPG) GetMany(ctx context.Context, tenantID string, ids []uuid.UUID) (map[uuid.UUID]*Encounter, error) {
	out := make(map[uuid.UUID]*Encounter, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+encCols+` FROM ed_encounter WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		e, err := r.scanEnc(rows)
		if err != nil {
			return nil, err
		}
		out[e.ID] = e
	}
	return out, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, e *Encounter) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE ed_encounter SET
			status = $3, arrival_method = $4, payment_status = $5, triage_level = $6,
			chief_complaint = $7, closed_at = $8, updated_at = $9
		WHERE tenant_id = $1 AND id = $2`,
		e.TenantID, e.ID, e.Status, e.ArrivalMethod, e.PaymentStatus, e.TriageLevel,
		e.ChiefComplaint, e.ClosedAt, e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) ListOpen(ctx context.Context, tenantID string) ([]*Encounter, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+encCols+` FROM ed_encounter
		WHERE tenant_id = $1 AND closed_at IS NULL
		ORDER BY started_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Encounter
	for rows.Next() {
		e, err := r.scanEnc(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repoPG) AddStatusHistory(ctx context.Context, h *StatusHistory) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ed_encounter_status_history (id, tenant_id, encounter_id, from_status, to_status, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		h.ID, h.TenantID, h.EncounterID, h.FromStatus, h.ToStatus, h.ChangedBy, h.ChangedAt)
	return err
}

func (r *repoPG) ListStatusHistory(ctx context.Context, tenantID string, encounterID uuid.UUID) ([]*StatusHistory, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, tenant_id, encounter_id, from_status, to_status, changed_by, changed_at
		FROM ed_encounter_status_history
		WHERE tenant_id = $1 AND encounter_id = $2
		ORDER BY changed_at, seq`, tenantID, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*StatusHistory
	for rows.Next() {
		var h StatusHistory
		if err := rows.Scan(&h.ID, &h.TenantID, &h.EncounterID, &h.FromStatus, &h.ToStatus, &h.ChangedBy, &h.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

const noteCols = `id, tenant_id, encounter_id, content, created_by_user_id, updated_by_user_id, created_at, updated_at`

func (r *repoPG) GetNote(ctx context.Context, tenantID string, encounterID uuid.UUID) (*Note, error) {
	var n Note
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+noteCols+` FROM ed_encounter_note WHERE tenant_id = $1 AND encounter_id = $2`,
		tenantID, encounterID).Scan(&n.ID, &n.TenantID, &n.EncounterID, &n.Content,
		&n.CreatedByUserID, &n.UpdatedByUserID, &n.CreatedAt, &n.UpdatedAt)
	if db.IsNotFound(err) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repoPG) CreateNote(ctx context.Context, n *Note) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ed_encounter_note (`+noteCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID, n.TenantID, n.EncounterID, n.Content, n.CreatedByUserID, n.UpdatedByUserID, n.CreatedAt, n.UpdatedAt)
	return err
}

func (r *repoPG) UpdateNote(ctx context.Context, n *Note) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE ed_encounter_note SET content = $3, updated_by_user_id = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2`,
		n.TenantID, n.ID, n.Content, n.UpdatedByUserID, n.UpdatedAt)
	return err
}

const triageCols = `id, tenant_id, encounter_id, nurse_user_id, triage_level, chief_complaint,
	pain_score, vitals, critical, created_at, updated_at`

func scanTriage(row pgx.Row) (*TriageAssessment, error) {
	var (
		t      TriageAssessment
		vitals []byte
	)
	err := row.Scan(&t.ID, &t.TenantID, &t.EncounterID, &t.NurseUserID, &t.TriageLevel, &t.ChiefComplaint,
		&t.PainScore, &vitals, &t.Critical, &t.CreatedAt, &t.UpdatedAt)
	if db.IsNotFound(err) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(vitals) > 0 {
		if err := json.Unmarshal(vitals, &t.Vitals); err != nil {
			return nil, fmt.Errorf("decode vitals: %w", err)
		}
	}
	return &t, nil
}

func (r *repoPG) GetTriage(ctx context.Context, tenantID string, encounterID uuid.UUID) (*TriageAssessment, error) {
	return scanTriage(r.conn(ctx).QueryRow(ctx,
		`SELECT `+triageCols+` FROM ed_triage_assessment WHERE tenant_id = $1 AND encounter_id = $2`,
		tenantID, encounterID))
}

func (r *repoPG) ListTriage(ctx context.Context, tenantID string, encounterIDs []uuid.UUID) (map[uuid.UUID]*TriageAssessment, error) {
	out := make(map[uuid.UUID]*TriageAssessment, len(encounterIDs))
	if len(encounterIDs) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+triageCols+` FROM ed_triage_assessment WHERE tenant_id = $1 AND encounter_id = ANY($2)`,
		tenantID, encounterIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanTriage(rows)
		if err != nil {
			return nil, err
		}
		out[t.EncounterID] = t
	}
	return out, rows.Err()
}

func (r *repoPG) CreateTriage(ctx context.Context, t *TriageAssessment) error {
	vitals, err := json.Marshal(t.Vitals)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO ed_triage_assessment (`+triageCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		t.ID, t.TenantID, t.EncounterID, t.NurseUserID, t.TriageLevel, t.ChiefComplaint,
		t.PainScore, vitals, t.Critical, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *repoPG) UpdateTriage(ctx context.Context, t *TriageAssessment) error {
	vitals, err := json.Marshal(t.Vitals)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE ed_triage_assessment SET
			nurse_user_id = $3, triage_level = $4, chief_complaint = $5,
			pain_score = $6, vitals = $7, critical = $8, updated_at = $9
		WHERE tenant_id = $1 AND id = $2`,
		t.TenantID, t.ID, t.NurseUserID, t.TriageLevel, t.ChiefComplaint,
		t.PainScore, vitals, t.Critical, t.UpdatedAt)
	return err
}
