package audit

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/metrics"
)

const maxQueryLimit = 500

// Recorder writes audit entries after the primary mutation has committed. A
// failed write never undoes the mutation; it is logged, counted and reported
// to the caller as apperror.KindAuditDegraded.
type Recorder struct {
	repo    Repository
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRecorder(repo Repository, logger zerolog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger.With().Str("component", "audit").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *Recorder) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Change builds an entry attributed to caller. before and after are
// snapshotted as JSON; a nil before marks a creation.
func Change(caller auth.Caller, entityType string, entityID uuid.UUID, action Action, before, after any) Entry {
	e := Entry{
		TenantID:   caller.TenantID,
		UserID:     caller.UserID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Before:     snapshot(before),
		After:      snapshot(after),
	}
	if caller.IP != "" {
		ip := caller.IP
		e.IP = &ip
	}
	return e
}

func snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"snapshot_error": err.Error()})
	}
	return b
}

// Record appends entries in order. Entries without a timestamp are stamped a
// microsecond apart so the batch order survives any sort by time. It ignores
// cancellation of ctx because the mutation it describes has already
// committed.
func (r *Recorder) Record(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	ts := r.now()
	for i := range entries {
		if entries[i].ID == uuid.Nil {
			entries[i].ID = uuid.New()
		}
		if entries[i].Timestamp.IsZero() {
			entries[i].Timestamp = ts.Add(time.Duration(i) * time.Microsecond)
		}
	}

	if err := r.repo.Append(ctx, entries); err != nil {
		first := entries[0]
		r.logger.Error().Err(err).
			Bool("audit_degraded", true).
			Str("tenant_id", first.TenantID).
			Str("user_id", first.UserID).
			Str("entity_type", first.EntityType).
			Str("entity_id", first.EntityID.String()).
			Str("action", string(first.Action)).
			Int("entries", len(entries)).
			Msg("audit write failed after commit")
		r.metrics.ObserveAuditDegraded()
		return apperror.AuditDegraded(err)
	}

	for _, e := range entries {
		r.metrics.ObserveAudit(e.EntityType, string(e.Action))
	}
	return nil
}

// Query returns entries for one entity of the caller's tenant, oldest first.
func (r *Recorder) Query(ctx context.Context, caller auth.Caller, q Query) ([]*Entry, int, error) {
	if err := caller.Validate(); err != nil {
		return nil, 0, err
	}
	if q.EntityType == "" {
		return nil, 0, apperror.Validation("entity_type is required")
	}
	if q.EntityID == uuid.Nil {
		return nil, 0, apperror.Validation("entity_id is required")
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, 0, apperror.Validation("to must not be before from")
	}
	if q.Limit <= 0 || q.Limit > maxQueryLimit {
		q.Limit = maxQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	entries, total, err := r.repo.Query(ctx, caller.TenantID, q)
	if err != nil {
		return nil, 0, apperror.Wrap(err, "query audit log")
	}
	return entries, total, nil
}
