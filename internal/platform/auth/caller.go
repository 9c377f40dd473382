package auth

import (
	"context"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
)

type contextKey string

const callerKey contextKey = "ed_caller"

// Caller is the authenticated principal of a request. TenantID comes only
// from the verified token and scopes every read and write.
type Caller struct {
	TenantID    string   `json:"tenant_id"`
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
	IP          string   `json:"ip,omitempty"`
}

// Has reports whether the caller holds perm, either directly or through the
// wildcard grant.
func (c Caller) Has(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm || p == PermAll {
			return true
		}
	}
	return false
}

// Validate fails closed on a caller without a usable tenant or user.
func (c Caller) Validate() error {
	if err := db.ValidateTenantID(c.TenantID); err != nil {
		return apperror.Validation("caller has no valid tenant")
	}
	if c.UserID == "" {
		return apperror.Validation("caller has no user id")
	}
	return nil
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey).(Caller)
	return c, ok
}
