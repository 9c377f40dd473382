package db

import (
	"fmt"
	"regexp"
)

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateTenantID rejects empty or malformed tenant identifiers. Every
// tenant-scoped query filters on the value, so it must never be blank.
func ValidateTenantID(tenantID string) error {
	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant identifier: %q", tenantID)
	}
	return nil
}
