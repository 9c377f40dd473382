package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale    Gender = "MALE"
	GenderFemale  Gender = "FEMALE"
	GenderUnknown Gender = "UNKNOWN"
)

// NormalizeGender maps free-form input onto the enum. Anything
// unrecognised, including empty input, becomes UNKNOWN.
func NormalizeGender(s string) Gender {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MALE", "M":
		return GenderMale
	case "FEMALE", "F":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// TempMRNPrefix is the single-letter prefix of temporary MRNs.
func (g Gender) TempMRNPrefix() string {
	switch g {
	case GenderMale:
		return "M"
	case GenderFemale:
		return "F"
	default:
		return "U"
	}
}

func (g Gender) defaultName() string {
	switch g {
	case GenderMale:
		return "Unknown Male"
	case GenderFemale:
		return "Unknown Female"
	default:
		return "Unknown Patient"
	}
}

// FormatTempMRN renders counter value n as e.g. "M-000042".
func FormatTempMRN(prefix string, n int64) string {
	return fmt.Sprintf("%s-%06d", prefix, n)
}

// Patient is the minimal demographic record the ED needs. Exactly one of
// MRN and TempMRN is set, depending on IsUnknown.
type Patient struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  string     `json:"tenant_id"`
	MRN       *string    `json:"mrn"`
	TempMRN   *string    `json:"temp_mrn"`
	IsUnknown bool       `json:"is_unknown"`
	FullName  string     `json:"full_name"`
	Gender    Gender     `json:"gender"`
	DOB       *time.Time `json:"dob,omitempty"`
	ApproxAge *int       `json:"approx_age,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// DisplayMRN returns the MRN, falling back to the temporary MRN.
func (p *Patient) DisplayMRN() string {
	if p.MRN != nil && *p.MRN != "" {
		return *p.MRN
	}
	if p.TempMRN != nil && *p.TempMRN != "" {
		return *p.TempMRN
	}
	return "N/A"
}

// Lookup identifies a known patient by id or MRN. PatientID wins when both
// are present.
type Lookup struct {
	PatientID *uuid.UUID
	MRN       string
}

type UnknownPatientInput struct {
	FullName  string `json:"full_name"`
	Gender    string `json:"gender"`
	ApproxAge *int   `json:"approx_age"`
}

type KnownPatientInput struct {
	MRN      string     `json:"mrn" validate:"required,max=64"`
	FullName string     `json:"full_name" validate:"required,max=255"`
	Gender   string     `json:"gender"`
	DOB      *time.Time `json:"dob"`
}
