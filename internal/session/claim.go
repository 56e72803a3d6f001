package session

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies what a session token authorizes.
type Kind string

const (
	KindClassSession Kind = "class_session"
	KindTeacherSelf  Kind = "teacher_self"
)

// PurposeCheckIn is the only purpose a teacher self-attendance token carries.
const PurposeCheckIn = "check_in"

var (
	// ErrUnknownKind is returned for kinds outside the closed set above.
	ErrUnknownKind = errors.New("unknown session kind")
	// ErrInvalidClaim is returned when a claim's variant does not match its kind.
	ErrInvalidClaim = errors.New("invalid session claim")
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindClassSession, KindTeacherSelf:
		return true
	default:
		return false
	}
}

// ClassSession holds the fields of a class_session claim.
type ClassSession struct {
	Subject         string `json:"subject"`
	ClassName       string `json:"class_name"`
	Section         string `json:"section"`
	Period          int    `json:"period"`
	InstitutionCode string `json:"institution_code"`
}

// TeacherSelf holds the fields of a teacher_self claim.
type TeacherSelf struct {
	InstitutionCode string `json:"institution_code"`
	Purpose         string `json:"purpose"`
}

// Claim is the payload carried inside a session token. Exactly one of
// Class or Self is set, matching Kind.
type Claim struct {
	SessionID string        `json:"session_id"`
	IssuerID  string        `json:"issuer_id"`
	IssuedAt  time.Time     `json:"issued_at"`
	Kind      Kind          `json:"kind"`
	Class     *ClassSession `json:"class,omitempty"`
	Self      *TeacherSelf  `json:"self,omitempty"`
}

// InstitutionCode returns the institution the claim belongs to.
func (c Claim) InstitutionCode() string {
	switch c.Kind {
	case KindClassSession:
		if c.Class != nil {
			return c.Class.InstitutionCode
		}
	case KindTeacherSelf:
		if c.Self != nil {
			return c.Self.InstitutionCode
		}
	}
	return ""
}

// Validate checks the discriminant against the populated variant.
func (c Claim) Validate() error {
	if c.SessionID == "" || c.IssuerID == "" || c.IssuedAt.IsZero() {
		return fmt.Errorf("%w: session id, issuer and issue time are required", ErrInvalidClaim)
	}
	switch c.Kind {
	case KindClassSession:
		if c.Class == nil || c.Self != nil {
			return fmt.Errorf("%w: class_session claim must carry class fields only", ErrInvalidClaim)
		}
		if c.Class.Subject == "" || c.Class.ClassName == "" || c.Class.InstitutionCode == "" {
			return fmt.Errorf("%w: subject, class name and institution are required", ErrInvalidClaim)
		}
		if c.Class.Period < 0 {
			return fmt.Errorf("%w: period must not be negative", ErrInvalidClaim)
		}
	case KindTeacherSelf:
		if c.Self == nil || c.Class != nil {
			return fmt.Errorf("%w: teacher_self claim must carry self fields only", ErrInvalidClaim)
		}
		if c.Self.InstitutionCode == "" {
			return fmt.Errorf("%w: institution is required", ErrInvalidClaim)
		}
		if c.Self.Purpose != PurposeCheckIn {
			return fmt.Errorf("%w: unsupported purpose %q", ErrInvalidClaim, c.Self.Purpose)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	return nil
}
