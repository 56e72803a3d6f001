package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/session"
)

var (
	// ErrDuplicateSession means the student already holds a record for the session.
	ErrDuplicateSession = errors.New("attendance already marked for this session")
	// ErrAlreadyCompleted means the teacher checked in and out for the day.
	ErrAlreadyCompleted = errors.New("attendance already completed for today")
	// ErrAlreadyCheckedIn is returned by Store.CheckIn when a record for the day exists.
	ErrAlreadyCheckedIn = errors.New("already checked in today")
)

// Action is the transition a teacher self-attendance redemption performed.
type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
)

// Record is a persisted attendance entry.
type Record struct {
	ID              string       `json:"id" db:"id"`
	Type            session.Kind `json:"attendance_type" db:"attendance_type"`
	SessionID       string       `json:"session_id" db:"session_id"`
	StudentID       *string      `json:"student_id,omitempty" db:"student_id"`
	TeacherID       string       `json:"teacher_id" db:"teacher_id"`
	InstitutionCode string       `json:"institution_code" db:"institution_code"`
	Subject         string       `json:"subject,omitempty" db:"subject"`
	ClassName       string       `json:"class_name,omitempty" db:"class_name"`
	Section         string       `json:"section,omitempty" db:"section"`
	Period          int          `json:"period,omitempty" db:"period"`
	Status          string       `json:"status" db:"status"`
	LateMinutes     int          `json:"late_minutes" db:"late_minutes"`
	ScanTime        time.Time    `json:"scan_time" db:"scan_time"`
	CheckIn         *time.Time   `json:"check_in,omitempty" db:"check_in"`
	CheckOut        *time.Time   `json:"check_out,omitempty" db:"check_out"`
	WorkHours       float64      `json:"work_hours" db:"work_hours"`
	Date            time.Time    `json:"date" db:"attendance_date"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// Reader is the read-only query surface used by reporting.
type Reader interface {
	ByTeacher(ctx context.Context, institutionCode, teacherID string, from, to time.Time) ([]Record, error)
	ByStudent(ctx context.Context, institutionCode, studentID string, from, to time.Time) ([]Record, error)
	ByInstitution(ctx context.Context, institutionCode string, from, to time.Time) ([]Record, error)
	BySubject(ctx context.Context, institutionCode, subject string, from, to time.Time) ([]Record, error)
	BySession(ctx context.Context, sessionID string) ([]Record, error)
}

// Store is the persistence contract behind the ledger. Every write is a
// single conditional operation so concurrent callers cannot both win.
type Store interface {
	Reader
	// InsertClass creates rec unless (SessionID, StudentID) exists, in which
	// case it returns the existing record and ErrDuplicateSession.
	InsertClass(ctx context.Context, rec Record) (Record, error)
	// CheckIn creates the teacher's record for rec.Date or returns ErrAlreadyCheckedIn.
	CheckIn(ctx context.Context, rec Record) (Record, error)
	// CheckOut closes the open record for the day or returns ErrAlreadyCompleted.
	CheckOut(ctx context.Context, institutionCode, teacherID string, day, at time.Time) (Record, error)
}

// Ledger owns the attendance record lifecycle.
type Ledger struct {
	Reader
	store  Store
	policy session.Policy
}

// NewLedger wraps store with the session policy.
func NewLedger(store Store, policy session.Policy) *Ledger {
	return &Ledger{Reader: store, store: store, policy: policy}
}

// Policy returns the policy the ledger classifies redemptions with.
func (l *Ledger) Policy() session.Policy { return l.policy }

// RedeemClass records studentID against a class session claim. A repeat
// redemption returns the existing record with ErrDuplicateSession.
func (l *Ledger) RedeemClass(ctx context.Context, claim session.Claim, studentID string, now time.Time) (Record, error) {
	if claim.Kind != session.KindClassSession || claim.Class == nil {
		return Record{}, fmt.Errorf("redeem class: claim kind %q", claim.Kind)
	}
	if studentID == "" {
		return Record{}, errors.New("redeem class: student id required")
	}
	status, lateMinutes, err := l.policy.Lateness(claim, now)
	if err != nil {
		return Record{}, err
	}
	sid := studentID
	rec := Record{
		ID:              uuid.NewString(),
		Type:            session.KindClassSession,
		SessionID:       claim.SessionID,
		StudentID:       &sid,
		TeacherID:       claim.IssuerID,
		InstitutionCode: claim.Class.InstitutionCode,
		Subject:         claim.Class.Subject,
		ClassName:       claim.Class.ClassName,
		Section:         claim.Class.Section,
		Period:          claim.Class.Period,
		Status:          status,
		LateMinutes:     lateMinutes,
		ScanTime:        now,
		Date:            l.policy.Day(now),
	}
	return l.store.InsertClass(ctx, rec)
}

// RedeemTeacherSelf advances the teacher's NONE -> CHECKED_IN -> CHECKED_OUT
// state machine for the day of now.
func (l *Ledger) RedeemTeacherSelf(ctx context.Context, claim session.Claim, now time.Time) (Record, Action, error) {
	if claim.Kind != session.KindTeacherSelf || claim.Self == nil {
		return Record{}, "", fmt.Errorf("redeem teacher self: claim kind %q", claim.Kind)
	}
	day := l.policy.Day(now)
	checkIn := now
	rec := Record{
		ID:              uuid.NewString(),
		Type:            session.KindTeacherSelf,
		SessionID:       claim.SessionID,
		TeacherID:       claim.IssuerID,
		InstitutionCode: claim.Self.InstitutionCode,
		Status:          session.StatusPresent,
		ScanTime:        now,
		CheckIn:         &checkIn,
		Date:            day,
	}

	created, err := l.store.CheckIn(ctx, rec)
	if err == nil {
		return created, ActionCheckIn, nil
	}
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		return Record{}, "", err
	}

	closed, err := l.store.CheckOut(ctx, rec.InstitutionCode, rec.TeacherID, day, now)
	if err != nil {
		return Record{}, "", err
	}
	return closed, ActionCheckOut, nil
}
