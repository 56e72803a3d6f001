package session

import (
	"fmt"
	"math"
	"time"
)

const (
	ClassSessionTTL = 5 * time.Minute
	TeacherSelfTTL  = 2 * time.Minute
	ClassLateAfter  = time.Minute
)

// Status values recorded on attendance records.
const (
	StatusPresent = "present"
	StatusLate    = "late"
	StatusAbsent  = "absent"
	StatusHalfDay = "half_day"
	StatusOnLeave = "on_leave"
)

// Policy decides lifetimes, lateness and day partitioning per session kind.
type Policy struct {
	loc *time.Location
}

// NewPolicy builds a policy that partitions days in loc (UTC when nil).
func NewPolicy(loc *time.Location) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return Policy{loc: loc}
}

// Location returns the time zone used for day partitioning.
func (p Policy) Location() *time.Location {
	if p.loc == nil {
		return time.UTC
	}
	return p.loc
}

// TTL returns how long a token of kind stays redeemable.
func (p Policy) TTL(kind Kind) (time.Duration, error) {
	switch kind {
	case KindClassSession:
		return ClassSessionTTL, nil
	case KindTeacherSelf:
		return TeacherSelfTTL, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// LatenessThreshold returns the on-time window for kind. Teacher
// self-attendance has no lateness concept and reports ok=false.
func (p Policy) LatenessThreshold(kind Kind) (threshold time.Duration, ok bool, err error) {
	switch kind {
	case KindClassSession:
		return ClassLateAfter, true, nil
	case KindTeacherSelf:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Lateness classifies a redemption at now. A redemption exactly at the
// threshold is on time.
func (p Policy) Lateness(c Claim, now time.Time) (status string, lateMinutes int, err error) {
	threshold, ok, err := p.LatenessThreshold(c.Kind)
	if err != nil {
		return "", 0, err
	}
	if !ok {
		return StatusPresent, 0, nil
	}
	elapsed := now.Sub(c.IssuedAt)
	if elapsed <= threshold {
		return StatusPresent, 0, nil
	}
	return StatusLate, int(math.Floor(elapsed.Minutes())), nil
}

// Day returns midnight of t's calendar day in the policy's location.
func (p Policy) Day(t time.Time) time.Time {
	local := t.In(p.Location())
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.Location())
}

// WorkHours returns checkOut-checkIn in hours rounded to two decimals.
func WorkHours(checkIn, checkOut time.Time) float64 {
	if checkOut.Before(checkIn) {
		return 0
	}
	return math.Round(checkOut.Sub(checkIn).Hours()*100) / 100
}
