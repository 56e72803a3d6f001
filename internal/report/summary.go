// Package report aggregates attendance records and keeps live per-day counters.
package report

import (
	"math"

	"qrattend/internal/attendance"
	"qrattend/internal/session"
)

// Summary aggregates a set of attendance records.
type Summary struct {
	Total       int     `json:"total"`
	Present     int     `json:"present"`
	Late        int     `json:"late"`
	Absent      int     `json:"absent"`
	HalfDay     int     `json:"half_day"`
	OnLeave     int     `json:"on_leave"`
	Percentage  float64 `json:"attendance_percentage"`
	LateMinutes int     `json:"late_minutes"`
	WorkHours   float64 `json:"work_hours"`
}

// Summarize counts records per status. Late and half-day records count as
// attended (half-day at half weight) when computing the percentage.
func Summarize(records []attendance.Record) Summary {
	var s Summary
	for _, r := range records {
		s.Total++
		switch r.Status {
		case session.StatusPresent:
			s.Present++
		case session.StatusLate:
			s.Late++
		case session.StatusAbsent:
			s.Absent++
		case session.StatusHalfDay:
			s.HalfDay++
		case session.StatusOnLeave:
			s.OnLeave++
		}
		s.LateMinutes += r.LateMinutes
		s.WorkHours += r.WorkHours
	}
	if s.Total > 0 {
		attended := float64(s.Present+s.Late) + float64(s.HalfDay)*0.5
		s.Percentage = round2(attended / float64(s.Total) * 100)
	}
	s.WorkHours = round2(s.WorkHours)
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
