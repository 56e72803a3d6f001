package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/report"
	"qrattend/internal/session"
)

// ---------- Reports ----------

const dateLayout = "2006-01-02"

// maxReportRange caps from..to so one request cannot scan years of records.
const maxReportRange = 366 * 24 * time.Hour

// dateRange reads ?from=&to= (YYYY-MM-DD) in the policy's time zone. Both
// default to today.
func (h *Handler) dateRange(c *gin.Context) (time.Time, time.Time, error) {
	policy := h.svc.Ledger().Policy()
	today := policy.Day(h.now())
	parse := func(key string) (time.Time, error) {
		v := c.Query(key)
		if v == "" {
			return today, nil
		}
		t, err := time.ParseInLocation(dateLayout, v, policy.Location())
		if err != nil {
			return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", key)
		}
		return t, nil
	}
	from, err := parse("from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parse("to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must not be before from")
	}
	if to.Sub(from) > maxReportRange {
		return time.Time{}, time.Time{}, fmt.Errorf("range must not exceed 366 days")
	}
	return from, to, nil
}

func writeReport(c *gin.Context, records []attendance.Record) {
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"summary": report.Summarize(records),
		"records": records,
	})
}

type rangeQuery func(c *gin.Context, claims auth.Claims, from, to time.Time) ([]attendance.Record, error)

func (h *Handler) ranged(q rangeQuery) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		from, to, err := h.dateRange(c)
		if err != nil {
			badRequest(c, err)
			return
		}
		records, err := q(c, claims, from, to)
		if err != nil {
			writeError(c, err)
			return
		}
		writeReport(c, records)
	}
}

// MyAttendance reports the calling student's class records.
func (h *Handler) MyAttendance() gin.HandlerFunc {
	return h.ranged(func(c *gin.Context, claims auth.Claims, from, to time.Time) ([]attendance.Record, error) {
		return h.svc.Ledger().ByStudent(c.Request.Context(), claims.Institution, claims.Subject, from, to)
	})
}

// MyWorkdays reports the calling teacher's self-attendance records. Class
// records the teacher issued are left out.
func (h *Handler) MyWorkdays() gin.HandlerFunc {
	return h.ranged(func(c *gin.Context, claims auth.Claims, from, to time.Time) ([]attendance.Record, error) {
		records, err := h.svc.Ledger().ByTeacher(c.Request.Context(), claims.Institution, claims.Subject, from, to)
		if err != nil {
			return nil, err
		}
		own := records[:0]
		for _, r := range records {
			if r.Type == session.KindTeacherSelf {
				own = append(own, r)
			}
		}
		return own, nil
	})
}

// StudentReport reports one student of the caller's institution.
func (h *Handler) StudentReport() gin.HandlerFunc {
	return h.ranged(func(c *gin.Context, claims auth.Claims, from, to time.Time) ([]attendance.Record, error) {
		return h.svc.Ledger().ByStudent(c.Request.Context(), claims.Institution, c.Param("id"), from, to)
	})
}

// SubjectReport reports every class record for a subject.
func (h *Handler) SubjectReport() gin.HandlerFunc {
	return h.ranged(func(c *gin.Context, claims auth.Claims, from, to time.Time) ([]attendance.Record, error) {
		return h.svc.Ledger().BySubject(c.Request.Context(), claims.Institution, c.Param("subject"), from, to)
	})
}

// InstitutionReport reports every record of the caller's institution.
func (h *Handler) InstitutionReport() gin.HandlerFunc {
	return h.ranged(func(c *gin.Context, claims auth.Claims, from, to time.Time) ([]attendance.Record, error) {
		return h.svc.Ledger().ByInstitution(c.Request.Context(), claims.Institution, from, to)
	})
}

// SessionReport lists the records of one class session. Records of other
// institutions are never returned.
func (h *Handler) SessionReport(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	records, err := h.svc.Ledger().BySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	own := records[:0]
	for _, r := range records {
		if r.InstitutionCode == claims.Institution {
			own = append(own, r)
		}
	}
	writeReport(c, own)
}

// Live returns the worker-maintained counters for ?date= (default today).
func (h *Handler) Live(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	date := c.Query("date")
	if date == "" {
		date = h.svc.Ledger().Policy().Day(h.now()).Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		badRequest(c, fmt.Errorf("date must be YYYY-MM-DD"))
		return
	}
	if h.counters == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live counters not configured", "code": "unavailable"})
		return
	}
	counts, err := h.counters.Live(c.Request.Context(), claims.Institution, date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"institution_code": claims.Institution, "date": date, "counters": counts})
}
