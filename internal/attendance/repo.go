package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"

	"qrattend/internal/session"
)

const dateLayout = "2006-01-02"

const recordColumns = `id, attendance_type, session_id, student_id, teacher_id, institution_code,
	subject, class_name, section, period, status, late_minutes, scan_time,
	check_in, check_out, work_hours, attendance_date, created_at, updated_at`

// Repository persists attendance records in Postgres. The partial unique
// indexes from the migrations back every conditional write.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertClass writes a class-session record unless the student already has one.
func (r *Repository) InsertClass(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var out Record
	err := sqlscan.Get(ctx, r.db, &out, `
		INSERT INTO attendance_records (id, attendance_type, session_id, student_id, teacher_id, institution_code,
			subject, class_name, section, period, status, late_minutes, scan_time, attendance_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::date)
		ON CONFLICT (session_id, student_id) WHERE attendance_type = 'class_session' DO NOTHING
		RETURNING `+recordColumns,
		rec.ID, string(session.KindClassSession), rec.SessionID, rec.StudentID, rec.TeacherID, rec.InstitutionCode,
		rec.Subject, rec.ClassName, rec.Section, rec.Period, rec.Status, rec.LateMinutes, rec.ScanTime,
		rec.Date.Format(dateLayout))
	if err == nil {
		return out, nil
	}
	if !sqlscan.NotFound(err) {
		return Record{}, fmt.Errorf("insert class attendance: %w", err)
	}

	var existing Record
	if err := sqlscan.Get(ctx, r.db, &existing, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE attendance_type = 'class_session' AND session_id = $1 AND student_id = $2
	`, rec.SessionID, rec.StudentID); err != nil {
		return Record{}, fmt.Errorf("load existing class attendance: %w", err)
	}
	return existing, ErrDuplicateSession
}

// CheckIn opens the teacher's record for the day.
func (r *Repository) CheckIn(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var out Record
	err := sqlscan.Get(ctx, r.db, &out, `
		INSERT INTO attendance_records (id, attendance_type, session_id, teacher_id, institution_code,
			status, late_minutes, scan_time, check_in, attendance_date)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9::date)
		ON CONFLICT (institution_code, teacher_id, attendance_date) WHERE attendance_type = 'teacher_self' DO NOTHING
		RETURNING `+recordColumns,
		rec.ID, string(session.KindTeacherSelf), rec.SessionID, rec.TeacherID, rec.InstitutionCode,
		rec.Status, rec.ScanTime, rec.CheckIn, rec.Date.Format(dateLayout))
	if err == nil {
		return out, nil
	}
	if sqlscan.NotFound(err) {
		return Record{}, ErrAlreadyCheckedIn
	}
	return Record{}, fmt.Errorf("teacher check-in: %w", err)
}

// CheckOut closes the open record for the day in a single conditional update.
func (r *Repository) CheckOut(ctx context.Context, institutionCode, teacherID string, day, at time.Time) (Record, error) {
	var out Record
	err := sqlscan.Get(ctx, r.db, &out, `
		UPDATE attendance_records
		SET check_out = $4,
			work_hours = GREATEST(ROUND((EXTRACT(EPOCH FROM ($4::timestamptz - check_in)) / 3600)::numeric, 2), 0)::float8,
			updated_at = NOW()
		WHERE attendance_type = 'teacher_self'
			AND institution_code = $1
			AND teacher_id = $2
			AND attendance_date = $3::date
			AND check_out IS NULL
		RETURNING `+recordColumns,
		institutionCode, teacherID, day.Format(dateLayout), at)
	if err == nil {
		return out, nil
	}
	if sqlscan.NotFound(err) {
		return Record{}, ErrAlreadyCompleted
	}
	return Record{}, fmt.Errorf("teacher check-out: %w", err)
}

// ByTeacher returns records issued by or belonging to a teacher within [from, to].
func (r *Repository) ByTeacher(ctx context.Context, institutionCode, teacherID string, from, to time.Time) ([]Record, error) {
	return r.list(ctx, `institution_code = $1 AND teacher_id = $2`, from, to, institutionCode, teacherID)
}

// ByStudent returns a student's class-session records within [from, to].
func (r *Repository) ByStudent(ctx context.Context, institutionCode, studentID string, from, to time.Time) ([]Record, error) {
	return r.list(ctx, `institution_code = $1 AND student_id = $2`, from, to, institutionCode, studentID)
}

// ByInstitution returns every record of an institution within [from, to].
func (r *Repository) ByInstitution(ctx context.Context, institutionCode string, from, to time.Time) ([]Record, error) {
	return r.list(ctx, `institution_code = $1`, from, to, institutionCode)
}

// BySubject returns class-session records for one subject within [from, to].
func (r *Repository) BySubject(ctx context.Context, institutionCode, subject string, from, to time.Time) ([]Record, error) {
	return r.list(ctx, `institution_code = $1 AND attendance_type = 'class_session' AND subject = $2`, from, to, institutionCode, subject)
}

// BySession returns the records produced by one session token.
func (r *Repository) BySession(ctx context.Context, sessionID string) ([]Record, error) {
	var out []Record
	if err := sqlscan.Select(ctx, r.db, &out, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY scan_time
	`, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return out, nil
}

func (r *Repository) list(ctx context.Context, where string, from, to time.Time, args ...any) ([]Record, error) {
	n := len(args)
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE ` + where +
		fmt.Sprintf(` AND attendance_date BETWEEN $%d::date AND $%d::date ORDER BY attendance_date, scan_time`, n+1, n+2)
	args = append(args, from.Format(dateLayout), to.Format(dateLayout))

	var out []Record
	if err := sqlscan.Select(ctx, r.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return out, nil
}
