package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// Repository is the Postgres-backed directory.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Teacher returns an active teacher of an active institution.
func (r *Repository) Teacher(ctx context.Context, institutionCode, id string) (Teacher, error) {
	var t Teacher
	err := sqlscan.Get(ctx, r.db, &t, `
		SELECT t.institution_code, t.id, t.name, t.email, t.password_hash, t.active, t.created_at
		FROM teachers t
		JOIN institutions i ON i.code = t.institution_code
		WHERE t.institution_code = $1 AND t.id = $2 AND t.active AND i.active
	`, institutionCode, id)
	if err != nil {
		if sqlscan.NotFound(err) {
			return Teacher{}, fmt.Errorf("teacher %s/%s: %w", institutionCode, id, ErrNotFound)
		}
		return Teacher{}, fmt.Errorf("load teacher: %w", err)
	}
	return t, nil
}

// Student returns an active student of an active institution.
func (r *Repository) Student(ctx context.Context, institutionCode, id string) (Student, error) {
	var s Student
	err := sqlscan.Get(ctx, r.db, &s, `
		SELECT s.institution_code, s.id, s.name, s.class_name, s.section, s.password_hash, s.active, s.created_at
		FROM students s
		JOIN institutions i ON i.code = s.institution_code
		WHERE s.institution_code = $1 AND s.id = $2 AND s.active AND i.active
	`, institutionCode, id)
	if err != nil {
		if sqlscan.NotFound(err) {
			return Student{}, fmt.Errorf("student %s/%s: %w", institutionCode, id, ErrNotFound)
		}
		return Student{}, fmt.Errorf("load student: %w", err)
	}
	return s, nil
}

// UpsertInstitution registers an institution or updates its name and state.
func (r *Repository) UpsertInstitution(ctx context.Context, inst Institution) error {
	if inst.Code == "" {
		return errors.New("institution code required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO institutions (code, name, active)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			active = EXCLUDED.active,
			updated_at = NOW()
	`, inst.Code, inst.Name, inst.Active)
	return err
}

// UpsertTeacher enrolls a teacher. An empty password hash keeps the stored one.
func (r *Repository) UpsertTeacher(ctx context.Context, t Teacher) error {
	if t.InstitutionCode == "" || t.ID == "" {
		return errors.New("institution code and teacher id required")
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO teachers (institution_code, id, name, email, password_hash, active)
		SELECT i.code, $2::text, $3::text, $4::text, $5::text, $6::boolean
		FROM institutions i
		WHERE i.code = $1
		ON CONFLICT (institution_code, id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			password_hash = COALESCE(NULLIF(EXCLUDED.password_hash, ''), teachers.password_hash),
			active = EXCLUDED.active,
			updated_at = NOW()
	`, t.InstitutionCode, t.ID, t.Name, t.Email, t.PasswordHash, t.Active)
	if err != nil {
		return err
	}
	return requireInstitution(res, t.InstitutionCode)
}

// UpsertStudent enrolls a student. An empty password hash keeps the stored one.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) error {
	if s.InstitutionCode == "" || s.ID == "" {
		return errors.New("institution code and student id required")
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO students (institution_code, id, name, class_name, section, password_hash, active)
		SELECT i.code, $2::text, $3::text, $4::text, $5::text, $6::text, $7::boolean
		FROM institutions i
		WHERE i.code = $1
		ON CONFLICT (institution_code, id) DO UPDATE SET
			name = EXCLUDED.name,
			class_name = EXCLUDED.class_name,
			section = EXCLUDED.section,
			password_hash = COALESCE(NULLIF(EXCLUDED.password_hash, ''), students.password_hash),
			active = EXCLUDED.active,
			updated_at = NOW()
	`, s.InstitutionCode, s.ID, s.Name, s.ClassName, s.Section, s.PasswordHash, s.Active)
	if err != nil {
		return err
	}
	return requireInstitution(res, s.InstitutionCode)
}

// requireInstitution reports ErrNotFound when an enrollment insert selected
// no institution row.
func requireInstitution(res sql.Result, code string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("institution %s: %w", code, ErrNotFound)
	}
	return nil
}
