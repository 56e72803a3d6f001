package directory

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound is returned when an institution, teacher or student does not
	// exist or is inactive.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials is returned by Authenticate on a bad id/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Roles a principal can authenticate as.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Institution is a registered school or college.
type Institution struct {
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Teacher is a teacher enrolled at an institution.
type Teacher struct {
	InstitutionCode string    `json:"institution_code" db:"institution_code"`
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Email           string    `json:"email,omitempty" db:"email"`
	PasswordHash    string    `json:"-" db:"password_hash"`
	Active          bool      `json:"active" db:"active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Student is a student enrolled at an institution.
type Student struct {
	InstitutionCode string    `json:"institution_code" db:"institution_code"`
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	ClassName       string    `json:"class_name,omitempty" db:"class_name"`
	Section         string    `json:"section,omitempty" db:"section"`
	PasswordHash    string    `json:"-" db:"password_hash"`
	Active          bool      `json:"active" db:"active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Directory resolves active teachers and students.
type Directory interface {
	Teacher(ctx context.Context, institutionCode, id string) (Teacher, error)
	Student(ctx context.Context, institutionCode, id string) (Student, error)
}

// Store is a Directory that can also enroll entities.
type Store interface {
	Directory
	UpsertInstitution(ctx context.Context, inst Institution) error
	UpsertTeacher(ctx context.Context, t Teacher) error
	UpsertStudent(ctx context.Context, s Student) error
}

// Principal is an authenticated teacher or student.
type Principal struct {
	InstitutionCode string
	ID              string
	Role            string
	Name            string
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password required")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Authenticate verifies a password against the directory entry for role.
func Authenticate(ctx context.Context, d Directory, institutionCode, role, id, password string) (Principal, error) {
	var (
		hash string
		name string
	)
	switch role {
	case RoleTeacher:
		t, err := d.Teacher(ctx, institutionCode, id)
		if err != nil {
			return Principal{}, credentialsErr(err)
		}
		hash, name = t.PasswordHash, t.Name
	case RoleStudent:
		s, err := d.Student(ctx, institutionCode, id)
		if err != nil {
			return Principal{}, credentialsErr(err)
		}
		hash, name = s.PasswordHash, s.Name
	default:
		return Principal{}, ErrInvalidCredentials
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{InstitutionCode: institutionCode, ID: id, Role: role, Name: name}, nil
}

func credentialsErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidCredentials
	}
	return err
}
