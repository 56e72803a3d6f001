package directory

import (
	"context"
	"errors"
	"testing"
)

func seeded(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	m := NewMemoryStore()
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	steps := []error{
		m.UpsertInstitution(ctx, Institution{Code: "INST1", Name: "North High", Active: true}),
		m.UpsertInstitution(ctx, Institution{Code: "CLOSED", Name: "Closed College", Active: false}),
		m.UpsertTeacher(ctx, Teacher{InstitutionCode: "INST1", ID: "t-1", Name: "Asha", PasswordHash: hash, Active: true}),
		m.UpsertTeacher(ctx, Teacher{InstitutionCode: "INST1", ID: "t-2", Name: "Ravi", Active: false}),
		m.UpsertTeacher(ctx, Teacher{InstitutionCode: "CLOSED", ID: "t-9", Name: "Mina", Active: true}),
		m.UpsertStudent(ctx, Student{InstitutionCode: "INST1", ID: "s-1", Name: "Kiran", PasswordHash: hash, Active: true}),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("seed error = %v", err)
		}
	}
	return m
}

func TestMemoryLookups(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		lookup  func() error
		wantErr error
	}{
		{name: "active teacher", lookup: func() error { _, err := m.Teacher(ctx, "INST1", "t-1"); return err }},
		{name: "inactive teacher", lookup: func() error { _, err := m.Teacher(ctx, "INST1", "t-2"); return err }, wantErr: ErrNotFound},
		{name: "teacher of inactive institution", lookup: func() error { _, err := m.Teacher(ctx, "CLOSED", "t-9"); return err }, wantErr: ErrNotFound},
		{name: "teacher of other institution", lookup: func() error { _, err := m.Teacher(ctx, "INST2", "t-1"); return err }, wantErr: ErrNotFound},
		{name: "active student", lookup: func() error { _, err := m.Student(ctx, "INST1", "s-1"); return err }},
		{name: "missing student", lookup: func() error { _, err := m.Student(ctx, "INST1", "s-404"); return err }, wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lookup()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("lookup error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("lookup error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	p, err := Authenticate(ctx, m, "INST1", RoleTeacher, "t-1", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if p.ID != "t-1" || p.Role != RoleTeacher || p.Name != "Asha" {
		t.Fatalf("Authenticate() = %+v", p)
	}

	bad := []struct {
		name, role, id, password string
	}{
		{name: "wrong password", role: RoleTeacher, id: "t-1", password: "nope"},
		{name: "no password set", role: RoleTeacher, id: "t-2", password: ""},
		{name: "unknown student", role: RoleStudent, id: "s-404", password: "s3cret"},
		{name: "unknown role", role: "admin", id: "t-1", password: "s3cret"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Authenticate(ctx, m, "INST1", tt.role, tt.id, tt.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("Authenticate() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestUpsertKeepsPasswordWhenEmpty(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	if err := m.UpsertStudent(ctx, Student{InstitutionCode: "INST1", ID: "s-1", Name: "Kiran R", Active: true}); err != nil {
		t.Fatalf("UpsertStudent() error = %v", err)
	}
	if _, err := Authenticate(ctx, m, "INST1", RoleStudent, "s-1", "s3cret"); err != nil {
		t.Fatalf("Authenticate() after rename error = %v", err)
	}
}

func TestUpsertRequiresInstitution(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	if err := m.UpsertTeacher(ctx, Teacher{InstitutionCode: "NOPE", ID: "t-1", Name: "Asha", Active: true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpsertTeacher() error = %v, want ErrNotFound", err)
	}
	if err := m.UpsertStudent(ctx, Student{InstitutionCode: "NOPE", ID: "s-1", Name: "Kiran", Active: true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpsertStudent() error = %v, want ErrNotFound", err)
	}
	if _, err := m.Teacher(ctx, "NOPE", "t-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Teacher() error = %v, want ErrNotFound", err)
	}
	// An inactive institution still exists and accepts enrollment.
	if err := m.UpsertStudent(ctx, Student{InstitutionCode: "CLOSED", ID: "s-2", Name: "Dev", Active: true}); err != nil {
		t.Fatalf("UpsertStudent() into inactive institution error = %v", err)
	}
}
