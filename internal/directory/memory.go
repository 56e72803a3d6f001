package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type memberKey struct {
	institutionCode string
	id              string
}

// MemoryStore keeps the directory in process memory.
type MemoryStore struct {
	mu           sync.RWMutex
	institutions map[string]Institution
	teachers     map[memberKey]Teacher
	students     map[memberKey]Student
}

// NewMemoryStore creates an empty directory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		institutions: make(map[string]Institution),
		teachers:     make(map[memberKey]Teacher),
		students:     make(map[memberKey]Student),
	}
}

func (m *MemoryStore) Teacher(_ context.Context, institutionCode, id string) (Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teachers[memberKey{institutionCode, id}]
	if !ok || !t.Active || !m.institutions[institutionCode].Active {
		return Teacher{}, fmt.Errorf("teacher %s/%s: %w", institutionCode, id, ErrNotFound)
	}
	return t, nil
}

func (m *MemoryStore) Student(_ context.Context, institutionCode, id string) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[memberKey{institutionCode, id}]
	if !ok || !s.Active || !m.institutions[institutionCode].Active {
		return Student{}, fmt.Errorf("student %s/%s: %w", institutionCode, id, ErrNotFound)
	}
	return s, nil
}

func (m *MemoryStore) UpsertInstitution(_ context.Context, inst Institution) error {
	if inst.Code == "" {
		return errors.New("institution code required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.institutions[inst.Code]; ok {
		inst.CreatedAt = prev.CreatedAt
	} else {
		inst.CreatedAt = time.Now().UTC()
	}
	m.institutions[inst.Code] = inst
	return nil
}

func (m *MemoryStore) UpsertTeacher(_ context.Context, t Teacher) error {
	if t.InstitutionCode == "" || t.ID == "" {
		return errors.New("institution code and teacher id required")
	}
	key := memberKey{t.InstitutionCode, t.ID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.institutions[t.InstitutionCode]; !ok {
		return fmt.Errorf("institution %s: %w", t.InstitutionCode, ErrNotFound)
	}
	if prev, ok := m.teachers[key]; ok {
		t.CreatedAt = prev.CreatedAt
		if t.PasswordHash == "" {
			t.PasswordHash = prev.PasswordHash
		}
	} else {
		t.CreatedAt = time.Now().UTC()
	}
	m.teachers[key] = t
	return nil
}

func (m *MemoryStore) UpsertStudent(_ context.Context, s Student) error {
	if s.InstitutionCode == "" || s.ID == "" {
		return errors.New("institution code and student id required")
	}
	key := memberKey{s.InstitutionCode, s.ID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.institutions[s.InstitutionCode]; !ok {
		return fmt.Errorf("institution %s: %w", s.InstitutionCode, ErrNotFound)
	}
	if prev, ok := m.students[key]; ok {
		s.CreatedAt = prev.CreatedAt
		if s.PasswordHash == "" {
			s.PasswordHash = prev.PasswordHash
		}
	} else {
		s.CreatedAt = time.Now().UTC()
	}
	m.students[key] = s
	return nil
}
