package attendance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/session"
)

var errMissingStudent = errors.New("class attendance requires a student id")

type classKey struct {
	sessionID string
	studentID string
}

type dayKey struct {
	institutionCode string
	teacherID       string
	day             string
}

// MemoryStore is a mutex-guarded Store for dev and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	now     func() time.Time
	records map[string]*Record
	class   map[classKey]string
	days    map[dayKey]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:     time.Now,
		records: make(map[string]*Record),
		class:   make(map[classKey]string),
		days:    make(map[dayKey]string),
	}
}

func (m *MemoryStore) InsertClass(_ context.Context, rec Record) (Record, error) {
	if rec.StudentID == nil {
		return Record{}, errMissingStudent
	}
	key := classKey{sessionID: rec.SessionID, studentID: *rec.StudentID}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.class[key]; ok {
		return clone(m.records[id]), ErrDuplicateSession
	}
	stored := m.stamp(rec)
	m.class[key] = stored.ID
	return clone(stored), nil
}

func (m *MemoryStore) CheckIn(_ context.Context, rec Record) (Record, error) {
	key := dayKey{institutionCode: rec.InstitutionCode, teacherID: rec.TeacherID, day: rec.Date.Format(dateLayout)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.days[key]; ok {
		return Record{}, ErrAlreadyCheckedIn
	}
	stored := m.stamp(rec)
	m.days[key] = stored.ID
	return clone(stored), nil
}

func (m *MemoryStore) CheckOut(_ context.Context, institutionCode, teacherID string, day, at time.Time) (Record, error) {
	key := dayKey{institutionCode: institutionCode, teacherID: teacherID, day: day.Format(dateLayout)}

	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.days[key]
	if !ok {
		// Only reachable if the record vanished between the ledger's two steps.
		return Record{}, ErrAlreadyCompleted
	}
	rec := m.records[id]
	if rec.CheckOut != nil || rec.CheckIn == nil {
		return Record{}, ErrAlreadyCompleted
	}
	out := at
	rec.CheckOut = &out
	rec.WorkHours = session.WorkHours(*rec.CheckIn, at)
	rec.UpdatedAt = m.now()
	return clone(rec), nil
}

func (m *MemoryStore) ByTeacher(_ context.Context, institutionCode, teacherID string, from, to time.Time) ([]Record, error) {
	return m.filter(from, to, func(r *Record) bool {
		return r.InstitutionCode == institutionCode && r.TeacherID == teacherID
	}), nil
}

func (m *MemoryStore) ByStudent(_ context.Context, institutionCode, studentID string, from, to time.Time) ([]Record, error) {
	return m.filter(from, to, func(r *Record) bool {
		return r.InstitutionCode == institutionCode && r.StudentID != nil && *r.StudentID == studentID
	}), nil
}

func (m *MemoryStore) ByInstitution(_ context.Context, institutionCode string, from, to time.Time) ([]Record, error) {
	return m.filter(from, to, func(r *Record) bool {
		return r.InstitutionCode == institutionCode
	}), nil
}

func (m *MemoryStore) BySubject(_ context.Context, institutionCode, subject string, from, to time.Time) ([]Record, error) {
	return m.filter(from, to, func(r *Record) bool {
		return r.InstitutionCode == institutionCode && r.Type == session.KindClassSession && r.Subject == subject
	}), nil
}

func (m *MemoryStore) BySession(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, clone(r))
		}
	}
	sortRecords(out)
	return out, nil
}

// Len reports how many records are stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// stamp stores a copy of rec; callers hold the write lock.
func (m *MemoryStore) stamp(rec Record) *Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := m.now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	stored := clone(&rec)
	m.records[stored.ID] = &stored
	return &stored
}

func (m *MemoryStore) filter(from, to time.Time, keep func(*Record) bool) []Record {
	lo, hi := from.Format(dateLayout), to.Format(dateLayout)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.records {
		d := r.Date.Format(dateLayout)
		if d < lo || d > hi || !keep(r) {
			continue
		}
		out = append(out, clone(r))
	}
	sortRecords(out)
	return out
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Date.Equal(recs[j].Date) {
			return recs[i].Date.Before(recs[j].Date)
		}
		return recs[i].ScanTime.Before(recs[j].ScanTime)
	})
}

func clone(r *Record) Record {
	out := *r
	if r.StudentID != nil {
		v := *r.StudentID
		out.StudentID = &v
	}
	if r.CheckIn != nil {
		v := *r.CheckIn
		out.CheckIn = &v
	}
	if r.CheckOut != nil {
		v := *r.CheckOut
		out.CheckOut = &v
	}
	return out
}
