package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/directory"
	"qrattend/internal/report"
	"qrattend/internal/session"
	"qrattend/internal/token"
)

const adminKey = "admin-test-key"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testServer struct {
	router   *gin.Engine
	clock    *clock
	counters *report.MemoryCounters
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	dir := directory.NewMemoryStore()
	teacherHash, err := directory.HashPassword("teacher-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	studentHash, err := directory.HashPassword("student-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	mustNil(t, dir.UpsertInstitution(ctx, directory.Institution{Code: "INST1", Name: "One", Active: true}))
	mustNil(t, dir.UpsertInstitution(ctx, directory.Institution{Code: "INST2", Name: "Two", Active: true}))
	mustNil(t, dir.UpsertTeacher(ctx, directory.Teacher{InstitutionCode: "INST1", ID: "teacher-1", Name: "T", PasswordHash: teacherHash, Active: true}))
	mustNil(t, dir.UpsertTeacher(ctx, directory.Teacher{InstitutionCode: "INST2", ID: "teacher-9", Name: "T9", PasswordHash: teacherHash, Active: true}))
	for _, id := range []string{"student_1", "student_2"} {
		mustNil(t, dir.UpsertStudent(ctx, directory.Student{InstitutionCode: "INST1", ID: id, Name: id, PasswordHash: studentHash, Active: true}))
	}

	policy := session.NewPolicy(time.UTC)
	codec, err := token.NewCodec([]byte("qr-test-key"), "qrattend", policy)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	ledger := attendance.NewLedger(attendance.NewMemoryStore(), policy)
	svc := attendance.NewService(ledger, codec, dir, nil, nil)

	clk := &clock{t: time.Now().UTC()}
	counters := report.NewMemoryCounters()
	h := New(Deps{
		Service:   svc,
		Directory: dir,
		Issuer:    auth.Issuer{Name: "qrattend", Key: []byte("jwt-test-key"), AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
		Refresh:   auth.NewMemoryRefreshStore(),
		Counters:  counters,
		Health:    map[string]Checker{"db": func(context.Context) bool { return true }},
		Now:       clk.Now,
	})
	return &testServer{
		router:   Router(h, RouterOptions{AdminKey: adminKey}),
		clock:    clk,
		counters: counters,
	}
}

func mustNil(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if strings.HasPrefix(bearer, "admin:") {
		req.Header.Del("Authorization")
		req.Header.Set("X-Admin-Key", strings.TrimPrefix(bearer, "admin:"))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	out := map[string]any{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return w.Code, out
}

func (s *testServer) login(t *testing.T, inst, role, id, password string) map[string]any {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"institution_code": inst, "role": role, "id": id, "password": password,
	})
	if code != http.StatusOK {
		t.Fatalf("login %s: status = %d body = %v", id, code, body)
	}
	return body
}

func (s *testServer) accessToken(t *testing.T, inst, role, id, password string) string {
	t.Helper()
	return s.login(t, inst, role, id, password)["access_token"].(string)
}

func (s *testServer) issue(t *testing.T, bearer, path string, body any) string {
	t.Helper()
	code, resp := s.do(t, http.MethodPost, path, bearer, body)
	if code != http.StatusCreated {
		t.Fatalf("issue %s: status = %d body = %v", path, code, resp)
	}
	if qr, _ := resp["qr_code"].(string); !strings.HasPrefix(qr, "data:image/png;base64,") {
		t.Fatalf("qr_code = %.40q", qr)
	}
	return resp["token"].(string)
}

func record(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	rec, ok := body["record"].(map[string]any)
	if !ok {
		t.Fatalf("response has no record: %v", body)
	}
	return rec
}

func TestClassScanScenario(t *testing.T) {
	s := newTestServer(t)
	teacher := s.accessToken(t, "INST1", "teacher", "teacher-1", "teacher-pass")
	student1 := s.accessToken(t, "INST1", "student", "student_1", "student-pass")
	student2 := s.accessToken(t, "INST1", "student", "student_2", "student-pass")

	tok := s.issue(t, teacher, "/v1/sessions/class", map[string]any{
		"subject": "Math", "class_name": "10", "section": "A", "period": 2,
	})

	s.clock.Advance(45 * time.Second)
	code, body := s.do(t, http.MethodPost, "/v1/attendance/scan", student1, map[string]string{"token": tok})
	if code != http.StatusCreated {
		t.Fatalf("first scan: status = %d body = %v", code, body)
	}
	if rec := record(t, body); rec["status"] != "present" || rec["late_minutes"] != float64(0) {
		t.Fatalf("first scan record = %v", rec)
	}

	code, body = s.do(t, http.MethodPost, "/v1/attendance/scan", student1, map[string]string{"token": tok})
	if code != http.StatusOK || body["already_marked"] != true {
		t.Fatalf("repeat scan: status = %d body = %v", code, body)
	}

	s.clock.Advance(45 * time.Second)
	code, body = s.do(t, http.MethodPost, "/v1/attendance/scan", student2, map[string]string{"token": tok})
	if code != http.StatusCreated {
		t.Fatalf("late scan: status = %d body = %v", code, body)
	}
	rec := record(t, body)
	if rec["status"] != "late" || rec["late_minutes"] != float64(1) {
		t.Fatalf("late scan record = %v", rec)
	}

	code, body = s.do(t, http.MethodGet, "/v1/reports/sessions/"+rec["session_id"].(string), teacher, nil)
	if code != http.StatusOK {
		t.Fatalf("session report: status = %d", code)
	}
	summary := body["summary"].(map[string]any)
	if summary["total"] != float64(2) || summary["present"] != float64(1) || summary["late"] != float64(1) {
		t.Fatalf("summary = %v", summary)
	}

	code, body = s.do(t, http.MethodGet, "/v1/reports/me", student2, nil)
	if code != http.StatusOK || body["summary"].(map[string]any)["late_minutes"] != float64(1) {
		t.Fatalf("my report: status = %d body = %v", code, body)
	}
}

func TestScanErrors(t *testing.T) {
	s := newTestServer(t)
	teacher := s.accessToken(t, "INST1", "teacher", "teacher-1", "teacher-pass")
	student := s.accessToken(t, "INST1", "student", "student_1", "student-pass")
	foreignTeacher := s.accessToken(t, "INST2", "teacher", "teacher-9", "teacher-pass")

	classTok := s.issue(t, teacher, "/v1/sessions/class", map[string]any{"subject": "Math", "class_name": "10"})
	selfTok := s.issue(t, teacher, "/v1/sessions/teacher-self", nil)
	foreignTok := s.issue(t, foreignTeacher, "/v1/sessions/class", map[string]any{"subject": "Art", "class_name": "9"})

	tests := []struct {
		name     string
		path     string
		bearer   string
		token    string
		advance  time.Duration
		want     int
		wantCode string
	}{
		{name: "malformed", path: "/v1/attendance/scan", bearer: student, token: "not-a-token", want: http.StatusBadRequest, wantCode: "malformed"},
		{name: "forged", path: "/v1/attendance/scan", bearer: student, token: classTok[:len(classTok)-4] + "AAAA", want: http.StatusBadRequest, wantCode: "invalid_signature"},
		{name: "wrong kind", path: "/v1/attendance/scan", bearer: student, token: selfTok, want: http.StatusBadRequest, wantCode: "wrong_token_kind"},
		{name: "other institution", path: "/v1/attendance/scan", bearer: student, token: foreignTok, want: http.StatusForbidden, wantCode: "forbidden"},
		{name: "class token on teacher scan", path: "/v1/attendance/teacher-scan", bearer: teacher, token: classTok, want: http.StatusBadRequest, wantCode: "wrong_token_kind"},
		{name: "another teacher's self token", path: "/v1/attendance/teacher-scan", bearer: foreignTeacher, token: selfTok, want: http.StatusForbidden, wantCode: "forbidden"},
		{name: "expired", path: "/v1/attendance/scan", bearer: student, token: classTok, advance: session.ClassSessionTTL + time.Second, want: http.StatusGone, wantCode: "expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.clock.Advance(tt.advance)
			code, body := s.do(t, http.MethodPost, tt.path, tt.bearer, map[string]string{"token": tt.token})
			if code != tt.want || body["code"] != tt.wantCode {
				t.Fatalf("status = %d code = %v, want %d %s", code, body["code"], tt.want, tt.wantCode)
			}
		})
	}
}

func TestRoleGuards(t *testing.T) {
	s := newTestServer(t)
	student := s.accessToken(t, "INST1", "student", "student_1", "student-pass")
	teacher := s.accessToken(t, "INST1", "teacher", "teacher-1", "teacher-pass")

	if code, _ := s.do(t, http.MethodPost, "/v1/sessions/class", student, map[string]any{"subject": "x", "class_name": "y"}); code != http.StatusForbidden {
		t.Fatalf("student issuing: status = %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/v1/attendance/scan", teacher, map[string]string{"token": "x"}); code != http.StatusForbidden {
		t.Fatalf("teacher scanning class token: status = %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/v1/reports/institution", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous report: status = %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/v1/sessions/class", teacher, map[string]any{"subject": "x"}); code != http.StatusBadRequest {
		t.Fatalf("missing class_name: status = %d", code)
	}
}

func TestTeacherSelfFlow(t *testing.T) {
	s := newTestServer(t)
	teacher := s.accessToken(t, "INST1", "teacher", "teacher-1", "teacher-pass")
	s.clock.t = time.Date(s.clock.Now().Year(), s.clock.Now().Month(), s.clock.Now().Day(), 9, 0, 0, 0, time.UTC)

	tok := s.issue(t, teacher, "/v1/sessions/teacher-self", nil)
	code, body := s.do(t, http.MethodPost, "/v1/attendance/teacher-scan", teacher, map[string]string{"token": tok})
	if code != http.StatusCreated || body["action"] != string(attendance.ActionCheckIn) {
		t.Fatalf("check-in: status = %d body = %v", code, body)
	}

	s.clock.Advance(30 * time.Minute)
	tok = s.issue(t, teacher, "/v1/sessions/teacher-self", nil)
	code, body = s.do(t, http.MethodPost, "/v1/attendance/teacher-scan", teacher, map[string]string{"token": tok})
	if code != http.StatusOK || body["action"] != string(attendance.ActionCheckOut) {
		t.Fatalf("check-out: status = %d body = %v", code, body)
	}
	if wh := record(t, body)["work_hours"]; wh != 0.5 {
		t.Fatalf("work_hours = %v, want 0.5", wh)
	}

	code, body = s.do(t, http.MethodPost, "/v1/attendance/teacher-scan", teacher, map[string]string{"token": tok})
	if code != http.StatusConflict || body["code"] != "already_completed" {
		t.Fatalf("third scan: status = %d body = %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/v1/reports/teacher/me", teacher, nil)
	if code != http.StatusOK || body["summary"].(map[string]any)["work_hours"] != 0.5 {
		t.Fatalf("teacher report: status = %d body = %v", code, body)
	}
}

func TestRefreshRotation(t *testing.T) {
	s := newTestServer(t)
	first := s.login(t, "INST1", "teacher", "teacher-1", "teacher-pass")

	code, second := s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": first["refresh_token"]})
	if code != http.StatusOK || second["access_token"] == "" {
		t.Fatalf("refresh: status = %d body = %v", code, second)
	}
	if code, _ := s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": first["refresh_token"]}); code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: status = %d", code)
	}
	if code, _ := s.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]any{"refresh_token": first["access_token"]}); code != http.StatusUnauthorized {
		t.Fatalf("access token as refresh: status = %d", code)
	}
	code, body := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"institution_code": "INST1", "role": "teacher", "id": "teacher-1", "password": "wrong",
	})
	if code != http.StatusUnauthorized || body["code"] != "invalid_credentials" {
		t.Fatalf("bad password: status = %d body = %v", code, body)
	}
}

func TestEnrollment(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(t, http.MethodPost, "/v1/institutions", "", map[string]string{"code": "INST3", "name": "Three"}); code != http.StatusUnauthorized {
		t.Fatalf("no admin key: status = %d", code)
	}
	admin := "admin:" + adminKey
	if code, _ := s.do(t, http.MethodPost, "/v1/institutions", admin, map[string]string{"code": "INST3", "name": "Three"}); code != http.StatusCreated {
		t.Fatalf("institution: status = %d", code)
	}
	code, body := s.do(t, http.MethodPost, "/v1/institutions/INST3/teachers", admin, map[string]string{
		"id": "t-3", "name": "New", "email": "t3@example.com", "password": "long-enough",
	})
	if code != http.StatusCreated {
		t.Fatalf("teacher: status = %d body = %v", code, body)
	}
	if _, leaked := body["password_hash"]; leaked {
		t.Fatal("password hash serialized")
	}
	if code, _ := s.do(t, http.MethodPost, "/v1/institutions/INST3/students", admin, map[string]string{"id": "s", "name": "S", "password": "short"}); code != http.StatusBadRequest {
		t.Fatalf("short password: status = %d", code)
	}
	s.login(t, "INST3", "teacher", "t-3", "long-enough")

	for _, path := range []string{"/v1/institutions/NOPE/teachers", "/v1/institutions/NOPE/students"} {
		code, body := s.do(t, http.MethodPost, path, admin, map[string]string{"id": "x-1", "name": "Nobody"})
		if code != http.StatusNotFound || body["code"] != "not_found" {
			t.Fatalf("%s: status = %d body = %v, want 404 not_found", path, code, body)
		}
	}
}

func TestLiveAndHealth(t *testing.T) {
	s := newTestServer(t)
	teacher := s.accessToken(t, "INST1", "teacher", "teacher-1", "teacher-pass")
	day := s.clock.Now()
	msg, err := attendance.NewEventMessage(attendance.EventClassMarked, attendance.Record{
		ID: "r-1", InstitutionCode: "INST1", Status: session.StatusLate, Date: day,
	})
	mustNil(t, err)
	evt, err := attendance.ParseEvent(msg)
	mustNil(t, err)
	mustNil(t, s.counters.Apply(context.Background(), msg.Type, evt))

	code, body := s.do(t, http.MethodGet, "/v1/reports/live?date="+day.Format(dateLayout), teacher, nil)
	if code != http.StatusOK {
		t.Fatalf("live: status = %d", code)
	}
	counters := body["counters"].(map[string]any)
	if counters[report.FieldClassTotal] != float64(1) || counters["class:late"] != float64(1) {
		t.Fatalf("counters = %v", counters)
	}
	if code, _ := s.do(t, http.MethodGet, "/v1/reports/live?date=yesterday", teacher, nil); code != http.StatusBadRequest {
		t.Fatalf("bad date: status = %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/v1/reports/institution?from=2026-02-01&to=2026-01-01", teacher, nil); code != http.StatusBadRequest {
		t.Fatalf("inverted range: status = %d", code)
	}

	code, body = s.do(t, http.MethodGet, "/healthz", "", nil)
	if code != http.StatusOK || body["db"] != true {
		t.Fatalf("healthz: status = %d body = %v", code, body)
	}
}
