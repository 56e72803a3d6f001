package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func testIssuer() Issuer {
	return Issuer{Name: "qrattend", Key: []byte("auth-test-key"), AccessTTL: 15 * time.Minute, RefreshTTL: time.Hour}
}

func TestIssueParse(t *testing.T) {
	iss := testIssuer()
	pair, err := iss.Issue("teacher-1", "teacher", "INST1", time.Now())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	claims, err := iss.Parse(pair.AccessToken, TypeAccess)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "teacher-1" || claims.Role != "teacher" || claims.Institution != "INST1" {
		t.Fatalf("Parse() = %+v", claims)
	}
	if _, err := iss.Parse(pair.RefreshToken, TypeAccess); err == nil {
		t.Fatal("refresh token accepted as access token")
	}
	other := iss
	other.Name = "someone-else"
	if _, err := other.Parse(pair.AccessToken, TypeAccess); err == nil {
		t.Fatal("token accepted by a different issuer")
	}
	expired, err := iss.Issue("teacher-1", "teacher", "INST1", time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := iss.Parse(expired.AccessToken, TypeAccess); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestBearerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := testIssuer()
	r := gin.New()
	r.GET("/teacher", Bearer(iss, "teacher"), func(c *gin.Context) {
		claims, _ := FromContext(c)
		c.String(http.StatusOK, claims.Subject)
	})

	teacher, _ := iss.Issue("teacher-1", "teacher", "INST1", time.Now())
	student, _ := iss.Issue("student-1", "student", "INST1", time.Now())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong role", header: "Bearer " + student.AccessToken, want: http.StatusForbidden},
		{name: "ok", header: "bearer " + teacher.AccessToken, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/teacher", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAdminKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/admin", AdminKey("k"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, tc := range []struct {
		key  string
		want int
	}{{"", http.StatusUnauthorized}, {"x", http.StatusUnauthorized}, {"k", http.StatusNoContent}} {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("X-Admin-Key", tc.key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("key %q: status = %d, want %d", tc.key, w.Code, tc.want)
		}
	}
}

func TestMemoryRefreshStoreSingleUse(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRefreshStore()
	if err := s.Save(ctx, "jti-1", "teacher-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	ok, err := s.Consume(ctx, "jti-1")
	if err != nil || !ok {
		t.Fatalf("first Consume() = %v, %v", ok, err)
	}
	ok, err = s.Consume(ctx, "jti-1")
	if err != nil || ok {
		t.Fatalf("second Consume() = %v, %v, want false", ok, err)
	}
}
