package web

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/evidence"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T, token string) *Server {
	t.Helper()

	enrollments := mock.NewMockEnrollmentStore()
	enrollments.AddEnrollment(database.Enrollment{ID: "A", Code: "EMP-001", FullName: "Ana Díaz", Vector: biometric.Vector{0, 0}, Active: true})
	events := mock.NewMockEventStore()
	events.Enrollments = enrollments

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cache := gallery.New(enrollments, time.Minute, gallery.WithMetrics(m))
	engine, err := attendance.NewEngine(cache, enrollments, events, attendance.WithMetrics(m))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	store, err := evidence.NewStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	cfg := &config.Config{
		Attendance: config.AttendanceConfig{Timezone: "UTC"},
		Web:        config.WebConfig{APIToken: token},
	}
	s, err := NewServer(cfg, 0, "127.0.0.1", Services{
		Attendance: engine,
		Subjects:   enrollment.NewService(enrollments, enrollment.WithInvalidator(cache)),
		Evidence:   store,
		Gatherer:   reg,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodPost, "/api/v1/attendance/identify", `{"vector":[0.1,0]}`, http.StatusOK},
		{http.MethodGet, "/api/v1/attendance/history/A", "", http.StatusOK},
		{http.MethodGet, "/api/v1/attendance/events?start=2026-01-01&end=2026-01-02", "", http.StatusOK},
		{http.MethodGet, "/api/v1/attendance/today", "", http.StatusOK},
		{http.MethodGet, "/api/v1/subjects", "", http.StatusOK},
		{http.MethodGet, "/api/v1/subjects/A", "", http.StatusOK},
		{http.MethodGet, "/api/v1/evidence/not-a-ref", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			if rec := serve(s, req); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, "")

	serve(s, httptest.NewRequest(http.MethodPost, "/api/v1/attendance/identify", strings.NewReader(`{"vector":[0.1,0]}`)))

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`attendance_outcomes_total{status="recorded"} 1`, `attendance_events_total{kind="arrival"} 1`, "attendance_gallery_size 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServer_WriteEndpointsRequireToken(t *testing.T) {
	s := newTestServer(t, "s3cret")
	body := []byte(`{"code":"EMP-009","full_name":"Eva Malá","vector":[1,1]}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subjects", bytes.NewReader(body))
	if rec := serve(s, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/subjects/A", nil)
	if rec := serve(s, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 deleting without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/subjects", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer s3cret")
	if rec := serve(s, req); rec.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}

	// Reads and check-ins stay open.
	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/subjects", nil)); rec.Code != http.StatusOK {
		t.Errorf("expected open subject list, got %d", rec.Code)
	}
}

func TestNewServer_InvalidTimezone(t *testing.T) {
	cfg := &config.Config{Attendance: config.AttendanceConfig{Timezone: "Mars/Olympus"}}
	if _, err := NewServer(cfg, 0, "", Services{}); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestServer_HealthReportsStorageOutage(t *testing.T) {
	cfg := &config.Config{Attendance: config.AttendanceConfig{Timezone: "UTC"}}
	s, err := NewServer(cfg, 0, "", Services{
		Ready: func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
