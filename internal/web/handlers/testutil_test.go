package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/evidence"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

var testStart = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeExtractor struct {
	vector biometric.Vector
	err    error
}

func (f *fakeExtractor) Extract(context.Context, []byte) (biometric.Vector, error) {
	return f.vector, f.err
}

// testEnv wires the real engine and enrollment service over in-memory stores.
type testEnv struct {
	enrollments *mock.MockEnrollmentStore
	events      *mock.MockEventStore
	extractor   *fakeExtractor
	evidence    *evidence.Store
	clock       *fakeClock
	engine      *attendance.Engine
	subjects    *enrollment.Service
	attendance  *AttendanceHandler
}

// newTestEnv enrolls "Ana María Díaz" at the origin and "Bo Li" far away.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	enrollments := mock.NewMockEnrollmentStore()
	enrollments.AddEnrollment(database.Enrollment{ID: "A", Code: "EMP-001", FullName: "Ana María Díaz", Vector: biometric.Vector{0, 0}, Active: true})
	enrollments.AddEnrollment(database.Enrollment{ID: "B", Code: "EMP-002", FullName: "Bo Li", Vector: biometric.Vector{5, 5}, Active: true})
	events := mock.NewMockEventStore()
	events.Enrollments = enrollments

	store, err := evidence.NewStore(t.TempDir(), 64)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	clock := &fakeClock{now: testStart}
	extractor := &fakeExtractor{vector: biometric.Vector{0.1, 0}}
	cache := gallery.New(enrollments, time.Minute)

	engine, err := attendance.NewEngine(cache, enrollments, events,
		attendance.WithClock(clock.Now),
		attendance.WithExtractor(extractor),
		attendance.WithEvidence(store),
		attendance.WithDimension(2),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	subjects := enrollment.NewService(enrollments,
		enrollment.WithExtractor(extractor),
		enrollment.WithPhotos(store),
		enrollment.WithInvalidator(cache),
		enrollment.WithDimension(2),
	)

	return &testEnv{
		enrollments: enrollments,
		events:      events,
		extractor:   extractor,
		evidence:    store,
		clock:       clock,
		engine:      engine,
		subjects:    subjects,
		attendance:  NewAttendanceHandler(engine, time.UTC),
	}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest creates a request with a JSON-encoded body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest creates a multipart request with form fields and an optional file
func multipartRequest(t *testing.T, path string, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if file != nil {
		part, err := writer.CreateFormFile("file", "face.png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// testPNG returns a small decodable image
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := range 32 {
		for y := range 24 {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", rec.Body.String(), err)
	}
	return out
}
