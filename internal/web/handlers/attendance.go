package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
)

// AttendanceService identifies probes and answers attendance queries.
type AttendanceService interface {
	Process(ctx context.Context, probe biometric.Vector) (attendance.Outcome, error)
	ProcessImage(ctx context.Context, image []byte) (attendance.Outcome, error)
	HistoryFor(ctx context.Context, subjectID string, limit int) ([]database.Event, error)
	EventsInRange(ctx context.Context, start, end time.Time, subjectID string) ([]database.Event, error)
	Today(ctx context.Context, loc *time.Location) ([]database.Event, error)
}

// AttendanceHandler handles check-in and attendance query endpoints.
type AttendanceHandler struct {
	service AttendanceService
	loc     *time.Location
}

// NewAttendanceHandler creates a new attendance handler. Local times and
// date-only query parameters use loc.
func NewAttendanceHandler(service AttendanceService, loc *time.Location) *AttendanceHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AttendanceHandler{service: service, loc: loc}
}

// CheckInResponse is the terminal-facing result of a check-in
type CheckInResponse struct {
	Success     bool           `json:"success"`
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	SubjectID   string         `json:"subject_id,omitempty"`
	SubjectName string         `json:"subject_name,omitempty"`
	Kind        string         `json:"kind,omitempty"`
	Distance    *float64       `json:"distance,omitempty"`
	LocalTime   string         `json:"local_time,omitempty"`
	Event       *EventResponse `json:"event,omitempty"`
}

type identifyRequest struct {
	Vector biometric.Vector `json:"vector"`
}

// greeting returns the message shown at the terminal for an outcome.
func greeting(o attendance.Outcome) string {
	switch o.Status {
	case attendance.StatusNoFaceDetected:
		return "No face detected"
	case attendance.StatusNotRecognized:
		return "Face not recognized"
	}

	first := ""
	if o.Event != nil {
		first = enrollment.FirstName(o.Event.SubjectName)
	}
	verb := "Welcome"
	if o.Kind == database.Departure {
		verb = "Goodbye"
	}
	if first == "" {
		return verb
	}
	return verb + " " + first
}

func (h *AttendanceHandler) outcomeToResponse(o attendance.Outcome) CheckInResponse {
	resp := CheckInResponse{
		Success: o.Success(),
		Status:  o.Status.String(),
		Message: greeting(o),
	}
	if !o.Success() {
		return resp
	}

	distance := o.Distance
	resp.SubjectID = o.SubjectID
	resp.Kind = o.Kind.String()
	resp.Distance = &distance
	resp.LocalTime = o.OccurredAt.In(h.loc).Format(time.TimeOnly)
	if o.Event != nil {
		ev := eventToResponse(*o.Event, h.loc)
		resp.SubjectName = o.Event.SubjectName
		resp.Event = &ev
	}
	return resp
}

// CheckIn identifies the face in an uploaded image and records attendance.
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	image, err := readUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.service.ProcessImage(r.Context(), image)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.outcomeToResponse(outcome))
}

// Identify records attendance for a precomputed probe vector.
func (h *AttendanceHandler) Identify(w http.ResponseWriter, r *http.Request) {
	var req identifyRequest
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxJSONBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	outcome, err := h.service.Process(r.Context(), req.Vector)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.outcomeToResponse(outcome))
}

// History returns the latest events of one subject, newest first.
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectId")

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := h.service.HistoryFor(r.Context(), subjectID, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, eventsToResponse(events, h.loc))
}

// Events returns events in [start, end), optionally for one subject. Both
// bounds accept RFC 3339 timestamps or local dates; a date-only end includes
// that whole day.
func (h *AttendanceHandler) Events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseBound(q.Get("start"), h.loc, false)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	end, err := parseBound(q.Get("end"), h.loc, true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}

	events, err := h.service.EventsInRange(r.Context(), start, end, q.Get("subject"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, eventsToResponse(events, h.loc))
}

// Today returns the events of the current local day.
func (h *AttendanceHandler) Today(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.Today(r.Context(), h.loc)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, eventsToResponse(events, h.loc))
}

func parseBound(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("value is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339 timestamp or YYYY-MM-DD date")
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1)
	}
	return d, nil
}
