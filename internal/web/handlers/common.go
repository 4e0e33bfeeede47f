package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/evidence"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, attendance.ErrInvalidProbe),
		errors.Is(err, attendance.ErrInvalidQuery),
		errors.Is(err, enrollment.ErrInvalid),
		errors.Is(err, embedding.ErrBadImage),
		errors.Is(err, embedding.ErrNoFace),
		errors.Is(err, evidence.ErrInvalidRef):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, evidence.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrUnavailable),
		errors.Is(err, enrollment.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError logs err and sends it with the mapped status. Details
// of internal failures are not exposed to the caller.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		respondError(w, status, err.Error())
	case http.StatusServiceUnavailable:
		log.Printf("%s %s: %v", r.Method, sanitizeForLog(r.URL.Path), err)
		w.Header().Set("Retry-After", "1")
		respondError(w, status, "service temporarily unavailable")
	default:
		log.Printf("%s %s: %v", r.Method, sanitizeForLog(r.URL.Path), err)
		respondError(w, status, "internal error")
	}
}

// readUpload reads the image from a multipart form field.
func readUpload(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile(constants.UploadField)
	if err != nil {
		return nil, fmt.Errorf("missing %q file field", constants.UploadField)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("uploaded file is empty")
	}
	return data, nil
}

// EventResponse represents an attendance event in API responses
type EventResponse struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	SubjectCode string    `json:"subject_code,omitempty"`
	SubjectName string    `json:"subject_name,omitempty"`
	Kind        string    `json:"kind"`
	OccurredAt  time.Time `json:"occurred_at"`
	LocalTime   string    `json:"local_time"`
	Distance    float64   `json:"distance"`
	EvidenceURL string    `json:"evidence_url,omitempty"`
}

func eventToResponse(ev database.Event, loc *time.Location) EventResponse {
	resp := EventResponse{
		ID:          ev.ID,
		SubjectID:   ev.SubjectID,
		SubjectCode: ev.SubjectCode,
		SubjectName: ev.SubjectName,
		Kind:        ev.Kind.String(),
		OccurredAt:  ev.OccurredAt.UTC(),
		LocalTime:   ev.OccurredAt.In(loc).Format(time.DateTime),
		Distance:    ev.Distance,
	}
	if ev.EvidenceRef != "" {
		resp.EvidenceURL = "/api/v1/evidence/" + ev.EvidenceRef
	}
	return resp
}

func eventsToResponse(events []database.Event, loc *time.Location) []EventResponse {
	out := make([]EventResponse, len(events))
	for i := range events {
		out[i] = eventToResponse(events[i], loc)
	}
	return out
}

// HealthCheck handles the health check endpoint. When ready is set it is
// called with a short timeout and a failure answers 503.
func HealthCheck(ready func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), constants.HealthTimeout)
			defer cancel()
			if err := ready(ctx); err != nil {
				log.Printf("health check failed: %v", err)
				w.Header().Set("Retry-After", "1")
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
				})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	}
}
