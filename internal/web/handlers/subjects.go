package handlers

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/biometric"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
)

// SubjectService manages enrolled subjects.
type SubjectService interface {
	Enroll(ctx context.Context, req enrollment.Request) (database.Enrollment, error)
	Deactivate(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*database.Enrollment, error)
	ListActive(ctx context.Context, query string) ([]database.Enrollment, error)
}

// SubjectsHandler handles enrollment endpoints.
type SubjectsHandler struct {
	service SubjectService
}

// NewSubjectsHandler creates a new subjects handler.
func NewSubjectsHandler(service SubjectService) *SubjectsHandler {
	return &SubjectsHandler{service: service}
}

// SubjectResponse represents an enrolled subject in API responses
type SubjectResponse struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	FullName      string     `json:"full_name"`
	FirstName     string     `json:"first_name"`
	Active        bool       `json:"active"`
	Dimension     int        `json:"dimension"`
	PhotoURL      string     `json:"photo_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

func subjectToResponse(e database.Enrollment) SubjectResponse {
	resp := SubjectResponse{
		ID:            e.ID,
		Code:          e.Code,
		FullName:      e.FullName,
		FirstName:     enrollment.FirstName(e.FullName),
		Active:        e.Active,
		Dimension:     e.Vector.Dim(),
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
		DeactivatedAt: e.DeactivatedAt,
	}
	if e.PhotoRef != "" {
		resp.PhotoURL = "/api/v1/evidence/" + e.PhotoRef
	}
	return resp
}

type enrollRequest struct {
	Code     string           `json:"code"`
	FullName string           `json:"full_name"`
	Vector   biometric.Vector `json:"vector"`
}

// Enroll creates a subject or replaces the vector of an existing code. It
// accepts a multipart form with code, full_name and file, or JSON with a vector.
func (h *SubjectsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollment.Request

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
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
		req = enrollment.Request{
			Code:     r.FormValue("code"),
			FullName: r.FormValue("full_name"),
			Image:    image,
		}
	} else {
		var body enrollRequest
		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxJSONBodySize)
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
		req = enrollment.Request{
			Code:     body.Code,
			FullName: body.FullName,
			Vector:   body.Vector,
		}
	}

	saved, err := h.service.Enroll(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, subjectToResponse(saved))
}

// List returns active subjects, optionally filtered by ?q=.
func (h *SubjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.service.ListActive(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	response := make([]SubjectResponse, len(subjects))
	for i := range subjects {
		response[i] = subjectToResponse(subjects[i])
	}
	respondJSON(w, http.StatusOK, response)
}

// Get returns a single subject, active or not.
func (h *SubjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	subject, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, subjectToResponse(*subject))
}

// Deactivate soft-deletes a subject.
func (h *SubjectsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deactivated": true})
}
