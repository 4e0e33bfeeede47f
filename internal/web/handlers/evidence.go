package handlers

import (
	"context"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// EvidenceReader opens stored evidence photos.
type EvidenceReader interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// EvidenceHandler serves stored evidence and enrollment photos.
type EvidenceHandler struct {
	store EvidenceReader
}

// NewEvidenceHandler creates a new evidence handler.
func NewEvidenceHandler(store EvidenceReader) *EvidenceHandler {
	return &EvidenceHandler{store: store}
}

// Get streams a stored JPEG.
func (h *EvidenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	f, err := h.store.Open(r.Context(), ref)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("failed to stream evidence %s: %v", sanitizeForLog(ref), err)
	}
}
