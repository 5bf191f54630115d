package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// getPaper handles GET /api/v1/papers/{paperID}.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	paperID, ok := s.paperIDParam(w, r)
	if !ok {
		return
	}

	record, err := s.papers.GetByID(r.Context(), paperID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// listReferences handles GET /api/v1/papers/{paperID}/references.
func (s *Server) listReferences(w http.ResponseWriter, r *http.Request) {
	paperID, ok := s.paperIDParam(w, r)
	if !ok {
		return
	}

	if _, err := s.papers.GetByID(r.Context(), paperID); err != nil {
		writeDomainError(w, err)
		return
	}
	refs, err := s.papers.ListReferences(r.Context(), paperID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, referencesResponse{PaperID: paperID, References: refs})
}

// paperIDParam checks that persistence is enabled and that the path id is
// a UUID. The parse error is not echoed back.
func (s *Server) paperIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.papers == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "paper storage is disabled")
		return "", false
	}
	raw := chi.URLParam(r, "paperID")
	if _, err := uuid.Parse(raw); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "paper_id must be a valid UUID")
		return "", false
	}
	return raw, true
}
