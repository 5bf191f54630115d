package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/helixir/paper-search-engine/internal/observability"
)

const maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies

// decodeAndValidate reads a JSON body into dst and validates it. It writes
// the error response itself and reports whether the handler may proceed.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeInvalidArgument, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, codeInvalidArgument, "invalid JSON request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidArgument, validationMessage(err))
		return false
	}
	return true
}

// search handles POST /api/v1/search.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := s.engine.Run(r.Context(), strings.TrimSpace(req.Query), req.toDomain())
	if err != nil {
		s.logFailure(r, err, "search failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// searchAndIngest handles POST /api/v1/search/ingest.
func (s *Server) searchAndIngest(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := s.engine.SearchAndIngest(r.Context(), strings.TrimSpace(req.Query), req.toDomain())
	if err != nil {
		s.logFailure(r, err, "search and ingest failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// batchSearchAndIngest handles POST /api/v1/search/batch. The request runs
// to completion before responding, so long batches need a generous write
// timeout.
func (s *Server) batchSearchAndIngest(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	results, err := s.engine.BatchSearchAndIngest(r.Context(), req.Queries, req.toDomain())
	if err != nil {
		s.logFailure(r, err, "batch search failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

// listProviders handles GET /api/v1/providers.
func (s *Server) listProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, providersResponse{Providers: s.engine.Providers()})
}

func (s *Server) logFailure(r *http.Request, err error, msg string) {
	logger := observability.LoggerWithContext(r.Context(), s.logger)
	logger.Warn().Err(err).Msg(msg)
}
