package api

import (
	"encoding/json"
	"net/http"

	"equiprent/internal/domain"
)

var statusByKind = map[domain.Kind]int{
	domain.KindInvalidRange:      http.StatusBadRequest,
	domain.KindInvalidDuration:   http.StatusBadRequest,
	domain.KindNotFound:          http.StatusNotFound,
	domain.KindInactive:          http.StatusConflict,
	domain.KindSelfBooking:       http.StatusConflict,
	domain.KindConflict:          http.StatusConflict,
	domain.KindInvalidTransition: http.StatusConflict,
	domain.KindForbidden:         http.StatusForbidden,
	domain.KindStoreUnavailable:  http.StatusServiceUnavailable,
	domain.KindInvalidUpdate:     http.StatusBadRequest,
}

func statusForKind(kind domain.Kind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeProblem(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorResponse{Error: code, Message: message})
}

// writeError renders a service error. Internal details stay in the logs.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Str("kind", string(kind)).Msg("request failed")
	}
	writeProblem(w, status, string(kind), domain.Message(kind))
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeProblem(w, http.StatusBadRequest, "BadRequest", message)
}
