package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/lmsstorage/internal/common"
)

type errorResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// statusFor maps an error kind onto its HTTP status.
func statusFor(err error) int {
	if errors.Is(err, common.ErrInvalidToken) {
		return http.StatusUnauthorized
	}
	switch common.KindOf(err) {
	case common.ErrInvalidArgument:
		return http.StatusBadRequest
	case common.ErrForbidden:
		return http.StatusForbidden
	case common.ErrNotFound:
		return http.StatusNotFound
	case common.ErrConflict:
		return http.StatusConflict
	case common.ErrStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is the client-facing text of err. Only validation failures keep
// their detail, everything else is reduced to the kind name.
func messageFor(err error) string {
	kind := common.KindOf(err)
	if errors.Is(err, common.ErrInvalidToken) {
		return common.ErrInvalidToken.Error()
	}
	if kind == common.ErrInvalidArgument {
		return err.Error()
	}
	return kind.Error()
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSONError(w, status, messageFor(err))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Success: false})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
