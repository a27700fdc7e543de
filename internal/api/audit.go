package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/tuya-bridge/internal/audit"
)

// handleListCommands returns the command audit log, newest first.
//
// Query parameters:
//   - device_id: filter by device
//   - failed: "true" for failed commands only
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{DeviceID: q.Get("device_id")}

	if v := q.Get("failed"); v != "" {
		failed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeInvalidQuery, "failed must be a boolean")
			return
		}
		filter.Failed = failed
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeInvalidQuery, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeInvalidQuery, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list command audit", "error", err)
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "command audit log unavailable")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
