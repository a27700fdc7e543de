package api

import (
	"net/http"

	"github.com/nerrad567/tuya-bridge/internal/bridge"
)

// handleHealth returns the bridge health snapshot. Degraded and stopping
// bridges answer 503 so container health checks can act on it.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.bridge.Health()

	status := http.StatusOK
	if snap.Status == bridge.HealthDegraded || snap.Status == bridge.HealthStopping {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}
