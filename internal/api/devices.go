package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListDevices returns every registry device, polled or not.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by id.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, ok := s.bridge.Device(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, CodeUnknownDevice, "device "+id+" is not in the registry")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleResyncDevice forgets a device's stored state. The next successful
// poll republishes every channel.
func (s *Server) handleResyncDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.bridge.Resync(id) {
		writeError(w, r, http.StatusNotFound, CodeUnknownDevice, "device "+id+" is not in the registry")
		return
	}
	s.logger.Info("device resync requested", "device_id", id, "request_id", r.Context().Value(ctxKeyRequestID))
	writeJSON(w, http.StatusAccepted, map[string]string{"device_id": id, "status": "resync_scheduled"})
}
