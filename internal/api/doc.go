// Package api provides the optional diagnostics HTTP server.
//
// Endpoints:
//
//	GET  /healthz                      bridge health snapshot
//	GET  /metrics                      Prometheus metrics
//	GET  /api/v1/devices               registry devices with live state
//	GET  /api/v1/devices/{id}          one device
//	POST /api/v1/devices/{id}/resync   forget state so the next poll republishes
//	GET  /api/v1/commands              command audit log (when enabled)
//
// Local keys are never part of any response.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
