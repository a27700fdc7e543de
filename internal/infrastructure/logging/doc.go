// Package logging provides structured logging for the Tuya bridge.
//
// It wraps log/slog so every component logs with the same handler,
// the same default fields (service, version) and the same level filter.
//
// Configuration lives under the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Device local keys and broker passwords must never be logged.
package logging
