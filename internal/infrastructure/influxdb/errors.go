package influxdb

import "errors"

// Errors a change sink can return. Point delivery is asynchronous, so a
// rejected or undeliverable batch never comes back from WriteChange; it
// reaches the SetOnError callback wrapped in ErrWriteFailed.
var (
	// ErrDisabled means influxdb.enabled is false and the sink is skipped.
	ErrDisabled = errors.New("influxdb sink: disabled in configuration")

	// ErrConnectionFailed means the startup ping failed or the server
	// reported itself unhealthy.
	ErrConnectionFailed = errors.New("influxdb sink: server unreachable at startup")

	// ErrNotConnected is returned after Close and by a zero Client.
	ErrNotConnected = errors.New("influxdb sink: closed")

	// ErrWriteFailed wraps a batch of channel_state points the server
	// rejected (bad token, missing bucket) or that could not be sent.
	ErrWriteFailed = errors.New("influxdb sink: batch write failed")
)
