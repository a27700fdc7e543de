package bridge

import (
	"context"
	"time"

	"github.com/nerrad567/tuya-bridge/internal/device"
	"github.com/nerrad567/tuya-bridge/internal/registry"
	"github.com/nerrad567/tuya-bridge/internal/state"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// MQTTClient is the bus capability the bridge needs.
// main.go adapts *mqtt.Client to it.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic filter. The handler must
	// not block.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// DevicePool resolves device ids to adapters. *device.Pool satisfies it.
type DevicePool interface {
	Get(id string) (device.Adapter, bool)
	IDs() []string
}

// DeviceLookup resolves registered device ids. *registry.Registry
// satisfies it.
type DeviceLookup interface {
	Lookup(id string) (registry.Record, bool)
}

// Sink receives every detected state change after it is published to the
// bus. Sinks are optional secondary consumers (telemetry, event streams,
// caches); their failures never affect the bus publish.
type Sink interface {
	Name() string
	WriteChange(ctx context.Context, ev state.ChangeEvent) error
}

// CommandRecord describes a command that reached a device adapter.
type CommandRecord struct {
	DeviceID  string
	Channel   string
	Action    string
	Success   bool
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder persists CommandRecords. It is optional.
type AuditRecorder interface {
	RecordCommand(ctx context.Context, rec CommandRecord) error
}
