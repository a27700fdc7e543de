package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nerrad567/tuya-bridge/internal/infrastructure/config"
	"github.com/nerrad567/tuya-bridge/internal/state"
	"github.com/nerrad567/tuya-bridge/internal/topic"
)

const (
	clientName    = "tuyabridge"
	reconnectWait = 2 * time.Second
)

// Sentinel errors.
var (
	// ErrDisabled indicates NATS is disabled in configuration.
	ErrDisabled = errors.New("natsbus: disabled in configuration")

	// ErrConnectionFailed indicates the client could not be created.
	ErrConnectionFailed = errors.New("natsbus: connection failed")
)

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// publisher is the part of *nats.Conn the bus uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// ChangeMessage is the JSON body of a state change message.
type ChangeMessage struct {
	DeviceID    string    `json:"device_id"`
	Channel     string    `json:"channel"`
	Value       any       `json:"value"`
	Payload     string    `json:"payload"`
	Previous    any       `json:"previous,omitempty"`
	HadPrevious bool      `json:"had_previous"`
	Timestamp   time.Time `json:"timestamp"`
}

// Bus publishes change events to NATS.
//
// Thread Safety: All methods are safe for concurrent use.
type Bus struct {
	conn   *nats.Conn
	pub    publisher
	prefix string
}

// Connect dials the configured server. The initial connect retries in the
// background, so an unavailable server is not an error here.
func Connect(cfg config.NATSConfig, prefix string, logger Logger) (*Bus, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = noopLogger{}
	}

	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url,
		nats.Name(clientName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats connected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	b := New(nc, prefix)
	b.conn = nc
	return b, nil
}

// New returns a Bus publishing through pub. Connect uses it with a
// *nats.Conn.
func New(pub publisher, prefix string) *Bus {
	return &Bus{pub: pub, prefix: prefix}
}

// Name identifies this sink in logs and metrics.
func (b *Bus) Name() string { return "nats" }

// Subject returns the subject for one channel.
func (b *Bus) Subject(deviceID, channel string) string {
	return b.prefix + ".state." + token(deviceID) + "." + token(channel)
}

// WriteChange publishes ev as a ChangeMessage.
func (b *Bus) WriteChange(ctx context.Context, ev state.ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := ChangeMessage{
		DeviceID:    ev.DeviceID,
		Channel:     ev.Channel,
		Value:       ev.NewValue,
		Payload:     topic.FormatValue(ev.NewValue),
		HadPrevious: ev.HadOld,
		Timestamp:   ev.Timestamp.UTC(),
	}
	if ev.HadOld {
		msg.Previous = ev.OldValue
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := b.pub.Publish(b.Subject(ev.DeviceID, ev.Channel), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (b *Bus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Close drains pending messages and closes the connection.
func (b *Bus) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Drain()
}

// token makes s safe as a single subject token.
func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}
