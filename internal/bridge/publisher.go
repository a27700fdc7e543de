package bridge

import (
	"context"
	"time"

	"github.com/nerrad567/tuya-bridge/internal/metrics"
	"github.com/nerrad567/tuya-bridge/internal/state"
	"github.com/nerrad567/tuya-bridge/internal/topic"
)

// sinkTimeout bounds a single sink write.
const sinkTimeout = 2 * time.Second

// StatePublisher writes change events to retained state topics and fans
// them out to the configured sinks.
type StatePublisher struct {
	client  MQTTClient
	router  topic.Router
	qos     byte
	sinks   []Sink
	metrics *metrics.Metrics
	logger  Logger
}

// NewStatePublisher creates a publisher. sinks and m may be nil.
func NewStatePublisher(client MQTTClient, router topic.Router, qos byte, sinks []Sink, m *metrics.Metrics, logger Logger) *StatePublisher {
	return &StatePublisher{
		client:  client,
		router:  router,
		qos:     qos,
		sinks:   sinks,
		metrics: m,
		logger:  orNoop(logger),
	}
}

// Publish sends each event to the bus in order, then to every sink.
// It returns how many bus publishes succeeded. Failures are logged and
// counted, never retried here.
func (p *StatePublisher) Publish(ctx context.Context, events []state.ChangeEvent) int {
	published := 0
	for _, ev := range events {
		if p.publishOne(ev) {
			published++
		}
		p.fanOut(ctx, ev)
	}
	return published
}

// Republish sends events to the bus only. Used for periodic resync, where
// nothing actually changed.
func (p *StatePublisher) Republish(events []state.ChangeEvent) int {
	published := 0
	for _, ev := range events {
		if p.publishOne(ev) {
			published++
		}
	}
	return published
}

func (p *StatePublisher) publishOne(ev state.ChangeEvent) bool {
	t := p.router.StateTopic(ev.DeviceID, ev.Channel)
	payload := topic.StatePayload(ev.NewValue)

	if err := p.client.Publish(t, []byte(payload), p.qos, true); err != nil {
		p.metrics.PublishError()
		p.logger.Warn("state publish failed",
			"device_id", ev.DeviceID,
			"channel", ev.Channel,
			"topic", t,
			"error", err,
		)
		return false
	}

	p.logger.Debug("state published", "topic", t, "payload", payload)
	return true
}

func (p *StatePublisher) fanOut(ctx context.Context, ev state.ChangeEvent) {
	for _, sink := range p.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := sink.WriteChange(sinkCtx, ev)
		cancel()
		if err != nil {
			p.metrics.SinkError(sink.Name())
			p.logger.Warn("sink write failed",
				"sink", sink.Name(),
				"device_id", ev.DeviceID,
				"channel", ev.Channel,
				"error", err,
			)
		}
	}
}
