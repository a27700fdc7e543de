package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthStatus represents the bridge health state.
type HealthStatus string

// Health status values.
const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// DefaultHealthInterval is used when no interval is configured.
const DefaultHealthInterval = 30 * time.Second

// HealthSnapshot is the health payload published to the bus and served
// by the diagnostics API.
type HealthSnapshot struct {
	BridgeID        string       `json:"bridge_id"`
	Status          HealthStatus `json:"status"`
	Reason          string       `json:"reason,omitempty"`
	Version         string       `json:"version"`
	UptimeSeconds   int64        `json:"uptime_seconds"`
	MQTTConnected   bool         `json:"mqtt_connected"`
	DevicesActive   int          `json:"devices_active"`
	DevicesExcluded int          `json:"devices_excluded"`
	DevicesFailing  int          `json:"devices_failing"`
	PollPhase       string       `json:"poll_phase"`
	LastPoll        time.Time    `json:"last_poll,omitzero"`
	Timestamp       time.Time    `json:"timestamp"`
}

// HealthReporter periodically publishes a retained health message.
type HealthReporter struct {
	topic     string
	interval  time.Duration
	publisher MQTTClient
	snapshot  func() HealthSnapshot
	logger    Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter that publishes snapshot() to topic.
func NewHealthReporter(topic string, interval time.Duration, publisher MQTTClient, snapshot func() HealthSnapshot, logger Logger) *HealthReporter {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &HealthReporter{
		topic:     topic,
		interval:  interval,
		publisher: publisher,
		snapshot:  snapshot,
		logger:    orNoop(logger),
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting. The first report is sent immediately.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		snap := h.snapshot()
		snap.Status = HealthStopping
		snap.Reason = ""
		//nolint:errcheck // Best-effort during shutdown
		h.publish(snap)
	})
}

// PublishNow publishes the current health immediately.
func (h *HealthReporter) PublishNow() error {
	return h.publish(h.snapshot())
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	snap := h.snapshot()
	snap.Status = HealthStarting
	snap.Reason = "bridge starting"
	return h.publish(snap)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Error("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

func (h *HealthReporter) publish(snap HealthSnapshot) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}
