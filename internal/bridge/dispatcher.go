package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/tuya-bridge/internal/device"
	"github.com/nerrad567/tuya-bridge/internal/metrics"
	"github.com/nerrad567/tuya-bridge/internal/registry"
	"github.com/nerrad567/tuya-bridge/internal/topic"
)

// Dispatcher defaults.
const (
	DefaultQueueSize      = 64
	DefaultWorkers        = 4
	DefaultCommandTimeout = 5 * time.Second

	auditTimeout = 2 * time.Second
)

// DispatcherConfig controls inbound command handling.
type DispatcherConfig struct {
	QueueSize      int
	Workers        int
	CommandTimeout time.Duration
}

type inbound struct {
	topic   string
	payload []byte
}

// Dispatcher decodes command messages and forwards them to device adapters.
//
// The bus callback only enqueues. A fixed set of workers drains the queue,
// so a slow or dead device never blocks the MQTT client's delivery
// goroutine. When the queue is full new messages are dropped.
type Dispatcher struct {
	cfg     DispatcherConfig
	client  MQTTClient
	router  topic.Router
	devices DeviceLookup
	pool    DevicePool
	audit   AuditRecorder
	metrics *metrics.Metrics
	logger  Logger

	queue chan inbound

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher. devices, audit and m may be nil.
func NewDispatcher(cfg DispatcherConfig, client MQTTClient, router topic.Router, devices DeviceLookup, pool DevicePool, audit AuditRecorder, m *metrics.Metrics, logger Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	return &Dispatcher{
		cfg:     cfg,
		client:  client,
		router:  router,
		devices: devices,
		pool:    pool,
		audit:   audit,
		metrics: m,
		logger:  orNoop(logger),
		queue:   make(chan inbound, cfg.QueueSize),
	}
}

// Start subscribes to the command filter and launches the workers.
// A subscribe failure is returned and nothing is started.
func (d *Dispatcher) Start(ctx context.Context) error {
	var err error
	d.startOnce.Do(func() {
		filter := d.router.CommandSubscription()
		if subErr := d.client.Subscribe(filter, 1, d.Enqueue); subErr != nil {
			err = fmt.Errorf("subscribe to commands: %w", subErr)
			return
		}
		d.logger.Info("subscribed to commands", "topic", filter)

		workerCtx, cancel := context.WithCancel(ctx)
		d.cancel = cancel
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker(workerCtx)
		}
	})
	return err
}

// Stop cancels in-flight commands and waits for the workers to exit.
// Queued messages that were not picked up are discarded.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()
	})
}

// Enqueue is the bus callback. It never blocks.
func (d *Dispatcher) Enqueue(t string, payload []byte) {
	msg := inbound{topic: t, payload: append([]byte(nil), payload...)}
	select {
	case d.queue <- msg:
		d.metrics.SetQueueDepth(len(d.queue))
	default:
		d.metrics.Command(metrics.OutcomeDropped)
		d.logger.Warn("command queue full, dropping message",
			"topic", t,
			"queue_size", d.cfg.QueueSize,
		)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.metrics.SetQueueDepth(len(d.queue))
			outcome := d.handle(ctx, msg)
			d.metrics.Command(outcome)
		}
	}
}

// handle processes one message and returns its outcome label.
func (d *Dispatcher) handle(ctx context.Context, msg inbound) string {
	deviceID, channel, ok := d.router.DecodeCommandTopic(msg.topic)
	if !ok {
		d.logger.Debug("ignoring message on non-command topic", "topic", msg.topic)
		return metrics.OutcomeInvalidTopic
	}

	action, err := topic.ParseAction(msg.payload)
	if err != nil {
		d.logger.Warn("unrecognised command payload",
			"device_id", deviceID,
			"channel", channel,
			"payload", truncatePayload(msg.payload),
		)
		return metrics.OutcomeInvalidAction
	}

	adapter, ok := d.pool.Get(deviceID)
	if !ok {
		return d.unroutable(deviceID, channel)
	}

	ch, err := device.ParseChannel(channel)
	if err != nil {
		d.logger.Warn("invalid command channel", "device_id", deviceID, "channel", channel, "error", err)
		return metrics.OutcomeInvalidChannel
	}

	cmdCtx, cancel := context.WithTimeout(ctx, d.cfg.CommandTimeout)
	start := time.Now()
	err = adapter.SetChannel(cmdCtx, ch, action.On())
	elapsed := time.Since(start)
	cancel()

	d.record(deviceID, channel, action, err, start, elapsed)

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			d.logger.Debug("command cancelled by shutdown", "device_id", deviceID, "channel", channel)
		} else {
			d.logger.Error("command failed",
				"device_id", deviceID,
				"channel", channel,
				"action", action.String(),
				"error", err,
			)
		}
		return metrics.OutcomeFailed
	}

	d.logger.Info("command executed",
		"device_id", deviceID,
		"channel", channel,
		"action", action.String(),
		"duration", elapsed,
	)
	return metrics.OutcomeOK
}

// unroutable reports a command whose device has no adapter, separating ids
// the registry has never heard of from registered devices that are not
// polled.
func (d *Dispatcher) unroutable(deviceID, channel string) string {
	var rec registry.Record
	known := false
	if d.devices != nil {
		rec, known = d.devices.Lookup(deviceID)
	}
	if !known {
		d.logger.Warn("command for unknown device", "device_id", deviceID, "channel", channel)
		return metrics.OutcomeUnknownDevice
	}

	reason := rec.Exclusion()
	if reason == "" {
		reason = excludedAdapterFailed
	}
	d.logger.Warn("command for device that is not polled",
		"device_id", deviceID,
		"channel", channel,
		"reason", reason,
	)
	return metrics.OutcomeNotPolled
}

func (d *Dispatcher) record(deviceID, channel string, action topic.Action, err error, start time.Time, elapsed time.Duration) {
	if d.audit == nil {
		return
	}
	rec := CommandRecord{
		DeviceID:  deviceID,
		Channel:   channel,
		Action:    action.String(),
		Success:   err == nil,
		Duration:  elapsed,
		Timestamp: start,
	}
	if err != nil {
		rec.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if auditErr := d.audit.RecordCommand(ctx, rec); auditErr != nil {
		d.logger.Warn("failed to record command audit", "device_id", deviceID, "error", auditErr)
	}
}

func truncatePayload(p []byte) string {
	const limit = 32
	if len(p) > limit {
		return string(p[:limit]) + "..."
	}
	return string(p)
}
