package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/tuya-bridge/internal/metrics"
	"github.com/nerrad567/tuya-bridge/internal/registry"
	"github.com/nerrad567/tuya-bridge/internal/state"
	"github.com/nerrad567/tuya-bridge/internal/topic"
)

// excludedAdapterFailed is the reason given for a device that has a usable
// address but no adapter.
const excludedAdapterFailed = "adapter setup failed"

// Config holds the bridge-level settings.
type Config struct {
	ID             string
	Version        string
	QoS            byte
	HealthInterval time.Duration
	Poller         PollerConfig
	Dispatcher     DispatcherConfig
}

// Options holds everything needed to build a Bridge.
type Options struct {
	Config     Config
	Router     topic.Router
	MQTTClient MQTTClient
	Registry   *registry.Registry
	Pool       DevicePool

	// Store is created when nil.
	Store *state.Store

	// Sinks, Audit, Metrics and Logger are optional.
	Sinks   []Sink
	Audit   AuditRecorder
	Metrics *metrics.Metrics
	Logger  Logger
}

// Bridge wires the poller, dispatcher and health reporter together.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg      Config
	router   topic.Router
	mqtt     MQTTClient
	registry *registry.Registry
	pool     DevicePool
	store    *state.Store
	metrics  *metrics.Metrics
	logger   Logger

	publisher  *StatePublisher
	poller     *Poller
	dispatcher *Dispatcher
	health     *HealthReporter

	startTime time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New validates opts and builds a Bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, errors.New("MQTT client is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("device registry is required")
	}
	if opts.Pool == nil {
		return nil, errors.New("device pool is required")
	}
	if opts.Router.Namespace == "" {
		return nil, errors.New("topic namespace is required")
	}

	store := opts.Store
	if store == nil {
		store = state.NewStore()
	}
	logger := orNoop(opts.Logger)

	b := &Bridge{
		cfg:       opts.Config,
		router:    opts.Router,
		mqtt:      opts.MQTTClient,
		registry:  opts.Registry,
		pool:      opts.Pool,
		store:     store,
		metrics:   opts.Metrics,
		logger:    logger,
		startTime: time.Now(),
	}

	b.publisher = NewStatePublisher(opts.MQTTClient, opts.Router, opts.Config.QoS, opts.Sinks, opts.Metrics, logger)
	b.poller = NewPoller(opts.Config.Poller, opts.Pool, store, b.publisher, opts.Metrics, logger)
	b.dispatcher = NewDispatcher(opts.Config.Dispatcher, opts.MQTTClient, opts.Router, opts.Registry, opts.Pool, opts.Audit, opts.Metrics, logger)
	b.health = NewHealthReporter(opts.Router.HealthTopic(), opts.Config.HealthInterval, opts.MQTTClient, b.Health, logger)

	return b, nil
}

// Start subscribes to commands, then starts polling and health reporting.
// It returns once everything is running; a subscribe failure is returned.
func (b *Bridge) Start(ctx context.Context) error {
	var err error
	b.startOnce.Do(func() {
		err = b.start(ctx)
	})
	return err
}

func (b *Bridge) start(ctx context.Context) error {
	for _, rec := range b.registry.Excluded() {
		b.logger.Info("device not polled",
			"device_id", rec.ID,
			"name", rec.DisplayName(),
			"address", rec.Address,
			"reason", rec.Exclusion(),
		)
	}
	active := len(b.pool.IDs())
	b.metrics.SetDevices(active, b.registry.Len()-active)

	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	if err := b.dispatcher.Start(runCtx); err != nil {
		cancel()
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.poller.Run(runCtx)
	}()

	b.health.Start(runCtx)

	b.logger.Info("bridge started",
		"bridge_id", b.cfg.ID,
		"namespace", b.router.Namespace,
		"devices", active,
		"poll_interval", b.poller.cfg.Interval,
	)
	return nil
}

// Stop shuts down polling and command handling, then publishes a final
// stopping status. State is not flushed anywhere.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		b.dispatcher.Stop()
		b.wg.Wait()
		b.health.Stop()
		b.logger.Info("bridge stopped")
	})
}

// Store returns the channel state store.
func (b *Bridge) Store() *state.Store { return b.store }

// Poller returns the poller.
func (b *Bridge) Poller() *Poller { return b.poller }

// Dispatcher returns the command dispatcher.
func (b *Bridge) Dispatcher() *Dispatcher { return b.dispatcher }

// Health builds the current health snapshot.
func (b *Bridge) Health() HealthSnapshot {
	active := len(b.pool.IDs())
	failing := b.poller.Failing()
	connected := b.mqtt.IsConnected()

	snap := HealthSnapshot{
		BridgeID:        b.cfg.ID,
		Status:          HealthHealthy,
		Version:         b.cfg.Version,
		UptimeSeconds:   int64(time.Since(b.startTime).Seconds()),
		MQTTConnected:   connected,
		DevicesActive:   active,
		DevicesExcluded: b.registry.Len() - active,
		DevicesFailing:  failing,
		PollPhase:       b.poller.Phase().String(),
		LastPoll:        b.poller.LastPass(),
		Timestamp:       time.Now().UTC(),
	}

	switch {
	case !connected:
		snap.Status, snap.Reason = HealthDegraded, "MQTT disconnected"
	case active > 0 && failing == active:
		snap.Status, snap.Reason = HealthDegraded, "all devices unreachable"
	}
	return snap
}

// DeviceInfo is a device's registry entry joined with its live state.
// The local key is never included.
type DeviceInfo struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Address     string         `json:"address,omitempty"`
	Version     float64        `json:"version"`
	Polled      bool           `json:"polled"`
	Excluded    string         `json:"excluded,omitempty"`
	State       map[string]any `json:"state,omitempty"`
	LastUpdated time.Time      `json:"last_updated,omitzero"`
	Health      *DeviceHealth  `json:"health,omitempty"`
}

// Devices returns every registry device in registry order.
func (b *Bridge) Devices() []DeviceInfo {
	records := b.registry.All()
	out := make([]DeviceInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, b.deviceInfo(rec))
	}
	return out
}

// Device returns one registry device.
func (b *Bridge) Device(id string) (DeviceInfo, bool) {
	rec, ok := b.registry.Lookup(id)
	if !ok {
		return DeviceInfo{}, false
	}
	return b.deviceInfo(rec), true
}

func (b *Bridge) deviceInfo(rec registry.Record) DeviceInfo {
	info := DeviceInfo{
		ID:      rec.ID,
		Name:    rec.DisplayName(),
		Address: rec.Address,
		Version: rec.Version,
	}

	_, info.Polled = b.pool.Get(rec.ID)
	switch {
	case !rec.HasAddress():
		info.Excluded = rec.Exclusion()
	case !info.Polled:
		info.Excluded = excludedAdapterFailed
	}

	if snap, ok := b.store.Snapshot(rec.ID); ok {
		info.State = snap
	}
	if t, ok := b.store.LastUpdated(rec.ID); ok {
		info.LastUpdated = t
	}
	if h, ok := b.poller.Health(rec.ID); ok {
		info.Health = &h
	}
	return info
}

// Resync forgets a device's state so the next successful poll republishes
// every channel. It reports false for ids not in the registry.
func (b *Bridge) Resync(id string) bool {
	if _, ok := b.registry.Lookup(id); !ok {
		return false
	}
	b.store.Reset(id)
	b.logger.Info("device state reset for resync", "device_id", id)
	return true
}
