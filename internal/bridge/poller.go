package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tuya-bridge/internal/device"
	"github.com/nerrad567/tuya-bridge/internal/metrics"
	"github.com/nerrad567/tuya-bridge/internal/state"
)

// Poller defaults.
const (
	DefaultPollInterval = time.Second
	DefaultFetchTimeout = 5 * time.Second
)

// Phase is where the poll loop currently is.
type Phase int32

// Poll loop phases.
const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseDiffing
	PhaseSleeping
)

func (p Phase) String() string {
	switch p {
	case PhaseFetching:
		return "fetching"
	case PhaseDiffing:
		return "diffing"
	case PhaseSleeping:
		return "sleeping"
	default:
		return "idle"
	}
}

// PollerConfig controls the poll loop.
type PollerConfig struct {
	// Interval is the fixed period between pass starts.
	Interval time.Duration

	// Timeout bounds each device fetch.
	Timeout time.Duration

	// ResyncInterval republishes all known state when > 0.
	ResyncInterval time.Duration
}

// DeviceHealth is the poller's view of one device.
type DeviceHealth struct {
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Reachable reports whether the most recent fetch succeeded.
func (h DeviceHealth) Reachable() bool {
	return !h.LastSuccess.IsZero() && h.ConsecutiveFailures == 0
}

// Poller periodically fetches every device's status and publishes changes.
type Poller struct {
	cfg       PollerConfig
	pool      DevicePool
	store     *state.Store
	publisher *StatePublisher
	metrics   *metrics.Metrics
	logger    Logger

	phase    atomic.Int32
	lastPass atomic.Int64 // unix nanos of last completed pass

	healthMu sync.RWMutex
	health   map[string]DeviceHealth
}

// NewPoller creates a poller. Zero config fields take defaults.
func NewPoller(cfg PollerConfig, pool DevicePool, store *state.Store, publisher *StatePublisher, m *metrics.Metrics, logger Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	return &Poller{
		cfg:       cfg,
		pool:      pool,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    orNoop(logger),
		health:    make(map[string]DeviceHealth),
	}
}

// Phase returns the current loop phase.
func (p *Poller) Phase() Phase {
	return Phase(p.phase.Load())
}

// LastPass returns when the most recent pass finished.
func (p *Poller) LastPass() time.Time {
	n := p.lastPass.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Health returns the fetch health of one device.
func (p *Poller) Health(deviceID string) (DeviceHealth, bool) {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	h, ok := p.health[deviceID]
	return h, ok
}

// Failing returns how many devices failed their most recent fetch.
func (p *Poller) Failing() int {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	n := 0
	for _, h := range p.health {
		if h.ConsecutiveFailures > 0 {
			n++
		}
	}
	return n
}

// Run polls until ctx is cancelled. The first pass starts immediately.
func (p *Poller) Run(ctx context.Context) {
	defer p.phase.Store(int32(PhaseIdle))

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	var resync <-chan time.Time
	if p.cfg.ResyncInterval > 0 {
		resyncTicker := time.NewTicker(p.cfg.ResyncInterval)
		defer resyncTicker.Stop()
		resync = resyncTicker.C
	}

	for {
		p.Tick(ctx)

		p.phase.Store(int32(PhaseSleeping))
		select {
		case <-ctx.Done():
			return
		case <-resync:
			p.Resync()
			// The next pass still waits for the poll ticker.
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		case <-ticker.C:
		}
	}
}

// Tick runs one sequential pass over all pooled devices and returns the
// change events it published.
func (p *Poller) Tick(ctx context.Context) []state.ChangeEvent {
	start := time.Now()
	var all []state.ChangeEvent

	for _, id := range p.pool.IDs() {
		if ctx.Err() != nil {
			break
		}
		events, ok := p.pollDevice(ctx, id)
		if !ok {
			continue
		}
		all = append(all, events...)
	}

	p.lastPass.Store(time.Now().UnixNano())
	p.metrics.ObservePoll(time.Since(start))
	return all
}

func (p *Poller) pollDevice(ctx context.Context, id string) ([]state.ChangeEvent, bool) {
	adapter, ok := p.pool.Get(id)
	if !ok {
		return nil, false
	}

	p.phase.Store(int32(PhaseFetching))
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	status, err := adapter.Status(fetchCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		p.recordFailure(id, err)
		return nil, false
	}
	p.recordSuccess(id)

	p.phase.Store(int32(PhaseDiffing))
	events := p.store.Apply(id, status)
	if len(events) == 0 {
		return nil, true
	}

	p.metrics.StateChange(id, len(events))
	for _, ev := range events {
		p.logger.Info("state changed",
			"device_id", ev.DeviceID,
			"channel", ev.Channel,
			"old", ev.OldValue,
			"new", ev.NewValue,
		)
	}
	p.publisher.Publish(ctx, events)
	return events, true
}

// Resync republishes every known channel, retained, to the bus.
func (p *Poller) Resync() int {
	events := p.store.Events()
	n := p.publisher.Republish(events)
	p.logger.Debug("state resync published", "channels", len(events), "published", n)
	return n
}

func (p *Poller) recordFailure(id string, err error) {
	kind := errorKind(err)
	p.metrics.FetchError(id, kind)

	p.healthMu.Lock()
	h := p.health[id]
	h.LastFailure = time.Now()
	h.LastError = err.Error()
	h.ConsecutiveFailures++
	failures := h.ConsecutiveFailures
	p.health[id] = h
	p.healthMu.Unlock()

	// First failure is a warning; repeats are debug to keep a dead plug quiet.
	if failures == 1 {
		p.logger.Warn("device fetch failed", "device_id", id, "kind", kind, "error", err)
	} else {
		p.logger.Debug("device fetch failed", "device_id", id, "kind", kind, "failures", failures, "error", err)
	}
}

func (p *Poller) recordSuccess(id string) {
	p.healthMu.Lock()
	h := p.health[id]
	recovered := h.ConsecutiveFailures > 0
	h.LastSuccess = time.Now()
	h.ConsecutiveFailures = 0
	h.LastError = ""
	p.health[id] = h
	p.healthMu.Unlock()

	if recovered {
		p.logger.Info("device reachable again", "device_id", id)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, device.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, device.ErrProtocol):
		return "protocol"
	default:
		return "other"
	}
}
