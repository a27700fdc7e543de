package device

import (
	"fmt"
	"sort"

	"github.com/nerrad567/tuya-bridge/internal/registry"
)

// Logger defines the logging interface used by the Pool.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Factory builds an Adapter for one registry record.
type Factory func(rec registry.Record) (Adapter, error)

// Pool maps device ids to serialized adapters. It is built once at
// startup and read-only afterwards.
type Pool struct {
	adapters map[string]Adapter
	order    []string
	failed   map[string]error
}

// NewPool builds adapters for every active record. A factory error
// excludes that device and is logged; it does not fail the pool.
func NewPool(reg *registry.Registry, factory Factory, logger Logger) *Pool {
	if logger == nil {
		logger = noopLogger{}
	}

	p := &Pool{
		adapters: make(map[string]Adapter),
		failed:   make(map[string]error),
	}

	for _, rec := range reg.Active() {
		a, err := factory(rec)
		if err != nil {
			p.failed[rec.ID] = err
			logger.Warn("device excluded: adapter setup failed",
				"device_id", rec.ID,
				"name", rec.DisplayName(),
				"error", err,
			)
			continue
		}
		p.adapters[rec.ID] = Serialize(a)
		p.order = append(p.order, rec.ID)
	}

	return p
}

// Get returns the adapter for id.
func (p *Pool) Get(id string) (Adapter, bool) {
	a, ok := p.adapters[id]
	return a, ok
}

// IDs returns the pooled device ids in registry order.
func (p *Pool) IDs() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Len returns the number of pooled devices.
func (p *Pool) Len() int {
	return len(p.order)
}

// Failed returns the setup error per excluded device id, sorted by id.
func (p *Pool) Failed() []error {
	ids := make([]string, 0, len(p.failed))
	for id := range p.failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]error, 0, len(ids))
	for _, id := range ids {
		out = append(out, fmt.Errorf("%s: %w", id, p.failed[id]))
	}
	return out
}
