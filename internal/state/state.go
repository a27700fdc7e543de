// Package state holds the last successfully fetched channel values per
// device and computes change events against new status responses.
package state

import (
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/tuya-bridge/internal/device"
)

// ChangeEvent is one channel whose value differs from the stored one.
type ChangeEvent struct {
	DeviceID string
	Channel  string
	OldValue any
	NewValue any

	// HadOld is false the first time a channel is seen.
	HadOld    bool
	Timestamp time.Time
}

// Snapshot is a copy of one device's channel values.
type Snapshot map[string]any

// Store is the lock-protected channel state for all devices.
// Entries only ever come from successful status responses.
type Store struct {
	mu      sync.RWMutex
	devices map[string]map[string]any
	updated map[string]time.Time
	now     func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		devices: make(map[string]map[string]any),
		updated: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Apply merges a status response into the device's state and returns one
// event per channel that was absent or held a different value, in status
// order. Channels missing from status are left untouched. Applying the
// same status twice yields no events the second time.
func (s *Store) Apply(deviceID string, status device.Status) []ChangeEvent {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	channels, ok := s.devices[deviceID]
	if !ok {
		channels = make(map[string]any, len(status))
		s.devices[deviceID] = channels
	}
	s.updated[deviceID] = now

	var events []ChangeEvent
	for _, cv := range status {
		old, had := channels[cv.Channel]
		if had && equal(old, cv.Value) {
			continue
		}
		channels[cv.Channel] = cv.Value
		events = append(events, ChangeEvent{
			DeviceID:  deviceID,
			Channel:   cv.Channel,
			OldValue:  old,
			NewValue:  cv.Value,
			HadOld:    had,
			Timestamp: now,
		})
	}
	return events
}

// Get returns the stored value for one channel.
func (s *Store) Get(deviceID, channel string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.devices[deviceID][channel]
	return v, ok
}

// Snapshot returns a copy of a device's state.
func (s *Store) Snapshot(deviceID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	channels, ok := s.devices[deviceID]
	if !ok {
		return nil, false
	}
	out := make(Snapshot, len(channels))
	for k, v := range channels {
		out[k] = v
	}
	return out, true
}

// LastUpdated returns when the device last had a successful fetch applied.
func (s *Store) LastUpdated(deviceID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.updated[deviceID]
	return t, ok
}

// Reset forgets everything known about a device, so the next successful
// fetch republishes every channel. It reports whether the device was known.
func (s *Store) Reset(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.devices[deviceID]
	delete(s.devices, deviceID)
	delete(s.updated, deviceID)
	return ok
}

// Events returns a synthetic event for every known channel of every
// device, ordered by device id then channel. Used for periodic resync.
func (s *Store) Events() []ChangeEvent {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var events []ChangeEvent
	for _, id := range ids {
		channels := s.devices[id]
		keys := make([]string, 0, len(channels))
		for ch := range channels {
			keys = append(keys, ch)
		}
		sort.Strings(keys)
		for _, ch := range keys {
			v := channels[ch]
			events = append(events, ChangeEvent{
				DeviceID:  id,
				Channel:   ch,
				OldValue:  v,
				NewValue:  v,
				HadOld:    true,
				Timestamp: now,
			})
		}
	}
	return events
}

// Devices returns the ids with stored state, sorted.
func (s *Store) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// equal compares channel values. Scalars compare by type and value;
// decoded JSON objects and arrays compare structurally.
func equal(a, b any) bool {
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return reflect.DeepEqual(a, b)
	}
}
