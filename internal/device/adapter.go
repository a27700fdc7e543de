package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Operation names used in OpError.Op.
const (
	OpStatus     = "status"
	OpSetChannel = "set_channel"
)

// ChannelValue is one data point from a status response.
// Value holds a bool, a float64 or a string.
type ChannelValue struct {
	Channel string
	Value   any
}

// Status is a status response in device order.
type Status []ChannelValue

// Get returns the value reported for channel.
func (s Status) Get(channel string) (any, bool) {
	for _, cv := range s {
		if cv.Channel == channel {
			return cv.Value, true
		}
	}
	return nil, false
}

// Map returns the status as a map. Order is lost.
func (s Status) Map() map[string]any {
	m := make(map[string]any, len(s))
	for _, cv := range s {
		m[cv.Channel] = cv.Value
	}
	return m
}

// Adapter is the per-device RPC capability.
//
// Implementations must honour ctx cancellation and deadlines and must not
// retry. SetChannel is idempotent: setting a channel to its current value
// succeeds without side effects.
type Adapter interface {
	Status(ctx context.Context) (Status, error)
	SetChannel(ctx context.Context, channel int, on bool) error
}

// ParseChannel converts a channel id from a topic into the integer the
// device protocol expects.
func ParseChannel(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChannel, s)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %d is not positive", ErrInvalidChannel, n)
	}
	return n, nil
}
