package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/tuya-bridge/internal/state"
)

// MeasurementChannelState is the measurement every change is written to.
const MeasurementChannelState = "channel_state"

// Name identifies this sink in logs and metrics.
func (c *Client) Name() string { return "influxdb" }

// WriteChange queues one channel change as a point. It does not block on
// the network; delivery errors surface through SetOnError.
func (c *Client) WriteChange(_ context.Context, ev state.ChangeEvent) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(changePoint(ev))
	return nil
}

// changePoint builds the point for ev. Tags are device_id and channel.
// Booleans are written as an "on" field plus a numeric "value" so they can
// be graphed; numbers go to "value" and strings to "text".
func changePoint(ev state.ChangeEvent) *write.Point {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := make(map[string]interface{}, 2)
	switch v := ev.NewValue.(type) {
	case bool:
		fields["on"] = v
		if v {
			fields["value"] = 1.0
		} else {
			fields["value"] = 0.0
		}
	case float64:
		fields["value"] = v
	case string:
		fields["text"] = v
	default:
		fields["text"] = fmt.Sprint(v)
	}

	return write.NewPoint(
		MeasurementChannelState,
		map[string]string{
			"device_id": ev.DeviceID,
			"channel":   ev.Channel,
		},
		fields,
		ts,
	)
}
