// Package influxdb records channel state changes in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Each detected change
// becomes one point in the "channel_state" measurement, tagged with the
// device id and channel, so switch history can be graphed next to other
// telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	// *Client satisfies bridge.Sink.
//	sinks = append(sinks, client)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval.
//
// # Error Handling
//
// Delivery errors are asynchronous and reported through SetOnError.
// Connection and health check errors are returned directly.
package influxdb
