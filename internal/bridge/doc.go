// Package bridge is the state synchronisation and command routing engine.
//
// Two flows run concurrently and share only the device pool (read-only)
// and the state store (lock-protected):
//
//	Poller -> state.Store.Apply -> StatePublisher -> MQTT <ns>/<id>/<ch>/state
//	MQTT <ns>/+/+/set -> Dispatcher queue -> workers -> device.Adapter
//
// The poller makes one sequential pass over all active devices per tick.
// A failed fetch leaves that device's state untouched, so recovery with
// the same values publishes nothing. Commands never publish state; the
// next poll observes the result and converges the bus.
//
// Bridge wires both flows together with the health reporter and owns
// their lifecycle.
package bridge
