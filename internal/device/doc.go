// Package device defines how the bridge talks to a physical device.
//
// Adapter is the capability the rest of the bridge depends on: read the
// current channel values, or switch one channel. Concrete protocol clients
// (see package tuya) satisfy it; tests substitute fakes.
//
// Two rules hold for every adapter handed out by a Pool:
//   - At most one operation is in flight per physical device (Serialize).
//   - Failures are *OpError values wrapping ErrUnreachable or ErrProtocol.
//     Both are transient. Adapters never retry internally; the next poll
//     tick or the next command is the retry.
package device
