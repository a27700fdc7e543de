// Package natsbus fans channel state changes out over NATS.
//
// Every change is published as a JSON message on the subject
// <prefix>.state.<device>.<channel>, so other services can subscribe to
// one plug, one device, or everything with <prefix>.state.>.
//
// The connection retries in the background when the server is not up at
// startup; messages published meanwhile are buffered by the client.
package natsbus
