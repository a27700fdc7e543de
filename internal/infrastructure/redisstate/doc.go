// Package redisstate mirrors the last known channel values of every device
// into Redis hashes.
//
// Each device gets one hash at tuya:device:<id> whose fields are channel
// ids and whose values are state payloads ("on", "off", numbers). The
// field "_updated" holds the time of the latest change. Hashes expire after
// the configured TTL, so the mirror is a cache, never a source of truth.
package redisstate
