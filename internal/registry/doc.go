// Package registry loads the static list of Tuya devices the bridge manages.
//
// The source is either a tinytuya-style devices.json array or an equivalent
// YAML list. Each record needs an id and a local key. Records without an
// address stay in the registry but are excluded from the active set, so
// they are never polled.
//
// A Registry is immutable once loaded and safe for concurrent reads.
package registry
