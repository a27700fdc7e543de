// Package tuya is a minimal client for the Tuya local LAN protocol.
//
// It speaks protocol versions 3.1 and 3.3 over TCP port 6668, which covers
// the common smart plugs and power strips. Each call opens a fresh
// connection, sends one request frame, reads the matching response and
// closes. Devices accept a single client at a time, so callers should
// wrap a Client with device.Serialize.
//
// Frame layout (all integers big-endian):
//
//	000055AA | seq | cmd | len | payload | crc32 | 0000AA55
//
// len counts payload plus the trailing crc and suffix. Device to client
// payloads start with a 4-byte return code. Version 3.3 encrypts every
// payload with AES-128-ECB under the device local key; version 3.1 only
// encrypts CONTROL payloads and signs them with an MD5 digest.
package tuya
