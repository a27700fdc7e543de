// Package topic maps devices and channels to MQTT topic strings and back.
//
// Topic layout, with <ns> the configured namespace:
//
//	<ns>/<deviceID>/<channel>/state   retained state published by the bridge
//	<ns>/<deviceID>/<channel>/set     commands consumed by the bridge
//	<ns>/bridge/status                online/offline, also the LWT topic
//	<ns>/bridge/health                periodic health JSON
//
// Everything here is a pure function of its inputs.
package topic
