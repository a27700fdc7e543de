// Package mqtt provides the MQTT bus client used by the bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retain flags
//   - Topic subscriptions, restored automatically after a reconnect
//   - Last Will and Testament on the bridge status topic
//
// Handlers registered with Subscribe run on paho's delivery goroutine and
// must return quickly. The bridge's command dispatcher only enqueues from
// its handler.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, "tuya/bridge/status")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("tuya/+/+/set", 1, func(topic string, payload []byte) error {
//	    return nil
//	})
//
//	client.PublishRetained("tuya/d1/1/state", []byte("on"))
package mqtt
