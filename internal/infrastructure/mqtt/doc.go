// Package mqtt provides MQTT client connectivity for the EnOcean bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained point state and health publishing
//   - The channel notification subscription, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	graylogic/state/enocean/{point}     retained point values
//	graylogic/notify/enocean            channel-index notifications (inbound)
//	graylogic/health/enocean            bridge health
//	graylogic/system/{client_id}/status online/offline
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(mqtt.Topics{}.PointState("Sensors/temp1.txt"), payload)
package mqtt
