// Package influxdb records EnOcean samples in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library: Connect pings the
// server, writes go through the non-blocking batching WriteAPI, and batch
// failures are delivered to the SetOnError callback.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteChannelValue(influxdb.ChannelValue{
//	    Point: "Sensors/temp1.txt", EnOceanID: "0017A2B3", Value: 21.4,
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package influxdb
