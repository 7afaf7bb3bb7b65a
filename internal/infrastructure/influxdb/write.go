package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementChannelValue = "enocean_value"
	MeasurementCycle        = "enocean_cycle"
)

// ChannelValue is one sample as recorded in InfluxDB.
//
// Point, EnOceanID, Profile and Source are tags; Value is the only field.
type ChannelValue struct {
	Point     string
	EnOceanID string
	Profile   string
	Source    string
	Value     float64
	Time      time.Time
}

// WriteChannelValue queues a sample for the next batch.
//
// A zero Time is replaced with the current time. The call never blocks.
func (c *Client) WriteChannelValue(v ChannelValue) {
	if !c.IsConnected() {
		return
	}

	ts := v.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	tags := map[string]string{
		"point": v.Point,
	}
	if v.EnOceanID != "" {
		tags["enocean_id"] = v.EnOceanID
	}
	if v.Profile != "" {
		tags["eep"] = v.Profile
	}
	if v.Source != "" {
		tags["source"] = v.Source
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementChannelValue,
		tags,
		map[string]any{"value": v.Value},
		ts,
	))
}

// WriteCycleStats records the outcome of one scan cycle.
//
// Parameters:
//   - bridgeID: Bridge instance identifier (tag)
//   - channels: Channels drained in the cycle
//   - samples: Samples published
//   - failures: Publish failures
func (c *Client) WriteCycleStats(bridgeID string, channels, samples, failures int) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementCycle,
		map[string]string{"bridge_id": bridgeID},
		map[string]any{
			"channels": channels,
			"samples":  samples,
			"failures": failures,
		},
		time.Now(),
	))
}
