package sink

import (
	"github.com/nerrad567/gray-logic-enocean/internal/bridges/enocean"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/influxdb"
)

// ValueWriter queues samples for batched writes. *influxdb.Client implements it.
type ValueWriter interface {
	WriteChannelValue(v influxdb.ChannelValue)
}

// InfluxSink records every value as an enocean_value point. Writes are
// batched by the client, so Publish never blocks and never fails; write
// errors surface through the client's error callback.
type InfluxSink struct {
	w ValueWriter
}

// NewInfluxSink returns a sink writing through w.
func NewInfluxSink(w ValueWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Publish implements enocean.Publisher.
func (s *InfluxSink) Publish(name string, value float64) error {
	s.w.WriteChannelValue(influxdb.ChannelValue{Point: name, Value: value})
	return nil
}

// PublishSample implements enocean.SamplePublisher.
func (s *InfluxSink) PublishSample(name string, sample enocean.ValueSample) error {
	s.w.WriteChannelValue(influxdb.ChannelValue{
		Point:     name,
		EnOceanID: enocean.FormatID(sample.ID),
		Profile:   sample.Profile,
		Source:    sample.SourceName,
		Value:     sample.Value,
		Time:      sample.ReadAt,
	})
	return nil
}
