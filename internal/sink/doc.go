// Package sink holds the publishers a bridge fans samples out to besides
// the point server: retained MQTT state, InfluxDB time series, a Redis
// last-value cache and the local SQLite history.
//
// Every sink implements both enocean.Publisher and enocean.SamplePublisher
// and is safe for concurrent use.
package sink
