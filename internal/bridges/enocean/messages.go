package enocean

import "time"

// Message types published by the bridge over MQTT.

// StateMessage carries one published value.
// Topic: graylogic/state/enocean/{point}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// Point is the published point name (domain prefix + source).
	Point string `json:"point"`

	// Timestamp is when the value file was read (UTC).
	Timestamp time.Time `json:"timestamp"`

	// EnOceanID is the sender id as eight hex digits.
	EnOceanID string `json:"enocean_id"`

	// Profile is the EnOcean Equipment Profile, e.g. "A5-02-05".
	Profile string `json:"profile"`

	Source      string  `json:"source"`
	Description string  `json:"description,omitempty"`
	Value       float64 `json:"value"`
}

// NewStateMessage builds the state message for a sample.
func NewStateMessage(point string, s ValueSample) StateMessage {
	ts := s.ReadAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return StateMessage{
		Point:       point,
		Timestamp:   ts.UTC(),
		EnOceanID:   FormatID(s.ID),
		Profile:     s.Profile,
		Source:      s.SourceName,
		Description: s.Description,
		Value:       s.Value,
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is running with issues
	// (no channels loaded, publisher disconnected, sink failures).
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/enocean
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Bridge is the configured bridge identifier.
	Bridge string `json:"bridge"`

	// Instance distinguishes restarts of the same bridge.
	Instance string `json:"instance"`

	Timestamp time.Time    `json:"timestamp"`
	Status    HealthStatus `json:"status"`
	Version   string       `json:"version"`

	// UptimeSeconds is time since the reporter was created.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Reason explains a non-healthy status.
	Reason string `json:"reason,omitempty"`

	Channels int          `json:"channels"`
	Sources  int          `json:"sources"`
	Stats    ScannerStats `json:"stats"`
}

// NewHealthMessage creates a health message.
func NewHealthMessage(bridgeID, instance, version string, status HealthStatus, channels, sources int, stats ScannerStats, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:        bridgeID,
		Instance:      instance,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Channels:      channels,
		Sources:       sources,
		Stats:         stats,
	}
}
