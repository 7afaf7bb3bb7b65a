package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout follows the flat bridge scheme graylogic/{category}/{protocol}/{address}.
const (
	// TopicPrefix is the root of every topic the bridge touches.
	TopicPrefix = "graylogic"

	// Protocol is the protocol segment used by the EnOcean bridge.
	Protocol = "enocean"
)

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.PointState("Sensors/temp1.txt")
//	// Returns: "graylogic/state/enocean/Sensors/temp1.txt"
type Topics struct{}

// PointState returns the retained state topic for a published point.
// Point names may contain '/', which becomes topic hierarchy.
func (Topics) PointState(name string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, SanitizeSegment(name))
}

// Notify returns the default topic on which channel-index notifications arrive.
//
// Example: graylogic/notify/enocean
func (Topics) Notify() string {
	return fmt.Sprintf("%s/notify/%s", TopicPrefix, Protocol)
}

// Health returns the bridge health topic.
//
// Example: graylogic/health/enocean
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// BridgeStatus returns the retained online/offline topic for a client.
//
// Example: graylogic/system/eobridge/status
func (Topics) BridgeStatus(clientID string) string {
	return fmt.Sprintf("%s/system/%s/status", TopicPrefix, SanitizeSegment(clientID))
}

// SanitizeSegment makes s safe inside a publish topic: wildcard characters
// and NUL are replaced with '_', empty levels are collapsed, and leading
// or trailing '/' is dropped.
func SanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '+', '#', 0:
			return '_'
		}
		return r
	}, s)

	parts := strings.Split(s, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "_"
	}
	return strings.Join(kept, "/")
}
