package sink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-enocean/internal/bridges/enocean"
	"github.com/nerrad567/gray-logic-enocean/internal/infrastructure/mqtt"
)

// StatePublisher is the MQTT publish contract. *mqtt.Client implements it.
type StatePublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink publishes each value as a retained state message on
// graylogic/state/enocean/{point}.
type MQTTSink struct {
	client StatePublisher
	qos    byte
}

// NewMQTTSink returns a sink publishing with the given QoS.
func NewMQTTSink(client StatePublisher, qos byte) *MQTTSink {
	return &MQTTSink{client: client, qos: qos}
}

// Publish implements enocean.Publisher.
func (s *MQTTSink) Publish(name string, value float64) error {
	return s.publish(enocean.StateMessage{
		Point:     name,
		Timestamp: time.Now().UTC(),
		Value:     value,
	})
}

// PublishSample implements enocean.SamplePublisher.
func (s *MQTTSink) PublishSample(name string, sample enocean.ValueSample) error {
	return s.publish(enocean.NewStateMessage(name, sample))
}

func (s *MQTTSink) publish(msg enocean.StateMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling state for %s: %w", msg.Point, err)
	}
	return s.client.Publish(mqtt.Topics{}.PointState(msg.Point), payload, s.qos, true)
}
