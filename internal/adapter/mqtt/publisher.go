package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/occupancy-service/internal/domain"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends readings to a topic, the way a floor sensor would.
type Publisher struct {
	client pahomqtt.Client
	topic  string
}

// NewPublisher connects to broker and returns a Publisher for topic.
func NewPublisher(broker, clientID, topic string) (*Publisher, error) {
	opts := pahomqtt.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	client := pahomqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Publish marshals raw and publishes it with at-least-once delivery.
func (p *Publisher) Publish(raw domain.RawReading) error {
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("serialize reading: %w", err)
	}
	tok := p.client.Publish(p.topic, qos, false, payload)
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish reading: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(quiesceMillis)
}
