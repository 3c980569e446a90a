// Package mqtt connects the service to an MQTT broker. Sensors publish
// readings to a topic; the Subscriber decodes them into the feed and the
// Publisher is used by the simulator.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/occupancy-service/internal/config"
	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/couchcryptid/occupancy-service/internal/observability"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	source         = "mqtt"
	qos            = 1
	connectTimeout = 10 * time.Second
	quiesceMillis  = 250
)

// Loader appends decoded readings to the feed.
type Loader interface {
	LoadBatch(ctx context.Context, readings []domain.RawReading) error
}

// Subscriber receives readings published by sensors.
type Subscriber struct {
	broker   string
	topic    string
	clientID string
	loader   Loader
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewSubscriber creates a Subscriber for the configured broker and topic.
func NewSubscriber(cfg *config.Config, loader Loader, logger *slog.Logger, metrics *observability.Metrics) *Subscriber {
	return &Subscriber{
		broker:   cfg.MQTTBroker,
		topic:    cfg.MQTTTopic,
		clientID: cfg.MQTTClientID,
		loader:   loader,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run connects, subscribes and blocks until ctx is done. The subscription is
// re-established by the client after every reconnect.
func (s *Subscriber) Run(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(s.broker).
		SetClientID(s.clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetCleanSession(false)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		tok := c.Subscribe(s.topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			s.handleMessage(ctx, msg)
		})
		if tok.WaitTimeout(connectTimeout) && tok.Error() != nil {
			s.logger.Error("mqtt subscribe failed", "error", tok.Error(), "topic", s.topic)
			return
		}
		s.logger.Info("mqtt subscribed", "broker", s.broker, "topic", s.topic)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	client := pahomqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		s.logger.Warn("mqtt connect still pending, retrying in background", "broker", s.broker)
	} else if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.broker, err)
	}

	running := s.metrics.IngestRunning.WithLabelValues(source)
	running.Set(1)
	defer running.Set(0)

	<-ctx.Done()
	client.Disconnect(quiesceMillis)
	s.logger.Info("mqtt subscriber stopped")
	return nil
}

// handleMessage decodes one publish and appends it to the feed. Bad payloads
// are counted and dropped.
func (s *Subscriber) handleMessage(ctx context.Context, msg pahomqtt.Message) {
	raw, err := domain.DecodeMessage(domain.RawMessage{
		Value:     msg.Payload(),
		Topic:     msg.Topic(),
		Timestamp: domain.Now(),
	})
	if err != nil {
		s.logger.Warn("decode failed, dropping mqtt message", "error", err, "topic", msg.Topic())
		s.metrics.DecodeErrors.WithLabelValues(source).Inc()
		return
	}
	if err := s.loader.LoadBatch(ctx, []domain.RawReading{raw}); err != nil {
		s.logger.Error("load mqtt reading failed", "error", err)
		return
	}
	s.metrics.ReadingsIngested.WithLabelValues(source).Inc()
}
