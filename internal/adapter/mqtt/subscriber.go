// Package mqtt ingests sensor readings published to an MQTT broker.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/seawhisper/alert-monitor/internal/config"
	"github.com/seawhisper/alert-monitor/internal/domain"
	"github.com/seawhisper/alert-monitor/internal/observability"
)

const (
	qosAtLeastOnce = 1
	insertTimeout  = 5 * time.Second
	connectTimeout = 10 * time.Second
)

// ReadingSink stores decoded readings.
type ReadingSink interface {
	InsertReadings(ctx context.Context, readings []domain.Reading) error
}

// Subscriber decodes each sensor message and stores it as a reading.
type Subscriber struct {
	client     paho.Client
	topic      string
	sink       ReadingSink
	logger     *slog.Logger
	metrics    *observability.Metrics
	subscribed atomic.Bool
}

// NewSubscriber creates a subscriber for cfg.MQTTTopic. It does not connect
// until Start is called.
func NewSubscriber(cfg *config.Config, sink ReadingSink, logger *slog.Logger, metrics *observability.Metrics) *Subscriber {
	s := &Subscriber{
		topic:   cfg.MQTTTopic,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})
	s.client = paho.NewClient(opts)
	return s
}

// Start connects and subscribes. Subscriptions are renewed on reconnect.
func (s *Subscriber) Start(ctx context.Context) error {
	if err := wait(ctx, s.client.Connect()); err != nil {
		return fmt.Errorf("connect mqtt broker: %w", err)
	}
	if err := wait(ctx, s.client.Subscribe(s.topic, qosAtLeastOnce, s.handle)); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	s.subscribed.Store(true)
	s.logger.Info("mqtt subscriber started", "topic", s.topic)
	return nil
}

// Close disconnects, giving in-flight handlers a moment to finish.
func (s *Subscriber) Close() {
	s.client.Disconnect(250)
}

// CheckReadiness reports whether the broker connection is up.
func (s *Subscriber) CheckReadiness(_ context.Context) error {
	if !s.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt broker not connected")
	}
	return nil
}

func (s *Subscriber) onConnect(c paho.Client) {
	if !s.subscribed.Load() {
		return
	}
	if err := awaitToken(c.Subscribe(s.topic, qosAtLeastOnce, s.handle), connectTimeout); err != nil {
		s.logger.Error("mqtt resubscribe failed", "topic", s.topic, "error", err)
	}
}

func awaitToken(t paho.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return fmt.Errorf("no broker acknowledgement within %s", timeout)
	}
	return t.Error()
}

func (s *Subscriber) handle(_ paho.Client, msg paho.Message) {
	reading, err := domain.ParseReading(msg.Payload(), domain.Now())
	if err != nil {
		s.metrics.IngestErrors.Inc()
		s.logger.Warn("decode sensor reading failed, skipping message",
			"error", err,
			"topic", msg.Topic(),
			"sensor", sensorID(msg.Topic()),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	if err := s.sink.InsertReadings(ctx, []domain.Reading{reading}); err != nil {
		s.logger.Error("store sensor reading failed",
			"error", err,
			"topic", msg.Topic(),
			"sensor", sensorID(msg.Topic()),
		)
		return
	}
	s.metrics.ReadingsIngested.Inc()
}

// sensorID extracts the wildcard segment from topics shaped like
// "sensors/<id>/readings". Other shapes return the full topic.
func sensorID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 3 && parts[1] != "" {
		return parts[1]
	}
	return topic
}

func wait(ctx context.Context, t paho.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
