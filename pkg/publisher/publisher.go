// Package publisher sends cycle results to an MQTT broker as retained messages.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"speedtest-mqtt/pkg/config"
	"speedtest-mqtt/pkg/models"
)

// Client is the broker capability. Implementations hold at most one
// connection, opened by Connect and released by Disconnect.
type Client interface {
	Connect(ctx context.Context, broker config.BrokerConfig) error
	Publish(ctx context.Context, topic, payload string, retain bool) error
	Disconnect()
}

// PublishError is returned when connecting or publishing fails
type PublishError struct {
	Op    string // "connect" or "publish"
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("mqtt %s %s: %v", e.Op, e.Topic, e.Err)
	}
	return fmt.Sprintf("mqtt %s: %v", e.Op, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

type message struct {
	topic string
	value float64
}

type Publisher struct {
	broker config.BrokerConfig
	client Client
	logger *slog.Logger
}

func NewPublisher(broker config.BrokerConfig, client Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		broker: broker,
		client: client,
		logger: logger,
	}
}

// FormatValue renders a metric the way it is published, with six decimals
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Topics returns the upload, download and ping topics under prefix
func Topics(prefix string) (upload, download, ping string) {
	return prefix + "/upload", prefix + "/download", prefix + "/ping"
}

// Publish connects to the broker, publishes the three retained values and
// disconnects. The connection is never reused across calls.
func (p *Publisher) Publish(ctx context.Context, result models.CycleResult) error {
	p.logger.Debug("Connecting to MQTT broker",
		"host", p.broker.Host,
		"port", p.broker.Port,
		"clientID", p.broker.ClientID)

	if err := p.client.Connect(ctx, p.broker); err != nil {
		return &PublishError{Op: "connect", Err: err}
	}
	defer p.client.Disconnect()

	upload, download, ping := Topics(p.broker.Topic)
	messages := []message{
		{topic: upload, value: result.UploadBps},
		{topic: download, value: result.DownloadBps},
		{topic: ping, value: result.LatencyMs},
	}

	for _, m := range messages {
		payload := FormatValue(m.value)
		if err := p.client.Publish(ctx, m.topic, payload, true); err != nil {
			return &PublishError{Op: "publish", Topic: m.topic, Err: err}
		}
		p.logger.Debug("Published", "topic", m.topic, "payload", payload)
	}

	p.logger.Info("Results published", "topic", p.broker.Topic)
	return nil
}
