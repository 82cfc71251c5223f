package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"speedtest-mqtt/pkg/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 10 * time.Second
	// milliseconds granted to in-flight work on disconnect
	disconnectQuiesce = 250
)

var errTimeout = errors.New("timed out")

// MQTTClient implements Client with the paho MQTT client
type MQTTClient struct {
	qos    byte
	client mqtt.Client
}

func NewMQTTClient() *MQTTClient {
	return &MQTTClient{}
}

func clientOptions(broker config.BrokerConfig) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", broker.Host, broker.Port)).
		SetClientID(broker.ClientID).
		SetUsername(broker.Username).
		SetPassword(broker.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout).
		SetWriteTimeout(publishTimeout)
}

func (c *MQTTClient) Connect(ctx context.Context, broker config.BrokerConfig) error {
	client := mqtt.NewClient(clientOptions(broker))
	if err := wait(ctx, client.Connect(), connectTimeout); err != nil {
		// Disconnect blocks until an in-flight attempt settles, then closes
		// the socket. Run it off the caller so shutdown stays prompt.
		go client.Disconnect(0)
		return err
	}
	c.client = client
	c.qos = byte(broker.QoS)
	return nil
}

func (c *MQTTClient) Publish(ctx context.Context, topic, payload string, retain bool) error {
	if c.client == nil {
		return errors.New("not connected")
	}
	return wait(ctx, c.client.Publish(topic, c.qos, retain, payload), publishTimeout)
}

func (c *MQTTClient) Disconnect() {
	if c.client == nil {
		return
	}
	c.client.Disconnect(disconnectQuiesce)
	c.client = nil
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errTimeout
	case <-token.Done():
		return token.Error()
	}
}
