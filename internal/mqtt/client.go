// Package mqtt publishes climate readings to a broker in Home Assistant's
// MQTT discovery format, so polled devices appear as native HA sensors.
package mqtt

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const connectTimeout = 10 * time.Second

// Client is the thin paho wrapper the sink publishes through.
type Client interface {
	Publish(topic string, retained bool, payload []byte) error
	Connected() bool
	Close()
}

type pahoClient struct {
	client paho.Client
}

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// OnConnect runs on every (re)connect, including the first.
	OnConnect func()
}

func Connect(cfg Config) (Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	if cfg.OnConnect != nil {
		opts.OnConnect = func(paho.Client) { cfg.OnConnect() }
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &pahoClient{client: client}, nil
}

func (c *pahoClient) Publish(topic string, retained bool, payload []byte) error {
	if token := c.client.Publish(topic, 0, retained, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *pahoClient) Connected() bool {
	return c.client.IsConnectionOpen()
}

func (c *pahoClient) Close() {
	c.client.Disconnect(250)
}
