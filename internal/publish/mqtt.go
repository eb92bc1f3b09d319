package publish

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"kismet-baro/internal/record"
)

type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte

	// Timeout bounds how long a publish may hold up the ingest loop.
	Timeout time.Duration
}

// publisher is the part of mqtt.Client the Publisher needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher forwards recorded observations to an MQTT topic as JSON.
type Publisher struct {
	cfg        Config
	client     publisher
	disconnect func()
}

// Connect dials the broker.
func Connect(cfg Config) (*Publisher, error) {
	cfg, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("publish: mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	log.Printf("mqtt connected to %s (topic %s)", cfg.Broker, cfg.Topic)

	return &Publisher{
		cfg:        cfg,
		client:     client,
		disconnect: func() { client.Disconnect(250) },
	}, nil
}

func normalize(cfg Config) (Config, error) {
	cfg.Broker = strings.TrimSpace(cfg.Broker)
	cfg.Topic = strings.TrimSpace(cfg.Topic)
	if cfg.Broker == "" {
		return cfg, fmt.Errorf("publish: broker is required")
	}
	if cfg.Topic == "" {
		return cfg, fmt.Errorf("publish: topic is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "kismet-baro"
	}
	if cfg.QoS > 2 {
		return cfg, fmt.Errorf("publish: qos must be 0, 1 or 2")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return cfg, nil
}

// Notify publishes one observation and waits for the broker handoff.
func (p *Publisher) Notify(obs record.Observation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("publish: marshal: %w", err)
	}
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, false, payload)
	if !token.WaitTimeout(p.cfg.Timeout) {
		return fmt.Errorf("publish: timed out after %s", p.cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p == nil || p.disconnect == nil {
		return
	}
	p.disconnect()
}
