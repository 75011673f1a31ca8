// Package telemetry publishes readings to an MQTT broker.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/banshee-data/envsensor/internal/security"
	"github.com/banshee-data/envsensor/internal/sensor"
)

const publishTimeout = 5 * time.Second

type Config struct {
	// Broker is a URL such as tcp://localhost:1883.
	Broker   string
	ClientID string
	Username string
	Password string
	Station  string
}

// Message is the JSON payload published for each reading.
type Message struct {
	Station     string    `json:"station"`
	Timestamp   time.Time `json:"timestamp"`
	Datetime    string    `json:"datetime"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
	Altitude    float64   `json:"altitude"`
	Light       float64   `json:"light"`
	CameraLight *float64  `json:"camera_light,omitempty"`
}

// Topic returns the reading topic for station. The station is sanitised so
// it occupies exactly one topic level.
func Topic(station string) string {
	return fmt.Sprintf("sensors/%s/reading", security.SanitizeName(station))
}

// NewMessage builds the payload for r.
func NewMessage(station string, r sensor.Reading) Message {
	return Message{
		Station:     station,
		Timestamp:   r.Timestamp,
		Datetime:    r.Datetime,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Pressure:    r.Pressure,
		Altitude:    r.Altitude,
		Light:       r.Light,
		CameraLight: r.CameraLight,
	}
}

// Publisher is a supervisor sink that publishes each reading with QoS 1.
type Publisher struct {
	client  mqtt.Client
	station string
	logger  *slog.Logger

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPublisher configures an auto-reconnecting paho client. It does not
// connect; call Connect.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	p := &Publisher{
		station: cfg.Station,
		logger:  logger.With("component", "telemetry"),
		stopCh:  make(chan struct{}),
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "envsensor-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

// newPublisherWithClient wraps an existing client, for tests.
func newPublisherWithClient(client mqtt.Client, station string, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, station: station, logger: logger, stopCh: make(chan struct{})}
}

// Connect waits for the initial connection, respecting ctx and Disconnect.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}
	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			p.setConnected(true)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// Record publishes r. It fails fast while disconnected.
func (p *Publisher) Record(ctx context.Context, r sensor.Reading) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	topic := Topic(p.station)
	data, err := json.Marshal(NewMessage(p.station, r))
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	token := p.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish reading: %w", err)
	}
	p.logger.Debug("published reading", "topic", topic)
	return nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Disconnect stops the publisher. Safe to call more than once.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.client.Disconnect(250)
	p.setConnected(false)
	p.logger.Info("mqtt disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
