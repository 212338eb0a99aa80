package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"minewatch-server/internal/config"
	"minewatch-server/internal/telemetry"
)

type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	// subscribed is set after the first subscribe. A reconnect after a lost
	// connection resubscribes, since the session is clean.
	subscribed atomic.Bool
	lost       atomic.Bool

	handlerMu sync.RWMutex
	// handler is called for each valid telemetry message
	handler func(t telemetry.Telemetry) error
}

// MQTTSubscriber is what feature modules attach their handler to.
type MQTTSubscriber interface {
	SetMessageHandler(handler func(t telemetry.Telemetry) error)
}

func (s *Subscriber) SetMessageHandler(handler func(t telemetry.Telemetry) error) {
	s.handlerMu.Lock()
	s.handler = handler
	s.handlerMu.Unlock()
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) (*Subscriber, error) {
	if cfg.MQTTTopic == "" {
		return nil, fmt.Errorf("mqtt topic is required")
	}
	s := &Subscriber{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	s.client = mqtt.NewClient(clientOptions(cfg, logger, s.onConnectionChange))
	return s, nil
}

// clientOptions holds the connection settings shared by subscriber and publisher.
func clientOptions(cfg config.Config, logger *slog.Logger, setConnected func(bool)) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})
	return opts
}

// waitConnect blocks until token completes, ctx is done, or stopCh closes.
// When ctx ends first the attempt is left pending and paho keeps retrying;
// callers that give up must Disconnect.
func waitConnect(ctx context.Context, client mqtt.Client, token mqtt.Token, stopCh <-chan struct{}) error {
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			client.Disconnect(0)
			return fmt.Errorf("mqtt client stopped")
		default:
		}
	}
}

// Connect establishes the connection and subscribes to the configured topic.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()
	if err := waitConnect(ctx, s.client, token, s.stopCh); err != nil {
		if ctx.Err() != nil {
			s.logger.Warn("mqtt broker not reachable yet, retrying in background",
				"broker", s.cfg.MQTTBroker, "error", err)
			go func() {
				if err := s.finishConnect(token); err != nil {
					s.logger.Error("mqtt background connect failed", "error", err)
				}
			}()
		}
		return err
	}
	return s.afterConnect()
}

// finishConnect waits out a pending connect attempt and subscribes once it
// succeeds. It returns early when the subscriber is stopped.
func (s *Subscriber) finishConnect(token mqtt.Token) error {
	select {
	case <-token.Done():
	case <-s.stopCh:
		return fmt.Errorf("mqtt client stopped")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return s.afterConnect()
}

func (s *Subscriber) afterConnect() error {
	// The token can complete before the OnConnect callback runs.
	s.setConnected(true)

	if err := s.subscribe(); err != nil {
		s.client.Disconnect(0)
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (s *Subscriber) subscribe() error {
	if !s.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := s.cfg.MQTTTopic
	qos := byte(1)

	token := s.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.subscribed.Store(true)
	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

// onConnectionChange runs on paho's callback goroutine, which must not block
// on tokens; the resubscribe is handed off.
func (s *Subscriber) onConnectionChange(up bool) {
	s.setConnected(up)
	if !up {
		s.lost.Store(true)
		return
	}
	if !s.lost.Swap(false) || !s.subscribed.Load() {
		return
	}
	go func() {
		if err := s.subscribe(); err != nil {
			s.logger.Error("mqtt resubscribe failed", "topic", s.cfg.MQTTTopic, "error", err)
		}
	}()
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var t telemetry.Telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		s.logger.Warn("failed to parse telemetry message",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}

	if err := t.Validate(); err != nil {
		s.logger.Warn("invalid telemetry message",
			"topic", topic,
			"site", t.Site,
			"error", err,
		)
		return
	}

	s.handlerMu.RLock()
	handler := s.handler
	s.handlerMu.RUnlock()
	if handler == nil {
		return
	}
	if err := handler(t); err != nil {
		s.logger.Error("message handler failed",
			"topic", topic,
			"site", t.Site,
			"error", err,
		)
		return
	}
	s.logger.Debug("processed telemetry message", "site", t.Site)
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the connection. Safe to call
// more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}

	// Disconnect without holding s.mu; paho calls back into the lost handler.
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
