package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"edge-analyzer/internal/config"
	"edge-analyzer/internal/domain/analysis"
)

var ErrPublishTimeout = errors.New("mqtt publish timeout")

// publisher is the subset of mqtt.Client used for sending.
type publisher interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each message as a JSON envelope to <prefix>/<messageType>.
type MQTTSink struct {
	client  publisher
	conn    mqtt.Client
	prefix  string
	timeout time.Duration
	log     zerolog.Logger
}

func newMQTTSink(client publisher, prefix string, timeout time.Duration, log zerolog.Logger) *MQTTSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTSink{
		client:  client,
		prefix:  strings.TrimRight(prefix, "/"),
		timeout: timeout,
		log:     log,
	}
}

// DialMQTT connects to the broker. A broker that is unreachable at startup is
// not fatal: the client keeps retrying in the background and Send fails until
// the connection is up.
func DialMQTT(ctx context.Context, cfg config.MQTTConfig, log zerolog.Logger) (*MQTTSink, error) {
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", broker).Str("client_id", cfg.ClientID).Msg("mqtt connection established")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", broker).Msg("mqtt connection lost, will auto-reconnect")
	})

	client := mqtt.NewClient(opts)
	err := wait(ctx, client.Connect(), cfg.PublishTimeout)
	switch {
	case errors.Is(err, ErrPublishTimeout):
		log.Warn().Str("broker", broker).Msg("mqtt broker not reachable yet, retrying in background")
	case err != nil:
		client.Disconnect(250)
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}

	s := newMQTTSink(client, cfg.TopicPrefix, cfg.PublishTimeout, log)
	s.conn = client
	return s, nil
}

// Close disconnects from the broker with a short grace period.
func (s *MQTTSink) Close() {
	if s != nil && s.conn != nil {
		s.conn.Disconnect(250)
		s.log.Info().Msg("mqtt disconnected")
	}
}

func (s *MQTTSink) Send(ctx context.Context, msg Message) error {
	if s == nil || s.client == nil {
		return ErrNotInitialized
	}
	if !s.client.IsConnectionOpen() {
		return errors.New("mqtt not connected")
	}

	payload, err := msg.Envelope()
	if err != nil {
		return err
	}

	topic := s.Topic(msg.Type)
	qos := qosFor(msg.Type)
	if err := wait(ctx, s.client.Publish(topic, qos, false, payload), s.timeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	s.log.Debug().
		Str("topic", topic).
		Uint8("qos", qos).
		Int("size", len(payload)).
		Str("message_id", msg.ID).
		Msg("message published")
	return nil
}

func (s *MQTTSink) Topic(t analysis.MessageType) string {
	return s.prefix + "/" + string(t)
}

// Notifications are low volume and must arrive; reporting rows tolerate loss.
func qosFor(t analysis.MessageType) byte {
	if t == analysis.MessageTypeNotification {
		return 1
	}
	return 0
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrPublishTimeout
	}
}
