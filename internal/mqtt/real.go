package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/crossley/gatewatch/internal/config"
	"github.com/crossley/gatewatch/internal/logic"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	replayTimeout  = 2 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. While the broker is
// unreachable, event publishes land in a fixed-capacity ring buffer and are
// replayed in order once the connection comes back.
type RealPublisher struct {
	client paho.Client
	logger *zap.Logger

	mu            sync.Mutex
	buf           *ringBuffer
	connectedOnce bool
}

// NewRealPublisher creates a publisher for the configured broker. The broker
// does not have to be reachable yet: if the initial connect does not finish
// within the timeout, paho keeps retrying in the background and buffered
// events are replayed once it succeeds.
func NewRealPublisher(cfg config.MQTTConfig, logger *zap.Logger) (*RealPublisher, error) {
	p := &RealPublisher{
		logger: logger,
		buf:    newRingBuffer(cfg.BufferSize),
	}

	// Last will: the broker announces an unclean disconnect for us.
	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password.Unmask())
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		logger.Warn("mqtt_connect_pending",
			zap.String("broker", cfg.Broker),
			zap.Duration("waited", connectTimeout))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// Publish sends a gate state event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(Topic, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		overflowed := p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		pending := p.buf.len()
		p.mu.Unlock()

		if overflowed {
			p.logger.Warn("mqtt_buffer_full",
				zap.Int("capacity", p.buf.capacity),
				zap.String("topic", topic))
		}
		p.logger.Debug("mqtt_buffered",
			zap.String("topic", topic),
			zap.Int("pending", pending))
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

// onConnect runs on every successful (re)connect. It announces reconnects
// and replays whatever accumulated while the broker was away.
func (p *RealPublisher) onConnect(client paho.Client) {
	p.mu.Lock()
	pending := p.buf.drainAll()
	first := !p.connectedOnce
	p.connectedOnce = true
	p.mu.Unlock()

	p.logger.Info("mqtt_connected", zap.Int("replaying", len(pending)))

	if !first {
		payload, err := FormatSystemPayload(SystemEvent{
			Timestamp: time.Now(),
			Event:     "RECONNECTED",
		})
		if err == nil {
			token := client.Publish(TopicSystem, 1, false, payload)
			token.WaitTimeout(replayTimeout)
		}
	}

	for _, msg := range pending {
		token := client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(replayTimeout) {
			p.logger.Warn("mqtt_replay_timeout", zap.String("topic", msg.topic))
			continue
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("mqtt_replay_failed",
				zap.String("topic", msg.topic),
				zap.Error(err))
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.logger.Warn("mqtt_connection_lost", zap.Error(err))
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of events waiting for the broker to return.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	pending := p.buf.len()
	p.mu.Unlock()
	if pending > 0 {
		p.logger.Warn("mqtt_discarding_buffered", zap.Int("pending", pending))
	}

	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
