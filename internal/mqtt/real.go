package mqtt

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/ble-button/internal/logic"
)

// BacklogSize bounds messages kept while the broker is unreachable.
const BacklogSize = 256

// RealPublisher publishes to an actual MQTT broker. Messages published
// while disconnected are queued and replayed in order on reconnect.
type RealPublisher struct {
	client paho.Client
	log    logrus.FieldLogger
	send   func(queuedMsg) error

	mu        sync.Mutex
	backlog   *backlog
	connected atomic.Bool
}

func newPublisher(log logrus.FieldLogger, capacity int) *RealPublisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RealPublisher{
		log:     log.WithField("task", "mqtt"),
		backlog: newBacklog(capacity),
	}
}

// NewRealPublisher connects to broker. A last-will OFFLINE message is
// registered on TopicSystem.
func NewRealPublisher(broker, clientID string, log logrus.FieldLogger) (*RealPublisher, error) {
	p := newPublisher(log, BacklogSize)

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(WillPayload()), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	p.client = paho.NewClient(opts)
	p.send = p.publishNow

	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// PublishEdge sends a button edge, QoS 0.
func (p *RealPublisher) PublishEdge(event logic.EdgeEvent) error {
	payload, err := FormatEdgePayload(event)
	if err != nil {
		return fmt.Errorf("format edge payload: %w", err)
	}
	return p.publish(queuedMsg{topic: TopicButton, payload: payload})
}

// PublishState sends a lifecycle state, retained so late subscribers see it.
func (p *RealPublisher) PublishState(event logic.StateEvent) error {
	payload, err := FormatStatePayload(event)
	if err != nil {
		return fmt.Errorf("format state payload: %w", err)
	}
	return p.publish(queuedMsg{topic: TopicState, payload: payload, retained: true})
}

// PublishSystem sends a system event, QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(queuedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.connected.Load()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(1000)
	}
	return nil
}

func (p *RealPublisher) publish(msg queuedMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected.Load() {
		p.enqueue(msg)
		return nil
	}
	if err := p.flush(); err != nil {
		p.enqueue(msg)
		return err
	}
	if err := p.send(msg); err != nil {
		p.enqueue(msg)
		return err
	}
	return nil
}

// enqueue must be called with p.mu held.
func (p *RealPublisher) enqueue(msg queuedMsg) {
	if p.backlog.push(msg) && p.backlog.dropped == 1 {
		p.log.Warnf("backlog full (%d messages), dropping oldest", len(p.backlog.msgs))
	}
}

// flush sends the backlog oldest first. On failure the unsent messages
// stay queued in order. Must be called with p.mu held.
func (p *RealPublisher) flush() error {
	pending := p.backlog.drain()
	for i, msg := range pending {
		if err := p.send(msg); err != nil {
			p.log.Warnf("replay failed after %d of %d messages: %v", i, len(pending), err)
			for _, rest := range pending[i:] {
				p.backlog.push(rest)
			}
			return err
		}
	}
	if len(pending) > 0 {
		p.log.Infof("replayed %d queued messages", len(pending))
	}
	return nil
}

// onConnect marks the link up and replays the backlog. Whatever fails to
// replay is retried ahead of the next publish.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.connected.Store(true)
	p.log.Info("connected to broker")
	p.flush()
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.connected.Store(false)
	p.log.Warnf("connection lost: %v", err)
}

func (p *RealPublisher) publishNow(msg queuedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}
