package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/trigger-chain/internal/chain"
)

const (
	appID          = "trigger-chain"
	bufferCapacity = 256
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Messages published
// while disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	bootID string

	mu     sync.Mutex
	buffer *ringBuffer
}

// ClientID derives a stable client identifier from the machine ID.
func ClientID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		return appID
	}
	return appID + "-" + id[:12]
}

// NewRealPublisher creates a publisher connected to the given broker.
// The broker publishes an OFFLINE system event if the connection is lost.
func NewRealPublisher(broker, bootID string) (*RealPublisher, error) {
	p := &RealPublisher{
		bootID: bootID,
		buffer: newRingBuffer(bufferCapacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(ClientID()).
		SetWill(TopicSystem, string(willPayload(bootID)), 1, true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a chain event to the MQTT broker.
func (p *RealPublisher) Publish(event chain.Event, at time.Time) error {
	payload, err := FormatPayload(event, at)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(message{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	if event.BootID == "" {
		event.BootID = p.bootID
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events must arrive
	return p.send(message{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// Transmit publishes one gated status line. It is not buffered: a line the
// broker cannot take now is stale by the next attempt.
func (p *RealPublisher) Transmit(line []byte) error {
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("transmit: not connected")
	}
	token := p.client.Publish(TopicTx, 0, false, line)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("transmit timeout")
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) send(msg message) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.push(msg)
		p.mu.Unlock()
		return nil
	}
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// onConnect replays buffered messages and announces the reconnection.
// Runs on a paho goroutine.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending := p.buffer.drain()
	p.mu.Unlock()

	if len(pending) > 0 {
		log.Printf("mqtt: connected, replaying %d buffered messages", len(pending))
	}
	for _, msg := range pending {
		c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	}

	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED", BootID: p.bootID})
	c.Publish(TopicSystem, 1, true, payload)
}
