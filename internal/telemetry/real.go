package telemetry

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// outageBufferCapacity bounds how many snapshots are retained while
// the broker connection is down; older ones are dropped first.
const outageBufferCapacity = 256

// RealPublisher publishes to an actual MQTT broker, buffering
// snapshots across outages and flushing them on reconnect.
type RealPublisher struct {
	client paho.Client

	mu     sync.Mutex
	buf    *outageQueue
	online bool
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker string) (*RealPublisher, error) {
	p := &RealPublisher{buf: newOutageQueue(outageBufferCapacity)}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("reflowd").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(paho.Client, error) { p.onDisconnect() })

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	p.client = client
	return p, nil
}

func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	p.online = true
	backlog := p.buf.drainAll()
	p.mu.Unlock()

	for _, msg := range backlog {
		token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		token.WaitTimeout(5 * time.Second)
	}
}

func (p *RealPublisher) onDisconnect() {
	p.mu.Lock()
	p.online = false
	p.mu.Unlock()
}

func (p *RealPublisher) publishOrBuffer(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	online := p.online
	p.mu.Unlock()

	if !online {
		p.mu.Lock()
		p.buf.push(outageMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

// PublishSnapshot sends a controller/profile snapshot.
func (p *RealPublisher) PublishSnapshot(snap SnapshotPayload) error {
	payload, err := FormatSnapshotPayload(snap)
	if err != nil {
		return fmt.Errorf("format snapshot: %w", err)
	}
	return p.publishOrBuffer(TopicSnapshot, 0, false, payload)
}

// PublishSystem sends a system lifecycle event, at-least-once, so
// shutdown notices survive a brief broker hiccup.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publishOrBuffer(TopicSystem, 1, false, payload)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

// IsConnected reports the current broker connection state.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}
