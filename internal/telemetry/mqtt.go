// Package telemetry publishes sign events and loop status to an MQTT broker
// and listens for remote control commands.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"SignCruise/internal/model"
)

const (
	publishTimeout = 2 * time.Second
	// queueSize bounds messages waiting for the broker; more are dropped.
	queueSize = 64
)

type outbound struct {
	leaf string
	qos  byte
	v    any
}

// Command is a control message received on <prefix>/<run_id>/control.
type Command struct {
	Command string `json:"command"`
}

// Stats contains publisher statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
	Dropped   uint64 // queue full
}

// Publisher publishes telemetry to MQTT. A nil *Publisher is a valid no-op.
//
// PublishSign and PublishStatus never wait on the broker: messages go
// through a bounded queue drained by a background goroutine, and are dropped
// when the queue is full.
type Publisher struct {
	cfg    model.TelemetryConfig
	runID  string
	Client mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	dropped   uint64
	connected bool

	queue    chan outbound
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	quitOnce sync.Once
	quit     chan struct{}
}

// NewPublisher creates an unconnected publisher for run runID and starts its
// send goroutine. Close stops it.
func NewPublisher(cfg model.TelemetryConfig, runID string) *Publisher {
	p := &Publisher{
		cfg:       cfg,
		runID:     runID,
		published: make(map[string]uint64),
		queue:     make(chan outbound, queueSize),
		stop:      make(chan struct{}),
		quit:      make(chan struct{}),
	}
	p.wg.Add(1)
	go p.drain()
	return p
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case m := <-p.queue:
			p.publishJSON(m.leaf, m.qos, m.v)
		}
	}
}

func (p *Publisher) enqueue(m outbound) {
	select {
	case p.queue <- m:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		slog.Debug("telemetry queue full, message dropped", "topic", p.Topic(m.leaf))
	}
}

// Topic returns <prefix>/<run_id>/<leaf>.
func (p *Publisher) Topic(leaf string) string {
	return strings.Join([]string{p.cfg.TopicPrefix, p.runID, leaf}, "/")
}

// Connect establishes the broker connection and subscribes to the control topic.
func (p *Publisher) Connect(ctx context.Context) error {
	broker := p.cfg.MQTTBroker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("signcruise-" + p.runID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		p.setConnected(true)
		slog.Info("mqtt connection established", "broker", broker, "run_id", p.runID)
		token := c.Subscribe(p.Topic("control"), 1, p.handleControl)
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			slog.Warn("mqtt control subscribe failed", "error", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", broker)
	}

	p.Attach(mqtt.NewClient(opts))
	slog.Info("connecting to mqtt broker", "broker", broker)

	token := p.Client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Attach sets the client used for publishing, taking its current connection
// state.
func (p *Publisher) Attach(c mqtt.Client) {
	p.Client = c
	p.setConnected(c.IsConnected())
}

func (p *Publisher) handleControl(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Warn("invalid control message", "topic", msg.Topic(), "error", err)
		return
	}
	p.HandleCommand(cmd)
}

// HandleCommand executes a control command. Only "quit" is recognised.
func (p *Publisher) HandleCommand(cmd Command) {
	switch strings.ToLower(cmd.Command) {
	case "quit", "stop":
		slog.Info("quit requested over mqtt")
		p.quitOnce.Do(func() { close(p.quit) })
	default:
		slog.Warn("unknown control command", "command", cmd.Command)
	}
}

// Done is closed when a quit command arrives. It is nil for a nil publisher.
func (p *Publisher) Done() <-chan struct{} {
	if p == nil {
		return nil
	}
	return p.quit
}

// PublishSign publishes a sign change event.
func (p *Publisher) PublishSign(ev model.SignEvent) {
	if p == nil {
		return
	}
	p.enqueue(outbound{leaf: "sign", qos: 1, v: ev})
}

// PublishStatus publishes a loop status snapshot.
func (p *Publisher) PublishStatus(st model.Status) {
	if p == nil {
		return
	}
	p.enqueue(outbound{leaf: "status", qos: 0, v: st})
}

func (p *Publisher) publishJSON(leaf string, qos byte, v any) {
	if err := p.publish(p.Topic(leaf), qos, v); err != nil {
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()
		slog.Debug("telemetry publish failed", "topic", p.Topic(leaf), "error", err)
	}
}

func (p *Publisher) publish(topic string, qos byte, v any) error {
	if !p.isConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	token := p.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	p.mu.Lock()
	p.published[topic]++
	p.mu.Unlock()
	return nil
}

// Close stops the send goroutine and disconnects from the broker.
// A publish in flight is given up to its timeout.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
	if p.Client != nil {
		// also cancels a pending connect retry
		p.Client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	p.setConnected(false)
	return nil
}

// Stats returns publisher statistics.
func (p *Publisher) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	published := make(map[string]uint64, len(p.published))
	for k, v := range p.published {
		published[k] = v
	}
	return Stats{Connected: p.connected, Published: published, Errors: p.errors, Dropped: p.dropped}
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *Publisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}
