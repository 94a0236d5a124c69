// Package mqttlink carries bus topics across an MQTT broker, so the
// capture camera can run in a separate process from the station.
//
// Messages travel as JSON with QoS 1. Routing is by exact topic name;
// wildcard subscriptions are not supported.
package mqttlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/chrisdamba/radarsim/internal/bus"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

var ErrAlreadySubscribed = errors.New("mqttlink: topic already has a handler")

// Handler receives the raw payload of a message on a subscribed topic.
type Handler func(payload []byte)

type Options struct {
	Broker    string
	ClientID  string
	KeepAlive uint16
	Logger    *slog.Logger
}

// Link is a connected MQTT client with per-topic handlers.
type Link struct {
	client   *paho.Client
	clientID string
	log      *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// Dial connects to the broker at opts.Broker (host:port). An empty client
// id is replaced by a random one.
func Dial(ctx context.Context, opts Options) (*Link, error) {
	if opts.ClientID == "" {
		opts.ClientID = "radarsim-" + uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", opts.Broker)
	if err != nil {
		return nil, fmt.Errorf("error opening TCP connection to %s: %w", opts.Broker, err)
	}

	l := &Link{
		clientID: opts.ClientID,
		log:      opts.Logger.With("component", "mqtt", "client_id", opts.ClientID),
		handlers: make(map[string]Handler),
	}

	l.client = paho.NewClient(paho.ClientConfig{
		ClientID: opts.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			l.route,
		},
		OnClientError: func(err error) {
			l.log.Error("mqtt client error", "error", err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			l.log.Warn("broker disconnected", "reason_code", d.ReasonCode)
		},
	})

	ca, err := l.client.Connect(ctx, &paho.Connect{
		ClientID:   opts.ClientID,
		KeepAlive:  opts.KeepAlive,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect to %s: %w", opts.Broker, err)
	}
	if ca.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect to %s refused: reason code %d", opts.Broker, ca.ReasonCode)
	}

	l.log.Info("connected to broker", "broker", opts.Broker)
	return l, nil
}

func (l *Link) ClientID() string { return l.clientID }

func (l *Link) route(pr paho.PublishReceived) (bool, error) {
	l.mu.RLock()
	h, ok := l.handlers[pr.Packet.Topic]
	l.mu.RUnlock()

	if !ok {
		return false, nil
	}
	h(pr.Packet.Payload)
	return true, nil
}

// Subscribe registers h for topic and subscribes on the broker.
func (l *Link) Subscribe(ctx context.Context, topic string, h Handler) error {
	l.mu.Lock()
	if _, ok := l.handlers[topic]; ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, topic)
	}
	l.handlers[topic] = h
	l.mu.Unlock()

	_, err := l.client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 1}},
	})
	if err != nil {
		l.mu.Lock()
		delete(l.handlers, topic)
		l.mu.Unlock()
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return nil
}

func (l *Link) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := l.client.Publish(ctx, &paho.Publish{
		QoS:     1,
		Topic:   topic,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (l *Link) Close() error {
	return l.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

// Export forwards every message published on topic to mqttTopic until ctx
// is done. It subscribes to topic under id with a channel of depth buffer.
func Export[T any](ctx context.Context, l *Link, topic *bus.Topic[T], id string, buffer int, mqttTopic string) error {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)
	if err := topic.Subscribe(id, ch); err != nil {
		return err
	}
	defer func() {
		_ = topic.Unsubscribe(id)
	}()

	log := l.log.With("bus_topic", topic.Name(), "mqtt_topic", mqttTopic)
	log.Info("exporting bus topic")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Error("cannot encode message", "error", err)
				continue
			}
			if err := l.Publish(ctx, mqttTopic, payload); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error("failed to forward message", "error", err)
			}
		}
	}
}

// Import subscribes to mqttTopic and republishes every decoded message on
// topic, waiting at most timeout for its subscribers. It returns once the
// broker subscription is in place.
func Import[T any](ctx context.Context, l *Link, mqttTopic string, topic *bus.Topic[T], timeout time.Duration) error {
	log := l.log.With("bus_topic", topic.Name(), "mqtt_topic", mqttTopic)

	err := l.Subscribe(ctx, mqttTopic, func(payload []byte) {
		var msg T
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Warn("dropping undecodable message", "error", err, "payload", string(payload))
			return
		}
		if err := topic.Publish(msg, timeout); err != nil {
			log.Warn("imported message not delivered to every subscriber", "error", err)
		}
	})
	if err != nil {
		return err
	}

	log.Info("importing mqtt topic")
	return nil
}
