package net

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSTransport implements the Transport interface on top of NATS core
// subjects. Messages published before a topic is subscribed are not seen,
// which is in line with the at-most-once contract of the gossip channel.
type NATSTransport struct {
	sync.Mutex

	nc           *nats.Conn
	retention    int
	flushTimeout time.Duration
	buffers      map[string][]string
	subs         map[string]*nats.Subscription
	logger       *logrus.Entry
}

// NewNATSTransport connects to url and subscribes to topics straight away so
// that Fetch has something to return on the first epoch.
func NewNATSTransport(url string, topics []string, retention int, logger *logrus.Entry) (*NATSTransport, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	nc, err := nats.Connect(url,
		nats.Name("sporenet"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	t := &NATSTransport{
		nc:           nc,
		retention:    retention,
		flushTimeout: 2 * time.Second,
		buffers:      make(map[string][]string),
		subs:         make(map[string]*nats.Subscription),
		logger:       logger,
	}

	for _, topic := range topics {
		if err := t.subscribe(topic); err != nil {
			nc.Close()
			return nil, err
		}
	}

	if nc.IsConnected() {
		if err := nc.FlushTimeout(t.flushTimeout); err != nil {
			logger.WithError(err).Warn("Flushing NATS subscriptions")
		}
	}

	return t, nil
}

func (t *NATSTransport) subscribe(topic string) error {
	t.Lock()
	defer t.Unlock()

	if _, ok := t.subs[topic]; ok {
		return nil
	}

	sub, err := t.nc.Subscribe(topic, func(m *nats.Msg) {
		t.Lock()
		t.buffers[topic] = appendBounded(t.buffers[topic], string(m.Data), t.retention)
		t.Unlock()
	})
	if err != nil {
		return &TransportError{Op: "subscribe", Topic: topic, Err: err}
	}

	t.subs[topic] = sub
	t.logger.WithField("topic", topic).Debug("Subscribed")

	return nil
}

// Publish implements the Transport interface.
func (t *NATSTransport) Publish(ctx context.Context, topic string, payload string) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "publish", Topic: topic, Err: err}
	}
	if t.nc.IsClosed() {
		return &TransportError{Op: "publish", Topic: topic, Err: ErrTransportClosed}
	}

	if err := t.nc.Publish(topic, []byte(payload)); err != nil {
		return &TransportError{Op: "publish", Topic: topic, Err: err}
	}

	if err := t.nc.FlushTimeout(t.flushTimeout); err != nil {
		return &TransportError{Op: "publish", Topic: topic, Err: err}
	}

	return nil
}

// Fetch implements the Transport interface. An unknown topic is subscribed on
// first use and returns nothing until messages arrive.
func (t *NATSTransport) Fetch(ctx context.Context, topic string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "fetch", Topic: topic, Err: err}
	}
	if t.nc.IsClosed() {
		return nil, &TransportError{Op: "fetch", Topic: topic, Err: ErrTransportClosed}
	}

	if err := t.subscribe(topic); err != nil {
		return nil, err
	}

	t.Lock()
	defer t.Unlock()

	return newest(t.buffers[topic], limit), nil
}

// Close drains subscriptions and closes the connection.
func (t *NATSTransport) Close() error {
	t.Lock()
	for topic, sub := range t.subs {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.WithError(err).WithField("topic", topic).Debug("Unsubscribe")
		}
	}
	t.subs = make(map[string]*nats.Subscription)
	t.Unlock()

	t.nc.Close()
	return nil
}
