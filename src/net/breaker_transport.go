package net

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerTransport guards another Transport with a circuit breaker. After
// failures consecutive errors every call fails immediately for timeout, then
// a single probe is let through.
type BreakerTransport struct {
	inner  Transport
	cb     *gobreaker.CircuitBreaker[[]string]
	logger *logrus.Entry
}

// NewBreakerTransport ...
func NewBreakerTransport(inner Transport, failures uint32, timeout time.Duration, logger *logrus.Entry) *BreakerTransport {
	if failures == 0 {
		failures = 1
	}

	settings := gobreaker.Settings{
		Name:        "gossip",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Gossip circuit breaker changed state")
		},
	}

	return &BreakerTransport{
		inner:  inner,
		cb:     gobreaker.NewCircuitBreaker[[]string](settings),
		logger: logger,
	}
}

// State returns the breaker state as a string for stats.
func (b *BreakerTransport) State() string {
	return b.cb.State().String()
}

// Publish implements the Transport interface.
func (b *BreakerTransport) Publish(ctx context.Context, topic string, payload string) error {
	_, err := b.cb.Execute(func() ([]string, error) {
		return nil, b.inner.Publish(ctx, topic, payload)
	})
	return b.wrap("publish", topic, err)
}

// Fetch implements the Transport interface.
func (b *BreakerTransport) Fetch(ctx context.Context, topic string, limit int) ([]string, error) {
	out, err := b.cb.Execute(func() ([]string, error) {
		return b.inner.Fetch(ctx, topic, limit)
	})
	if err != nil {
		return nil, b.wrap("fetch", topic, err)
	}
	return out, nil
}

// Close closes the wrapped transport.
func (b *BreakerTransport) Close() error {
	return b.inner.Close()
}

func (b *BreakerTransport) wrap(op, topic string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*TransportError); ok {
		return err
	}
	return &TransportError{Op: op, Topic: topic, Err: err}
}
