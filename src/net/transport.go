package net

import (
	"context"
	"fmt"
)

// DefaultRetention is the number of payloads kept per topic when a transport
// is created with a non-positive retention.
const DefaultRetention = 256

// Transport provides an interface for gossip transports to allow a node to
// publish to and read from shared topics.
type Transport interface {
	// Publish sends payload to every reader of topic. Delivery is at most
	// once.
	Publish(ctx context.Context, topic string, payload string) error

	// Fetch returns up to limit of the most recent payloads retained for
	// topic, oldest first. A non-positive limit returns everything retained.
	Fetch(ctx context.Context, topic string, limit int) ([]string, error)

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}

// TransportError is returned when a publish or fetch could not be carried
// out. Callers treat it as "no data this epoch".
type TransportError struct {
	Op    string
	Topic string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Topic, e.Err)
}

// Unwrap ...
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrTransportClosed is wrapped by operations attempted after Close.
var ErrTransportClosed = fmt.Errorf("transport closed")

// newest returns the last limit items of buf in their original order.
func newest(buf []string, limit int) []string {
	start := 0
	if limit > 0 && len(buf) > limit {
		start = len(buf) - limit
	}
	out := make([]string, len(buf)-start)
	copy(out, buf[start:])
	return out
}

// appendBounded appends v and trims buf to the last retention items.
func appendBounded(buf []string, v string, retention int) []string {
	buf = append(buf, v)
	if len(buf) > retention {
		buf = append([]string{}, buf[len(buf)-retention:]...)
	}
	return buf
}
