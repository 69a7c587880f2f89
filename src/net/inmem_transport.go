package net

import (
	"context"
	"sync"
)

// InmemBoard is the shared medium behind InmemTransports. Every transport
// created from the same board sees the same topics.
type InmemBoard struct {
	sync.RWMutex
	topics    map[string][]string
	retention int
}

// NewInmemBoard creates an empty board that keeps the last retention payloads
// of each topic.
func NewInmemBoard(retention int) *InmemBoard {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &InmemBoard{
		topics:    make(map[string][]string),
		retention: retention,
	}
}

// NewTransport returns a new transport attached to the board.
func (b *InmemBoard) NewTransport() *InmemTransport {
	return &InmemTransport{board: b}
}

func (b *InmemBoard) post(topic, payload string) {
	b.Lock()
	defer b.Unlock()
	b.topics[topic] = appendBounded(b.topics[topic], payload, b.retention)
}

func (b *InmemBoard) read(topic string, limit int) []string {
	b.RLock()
	defer b.RUnlock()
	return newest(b.topics[topic], limit)
}

// InmemTransport Implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network.
type InmemTransport struct {
	sync.RWMutex
	board  *InmemBoard
	closed bool
}

// NewInmemTransport is used to initialize a new transport on a private board.
func NewInmemTransport() *InmemTransport {
	return NewInmemBoard(0).NewTransport()
}

// Publish implements the Transport interface.
func (i *InmemTransport) Publish(ctx context.Context, topic string, payload string) error {
	if err := i.check(ctx, "publish", topic); err != nil {
		return err
	}
	i.board.post(topic, payload)
	return nil
}

// Fetch implements the Transport interface.
func (i *InmemTransport) Fetch(ctx context.Context, topic string, limit int) ([]string, error) {
	if err := i.check(ctx, "fetch", topic); err != nil {
		return nil, err
	}
	return i.board.read(topic, limit), nil
}

func (i *InmemTransport) check(ctx context.Context, op, topic string) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: op, Topic: topic, Err: err}
	}
	i.RLock()
	defer i.RUnlock()
	if i.closed {
		return &TransportError{Op: op, Topic: topic, Err: ErrTransportClosed}
	}
	return nil
}

// Close is used to permanently disable the transport. The board is left
// untouched for the other transports.
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()
	i.closed = true
	return nil
}
