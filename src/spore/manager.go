package spore

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/net"
)

// StatusPrefix marks the free-text status lines nodes post about themselves.
const StatusPrefix = "[SPORE] "

// Manager publishes and collects spore actions over a gossip transport.
type Manager struct {
	trans       net.Transport
	sporeTopic  string
	statusTopic string
	limit       int
	logger      *logrus.Entry

	// OnDrop is called for every payload that fails to decode.
	OnDrop func(err error)
}

// NewManager ...
func NewManager(trans net.Transport, sporeTopic, statusTopic string, limit int, logger *logrus.Entry) *Manager {
	return &Manager{
		trans:       trans,
		sporeTopic:  sporeTopic,
		statusTopic: statusTopic,
		limit:       limit,
		logger:      logger,
	}
}

// Post encodes and publishes a.
func (m *Manager) Post(ctx context.Context, a Action) error {
	payload, err := Encode(a)
	if err != nil {
		return err
	}

	if err := m.trans.Publish(ctx, m.sporeTopic, payload); err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"type":  a.Type,
		"args":  a.Args,
		"actor": a.Actor,
	}).Debug("Posted spore action")

	return nil
}

// Fetch returns the spore actions currently retained by the transport, in
// arrival order. Malformed payloads are logged and dropped.
func (m *Manager) Fetch(ctx context.Context) ([]Action, error) {
	payloads, err := m.trans.Fetch(ctx, m.sporeTopic, m.limit)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	actions := make([]Action, 0, len(payloads))
	for _, p := range payloads {
		a, err := Decode(p)
		if err != nil {
			m.logger.WithError(err).WithField("payload", p).Warn("Dropping spore action")
			if m.OnDrop != nil {
				m.OnDrop(err)
			}
			continue
		}
		a.ReceivedAt = now
		actions = append(actions, a)
	}

	m.logger.WithFields(logrus.Fields{
		"payloads": len(payloads),
		"actions":  len(actions),
	}).Debug("Fetched spore actions")

	return actions, nil
}

// Announce posts a status line on the status topic. Failures are only logged;
// status lines are informational.
func (m *Manager) Announce(ctx context.Context, text string) {
	if m.statusTopic == "" {
		return
	}
	if err := m.trans.Publish(ctx, m.statusTopic, StatusPrefix+text); err != nil {
		m.logger.WithError(err).WithField("status", text).Debug("Announce")
	}
}
