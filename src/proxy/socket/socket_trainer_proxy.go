package socket

import (
	"context"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/model"
)

// SocketTrainerProxy implements model.Trainer by calling a remote
// SocketTrainerServer over JSON-RPC.
//
// Snapshot and SetSnapshot cannot report errors through model.Trainer. On
// failure Snapshot returns the last snapshot seen and SetSnapshot only logs.
type SocketTrainerProxy struct {
	serverAddr string
	timeout    time.Duration
	logger     *logrus.Entry

	mu    sync.Mutex
	rpc   *rpc.Client
	epoch int
	last  *model.Snapshot
}

// NewSocketTrainerProxy connects to the trainer at serverAddr and fetches its
// initial snapshot.
func NewSocketTrainerProxy(serverAddr string, timeout time.Duration, logger *logrus.Entry) (*SocketTrainerProxy, error) {
	proxy := &SocketTrainerProxy{
		serverAddr: serverAddr,
		timeout:    timeout,
		logger:     logger,
	}

	snap, err := proxy.fetchSnapshot()
	if err != nil {
		return nil, err
	}

	proxy.last = snap

	return proxy, nil
}

func (p *SocketTrainerProxy) getConnection() error {
	if p.rpc == nil {
		conn, err := net.DialTimeout("tcp", p.serverAddr, p.timeout)
		if err != nil {
			return err
		}

		p.rpc = jsonrpc.NewClient(conn)
	}

	return nil
}

// call must be made with mu held. A failed call drops the connection so the
// next one redials.
func (p *SocketTrainerProxy) call(ctx context.Context, method string, args interface{}, reply interface{}) error {
	if err := p.getConnection(); err != nil {
		return err
	}

	c := p.rpc.Go(method, args, reply, make(chan *rpc.Call, 1))

	select {
	case <-c.Done:
		if c.Error != nil {
			p.reset()
		}
		return c.Error
	case <-ctx.Done():
		p.reset()
		return ctx.Err()
	}
}

func (p *SocketTrainerProxy) reset() {
	if p.rpc != nil {
		p.rpc.Close()
		p.rpc = nil
	}
}

func (p *SocketTrainerProxy) fetchSnapshot() (*model.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var data []byte
	if err := p.call(ctx, "Trainer.Snapshot", p.epoch, &data); err != nil {
		return nil, err
	}

	return model.Unmarshal(data)
}

// Train implements model.Trainer.
func (p *SocketTrainerProxy) Train(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.epoch++

	var ack bool
	if err := p.call(ctx, "Trainer.Train", p.epoch, &ack); err != nil {
		return err
	}

	p.logger.WithField("epoch", p.epoch).Debug("TrainerProxy.Train")

	return nil
}

// Snapshot implements model.Trainer.
func (p *SocketTrainerProxy) Snapshot() *model.Snapshot {
	snap, err := p.fetchSnapshot()
	if err != nil {
		p.logger.WithError(err).Warn("TrainerProxy.Snapshot")

		p.mu.Lock()
		defer p.mu.Unlock()
		return p.last
	}

	p.mu.Lock()
	p.last = snap
	p.mu.Unlock()

	return snap
}

// SetSnapshot implements model.Trainer.
func (p *SocketTrainerProxy) SetSnapshot(s *model.Snapshot) {
	data, err := s.Marshal()
	if err != nil {
		p.logger.WithError(err).Error("TrainerProxy.SetSnapshot")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var ack bool
	if err := p.call(ctx, "Trainer.SetSnapshot", data, &ack); err != nil {
		p.logger.WithError(err).Warn("TrainerProxy.SetSnapshot")
		return
	}

	p.last = s
}

// Close closes the connection to the trainer.
func (p *SocketTrainerProxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
