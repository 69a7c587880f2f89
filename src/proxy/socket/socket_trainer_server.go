package socket

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/model"
)

// SocketTrainerServer exposes a model.Trainer to a remote SocketTrainerProxy.
// It is the half that runs next to the trainer.
type SocketTrainerServer struct {
	trainer     model.Trainer
	netListener net.Listener
	rpcServer   *rpc.Server
	logger      *logrus.Entry
}

// NewSocketTrainerServer listens on bindAddress. Requests are not served
// until Serve is called.
func NewSocketTrainerServer(bindAddress string, trainer model.Trainer, logger *logrus.Entry) (*SocketTrainerServer, error) {
	server := &SocketTrainerServer{
		trainer: trainer,
		logger:  logger,
	}

	if err := server.register(bindAddress); err != nil {
		return nil, err
	}

	return server, nil
}

func (p *SocketTrainerServer) register(bindAddress string) error {
	rpcServer := rpc.NewServer()

	if err := rpcServer.RegisterName("Trainer", &trainerService{p}); err != nil {
		return err
	}

	p.rpcServer = rpcServer

	l, err := net.Listen("tcp", bindAddress)
	if err != nil {
		p.logger.WithField("error", err).Error("Failed to listen")
		return err
	}

	p.netListener = l

	return nil
}

// Addr is the address the server listens on.
func (p *SocketTrainerServer) Addr() string {
	return p.netListener.Addr().String()
}

// Serve accepts connections until ctx is done. It implements suture.Service.
func (p *SocketTrainerServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		p.netListener.Close()
	}()

	for {
		conn, err := p.netListener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			p.logger.WithField("error", err).Error("Failed to accept")
			continue
		}

		go p.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Close stops accepting connections.
func (p *SocketTrainerServer) Close() error {
	return p.netListener.Close()
}

// trainerService holds the methods published over RPC. It is kept apart from
// SocketTrainerServer so that net/rpc does not complain about the server's
// other exported methods.
type trainerService struct {
	p *SocketTrainerServer
}

// Train runs one local training round.
func (s *trainerService) Train(epoch int, ack *bool) error {
	s.p.logger.WithField("epoch", epoch).Debug("TrainerServer.Train")

	if err := s.p.trainer.Train(context.Background()); err != nil {
		return err
	}

	*ack = true

	return nil
}

// Snapshot returns the encoded current snapshot.
func (s *trainerService) Snapshot(epoch int, snapshot *[]byte) error {
	snap := s.p.trainer.Snapshot()
	if snap == nil {
		return errors.New("trainer has no snapshot")
	}

	data, err := snap.Marshal()
	if err != nil {
		return err
	}

	*snapshot = data

	return nil
}

// SetSnapshot replaces the trainer's parameters.
func (s *trainerService) SetSnapshot(data []byte, ack *bool) error {
	snap, err := model.Unmarshal(data)
	if err != nil {
		return err
	}

	s.p.logger.WithField("model", snap.Name()).Debug("TrainerServer.SetSnapshot")

	s.p.trainer.SetSnapshot(snap)

	*ack = true

	return nil
}
