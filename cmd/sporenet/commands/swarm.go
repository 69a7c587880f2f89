package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sporenet/sporenet/src/config"
	"github.com/sporenet/sporenet/src/crypto/keys"
	"github.com/sporenet/sporenet/src/directory"
	snet "github.com/sporenet/sporenet/src/net"
	"github.com/sporenet/sporenet/src/sporenet"
	"github.com/thejerf/suture/v4"
)

// NewSwarmCmd returns the command that starts several nodes in one process
func NewSwarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "swarm",
		Short:   "Run several in-process nodes over a shared board and directory",
		PreRunE: loadConfig,
		RunE:    runSwarm,
	}
	AddRunFlags(cmd)
	cmd.Flags().Int("nodes", _config.Nodes, "Number of nodes")
	return cmd
}

func runSwarm(cmd *cobra.Command, args []string) error {
	if _config.Nodes < 1 {
		return fmt.Errorf("nodes must be at least 1, got %d", _config.Nodes)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := &_config.Sporenet
	logger := base.Logger()

	dir, err := directory.New(base.Directory, base.DirectoryPath())
	if err != nil {
		return err
	}
	defer dir.Close()

	board := snet.NewInmemBoard(base.Retention)

	sup := suture.New("swarm", suture.Spec{
		EventHook: sporenet.EventHook(logger),
	})

	for i := 0; i < _config.Nodes; i++ {
		conf, err := swarmNodeConfig(base, i)
		if err != nil {
			return err
		}

		engine := sporenet.NewEngine(conf)
		if conf.Transport != "nats" {
			engine.Transport = board.NewTransport()
		}
		engine.Directory = dir

		if err := engine.Init(ctx); err != nil {
			logger.WithError(err).Errorf("Cannot initialize node %d", i)
			return err
		}
		defer engine.Transport.Close()

		sup.Add(engine)
	}

	logger.WithField("nodes", _config.Nodes).Info("Swarm started")

	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// swarmNodeConfig derives the config of the i-th swarm node from base. Every
// node gets its own key, and its own service port when the service is on.
func swarmNodeConfig(base *config.Config, i int) (*config.Config, error) {
	conf := *base

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}
	conf.Key = key
	conf.Trainer = nil
	conf.NodeID = ""
	conf.ModelName = ""

	if !conf.NoService {
		addr, err := offsetPort(base.ServiceAddr, i)
		if err != nil {
			return nil, err
		}
		conf.ServiceAddr = addr
		conf.Link = "http://" + addr
	} else {
		conf.Link = fmt.Sprintf("%s/%d", base.Link, i)
	}

	return &conf, nil
}

func offsetPort(addr string, i int) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, strconv.Itoa(p+i)), nil
}
