package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/sporenet/sporenet/src/config"
	"github.com/sporenet/sporenet/src/dummy"
	"github.com/sporenet/sporenet/src/proxy/socket"
)

var (
	trainerListen = config.DefaultTrainerListen
	trainerDim    = 8
)

// NewTrainerCmd returns the command that serves the reference trainer to a
// node started with --trainer-connect
func NewTrainerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "trainer",
		Short:   "Serve the reference trainer over a socket",
		PreRunE: loadConfig,
		RunE:    runTrainer,
	}

	cmd.Flags().String("log", _config.Sporenet.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("datadir", _config.Sporenet.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("ratings", _config.Sporenet.Ratings, "user,item,rating CSV to learn from")
	cmd.Flags().StringVar(&trainerListen, "listen", trainerListen, "Listen IP:Port for the trainer")
	cmd.Flags().IntVar(&trainerDim, "dim", trainerDim, "Embedding size")

	return cmd
}

func runTrainer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := _config.Sporenet.Logger()
	seed := time.Now().UnixNano()

	var ratings []dummy.Rating
	if _config.Sporenet.Ratings != "" {
		var err error
		ratings, err = dummy.LoadRatings(_config.Sporenet.Ratings)
		if err != nil {
			return err
		}
	} else {
		ratings = dummy.SyntheticRatings(50, 40, 600, seed)
	}

	trainer := dummy.NewTrainer(ratings, trainerDim, seed, logger.WithField("component", "trainer"))

	server, err := socket.NewSocketTrainerServer(trainerListen, trainer, logger.WithField("component", "trainer-server"))
	if err != nil {
		return err
	}

	logger.WithField("listen", server.Addr()).Info("Serving trainer")

	if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
