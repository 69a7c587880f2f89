package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sporenet/sporenet/src/sporenet"
)

// NewRunCmd returns the command that starts a Sporenet node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runSporenet,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runSporenet(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := sporenet.NewEngine(&_config.Sporenet)

	if err := engine.Init(ctx); err != nil {
		_config.Sporenet.Logger().Error("Cannot initialize engine:", err)
		return err
	}
	defer engine.Close()

	return engine.Run(ctx)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	c := &_config.Sporenet

	cmd.Flags().String("datadir", c.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", c.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", c.LogFile, "Also write info-and-above logs, as JSON, to this file")
	cmd.Flags().String("moniker", c.Moniker, "Optional name")
	cmd.Flags().String("node-id", c.NodeID, "Override the id derived from the node key")
	cmd.Flags().String("model-name", c.ModelName, "Swarm-unique name of the local model")
	cmd.Flags().String("link", c.Link, "Address advertised in group offers")

	// Service
	cmd.Flags().StringP("service-listen", "s", c.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", c.NoService, "Disable HTTP service")

	// Epochs
	cmd.Flags().Duration("sleep", c.Sleep, "Pause between epochs")
	cmd.Flags().Float64("feedback-threshold", c.FeedbackThreshold, "Initial feedback threshold under which a node switches groups")
	cmd.Flags().Float64("local-weight", c.LocalWeight, "Share of the merged model taken from the local snapshot")
	cmd.Flags().Float64("mutation-probability", c.MutationProbability, "Chance per epoch of mutating the threshold")
	cmd.Flags().Float64("mutation-min", c.MutationMin, "Lowest threshold mutation factor")
	cmd.Flags().Float64("mutation-max", c.MutationMax, "Highest threshold mutation factor")

	// Feedback
	cmd.Flags().String("evaluator", c.Evaluator, "Feedback signal: engagement, correctness")
	cmd.Flags().Int("smoothing-window", c.SmoothingWindow, "Number of epochs averaged into feedback")
	cmd.Flags().String("fallback", c.Fallback, "Feedback when nothing was observed: random, fixed")
	cmd.Flags().Float64("fallback-value", c.FallbackValue, "Value of the fixed fallback")
	cmd.Flags().Float64("jitter", c.Jitter, "Noise added to correctness feedback")
	cmd.Flags().String("ratings", c.Ratings, "user,item,rating CSV for the reference trainer")
	cmd.Flags().String("trainer-connect", c.TrainerConnect, "IP:Port of a trainer served by another process")
	cmd.Flags().Duration("trainer-timeout", c.TrainerTimeout, "Timeout of remote trainer calls")

	// Gossip
	cmd.Flags().String("transport", c.Transport, "Gossip transport: inmem, nats")
	cmd.Flags().String("nats-url", c.NATSURL, "NATS server URL")
	cmd.Flags().String("spore-topic", c.SporeTopic, "Topic carrying spore actions")
	cmd.Flags().String("status-topic", c.StatusTopic, "Topic carrying status lines")
	cmd.Flags().Int("fetch-limit", c.FetchLimit, "Max number of spore payloads read per epoch")
	cmd.Flags().Int("retention", c.Retention, "Number of payloads retained per topic")
	cmd.Flags().Uint32("breaker-failures", c.BreakerFailures, "Consecutive transport failures that open the breaker (0 disables)")
	cmd.Flags().Duration("breaker-timeout", c.BreakerTimeout, "Time the breaker stays open")

	// Directory
	cmd.Flags().String("directory", c.Directory, "Group directory backend: memory, badger, sqlite")
	cmd.Flags().String("db", c.DatabaseDir, "Badger database directory")
	cmd.Flags().String("sqlite-path", c.SQLitePath, "SQLite database file")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database paths to be inside the new datadir
	_config.Sporenet.SetDataDir(_config.Sporenet.DataDir)

	c := &_config.Sporenet

	logFields := logrus.Fields{
		"sporenet.DataDir":           c.DataDir,
		"sporenet.ServiceAddr":       c.ServiceAddr,
		"sporenet.NoService":         c.NoService,
		"sporenet.LogLevel":          c.LogLevel,
		"sporenet.Moniker":           c.Moniker,
		"sporenet.Link":              c.Link,
		"sporenet.Sleep":             c.Sleep,
		"sporenet.FeedbackThreshold": c.FeedbackThreshold,
		"sporenet.LocalWeight":       c.LocalWeight,
		"sporenet.Evaluator":         c.Evaluator,
		"sporenet.Fallback":          c.Fallback,
		"sporenet.Transport":         c.Transport,
		"sporenet.Directory":         c.Directory,
	}

	switch c.Directory {
	case "badger":
		logFields["sporenet.DatabaseDir"] = c.DatabaseDir
	case "sqlite":
		logFields["sporenet.SQLitePath"] = c.SQLitePath
	}

	if c.TrainerConnect != "" {
		logFields["sporenet.TrainerConnect"] = c.TrainerConnect
	}

	if c.Transport == "nats" {
		logFields["sporenet.NATSURL"] = c.NATSURL
	}

	c.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/sporenet.toml (.json, .yaml also work)
	viper.SetConfigName("sporenet")               // name of config file (without extension)
	viper.AddConfigPath(_config.Sporenet.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Sporenet.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Sporenet.Logger().Debugf("No config file found in: %s", _config.Sporenet.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
