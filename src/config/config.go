package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/common"
	"github.com/sporenet/sporenet/src/model"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultSQLiteFile is the default name of the sqlite directory database.
	DefaultSQLiteFile = "directory.db"
)

// Default configuration values.
const (
	DefaultLogLevel            = "debug"
	DefaultServiceAddr         = "127.0.0.1:8000"
	DefaultSleep               = 42300 * time.Second
	DefaultFeedbackThreshold   = 0.5
	DefaultLocalWeight         = 0.5
	DefaultMutationProbability = 0.1
	DefaultMutationMin         = 0.9
	DefaultMutationMax         = 1.1
	DefaultSmoothingWindow     = 5
	DefaultFallback            = "random"
	DefaultFallbackValue       = 0.0
	DefaultEvaluator           = "engagement"
	DefaultJitter              = 0.05
	DefaultSporeTopic          = "sporenet.spores"
	DefaultStatusTopic         = "sporenet.status"
	DefaultFetchLimit          = 30
	DefaultRetention           = 256
	DefaultTransport           = "inmem"
	DefaultNATSURL             = "nats://127.0.0.1:4222"
	DefaultBreakerFailures     = 5
	DefaultBreakerTimeout      = 30 * time.Second
	DefaultDirectory           = "memory"
	DefaultLink                = "http://127.0.0.1:8000"
	DefaultTrainerListen       = "127.0.0.1:1339"
	DefaultTrainerTimeout      = 30 * time.Second
)

// Config contains all the configuration properties of a sporenet node.
type Config struct {
	// DataDir is the top-level directory containing sporenet configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every info-and-above log line.
	LogFile string `mapstructure:"log-file"`

	// NoService disables the HTTP stats service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP stats service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Moniker is the friendly name of this node. A random mushroom name is
	// picked when empty.
	Moniker string `mapstructure:"moniker"`

	// NodeID overrides the id derived from the node key.
	NodeID string `mapstructure:"node-id"`

	// ModelName is the swarm-unique name of the local model. Defaults to
	// "model-<node id>".
	ModelName string `mapstructure:"model-name"`

	// Link is the address advertised in JOIN_GROUP offers and in the node
	// registry.
	Link string `mapstructure:"link"`

	// Sleep is the pause at the end of every epoch, and after a failed one.
	Sleep time.Duration `mapstructure:"sleep"`

	// FeedbackThreshold is the initial threshold under which a node decides
	// to switch groups.
	FeedbackThreshold float64 `mapstructure:"feedback-threshold"`

	// LocalWeight is the share of the merged model that comes from the local
	// snapshot. Must be in (0, 1].
	LocalWeight float64 `mapstructure:"local-weight"`

	// MutationProbability is the chance, per epoch, that the threshold is
	// multiplied by a factor drawn from [MutationMin, MutationMax].
	MutationProbability float64 `mapstructure:"mutation-probability"`
	MutationMin         float64 `mapstructure:"mutation-min"`
	MutationMax         float64 `mapstructure:"mutation-max"`

	// SmoothingWindow is the number of epochs averaged into the feedback
	// value. 1 disables smoothing.
	SmoothingWindow int `mapstructure:"smoothing-window"`

	// Fallback is the feedback policy used when no engagement was observed:
	// "random" picks 0 or 1, "fixed" returns FallbackValue.
	Fallback      string  `mapstructure:"fallback"`
	FallbackValue float64 `mapstructure:"fallback-value"`

	// Evaluator selects the feedback signal: "engagement" scores replies
	// against engagement, "correctness" scores the guesses of the local
	// model, which requires a trainer that reports them.
	Evaluator string `mapstructure:"evaluator"`

	// Jitter is the spread of the noise added to correctness scores.
	Jitter float64 `mapstructure:"jitter"`

	// SporeTopic carries spore actions. StatusTopic carries free-text status
	// lines.
	SporeTopic  string `mapstructure:"spore-topic"`
	StatusTopic string `mapstructure:"status-topic"`

	// FetchLimit is the max number of recent spore payloads read per epoch.
	FetchLimit int `mapstructure:"fetch-limit"`

	// Retention is the number of payloads a transport keeps per topic.
	Retention int `mapstructure:"retention"`

	// Transport selects the gossip transport: "inmem" or "nats".
	Transport string `mapstructure:"transport"`

	// NATSURL is the server the nats transport connects to.
	NATSURL string `mapstructure:"nats-url"`

	// BreakerFailures is the number of consecutive transport failures that
	// open the circuit breaker. 0 disables the breaker.
	BreakerFailures uint32 `mapstructure:"breaker-failures"`

	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration `mapstructure:"breaker-timeout"`

	// Directory selects the group directory backend: "memory", "badger" or
	// "sqlite".
	Directory string `mapstructure:"directory"`

	// DatabaseDir is the directory containing the badger files.
	DatabaseDir string `mapstructure:"db"`

	// SQLitePath is the sqlite database file.
	SQLitePath string `mapstructure:"sqlite-path"`

	// Ratings is an optional user,item,rating CSV the reference trainer
	// learns from. A synthetic set is generated when empty.
	Ratings string `mapstructure:"ratings"`

	// TrainerConnect is the address of a trainer served in another process.
	// When empty the trainer runs in-process.
	TrainerConnect string `mapstructure:"trainer-connect"`

	// TrainerTimeout bounds every call to a remote trainer but training.
	TrainerTimeout time.Duration `mapstructure:"trainer-timeout"`

	// Trainer is the local trainer. The reference trainer is used when nil.
	Trainer model.Trainer

	// Key is the private key of the node.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:             DefaultDataDir(),
		LogLevel:            DefaultLogLevel,
		ServiceAddr:         DefaultServiceAddr,
		Link:                DefaultLink,
		Sleep:               DefaultSleep,
		FeedbackThreshold:   DefaultFeedbackThreshold,
		LocalWeight:         DefaultLocalWeight,
		MutationProbability: DefaultMutationProbability,
		MutationMin:         DefaultMutationMin,
		MutationMax:         DefaultMutationMax,
		SmoothingWindow:     DefaultSmoothingWindow,
		Fallback:            DefaultFallback,
		FallbackValue:       DefaultFallbackValue,
		Evaluator:           DefaultEvaluator,
		Jitter:              DefaultJitter,
		SporeTopic:          DefaultSporeTopic,
		StatusTopic:         DefaultStatusTopic,
		FetchLimit:          DefaultFetchLimit,
		Retention:           DefaultRetention,
		Transport:           DefaultTransport,
		NATSURL:             DefaultNATSURL,
		BreakerFailures:     DefaultBreakerFailures,
		BreakerTimeout:      DefaultBreakerTimeout,
		Directory:           DefaultDirectory,
		DatabaseDir:         DefaultDatabaseDir(),
		SQLitePath:          DefaultSQLitePath(),
		TrainerTimeout:      DefaultTrainerTimeout,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.Sleep = 10 * time.Millisecond
	config.NoService = true
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level sporenet directory, and updates the database
// paths if they are currently set to their default values.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
	if c.SQLitePath == DefaultSQLitePath() {
		c.SQLitePath = filepath.Join(dataDir, DefaultSQLiteFile)
	}
}

// Validate checks the values the coordinator relies on.
func (c *Config) Validate() error {
	if c.LocalWeight <= 0 || c.LocalWeight > 1 {
		return fmt.Errorf("local-weight must be in (0,1], got %v", c.LocalWeight)
	}
	if c.MutationProbability < 0 || c.MutationProbability > 1 {
		return fmt.Errorf("mutation-probability must be in [0,1], got %v", c.MutationProbability)
	}
	if c.MutationMin <= 0 || c.MutationMin >= c.MutationMax {
		return fmt.Errorf("invalid mutation range [%v, %v]", c.MutationMin, c.MutationMax)
	}
	if c.Sleep < 0 {
		return fmt.Errorf("sleep must not be negative")
	}
	if c.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing-window must be at least 1, got %d", c.SmoothingWindow)
	}
	switch c.Fallback {
	case "random", "fixed":
	default:
		return fmt.Errorf("unknown fallback policy %q", c.Fallback)
	}
	switch c.Evaluator {
	case "engagement", "correctness":
	default:
		return fmt.Errorf("unknown evaluator %q", c.Evaluator)
	}
	if c.Jitter < 0 {
		return fmt.Errorf("jitter must not be negative")
	}
	if c.SporeTopic == "" {
		return fmt.Errorf("spore-topic must be set")
	}
	switch c.Transport {
	case "inmem", "nats":
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	switch c.Directory {
	case "", "memory", "inmem", "badger", "sqlite":
	default:
		return fmt.Errorf("unknown directory backend %q", c.Directory)
	}
	return nil
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// DirectoryPath is the path handed to the directory backend.
func (c *Config) DirectoryPath() string {
	if c.Directory == "sqlite" {
		return c.SQLitePath
	}
	return c.DatabaseDir
}

// Logger returns a formatted logrus Entry, with prefix set to "sporenet".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.AddHook(lfshook.NewHook(
				lfshook.PathMap{
					logrus.InfoLevel:  c.LogFile,
					logrus.WarnLevel:  c.LogFile,
					logrus.ErrorLevel: c.LogFile,
					logrus.FatalLevel: c.LogFile,
					logrus.PanicLevel: c.LogFile,
				},
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "sporenet")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultSQLitePath returns the default path of the sqlite database.
func DefaultSQLitePath() string {
	return filepath.Join(DefaultDataDir(), DefaultSQLiteFile)
}

// DefaultDataDir return the default directory name for top-level sporenet
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Sporenet")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Sporenet")
		} else {
			return filepath.Join(home, ".sporenet")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
