package node

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/aggregate"
	"github.com/sporenet/sporenet/src/common"
)

// Config holds the tuning of the epoch coordinator.
type Config struct {
	Sleep               time.Duration `mapstructure:"sleep"`
	FeedbackThreshold   float64       `mapstructure:"feedback-threshold"`
	LocalWeight         float64       `mapstructure:"local-weight"`
	MutationProbability float64       `mapstructure:"mutation-probability"`
	MutationMin         float64       `mapstructure:"mutation-min"`
	MutationMax         float64       `mapstructure:"mutation-max"`
	Logger              *logrus.Logger
}

// NewConfig ...
func NewConfig(sleep time.Duration,
	feedbackThreshold float64,
	localWeight float64,
	mutationProbability float64,
	mutationMin float64,
	mutationMax float64,
	logger *logrus.Logger) *Config {

	return &Config{
		Sleep:               sleep,
		FeedbackThreshold:   feedbackThreshold,
		LocalWeight:         localWeight,
		MutationProbability: mutationProbability,
		MutationMin:         mutationMin,
		MutationMax:         mutationMax,
		Logger:              logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel
	return NewConfig(42300*time.Second, 0.5, aggregate.DefaultLocalWeight, 0.1, 0.9, 1.1, logger)
}

// TestConfig sleeps for a few milliseconds and logs through t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.Sleep = 5 * time.Millisecond
	config.Logger = common.NewTestLogger(t, logrus.DebugLevel)
	return config
}
