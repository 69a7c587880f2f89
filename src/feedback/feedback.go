// Package feedback turns the interaction counts a node observes into the
// scalar that drives group-switch decisions.
package feedback

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/common"
)

// Source exposes the interaction counts of the current node.
type Source interface {
	RepliesSent() int
	EngagementReceived() int
}

// Counters is a Source fed by the node's own surfaces. It is safe for
// concurrent use.
type Counters struct {
	replies    int64
	engagement int64
}

// AddReplies ...
func (c *Counters) AddReplies(n int) {
	atomic.AddInt64(&c.replies, int64(n))
}

// AddEngagement ...
func (c *Counters) AddEngagement(n int) {
	atomic.AddInt64(&c.engagement, int64(n))
}

// RepliesSent implements Source.
func (c *Counters) RepliesSent() int {
	return int(atomic.LoadInt64(&c.replies))
}

// EngagementReceived implements Source.
func (c *Counters) EngagementReceived() int {
	return int(atomic.LoadInt64(&c.engagement))
}

// FallbackPolicy supplies the feedback value used when there is no
// engagement to compute a ratio from.
type FallbackPolicy func() float64

// RandomFallback picks 0 or 1 with equal probability. Feedback is therefore
// pure noise until a node sees engagement, which makes it switch groups half
// of the time.
func RandomFallback(rnd *rand.Rand) FallbackPolicy {
	var mu sync.Mutex
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return float64(rnd.Intn(2))
	}
}

// FixedFallback always returns v.
func FixedFallback(v float64) FallbackPolicy {
	return func() float64 {
		return v
	}
}

// Ratio is replies/engagement, or fallback() when engagement is not
// positive.
func Ratio(replies, engagement int, fallback FallbackPolicy) float64 {
	if engagement <= 0 {
		return fallback()
	}
	return float64(replies) / float64(engagement)
}

// Evaluator produces one feedback value per epoch. It never fails.
type Evaluator interface {
	Evaluate() float64
}

// EngagementEvaluator reports the replies/engagement ratio of a Source,
// averaged over the last few epochs.
type EngagementEvaluator struct {
	source   Source
	fallback FallbackPolicy
	window   *common.RollingWindow
	logger   *logrus.Entry
}

// NewEngagementEvaluator creates an evaluator over source. A window of 1
// disables smoothing. A nil fallback defaults to FixedFallback(0).
func NewEngagementEvaluator(source Source, fallback FallbackPolicy, window int, logger *logrus.Entry) *EngagementEvaluator {
	if fallback == nil {
		fallback = FixedFallback(0)
	}
	return &EngagementEvaluator{
		source:   source,
		fallback: fallback,
		window:   common.NewRollingWindow(window),
		logger:   logger,
	}
}

// Evaluate implements Evaluator.
func (e *EngagementEvaluator) Evaluate() float64 {
	replies := e.source.RepliesSent()
	engagement := e.source.EngagementReceived()

	raw := Ratio(replies, engagement, e.fallback)
	e.window.Push(raw)
	smoothed := e.window.Mean()

	e.logger.WithFields(logrus.Fields{
		"replies":    replies,
		"engagement": engagement,
		"raw":        raw,
		"fallback":   engagement <= 0,
		"smoothed":   smoothed,
	}).Debug("Evaluated feedback")

	return smoothed
}

// Jitter perturbs a score.
type Jitter func(score float64) float64

// UniformJitter adds a value drawn uniformly from [-spread, spread).
func UniformJitter(rnd *rand.Rand, spread float64) Jitter {
	var mu sync.Mutex
	return func(score float64) float64 {
		mu.Lock()
		defer mu.Unlock()
		return score + (rnd.Float64()*2-1)*spread
	}
}

// Probe reports how many of the last guesses made by the local model were
// correct.
type Probe interface {
	Guesses() (correct int, total int)
}

// CorrectnessEvaluator scores a node by the share of correct guesses its
// model makes, plus an optional jitter.
type CorrectnessEvaluator struct {
	probe    Probe
	jitter   Jitter
	fallback FallbackPolicy
}

// NewCorrectnessEvaluator ...
func NewCorrectnessEvaluator(probe Probe, jitter Jitter, fallback FallbackPolicy) *CorrectnessEvaluator {
	if fallback == nil {
		fallback = FixedFallback(0)
	}
	return &CorrectnessEvaluator{
		probe:    probe,
		jitter:   jitter,
		fallback: fallback,
	}
}

// Evaluate implements Evaluator.
func (c *CorrectnessEvaluator) Evaluate() float64 {
	correct, total := c.probe.Guesses()
	score := Ratio(correct, total, c.fallback)
	if c.jitter != nil {
		score = c.jitter(score)
	}
	return score
}
