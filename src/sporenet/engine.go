package sporenet

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/config"
	"github.com/sporenet/sporenet/src/crypto/keys"
	"github.com/sporenet/sporenet/src/directory"
	"github.com/sporenet/sporenet/src/dummy"
	"github.com/sporenet/sporenet/src/feedback"
	"github.com/sporenet/sporenet/src/net"
	"github.com/sporenet/sporenet/src/node"
	"github.com/sporenet/sporenet/src/proxy/socket"
	"github.com/sporenet/sporenet/src/service"
	"github.com/sporenet/sporenet/src/spore"
	"github.com/thejerf/suture/v4"
)

// Sizes of the synthetic data set the reference trainer learns from when no
// ratings file is configured.
const (
	syntheticUsers   = 50
	syntheticItems   = 40
	syntheticRatings = 600
	embeddingDim     = 8
)

// Engine wires a sporenet node to its transport, directory, trainer and
// HTTP service. Transport and Directory may be set before Init to share them
// between engines of the same process.
type Engine struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Directory directory.Directory
	Counters  *feedback.Counters
	Service   *service.Service

	evaluator    feedback.Evaluator
	trainerProxy *socket.SocketTrainerProxy
	logger       *logrus.Entry
}

// NewEngine ...
func NewEngine(conf *config.Config) *Engine {
	engine := &Engine{
		Config:   conf,
		Counters: &feedback.Counters{},
	}

	return engine
}

func (e *Engine) initKey() error {
	if e.Config.Key != nil {
		return nil
	}

	keyfile := keys.NewSimpleKeyfile(e.Config.Keyfile())

	key, created, err := keyfile.LoadOrCreate()
	if err != nil {
		e.logger.WithError(err).Error("Cannot load or create private key")
		return err
	}

	if created {
		e.logger.WithField("pub", keys.PublicKeyHex(&key.PublicKey)).Info("Created a new key")
	}

	e.Config.Key = key

	return nil
}

func (e *Engine) initTransport() error {
	if e.Transport == nil {
		switch e.Config.Transport {
		case "nats":
			t, err := net.NewNATSTransport(
				e.Config.NATSURL,
				[]string{e.Config.SporeTopic, e.Config.StatusTopic},
				e.Config.Retention,
				e.logger.WithField("component", "nats"),
			)
			if err != nil {
				return err
			}
			e.Transport = t
		default:
			e.Transport = net.NewInmemBoard(e.Config.Retention).NewTransport()
		}

		e.logger.WithField("transport", e.Config.Transport).Debug("Created transport")
	}

	if e.Config.BreakerFailures > 0 {
		e.Transport = net.NewBreakerTransport(
			e.Transport,
			e.Config.BreakerFailures,
			e.Config.BreakerTimeout,
			e.logger.WithField("component", "breaker"),
		)
	}

	return nil
}

func (e *Engine) initDirectory() error {
	if e.Directory != nil {
		return nil
	}

	e.logger.WithFields(logrus.Fields{
		"backend": e.Config.Directory,
		"path":    e.Config.DirectoryPath(),
	}).Debug("Attempting to load or create directory")

	dir, err := directory.New(e.Config.Directory, e.Config.DirectoryPath())
	if err != nil {
		return err
	}

	e.Directory = dir

	return nil
}

func (e *Engine) initTrainer() error {
	if e.Config.Trainer != nil {
		return nil
	}

	if e.Config.TrainerConnect != "" {
		proxy, err := socket.NewSocketTrainerProxy(
			e.Config.TrainerConnect,
			e.Config.TrainerTimeout,
			e.logger.WithField("component", "trainer-proxy"),
		)
		if err != nil {
			e.logger.WithError(err).Error("Cannot connect to trainer")
			return err
		}
		e.trainerProxy = proxy
		e.Config.Trainer = proxy
		return nil
	}

	seed := time.Now().UnixNano()

	var ratings []dummy.Rating
	if e.Config.Ratings != "" {
		var err error
		ratings, err = dummy.LoadRatings(e.Config.Ratings)
		if err != nil {
			return err
		}
	} else {
		ratings = dummy.SyntheticRatings(syntheticUsers, syntheticItems, syntheticRatings, seed)
	}

	e.logger.WithField("ratings", len(ratings)).Debug("Created reference trainer")

	e.Config.Trainer = dummy.NewTrainer(ratings, embeddingDim, seed, e.logger.WithField("component", "trainer"))

	return nil
}

func (e *Engine) fallback() feedback.FallbackPolicy {
	if e.Config.Fallback == "fixed" {
		return feedback.FixedFallback(e.Config.FallbackValue)
	}
	return feedback.RandomFallback(rand.New(rand.NewSource(time.Now().UnixNano())))
}

func (e *Engine) initEvaluator() error {
	switch e.Config.Evaluator {
	case "correctness":
		probe, ok := e.Config.Trainer.(feedback.Probe)
		if !ok {
			return fmt.Errorf("trainer %T does not report guesses", e.Config.Trainer)
		}
		e.evaluator = feedback.NewCorrectnessEvaluator(
			probe,
			feedback.UniformJitter(rand.New(rand.NewSource(time.Now().UnixNano())), e.Config.Jitter),
			e.fallback(),
		)
	default:
		e.evaluator = feedback.NewEngagementEvaluator(
			e.Counters,
			e.fallback(),
			e.Config.SmoothingWindow,
			e.logger.WithField("component", "feedback"),
		)
	}

	return nil
}

func (e *Engine) initNode(ctx context.Context) error {
	id := e.Config.NodeID
	if id == "" {
		id = fmt.Sprint(keys.PublicKeyID(&e.Config.Key.PublicKey))
	}

	identity := node.NewIdentity(id, e.Config.Moniker, e.Config.Link, nil)
	if e.Config.ModelName != "" {
		identity.ModelName = e.Config.ModelName
	}

	e.logger.WithFields(logrus.Fields{
		"id":      identity.ID,
		"moniker": identity.Name,
		"model":   identity.ModelName,
		"link":    identity.Link,
	}).Debug("IDENTITY")

	nodeConf := node.NewConfig(
		e.Config.Sleep,
		e.Config.FeedbackThreshold,
		e.Config.LocalWeight,
		e.Config.MutationProbability,
		e.Config.MutationMin,
		e.Config.MutationMax,
		e.logger.Logger,
	)

	spores := spore.NewManager(
		e.Transport,
		e.Config.SporeTopic,
		e.Config.StatusTopic,
		e.Config.FetchLimit,
		e.logger.WithField("component", "spore"),
	)

	e.Node = node.NewNode(
		nodeConf,
		identity,
		spores,
		e.Directory,
		e.Config.Trainer,
		e.evaluator,
	)

	if err := e.Node.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (e *Engine) initService() error {
	if !e.Config.NoService {
		e.Service = service.NewService(
			e.Config.ServiceAddr,
			e.Node,
			e.Counters,
			e.logger.WithField("component", "service"),
		)
	}
	return nil
}

// Init validates the configuration and builds every component of the node.
func (e *Engine) Init(ctx context.Context) error {
	e.logger = e.Config.Logger()

	if err := e.Config.Validate(); err != nil {
		return err
	}

	if err := e.initKey(); err != nil {
		return err
	}

	if err := e.initTransport(); err != nil {
		return err
	}

	if err := e.initDirectory(); err != nil {
		return err
	}

	if err := e.initTrainer(); err != nil {
		return err
	}

	if err := e.initEvaluator(); err != nil {
		return err
	}

	if err := e.initNode(ctx); err != nil {
		return err
	}

	if err := e.initService(); err != nil {
		return err
	}

	return nil
}

// Run supervises the node and the service until ctx is done. Components that
// return early are restarted.
func (e *Engine) Run(ctx context.Context) error {
	sup := suture.New("sporenet", suture.Spec{
		EventHook: EventHook(e.logger),
	})

	sup.Add(e.Node)

	if e.Service != nil {
		sup.Add(e.Service)
	}

	err := sup.Serve(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Serve implements suture.Service so that engines can be nested under a
// parent supervisor.
func (e *Engine) Serve(ctx context.Context) error {
	return e.Run(ctx)
}

// Close releases the transport and the directory.
func (e *Engine) Close() error {
	var firstErr error

	if e.Transport != nil {
		if err := e.Transport.Close(); err != nil {
			firstErr = err
		}
	}

	if e.Directory != nil {
		if err := e.Directory.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if e.trainerProxy != nil {
		if err := e.trainerProxy.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// EventHook logs supervisor events through logger.
func EventHook(logger *logrus.Entry) suture.EventHook {
	return func(ev suture.Event) {
		entry := logger.WithFields(logrus.Fields(ev.Map()))
		switch ev.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			entry.Error(ev.String())
		case suture.EventTypeBackoff:
			entry.Warn(ev.String())
		default:
			entry.Debug(ev.String())
		}
	}
}
