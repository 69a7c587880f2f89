package node

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/aggregate"
	"github.com/sporenet/sporenet/src/common"
	"github.com/sporenet/sporenet/src/directory"
	"github.com/sporenet/sporenet/src/feedback"
	"github.com/sporenet/sporenet/src/metrics"
	"github.com/sporenet/sporenet/src/model"
	"github.com/sporenet/sporenet/src/spore"
)

// Trainer is the local learner driven by the coordinator.
type Trainer = model.Trainer

// Node is the epoch coordinator of a sporenet node.
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry
	id     Identity

	spores    *spore.Manager
	dir       directory.Directory
	trainer   Trainer
	engine    *aggregate.Engine
	evaluator feedback.Evaluator
	mutator   *Mutator

	// live is swapped wholesale at the end of every aggregation. Readers
	// never see a partially merged model.
	live atomic.Pointer[model.Snapshot]

	mu        sync.RWMutex
	groupID   string
	link      string
	joined    bool
	switching bool
	threshold float64
	feedback  float64
	epoch     int
	lastErr   error

	start time.Time
}

// NewNode is a factory method that returns a Node instance
func NewNode(conf *Config,
	id Identity,
	spores *spore.Manager,
	dir directory.Directory,
	trainer Trainer,
	evaluator feedback.Evaluator,
) *Node {
	logger := conf.Logger.WithFields(logrus.Fields{
		"this_id": id.ID,
		"moniker": id.Name,
	})

	spores.OnDrop = func(error) {
		metrics.SporeDrops.WithLabelValues(id.ID).Inc()
	}

	return &Node{
		conf:      conf,
		logger:    logger,
		id:        id,
		spores:    spores,
		dir:       dir,
		trainer:   trainer,
		engine:    aggregate.NewEngine(conf.LocalWeight, logger),
		evaluator: evaluator,
		mutator: &Mutator{
			Probability: conf.MutationProbability,
			Min:         conf.MutationMin,
			Max:         conf.MutationMax,
			Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		},
		link:      id.Link,
		threshold: conf.FeedbackThreshold,
	}
}

// Init registers the node, creates its own learning group, stores the
// initial snapshot and advertises the group. The node is not considered
// joined until it accepts an offer, which may be its own.
func (n *Node) Init(ctx context.Context) error {
	n.start = time.Now()

	if err := n.dir.RegisterNode(ctx, directory.NodeInfo{
		ID:   n.id.ID,
		Name: n.id.Name,
		Link: n.id.Link,
	}); err != nil {
		return err
	}

	groupID := NewGroupID()
	if err := n.dir.RecordGroupMembership(ctx, groupID, n.id.ModelName); err != nil {
		return err
	}

	snap := n.trainer.Snapshot().WithName(n.id.ModelName)
	if err := n.dir.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	n.live.Store(snap)

	n.mu.Lock()
	n.groupID = groupID
	n.mu.Unlock()

	metrics.FeedbackThreshold.WithLabelValues(n.id.ID).Set(n.conf.FeedbackThreshold)

	if err := n.spores.Post(ctx, spore.NewJoinGroup(n.id.Link, groupID, n.id.Actor())); err != nil {
		n.logger.WithError(err).Warn("Posting initial JOIN_GROUP")
	}

	n.setState(Searching)

	n.logger.WithFields(logrus.Fields{
		"group_id": groupID,
		"model":    n.id.ModelName,
	}).Debug("Init")

	return nil
}

// Run is the supervisory loop. Every epoch that fails, or panics, is logged
// and followed by a sleep and a new epoch from SEARCHING. Run only returns
// when ctx is done.
func (n *Node) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := n.safeEpoch(ctx)

		n.mu.Lock()
		n.lastErr = err
		n.mu.Unlock()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.logger.WithError(err).WithFields(logrus.Fields{
				"epoch":    n.Epoch(),
				"state":    n.getState().String(),
				"group_id": n.GroupID(),
			}).Error("Epoch failed")
			metrics.Epochs.WithLabelValues(n.id.ID, "failed").Inc()
			n.transition(Sleeping)
		}

		// Sleeping
		if err := n.Step(ctx); err != nil {
			return err
		}
	}
}

// Serve implements suture.Service.
func (n *Node) Serve(ctx context.Context) error {
	return n.Run(ctx)
}

func (n *Node) safeEpoch(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			n.logger.WithField("stack", string(debug.Stack())).Debug("Recovered")
		}
	}()
	return n.RunEpoch(ctx)
}

// RunEpoch steps the node until it reaches SLEEPING. It does not sleep.
func (n *Node) RunEpoch(ctx context.Context) error {
	n.mu.Lock()
	n.epoch++
	n.mu.Unlock()

	n.logger.WithField("epoch", n.Epoch()).Info("Starting epoch")

	for n.getState() != Sleeping {
		if err := n.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Step runs the handler of the current state and moves to the next one. An
// error leaves the state unchanged.
func (n *Node) Step(ctx context.Context) error {
	state := n.getState()

	n.logger.WithField("state", state.String()).Debug("Step")

	var next State
	var err error

	switch state {
	case Searching:
		next, err = n.search(ctx)
	case Training:
		next, err = n.train(ctx)
	case Aggregating:
		next, err = n.aggregate(ctx)
	case EvaluatingFeedback:
		next, err = n.evaluate(ctx)
	case Evolving:
		next, err = n.evolve(ctx)
	case Sleeping:
		next, err = n.sleep(ctx)
	default:
		return fmt.Errorf("unknown state %d", state)
	}

	if err != nil {
		return err
	}
	n.transition(next)
	return nil
}

func (n *Node) transition(next State) {
	prev := n.getState()
	if prev != next {
		metrics.StateTransitions.WithLabelValues(n.id.ID, prev.String(), next.String()).Inc()
	}
	n.setState(next)
}

func (n *Node) search(ctx context.Context) (State, error) {
	n.mu.RLock()
	groupID, link, joined, switching := n.groupID, n.link, n.joined, n.switching
	n.mu.RUnlock()

	if joined && !switching {
		if err := n.spores.Post(ctx, spore.NewJoinGroup(link, groupID, n.id.Actor())); err != nil {
			metrics.TransportErrors.WithLabelValues(n.id.ID, "publish").Inc()
			n.logger.WithError(err).Warn("Re-advertising group")
		}
		n.spores.Announce(ctx, fmt.Sprintf("Invited node to join group: %s", link))
		return Training, nil
	}

	n.spores.Announce(ctx, "Searching for a new learning group ...")

	if err := n.spores.Post(ctx, spore.NewJoinGroup(n.id.Link, groupID, n.id.Actor())); err != nil {
		metrics.TransportErrors.WithLabelValues(n.id.ID, "publish").Inc()
		n.logger.WithError(err).Warn("Advertising group")
	}

	actions, err := n.spores.Fetch(ctx)
	if err != nil {
		metrics.TransportErrors.WithLabelValues(n.id.ID, "fetch").Inc()
		n.logger.WithError(err).Warn("Fetching spore actions")
		actions = nil
	}

	offers := spore.FilterByType(actions, spore.JoinGroup)
	if len(offers) == 0 {
		return n.groupless(ctx, "No learning group found. Going to sleep.")
	}

	offer, err := offers[0].JoinOffer()
	if err != nil {
		return n.groupless(ctx, "Unusable JOIN_GROUP offer. Going to sleep.")
	}

	if offer.GroupID != groupID {
		if err := n.dir.MoveMembership(ctx, n.id.ModelName, groupID, offer.GroupID); err != nil {
			op := "move"
			if common.IsStore(err, common.PartialMove) {
				op = "partial_move"
			}
			metrics.DirectoryErrors.WithLabelValues(n.id.ID, op).Inc()
			n.logger.WithError(err).WithFields(logrus.Fields{
				"group_id": groupID,
				"to_group": offer.GroupID,
			}).Error("Moving membership")
			n.resyncGroup(ctx)
			return n.groupless(ctx, "Could not join the learning group. Going to sleep.")
		}
		metrics.GroupSwitches.WithLabelValues(n.id.ID).Inc()
	}

	n.mu.Lock()
	n.groupID = offer.GroupID
	n.link = offer.Link
	n.joined = true
	n.switching = false
	n.mu.Unlock()

	n.logger.WithFields(logrus.Fields{
		"from":     offer.Actor,
		"group_id": offer.GroupID,
		"link":     offer.Link,
	}).Info("Joined learning group")
	n.spores.Announce(ctx, fmt.Sprintf("Joined new group: %s", offer.Link))

	return Training, nil
}

func (n *Node) groupless(ctx context.Context, status string) (State, error) {
	n.mu.Lock()
	n.joined = false
	n.mu.Unlock()

	n.logger.Info(status)
	n.spores.Announce(ctx, status)
	metrics.Epochs.WithLabelValues(n.id.ID, "groupless").Inc()

	return Sleeping, nil
}

// resyncGroup reloads the node's group from the directory after a failed
// move, so the next attempt starts from what the directory holds.
func (n *Node) resyncGroup(ctx context.Context) {
	g, err := n.dir.GroupOf(ctx, n.id.ModelName)
	if err != nil {
		return
	}
	n.mu.Lock()
	n.groupID = g
	n.mu.Unlock()
}

func (n *Node) train(ctx context.Context) (State, error) {
	n.spores.Announce(ctx, "Started new training epoch.")

	if err := n.runTrainer(ctx); err != nil {
		terr := &TrainingError{Epoch: n.Epoch(), Err: err}
		metrics.TrainingFailures.WithLabelValues(n.id.ID).Inc()
		n.logger.WithError(terr).Error("Training")
		return Aggregating, nil
	}

	snap := n.trainer.Snapshot().WithName(n.id.ModelName)
	if err := n.dir.SaveSnapshot(ctx, snap); err != nil {
		metrics.DirectoryErrors.WithLabelValues(n.id.ID, "save").Inc()
		n.logger.WithError(err).Error("Saving snapshot")
		return Aggregating, nil
	}

	n.spores.Announce(ctx, "Model updated.")
	return Aggregating, nil
}

// runTrainer trains, restoring the previous snapshot if training fails or
// panics.
func (n *Node) runTrainer(ctx context.Context) (err error) {
	prev := n.trainer.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trainer panic: %v", r)
		}
		if err != nil && prev != nil {
			n.trainer.SetSnapshot(prev)
		}
	}()
	return n.trainer.Train(ctx)
}

// aggregate merges the local model with the saved snapshots of the other
// members of the group. The node's own saved snapshot is not counted as a
// peer, so the local model weighs exactly LocalWeight and the peers share the
// rest.
func (n *Node) aggregate(ctx context.Context) (State, error) {
	groupID := n.GroupID()

	names, err := n.dir.ListMembers(ctx, groupID)
	if err != nil {
		metrics.DirectoryErrors.WithLabelValues(n.id.ID, "list").Inc()
		return Aggregating, fmt.Errorf("listing members of %s: %w", groupID, err)
	}

	peerNames := make([]string, 0, len(names))
	for _, name := range names {
		if name != n.id.ModelName {
			peerNames = append(peerNames, name)
		}
	}

	peers, err := n.dir.FetchSnapshotsByName(ctx, peerNames)
	if err != nil {
		metrics.DirectoryErrors.WithLabelValues(n.id.ID, "fetch").Inc()
		return Aggregating, fmt.Errorf("fetching snapshots of %s: %w", groupID, err)
	}

	local := n.trainer.Snapshot().WithName(n.id.ModelName)

	res, err := n.engine.Aggregate(local, peers)
	if err != nil {
		return Aggregating, err
	}

	n.trainer.SetSnapshot(res.Snapshot)
	n.live.Store(res.Snapshot)

	metrics.AggregationPeers.WithLabelValues(n.id.ID).Set(float64(len(peers)))
	metrics.AggregationSkips.WithLabelValues(n.id.ID).Add(float64(len(res.Skips)))

	n.logger.WithFields(logrus.Fields{
		"group_id": groupID,
		"peers":    len(peers),
		"skips":    len(res.Skips),
	}).Info("Deployed aggregated model")
	n.spores.Announce(ctx, "Deployed aggregated model.")

	return EvaluatingFeedback, nil
}

func (n *Node) evaluate(ctx context.Context) (State, error) {
	f := n.evaluator.Evaluate()

	n.mu.Lock()
	n.feedback = f
	n.mu.Unlock()

	metrics.Feedback.WithLabelValues(n.id.ID).Set(f)
	n.logger.WithField("feedback", f).Info("Received feedback")

	return Evolving, nil
}

func (n *Node) evolve(ctx context.Context) (State, error) {
	n.mu.Lock()
	switching := DecideSwitch(n.feedback, n.threshold)
	n.switching = switching
	old := n.threshold
	newThreshold, mutated := n.mutator.Evolve(old)
	n.threshold = newThreshold
	n.mu.Unlock()

	if switching {
		n.spores.Announce(ctx, "Decided to switch the learning group.")
	} else {
		n.spores.Announce(ctx, "Decided against switching groups.")
	}

	if mutated {
		metrics.FeedbackThreshold.WithLabelValues(n.id.ID).Set(newThreshold)
		n.logger.WithFields(logrus.Fields{
			"old": old,
			"new": newThreshold,
		}).Info("Feedback threshold mutated")
		n.spores.Announce(ctx, "Mutated.")
	}

	metrics.Epochs.WithLabelValues(n.id.ID, "trained").Inc()

	return Sleeping, nil
}

func (n *Node) sleep(ctx context.Context) (State, error) {
	n.logger.WithField("duration", n.conf.Sleep).Info("Sleeping")
	n.spores.Announce(ctx, fmt.Sprintf("Sleeping for %s.", n.conf.Sleep))

	t := time.NewTimer(n.conf.Sleep)
	defer t.Stop()

	select {
	case <-t.C:
		return Searching, nil
	case <-ctx.Done():
		return Sleeping, ctx.Err()
	}
}

// LiveSnapshot returns the model currently deployed by the node.
func (n *Node) LiveSnapshot() *model.Snapshot {
	return n.live.Load()
}

// GetState ...
func (n *Node) GetState() State {
	return n.getState()
}

// Identity ...
func (n *Node) Identity() Identity {
	return n.id
}

// GroupID returns the group the node belongs to in the directory, or the
// group it advertises while groupless.
func (n *Node) GroupID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.groupID
}

// Joined is false while the node is groupless.
func (n *Node) Joined() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.joined
}

// Switching reports the decision of the last EVOLVING step.
func (n *Node) Switching() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.switching
}

// Threshold ...
func (n *Node) Threshold() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.threshold
}

// Feedback returns the last evaluated feedback.
func (n *Node) Feedback() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.feedback
}

// Epoch ...
func (n *Node) Epoch() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.epoch
}

// LastError returns the error of the last epoch, nil if it succeeded.
func (n *Node) LastError() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastErr
}

// Members lists the models of the node's current group.
func (n *Node) Members(ctx context.Context) ([]string, error) {
	return n.dir.ListMembers(ctx, n.GroupID())
}

// Nodes lists the registered nodes of the swarm.
func (n *Node) Nodes(ctx context.Context) ([]directory.NodeInfo, error) {
	return n.dir.Nodes(ctx)
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	lastErr := ""
	if n.lastErr != nil && !errors.Is(n.lastErr, context.Canceled) {
		lastErr = n.lastErr.Error()
	}

	params := 0
	if live := n.live.Load(); live != nil {
		params = len(live.Keys())
	}

	return map[string]string{
		"id":         n.id.ID,
		"moniker":    n.id.Name,
		"model":      n.id.ModelName,
		"state":      n.getState().String(),
		"group_id":   n.groupID,
		"link":       n.link,
		"joined":     strconv.FormatBool(n.joined),
		"switching":  strconv.FormatBool(n.switching),
		"epoch":      strconv.Itoa(n.epoch),
		"feedback":   strconv.FormatFloat(n.feedback, 'f', 4, 64),
		"threshold":  strconv.FormatFloat(n.threshold, 'f', 4, 64),
		"params":     strconv.Itoa(params),
		"sleep":      n.conf.Sleep.String(),
		"uptime":     time.Since(n.start).Truncate(time.Second).String(),
		"last_error": lastErr,
	}
}
