// Package aggregate merges a node's own model snapshot with those of its
// learning group peers.
//
// The merge is a plain weighted average. It does not look at peer losses and
// has no protection against adversarial or corrupted peers beyond the shape
// check: a peer with the right shapes and garbage values is averaged in like
// any other.
package aggregate

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/model"
)

// DefaultLocalWeight is the share of the merged snapshot attributed to the
// local model.
const DefaultLocalWeight = 0.5

// Skip records a peer contribution that was left out for one key because its
// shape did not match the local one, or because its data length disagreed
// with the local data. A missing key has a nil Got shape.
type Skip struct {
	Peer string
	Key  string
	Want []int
	Got  []int
}

func (s Skip) String() string {
	return fmt.Sprintf("peer %s, key %s: want shape %v, got %v", s.Peer, s.Key, s.Want, s.Got)
}

// Result is the outcome of Merge.
type Result struct {
	Snapshot *model.Snapshot
	Skips    []Skip
}

// Merge computes, for every key k of local,
//
//	merged[k] = w*local[k] + sum over peers p of (1-w)*p[k]/len(peers)
//
// A peer whose shape or data length for k differs from the local one is
// skipped for k only.
// The divisor stays len(peers) even when some peers are skipped. With no
// peers, local is returned unchanged. Inputs are never modified.
func Merge(local *model.Snapshot, peers []*model.Snapshot, localWeight float64) (*Result, error) {
	if local == nil {
		return nil, fmt.Errorf("no local snapshot to aggregate")
	}
	if !(localWeight > 0 && localWeight <= 1) {
		return nil, fmt.Errorf("local weight %v outside (0,1]", localWeight)
	}

	if len(peers) == 0 {
		return &Result{Snapshot: local}, nil
	}

	peerShare := (1 - localWeight) / float64(len(peers))

	res := &Result{}
	merged := make(map[string]model.Tensor)

	for _, k := range local.Keys() {
		lt, _ := local.Tensor(k)

		acc := make([]float64, len(lt.Data))
		for i, v := range lt.Data {
			acc[i] = localWeight * v
		}

		for _, p := range peers {
			if p == nil {
				continue
			}
			pt, ok := p.Tensor(k)
			if !ok || !pt.SameShape(lt) || len(pt.Data) != len(lt.Data) {
				res.Skips = append(res.Skips, Skip{
					Peer: p.Name(),
					Key:  k,
					Want: append([]int{}, lt.Shape...),
					Got:  p.ShapeOf(k),
				})
				continue
			}
			for i, v := range pt.Data {
				acc[i] += peerShare * v
			}
		}

		merged[k] = model.Tensor{Shape: lt.Shape, Data: acc}
	}

	res.Snapshot = model.NewSnapshot(local.Name(), merged)

	return res, nil
}

// Engine applies Merge with a fixed local weight and logs skipped
// contributions.
type Engine struct {
	LocalWeight float64
	logger      *logrus.Entry
}

// NewEngine ...
func NewEngine(localWeight float64, logger *logrus.Entry) *Engine {
	return &Engine{
		LocalWeight: localWeight,
		logger:      logger,
	}
}

// Aggregate merges peers into local. Shape mismatches are logged with the
// offending key and shapes, never returned as errors.
func (e *Engine) Aggregate(local *model.Snapshot, peers []*model.Snapshot) (*Result, error) {
	res, err := Merge(local, peers, e.LocalWeight)
	if err != nil {
		return nil, err
	}

	for _, s := range res.Skips {
		e.logger.WithFields(logrus.Fields{
			"peer":       s.Peer,
			"key":        s.Key,
			"want_shape": s.Want,
			"got_shape":  s.Got,
		}).Warn("Shape mismatch, skipping peer contribution")
	}

	e.logger.WithFields(logrus.Fields{
		"model": local.Name(),
		"peers": len(peers),
		"skips": len(res.Skips),
	}).Debug("Aggregated")

	return res, nil
}
