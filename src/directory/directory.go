// Package directory records which learning group every model belongs to and
// keeps the latest snapshot of each model.
//
// A model belongs to at most one group. MoveMembership is applied as a
// whole or not at all; callers that get an error back treat the node as
// groupless until the next epoch.
package directory

import (
	"context"
	"fmt"

	cm "github.com/sporenet/sporenet/src/common"
	"github.com/sporenet/sporenet/src/model"
)

// NodeInfo describes a node of the swarm.
type NodeInfo struct {
	ID   string `codec:"id" json:"id"`
	Name string `codec:"name" json:"name"`
	Link string `codec:"link" json:"link"`
}

// Directory is the group directory and snapshot store shared by the nodes
// of a swarm.
type Directory interface {
	// RecordGroupMembership puts modelName in groupID, replacing any previous
	// membership.
	RecordGroupMembership(ctx context.Context, groupID, modelName string) error

	// MoveMembership moves modelName from fromGroup to toGroup. It fails with
	// a PartialMove StoreErr, leaving the directory untouched, if modelName
	// is not currently in fromGroup. An empty fromGroup only requires that
	// the model is in no group.
	MoveMembership(ctx context.Context, modelName, fromGroup, toGroup string) error

	// ListMembers returns the models of groupID in sorted order.
	ListMembers(ctx context.Context, groupID string) ([]string, error)

	// FetchSnapshotsByName returns the stored snapshots of names, in the
	// order of names. Unknown names are skipped.
	FetchSnapshotsByName(ctx context.Context, names []string) ([]*model.Snapshot, error)

	// SaveSnapshot stores s under s.Name(), replacing any previous version.
	SaveSnapshot(ctx context.Context, s *model.Snapshot) error

	// GroupOf returns the group of modelName or a KeyNotFound StoreErr.
	GroupOf(ctx context.Context, modelName string) (string, error)

	RegisterNode(ctx context.Context, info NodeInfo) error
	Nodes(ctx context.Context) ([]NodeInfo, error)

	Close() error
}

// New creates a Directory of the given kind. path is the badger data
// directory or the sqlite database file.
func New(kind, path string) (Directory, error) {
	switch kind {
	case "", "memory", "inmem":
		return NewInmemDirectory(), nil
	case "badger":
		return NewBadgerDirectory(path)
	case "sqlite":
		return NewSQLiteDirectory(context.Background(), path)
	default:
		return nil, fmt.Errorf("unsupported directory backend: %s", kind)
	}
}

func checkMove(modelName, fromGroup, toGroup, current string, found bool) error {
	if modelName == "" {
		return cm.NewStoreErr("Membership", cm.Empty, "model")
	}
	if toGroup == "" {
		return cm.NewStoreErr("Membership", cm.Empty, "group")
	}
	if fromGroup == "" {
		if found {
			return cm.WrapStoreErr("Membership", cm.PartialMove, modelName,
				fmt.Errorf("model already in group %s", current))
		}
		return nil
	}
	if !found || current != fromGroup {
		return cm.WrapStoreErr("Membership", cm.PartialMove, modelName,
			fmt.Errorf("model is not in group %s", fromGroup))
	}
	return nil
}
