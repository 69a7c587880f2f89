package directory

import (
	"context"
	"sort"
	"sync"

	cm "github.com/sporenet/sporenet/src/common"
	"github.com/sporenet/sporenet/src/model"
)

// InmemDirectory keeps everything in memory. Nodes of one process can share
// it.
type InmemDirectory struct {
	sync.RWMutex
	groupOf   map[string]string
	members   map[string]map[string]struct{}
	snapshots map[string]*model.Snapshot
	nodes     map[string]NodeInfo
	closed    bool
}

// NewInmemDirectory ...
func NewInmemDirectory() *InmemDirectory {
	return &InmemDirectory{
		groupOf:   make(map[string]string),
		members:   make(map[string]map[string]struct{}),
		snapshots: make(map[string]*model.Snapshot),
		nodes:     make(map[string]NodeInfo),
	}
}

func (d *InmemDirectory) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.closed {
		return cm.NewStoreErr("Directory", cm.Closed, "")
	}
	return nil
}

// RecordGroupMembership implements Directory.
func (d *InmemDirectory) RecordGroupMembership(ctx context.Context, groupID, modelName string) error {
	d.Lock()
	defer d.Unlock()
	if err := d.check(ctx); err != nil {
		return err
	}
	if groupID == "" || modelName == "" {
		return cm.NewStoreErr("Membership", cm.Empty, modelName)
	}
	d.put(modelName, groupID)
	return nil
}

// MoveMembership implements Directory.
func (d *InmemDirectory) MoveMembership(ctx context.Context, modelName, fromGroup, toGroup string) error {
	d.Lock()
	defer d.Unlock()
	if err := d.check(ctx); err != nil {
		return err
	}
	current, found := d.groupOf[modelName]
	if err := checkMove(modelName, fromGroup, toGroup, current, found); err != nil {
		return err
	}
	d.put(modelName, toGroup)
	return nil
}

func (d *InmemDirectory) put(modelName, groupID string) {
	if old, ok := d.groupOf[modelName]; ok {
		delete(d.members[old], modelName)
		if len(d.members[old]) == 0 {
			delete(d.members, old)
		}
	}
	if _, ok := d.members[groupID]; !ok {
		d.members[groupID] = make(map[string]struct{})
	}
	d.members[groupID][modelName] = struct{}{}
	d.groupOf[modelName] = groupID
}

// ListMembers implements Directory.
func (d *InmemDirectory) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	d.RLock()
	defer d.RUnlock()
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	res := []string{}
	for m := range d.members[groupID] {
		res = append(res, m)
	}
	sort.Strings(res)
	return res, nil
}

// FetchSnapshotsByName implements Directory.
func (d *InmemDirectory) FetchSnapshotsByName(ctx context.Context, names []string) ([]*model.Snapshot, error) {
	d.RLock()
	defer d.RUnlock()
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	res := []*model.Snapshot{}
	for _, n := range names {
		if s, ok := d.snapshots[n]; ok {
			res = append(res, s)
		}
	}
	return res, nil
}

// SaveSnapshot implements Directory. Snapshots are immutable so the pointer
// is kept as is.
func (d *InmemDirectory) SaveSnapshot(ctx context.Context, s *model.Snapshot) error {
	d.Lock()
	defer d.Unlock()
	if err := d.check(ctx); err != nil {
		return err
	}
	if s == nil || s.Name() == "" {
		return cm.NewStoreErr("Snapshot", cm.Empty, "name")
	}
	d.snapshots[s.Name()] = s
	return nil
}

// GroupOf implements Directory.
func (d *InmemDirectory) GroupOf(ctx context.Context, modelName string) (string, error) {
	d.RLock()
	defer d.RUnlock()
	if err := d.check(ctx); err != nil {
		return "", err
	}
	g, ok := d.groupOf[modelName]
	if !ok {
		return "", cm.NewStoreErr("Membership", cm.KeyNotFound, modelName)
	}
	return g, nil
}

// RegisterNode implements Directory.
func (d *InmemDirectory) RegisterNode(ctx context.Context, info NodeInfo) error {
	d.Lock()
	defer d.Unlock()
	if err := d.check(ctx); err != nil {
		return err
	}
	if info.ID == "" {
		return cm.NewStoreErr("Node", cm.Empty, "id")
	}
	d.nodes[info.ID] = info
	return nil
}

// Nodes implements Directory. Nodes are sorted by ID.
func (d *InmemDirectory) Nodes(ctx context.Context) ([]NodeInfo, error) {
	d.RLock()
	defer d.RUnlock()
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	res := make([]NodeInfo, 0, len(d.nodes))
	for _, n := range d.nodes {
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// Close implements Directory.
func (d *InmemDirectory) Close() error {
	d.Lock()
	defer d.Unlock()
	d.closed = true
	return nil
}
