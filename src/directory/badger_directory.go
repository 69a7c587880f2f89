package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger"
	cm "github.com/sporenet/sporenet/src/common"
	"github.com/sporenet/sporenet/src/model"
	"github.com/ugorji/go/codec"
)

const (
	groupPrefix    = "group"
	memberPrefix   = "member"
	snapshotPrefix = "snapshot"
	nodePrefix     = "node"
)

// BadgerDirectory persists the directory in a badger database. Badger holds
// an exclusive lock on its data directory, so it can only be shared by the
// nodes of a single process.
type BadgerDirectory struct {
	db     *badger.DB
	path   string
	closed int32
}

// NewBadgerDirectory opens, or creates, the database under path.
func NewBadgerDirectory(path string) (*BadgerDirectory, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerDirectory{
		db:   handle,
		path: path,
	}, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func groupKey(modelName string) []byte {
	return []byte(groupPrefix + "_" + modelName)
}

// Group ids are free-form, so they are terminated by a NUL byte to keep one
// group's prefix from matching another's.
func memberGroupPrefix(groupID string) []byte {
	return []byte(memberPrefix + "_" + groupID + "\x00")
}

func memberKey(groupID, modelName string) []byte {
	return append(memberGroupPrefix(groupID), []byte(modelName)...)
}

func snapshotKey(modelName string) []byte {
	return []byte(snapshotPrefix + "_" + modelName)
}

func nodeKey(id string) []byte {
	return []byte(nodePrefix + "_" + id)
}

/******************************************************************************/

func (s *BadgerDirectory) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if atomic.LoadInt32(&s.closed) == 1 {
		return cm.NewStoreErr("Directory", cm.Closed, s.path)
	}
	return nil
}

// RecordGroupMembership implements Directory.
func (s *BadgerDirectory) RecordGroupMembership(ctx context.Context, groupID, modelName string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if groupID == "" || modelName == "" {
		return cm.NewStoreErr("Membership", cm.Empty, modelName)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		current, _, err := txnGroupOf(txn, modelName)
		if err != nil {
			return err
		}
		return txnPut(txn, modelName, current, groupID)
	})
}

// MoveMembership implements Directory. The check and both writes share one
// transaction.
func (s *BadgerDirectory) MoveMembership(ctx context.Context, modelName, fromGroup, toGroup string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		current, found, err := txnGroupOf(txn, modelName)
		if err != nil {
			return err
		}
		if err := checkMove(modelName, fromGroup, toGroup, current, found); err != nil {
			return err
		}
		return txnPut(txn, modelName, current, toGroup)
	})
}

func txnGroupOf(txn *badger.Txn, modelName string) (string, bool, error) {
	item, err := txn.Get(groupKey(modelName))
	if err != nil {
		if isDBKeyNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

func txnPut(txn *badger.Txn, modelName, oldGroup, newGroup string) error {
	if oldGroup != "" {
		if err := txn.Delete(memberKey(oldGroup, modelName)); err != nil {
			return err
		}
	}
	if err := txn.Set(memberKey(newGroup, modelName), []byte{}); err != nil {
		return err
	}
	return txn.Set(groupKey(modelName), []byte(newGroup))
}

// ListMembers implements Directory. Badger iterates in key order, so members
// come out sorted.
func (s *BadgerDirectory) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	res := []string{}
	prefix := memberGroupPrefix(groupID)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			res = append(res, string(k[len(prefix):]))
		}
		return nil
	})
	return res, err
}

// FetchSnapshotsByName implements Directory.
func (s *BadgerDirectory) FetchSnapshotsByName(ctx context.Context, names []string) ([]*model.Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	res := []*model.Snapshot{}
	err := s.db.View(func(txn *badger.Txn) error {
		for _, n := range names {
			item, err := txn.Get(snapshotKey(n))
			if err != nil {
				if isDBKeyNotFound(err) {
					continue
				}
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			snap, err := model.Unmarshal(v)
			if err != nil {
				return fmt.Errorf("decode snapshot %s: %w", n, err)
			}
			res = append(res, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SaveSnapshot implements Directory.
func (s *BadgerDirectory) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if snap == nil || snap.Name() == "" {
		return cm.NewStoreErr("Snapshot", cm.Empty, "name")
	}
	val, err := snap.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.Name()), val)
	})
}

// GroupOf implements Directory.
func (s *BadgerDirectory) GroupOf(ctx context.Context, modelName string) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	var group string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(groupKey(modelName))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		group = string(v)
		return err
	})
	return group, mapError(err, "Membership", modelName)
}

// RegisterNode implements Directory.
func (s *BadgerDirectory) RegisterNode(ctx context.Context, info NodeInfo) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if info.ID == "" {
		return cm.NewStoreErr("Node", cm.Empty, "id")
	}
	val, err := encodeNode(info)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey(info.ID), val)
	})
}

// Nodes implements Directory.
func (s *BadgerDirectory) Nodes(ctx context.Context) ([]NodeInfo, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	res := []NodeInfo{}
	prefix := []byte(nodePrefix + "_")
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			info, err := decodeNode(v)
			if err != nil {
				return err
			}
			res = append(res, info)
		}
		return nil
	})
	return res, err
}

// Close implements Directory.
func (s *BadgerDirectory) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	return s.db.Close()
}

func encodeNode(info NodeInfo) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	if err := codec.NewEncoder(b, jh).Encode(info); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decodeNode(data []byte) (NodeInfo, error) {
	var info NodeInfo
	jh := new(codec.JsonHandle)
	err := codec.NewDecoder(bytes.NewBuffer(data), jh).Decode(&info)
	return info, err
}

func isDBKeyNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
