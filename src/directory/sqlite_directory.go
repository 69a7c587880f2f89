package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	cm "github.com/sporenet/sporenet/src/common"
	"github.com/sporenet/sporenet/src/model"

	_ "modernc.org/sqlite"
)

// SQLiteDirectory persists the directory in a sqlite database file. Several
// processes on one host can open the same file.
type SQLiteDirectory struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteDirectory opens path and creates the tables if needed.
func NewSQLiteDirectory(ctx context.Context, path string) (*SQLiteDirectory, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteDirectory{
		path: path,
		db:   db,
	}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memberships (
			model TEXT PRIMARY KEY,
			group_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS memberships_group ON memberships (group_id)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			name TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			link TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

func (s *SQLiteDirectory) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, cm.NewStoreErr("Directory", cm.Closed, s.path)
	}
	return s.db, nil
}

const upsertMembership = `
	INSERT INTO memberships (model, group_id) VALUES (?, ?)
	ON CONFLICT(model) DO UPDATE SET group_id = excluded.group_id`

// RecordGroupMembership implements Directory.
func (s *SQLiteDirectory) RecordGroupMembership(ctx context.Context, groupID, modelName string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if groupID == "" || modelName == "" {
		return cm.NewStoreErr("Membership", cm.Empty, modelName)
	}
	_, err = db.ExecContext(ctx, upsertMembership, modelName, groupID)
	return err
}

// MoveMembership implements Directory inside a single transaction.
func (s *SQLiteDirectory) MoveMembership(ctx context.Context, modelName, fromGroup, toGroup string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	found := true
	err = tx.QueryRowContext(ctx, `SELECT group_id FROM memberships WHERE model = ?`, modelName).Scan(&current)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		found = false
	}

	if err := checkMove(modelName, fromGroup, toGroup, current, found); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, upsertMembership, modelName, toGroup); err != nil {
		return cm.WrapStoreErr("Membership", cm.PartialMove, modelName, err)
	}

	if err := tx.Commit(); err != nil {
		return cm.WrapStoreErr("Membership", cm.PartialMove, modelName, err)
	}
	return nil
}

// ListMembers implements Directory.
func (s *SQLiteDirectory) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT model FROM memberships WHERE group_id = ? ORDER BY model`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// FetchSnapshotsByName implements Directory.
func (s *SQLiteDirectory) FetchSnapshotsByName(ctx context.Context, names []string) ([]*model.Snapshot, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	res := []*model.Snapshot{}
	for _, n := range names {
		var payload []byte
		err := db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE name = ?`, n).Scan(&payload)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		snap, err := model.Unmarshal(payload)
		if err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", n, err)
		}
		res = append(res, snap)
	}
	return res, nil
}

// SaveSnapshot implements Directory.
func (s *SQLiteDirectory) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if snap == nil || snap.Name() == "" {
		return cm.NewStoreErr("Snapshot", cm.Empty, "name")
	}

	payload, err := snap.Marshal()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO snapshots (name, payload) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload
	`, snap.Name(), payload)
	return err
}

// GroupOf implements Directory.
func (s *SQLiteDirectory) GroupOf(ctx context.Context, modelName string) (string, error) {
	db, err := s.getDB()
	if err != nil {
		return "", err
	}

	var group string
	err = db.QueryRowContext(ctx, `SELECT group_id FROM memberships WHERE model = ?`, modelName).Scan(&group)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", cm.NewStoreErr("Membership", cm.KeyNotFound, modelName)
		}
		return "", err
	}
	return group, nil
}

// RegisterNode implements Directory.
func (s *SQLiteDirectory) RegisterNode(ctx context.Context, info NodeInfo) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if info.ID == "" {
		return cm.NewStoreErr("Node", cm.Empty, "id")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO nodes (id, name, link) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, link = excluded.link
	`, info.ID, info.Name, info.Link)
	return err
}

// Nodes implements Directory.
func (s *SQLiteDirectory) Nodes(ctx context.Context) ([]NodeInfo, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, name, link FROM nodes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []NodeInfo{}
	for rows.Next() {
		var info NodeInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.Link); err != nil {
			return nil, err
		}
		res = append(res, info)
	}
	return res, rows.Err()
}

// Close implements Directory.
func (s *SQLiteDirectory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
