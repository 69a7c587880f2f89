package sporenet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/common"
	"github.com/sporenet/sporenet/src/config"
	"github.com/sporenet/sporenet/src/directory"
	"github.com/sporenet/sporenet/src/dummy"
	"github.com/sporenet/sporenet/src/net"
	"github.com/sporenet/sporenet/src/node"
	"github.com/sporenet/sporenet/src/proxy/socket"
)

func testConfig(t *testing.T, id string) *config.Config {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.SetDataDir(t.TempDir())
	conf.NodeID = id
	conf.Moniker = "node" + id
	conf.Link = fmt.Sprintf("http://127.0.0.1:%d", 8000+len(id))
	conf.Fallback = "fixed"
	conf.FallbackValue = 1
	conf.MutationProbability = 0
	return conf
}

func TestInitCreatesKey(t *testing.T) {
	conf := testConfig(t, "")

	engine := NewEngine(conf)
	if err := engine.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer engine.Close()

	if _, err := os.Stat(filepath.Join(conf.DataDir, config.DefaultKeyfile)); err != nil {
		t.Fatalf("key file not written: %v", err)
	}

	if conf.Key == nil {
		t.Fatal("Config.Key should be set")
	}

	id := engine.Node.Identity()
	if id.ID == "" {
		t.Fatal("node id should be derived from the key")
	}
	if id.ModelName != "model-"+id.ID {
		t.Fatalf("ModelName should be model-%s, not %s", id.ID, id.ModelName)
	}

	if s := engine.Node.GetState(); s != node.Searching {
		t.Fatalf("state should be SEARCHING, not %s", s)
	}

	if engine.Service != nil {
		t.Fatal("no service should be created when NoService is set")
	}
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	conf := testConfig(t, "1")
	conf.LocalWeight = 0

	engine := NewEngine(conf)
	if err := engine.Init(context.Background()); err == nil {
		t.Fatal("Init should fail with a zero local weight")
	}
}

func TestInitCorrectnessEvaluator(t *testing.T) {
	conf := testConfig(t, "1")
	conf.Evaluator = "correctness"

	engine := NewEngine(conf)
	if err := engine.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer engine.Close()

	if engine.evaluator == nil {
		t.Fatal("evaluator should be set")
	}
}

func TestInitBadgerDirectory(t *testing.T) {
	conf := testConfig(t, "1")
	conf.Directory = "badger"

	engine := NewEngine(conf)
	if err := engine.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer engine.Close()

	members, err := engine.Node.Members(context.Background())
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 || members[0] != "model-1" {
		t.Fatalf("members should be [model-1], not %v", members)
	}
}

func TestSharedBoardEnginesJoinSameGroup(t *testing.T) {
	board := net.NewInmemBoard(0)
	dir := directory.NewInmemDirectory()

	ctx := context.Background()

	var engines []*Engine
	for i := 1; i <= 3; i++ {
		engine := NewEngine(testConfig(t, fmt.Sprint(i)))
		engine.Transport = board.NewTransport()
		engine.Directory = dir
		if err := engine.Init(ctx); err != nil {
			t.Fatalf("Init engine %d: %v", i, err)
		}
		engines = append(engines, engine)
	}

	for _, e := range engines {
		if err := e.Node.RunEpoch(ctx); err != nil {
			t.Fatalf("RunEpoch %s: %v", e.Node.Identity().ID, err)
		}
	}

	group := engines[0].Node.GroupID()
	for _, e := range engines {
		if !e.Node.Joined() {
			t.Fatalf("node %s should have joined", e.Node.Identity().ID)
		}
		if e.Node.GroupID() != group {
			t.Fatalf("node %s is in group %s, expected %s", e.Node.Identity().ID, e.Node.GroupID(), group)
		}
	}

	members, err := dir.ListMembers(ctx, group)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("group should have 3 members, not %v", members)
	}

	nodes, err := dir.Nodes(ctx)
	if err != nil {
		t.Fatalf("Nodes: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("registry should hold 3 nodes, not %d", len(nodes))
	}
}

func TestRunStopsWithContext(t *testing.T) {
	engine := NewEngine(testConfig(t, "1"))
	if err := engine.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := engine.Run(ctx); err != nil {
		t.Fatalf("Run should return nil once the context is done, got %v", err)
	}

	if engine.Node.Epoch() < 1 {
		t.Fatal("at least one epoch should have run")
	}
}

func TestInitRemoteTrainer(t *testing.T) {
	logger := common.NewTestEntry(t, logrus.DebugLevel)

	trainer := dummy.NewTrainer(dummy.SyntheticRatings(10, 8, 60, 1), 4, 1, logger)

	server, err := socket.NewSocketTrainerServer("127.0.0.1:0", trainer, logger)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Serve(ctx)

	conf := testConfig(t, "1")
	conf.TrainerConnect = server.Addr()

	engine := NewEngine(conf)
	if err := engine.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer engine.Close()

	if err := engine.Node.RunEpoch(ctx); err != nil {
		t.Fatalf("RunEpoch: %v", err)
	}

	if !engine.Node.LiveSnapshot().Compatible(trainer.Snapshot()) {
		t.Fatal("live snapshot should have the remote trainer's shapes")
	}
}
