package socket

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/common"
	"github.com/sporenet/sporenet/src/dummy"
	"github.com/sporenet/sporenet/src/model"
)

func newTestPair(t *testing.T) (*dummy.Trainer, *SocketTrainerProxy) {
	logger := common.NewTestEntry(t, logrus.DebugLevel)

	trainer := dummy.NewTrainer(dummy.SyntheticRatings(10, 8, 60, 1), 4, 1, logger)

	server, err := NewSocketTrainerServer("127.0.0.1:0", trainer, logger)
	if err != nil {
		t.Fatalf("Cannot create SocketTrainerServer: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go server.Serve(ctx)
	t.Cleanup(cancel)

	proxy, err := NewSocketTrainerProxy(server.Addr(), time.Second, logger)
	if err != nil {
		t.Fatalf("Cannot create SocketTrainerProxy: %s", err)
	}
	t.Cleanup(func() { proxy.Close() })

	return trainer, proxy
}

func TestSocketProxySnapshot(t *testing.T) {
	trainer, proxy := newTestPair(t)

	if !proxy.Snapshot().Equal(trainer.Snapshot()) {
		t.Fatal("proxy snapshot should match the trainer's")
	}
}

func TestSocketProxyTrain(t *testing.T) {
	trainer, proxy := newTestPair(t)

	before := trainer.Snapshot()

	if err := proxy.Train(context.Background()); err != nil {
		t.Fatalf("Train: %v", err)
	}

	after := proxy.Snapshot()
	if after.Equal(before) {
		t.Fatal("training should change the snapshot")
	}
	if !after.Equal(trainer.Snapshot()) {
		t.Fatal("proxy snapshot should follow the trainer")
	}
}

func TestSocketProxySetSnapshot(t *testing.T) {
	trainer, proxy := newTestPair(t)

	params := trainer.Snapshot().Params()
	for k, v := range params {
		for i := range v.Data {
			v.Data[i] = 0.25
		}
		params[k] = v
	}
	zeroed := model.NewSnapshot("merged", params)

	proxy.SetSnapshot(zeroed)

	if !trainer.Snapshot().Equal(zeroed) {
		t.Fatal("trainer should hold the snapshot set through the proxy")
	}
}

func TestSocketProxyKeepsLastSnapshot(t *testing.T) {
	logger := common.NewTestEntry(t, logrus.DebugLevel)

	trainer := dummy.NewTrainer(dummy.SyntheticRatings(10, 8, 60, 1), 4, 1, logger)

	server, err := NewSocketTrainerServer("127.0.0.1:0", trainer, logger)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go server.Serve(ctx)

	proxy, err := NewSocketTrainerProxy(server.Addr(), 200*time.Millisecond, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer proxy.Close()

	first := proxy.Snapshot()

	cancel()
	server.Close()
	proxy.Close()

	if got := proxy.Snapshot(); got != first {
		t.Fatal("Snapshot should return the last snapshot when the trainer is gone")
	}

	if err := proxy.Train(context.Background()); err == nil {
		t.Fatal("Train should fail when the trainer is gone")
	}
}

func TestNoServer(t *testing.T) {
	_, err := NewSocketTrainerProxy("127.0.0.1:1", 100*time.Millisecond, common.NewTestEntry(t, logrus.DebugLevel))
	if err == nil {
		t.Fatal("connecting to a closed port should fail")
	}
}
