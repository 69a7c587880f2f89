package net

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/common"
)

func runNATSServer(t *testing.T) *server.Server {
	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		t.Fatalf("NATS server not ready")
	}

	return ns
}

func TestNATSTransport(t *testing.T) {
	ns := runNATSServer(t)
	defer ns.Shutdown()

	logger := common.NewTestEntry(t, logrus.DebugLevel)

	a, err := NewNATSTransport(ns.ClientURL(), []string{"spores"}, 10, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer a.Close()

	b, err := NewNATSTransport(ns.ClientURL(), []string{"spores"}, 10, logger)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer b.Close()

	ctx := context.Background()

	for _, m := range []string{"one", "two", "three"} {
		if err := a.Publish(ctx, "spores", m); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	var got []string
	for time.Now().Before(deadline) {
		got, err = b.Fetch(ctx, "spores", 2)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if len(got) == 2 && got[1] == "three" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if len(got) != 2 || got[0] != "two" || got[1] != "three" {
		t.Fatalf("expected [two three], got %v", got)
	}

	a.Close()
	if err := a.Publish(ctx, "spores", "late"); err == nil {
		t.Fatalf("publishing on a closed transport should fail")
	}
}
