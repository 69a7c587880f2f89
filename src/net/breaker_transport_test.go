package net

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/sporenet/sporenet/src/common"
)

type flakyTransport struct {
	*InmemTransport
	fail  bool
	calls int
}

func (f *flakyTransport) Fetch(ctx context.Context, topic string, limit int) ([]string, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("backend down")
	}
	return f.InmemTransport.Fetch(ctx, topic, limit)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	inner := &flakyTransport{InmemTransport: NewInmemTransport(), fail: true}
	b := NewBreakerTransport(inner, 2, time.Hour, common.NewTestEntry(t, logrus.DebugLevel))

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.Fetch(ctx, "spores", 1)
		var terr *TransportError
		if !errors.As(err, &terr) {
			t.Fatalf("expected TransportError, got %v", err)
		}
	}

	if b.State() != gobreaker.StateOpen.String() {
		t.Fatalf("breaker should be open, is %s", b.State())
	}

	_, err := b.Fetch(ctx, "spores", 1)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("open breaker should fail fast, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("open breaker should not reach the inner transport (%d calls)", inner.calls)
	}
}

func TestBreakerPassesThrough(t *testing.T) {
	inner := &flakyTransport{InmemTransport: NewInmemTransport()}
	b := NewBreakerTransport(inner, 3, time.Second, common.NewTestEntry(t, logrus.DebugLevel))

	ctx := context.Background()
	if err := b.Publish(ctx, "spores", "hello"); err != nil {
		t.Fatalf("err: %v", err)
	}
	out, err := b.Fetch(ctx, "spores", 0)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(out) != 1 || out[0] != "hello" {
		t.Fatalf("unexpected fetch result %v", out)
	}
}
