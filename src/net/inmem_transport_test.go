package net

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestInmemPublishFetch(t *testing.T) {
	board := NewInmemBoard(5)
	a := board.NewTransport()
	b := board.NewTransport()

	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if err := a.Publish(ctx, "spores", fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	all, err := b.Fetch(ctx, "spores", 0)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	expected := []string{"m3", "m4", "m5", "m6", "m7"}
	if fmt.Sprint(all) != fmt.Sprint(expected) {
		t.Fatalf("Fetch should return %v, not %v", expected, all)
	}

	last, _ := b.Fetch(ctx, "spores", 2)
	if fmt.Sprint(last) != fmt.Sprint([]string{"m6", "m7"}) {
		t.Fatalf("Fetch with limit should return the newest items oldest first, got %v", last)
	}

	other, _ := b.Fetch(ctx, "status", 10)
	if len(other) != 0 {
		t.Fatalf("topics should be isolated")
	}
}

func TestInmemClosed(t *testing.T) {
	board := NewInmemBoard(0)
	a := board.NewTransport()
	b := board.NewTransport()

	a.Close()

	err := a.Publish(context.Background(), "spores", "x")
	var terr *TransportError
	if !errors.As(err, &terr) || !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("publishing on a closed transport should fail with a TransportError, got %v", err)
	}

	if err := b.Publish(context.Background(), "spores", "y"); err != nil {
		t.Fatalf("closing one transport should not affect the board: %v", err)
	}
}

func TestInmemCancelledContext(t *testing.T) {
	tr := NewInmemTransport()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tr.Fetch(ctx, "spores", 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
