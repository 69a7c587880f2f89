package dummy

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/common"
	"github.com/sporenet/sporenet/src/model"
)

func TestTrainReducesError(t *testing.T) {
	ratings := SyntheticRatings(20, 15, 300, 1)
	tr := NewTrainer(ratings, 4, 1, common.NewTestEntry(t, logrus.InfoLevel))

	before := tr.RMSE()
	for i := 0; i < 30; i++ {
		if err := tr.Train(context.Background()); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
	after := tr.RMSE()

	if after >= before {
		t.Fatalf("training should reduce the error: %v -> %v", before, after)
	}

	correct, total := tr.Guesses()
	if total != 300 || correct < 0 || correct > total {
		t.Fatalf("unexpected guesses %d/%d", correct, total)
	}
}

func TestSnapshotShapes(t *testing.T) {
	tr := NewTrainer(SyntheticRatings(5, 3, 20, 2), 2, 2, common.NewTestEntry(t, logrus.InfoLevel))

	s := tr.Snapshot()
	if !model.SameShape(s.ShapeOf(userKey), []int{5, 2}) {
		t.Fatalf("users should be 5x2, got %v", s.ShapeOf(userKey))
	}
	if !model.SameShape(s.ShapeOf(itemKey), []int{3, 2}) {
		t.Fatalf("items should be 3x2, got %v", s.ShapeOf(itemKey))
	}

	// Train must not mutate a snapshot handed out earlier
	w, _ := s.Tensor(userKey)
	tr.Train(context.Background())
	w2, _ := s.Tensor(userKey)
	for i := range w.Data {
		if w.Data[i] != w2.Data[i] {
			t.Fatalf("snapshot changed under the caller")
		}
	}
}

func TestSetSnapshot(t *testing.T) {
	logger := common.NewTestEntry(t, logrus.InfoLevel)
	a := NewTrainer(SyntheticRatings(5, 3, 20, 2), 2, 2, logger)
	b := NewTrainer(SyntheticRatings(5, 3, 20, 2), 2, 9, logger)

	b.SetSnapshot(a.Snapshot())
	if p, _ := b.Predict("u1", "i2"); p != mustPredict(t, a, "u1", "i2") {
		t.Fatalf("b should predict like a after SetSnapshot")
	}

	other := model.NewSnapshot("x", map[string]model.Tensor{"w": model.Vector(1)})
	b.SetSnapshot(other)
	if !b.Snapshot().Compatible(a.Snapshot()) {
		t.Fatalf("incompatible snapshot should be ignored")
	}

	if _, ok := b.Predict("nobody", "i1"); ok {
		t.Fatalf("unknown user should not be predicted")
	}
}

func mustPredict(t *testing.T, tr *Trainer, u, i string) float64 {
	p, ok := tr.Predict(u, i)
	if !ok {
		t.Fatalf("no prediction for %s,%s", u, i)
	}
	return p
}

func TestTrainCancelled(t *testing.T) {
	tr := NewTrainer(SyntheticRatings(3, 3, 10, 1), 2, 1, common.NewTestEntry(t, logrus.InfoLevel))
	prior := tr.Snapshot()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tr.Train(ctx); err == nil {
		t.Fatalf("cancelled training should fail")
	}
	if tr.Snapshot() != prior {
		t.Fatalf("failed training should keep the snapshot")
	}
}

func TestReadRatings(t *testing.T) {
	csv := "user,item,rating\nalice, song-1, 4.5\nbob,song-2,3\n"

	ratings, err := ReadRatings(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(ratings) != 2 {
		t.Fatalf("expected 2 ratings, got %d", len(ratings))
	}
	if ratings[0] != (Rating{User: "alice", Item: "song-1", Value: 4.5}) {
		t.Fatalf("unexpected rating %+v", ratings[0])
	}

	if _, err := ReadRatings(strings.NewReader("a,b,1\nc,d,lots\n")); err == nil {
		t.Fatalf("bad rating after the first line should fail")
	}
}
