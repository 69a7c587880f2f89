package aggregate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sporenet/sporenet/src/common"
	"github.com/sporenet/sporenet/src/model"
)

func snap(name string, kv ...interface{}) *model.Snapshot {
	params := map[string]model.Tensor{}
	for i := 0; i < len(kv); i += 2 {
		params[kv[i].(string)] = kv[i+1].(model.Tensor)
	}
	return model.NewSnapshot(name, params)
}

func TestMergeNoPeers(t *testing.T) {
	local := snap("local", "w", model.Vector(1, 2, 3))

	for _, w := range []float64{0.1, 0.5, 1} {
		res, err := Merge(local, nil, w)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if !res.Snapshot.Equal(local) {
			t.Fatalf("aggregation without peers should return local unchanged (w=%v)", w)
		}
	}
}

func TestMergeTwoVectors(t *testing.T) {
	local := snap("local", "w", model.Vector(1, 1))
	peer := snap("peer", "w", model.Vector(3, 3))

	res, err := Merge(local, []*model.Snapshot{peer}, 0.5)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	w, _ := res.Snapshot.Tensor("w")
	for i, v := range w.Data {
		if v != 2 {
			t.Fatalf("merged[w][%d] should be 2, not %v", i, v)
		}
	}
	if res.Snapshot.Name() != "local" {
		t.Fatalf("merged snapshot should keep the local name")
	}
}

func TestMergeIsConvex(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		n := 1 + rnd.Intn(5)
		size := 1 + rnd.Intn(6)

		randVec := func() model.Tensor {
			d := make([]float64, size)
			for i := range d {
				d[i] = rnd.Float64()*200 - 100
			}
			return model.Vector(d...)
		}

		local := snap("local", "w", randVec())
		peers := make([]*model.Snapshot, n)
		for i := range peers {
			peers[i] = snap("peer", "w", randVec())
		}
		weight := 0.01 + rnd.Float64()*0.99

		res, err := Merge(local, peers, weight)
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		merged, _ := res.Snapshot.Tensor("w")
		lw, _ := local.Tensor("w")
		for i := 0; i < size; i++ {
			lo, hi := lw.Data[i], lw.Data[i]
			for _, p := range peers {
				pw, _ := p.Tensor("w")
				lo = math.Min(lo, pw.Data[i])
				hi = math.Max(hi, pw.Data[i])
			}
			v := merged.Data[i]
			if v < lo-1e-9 || v > hi+1e-9 {
				t.Fatalf("round %d: merged value %v outside [%v, %v]", round, v, lo, hi)
			}
		}
	}
}

func TestMergeSkipsMismatchedKeyOnly(t *testing.T) {
	local := snap("local", "w", model.Vector(1, 1), "b", model.Vector(4))
	good := snap("good", "w", model.Vector(3, 3), "b", model.Vector(8))
	bad := snap("bad", "w", model.Vector(9, 9, 9), "b", model.Vector(0))

	res, err := Merge(local, []*model.Snapshot{good, bad}, 0.5)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(res.Skips) != 1 {
		t.Fatalf("expected exactly one skip, got %d", len(res.Skips))
	}
	s := res.Skips[0]
	if s.Peer != "bad" || s.Key != "w" || !model.SameShape(s.Got, []int{3}) {
		t.Fatalf("unexpected skip %v", s)
	}

	// w: 0.5*1 + 0.25*3 (bad skipped, divisor still 2)
	w, _ := res.Snapshot.Tensor("w")
	if w.Data[0] != 1.25 || w.Data[1] != 1.25 {
		t.Fatalf("merged w should be [1.25 1.25], not %v", w.Data)
	}

	// b: 0.5*4 + 0.25*8 + 0.25*0, the bad peer still counts for b
	b, _ := res.Snapshot.Tensor("b")
	if b.Data[0] != 4 {
		t.Fatalf("merged b should be 4, not %v", b.Data[0])
	}
}

func TestMergeSkipsMalformedTensor(t *testing.T) {
	local := snap("local", "w", model.Vector(2, 4))
	// shape says 2 values, data holds 3
	broken := model.NewSnapshot("broken", map[string]model.Tensor{
		"w": {Shape: []int{2}, Data: []float64{1, 2, 3}},
	})

	res, err := Merge(local, []*model.Snapshot{broken}, 0.5)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(res.Skips) != 1 || res.Skips[0].Peer != "broken" || res.Skips[0].Key != "w" {
		t.Fatalf("expected one skip for broken/w, got %v", res.Skips)
	}

	w, _ := res.Snapshot.Tensor("w")
	if len(w.Data) != 2 || w.Data[0] != 1 || w.Data[1] != 2 {
		t.Fatalf("merged w should be [1 2], not %v", w.Data)
	}
}

func TestMergeMissingKey(t *testing.T) {
	local := snap("local", "w", model.Vector(2), "b", model.Vector(2))
	partial := snap("partial", "w", model.Vector(4))

	res, err := Merge(local, []*model.Snapshot{partial}, 0.5)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(res.Skips) != 1 || res.Skips[0].Key != "b" || res.Skips[0].Got != nil {
		t.Fatalf("missing key should be recorded as a skip: %v", res.Skips)
	}
	w, _ := res.Snapshot.Tensor("w")
	if w.Data[0] != 3 {
		t.Fatalf("merged w should be 3, not %v", w.Data[0])
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	local := snap("local", "w", model.Vector(1, 1))
	peer := snap("peer", "w", model.Vector(3, 3))

	if _, err := Merge(local, []*model.Snapshot{peer}, 0.3); err != nil {
		t.Fatalf("err: %v", err)
	}

	if !local.Equal(snap("local", "w", model.Vector(1, 1))) {
		t.Fatalf("local was modified")
	}
	if !peer.Equal(snap("peer", "w", model.Vector(3, 3))) {
		t.Fatalf("peer was modified")
	}
}

func TestMergeRejectsBadWeight(t *testing.T) {
	local := snap("local", "w", model.Vector(1))
	for _, w := range []float64{0, -0.5, 1.01, math.NaN()} {
		if _, err := Merge(local, nil, w); err == nil {
			t.Errorf("weight %v should be rejected", w)
		}
	}
	if _, err := Merge(nil, nil, 0.5); err == nil {
		t.Errorf("nil local should be rejected")
	}
}

func TestEngineLogsSkips(t *testing.T) {
	engine := NewEngine(DefaultLocalWeight, common.NewTestEntry(t, logrus.DebugLevel))

	local := snap("local", "w", model.Vector(1, 1))
	bad := snap("bad", "w", model.Vector(1))

	res, err := engine.Aggregate(local, []*model.Snapshot{bad})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(res.Skips) != 1 {
		t.Fatalf("expected one skip")
	}
	w, _ := res.Snapshot.Tensor("w")
	if w.Data[0] != 0.5 {
		t.Fatalf("only the local half should remain, got %v", w.Data[0])
	}
}
