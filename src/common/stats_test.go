package common

import "testing"

func TestMean(t *testing.T) {
	if m := Mean([]float64{1, 2, 3, 4}); m != 2.5 {
		t.Errorf("Mean should be 2.5, not %v", m)
	}
	if m := Mean(nil); m != 0 {
		t.Errorf("Mean of nothing should be 0, not %v", m)
	}
}

func TestRollingWindow(t *testing.T) {
	w := NewRollingWindow(3)

	if w.Len() != 0 || w.Mean() != 0 {
		t.Fatalf("new window should be empty")
	}

	for i := 1; i <= 10; i++ {
		w.Push(float64(i))
	}

	vals := w.Values()
	expected := []float64{8, 9, 10}
	if len(vals) != len(expected) {
		t.Fatalf("window should hold %d values, not %d", len(expected), len(vals))
	}
	for i := range expected {
		if vals[i] != expected[i] {
			t.Fatalf("values[%d] should be %v, not %v", i, expected[i], vals[i])
		}
	}

	if m := w.Mean(); m != 9 {
		t.Fatalf("mean should be 9, not %v", m)
	}
}

func TestStoreErr(t *testing.T) {
	err := WrapStoreErr("Membership", PartialMove, "model-1", errKaput)

	if !IsStore(err, PartialMove) {
		t.Fatalf("expected PartialMove")
	}
	if IsStore(err, KeyNotFound) {
		t.Fatalf("did not expect KeyNotFound")
	}
	if IsStore(errKaput, PartialMove) {
		t.Fatalf("plain errors are not StoreErr")
	}
}

type kaput struct{}

func (kaput) Error() string { return "kaput" }

var errKaput = kaput{}
