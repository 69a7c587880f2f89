package model

import (
	"testing"
)

func TestNewTensor(t *testing.T) {
	if _, err := NewTensor([]int{2, 3}, make([]float64, 6)); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := NewTensor([]int{2, 3}, make([]float64, 5)); err == nil {
		t.Fatalf("NewTensor should reject a data length that does not match the shape")
	}
	if _, err := NewTensor([]int{-1}, nil); err == nil {
		t.Fatalf("NewTensor should reject negative dimensions")
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	data := []float64{1, 2}
	params := map[string]Tensor{"w": {Shape: []int{2}, Data: data}}

	s := NewSnapshot("model-0", params)

	data[0] = 42
	params["b"] = Vector(1)

	w, _ := s.Tensor("w")
	if w.Data[0] != 1 {
		t.Fatalf("Snapshot should not share memory with its inputs")
	}
	if len(s.Keys()) != 1 {
		t.Fatalf("Snapshot should not see keys added after construction")
	}

	w.Data[1] = 42
	again, _ := s.Tensor("w")
	if again.Data[1] != 2 {
		t.Fatalf("Tensor should return a copy")
	}
}

func TestCompatible(t *testing.T) {
	a := NewSnapshot("a", map[string]Tensor{"w": Vector(1, 2), "b": Vector(0)})
	b := NewSnapshot("b", map[string]Tensor{"w": Vector(3, 4), "b": Vector(1)})
	c := NewSnapshot("c", map[string]Tensor{"w": Vector(3, 4, 5), "b": Vector(1)})
	d := NewSnapshot("d", map[string]Tensor{"w": Vector(3, 4)})

	cases := []struct {
		x, y *Snapshot
		ok   bool
	}{
		{a, b, true},
		{a, c, false},
		{a, d, false},
		{d, a, false},
		{a, nil, false},
	}
	for i, c := range cases {
		if got := c.x.Compatible(c.y); got != c.ok {
			t.Errorf("case %d: Compatible should be %v", i, c.ok)
		}
	}
}

func TestMarshalUnmarshal(t *testing.T) {
	m, _ := NewTensor([]int{2, 2}, []float64{1, 2, 3, 4})
	s := NewSnapshot("model-7", map[string]Tensor{"m": m, "v": Vector(0.5)})

	raw, err := s.Marshal()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	out, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !s.Equal(out) {
		t.Fatalf("decoded snapshot differs from the original")
	}

	if _, err := Unmarshal([]byte(`{"name":"x","params":{"w":{"shape":[3],"data":[1]}}}`)); err == nil {
		t.Fatalf("Unmarshal should reject inconsistent tensors")
	}
}
