// Package model holds the immutable parameter snapshots exchanged between
// learning group members.
package model

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/ugorji/go/codec"
)

// Tensor is a dense n-dimensional array stored in row-major order.
type Tensor struct {
	Shape []int     `codec:"shape"`
	Data  []float64 `codec:"data"`
}

// NewTensor copies shape and data into a new Tensor. The number of elements
// must match the shape.
func NewTensor(shape []int, data []float64) (Tensor, error) {
	size := 1
	for _, d := range shape {
		if d < 0 {
			return Tensor{}, fmt.Errorf("negative dimension in shape %v", shape)
		}
		size *= d
	}
	if size != len(data) {
		return Tensor{}, fmt.Errorf("shape %v needs %d values, got %d", shape, size, len(data))
	}
	return Tensor{
		Shape: append([]int{}, shape...),
		Data:  append([]float64{}, data...),
	}, nil
}

// Vector is a shortcut for a one-dimensional tensor.
func Vector(data ...float64) Tensor {
	t, _ := NewTensor([]int{len(data)}, data)
	return t
}

// SameShape reports whether t and o have identical dimensions.
func (t Tensor) SameShape(o Tensor) bool {
	return SameShape(t.Shape, o.Shape)
}

// Copy returns a deep copy.
func (t Tensor) Copy() Tensor {
	return Tensor{
		Shape: append([]int{}, t.Shape...),
		Data:  append([]float64{}, t.Data...),
	}
}

// SameShape compares two shapes dimension by dimension.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Snapshot is a named capture of model parameters. It is never modified
// after construction; accessors hand out copies.
type Snapshot struct {
	name      string
	params    map[string]Tensor
	createdAt time.Time
}

// NewSnapshot deep-copies params into a new Snapshot.
func NewSnapshot(name string, params map[string]Tensor) *Snapshot {
	cp := make(map[string]Tensor, len(params))
	for k, t := range params {
		cp[k] = t.Copy()
	}
	return &Snapshot{
		name:      name,
		params:    cp,
		createdAt: time.Now().UTC(),
	}
}

// Name is the swarm-unique model name.
func (s *Snapshot) Name() string {
	return s.name
}

// CreatedAt ...
func (s *Snapshot) CreatedAt() time.Time {
	return s.createdAt
}

// WithName returns a copy of s carrying another model name.
func (s *Snapshot) WithName(name string) *Snapshot {
	return NewSnapshot(name, s.params)
}

// Keys returns the parameter keys in sorted order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.params))
	for k := range s.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tensor returns a copy of the tensor stored under key.
func (s *Snapshot) Tensor(key string) (Tensor, bool) {
	t, ok := s.params[key]
	if !ok {
		return Tensor{}, false
	}
	return t.Copy(), true
}

// ShapeOf returns the shape of key, nil if absent.
func (s *Snapshot) ShapeOf(key string) []int {
	t, ok := s.params[key]
	if !ok {
		return nil
	}
	return append([]int{}, t.Shape...)
}

// Params returns a deep copy of every tensor.
func (s *Snapshot) Params() map[string]Tensor {
	cp := make(map[string]Tensor, len(s.params))
	for k, t := range s.params {
		cp[k] = t.Copy()
	}
	return cp
}

// Compatible is true iff both snapshots have the same key set and the same
// shape for every key.
func (s *Snapshot) Compatible(o *Snapshot) bool {
	if o == nil || len(s.params) != len(o.params) {
		return false
	}
	for k, t := range s.params {
		ot, ok := o.params[k]
		if !ok || !t.SameShape(ot) {
			return false
		}
	}
	return true
}

// Equal compares names and values exactly.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if o == nil || s.name != o.name || !s.Compatible(o) {
		return false
	}
	for k, t := range s.params {
		ot := o.params[k]
		for i := range t.Data {
			if t.Data[i] != ot.Data[i] {
				return false
			}
		}
	}
	return true
}

type wireSnapshot struct {
	Name      string            `codec:"name"`
	Params    map[string]Tensor `codec:"params"`
	CreatedAt time.Time         `codec:"created_at"`
}

// Marshal - canonical json encoding of Snapshot
func (s *Snapshot) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	w := wireSnapshot{
		Name:      s.name,
		Params:    s.params,
		CreatedAt: s.createdAt,
	}
	if err := enc.Encode(w); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a Snapshot produced by Marshal and validates every
// tensor.
func Unmarshal(data []byte) (*Snapshot, error) {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	var w wireSnapshot
	if err := dec.Decode(&w); err != nil {
		return nil, err
	}

	params := make(map[string]Tensor, len(w.Params))
	for k, t := range w.Params {
		checked, err := NewTensor(t.Shape, t.Data)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s, key %s: %v", w.Name, k, err)
		}
		params[k] = checked
	}

	return &Snapshot{
		name:      w.Name,
		params:    params,
		createdAt: w.CreatedAt,
	}, nil
}
