// Package inference defines the seam between the speech front end and an
// external neural inference runtime (ONNX Runtime or similar). The core
// passes recurrent state explicitly through named tensors on every call;
// it never relies on state kept inside the engine.
package inference

import "fmt"

// Tensor is an N-dimensional array exchanged with the inference engine.
// Exactly one of Floats or Ints is populated, depending on the element type
// the model expects for that input.
type Tensor struct {
	Name   string
	Shape  []int64
	Floats []float32
	Ints   []int64
}

// NumElements returns the element count implied by the shape.
func (t *Tensor) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Validate checks that the populated data matches the declared shape.
func (t *Tensor) Validate() error {
	n := t.NumElements()
	switch {
	case t.Floats != nil && t.Ints != nil:
		return fmt.Errorf("tensor %q has both float and int data", t.Name)
	case t.Floats != nil && int64(len(t.Floats)) != n:
		return fmt.Errorf("tensor %q: shape %v implies %d elements, got %d floats",
			t.Name, t.Shape, n, len(t.Floats))
	case t.Ints != nil && int64(len(t.Ints)) != n:
		return fmt.Errorf("tensor %q: shape %v implies %d elements, got %d ints",
			t.Name, t.Shape, n, len(t.Ints))
	case t.Floats == nil && t.Ints == nil:
		return fmt.Errorf("tensor %q has no data", t.Name)
	}
	return nil
}

// Engine runs a loaded neural network on named input tensors and returns the
// requested named outputs, in order. Implementations must be safe for
// sequential reuse; the front end serializes calls per model.
//
// Both the acoustic model and the VAD model are consumed through this one
// interface.
type Engine interface {
	Run(inputs []Tensor, outputNames []string) ([]Tensor, error)
}
