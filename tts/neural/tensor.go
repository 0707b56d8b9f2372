package neural

import "fmt"

// Tensor is a dense row-major tensor holding either float32 or int64 data.
type Tensor struct {
	Shape []int64
	Float []float32
	Int   []int64
}

// FloatTensor creates a float tensor, checking that data matches shape.
func FloatTensor(data []float32, shape ...int64) (*Tensor, error) {
	if n := numel(shape); n != int64(len(data)) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Tensor{Shape: shape, Float: data}, nil
}

// IntTensor creates an int64 tensor, checking that data matches shape.
func IntTensor(data []int64, shape ...int64) (*Tensor, error) {
	if n := numel(shape); n != int64(len(data)) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Tensor{Shape: shape, Int: data}, nil
}

// Ones creates a float tensor filled with 1.
func Ones(shape ...int64) *Tensor {
	data := make([]float32, numel(shape))
	for i := range data {
		data[i] = 1
	}
	return &Tensor{Shape: shape, Float: data}
}

// Scalar creates a one-element float tensor of shape [1].
func Scalar(v float32) *Tensor {
	return &Tensor{Shape: []int64{1}, Float: []float32{v}}
}

// IsInt reports whether t holds int64 data.
func (t *Tensor) IsInt() bool {
	return t.Int != nil
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	if t.IsInt() {
		return len(t.Int)
	}
	return len(t.Float)
}

func numel(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
