package tensor

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	t := tensor.Zeros(3, 4)
func Zeros(shape ...int) *Tensor {
	s := Shape(shape)
	return New(make([]float32, s.NumElements()), s)
}

// Ones creates a tensor filled with ones.
func Ones(shape ...int) *Tensor {
	return Full(1, shape...)
}

// Full creates a tensor filled with value.
func Full(value float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice(data []float32, shape ...int) *Tensor {
	buf := make([]float32, len(data))
	copy(buf, data)
	return New(buf, Shape(shape))
}

// Randn creates a tensor with elements drawn from N(0, std²).
func Randn(g *Generator, std float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = float32(g.NormFloat64()) * std
	}
	return t
}

// Uniform creates a tensor with elements drawn uniformly from [lo, hi).
func Uniform(g *Generator, lo, hi float32, shape ...int) *Tensor {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = lo + (hi-lo)*g.Float32()
	}
	return t
}
