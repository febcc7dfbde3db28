package optim

import (
	"github.com/born-ml/babel/internal/nn"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Update rule with momentum μ:
//
//	v = μ·v + g
//	p = p - lr·v
type SGD struct {
	params   []*nn.Parameter
	lr       float32
	momentum float32
	velocity map[*nn.Parameter][]float32
}

// SGDConfig holds configuration for SGD.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0)
}

// NewSGD creates an SGD optimizer over params.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		params:   params,
		lr:       config.LR,
		momentum: config.Momentum,
		velocity: make(map[*nn.Parameter][]float32),
	}
}

// Step implements Optimizer.
func (s *SGD) Step() {
	for _, p := range s.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		w, g := p.Tensor().Data(), grad.Data()
		if s.momentum == 0 {
			for i := range w {
				w[i] -= s.lr * g[i]
			}
			continue
		}
		v, ok := s.velocity[p]
		if !ok {
			v = make([]float32, len(w))
			s.velocity[p] = v
		}
		for i := range w {
			v[i] = s.momentum*v[i] + g[i]
			w[i] -= s.lr * v[i]
		}
	}
}

// ZeroGrad implements Optimizer.
func (s *SGD) ZeroGrad() {
	zeroGrads(s.params)
}

// LR implements Optimizer.
func (s *SGD) LR() float32 {
	return s.lr
}
