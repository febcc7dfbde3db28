// Package optim implements parameter update rules over the gradients that
// layer Backward calls accumulate into nn.Parameter.
//
// Example usage:
//
//	opt := optim.NewAdam(ffn.Parameters(), optim.AdamConfig{LR: 1e-3})
//	for step := range steps {
//	    y := ffn.Forward(x, nil)
//	    ffn.Backward(lossGrad(y))
//	    opt.Step()
//	    opt.ZeroGrad()
//	}
package optim

import "github.com/born-ml/babel/internal/nn"

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies one update to every parameter that has a gradient.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float32
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

func zeroGrads(params []*nn.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
