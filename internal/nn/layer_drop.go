package nn

import "github.com/born-ml/babel/internal/tensor"

// layerDrop draws the stochastic-depth coins of one layer.
//
// The first coin of a forward call gates the first sublayer. In stochastic
// sublayer mode every later sublayer draws a fresh coin; otherwise the first
// coin gates the whole layer. No coin is drawn outside training or at death
// rate 0, so the random stream does not advance in those cases.
type layerDrop struct {
	rate       float32
	stochastic bool
	training   bool
	rng        *tensor.Generator
}

func (d *layerDrop) active() bool {
	return d.training && d.rate > 0
}

// scale is the rescaling applied to executed sublayers.
func (d *layerDrop) scale() float32 {
	if !d.active() {
		return 1
	}
	return 1 / (1 - d.rate)
}

// coins returns the gate sequence for one forward call.
func (d *layerDrop) coins() *coinSequence {
	return &coinSequence{drop: d, first: true}
}

type coinSequence struct {
	drop  *layerDrop
	first bool
	run   bool
}

// next reports whether the next sublayer executes.
func (c *coinSequence) next() bool {
	if !c.drop.active() {
		return true
	}
	if c.first || c.drop.stochastic {
		c.first = false
		c.run = c.drop.rng.Keep(c.drop.rate)
	}
	return c.run
}
