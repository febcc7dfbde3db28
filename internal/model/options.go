package model

import (
	"github.com/born-ml/babel/internal/backend/cpu"
	"github.com/born-ml/babel/internal/logger"
	"github.com/born-ml/babel/internal/tensor"
)

type options struct {
	backend tensor.Backend
	rng     *tensor.Generator
	log     logger.Logger
}

// Option configures New.
type Option func(*options)

// WithBackend selects the tensor backend. The default is cpu.New().
func WithBackend(b tensor.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithSeed seeds the random stream used for initialization, dropout and
// layer drop. The default seed is 1.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.rng = tensor.NewGenerator(seed) }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{
		backend: cpu.New(),
		rng:     tensor.NewGenerator(1),
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
