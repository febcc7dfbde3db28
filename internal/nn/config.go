package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/babel/internal/tensor"
)

// PositionScheme selects how a self-attention sublayer sees token positions.
// Exactly one scheme is active per layer.
type PositionScheme int

const (
	// RelativeLearned uses a learned table of relative-offset embeddings.
	RelativeLearned PositionScheme = iota
	// RelativeFixed uses sinusoidal relative-offset embeddings passed through
	// a learned projection.
	RelativeFixed
	// Rotary rotates queries and keys by their absolute position.
	Rotary
)

// String returns the configuration name of the scheme.
func (s PositionScheme) String() string {
	switch s {
	case RelativeLearned:
		return "relative_learned"
	case RelativeFixed:
		return "relative_fixed"
	case Rotary:
		return "rotary"
	default:
		return fmt.Sprintf("PositionScheme(%d)", int(s))
	}
}

// Relative reports whether the scheme adds a relative-position term.
func (s PositionScheme) Relative() bool {
	return s == RelativeLearned || s == RelativeFixed
}

// ParsePositionScheme maps a configuration name to a PositionScheme.
func ParsePositionScheme(name string) (PositionScheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "relative_learned", "learned":
		return RelativeLearned, nil
	case "relative_fixed", "relative", "fixed":
		return RelativeFixed, nil
	case "rotary", "rope":
		return Rotary, nil
	default:
		return 0, fmt.Errorf("unknown position scheme %q", name)
	}
}

// DefaultNormEps is used when LayerConfig.NormEps is zero.
const DefaultNormEps = 1e-5

// RotaryTheta is the base frequency of rotary position encoding.
const RotaryTheta = 10000.0

// LayerConfig is the immutable configuration of one encoder or decoder layer.
//
// Build one value, call Resolve once, and pass the result by value to every
// constructor. Components never mutate it.
type LayerConfig struct {
	ModelDim int
	InnerDim int
	Heads    int

	// Dropout is the general rate. AttnDropout, ResidualDropout and
	// FFNDropout fall back to it when negative.
	Dropout         float32
	AttnDropout     float32
	ResidualDropout float32
	FFNDropout      float32

	// VariationalDropout shares one mask per (batch, feature) across the
	// sequence axis.
	VariationalDropout bool

	Activation tensor.Activation
	GLU        bool

	// Factorized enables per-language low-rank corrections on every
	// projection. MultilingualNorm gives each language its own affine norm.
	Factorized           bool
	MultilingualNorm     bool
	Languages            int
	FactorRank           int
	MultiplicativeFactor bool

	Position            PositionScheme
	MaxRelativeDistance int

	// DeathRate is the probability of skipping a sublayer during training.
	// With StochasticSublayer each sublayer draws its own coin; otherwise one
	// coin gates the whole layer.
	DeathRate          float32
	StochasticSublayer bool

	Macaron  bool
	PostNorm bool
	ReZero   bool
	NormEps  float32

	// IgnoreSource removes cross-attention from decoder layers.
	IgnoreSource bool

	// Checkpointing requests activation recomputation, which the fused
	// feed-forward path does not support.
	Checkpointing bool
}

// HeadDim returns the per-head width.
func (c LayerConfig) HeadDim() int {
	return c.ModelDim / c.Heads
}

// Multilingual reports whether any component needs language ids.
func (c LayerConfig) Multilingual() bool {
	return c.Factorized || c.MultilingualNorm
}

// Resolve applies the documented fallbacks and validates the result.
// The returned error wraps ErrConfig.
func (c LayerConfig) Resolve() (LayerConfig, error) {
	if c.AttnDropout < 0 {
		c.AttnDropout = c.Dropout
	}
	if c.ResidualDropout < 0 {
		c.ResidualDropout = c.Dropout
	}
	if c.FFNDropout < 0 {
		c.FFNDropout = c.Dropout
	}
	if c.NormEps == 0 {
		c.NormEps = DefaultNormEps
	}
	return c, c.Validate()
}

// Validate checks the configuration without applying fallbacks.
func (c LayerConfig) Validate() error {
	switch {
	case c.ModelDim <= 0:
		return configErrorf("model width must be positive, got %d", c.ModelDim)
	case c.InnerDim <= 0:
		return configErrorf("inner width must be positive, got %d", c.InnerDim)
	case c.Heads <= 0:
		return configErrorf("head count must be positive, got %d", c.Heads)
	case c.ModelDim%c.Heads != 0:
		return configErrorf("model width %d is not divisible by %d heads", c.ModelDim, c.Heads)
	}

	rates := []struct {
		name string
		v    float32
	}{
		{"dropout", c.Dropout},
		{"attention dropout", c.AttnDropout},
		{"residual dropout", c.ResidualDropout},
		{"feed-forward dropout", c.FFNDropout},
		{"death rate", c.DeathRate},
	}
	for _, r := range rates {
		if r.v < 0 || r.v >= 1 {
			return configErrorf("%s must be in [0, 1), got %v", r.name, r.v)
		}
	}

	if !c.Activation.Valid() {
		return configErrorf("unknown activation %v", c.Activation)
	}
	if c.Activation == tensor.Sigmoid && !c.GLU {
		return configErrorf("sigmoid activation requires a gated linear unit")
	}

	switch c.Position {
	case RelativeLearned, RelativeFixed:
		if c.MaxRelativeDistance <= 0 {
			return configErrorf("%s positions need a positive maximum relative distance", c.Position)
		}
	case Rotary:
		if c.HeadDim()%2 != 0 {
			return configErrorf("rotary positions need an even head width, got %d", c.HeadDim())
		}
	default:
		return configErrorf("unknown position scheme %v", c.Position)
	}

	if c.Multilingual() && c.Languages <= 0 {
		return configErrorf("multilingual layers need a positive language count, got %d", c.Languages)
	}
	if c.Factorized && c.FactorRank <= 0 {
		return configErrorf("factorized weights need a positive rank, got %d", c.FactorRank)
	}
	if c.NormEps <= 0 {
		return configErrorf("normalization epsilon must be positive, got %v", c.NormEps)
	}
	return nil
}
