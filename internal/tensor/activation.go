package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Activation is the closed set of pointwise nonlinearities a feed-forward
// block can use. It is selected once at construction; each variant owns its
// forward and derivative.
type Activation int

const (
	// ReLU is max(0, x).
	ReLU Activation = iota
	// GELU is the exact form x·Φ(x).
	GELU
	// ApproxGELU is 0.5·x·(1 + tanh(√(2/π)·(x + 0.044715·x³))).
	ApproxGELU
	// SiLU is x·sigmoid(x), also known as swish.
	SiLU
	// Sigmoid is 1/(1+e^-x). Only valid as the activation of a gated linear unit.
	Sigmoid
)

var activationNames = map[Activation]string{
	ReLU:       "relu",
	GELU:       "gelu",
	ApproxGELU: "agelu",
	SiLU:       "silu",
	Sigmoid:    "sigmoid",
}

// ParseActivation maps a configuration name to an Activation.
// "swish" is accepted as an alias of "silu".
func ParseActivation(name string) (Activation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "relu":
		return ReLU, nil
	case "gelu":
		return GELU, nil
	case "agelu", "approx_gelu", "gelu_tanh":
		return ApproxGELU, nil
	case "silu", "swish":
		return SiLU, nil
	case "sigmoid":
		return Sigmoid, nil
	default:
		return 0, fmt.Errorf("unknown activation %q", name)
	}
}

// String returns the configuration name.
func (a Activation) String() string {
	if name, ok := activationNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Activation(%d)", int(a))
}

// Valid reports whether a is a known variant.
func (a Activation) Valid() bool {
	_, ok := activationNames[a]
	return ok
}

const (
	sqrt2OverPi = 0.7978845608028654
	geluCoeff   = 0.044715
	invSqrt2    = 0.7071067811865476
	invSqrt2Pi  = 0.3989422804014327
)

// Apply evaluates the activation at x.
func (a Activation) Apply(x float32) float32 {
	v := float64(x)
	switch a {
	case ReLU:
		if x > 0 {
			return x
		}
		return 0
	case GELU:
		return float32(0.5 * v * (1 + math.Erf(v*invSqrt2)))
	case ApproxGELU:
		return float32(0.5 * v * (1 + math.Tanh(sqrt2OverPi*(v+geluCoeff*v*v*v))))
	case SiLU:
		return float32(v * sigmoid(v))
	case Sigmoid:
		return float32(sigmoid(v))
	default:
		panic(fmt.Sprintf("Activation.Apply: unknown activation %d", int(a)))
	}
}

// Derivative evaluates d/dx of the activation at x.
func (a Activation) Derivative(x float32) float32 {
	v := float64(x)
	switch a {
	case ReLU:
		if x > 0 {
			return 1
		}
		return 0
	case GELU:
		cdf := 0.5 * (1 + math.Erf(v*invSqrt2))
		pdf := invSqrt2Pi * math.Exp(-0.5*v*v)
		return float32(cdf + v*pdf)
	case ApproxGELU:
		inner := sqrt2OverPi * (v + geluCoeff*v*v*v)
		th := math.Tanh(inner)
		dInner := sqrt2OverPi * (1 + 3*geluCoeff*v*v)
		return float32(0.5*(1+th) + 0.5*v*(1-th*th)*dInner)
	case SiLU:
		s := sigmoid(v)
		return float32(s * (1 + v*(1-s)))
	case Sigmoid:
		s := sigmoid(v)
		return float32(s * (1 - s))
	default:
		panic(fmt.Sprintf("Activation.Derivative: unknown activation %d", int(a)))
	}
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}
