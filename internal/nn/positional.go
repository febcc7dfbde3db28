package nn

import (
	"math"

	"github.com/born-ml/babel/internal/tensor"
)

// PositionEmbedding is the position information shared read-only by every
// layer of one forward pass. It is rebuilt for each sequence length and
// decode step.
//
// Queries sit at absolute positions Offset..Offset+QueryLen-1 and keys at
// 0..KeyLen-1. Relative schemes look up the clamped offset
// (Offset+i)-j in [-MaxDistance, MaxDistance]. The rotary scheme carries the
// cos/sin rows for the query positions.
type PositionEmbedding struct {
	Scheme      PositionScheme
	QueryLen    int
	KeyLen      int
	Offset      int
	MaxDistance int

	// Table holds sinusoidal embeddings of the relative offsets
	// -MaxDistance..MaxDistance, shape [2·MaxDistance+1, model]. Only set for
	// RelativeFixed.
	Table *tensor.Tensor

	// Cos and Sin hold rotation angles for the query positions, shape
	// [QueryLen, headDim/2]. Only set for Rotary.
	Cos *tensor.Tensor
	Sin *tensor.Tensor
}

// NewPositionEmbedding builds the position information for a self-attention
// call over queryLen new positions after offset cached ones.
//
// For RelativeLearned the bound is cfg.MaxRelativeDistance, matching the
// learned table. For RelativeFixed it is additionally capped at keyLen-1, so
// the sinusoid table never holds rows no query can reach.
func NewPositionEmbedding(cfg LayerConfig, queryLen, offset int) *PositionEmbedding {
	keyLen := offset + queryLen
	p := &PositionEmbedding{
		Scheme:   cfg.Position,
		QueryLen: queryLen,
		KeyLen:   keyLen,
		Offset:   offset,
	}

	switch cfg.Position {
	case RelativeLearned:
		p.MaxDistance = cfg.MaxRelativeDistance
	case RelativeFixed:
		p.MaxDistance = min(cfg.MaxRelativeDistance, max(keyLen-1, 0))
		p.Table = relativeSinusoid(p.MaxDistance, cfg.ModelDim)
	case Rotary:
		p.Cos, p.Sin = rotaryTables(offset, queryLen, cfg.HeadDim(), RotaryTheta)
	}
	return p
}

// RelativeIndex returns the table row for query i and key j.
func (p *PositionEmbedding) RelativeIndex(i, j int) int {
	rel := p.Offset + i - j
	rel = max(-p.MaxDistance, min(p.MaxDistance, rel))
	return rel + p.MaxDistance
}

// relativeSinusoid returns rows for offsets -l..l with
// PE(r, 2k) = sin(r/10000^(2k/d)) and PE(r, 2k+1) = cos(r/10000^(2k/d)).
func relativeSinusoid(l, dim int) *tensor.Tensor {
	t := tensor.Zeros(2*l+1, dim)
	data := t.Data()
	for row := 0; row < 2*l+1; row++ {
		rel := float64(row - l)
		for i := 0; i < dim; i++ {
			angle := rel / math.Pow(10000.0, float64(2*(i/2))/float64(dim))
			if i%2 == 0 {
				data[row*dim+i] = float32(math.Sin(angle))
			} else {
				data[row*dim+i] = float32(math.Cos(angle))
			}
		}
	}
	return t
}

// rotaryTables returns cos/sin of pos·theta^(-2i/headDim) for
// pos in [offset, offset+n).
func rotaryTables(offset, n, headDim int, theta float64) (cos, sin *tensor.Tensor) {
	half := headDim / 2
	cos = tensor.Zeros(n, half)
	sin = tensor.Zeros(n, half)
	for p := 0; p < n; p++ {
		pos := float64(offset + p)
		for i := 0; i < half; i++ {
			angle := pos * math.Pow(theta, -2.0*float64(i)/float64(headDim))
			cos.Data()[p*half+i] = float32(math.Cos(angle))
			sin.Data()[p*half+i] = float32(math.Sin(angle))
		}
	}
	return cos, sin
}

// applyRotary rotates interleaved pairs of x [n, seq, headDim] using row t
// of cos/sin for sequence position t. x is not modified.
func applyRotary(x, cos, sin *tensor.Tensor) *tensor.Tensor {
	n, seq, dim := x.Dim(0), x.Dim(1), x.Dim(2)
	if cos.Dim(0) != seq || cos.Dim(1)*2 != dim {
		violation("applyRotary: tables %v do not match input %v", cos.Shape(), x.Shape())
	}
	half := dim / 2
	out := x.Clone()
	od, xd, cd, sd := out.Data(), x.Data(), cos.Data(), sin.Data()
	for b := 0; b < n; b++ {
		for t := 0; t < seq; t++ {
			base := (b*seq + t) * dim
			for i := 0; i < half; i++ {
				c, s := cd[t*half+i], sd[t*half+i]
				x0, x1 := xd[base+2*i], xd[base+2*i+1]
				od[base+2*i] = x0*c - x1*s
				od[base+2*i+1] = x0*s + x1*c
			}
		}
	}
	return out
}
