package nn

import (
	"github.com/born-ml/babel/internal/tensor"
)

// FactorizedLinear is a projection whose weight is specialized per language:
//
//	W_l = (W + U_lᵀ·V_l) ⊙ (S_lᵀ·R_l)
//
// W [out, in] and the bias are shared. U [languages, rank, out] and
// V [languages, rank, in] give a rank-R additive correction. S [languages, out]
// and R [languages, in] give an optional rank-1 multiplicative correction,
// initialized to ones so it starts as the identity.
//
// Project builds one effective weight per distinct language in the batch, so
// cost grows with the number of languages present rather than batch size.
type FactorizedLinear struct {
	base      *Linear
	languages int
	rank      int
	u, v      *Parameter
	s, r      *Parameter
	backend   tensor.Backend
}

// NewFactorizedLinear creates a factorized projection named prefix.*.
func NewFactorizedLinear(prefix string, in, out int, bias bool, languages, rank int, multiplicative bool,
	b tensor.Backend, g *tensor.Generator) *FactorizedLinear {
	f := &FactorizedLinear{
		base:      NewLinear(prefix, in, out, bias, b, g),
		languages: languages,
		rank:      rank,
		u:         NewParameter(prefix+".factor_u", tensor.Randn(g, 0.02, languages, rank, out)),
		v:         NewParameter(prefix+".factor_v", tensor.Randn(g, 0.02, languages, rank, in)),
		backend:   b,
	}
	if multiplicative {
		f.s = NewParameter(prefix+".factor_s", tensor.Ones(languages, out))
		f.r = NewParameter(prefix+".factor_r", tensor.Ones(languages, in))
	}
	return f
}

// EffectiveWeight returns W_l for one language as an [out, in] tensor.
func (f *FactorizedLinear) EffectiveWeight(lang int) *tensor.Tensor {
	if lang < 0 || lang >= f.languages {
		violation("FactorizedLinear.EffectiveWeight: language id %d out of range [0, %d)", lang, f.languages)
	}
	in, out := f.base.inFeatures, f.base.outFeatures

	u := f.backend.Narrow(f.u.Tensor(), 0, lang, 1).Reshape(f.rank, out)
	v := f.backend.Narrow(f.v.Tensor(), 0, lang, 1).Reshape(f.rank, in)
	w := f.backend.Add(f.base.weight.Tensor(), f.backend.MatMul(u, v, true, false))

	if f.s != nil {
		s := f.backend.Narrow(f.s.Tensor(), 0, lang, 1).Reshape(1, out)
		r := f.backend.Narrow(f.r.Tensor(), 0, lang, 1).Reshape(1, in)
		w = f.backend.Mul(w, f.backend.MatMul(s, r, true, false))
	}
	return w
}

// Project applies the per-language projection to x [seq, batch, in].
func (f *FactorizedLinear) Project(x *tensor.Tensor, lang LanguageID) *tensor.Tensor {
	const op = "FactorizedLinear.Project"
	if x.Rank() != 3 {
		violation("%s: expected [seq, batch, in] input, got %v", op, x.Shape())
	}
	batch := x.Dim(1)
	ids := lang.resolve(op, batch, f.languages)
	langs, members := groupByLanguage(ids)

	if len(langs) == 1 {
		return f.base.apply(op, x, f.EffectiveWeight(langs[0]))
	}

	// Gather each language's batch columns, project them once, and scatter
	// the results back into batch order.
	parts := make([]*tensor.Tensor, batch)
	for _, l := range langs {
		cols := members[l]
		slices := make([]*tensor.Tensor, len(cols))
		for i, b := range cols {
			slices[i] = f.backend.Narrow(x, 1, b, 1)
		}
		y := f.base.apply(op, f.backend.Cat(1, slices...), f.EffectiveWeight(l))
		for i, b := range cols {
			parts[b] = f.backend.Narrow(y, 1, i, 1)
		}
	}
	return f.backend.Cat(1, parts...)
}

// Base returns the shared projection.
func (f *FactorizedLinear) Base() *Linear {
	return f.base
}

// Parameters returns the shared weight and bias followed by the factors.
func (f *FactorizedLinear) Parameters() []*Parameter {
	params := append(f.base.Parameters(), f.u, f.v)
	if f.s != nil {
		params = append(params, f.s, f.r)
	}
	return params
}

// InFeatures returns the input width.
func (f *FactorizedLinear) InFeatures() int {
	return f.base.inFeatures
}

// OutFeatures returns the output width.
func (f *FactorizedLinear) OutFeatures() int {
	return f.base.outFeatures
}

// newProjection returns a FactorizedLinear when cfg enables factorized
// weights and a Linear otherwise.
func newProjection(prefix string, in, out int, bias bool, cfg LayerConfig, b tensor.Backend, g *tensor.Generator) Projection {
	if cfg.Factorized {
		return NewFactorizedLinear(prefix, in, out, bias, cfg.Languages, cfg.FactorRank, cfg.MultiplicativeFactor, b, g)
	}
	return NewLinear(prefix, in, out, bias, b, g)
}
