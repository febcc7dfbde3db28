package nn

import (
	"github.com/born-ml/babel/internal/kernels"
	"github.com/born-ml/babel/internal/tensor"
)

// EncoderLayer composes an optional macaron feed-forward, self-attention and
// a feed-forward block, each wrapped by its own Residual pipeline.
//
// In training with a positive death rate each sublayer may be skipped (see
// LayerConfig.DeathRate); executed sublayers are then rescaled by
// 1/(1-death rate). With Macaron both feed-forward outputs are halved.
type EncoderLayer struct {
	cfg   LayerConfig
	layer int

	macaron    *FeedForward
	macaronRes *Residual
	selfAttn   *SelfAttention
	attnRes    *Residual
	ffn        *FeedForward
	ffnRes     *Residual

	drop layerDrop
}

// NewEncoderLayer creates layer index layer with parameters named under prefix.
func NewEncoderLayer(prefix string, layer int, cfg LayerConfig, b tensor.Backend, g *tensor.Generator) (*EncoderLayer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &EncoderLayer{
		cfg:     cfg,
		layer:   layer,
		attnRes: NewResidual(prefix+".self_attn", cfg, b, g),
		ffnRes:  NewResidual(prefix+".ffn", cfg, b, g),
		drop:    layerDrop{rate: cfg.DeathRate, stochastic: cfg.StochasticSublayer, rng: g},
	}

	var err error
	if cfg.Macaron {
		if l.macaron, err = NewFeedForward(prefix+".macaron_ffn.block", cfg, b, g); err != nil {
			return nil, err
		}
		l.macaronRes = NewResidual(prefix+".macaron_ffn", cfg, b, g)
	}
	if l.selfAttn, err = NewSelfAttention(prefix+".self_attn.block", layer, cfg, b, g); err != nil {
		return nil, err
	}
	if l.ffn, err = NewFeedForward(prefix+".ffn.block", cfg, b, g); err != nil {
		return nil, err
	}
	return l, nil
}

// Forward runs the layer over x [seq, batch, model].
func (l *EncoderLayer) Forward(x *tensor.Tensor, pos *PositionEmbedding, mask *AttentionMask, lang LanguageID) *tensor.Tensor {
	checkInput("EncoderLayer.Forward", x, l.cfg.ModelDim)
	coins := l.drop.coins()
	scale := l.drop.scale()
	ffnScale := scale
	if l.macaron != nil {
		ffnScale *= 0.5
	}

	if l.macaron != nil && coins.next() {
		out := l.macaron.Forward(l.macaronRes.Preprocess(x, lang), lang)
		x = l.macaronRes.Postprocess(out, x, ffnScale, lang)
	}
	if coins.next() {
		out, _ := l.selfAttn.Forward(l.attnRes.Preprocess(x, lang), pos, mask, lang)
		x = l.attnRes.Postprocess(out, x, scale, lang)
	}
	if coins.next() {
		out := l.ffn.Forward(l.ffnRes.Preprocess(x, lang), lang)
		x = l.ffnRes.Postprocess(out, x, ffnScale, lang)
	}
	return x
}

// SetTraining implements Trainable.
func (l *EncoderLayer) SetTraining(training bool) {
	l.drop.training = training
	setTraining(training, l.selfAttn, l.attnRes, l.ffn, l.ffnRes)
	if l.macaron != nil {
		setTraining(training, l.macaron, l.macaronRes)
	}
}

// KernelReport names the strategies selected for this layer.
func (l *EncoderLayer) KernelReport() kernels.Report {
	return kernelReport(l.ffn, l.ffnRes)
}

// Parameters returns the parameters of every sublayer in execution order.
func (l *EncoderLayer) Parameters() []*Parameter {
	var params []*Parameter
	if l.macaron != nil {
		params = append(params, l.macaronRes.Parameters()...)
		params = append(params, l.macaron.Parameters()...)
	}
	params = append(params, l.attnRes.Parameters()...)
	params = append(params, l.selfAttn.Parameters()...)
	params = append(params, l.ffnRes.Parameters()...)
	params = append(params, l.ffn.Parameters()...)
	return params
}

func setTraining(training bool, ts ...Trainable) {
	for _, t := range ts {
		t.SetTraining(training)
	}
}

func kernelReport(ffn *FeedForward, res *Residual) kernels.Report {
	r := kernels.Report{
		LayerNorm:   "none",
		FeedForward: ffn.KernelName(),
		DropoutAdd:  res.KernelName(),
	}
	if n := res.Norm(); n != nil {
		r.LayerNorm = n.KernelName()
	}
	return r
}
