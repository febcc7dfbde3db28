package nn

import (
	"github.com/born-ml/babel/internal/kernels"
	"github.com/born-ml/babel/internal/tensor"
)

// Source is the encoder output a decoder layer attends to.
type Source struct {
	Context *tensor.Tensor // [src, batch, model]
	Mask    *AttentionMask
	Lang    LanguageID
}

// DecoderLayer composes an optional macaron feed-forward, causal
// self-attention, source attention (unless IgnoreSource) and a feed-forward
// block.
//
// Forward returns the coverage of the source attention, [batch, heads, tgt,
// src]. When layer drop skips the source attention the coverage is all
// zeros; with IgnoreSource it is nil.
type DecoderLayer struct {
	cfg   LayerConfig
	layer int

	macaron    *FeedForward
	macaronRes *Residual
	selfAttn   *SelfAttention
	attnRes    *Residual
	srcAttn    *SourceAttention
	srcRes     *Residual
	ffn        *FeedForward
	ffnRes     *Residual

	drop layerDrop
}

// NewDecoderLayer creates layer index layer with parameters named under prefix.
func NewDecoderLayer(prefix string, layer int, cfg LayerConfig, b tensor.Backend, g *tensor.Generator) (*DecoderLayer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &DecoderLayer{
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
	if !cfg.IgnoreSource {
		if l.srcAttn, err = NewSourceAttention(prefix+".src_attn.block", layer, cfg, b, g); err != nil {
			return nil, err
		}
		l.srcRes = NewResidual(prefix+".src_attn", cfg, b, g)
	}
	if l.ffn, err = NewFeedForward(prefix+".ffn.block", cfg, b, g); err != nil {
		return nil, err
	}
	return l, nil
}

// Forward runs the layer over the full target prefix x [tgt, batch, model].
// mask should be causal.
func (l *DecoderLayer) Forward(x *tensor.Tensor, src Source, pos *PositionEmbedding, mask *AttentionMask,
	lang LanguageID) (*tensor.Tensor, *tensor.Tensor) {
	return l.forward("DecoderLayer.Forward", x, src, pos, mask, lang, false, nil)
}

// ForwardIncremental runs one decode step, reading and extending cache.
// With reuseSource the projected source is computed once per session.
func (l *DecoderLayer) ForwardIncremental(x *tensor.Tensor, src Source, pos *PositionEmbedding, mask *AttentionMask,
	lang LanguageID, reuseSource bool, cache *IncrementalCache) (*tensor.Tensor, *tensor.Tensor) {
	if cache == nil {
		violation("DecoderLayer.ForwardIncremental: nil cache")
	}
	return l.forward("DecoderLayer.ForwardIncremental", x, src, pos, mask, lang, reuseSource, cache)
}

func (l *DecoderLayer) forward(op string, x *tensor.Tensor, src Source, pos *PositionEmbedding, mask *AttentionMask,
	lang LanguageID, reuseSource bool, cache *IncrementalCache) (*tensor.Tensor, *tensor.Tensor) {
	checkInput(op, x, l.cfg.ModelDim)
	if l.srcAttn != nil && src.Context == nil {
		violation("%s: layer attends to the source but no context was given", op)
	}

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

	// Incremental steps always extend the self-attention cache.
	if coins.next() || cache != nil {
		in := l.attnRes.Preprocess(x, lang)
		var out *tensor.Tensor
		if cache != nil {
			out, _ = l.selfAttn.ForwardIncremental(in, pos, mask, lang, cache)
		} else {
			out, _ = l.selfAttn.Forward(in, pos, mask, lang)
		}
		x = l.attnRes.Postprocess(out, x, scale, lang)
	}

	var coverage *tensor.Tensor
	if l.srcAttn != nil {
		if coins.next() {
			in := l.srcRes.Preprocess(x, lang)
			var out *tensor.Tensor
			if cache != nil {
				out, coverage = l.srcAttn.ForwardIncremental(in, src.Context, src.Mask, lang, src.Lang, reuseSource, cache)
			} else {
				out, coverage = l.srcAttn.Forward(in, src.Context, src.Mask, lang, src.Lang)
			}
			x = l.srcRes.Postprocess(out, x, scale, lang)
		} else {
			coverage = tensor.Zeros(x.Dim(1), l.cfg.Heads, x.Dim(0), src.Context.Dim(0))
		}
	}

	if coins.next() {
		out := l.ffn.Forward(l.ffnRes.Preprocess(x, lang), lang)
		x = l.ffnRes.Postprocess(out, x, ffnScale, lang)
	}
	return x, coverage
}

// SetTraining implements Trainable.
func (l *DecoderLayer) SetTraining(training bool) {
	l.drop.training = training
	setTraining(training, l.selfAttn, l.attnRes, l.ffn, l.ffnRes)
	if l.macaron != nil {
		setTraining(training, l.macaron, l.macaronRes)
	}
	if l.srcAttn != nil {
		setTraining(training, l.srcAttn, l.srcRes)
	}
}

// KernelReport names the strategies selected for this layer.
func (l *DecoderLayer) KernelReport() kernels.Report {
	return kernelReport(l.ffn, l.ffnRes)
}

// Parameters returns the parameters of every sublayer in execution order.
func (l *DecoderLayer) Parameters() []*Parameter {
	var params []*Parameter
	if l.macaron != nil {
		params = append(params, l.macaronRes.Parameters()...)
		params = append(params, l.macaron.Parameters()...)
	}
	params = append(params, l.attnRes.Parameters()...)
	params = append(params, l.selfAttn.Parameters()...)
	if l.srcAttn != nil {
		params = append(params, l.srcRes.Parameters()...)
		params = append(params, l.srcAttn.Parameters()...)
	}
	params = append(params, l.ffnRes.Parameters()...)
	params = append(params, l.ffn.Parameters()...)
	return params
}
