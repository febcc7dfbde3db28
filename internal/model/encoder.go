package model

import (
	"fmt"

	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/internal/tensor"
)

// Encoder embeds source tokens and runs them through a stack of encoder
// layers. In pre-norm mode the stack ends with a layer norm.
type Encoder struct {
	cfg    nn.LayerConfig
	padID  int
	embed  *Embedding
	layers []*nn.EncoderLayer
	norm   nn.Normalizer
}

func newEncoder(cfg Config, embed *Embedding, b tensor.Backend, g *tensor.Generator) (*Encoder, error) {
	e := &Encoder{cfg: cfg.Layer, padID: cfg.PadID, embed: embed}
	for i := 0; i < cfg.EncoderLayers; i++ {
		lc := cfg.Layer
		lc.DeathRate = layerDeathRate(cfg.Layer.DeathRate, i, cfg.EncoderLayers)
		l, err := nn.NewEncoderLayer(fmt.Sprintf("encoder.layers.%d", i), i, lc, b, g)
		if err != nil {
			return nil, fmt.Errorf("encoder layer %d: %w", i, err)
		}
		e.layers = append(e.layers, l)
	}
	if preNorm(cfg.Layer) {
		e.norm = newFinalNorm("encoder.norm", cfg.Layer, b)
	}
	return e, nil
}

// Forward encodes src and returns the context the decoder attends to.
// Padding positions are masked for every layer and for the decoder.
func (e *Encoder) Forward(src Tokens, lang nn.LanguageID) nn.Source {
	x := e.embed.Forward(src)
	mask := &nn.AttentionMask{KeyPadding: nn.PaddingMask(src.IDs, src.Seq, src.Batch, e.padID)}
	pos := nn.NewPositionEmbedding(e.cfg, src.Seq, 0)
	for _, l := range e.layers {
		x = l.Forward(x, pos, mask, lang)
	}
	if e.norm != nil {
		x = e.norm.Forward(x, lang)
	}
	return nn.Source{Context: x, Mask: mask, Lang: lang}
}

// Layers returns the layer stack.
func (e *Encoder) Layers() []*nn.EncoderLayer {
	return e.layers
}

// SetTraining implements nn.Trainable.
func (e *Encoder) SetTraining(training bool) {
	e.embed.SetTraining(training)
	for _, l := range e.layers {
		l.SetTraining(training)
	}
}

// Parameters returns the layer and final norm parameters. The embedding is
// owned by the Translator.
func (e *Encoder) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, l := range e.layers {
		params = append(params, l.Parameters()...)
	}
	if e.norm != nil {
		params = append(params, e.norm.Parameters()...)
	}
	return params
}

func preNorm(cfg nn.LayerConfig) bool {
	return !cfg.PostNorm && !cfg.ReZero
}

func newFinalNorm(name string, cfg nn.LayerConfig, b tensor.Backend) nn.Normalizer {
	if cfg.MultilingualNorm {
		return nn.NewMultilingualLayerNorm(name, cfg.ModelDim, cfg.Languages, cfg.NormEps, b)
	}
	return nn.NewLayerNorm(name, cfg.ModelDim, cfg.NormEps, b)
}
