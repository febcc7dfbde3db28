package model

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/internal/tensor"
)

// DecoderOutput is the result of a decoder pass.
type DecoderOutput struct {
	// Hidden is the final hidden state [tgt, batch, model], ready for an
	// output projection.
	Hidden *tensor.Tensor
	// Coverage is the source attention of the last layer
	// [batch, heads, tgt, src], or nil when the decoder ignores the source.
	Coverage *tensor.Tensor
}

// Decoder embeds target tokens and runs a causal stack of decoder layers.
type Decoder struct {
	id     uuid.UUID
	cfg    nn.LayerConfig
	padID  int
	embed  *Embedding
	layers []*nn.DecoderLayer
	norm   nn.Normalizer
}

func newDecoder(cfg Config, embed *Embedding, b tensor.Backend, g *tensor.Generator) (*Decoder, error) {
	d := &Decoder{id: uuid.New(), cfg: cfg.Layer, padID: cfg.PadID, embed: embed}
	for i := 0; i < cfg.DecoderLayers; i++ {
		lc := cfg.Layer
		lc.DeathRate = layerDeathRate(cfg.Layer.DeathRate, i, cfg.DecoderLayers)
		l, err := nn.NewDecoderLayer(fmt.Sprintf("decoder.layers.%d", i), i, lc, b, g)
		if err != nil {
			return nil, fmt.Errorf("decoder layer %d: %w", i, err)
		}
		d.layers = append(d.layers, l)
	}
	if preNorm(cfg.Layer) {
		d.norm = newFinalNorm("decoder.norm", cfg.Layer, b)
	}
	return d, nil
}

// Forward decodes the whole target prefix in one pass.
func (d *Decoder) Forward(tgt Tokens, src nn.Source, lang nn.LanguageID) DecoderOutput {
	x := d.embed.Forward(tgt)
	mask := &nn.AttentionMask{Causal: true}
	if padding := nn.PaddingMask(tgt.IDs, tgt.Seq, tgt.Batch, d.padID); slices.Contains(padding, true) {
		mask.KeyPadding = padding
	}
	pos := nn.NewPositionEmbedding(d.cfg, tgt.Seq, 0)

	var coverage *tensor.Tensor
	for _, l := range d.layers {
		x, coverage = l.Forward(x, src, pos, mask, lang)
	}
	return d.finish(x, coverage, lang)
}

// Step decodes the next tokens of a session, extending cache. tgt usually
// holds one step; a longer block is treated as a causal continuation.
//
// Pad tokens fed to a batch entry, for example after it has finished, are
// masked as keys for every later step, exactly as Forward masks them. A step
// that panics leaves the cache unchanged.
//
// The cache binds to this decoder on first use. It must not be shared with
// another decoder or used by two steps at once.
func (d *Decoder) Step(tgt Tokens, src nn.Source, lang nn.LanguageID, cache *nn.IncrementalCache, reuseSource bool) DecoderOutput {
	if cache == nil {
		violation("Decoder.Step: nil cache")
	}
	cache.Bind(d.id)
	committed := false
	release := cache.Acquire()
	defer func() { release(committed) }()

	offset := cache.SelfLen(0)
	history := cache.Tokens()
	if len(history) != offset*tgt.Batch {
		violation("Decoder.Step: cache holds %d token ids for %d positions of batch %d", len(history), offset, tgt.Batch)
	}

	x := d.embed.Forward(tgt)
	pos := nn.NewPositionEmbedding(d.cfg, tgt.Seq, offset)
	mask := &nn.AttentionMask{Causal: true}
	ids := append(slices.Clone(history), tgt.IDs...)
	if padding := nn.PaddingMask(ids, offset+tgt.Seq, tgt.Batch, d.padID); slices.Contains(padding, true) {
		mask.KeyPadding = padding
	}
	cache.RecordTokens(tgt.IDs)

	var coverage *tensor.Tensor
	for _, l := range d.layers {
		x, coverage = l.ForwardIncremental(x, src, pos, mask, lang, reuseSource, cache)
	}
	out := d.finish(x, coverage, lang)
	committed = true
	return out
}

func (d *Decoder) finish(x, coverage *tensor.Tensor, lang nn.LanguageID) DecoderOutput {
	if d.norm != nil {
		x = d.norm.Forward(x, lang)
	}
	return DecoderOutput{Hidden: x, Coverage: coverage}
}

// ID returns the identity caches bind to.
func (d *Decoder) ID() uuid.UUID {
	return d.id
}

// Layers returns the layer stack.
func (d *Decoder) Layers() []*nn.DecoderLayer {
	return d.layers
}

// SetTraining implements nn.Trainable.
func (d *Decoder) SetTraining(training bool) {
	d.embed.SetTraining(training)
	for _, l := range d.layers {
		l.SetTraining(training)
	}
}

// Parameters returns the layer and final norm parameters.
func (d *Decoder) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, l := range d.layers {
		params = append(params, l.Parameters()...)
	}
	if d.norm != nil {
		params = append(params, d.norm.Parameters()...)
	}
	return params
}
