package nn

import (
	"github.com/google/uuid"

	"github.com/born-ml/babel/internal/tensor"
)

// SourceAttention is multi-head attention from decoder states to the encoder
// context. It has no position term.
//
// Shapes:
//   - query:    [tgt, batch, model]
//   - context:  [src, batch, model]
//   - output:   [tgt, batch, model]
//   - coverage: [batch, heads, tgt, src]
type SourceAttention struct {
	cfg   LayerConfig
	layer int
	id    uuid.UUID

	qProj   Projection // model → model
	kvProj  Projection // model → 2·model (k, v)
	outProj Projection

	dropout *Dropout
	backend tensor.Backend
}

// NewSourceAttention creates the cross-attention of layer index layer.
func NewSourceAttention(prefix string, layer int, cfg LayerConfig, b tensor.Backend, g *tensor.Generator) (*SourceAttention, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := cfg.ModelDim
	return &SourceAttention{
		cfg:     cfg,
		layer:   layer,
		id:      uuid.New(),
		qProj:   newProjection(prefix+".q_proj", d, d, true, cfg, b, g),
		kvProj:  newProjection(prefix+".kv_proj", d, 2*d, true, cfg, b, g),
		outProj: newProjection(prefix+".out_proj", d, d, true, cfg, b, g),
		dropout: NewDropout(cfg.AttnDropout, false, b, g),
		backend: b,
	}, nil
}

// Forward attends from query to context. Queries are projected with the
// target languages, keys and values with the source languages. mask only
// uses KeyPadding; Causal is rejected.
func (a *SourceAttention) Forward(query, context *tensor.Tensor, mask *AttentionMask, tgtLang, srcLang LanguageID) (*tensor.Tensor, *tensor.Tensor) {
	const op = "SourceAttention.Forward"
	a.check(op, query, context, mask)
	k, v := a.project(context, srcLang)
	return a.attend(op, query, k, v, mask, tgtLang)
}

// ForwardIncremental is Forward for one decode step. With reuseSource the
// projected context is stored in cache on the first step and reused after
// that; otherwise it is recomputed and the cache is left untouched.
func (a *SourceAttention) ForwardIncremental(query, context *tensor.Tensor, mask *AttentionMask, tgtLang, srcLang LanguageID,
	reuseSource bool, cache *IncrementalCache) (*tensor.Tensor, *tensor.Tensor) {
	const op = "SourceAttention.ForwardIncremental"
	if cache == nil {
		violation("%s: nil cache", op)
	}
	a.check(op, query, context, mask)
	if !reuseSource {
		k, v := a.project(context, srcLang)
		return a.attend(op, query, k, v, mask, tgtLang)
	}

	entry := cache.entry(op, CacheKey{Layer: a.layer, Module: SourceAttentionModule}, a.id)
	if entry.Key == nil {
		k, v := a.project(context, srcLang)
		cache.store(entry, k, v)
		return a.attend(op, query, k, v, mask, tgtLang)
	}
	if entry.Len() != context.Dim(0) || entry.Key.Dim(0) != context.Dim(1)*a.cfg.Heads {
		violation("%s: cached context [%d, %d] does not match context %v",
			op, entry.Len(), entry.Key.Dim(0)/a.cfg.Heads, context.Shape())
	}
	return a.attend(op, query, entry.Key, entry.Value, mask, tgtLang)
}

func (a *SourceAttention) check(op string, query, context *tensor.Tensor, mask *AttentionMask) {
	checkInput(op, query, a.cfg.ModelDim)
	checkInput(op, context, a.cfg.ModelDim)
	if query.Dim(1) != context.Dim(1) {
		violation("%s: query batch %d does not match context batch %d", op, query.Dim(1), context.Dim(1))
	}
	if mask != nil && mask.Causal {
		violation("%s: cross-attention cannot be causal", op)
	}
}

// project returns the context keys and values as [batch·heads, src, headDim].
func (a *SourceAttention) project(context *tensor.Tensor, lang LanguageID) (k, v *tensor.Tensor) {
	d, h := a.cfg.ModelDim, a.cfg.Heads
	kv := a.kvProj.Project(context, lang)
	k = splitHeads(a.backend, a.backend.Narrow(kv, -1, 0, d), h)
	v = splitHeads(a.backend, a.backend.Narrow(kv, -1, d, d), h)
	return k, v
}

func (a *SourceAttention) attend(op string, query, k, v *tensor.Tensor, mask *AttentionMask, lang LanguageID) (*tensor.Tensor, *tensor.Tensor) {
	tgt, batch := query.Dim(0), query.Dim(1)
	h := a.cfg.Heads
	q := splitHeads(a.backend, a.qProj.Project(query, lang), h)
	scores := a.backend.BatchMatMul(q, k, true)
	ctx, coverage := attend(a.backend, scores, mask.additive(op, batch, tgt, k.Dim(1), 0), v, batch, h, a.dropout)
	return a.outProj.Project(mergeHeads(a.backend, ctx, batch, h), lang), coverage
}

// SetTraining implements Trainable.
func (a *SourceAttention) SetTraining(training bool) {
	a.dropout.SetTraining(training)
}

// ID returns the instance id used to scope cache entries.
func (a *SourceAttention) ID() uuid.UUID {
	return a.id
}

// Parameters returns the projection parameters.
func (a *SourceAttention) Parameters() []*Parameter {
	return collect(a.qProj, a.kvProj, a.outProj)
}
