package nn

import (
	"github.com/google/uuid"

	"github.com/born-ml/babel/internal/tensor"
)

// SelfAttention is multi-head self-attention with relative or rotary
// positions.
//
// For the relative schemes the score of query i and key j is
//
//	((q_i + u)·k_j + (q_i + v)·R[clamp(offset+i-j)]) / √headDim
//
// where u and v are learned per-head biases and R is either a learned offset
// table or sinusoidal offset embeddings through a learned projection. The
// rotary scheme rotates q and k by absolute position before q·k.
//
// Shapes:
//   - input:   [seq, batch, model]
//   - output:  [seq, batch, model]
//   - weights: [batch, heads, seq, keyLen]
type SelfAttention struct {
	cfg   LayerConfig
	layer int
	id    uuid.UUID

	inProj  Projection // model → 3·model (q, k, v)
	outProj Projection

	posTable     *Parameter // RelativeLearned: [2·maxDistance+1, model]
	posProj      *Linear    // RelativeFixed
	contentBias  *Parameter // [heads, headDim]
	positionBias *Parameter // [heads, headDim]

	dropout *Dropout
	backend tensor.Backend
}

// NewSelfAttention creates the self-attention of layer index layer.
func NewSelfAttention(prefix string, layer int, cfg LayerConfig, b tensor.Backend, g *tensor.Generator) (*SelfAttention, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, h, dh := cfg.ModelDim, cfg.Heads, cfg.HeadDim()
	a := &SelfAttention{
		cfg:     cfg,
		layer:   layer,
		id:      uuid.New(),
		inProj:  newProjection(prefix+".in_proj", d, 3*d, true, cfg, b, g),
		outProj: newProjection(prefix+".out_proj", d, d, true, cfg, b, g),
		dropout: NewDropout(cfg.AttnDropout, false, b, g),
		backend: b,
	}

	switch cfg.Position {
	case RelativeLearned:
		rows := 2*cfg.MaxRelativeDistance + 1
		a.posTable = NewParameter(prefix+".pos_table", xavierUniform(g, d, rows, rows, d))
	case RelativeFixed:
		a.posProj = NewLinear(prefix+".pos_proj", d, d, false, b, g)
	}
	if cfg.Position.Relative() {
		a.contentBias = NewParameter(prefix+".r_w_bias", xavierUniform(g, h, dh, h, dh))
		a.positionBias = NewParameter(prefix+".r_r_bias", xavierUniform(g, h, dh, h, dh))
	}
	return a, nil
}

// Forward attends over x itself. pos must describe x with offset 0.
func (a *SelfAttention) Forward(x *tensor.Tensor, pos *PositionEmbedding, mask *AttentionMask, lang LanguageID) (*tensor.Tensor, *tensor.Tensor) {
	return a.forward("SelfAttention.Forward", x, pos, mask, lang, nil)
}

// ForwardIncremental appends this step's keys and values to cache and
// attends over everything cached so far. pos.Offset must equal the number of
// cached positions.
func (a *SelfAttention) ForwardIncremental(x *tensor.Tensor, pos *PositionEmbedding, mask *AttentionMask, lang LanguageID,
	cache *IncrementalCache) (*tensor.Tensor, *tensor.Tensor) {
	if cache == nil {
		violation("SelfAttention.ForwardIncremental: nil cache")
	}
	return a.forward("SelfAttention.ForwardIncremental", x, pos, mask, lang, cache)
}

func (a *SelfAttention) forward(op string, x *tensor.Tensor, pos *PositionEmbedding, mask *AttentionMask, lang LanguageID,
	cache *IncrementalCache) (*tensor.Tensor, *tensor.Tensor) {
	checkInput(op, x, a.cfg.ModelDim)
	seq, batch := x.Dim(0), x.Dim(1)
	d, h := a.cfg.ModelDim, a.cfg.Heads

	var entry *CacheEntry
	if cache != nil {
		entry = cache.entry(op, CacheKey{Layer: a.layer, Module: SelfAttentionModule}, a.id)
	}
	a.checkPositions(op, pos, seq, entry.Len())
	additive := mask.additive(op, batch, seq, pos.KeyLen, pos.Offset)

	qkv := a.inProj.Project(x, lang)
	q := splitHeads(a.backend, a.backend.Narrow(qkv, -1, 0, d), h)
	k := splitHeads(a.backend, a.backend.Narrow(qkv, -1, d, d), h)
	v := splitHeads(a.backend, a.backend.Narrow(qkv, -1, 2*d, d), h)

	if a.cfg.Position == Rotary {
		q = applyRotary(q, pos.Cos, pos.Sin)
		k = applyRotary(k, pos.Cos, pos.Sin)
	}

	if entry != nil {
		if entry.Key != nil {
			if entry.Key.Dim(0) != batch*h {
				violation("%s: cached batch %d does not match input batch %d", op, entry.Key.Dim(0)/h, batch)
			}
			k = a.backend.Cat(1, entry.Key, k)
			v = a.backend.Cat(1, entry.Value, v)
		}
		cache.store(entry, k, v)
	}

	var scores *tensor.Tensor
	if a.cfg.Position.Relative() {
		content := a.backend.BatchMatMul(addHeadBias(a.backend, q, a.contentBias.Tensor(), batch, h), k, true)
		scores = a.backend.Add(content, a.positionScores(q, pos, batch))
	} else {
		scores = a.backend.BatchMatMul(q, k, true)
	}

	ctx, weights := attend(a.backend, scores, additive, v, batch, h, a.dropout)
	return a.outProj.Project(mergeHeads(a.backend, ctx, batch, h), lang), weights
}

func (a *SelfAttention) checkPositions(op string, pos *PositionEmbedding, seq, cached int) {
	switch {
	case pos == nil:
		violation("%s: missing position embedding", op)
	case pos.Scheme != a.cfg.Position:
		violation("%s: position embedding is %s, layer uses %s", op, pos.Scheme, a.cfg.Position)
	case pos.QueryLen != seq:
		violation("%s: position embedding covers %d queries, input has %d", op, pos.QueryLen, seq)
	case pos.Offset != cached || pos.KeyLen != cached+seq:
		violation("%s: position offset %d and key length %d do not match %d cached positions",
			op, pos.Offset, pos.KeyLen, cached)
	case a.cfg.Position == RelativeLearned && pos.MaxDistance != a.cfg.MaxRelativeDistance:
		violation("%s: position embedding distance %d does not match learned table %d",
			op, pos.MaxDistance, a.cfg.MaxRelativeDistance)
	}
}

// positionScores returns (q + v)·R[clamp(offset+i-j)] as [batch·heads, seq, keyLen].
//
// Only the table rows reachable from this call are projected, so the cost is
// bounded by seq+keyLen rather than the table size.
func (a *SelfAttention) positionScores(q *tensor.Tensor, pos *PositionEmbedding, batch int) *tensor.Tensor {
	h, dh := a.cfg.Heads, a.cfg.HeadDim()
	seq, keyLen := pos.QueryLen, pos.KeyLen
	lo := pos.RelativeIndex(0, keyLen-1)
	hi := pos.RelativeIndex(seq-1, 0)
	rows := hi - lo + 1

	var r *tensor.Tensor
	if a.posTable != nil {
		r = a.backend.Narrow(a.posTable.Tensor(), 0, lo, rows)
	} else {
		r = a.posProj.Forward(a.backend.Narrow(pos.Table, 0, lo, rows))
	}
	rh := a.backend.Permute(r.Reshape(rows, h, dh), 1, 0, 2) // [heads, rows, headDim]

	qp := addHeadBias(a.backend, q, a.positionBias.Tensor(), batch, h)
	qp = a.backend.Permute(qp.Reshape(batch, h, seq, dh), 1, 0, 2, 3).Reshape(h, batch*seq, dh)
	table := a.backend.BatchMatMul(qp, rh, true) // [heads, batch·seq, rows]

	out := tensor.Zeros(batch*h, seq, keyLen)
	od, td := out.Data(), table.Data()
	for b := 0; b < batch; b++ {
		for hd := 0; hd < h; hd++ {
			for i := 0; i < seq; i++ {
				src := (hd*batch*seq + b*seq + i) * rows
				dst := ((b*h+hd)*seq + i) * keyLen
				for j := 0; j < keyLen; j++ {
					od[dst+j] = td[src+pos.RelativeIndex(i, j)-lo]
				}
			}
		}
	}
	return out
}

// SetTraining implements Trainable.
func (a *SelfAttention) SetTraining(training bool) {
	a.dropout.SetTraining(training)
}

// ID returns the instance id used to scope cache entries.
func (a *SelfAttention) ID() uuid.UUID {
	return a.id
}

// Parameters returns all projection, table and bias parameters.
func (a *SelfAttention) Parameters() []*Parameter {
	params := collect(a.inProj, a.outProj)
	if a.posTable != nil {
		params = append(params, a.posTable)
	}
	if a.posProj != nil {
		params = append(params, a.posProj.Parameters()...)
	}
	if a.contentBias != nil {
		params = append(params, a.contentBias, a.positionBias)
	}
	return params
}
