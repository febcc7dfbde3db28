package model

import (
	"math"

	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/internal/tensor"
)

// Embedding maps token ids to vectors scaled by √dim, followed by dropout.
// Positions are added inside the attention layers, not here.
type Embedding struct {
	weight  *nn.Parameter // [vocab, dim]
	vocab   int
	dim     int
	scale   float32
	dropout *nn.Dropout
}

// NewEmbedding creates a table with N(0, dim^-1/2) rows and a zero pad row.
func NewEmbedding(name string, vocab, dim, padID int, dropout float32, b tensor.Backend, g *tensor.Generator) *Embedding {
	w := tensor.Randn(g, float32(1/math.Sqrt(float64(dim))), vocab, dim)
	clear(w.Data()[padID*dim : (padID+1)*dim])
	return &Embedding{
		weight:  nn.NewParameter(name, w),
		vocab:   vocab,
		dim:     dim,
		scale:   float32(math.Sqrt(float64(dim))),
		dropout: nn.NewDropout(dropout, false, b, g),
	}
}

// Forward returns the embeddings of tokens as [seq, batch, dim].
func (e *Embedding) Forward(tokens Tokens) *tensor.Tensor {
	tokens.check("Embedding.Forward")
	out := tensor.Zeros(tokens.Seq, tokens.Batch, e.dim)
	od, wd := out.Data(), e.weight.Tensor().Data()
	for i, id := range tokens.IDs {
		if id < 0 || id >= e.vocab {
			violation("Embedding.Forward: token id %d out of range [0, %d)", id, e.vocab)
		}
		row := wd[id*e.dim : (id+1)*e.dim]
		dst := od[i*e.dim : (i+1)*e.dim]
		for j, v := range row {
			dst[j] = v * e.scale
		}
	}
	return e.dropout.Forward(out)
}

// SetTraining implements nn.Trainable.
func (e *Embedding) SetTraining(training bool) {
	e.dropout.SetTraining(training)
}

// Parameters returns the table.
func (e *Embedding) Parameters() []*nn.Parameter {
	return []*nn.Parameter{e.weight}
}

// Vocab returns the number of rows.
func (e *Embedding) Vocab() int {
	return e.vocab
}
