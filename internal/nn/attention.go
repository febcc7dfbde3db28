package nn

import (
	"math"

	"github.com/born-ml/babel/internal/tensor"
)

// maskValue is added to scores at masked positions before the softmax.
const maskValue = -1e9

// AttentionMask marks keys a query must not attend to.
//
// KeyPadding, when set, has batch·keyLen entries in row-major [batch, key]
// order; true marks padding. Causal hides keys after the query's absolute
// position.
type AttentionMask struct {
	KeyPadding []bool
	Causal     bool
}

// PaddingMask derives a key-padding mask from time-major token ids
// [seq][batch] flattened row-major.
func PaddingMask(ids []int, seq, batch, padID int) []bool {
	mask := make([]bool, batch*seq)
	for t := 0; t < seq; t++ {
		for b := 0; b < batch; b++ {
			mask[b*seq+t] = ids[t*batch+b] == padID
		}
	}
	return mask
}

// additive returns the mask as a [batch, 1, queryLen, keyLen] tensor of 0 and
// maskValue, or nil when nothing is masked.
func (m *AttentionMask) additive(op string, batch, queryLen, keyLen, offset int) *tensor.Tensor {
	if m == nil || (!m.Causal && m.KeyPadding == nil) {
		return nil
	}
	if m.KeyPadding != nil && len(m.KeyPadding) != batch*keyLen {
		violation("%s: key padding has %d entries, want %d×%d", op, len(m.KeyPadding), batch, keyLen)
	}

	out := tensor.Zeros(batch, 1, queryLen, keyLen)
	data := out.Data()
	masked := false
	for b := 0; b < batch; b++ {
		for i := 0; i < queryLen; i++ {
			row := (b*queryLen + i) * keyLen
			for j := 0; j < keyLen; j++ {
				if (m.Causal && j > offset+i) || (m.KeyPadding != nil && m.KeyPadding[b*keyLen+j]) {
					data[row+j] = maskValue
					masked = true
				}
			}
		}
	}
	if !masked {
		return nil
	}
	return out
}

// splitHeads turns x [seq, batch, model] into [batch·heads, seq, headDim].
func splitHeads(b tensor.Backend, x *tensor.Tensor, heads int) *tensor.Tensor {
	seq, batch, model := x.Dim(0), x.Dim(1), x.Dim(2)
	dh := model / heads
	return b.Permute(x.Reshape(seq, batch, heads, dh), 1, 2, 0, 3).Reshape(batch*heads, seq, dh)
}

// mergeHeads is the inverse of splitHeads.
func mergeHeads(b tensor.Backend, x *tensor.Tensor, batch, heads int) *tensor.Tensor {
	seq, dh := x.Dim(1), x.Dim(2)
	return b.Permute(x.Reshape(batch, heads, seq, dh), 2, 0, 1, 3).Reshape(seq, batch, heads*dh)
}

// addHeadBias adds a per-head bias [heads, headDim] to x [batch·heads, seq, headDim].
func addHeadBias(b tensor.Backend, x, bias *tensor.Tensor, batch, heads int) *tensor.Tensor {
	seq, dh := x.Dim(1), x.Dim(2)
	y := b.Add(x.Reshape(batch, heads, seq, dh), bias.Reshape(1, heads, 1, dh))
	return y.Reshape(batch*heads, seq, dh)
}

// attend finishes scaled dot-product attention from raw scores
// [batch·heads, q, k]: scale, mask, softmax, dropout, and the weighted sum of
// v [batch·heads, k, headDim]. It returns the context [batch·heads, q, headDim]
// and the pre-dropout weights [batch, heads, q, k].
func attend(b tensor.Backend, scores, mask, v *tensor.Tensor, batch, heads int, dropout *Dropout) (ctx, weights *tensor.Tensor) {
	q, k, dh := scores.Dim(1), scores.Dim(2), v.Dim(2)
	scores = b.Scale(scores, float32(1/math.Sqrt(float64(dh)))).Reshape(batch, heads, q, k)
	if mask != nil {
		scores = b.Add(scores, mask)
	}
	weights = b.Softmax(scores)
	probs := dropout.Forward(weights).Reshape(batch*heads, q, k)
	return b.BatchMatMul(probs, v, false), weights
}

func checkInput(op string, x *tensor.Tensor, model int) {
	if x.Rank() != 3 || x.Dim(2) != model {
		violation("%s: expected [seq, batch, %d] input, got %v", op, model, x.Shape())
	}
}
