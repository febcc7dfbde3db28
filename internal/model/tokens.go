package model

// Tokens is a time-major block of token ids: IDs[t*Batch+b] is the token of
// batch entry b at step t.
type Tokens struct {
	IDs   []int
	Seq   int
	Batch int
}

// NewTokens pads batch-major sequences of varying length with padID and
// transposes them to time-major order.
func NewTokens(sequences [][]int, padID int) Tokens {
	seq := 0
	for _, s := range sequences {
		seq = max(seq, len(s))
	}
	batch := len(sequences)
	ids := make([]int, seq*batch)
	for t := 0; t < seq; t++ {
		for b, s := range sequences {
			if t < len(s) {
				ids[t*batch+b] = s[t]
			} else {
				ids[t*batch+b] = padID
			}
		}
	}
	return Tokens{IDs: ids, Seq: seq, Batch: batch}
}

// Step returns the tokens of one time step as a [1, batch] block.
func (t Tokens) Step(step int) Tokens {
	return Tokens{IDs: t.IDs[step*t.Batch : (step+1)*t.Batch], Seq: 1, Batch: t.Batch}
}

func (t Tokens) check(op string) {
	if t.Seq <= 0 || t.Batch <= 0 || len(t.IDs) != t.Seq*t.Batch {
		violation("%s: %d token ids do not form a [%d, %d] block", op, len(t.IDs), t.Seq, t.Batch)
	}
}
