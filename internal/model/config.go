package model

import (
	"fmt"

	"github.com/born-ml/babel/internal/nn"
)

// Config describes a full encoder-decoder translator.
type Config struct {
	// Layer is shared by every layer. Its DeathRate is the rate of the top
	// layer; layer i of N uses (i+1)/N of it.
	Layer nn.LayerConfig

	EncoderLayers int
	DecoderLayers int
	SourceVocab   int
	TargetVocab   int
	PadID         int

	// ShareEmbeddings uses one embedding table for both sides. The
	// vocabularies must then have the same size.
	ShareEmbeddings bool
}

// Validate resolves and checks the layer configuration and the stack shape.
func (c Config) Validate() (Config, error) {
	layer, err := c.Layer.Resolve()
	if err != nil {
		return c, err
	}
	c.Layer = layer

	switch {
	case c.EncoderLayers <= 0 || c.DecoderLayers <= 0:
		return c, configErrorf("layer counts must be positive, got encoder %d decoder %d", c.EncoderLayers, c.DecoderLayers)
	case c.SourceVocab <= 0 || c.TargetVocab <= 0:
		return c, configErrorf("vocabulary sizes must be positive, got source %d target %d", c.SourceVocab, c.TargetVocab)
	case c.PadID < 0 || c.PadID >= min(c.SourceVocab, c.TargetVocab):
		return c, configErrorf("pad id %d is outside the vocabulary", c.PadID)
	case c.ShareEmbeddings && c.SourceVocab != c.TargetVocab:
		return c, configErrorf("shared embeddings need equal vocabularies, got %d and %d", c.SourceVocab, c.TargetVocab)
	}
	return c, nil
}

// layerDeathRate returns the death rate of layer i in a stack of n.
func layerDeathRate(top float32, i, n int) float32 {
	return float32(i+1) / float32(n) * top
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", nn.ErrConfig, fmt.Sprintf(format, args...))
}

func violation(format string, args ...any) {
	panic(fmt.Errorf("%w: %s", nn.ErrContract, fmt.Sprintf(format, args...)))
}
