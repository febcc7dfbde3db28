// Package model assembles the layer core into runnable encoder and decoder
// stacks with token embeddings, and bundles them as a Translator with
// incremental decode sessions.
package model

import (
	"sync"

	"github.com/google/uuid"

	"github.com/born-ml/babel/internal/kernels"
	"github.com/born-ml/babel/internal/logger"
	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/internal/tensor"
)

// Translator is an encoder-decoder model without output projection.
type Translator struct {
	cfg      Config
	backend  tensor.Backend
	srcEmbed *Embedding
	tgtEmbed *Embedding
	encoder  *Encoder
	decoder  *Decoder
	log      logger.Logger
}

// New builds a translator. The returned error wraps nn.ErrConfig when cfg is
// invalid.
func New(cfg Config, opts ...Option) (*Translator, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	d := cfg.Layer.ModelDim

	t := &Translator{cfg: cfg, backend: o.backend, log: o.log}
	t.srcEmbed = NewEmbedding("encoder.embed_tokens", cfg.SourceVocab, d, cfg.PadID, cfg.Layer.Dropout, o.backend, o.rng)
	t.tgtEmbed = t.srcEmbed
	if !cfg.ShareEmbeddings {
		t.tgtEmbed = NewEmbedding("decoder.embed_tokens", cfg.TargetVocab, d, cfg.PadID, cfg.Layer.Dropout, o.backend, o.rng)
	}

	if t.encoder, err = newEncoder(cfg, t.srcEmbed, o.backend, o.rng); err != nil {
		return nil, err
	}
	if t.decoder, err = newDecoder(cfg, t.tgtEmbed, o.backend, o.rng); err != nil {
		return nil, err
	}

	report := t.KernelReport()
	o.log.Debug("kernel selection",
		"backend", o.backend.Name(),
		"layer_norm", report.LayerNorm,
		"feed_forward", report.FeedForward,
		"dropout_add", report.DropoutAdd,
	)
	o.log.Info("model built",
		"encoder_layers", cfg.EncoderLayers,
		"decoder_layers", cfg.DecoderLayers,
		"model_dim", d,
		"position", cfg.Layer.Position.String(),
		"parameters", nn.CountParameters(t),
	)
	return t, nil
}

// Encode runs the encoder.
func (t *Translator) Encode(src Tokens, lang nn.LanguageID) nn.Source {
	return t.encoder.Forward(src, lang)
}

// Forward runs encoder and decoder over full sequences (teacher forcing).
func (t *Translator) Forward(src, tgt Tokens, srcLang, tgtLang nn.LanguageID) DecoderOutput {
	if src.Batch != tgt.Batch {
		violation("Translator.Forward: source batch %d does not match target batch %d", src.Batch, tgt.Batch)
	}
	return t.decoder.Forward(tgt, t.Encode(src, srcLang), tgtLang)
}

// NewSession encodes src once and returns an incremental decode session.
func (t *Translator) NewSession(src Tokens, srcLang, tgtLang nn.LanguageID) *Session {
	return &Session{
		decoder: t.decoder,
		source:  t.Encode(src, srcLang),
		lang:    tgtLang,
		cache:   nn.NewIncrementalCache(),
	}
}

// KernelReport returns the strategies chosen by the first decoder layer,
// which covers every fusable operation in the model.
func (t *Translator) KernelReport() kernels.Report {
	return t.decoder.layers[0].KernelReport()
}

// Config returns the validated configuration.
func (t *Translator) Config() Config {
	return t.cfg
}

// Backend returns the tensor backend.
func (t *Translator) Backend() tensor.Backend {
	return t.backend
}

// Encoder returns the encoder stack.
func (t *Translator) Encoder() *Encoder {
	return t.encoder
}

// Decoder returns the decoder stack.
func (t *Translator) Decoder() *Decoder {
	return t.decoder
}

// SetTraining switches dropout and layer drop on or off everywhere.
func (t *Translator) SetTraining(training bool) {
	t.encoder.SetTraining(training)
	t.decoder.SetTraining(training)
}

// Parameters returns every parameter once, embeddings first.
func (t *Translator) Parameters() []*nn.Parameter {
	params := t.srcEmbed.Parameters()
	if t.tgtEmbed != t.srcEmbed {
		params = append(params, t.tgtEmbed.Parameters()...)
	}
	params = append(params, t.encoder.Parameters()...)
	return append(params, t.decoder.Parameters()...)
}

// Session is one incremental decode over a fixed source.
//
// Steps are serialized by an internal mutex; the cache additionally rejects
// overlapping steps from outside the session.
type Session struct {
	mu      sync.Mutex
	decoder *Decoder
	source  nn.Source
	lang    nn.LanguageID
	cache   *nn.IncrementalCache
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID {
	return s.cache.ID()
}

// Step feeds the next target token of each batch entry.
func (s *Session) Step(ids []int) DecoderOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := Tokens{IDs: ids, Seq: 1, Batch: s.source.Context.Dim(1)}
	return s.decoder.Step(tokens, s.source, s.lang, s.cache, true)
}

// Len returns the number of decoded positions.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.SelfLen(0)
}

// Source returns the encoded source.
func (s *Session) Source() nn.Source {
	return s.source
}
