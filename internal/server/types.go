package server

import (
	"github.com/born-ml/babel/internal/kernels"
	"github.com/born-ml/babel/internal/nn"
)

// ModelResponse describes the loaded translator.
type ModelResponse struct {
	Backend       string         `json:"backend"`
	ModelDim      int            `json:"model_dim"`
	InnerDim      int            `json:"inner_dim"`
	Heads         int            `json:"heads"`
	EncoderLayers int            `json:"encoder_layers"`
	DecoderLayers int            `json:"decoder_layers"`
	SourceVocab   int            `json:"source_vocab"`
	TargetVocab   int            `json:"target_vocab"`
	Position      string         `json:"position"`
	Parameters    int            `json:"parameters"`
	Kernels       kernels.Report `json:"kernels"`
	Sessions      int            `json:"sessions"`
}

// EncodeRequest carries batch-major source sequences. Shorter sequences are
// padded.
type EncodeRequest struct {
	Source     [][]int       `json:"source"`
	SourceLang nn.LanguageID `json:"source_lang,omitempty"`
}

// EncodeResponse summarizes the encoder output.
type EncodeResponse struct {
	Shape []int `json:"shape"`
	// Norms holds the L2 norm of every context vector, batch-major.
	Norms [][]float32 `json:"norms"`
}

// CreateSessionRequest opens a decode session over an encoded source.
type CreateSessionRequest struct {
	Source     [][]int       `json:"source"`
	SourceLang nn.LanguageID `json:"source_lang,omitempty"`
	TargetLang nn.LanguageID `json:"target_lang,omitempty"`
}

// SessionResponse identifies a session.
type SessionResponse struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Batch     int    `json:"batch"`
	SourceLen int    `json:"source_len"`
}

// StepRequest feeds one target token per batch entry.
type StepRequest struct {
	Tokens []int `json:"tokens"`
}

// StepResponse reports one decode step.
type StepResponse struct {
	ID   string `json:"id"`
	Step int    `json:"step"`
	// Norms holds the L2 norm of each entry's hidden state.
	Norms []float32 `json:"norms"`
	// Focus is, per entry, the source position with the largest
	// head-averaged attention. It is omitted when the decoder ignores the
	// source.
	Focus []int `json:"focus,omitempty"`
}

// DeleteSessionResponse confirms a deletion.
type DeleteSessionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
