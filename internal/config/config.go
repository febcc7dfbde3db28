// Package config loads translator configuration files.
//
// A file is YAML (.yaml, .yml) or JSON (.json). Unknown keys are rejected.
// Sizes are required; everything else has a default. Pointer fields
// distinguish "not set" from zero so unset dropout rates can fall back to the
// general rate.
//
//	model:
//	  model_dim: 512
//	  inner_dim: 2048
//	  heads: 8
//	  encoder_layers: 6
//	  decoder_layers: 6
//	  source_vocab: 32000
//	  target_vocab: 32000
//	  dropout: 0.1
//	  position: relative_learned
//	  max_relative_distance: 64
//	server:
//	  address: 127.0.0.1:8080
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/babel/internal/model"
	"github.com/born-ml/babel/internal/nn"
	"github.com/born-ml/babel/internal/tensor"
)

var (
	// ErrMissingOption is returned when a required option is absent.
	ErrMissingOption = errors.New("missing required option")

	// ErrUnsupportedFormat is returned for file extensions other than
	// .yaml, .yml and .json.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// Defaults for optional settings.
const (
	DefaultActivation          = "relu"
	DefaultPosition            = "relative_learned"
	DefaultMaxRelativeDistance = 64
	DefaultSeed                = 1
	DefaultServerAddress       = "127.0.0.1:8080"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
)

// Config is the content of a configuration file.
type Config struct {
	Model  Model  `yaml:"model" json:"model"`
	Server Server `yaml:"server" json:"server"`
	Log    Log    `yaml:"log" json:"log"`
}

// Model describes the translator architecture.
type Model struct {
	ModelDim      *int `yaml:"model_dim" json:"model_dim"`
	InnerDim      *int `yaml:"inner_dim" json:"inner_dim"`
	Heads         *int `yaml:"heads" json:"heads"`
	EncoderLayers *int `yaml:"encoder_layers" json:"encoder_layers"`
	DecoderLayers *int `yaml:"decoder_layers" json:"decoder_layers"`
	SourceVocab   *int `yaml:"source_vocab" json:"source_vocab"`
	TargetVocab   *int `yaml:"target_vocab" json:"target_vocab"`

	PadID           int  `yaml:"pad_id" json:"pad_id"`
	ShareEmbeddings bool `yaml:"share_embeddings" json:"share_embeddings"`

	Dropout            *float32 `yaml:"dropout" json:"dropout"`
	AttnDropout        *float32 `yaml:"attention_dropout" json:"attention_dropout"`
	ResidualDropout    *float32 `yaml:"residual_dropout" json:"residual_dropout"`
	FFNDropout         *float32 `yaml:"ffn_dropout" json:"ffn_dropout"`
	VariationalDropout bool     `yaml:"variational_dropout" json:"variational_dropout"`

	Activation string `yaml:"activation" json:"activation"`
	GLU        bool   `yaml:"glu" json:"glu"`

	Factorized           bool `yaml:"factorized" json:"factorized"`
	MultilingualNorm     bool `yaml:"multilingual_norm" json:"multilingual_norm"`
	Languages            int  `yaml:"languages" json:"languages"`
	FactorRank           int  `yaml:"factor_rank" json:"factor_rank"`
	MultiplicativeFactor bool `yaml:"multiplicative_factor" json:"multiplicative_factor"`

	Position            string `yaml:"position" json:"position"`
	MaxRelativeDistance *int   `yaml:"max_relative_distance" json:"max_relative_distance"`

	DeathRate          float32 `yaml:"death_rate" json:"death_rate"`
	StochasticSublayer bool    `yaml:"stochastic_sublayer" json:"stochastic_sublayer"`

	Macaron       bool    `yaml:"macaron" json:"macaron"`
	PostNorm      bool    `yaml:"post_norm" json:"post_norm"`
	ReZero        bool    `yaml:"rezero" json:"rezero"`
	NormEps       float32 `yaml:"norm_eps" json:"norm_eps"`
	IgnoreSource  bool    `yaml:"ignore_source" json:"ignore_source"`
	Checkpointing bool    `yaml:"checkpointing" json:"checkpointing"`

	Seed *uint64 `yaml:"seed" json:"seed"`
}

// Server configures the diagnostics server.
type Server struct {
	Address string `yaml:"address" json:"address"`
	// MaxSessions bounds concurrently open decode sessions. Zero means no
	// limit.
	MaxSessions int `yaml:"max_sessions" json:"max_sessions"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the format named by ext and validates the result.
func Parse(data []byte, ext string) (Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("%w: %w", nn.ErrConfig, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("%w: %w", nn.ErrConfig, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	cfg.applyDefaults()
	if _, err := cfg.ModelConfig(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Model.Activation == "" {
		c.Model.Activation = DefaultActivation
	}
	if c.Model.Position == "" {
		c.Model.Position = DefaultPosition
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// ModelConfig converts the model section and validates it. Errors wrap
// nn.ErrConfig.
func (c Config) ModelConfig() (model.Config, error) {
	m := c.Model
	required := []struct {
		name string
		v    *int
	}{
		{"model_dim", m.ModelDim},
		{"inner_dim", m.InnerDim},
		{"heads", m.Heads},
		{"encoder_layers", m.EncoderLayers},
		{"decoder_layers", m.DecoderLayers},
		{"source_vocab", m.SourceVocab},
		{"target_vocab", m.TargetVocab},
	}
	for _, r := range required {
		if r.v == nil {
			return model.Config{}, fmt.Errorf("%w: %w: model.%s", nn.ErrConfig, ErrMissingOption, r.name)
		}
	}

	act, err := tensor.ParseActivation(m.Activation)
	if err != nil {
		return model.Config{}, fmt.Errorf("%w: %w", nn.ErrConfig, err)
	}
	pos, err := nn.ParsePositionScheme(m.Position)
	if err != nil {
		return model.Config{}, fmt.Errorf("%w: %w", nn.ErrConfig, err)
	}
	maxDist := DefaultMaxRelativeDistance
	if m.MaxRelativeDistance != nil {
		if pos == nn.Rotary {
			return model.Config{}, fmt.Errorf("%w: max_relative_distance does not apply to rotary positions", nn.ErrConfig)
		}
		maxDist = *m.MaxRelativeDistance
	}

	cfg := model.Config{
		Layer: nn.LayerConfig{
			ModelDim:             *m.ModelDim,
			InnerDim:             *m.InnerDim,
			Heads:                *m.Heads,
			Dropout:              rateOr(m.Dropout, 0),
			AttnDropout:          rateOr(m.AttnDropout, -1),
			ResidualDropout:      rateOr(m.ResidualDropout, -1),
			FFNDropout:           rateOr(m.FFNDropout, -1),
			VariationalDropout:   m.VariationalDropout,
			Activation:           act,
			GLU:                  m.GLU,
			Factorized:           m.Factorized,
			MultilingualNorm:     m.MultilingualNorm,
			Languages:            m.Languages,
			FactorRank:           m.FactorRank,
			MultiplicativeFactor: m.MultiplicativeFactor,
			Position:             pos,
			MaxRelativeDistance:  maxDist,
			DeathRate:            m.DeathRate,
			StochasticSublayer:   m.StochasticSublayer,
			Macaron:              m.Macaron,
			PostNorm:             m.PostNorm,
			ReZero:               m.ReZero,
			NormEps:              m.NormEps,
			IgnoreSource:         m.IgnoreSource,
			Checkpointing:        m.Checkpointing,
		},
		EncoderLayers:   *m.EncoderLayers,
		DecoderLayers:   *m.DecoderLayers,
		SourceVocab:     *m.SourceVocab,
		TargetVocab:     *m.TargetVocab,
		PadID:           m.PadID,
		ShareEmbeddings: m.ShareEmbeddings,
	}
	return cfg.Validate()
}

// Seed returns the configured initialisation seed.
func (c Config) Seed() uint64 {
	if c.Model.Seed == nil {
		return DefaultSeed
	}
	return *c.Model.Seed
}

func rateOr(v *float32, fallback float32) float32 {
	if v == nil {
		return fallback
	}
	return *v
}
